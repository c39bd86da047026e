package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/pm_agent/internal/overlay"
)

func registerOverlayHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "get-overlay-state", Method: http.MethodGet, Path: "/api/v1/overlay", Summary: "Get the overlay panel state", Tags: []string{"Overlay"}},
		func(ctx context.Context, input *struct{}) (*overlayStateOutput, error) {
			state, err := svc.OverlayState(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &overlayStateOutput{}
			out.Body = state
			return out, nil
		})

	type overlayChangeInput struct {
		Body overlay.Change
	}
	huma.Register(api, huma.Operation{OperationID: "patch-overlay-state", Method: http.MethodPatch, Path: "/api/v1/overlay", Summary: "Apply a partial overlay state change", Tags: []string{"Overlay"}},
		func(ctx context.Context, input *overlayChangeInput) (*overlayStateOutput, error) {
			state, err := svc.ApplyOverlayChange(ctx, input.Body)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &overlayStateOutput{}
			out.Body = state
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "toggle-overlay", Method: http.MethodPost, Path: "/api/v1/overlay/toggle", Summary: "Toggle the overlay panel open or closed", Tags: []string{"Overlay"}},
		func(ctx context.Context, input *struct{}) (*overlayStateOutput, error) {
			state, err := svc.ToggleOverlay(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &overlayStateOutput{}
			out.Body = state
			return out, nil
		})
}
