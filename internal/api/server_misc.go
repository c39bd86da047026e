package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func registerMiscHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type pongOutput struct {
		Body struct {
			Message string `json:"message"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "ping", Method: http.MethodGet, Path: "/api/v1/ping", Summary: "Liveness ping", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*pongOutput, error) {
			out := &pongOutput{}
			out.Body.Message = "pong"
			return out, nil
		})
}
