package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/pm_agent/internal/pagecontrol"
	"github.com/dgnsrekt/pm_agent/internal/scrape"
)

func registerPageHandlers(api huma.API, svc Service) {
	type pageListOutput struct {
		Body struct {
			Pages []pagecontrol.PageInfo `json:"pages"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-pages", Method: http.MethodGet, Path: "/api/v1/pages", Summary: "List attached market pages", Tags: []string{"Pages"}},
		func(ctx context.Context, input *struct{}) (*pageListOutput, error) {
			pages, err := svc.ListPages(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &pageListOutput{}
			out.Body.Pages = pages
			return out, nil
		})

	type marketOutput struct {
		Body scrape.CurrentMarket
	}
	huma.Register(api, huma.Operation{OperationID: "get-market", Method: http.MethodGet, Path: "/api/v1/pages/{market_id}/market", Summary: "Scrape the current market from a page", Tags: []string{"Pages"}},
		func(ctx context.Context, input *marketIDInput) (*marketOutput, error) {
			market, err := svc.GetMarket(ctx, input.MarketID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &marketOutput{}
			out.Body = market
			return out, nil
		})

	type openURLInput struct {
		Body struct {
			URL string `json:"url" doc:"Absolute http(s) URL to open in a background tab."`
		}
	}
	type openURLOutput struct {
		Body pagecontrol.OpenResult
	}
	huma.Register(api, huma.Operation{OperationID: "open-url", Method: http.MethodPost, Path: "/api/v1/pages/open", Summary: "Open a URL in a background tab", Tags: []string{"Pages"}},
		func(ctx context.Context, input *openURLInput) (*openURLOutput, error) {
			result, err := svc.OpenURL(ctx, input.Body.URL)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &openURLOutput{}
			out.Body = result
			return out, nil
		})
}
