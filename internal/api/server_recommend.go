package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/pm_agent/internal/recommend"
)

func registerRecommendHandlers(api huma.API, svc Service) {
	type recommendInput struct {
		Body recommend.Request
	}
	type recommendOutput struct {
		Body recommend.Response
	}
	huma.Register(api, huma.Operation{OperationID: "recommend", Method: http.MethodPost, Path: "/api/v1/recommend", Summary: "Request a recommendation for a market", Tags: []string{"Assistant"}},
		func(ctx context.Context, input *recommendInput) (*recommendOutput, error) {
			resp, err := svc.Recommend(ctx, input.Body)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &recommendOutput{}
			out.Body = resp
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "latest-recommendation", Method: http.MethodGet, Path: "/api/v1/recommend/latest", Summary: "Get the most recent recommendation", Tags: []string{"Assistant"}},
		func(ctx context.Context, input *struct{}) (*recommendOutput, error) {
			resp, ok, err := svc.LatestRecommendation(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			if !ok {
				return nil, huma.Error404NotFound("no recommendation yet")
			}
			out := &recommendOutput{}
			out.Body = resp
			return out, nil
		})

	type marketsOutput struct {
		Body struct {
			Markets []recommend.Market `json:"markets"`
		}
	}

	type similarInput struct {
		Title         string  `query:"event_title" doc:"Market event title to match against."`
		UseCosine     bool    `query:"use_cosine" default:"true" doc:"Use cosine similarity instead of keyword matching."`
		MinSimilarity float64 `query:"min_similarity" default:"0.5" doc:"Minimum similarity score to include."`
	}
	huma.Register(api, huma.Operation{OperationID: "similar-markets", Method: http.MethodGet, Path: "/api/v1/markets/similar", Summary: "Find markets similar to an event", Tags: []string{"Assistant"}},
		func(ctx context.Context, input *similarInput) (*marketsOutput, error) {
			markets, err := svc.Similar(ctx, input.Title, input.UseCosine, input.MinSimilarity)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &marketsOutput{}
			out.Body.Markets = markets
			return out, nil
		})

	type relatedInput struct {
		MarketID string `query:"market_id" doc:"Market to find relations for."`
		Title    string `query:"event_title" doc:"Event title to find relations for, when no market id is known."`
		Limit    int    `query:"limit" default:"10"`
	}
	huma.Register(api, huma.Operation{OperationID: "related-markets", Method: http.MethodGet, Path: "/api/v1/markets/related", Summary: "Find markets related to an event", Tags: []string{"Assistant"}},
		func(ctx context.Context, input *relatedInput) (*marketsOutput, error) {
			markets, err := svc.Related(ctx, input.MarketID, input.Title, input.Limit)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &marketsOutput{}
			out.Body.Markets = markets
			return out, nil
		})

	type trendingInput struct {
		Category string `query:"category" doc:"Restrict to a category; empty or \"all\" means every category."`
		Limit    int    `query:"limit" default:"20"`
	}
	huma.Register(api, huma.Operation{OperationID: "trending-markets", Method: http.MethodGet, Path: "/api/v1/markets/trending", Summary: "List trending markets", Tags: []string{"Assistant"}},
		func(ctx context.Context, input *trendingInput) (*marketsOutput, error) {
			markets, err := svc.Trending(ctx, input.Category, input.Limit)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &marketsOutput{}
			out.Body.Markets = markets
			return out, nil
		})

	type tagsOutput struct {
		Body struct {
			Tags []string `json:"tags"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "market-tags", Method: http.MethodGet, Path: "/api/v1/markets/tags", Summary: "List known topic tags", Tags: []string{"Assistant"}},
		func(ctx context.Context, input *struct{}) (*tagsOutput, error) {
			tags, err := svc.Tags(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &tagsOutput{}
			out.Body.Tags = tags
			return out, nil
		})

	type newsInput struct {
		Question string `query:"question" doc:"Market question to fetch news for."`
	}
	type newsOutput struct {
		Body recommend.News
	}
	huma.Register(api, huma.Operation{OperationID: "market-news", Method: http.MethodGet, Path: "/api/v1/markets/news", Summary: "Get news for an event", Tags: []string{"Assistant"}},
		func(ctx context.Context, input *newsInput) (*newsOutput, error) {
			news, err := svc.News(ctx, input.Question)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &newsOutput{}
			out.Body = news
			return out, nil
		})
}
