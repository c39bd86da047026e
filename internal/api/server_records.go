package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/pm_agent/internal/syncstore"
)

func registerRecordHandlers(api huma.API, svc Service) {
	type historyOutput struct {
		Body struct {
			Items []syncstore.MarketHistoryItem `json:"items"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "get-history", Method: http.MethodGet, Path: "/api/v1/history", Summary: "List recently viewed markets", Tags: []string{"Records"}},
		func(ctx context.Context, input *struct{}) (*historyOutput, error) {
			items, err := svc.History(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &historyOutput{}
			out.Body.Items = items
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "clear-history", Method: http.MethodDelete, Path: "/api/v1/history", Summary: "Clear the visited-market history", Tags: []string{"Records"}},
		func(ctx context.Context, input *struct{}) (*struct{}, error) {
			if err := svc.ClearHistory(ctx); err != nil {
				return nil, mapErr(err)
			}
			return &struct{}{}, nil
		})

	type pinnedOutput struct {
		Body struct {
			Orders []syncstore.PinnedOrder `json:"orders"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-pinned", Method: http.MethodGet, Path: "/api/v1/pinned", Summary: "List pinned orders", Tags: []string{"Records"}},
		func(ctx context.Context, input *struct{}) (*pinnedOutput, error) {
			orders, err := svc.Pinned(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &pinnedOutput{}
			out.Body.Orders = orders
			return out, nil
		})

	type pinInput struct {
		Body struct {
			Title  string  `json:"title"`
			URL    string  `json:"url"`
			Side   string  `json:"side,omitempty"`
			Amount float64 `json:"amount,omitempty"`
			Note   string  `json:"note,omitempty"`
		}
	}
	type pinOutput struct {
		Body syncstore.PinnedOrder
	}
	huma.Register(api, huma.Operation{OperationID: "pin-order", Method: http.MethodPost, Path: "/api/v1/pinned", Summary: "Pin an order", Tags: []string{"Records"}},
		func(ctx context.Context, input *pinInput) (*pinOutput, error) {
			order, err := svc.Pin(ctx, syncstore.PinnedOrder{
				Title:  input.Body.Title,
				URL:    input.Body.URL,
				Side:   input.Body.Side,
				Amount: input.Body.Amount,
				Note:   input.Body.Note,
			})
			if err != nil {
				return nil, mapErr(err)
			}
			out := &pinOutput{}
			out.Body = order
			return out, nil
		})

	type idInput struct {
		ID string `path:"id"`
	}
	huma.Register(api, huma.Operation{OperationID: "unpin-order", Method: http.MethodDelete, Path: "/api/v1/pinned/{id}", Summary: "Unpin an order", Tags: []string{"Records"}},
		func(ctx context.Context, input *idInput) (*struct{}, error) {
			if err := svc.Unpin(ctx, input.ID); err != nil {
				return nil, mapErr(err)
			}
			return &struct{}{}, nil
		})

	type reorderInput struct {
		Body struct {
			IDs []string `json:"ids" doc:"Pinned order IDs in the desired display order."`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "reorder-pinned", Method: http.MethodPut, Path: "/api/v1/pinned/order", Summary: "Reorder pinned orders", Tags: []string{"Records"}},
		func(ctx context.Context, input *reorderInput) (*pinnedOutput, error) {
			orders, err := svc.ReorderPinned(ctx, input.Body.IDs)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &pinnedOutput{}
			out.Body.Orders = orders
			return out, nil
		})

	type basketOutput struct {
		Body struct {
			Legs []syncstore.BasketLeg `json:"legs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "get-basket", Method: http.MethodGet, Path: "/api/v1/basket", Summary: "List basket legs", Tags: []string{"Records"}},
		func(ctx context.Context, input *struct{}) (*basketOutput, error) {
			legs, err := svc.Basket(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &basketOutput{}
			out.Body.Legs = legs
			return out, nil
		})

	type legInput struct {
		Body struct {
			Title  string  `json:"title"`
			URL    string  `json:"url"`
			Side   string  `json:"side,omitempty"`
			Amount float64 `json:"amount,omitempty"`
		}
	}
	type legOutput struct {
		Body struct {
			Added bool `json:"added"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "add-basket-leg", Method: http.MethodPost, Path: "/api/v1/basket", Summary: "Add a leg to the basket", Tags: []string{"Records"}},
		func(ctx context.Context, input *legInput) (*legOutput, error) {
			added, err := svc.AddBasketLeg(ctx, syncstore.BasketLeg{
				Title:  input.Body.Title,
				URL:    input.Body.URL,
				Side:   input.Body.Side,
				Amount: input.Body.Amount,
			})
			if err != nil {
				return nil, mapErr(err)
			}
			out := &legOutput{}
			out.Body.Added = added
			return out, nil
		})

	type visitedOutput struct {
		Body struct {
			Changed bool `json:"changed"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "visit-basket-leg", Method: http.MethodPost, Path: "/api/v1/basket/{id}/visited", Summary: "Mark a basket leg's market as visited", Tags: []string{"Records"}},
		func(ctx context.Context, input *idInput) (*visitedOutput, error) {
			changed, err := svc.MarkBasketLegVisited(ctx, input.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &visitedOutput{}
			out.Body.Changed = changed
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "remove-basket-leg", Method: http.MethodDelete, Path: "/api/v1/basket/{id}", Summary: "Remove a leg from the basket", Tags: []string{"Records"}},
		func(ctx context.Context, input *idInput) (*struct{}, error) {
			if err := svc.RemoveBasketLeg(ctx, input.ID); err != nil {
				return nil, mapErr(err)
			}
			return &struct{}{}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "clear-basket", Method: http.MethodDelete, Path: "/api/v1/basket", Summary: "Clear the basket", Tags: []string{"Records"}},
		func(ctx context.Context, input *struct{}) (*struct{}, error) {
			if err := svc.ClearBasket(ctx); err != nil {
				return nil, mapErr(err)
			}
			return &struct{}{}, nil
		})
}
