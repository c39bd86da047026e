package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/pm_agent/internal/metrics"
	"github.com/dgnsrekt/pm_agent/internal/overlay"
	"github.com/dgnsrekt/pm_agent/internal/pagecontrol"
	"github.com/dgnsrekt/pm_agent/internal/recommend"
	"github.com/dgnsrekt/pm_agent/internal/scrape"
	"github.com/dgnsrekt/pm_agent/internal/syncstore"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Service interface {
	ListPages(ctx context.Context) ([]pagecontrol.PageInfo, error)
	GetMarket(ctx context.Context, marketID string) (scrape.CurrentMarket, error)
	OpenURL(ctx context.Context, rawURL string) (pagecontrol.OpenResult, error)
	OverlayState(ctx context.Context) (overlay.State, error)
	ApplyOverlayChange(ctx context.Context, ch overlay.Change) (overlay.State, error)
	ToggleOverlay(ctx context.Context) (overlay.State, error)
	History(ctx context.Context) ([]syncstore.MarketHistoryItem, error)
	ClearHistory(ctx context.Context) error
	Pinned(ctx context.Context) ([]syncstore.PinnedOrder, error)
	Pin(ctx context.Context, order syncstore.PinnedOrder) (syncstore.PinnedOrder, error)
	Unpin(ctx context.Context, id string) error
	ReorderPinned(ctx context.Context, ids []string) ([]syncstore.PinnedOrder, error)
	Basket(ctx context.Context) ([]syncstore.BasketLeg, error)
	AddBasketLeg(ctx context.Context, leg syncstore.BasketLeg) (bool, error)
	MarkBasketLegVisited(ctx context.Context, id string) (bool, error)
	RemoveBasketLeg(ctx context.Context, id string) error
	ClearBasket(ctx context.Context) error
	Recommend(ctx context.Context, req recommend.Request) (recommend.Response, error)
	LatestRecommendation(ctx context.Context) (recommend.Response, bool, error)
	Similar(ctx context.Context, title string, useCosine bool, minSimilarity float64) ([]recommend.Market, error)
	Related(ctx context.Context, marketID, title string, limit int) ([]recommend.Market, error)
	Trending(ctx context.Context, category string, limit int) ([]recommend.Market, error)
	Tags(ctx context.Context) ([]string, error)
	News(ctx context.Context, question string) (recommend.News, error)
}

type marketIDInput struct {
	MarketID string `path:"market_id"`
}

type overlayStateOutput struct {
	Body overlay.State
}

// NewServer builds the control API router. met may be nil; when set its
// handler is mounted at /metrics and every request is counted.
func NewServer(svc Service, met *metrics.Metrics) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(met))
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("PM Agent Control API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	if met != nil {
		router.Method(http.MethodGet, "/metrics", met.Handler())
	}

	registerPageHandlers(api, svc)
	registerOverlayHandlers(api, svc)
	registerRecordHandlers(api, svc)
	registerRecommendHandlers(api, svc)
	registerMiscHandlers(api, svc)

	return router
}

// requestLogger logs every request and, when met is non-nil, counts it by
// method and status.
func requestLogger(met *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if met != nil {
				met.HTTPRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Inc()
			}
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *pagecontrol.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case pagecontrol.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case pagecontrol.CodePageNotFound:
			return huma.Error404NotFound(coded.Message)
		case pagecontrol.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case pagecontrol.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	switch {
	case errors.Is(err, syncstore.ErrQuotaExceeded):
		return huma.Error429TooManyRequests(err.Error())
	case errors.Is(err, syncstore.ErrUnavailable):
		return huma.Error502BadGateway(err.Error())
	case errors.Is(err, recommend.ErrSuperseded):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, recommend.ErrUnavailable), errors.Is(err, recommend.ErrMalformed):
		return huma.Error502BadGateway(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}
