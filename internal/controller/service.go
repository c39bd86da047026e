// Package controller wraps the agent's subsystems behind the surface the
// control API exposes. Validation lives here; transport mapping lives in api.
package controller

import (
	"context"
	"net/url"
	"strings"

	"github.com/dgnsrekt/pm_agent/internal/overlay"
	"github.com/dgnsrekt/pm_agent/internal/pagecontrol"
	"github.com/dgnsrekt/pm_agent/internal/recommend"
	"github.com/dgnsrekt/pm_agent/internal/scrape"
	"github.com/dgnsrekt/pm_agent/internal/syncstore"
)

// PageDriver is the slice of the page controller the service needs.
type PageDriver interface {
	ListPages(ctx context.Context) ([]pagecontrol.PageInfo, error)
	ScrapeMarket(ctx context.Context, marketID string) (scrape.CurrentMarket, error)
	OpenBackgroundTab(ctx context.Context, url string) (string, error)
}

// Backend is the slice of the recommendation client the service needs.
type Backend interface {
	Recommend(ctx context.Context, req recommend.Request) (recommend.Response, error)
	Latest() (recommend.Response, bool)
	Similar(ctx context.Context, title string, useCosine bool, minSimilarity float64) ([]recommend.Market, error)
	Related(ctx context.Context, marketID, title string, limit int) ([]recommend.Market, error)
	Trending(ctx context.Context, category string, limit int) ([]recommend.Market, error)
	Tags(ctx context.Context) ([]string, error)
	News(ctx context.Context, question string) (recommend.News, error)
}

// Service is the control API's backing implementation.
type Service struct {
	pages   PageDriver
	store   *overlay.Store
	records *syncstore.Records
	backend Backend
}

func NewService(pages PageDriver, store *overlay.Store, records *syncstore.Records, backend Backend) *Service {
	return &Service{pages: pages, store: store, records: records, backend: backend}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &pagecontrol.CodedError{Code: pagecontrol.CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

// Pages

func (s *Service) ListPages(ctx context.Context) ([]pagecontrol.PageInfo, error) {
	return s.pages.ListPages(ctx)
}

func (s *Service) GetMarket(ctx context.Context, marketID string) (scrape.CurrentMarket, error) {
	if err := s.requireNonEmpty(marketID, "market_id"); err != nil {
		return scrape.CurrentMarket{}, err
	}
	return s.pages.ScrapeMarket(ctx, strings.TrimSpace(marketID))
}

// OpenURL opens a link in a background tab. Only http and https pass; the
// page can hand us arbitrary strings and a javascript: URL must never reach
// the browser. A rejected scheme is not a transport error: the caller gets
// success=false and a reason, so the result always carries the verdict.
func (s *Service) OpenURL(ctx context.Context, rawURL string) (pagecontrol.OpenResult, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return pagecontrol.OpenResult{Success: false, Reason: "only absolute http(s) URLs can be opened"}, nil
	}
	targetID, err := s.pages.OpenBackgroundTab(ctx, parsed.String())
	if err != nil {
		return pagecontrol.OpenResult{}, err
	}
	return pagecontrol.OpenResult{Success: true, TargetID: targetID}, nil
}

// Overlay

func (s *Service) OverlayState(ctx context.Context) (overlay.State, error) {
	return s.store.State(), nil
}

func (s *Service) ApplyOverlayChange(ctx context.Context, ch overlay.Change) (overlay.State, error) {
	return s.store.Apply(ch), nil
}

func (s *Service) ToggleOverlay(ctx context.Context) (overlay.State, error) {
	return s.store.Toggle(), nil
}

// Records

func (s *Service) History(ctx context.Context) ([]syncstore.MarketHistoryItem, error) {
	return s.records.History(ctx)
}

func (s *Service) ClearHistory(ctx context.Context) error {
	return s.records.ClearHistory(ctx)
}

func (s *Service) Pinned(ctx context.Context) ([]syncstore.PinnedOrder, error) {
	return s.records.Pinned(ctx)
}

func (s *Service) Pin(ctx context.Context, order syncstore.PinnedOrder) (syncstore.PinnedOrder, error) {
	if err := s.requireNonEmpty(order.Title, "title"); err != nil {
		return syncstore.PinnedOrder{}, err
	}
	if err := s.requireNonEmpty(order.URL, "url"); err != nil {
		return syncstore.PinnedOrder{}, err
	}
	return s.records.Pin(ctx, order)
}

func (s *Service) Unpin(ctx context.Context, id string) error {
	if err := s.requireNonEmpty(id, "id"); err != nil {
		return err
	}
	return s.records.Unpin(ctx, strings.TrimSpace(id))
}

func (s *Service) ReorderPinned(ctx context.Context, ids []string) ([]syncstore.PinnedOrder, error) {
	if err := s.records.ReorderPinned(ctx, ids); err != nil {
		return nil, err
	}
	return s.records.Pinned(ctx)
}

func (s *Service) Basket(ctx context.Context) ([]syncstore.BasketLeg, error) {
	return s.records.Basket(ctx)
}

func (s *Service) AddBasketLeg(ctx context.Context, leg syncstore.BasketLeg) (bool, error) {
	if err := s.requireNonEmpty(leg.Title, "title"); err != nil {
		return false, err
	}
	if err := s.requireNonEmpty(leg.URL, "url"); err != nil {
		return false, err
	}
	return s.records.AddLeg(ctx, leg)
}

func (s *Service) MarkBasketLegVisited(ctx context.Context, id string) (bool, error) {
	if err := s.requireNonEmpty(id, "id"); err != nil {
		return false, err
	}
	return s.records.MarkLegVisited(ctx, strings.TrimSpace(id))
}

func (s *Service) RemoveBasketLeg(ctx context.Context, id string) error {
	if err := s.requireNonEmpty(id, "id"); err != nil {
		return err
	}
	return s.records.RemoveLeg(ctx, strings.TrimSpace(id))
}

func (s *Service) ClearBasket(ctx context.Context) error {
	return s.records.ClearBasket(ctx)
}

// Backend passthroughs

func (s *Service) Recommend(ctx context.Context, req recommend.Request) (recommend.Response, error) {
	if err := s.requireNonEmpty(req.Primary.URL, "primary.url"); err != nil {
		return recommend.Response{}, err
	}
	return s.backend.Recommend(ctx, req)
}

// LatestRecommendation returns the last winning recommendation, if any.
func (s *Service) LatestRecommendation(ctx context.Context) (recommend.Response, bool, error) {
	resp, ok := s.backend.Latest()
	return resp, ok, nil
}

func (s *Service) Similar(ctx context.Context, title string, useCosine bool, minSimilarity float64) ([]recommend.Market, error) {
	if err := s.requireNonEmpty(title, "event_title"); err != nil {
		return nil, err
	}
	return s.backend.Similar(ctx, title, useCosine, minSimilarity)
}

// Related needs a market id or an event title; either one identifies the
// market to relate against.
func (s *Service) Related(ctx context.Context, marketID, title string, limit int) ([]recommend.Market, error) {
	if strings.TrimSpace(marketID) == "" && strings.TrimSpace(title) == "" {
		return nil, &pagecontrol.CodedError{Code: pagecontrol.CodeValidation, Message: "market_id or event_title is required"}
	}
	return s.backend.Related(ctx, strings.TrimSpace(marketID), strings.TrimSpace(title), limit)
}

func (s *Service) Trending(ctx context.Context, category string, limit int) ([]recommend.Market, error) {
	return s.backend.Trending(ctx, category, limit)
}

func (s *Service) Tags(ctx context.Context) ([]string, error) {
	return s.backend.Tags(ctx)
}

func (s *Service) News(ctx context.Context, question string) (recommend.News, error) {
	if err := s.requireNonEmpty(question, "question"); err != nil {
		return recommend.News{}, err
	}
	return s.backend.News(ctx, question)
}
