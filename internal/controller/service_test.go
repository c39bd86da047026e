package controller

import (
	"context"
	"errors"
	"testing"

	"github.com/dgnsrekt/pm_agent/internal/overlay"
	"github.com/dgnsrekt/pm_agent/internal/pagecontrol"
	"github.com/dgnsrekt/pm_agent/internal/recommend"
	"github.com/dgnsrekt/pm_agent/internal/scrape"
	"github.com/dgnsrekt/pm_agent/internal/syncstore"
)

type fakeDriver struct {
	opened []string
}

func (f *fakeDriver) ListPages(context.Context) ([]pagecontrol.PageInfo, error) {
	return []pagecontrol.PageInfo{{MarketID: "btc-100k"}}, nil
}

func (f *fakeDriver) ScrapeMarket(_ context.Context, marketID string) (scrape.CurrentMarket, error) {
	return scrape.CurrentMarket{Title: "Will BTC close above 100k?", URL: "https://polymarket.com/event/" + marketID}, nil
}

func (f *fakeDriver) OpenBackgroundTab(_ context.Context, url string) (string, error) {
	f.opened = append(f.opened, url)
	return "TARGET1", nil
}

type stubBackend struct{}

func (stubBackend) Recommend(context.Context, recommend.Request) (recommend.Response, error) {
	return recommend.Response{}, nil
}
func (stubBackend) Latest() (recommend.Response, bool) { return recommend.Response{}, false }
func (stubBackend) Similar(context.Context, string, bool, float64) ([]recommend.Market, error) {
	return nil, nil
}
func (stubBackend) Related(context.Context, string, string, int) ([]recommend.Market, error) {
	return nil, nil
}
func (stubBackend) Trending(context.Context, string, int) ([]recommend.Market, error) {
	return nil, nil
}
func (stubBackend) Tags(context.Context) ([]string, error)       { return nil, nil }
func (stubBackend) News(context.Context, string) (recommend.News, error) {
	return recommend.News{}, nil
}

func newTestService(t *testing.T) (*Service, *fakeDriver) {
	t.Helper()
	driver := &fakeDriver{}
	records := syncstore.NewRecords(syncstore.NewMemoryKV())
	store := overlay.NewStore(records)
	t.Cleanup(store.Close)
	if err := store.Init(context.Background(), overlay.Viewport{Width: 1920, Height: 1080}); err != nil {
		t.Fatal(err)
	}
	return NewService(driver, store, records, stubBackend{}), driver
}

func TestOpenURLSchemeValidation(t *testing.T) {
	svc, driver := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		url         string
		wantSuccess bool
	}{
		{"https", "https://polymarket.com/event/btc", true},
		{"http", "http://example.com/page", true},
		{"javascript", "javascript:alert(1)", false},
		{"chrome", "chrome://settings", false},
		{"file", "file:///etc/passwd", false},
		{"schemeless", "polymarket.com/event/btc", false},
		{"relative", "/event/btc", false},
		{"empty", "  ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.OpenURL(ctx, tt.url)
			if err != nil {
				t.Fatalf("OpenURL(%q): %v", tt.url, err)
			}
			if result.Success != tt.wantSuccess {
				t.Fatalf("OpenURL(%q) = %+v, want success=%v", tt.url, result, tt.wantSuccess)
			}
			if !tt.wantSuccess && result.Reason == "" {
				t.Error("rejection carries no reason")
			}
			if tt.wantSuccess && result.TargetID != "TARGET1" {
				t.Errorf("result = %+v", result)
			}
		})
	}

	// Only the two http(s) URLs ever reached the browser.
	if len(driver.opened) != 2 {
		t.Errorf("opened %d tabs, want 2", len(driver.opened))
	}
}

func TestToggleOverlayThroughService(t *testing.T) {
	svc, _ := newTestService(t)
	st, err := svc.ToggleOverlay(context.Background())
	if err != nil || !st.Open {
		t.Fatalf("toggle: %+v err=%v", st, err)
	}
}

func TestPinValidation(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Pin(context.Background(), syncstore.PinnedOrder{Title: "no url"})
	var coded *pagecontrol.CodedError
	if !errors.As(err, &coded) || coded.Code != pagecontrol.CodeValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestRelatedRequiresMarketOrTitle(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Related(context.Background(), "", " ", 10)
	var coded *pagecontrol.CodedError
	if !errors.As(err, &coded) || coded.Code != pagecontrol.CodeValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
	if _, err := svc.Related(context.Background(), "btc-100k", "", 10); err != nil {
		t.Fatalf("related by market id: %v", err)
	}
}

func TestGetMarketRequiresID(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.GetMarket(context.Background(), " "); err == nil {
		t.Fatal("want validation error for empty market id")
	}
}
