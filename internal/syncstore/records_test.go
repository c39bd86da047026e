package syncstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dgnsrekt/pm_agent/internal/overlay"
)

func newTestRecords(t *testing.T) *Records {
	t.Helper()
	r := NewRecords(NewMemoryKV())
	r.now = func() time.Time { return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestOverlayStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newTestRecords(t)

	if _, found, err := r.LoadOverlayState(ctx); err != nil || found {
		t.Fatalf("empty store: found=%v err=%v", found, err)
	}

	want := overlay.PersistedState{Open: true, X: 100, Y: 200, Width: 400, Height: 600}
	if err := r.SaveOverlayState(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, found, err := r.LoadOverlayState(ctx)
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestAddHistoryDedupAndCap(t *testing.T) {
	ctx := context.Background()
	r := newTestRecords(t)

	for i := 0; i < HistoryLimit+10; i++ {
		item := MarketHistoryItem{
			Title: fmt.Sprintf("Market %d", i),
			URL:   fmt.Sprintf("https://polymarket.com/event/m-%d", i),
		}
		if err := r.AddHistory(ctx, item); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	items, err := r.History(ctx)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(items) != HistoryLimit {
		t.Fatalf("len = %d, want %d", len(items), HistoryLimit)
	}
	if items[0].Title != fmt.Sprintf("Market %d", HistoryLimit+9) {
		t.Errorf("head = %q, want most recent", items[0].Title)
	}

	// Revisiting an existing URL moves it to the front without growing.
	revisit := items[len(items)-1]
	if err := r.AddHistory(ctx, revisit); err != nil {
		t.Fatalf("revisit: %v", err)
	}
	items, _ = r.History(ctx)
	if len(items) != HistoryLimit {
		t.Errorf("len after revisit = %d, want %d", len(items), HistoryLimit)
	}
	if items[0].URL != revisit.URL {
		t.Errorf("head = %q, want revisited %q", items[0].URL, revisit.URL)
	}
}

func TestAddHistoryRequiresURL(t *testing.T) {
	r := newTestRecords(t)
	if err := r.AddHistory(context.Background(), MarketHistoryItem{Title: "no url"}); err == nil {
		t.Fatal("want error for missing URL")
	}
}

func TestPinUnpinReorder(t *testing.T) {
	ctx := context.Background()
	r := newTestRecords(t)

	var ids []string
	for _, title := range []string{"first", "second", "third"} {
		o, err := r.Pin(ctx, PinnedOrder{Title: title, URL: "https://polymarket.com/event/" + title})
		if err != nil {
			t.Fatalf("pin %s: %v", title, err)
		}
		if o.ID == "" || o.PinnedAt.IsZero() {
			t.Fatalf("pin %s: id/timestamp not assigned: %+v", title, o)
		}
		ids = append(ids, o.ID)
	}

	if err := r.ReorderPinned(ctx, []string{ids[2], ids[0]}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	orders, _ := r.Pinned(ctx)
	gotTitles := []string{orders[0].Title, orders[1].Title, orders[2].Title}
	wantTitles := []string{"third", "first", "second"}
	for i := range wantTitles {
		if gotTitles[i] != wantTitles[i] {
			t.Fatalf("order = %v, want %v", gotTitles, wantTitles)
		}
	}

	if err := r.Unpin(ctx, ids[0]); err != nil {
		t.Fatalf("unpin: %v", err)
	}
	orders, _ = r.Pinned(ctx)
	if len(orders) != 2 {
		t.Fatalf("len after unpin = %d, want 2", len(orders))
	}
	if err := r.Unpin(ctx, "missing-id"); err != nil {
		t.Errorf("unpin absent id: %v, want nil", err)
	}
}

func TestAddLegIdempotent(t *testing.T) {
	ctx := context.Background()
	r := newTestRecords(t)

	leg := BasketLeg{ID: "leg-1", Title: "Will BTC close above 100k?", URL: "https://polymarket.com/event/btc", Side: "YES", Amount: 25}
	added, err := r.AddLeg(ctx, leg)
	if err != nil || !added {
		t.Fatalf("first add: added=%v err=%v", added, err)
	}
	added, err = r.AddLeg(ctx, leg)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if added {
		t.Error("second add with same id reported added=true")
	}
	legs, _ := r.Basket(ctx)
	if len(legs) != 1 {
		t.Errorf("len = %d, want 1", len(legs))
	}

	if err := r.RemoveLeg(ctx, "leg-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if legs, _ = r.Basket(ctx); len(legs) != 0 {
		t.Errorf("len after remove = %d, want 0", len(legs))
	}
}

func TestClearBasket(t *testing.T) {
	ctx := context.Background()
	r := newTestRecords(t)
	if _, err := r.AddLeg(ctx, BasketLeg{Title: "t1 market question", URL: "https://x/event/a", Side: "NO"}); err != nil {
		t.Fatal(err)
	}
	if err := r.ClearBasket(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if legs, _ := r.Basket(ctx); len(legs) != 0 {
		t.Errorf("basket not empty after clear: %v", legs)
	}
}

func TestCorruptRecordSurfacesError(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	if err := kv.Set(ctx, KeyBasket, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	r := NewRecords(kv)
	if _, err := r.Basket(ctx); err == nil {
		t.Fatal("want error for corrupt record")
	}
}

func TestQuotaRejectsOversizedItem(t *testing.T) {
	ctx := context.Background()
	q := NewQuotaKV(NewMemoryKV())
	big := bytes.Repeat([]byte("x"), MaxItemBytes+1)
	if err := q.Set(ctx, "k", big); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	if err := q.Set(ctx, "k", bytes.Repeat([]byte("x"), MaxItemBytes)); err != nil {
		t.Fatalf("exact-size item rejected: %v", err)
	}
}

func TestQuotaWriteBudgetResetsAfterWindow(t *testing.T) {
	ctx := context.Background()
	q := NewQuotaKV(NewMemoryKV())
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	for i := 0; i < MaxWritesPerHour; i++ {
		if err := q.Set(ctx, "k", []byte("v")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := q.Set(ctx, "k", []byte("v")); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("over-budget write: err = %v, want ErrQuotaExceeded", err)
	}
	// Reads are never rationed.
	if _, _, err := q.Get(ctx, "k"); err != nil {
		t.Fatalf("get during exhausted budget: %v", err)
	}

	now = now.Add(time.Hour)
	if err := q.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("write after window reset: %v", err)
	}
}

type failingKV struct{}

func (failingKV) Get(context.Context, string) ([]byte, bool, error) { return nil, false, ErrUnavailable }
func (failingKV) Set(context.Context, string, []byte) error         { return ErrUnavailable }
func (failingKV) Delete(context.Context, string) error              { return ErrUnavailable }

func TestSubstrateFailurePropagatesAsUnavailable(t *testing.T) {
	r := NewRecords(failingKV{})
	if _, err := r.History(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if err := r.AddHistory(context.Background(), MarketHistoryItem{URL: "https://x/event/a"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestClearHistory(t *testing.T) {
	ctx := context.Background()
	r := newTestRecords(t)

	for i := 0; i < 3; i++ {
		item := MarketHistoryItem{
			Title: fmt.Sprintf("Market %d", i),
			URL:   fmt.Sprintf("https://polymarket.com/event/c-%d", i),
		}
		if err := r.AddHistory(ctx, item); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.ClearHistory(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if items, _ := r.History(ctx); len(items) != 0 {
		t.Errorf("history not empty after clear: %v", items)
	}
}

func TestMarkLegVisited(t *testing.T) {
	ctx := context.Background()
	r := newTestRecords(t)

	leg := BasketLeg{ID: "leg-v", Title: "Will ETH flip BTC?", URL: "https://polymarket.com/event/eth", Side: "YES"}
	if _, err := r.AddLeg(ctx, leg); err != nil {
		t.Fatal(err)
	}

	changed, err := r.MarkLegVisited(ctx, "leg-v")
	if err != nil || !changed {
		t.Fatalf("first mark: changed=%v err=%v", changed, err)
	}
	legs, _ := r.Basket(ctx)
	if len(legs) != 1 || !legs[0].Visited {
		t.Errorf("leg not marked visited: %+v", legs)
	}

	changed, err = r.MarkLegVisited(ctx, "leg-v")
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if changed {
		t.Error("second mark reported changed=true")
	}

	changed, err = r.MarkLegVisited(ctx, "no-such-leg")
	if err != nil || changed {
		t.Errorf("unknown id: changed=%v err=%v", changed, err)
	}
}
