package syncstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/pm_agent/internal/overlay"
)

// HistoryLimit caps the market history record. Oldest entries fall off.
const HistoryLimit = 50

// MarketHistoryItem is one visited market. History is most-recent-first and
// deduplicated by URL.
type MarketHistoryItem struct {
	Title    string    `json:"title"`
	URL      string    `json:"url"`
	ViewedAt time.Time `json:"viewed_at"`
}

// PinnedOrder is a market the user pinned for later. Order in the slice is
// the user's chosen display order.
type PinnedOrder struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	URL      string    `json:"url"`
	Side     string    `json:"side,omitempty"`
	Amount   float64   `json:"amount,omitempty"`
	Note     string    `json:"note,omitempty"`
	PinnedAt time.Time `json:"pinned_at"`
}

// BasketLeg is one leg of the draft trade basket. Visited marks legs whose
// market page the user has opened since adding them.
type BasketLeg struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Side    string  `json:"side"`
	Amount  float64 `json:"amount,omitempty"`
	Visited bool    `json:"visited,omitempty"`
}

// Records layers typed accessors over a KV. Read-modify-write sequences are
// serialized by an in-process mutex; cross-process writers remain
// last-write-wins, the same as a synced storage area.
type Records struct {
	kv KV

	mu  sync.Mutex
	now func() time.Time
}

func NewRecords(kv KV) *Records {
	return &Records{kv: kv, now: time.Now}
}

func (r *Records) load(ctx context.Context, key string, out any) (bool, error) {
	raw, found, err := r.kv.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("syncstore: corrupt record %q: %w", key, err)
	}
	return true, nil
}

func (r *Records) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("syncstore: encode record %q: %w", key, err)
	}
	return r.kv.Set(ctx, key, raw)
}

// LoadOverlayState and SaveOverlayState satisfy overlay.Persister.

func (r *Records) LoadOverlayState(ctx context.Context) (overlay.PersistedState, bool, error) {
	var st overlay.PersistedState
	found, err := r.load(ctx, KeyOverlayState, &st)
	return st, found, err
}

func (r *Records) SaveOverlayState(ctx context.Context, st overlay.PersistedState) error {
	return r.save(ctx, KeyOverlayState, st)
}

// History returns visited markets, most recent first.
func (r *Records) History(ctx context.Context) ([]MarketHistoryItem, error) {
	var items []MarketHistoryItem
	if _, err := r.load(ctx, KeyMarketHistory, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// AddHistory prepends a visit, dropping any earlier entry with the same URL
// and trimming to HistoryLimit.
func (r *Records) AddHistory(ctx context.Context, item MarketHistoryItem) error {
	if item.URL == "" {
		return fmt.Errorf("syncstore: history item requires a URL")
	}
	if item.ViewedAt.IsZero() {
		item.ViewedAt = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	items, err := r.History(ctx)
	if err != nil {
		return err
	}
	next := make([]MarketHistoryItem, 0, len(items)+1)
	next = append(next, item)
	for _, it := range items {
		if it.URL == item.URL {
			continue
		}
		next = append(next, it)
	}
	if len(next) > HistoryLimit {
		next = next[:HistoryLimit]
	}
	return r.save(ctx, KeyMarketHistory, next)
}

// ClearHistory drops all visited-market entries.
func (r *Records) ClearHistory(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(ctx, KeyMarketHistory, []MarketHistoryItem{})
}

// Pinned returns pinned orders in display order.
func (r *Records) Pinned(ctx context.Context) ([]PinnedOrder, error) {
	var orders []PinnedOrder
	if _, err := r.load(ctx, KeyPinnedOrders, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Pin appends an order. A missing ID is assigned, a missing timestamp
// stamped. Pinning a URL twice is allowed; pins are distinct bookmarks.
func (r *Records) Pin(ctx context.Context, order PinnedOrder) (PinnedOrder, error) {
	if order.Title == "" || order.URL == "" {
		return PinnedOrder{}, fmt.Errorf("syncstore: pinned order requires title and URL")
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.PinnedAt.IsZero() {
		order.PinnedAt = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	orders, err := r.Pinned(ctx)
	if err != nil {
		return PinnedOrder{}, err
	}
	orders = append(orders, order)
	if err := r.save(ctx, KeyPinnedOrders, orders); err != nil {
		return PinnedOrder{}, err
	}
	return order, nil
}

// Unpin removes an order by ID. Removing an absent ID is a no-op.
func (r *Records) Unpin(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	orders, err := r.Pinned(ctx)
	if err != nil {
		return err
	}
	next := orders[:0]
	for _, o := range orders {
		if o.ID != id {
			next = append(next, o)
		}
	}
	if len(next) == len(orders) {
		return nil
	}
	return r.save(ctx, KeyPinnedOrders, next)
}

// ReorderPinned applies a new display order. IDs absent from the list keep
// their relative order after the listed ones; unknown IDs are ignored.
func (r *Records) ReorderPinned(ctx context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	orders, err := r.Pinned(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]PinnedOrder, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}

	next := make([]PinnedOrder, 0, len(orders))
	taken := make(map[string]bool, len(ids))
	for _, id := range ids {
		if o, ok := byID[id]; ok && !taken[id] {
			next = append(next, o)
			taken[id] = true
		}
	}
	for _, o := range orders {
		if !taken[o.ID] {
			next = append(next, o)
		}
	}
	return r.save(ctx, KeyPinnedOrders, next)
}

// Basket returns the draft basket legs.
func (r *Records) Basket(ctx context.Context) ([]BasketLeg, error) {
	var legs []BasketLeg
	if _, err := r.load(ctx, KeyBasket, &legs); err != nil {
		return nil, err
	}
	return legs, nil
}

// AddLeg appends a leg unless one with the same ID already exists. The bool
// reports whether the basket changed.
func (r *Records) AddLeg(ctx context.Context, leg BasketLeg) (bool, error) {
	if leg.Title == "" || leg.URL == "" {
		return false, fmt.Errorf("syncstore: basket leg requires title and URL")
	}
	if leg.ID == "" {
		leg.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	legs, err := r.Basket(ctx)
	if err != nil {
		return false, err
	}
	for _, l := range legs {
		if l.ID == leg.ID {
			return false, nil
		}
	}
	legs = append(legs, leg)
	if err := r.save(ctx, KeyBasket, legs); err != nil {
		return false, err
	}
	return true, nil
}

// MarkLegVisited flags a leg as visited. Unknown IDs are a no-op; the bool
// reports whether anything changed.
func (r *Records) MarkLegVisited(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	legs, err := r.Basket(ctx)
	if err != nil {
		return false, err
	}
	for i := range legs {
		if legs[i].ID == id && !legs[i].Visited {
			legs[i].Visited = true
			return true, r.save(ctx, KeyBasket, legs)
		}
	}
	return false, nil
}

// RemoveLeg drops a leg by ID. Absent IDs are a no-op.
func (r *Records) RemoveLeg(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	legs, err := r.Basket(ctx)
	if err != nil {
		return err
	}
	next := legs[:0]
	for _, l := range legs {
		if l.ID != id {
			next = append(next, l)
		}
	}
	if len(next) == len(legs) {
		return nil
	}
	return r.save(ctx, KeyBasket, next)
}

// ClearBasket empties the basket.
func (r *Records) ClearBasket(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.kv.Delete(ctx, KeyBasket)
}
