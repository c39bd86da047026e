// Package syncstore is the agent's persisted key-value layer. It mirrors the
// constraints of a synced browser storage area: small per-item payloads and a
// bounded write rate, enforced locally so a substrate outage or a runaway
// caller degrades loudly instead of silently.
package syncstore

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Storage keys. One JSON document per key; partial updates are
// read-modify-write at the record layer.
const (
	KeyOverlayState  = "overlay_state"
	KeyPinnedOrders  = "pinned_orders"
	KeyMarketHistory = "market_history"
	KeyBasket        = "basket"
)

// Quota limits, matching synced-storage semantics: items stay small and
// writes are rationed per hour.
const (
	MaxItemBytes     = 8192
	MaxWritesPerHour = 1800
)

var (
	// ErrUnavailable means the substrate cannot be reached. Callers are
	// expected to keep working from in-memory state.
	ErrUnavailable = errors.New("syncstore: storage unavailable")

	// ErrQuotaExceeded means an item or the write budget is over limit.
	// The write is dropped, never truncated.
	ErrQuotaExceeded = errors.New("syncstore: quota exceeded")
)

// KV is a minimal persisted byte store. Get's second return is false when
// the key has never been set.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryKV is an in-process KV used in tests and as the degraded fallback
// when no substrate is configured.
type MemoryKV struct {
	mu    sync.Mutex
	items map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{items: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.items[key] = cp
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// QuotaKV decorates a substrate with the item-size and write-rate limits.
// The write budget is a fixed window: the counter resets an hour after the
// first write of the window.
type QuotaKV struct {
	inner KV

	mu          sync.Mutex
	writeCount  int
	windowStart time.Time

	now func() time.Time
}

func NewQuotaKV(inner KV) *QuotaKV {
	return &QuotaKV{inner: inner, now: time.Now}
}

func (q *QuotaKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return q.inner.Get(ctx, key)
}

func (q *QuotaKV) Set(ctx context.Context, key string, value []byte) error {
	if len(value) > MaxItemBytes {
		return ErrQuotaExceeded
	}
	if err := q.consumeWrite(); err != nil {
		return err
	}
	return q.inner.Set(ctx, key, value)
}

func (q *QuotaKV) Delete(ctx context.Context, key string) error {
	if err := q.consumeWrite(); err != nil {
		return err
	}
	return q.inner.Delete(ctx, key)
}

func (q *QuotaKV) consumeWrite() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	if q.windowStart.IsZero() || now.Sub(q.windowStart) >= time.Hour {
		q.windowStart = now
		q.writeCount = 0
	}
	if q.writeCount >= MaxWritesPerHour {
		return ErrQuotaExceeded
	}
	q.writeCount++
	return nil
}
