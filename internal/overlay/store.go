package overlay

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// persistDelay is the trailing-edge debounce for storage writes: a burst of
// geometry changes produces exactly one write, 500ms after the burst ends.
const persistDelay = 500 * time.Millisecond

// Persister loads and saves the persisted overlay subset. The Load second
// return is false when nothing has ever been saved.
type Persister interface {
	LoadOverlayState(ctx context.Context) (PersistedState, bool, error)
	SaveOverlayState(ctx context.Context, st PersistedState) error
}

type stopper interface {
	Stop() bool
}

// Store is the single writer for overlay state. All mutations flow through
// Apply, which clamps, notifies subscribers, and schedules the debounced
// persist. Safe for concurrent use.
type Store struct {
	persister Persister

	mu        sync.Mutex
	inited    bool
	closed    bool
	state     State
	viewport  Viewport
	listeners map[int]func(State)
	nextID    int
	timer     stopper

	// afterFunc is swapped in tests to drive the debounce deterministically.
	afterFunc func(d time.Duration, fn func()) stopper
}

func NewStore(p Persister) *Store {
	return &Store{
		persister: p,
		listeners: make(map[int]func(State)),
		afterFunc: func(d time.Duration, fn func()) stopper { return time.AfterFunc(d, fn) },
	}
}

// Init loads persisted state, or falls back to viewport defaults when
// storage is empty or unavailable. Idempotent: repeated calls only update
// the viewport clamp.
func (s *Store) Init(ctx context.Context, vp Viewport) error {
	s.mu.Lock()
	if s.inited {
		s.mu.Unlock()
		s.SetViewport(vp)
		return nil
	}
	s.inited = true
	s.viewport = vp
	s.mu.Unlock()

	state := DefaultState(vp)
	if s.persister != nil {
		saved, found, err := s.persister.LoadOverlayState(ctx)
		switch {
		case err != nil:
			slog.Warn("overlay state load failed, using defaults", "error", err)
		case found:
			state = clampState(saved.toState(), vp)
		}
	}

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	slog.Info("overlay store initialized", "open", state.Open, "x", state.X, "y", state.Y, "width", state.Width, "height", state.Height)
	return nil
}

// State returns the current overlay state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Apply merges a partial change, clamps, and returns the resulting state.
// A change that results in an identical state neither notifies nor persists.
func (s *Store) Apply(ch Change) State {
	s.mu.Lock()
	prev := s.state
	next := clampState(prev.apply(ch), s.viewport)
	if next == prev {
		s.mu.Unlock()
		return prev
	}
	s.state = next
	listeners := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	// Only open/x/y signal a write. A pure size change rides along with the
	// next positional write; in practice resizes move x anyway because the
	// right edge stays pinned.
	schedule := next.Open != prev.Open || next.X != prev.X || next.Y != prev.Y
	s.mu.Unlock()

	for _, fn := range listeners {
		notifyListener(fn, next)
	}
	if schedule {
		s.schedulePersist()
	}
	return next
}

func (s *Store) SetOpen(open bool) State {
	return s.Apply(Change{Open: &open})
}

func (s *Store) SetMinimized(min bool) State {
	return s.Apply(Change{Minimized: &min})
}

func (s *Store) SetLayout(mode LayoutMode) State {
	return s.Apply(Change{Layout: &mode})
}

// Toggle restores a minimized panel instead of closing it; a second toggle
// then closes. Closed panels simply open.
func (s *Store) Toggle() State {
	s.mu.Lock()
	cur := s.state
	s.mu.Unlock()

	if cur.Open && cur.Minimized {
		return s.SetMinimized(false)
	}
	return s.SetOpen(!cur.Open)
}

func (s *Store) SetPosition(x, y int) State {
	return s.Apply(Change{X: &x, Y: &y})
}

func (s *Store) SetSize(width, height int) State {
	return s.Apply(Change{Width: &width, Height: &height})
}

// SetViewport re-clamps against new window dimensions, e.g. after a resize
// or a navigation to a differently-sized window.
func (s *Store) SetViewport(vp Viewport) State {
	s.mu.Lock()
	s.viewport = vp
	s.mu.Unlock()
	return s.Apply(Change{})
}

// Viewport returns the last viewport the store clamped against.
func (s *Store) Viewport() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// Subscribe registers a listener called with each new state. A panicking
// listener is logged and skipped; it never takes down its siblings or the
// store. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Close stops the pending persist timer. A write still in the debounce
// window is dropped; overlay geometry is cheap to lose.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Store) schedulePersist() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.persister == nil {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.afterFunc(persistDelay, s.persistNow)
}

func (s *Store) persistNow() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	snapshot := s.state.persisted()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.persister.SaveOverlayState(ctx, snapshot); err != nil {
		slog.Warn("overlay state persist failed", "error", err)
		return
	}
	slog.Debug("overlay state persisted", "open", snapshot.Open, "x", snapshot.X, "y", snapshot.Y)
}

func notifyListener(fn func(State), st State) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("overlay listener panicked", "panic", r)
		}
	}()
	fn(st)
}
