package detect

import (
	"sync"
	"testing"
	"time"
)

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type harness struct {
	mu       sync.Mutex
	d        *Detector
	now      time.Time
	timers   []*fakeTimer
	triggers []Trigger
}

func newTestDetector() *harness {
	h := &harness{now: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)}
	h.d = NewDetector(func(tr Trigger) {
		h.mu.Lock()
		h.triggers = append(h.triggers, tr)
		h.mu.Unlock()
	})
	h.d.now = func() time.Time {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.now
	}
	h.d.afterFunc = func(d time.Duration, fn func()) stopper {
		h.mu.Lock()
		defer h.mu.Unlock()
		t := &fakeTimer{fn: fn}
		h.timers = append(h.timers, t)
		return t
	}
	return h
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	h.now = h.now.Add(d)
	h.mu.Unlock()
}

// fireDwell runs the latest pending dwell timer, as if the dwell elapsed.
func (h *harness) fireDwell() {
	h.mu.Lock()
	var t *fakeTimer
	if len(h.timers) > 0 {
		t = h.timers[len(h.timers)-1]
	}
	h.mu.Unlock()
	if t != nil && !t.stopped {
		t.fn()
	}
}

func (h *harness) got() []Trigger {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Trigger, len(h.triggers))
	copy(out, h.triggers)
	return out
}

func TestHoverFiresAfterDwell(t *testing.T) {
	h := newTestDetector()
	h.d.Hover("Will BTC close above 100k?", "https://polymarket.com/event/btc", "", 0)
	if len(h.got()) != 0 {
		t.Fatal("hover fired before dwell elapsed")
	}
	h.advance(hoverDwell)
	h.fireDwell()

	got := h.got()
	if len(got) != 1 {
		t.Fatalf("triggers = %d, want 1", len(got))
	}
	if got[0].Kind != KindHover || got[0].URL != "https://polymarket.com/event/btc" {
		t.Errorf("trigger = %+v", got[0])
	}
}

func TestHoverEndCancelsDwell(t *testing.T) {
	h := newTestDetector()
	h.d.Hover("Will BTC close above 100k?", "https://polymarket.com/event/btc", "", 0)
	h.d.HoverEnd()
	h.fireDwell()
	if len(h.got()) != 0 {
		t.Error("cancelled hover still fired")
	}
}

func TestNewHoverSupersedesPending(t *testing.T) {
	h := newTestDetector()
	h.d.Hover("First market question here", "https://polymarket.com/event/a", "", 0)
	h.d.Hover("Second market question here", "https://polymarket.com/event/b", "", 0)
	h.advance(hoverDwell)
	h.fireDwell()

	got := h.got()
	if len(got) != 1 {
		t.Fatalf("triggers = %d, want 1", len(got))
	}
	if got[0].URL != "https://polymarket.com/event/b" {
		t.Errorf("fired %q, want the superseding hover", got[0].URL)
	}
	h.mu.Lock()
	firstStopped := h.timers[0].stopped
	h.mu.Unlock()
	if !firstStopped {
		t.Error("superseded dwell timer not stopped")
	}
}

func TestRehoverSameURLDoesNotRestartDwell(t *testing.T) {
	h := newTestDetector()
	h.d.Hover("Same market question here", "https://polymarket.com/event/a", "", 0)
	h.d.Hover("Same market question here", "https://polymarket.com/event/a", "", 0)
	h.mu.Lock()
	n := len(h.timers)
	h.mu.Unlock()
	if n != 1 {
		t.Errorf("timers = %d, want 1 (no restart for same URL)", n)
	}
}

func TestSharedRateLimitFirstWins(t *testing.T) {
	h := newTestDetector()

	// Ticket opens immediately and takes the slot.
	h.d.TicketOpen("Will BTC close above 100k?", "https://polymarket.com/event/btc", "YES", 25)
	if len(h.got()) != 1 {
		t.Fatal("ticket_open did not fire")
	}

	// A hover completing its dwell inside the same second is dropped.
	h.d.Hover("Another market question", "https://polymarket.com/event/other", "", 0)
	h.advance(hoverDwell)
	h.fireDwell()
	if got := h.got(); len(got) != 1 {
		t.Fatalf("triggers = %d, want 1 (hover inside budget window dropped)", len(got))
	}

	// After the budget window, triggers flow again.
	h.advance(time.Second)
	h.d.TicketOpen("Third market question", "https://polymarket.com/event/third", "NO", 0)
	got := h.got()
	if len(got) != 2 {
		t.Fatalf("triggers = %d, want 2", len(got))
	}
	if got[1].Kind != KindTicketOpen || got[1].Side != "NO" {
		t.Errorf("second trigger = %+v", got[1])
	}
}

func TestTriggerCarriesTimestamp(t *testing.T) {
	h := newTestDetector()
	h.d.TicketOpen("Will BTC close above 100k?", "https://polymarket.com/event/btc", "YES", 10)
	got := h.got()
	if len(got) != 1 || !got[0].At.Equal(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("trigger time = %v", got)
	}
}
