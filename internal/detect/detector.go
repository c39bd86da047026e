// Package detect turns raw page interaction candidates into rationed
// recommendation triggers. The page-side listeners emit every plausible
// hover and ticket-open; the policy lives here so it is testable without a
// browser: hovers must dwell before they count, and one trigger per second
// crosses the wire regardless of kind.
package detect

import (
	"log/slog"
	"sync"
	"time"
)

// Trigger kinds.
const (
	KindHover      = "hover"
	KindTicketOpen = "ticket_open"
)

const (
	// hoverDwell is how long a hover must persist before it triggers.
	hoverDwell = 250 * time.Millisecond

	// triggerInterval is the shared budget across both kinds: whichever
	// trigger fires first wins the slot, the loser is dropped silently.
	triggerInterval = time.Second
)

// Trigger is one rationed interaction the rest of the agent may act on.
type Trigger struct {
	Kind   string
	Title  string
	URL    string
	Side   string
	Amount float64
	At     time.Time
}

type stopper interface {
	Stop() bool
}

// Detector applies the dwell and rate policies. Safe for concurrent use.
type Detector struct {
	emit func(Trigger)

	mu       sync.Mutex
	pending  stopper
	lastURL  string
	lastEmit time.Time

	now       func() time.Time
	afterFunc func(d time.Duration, fn func()) stopper
}

// NewDetector wires the trigger sink. The sink is called outside the
// detector's lock and must not block for long.
func NewDetector(emit func(Trigger)) *Detector {
	return &Detector{
		emit:      emit,
		now:       time.Now,
		afterFunc: func(d time.Duration, fn func()) stopper { return time.AfterFunc(d, fn) },
	}
}

// Hover records a hover candidate. The trigger fires only if no other hover
// or HoverEnd arrives within the dwell window. Re-hovering the same URL
// while a dwell is pending does not restart the clock.
func (d *Detector) Hover(title, url, side string, amount float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != nil {
		if url == d.lastURL {
			return
		}
		d.pending.Stop()
	}
	d.lastURL = url
	trig := Trigger{Kind: KindHover, Title: title, URL: url, Side: side, Amount: amount}
	d.pending = d.afterFunc(hoverDwell, func() {
		d.mu.Lock()
		d.pending = nil
		d.mu.Unlock()
		d.fire(trig)
	})
}

// HoverEnd cancels a pending dwell.
func (d *Detector) HoverEnd() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
	d.lastURL = ""
}

// TicketOpen fires immediately, subject only to the shared budget.
func (d *Detector) TicketOpen(title, url, side string, amount float64) {
	d.fire(Trigger{Kind: KindTicketOpen, Title: title, URL: url, Side: side, Amount: amount})
}

// Close cancels any pending dwell.
func (d *Detector) Close() {
	d.HoverEnd()
}

func (d *Detector) fire(trig Trigger) {
	d.mu.Lock()
	now := d.now()
	if !d.lastEmit.IsZero() && now.Sub(d.lastEmit) < triggerInterval {
		d.mu.Unlock()
		slog.Debug("detect trigger dropped by rate limit", "kind", trig.Kind, "url", trig.URL)
		return
	}
	d.lastEmit = now
	d.mu.Unlock()

	trig.At = now
	d.emit(trig)
}
