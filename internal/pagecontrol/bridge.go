package pagecontrol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Bridge event kinds reported by the injected page scripts.
const (
	EventHover      = "hover"
	EventTicketOpen = "ticket_open"
	EventNavigated  = "navigated"
	EventToggle     = "toggle"
	EventGesture    = "gesture"
	EventTrade      = "trade_fragment"
)

// BridgeEvent is one event emitted by the page through the bridge binding.
// Fields beyond Kind are populated per kind: hover and ticket_open carry the
// market context, navigated carries the new URL, gesture carries raw pointer
// phases for the panel drag/resize machine, trade_fragment carries raw text
// snippets for diagnostics.
type BridgeEvent struct {
	Kind   string  `json:"kind"`
	Title  string  `json:"title,omitempty"`
	URL    string  `json:"url,omitempty"`
	Side   string  `json:"side,omitempty"`
	Amount string  `json:"amount,omitempty"`
	Text   string  `json:"text,omitempty"`
	Phase  string  `json:"phase,omitempty"`
	Mode   string  `json:"mode,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	TSMs   float64 `json:"ts_ms,omitempty"`
}

// PageEvent pairs a bridge event with the market tab it came from.
type PageEvent struct {
	MarketID string
	Event    BridgeEvent
}

var knownEventKinds = map[string]bool{
	EventHover:      true,
	EventTicketOpen: true,
	EventNavigated:  true,
	EventToggle:     true,
	EventGesture:    true,
	EventTrade:      true,
}

// decodeBridgePayload parses and validates the JSON payload a page script
// passed to the bridge binding. Unknown kinds are rejected here so that
// downstream consumers only ever see the known event kinds.
func decodeBridgePayload(payload string) (BridgeEvent, error) {
	var ev BridgeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return BridgeEvent{}, fmt.Errorf("decode bridge payload: %w", err)
	}
	ev.Kind = strings.TrimSpace(ev.Kind)
	if !knownEventKinds[ev.Kind] {
		return BridgeEvent{}, fmt.Errorf("unknown bridge event kind %q", ev.Kind)
	}
	return ev, nil
}
