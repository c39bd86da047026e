// Package overlay owns the panel's visual state: geometry, open/minimized
// flags, and the clamping rules that keep the panel on screen. The store in
// this package is the single writer; everything else observes.
package overlay

// Geometry limits. Width is clamped to a band, height only has a floor so a
// tall viewport can show more content.
const (
	MinWidth  = 280
	MaxWidth  = 560
	MinHeight = 200

	defaultWidth  = 380
	defaultHeight = 720
	dockInset     = 16
)

// Viewport is the page's inner window size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// LayoutMode selects how the panel occupies the page. Docked pins it to the
// right edge and reflows page content to make room; floating positions it
// freely by x/y and is the only mode where drag and resize apply.
type LayoutMode string

const (
	LayoutDocked   LayoutMode = "docked"
	LayoutFloating LayoutMode = "floating"
)

// State is the full overlay state. Geometry is top-left anchored; x and y
// only place the panel in floating mode.
type State struct {
	Open      bool       `json:"open"`
	Minimized bool       `json:"minimized"`
	Layout    LayoutMode `json:"layout_mode"`
	X         int        `json:"x"`
	Y         int        `json:"y"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
}

// PersistedState is the subset of State written to storage. Minimized and
// layout mode are deliberately session-local: a restored panel always comes
// back restored and docked.
type PersistedState struct {
	Open   bool `json:"open"`
	X      int  `json:"x"`
	Y      int  `json:"y"`
	Width  int  `json:"width"`
	Height int  `json:"height"`
}

// Change is a partial update; nil fields are left untouched. The clamp
// pipeline runs after every application, so callers may pass raw values.
type Change struct {
	Open      *bool       `json:"open,omitempty"`
	Minimized *bool       `json:"minimized,omitempty"`
	Layout    *LayoutMode `json:"layout_mode,omitempty"`
	X         *int        `json:"x,omitempty"`
	Y         *int        `json:"y,omitempty"`
	Width     *int        `json:"width,omitempty"`
	Height    *int        `json:"height,omitempty"`
}

// DefaultState docks a closed panel at the bottom-right of the viewport.
func DefaultState(vp Viewport) State {
	s := State{
		Layout: LayoutDocked,
		Width:  defaultWidth,
		Height: defaultHeight,
		X:      vp.Width - defaultWidth - dockInset,
		Y:      vp.Height - defaultHeight - dockInset,
	}
	return clampState(s, vp)
}

func (p PersistedState) toState() State {
	return State{Open: p.Open, X: p.X, Y: p.Y, Width: p.Width, Height: p.Height}
}

func (s State) persisted() PersistedState {
	return PersistedState{Open: s.Open, X: s.X, Y: s.Y, Width: s.Width, Height: s.Height}
}

func (s State) apply(ch Change) State {
	if ch.Open != nil {
		s.Open = *ch.Open
	}
	if ch.Minimized != nil {
		s.Minimized = *ch.Minimized
	}
	if ch.Layout != nil {
		s.Layout = *ch.Layout
	}
	if ch.X != nil {
		s.X = *ch.X
	}
	if ch.Y != nil {
		s.Y = *ch.Y
	}
	if ch.Width != nil {
		s.Width = *ch.Width
	}
	if ch.Height != nil {
		s.Height = *ch.Height
	}
	return s
}

// clampState enforces every state invariant in one place: the width band,
// the height floor, on-screen position, closed-implies-restored, and a known
// layout mode. Anything that is not floating is docked.
func clampState(s State, vp Viewport) State {
	if s.Layout != LayoutFloating {
		s.Layout = LayoutDocked
	}
	s.Width = clampInt(s.Width, MinWidth, MaxWidth)
	if s.Height < MinHeight {
		s.Height = MinHeight
	}
	s.X = clampInt(s.X, 0, maxInt(0, vp.Width-s.Width))
	s.Y = clampInt(s.Y, 0, maxInt(0, vp.Height-s.Height))
	if !s.Open {
		s.Minimized = false
	}
	return s
}

func clampInt(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
