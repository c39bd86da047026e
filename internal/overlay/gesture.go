package overlay

// Gesture kinds.
const (
	GestureDrag   = "drag"
	GestureResize = "resize"
)

type gesturePhase int

const (
	phaseIdle gesturePhase = iota
	phaseDragging
	phaseResizing
)

// Gesture is an explicit pointer state machine for drag and resize. One
// instance tracks one pointer: Down arms it, Move yields partial changes
// while armed, Up and Cancel disarm. Moves while idle are ignored, so a
// missed pointerup cannot leave the panel glued to the cursor.
type Gesture struct {
	phase  gesturePhase
	startX int
	startY int
	start  State
}

func NewGesture() *Gesture {
	return &Gesture{}
}

// Active reports whether a gesture is in progress.
func (g *Gesture) Active() bool {
	return g.phase != phaseIdle
}

// Down arms the gesture at the given pointer position. Drag and resize only
// exist in floating mode; a docked panel is pinned and reflows the page
// instead. An unknown kind or a Down while already armed is also ignored.
func (g *Gesture) Down(kind string, px, py int, current State) bool {
	if g.phase != phaseIdle || current.Layout != LayoutFloating {
		return false
	}
	switch kind {
	case GestureDrag:
		g.phase = phaseDragging
	case GestureResize:
		g.phase = phaseResizing
	default:
		return false
	}
	g.startX, g.startY = px, py
	g.start = current
	return true
}

// Move translates pointer motion into a partial state change. Dragging moves
// the panel; resizing grows width to the left and height downward, keeping
// the right edge pinned. Returns false while idle.
func (g *Gesture) Move(px, py int) (Change, bool) {
	dx := px - g.startX
	dy := py - g.startY

	switch g.phase {
	case phaseDragging:
		x := g.start.X + dx
		y := g.start.Y + dy
		return Change{X: &x, Y: &y}, true
	case phaseResizing:
		width := clampInt(g.start.Width-dx, MinWidth, MaxWidth)
		height := maxInt(g.start.Height+dy, MinHeight)
		x := g.start.X + (g.start.Width - width)
		return Change{X: &x, Width: &width, Height: &height}, true
	default:
		return Change{}, false
	}
}

// Up ends the gesture.
func (g *Gesture) Up() {
	g.phase = phaseIdle
}

// Cancel aborts the gesture. The caller decides whether to restore the
// pre-gesture state; the machine only disarms.
func (g *Gesture) Cancel() {
	g.phase = phaseIdle
}

// Start returns the state captured when the gesture was armed.
func (g *Gesture) Start() State {
	return g.start
}
