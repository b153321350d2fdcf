package ports

import "fmt"

// TrackerEventKind classifies a pointer notification.
type TrackerEventKind int

const (
	ScrollWheel TrackerEventKind = iota
	LeftMouseDown
	RightMouseDown
	LeftMouseDragged
	RightMouseDragged
	LeftMouseUp
	RightMouseUp
	// Disable is emitted once when tracking is switched off for good.
	Disable
)

var trackerEventKindNames = map[TrackerEventKind]string{
	ScrollWheel:       "scroll",
	LeftMouseDown:     "left-down",
	RightMouseDown:    "right-down",
	LeftMouseDragged:  "left-drag",
	RightMouseDragged: "right-drag",
	LeftMouseUp:       "left-up",
	RightMouseUp:      "right-up",
	Disable:           "disable",
}

// String returns the string representation of the event kind.
func (k TrackerEventKind) String() string {
	if s, ok := trackerEventKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsClick reports whether the kind is a primary or secondary button press.
func (k TrackerEventKind) IsClick() bool {
	return k == LeftMouseDown || k == RightMouseDown
}

// Point is a screen coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%.0f, %.0f)", p.X, p.Y)
}

// TrackerEvent describes a pointer action.
type TrackerEvent struct {
	PID      int64 // Process owning the window under the pointer, 0 if unknown
	Kind     TrackerEventKind
	Location Point
}

// EventTracker owns an input hook and publishes pointer events.
type EventTracker interface {
	// Init installs the hook. Calling it more than once is a no-op.
	Init() error

	// EnableTracking starts publishing events.
	EnableTracking()

	// DisableTracking stops publishing events and emits a Disable event.
	DisableTracking()

	// Events returns the event stream. All callers share the same stream.
	Events() <-chan TrackerEvent
}
