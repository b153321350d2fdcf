package tracker

import (
	"math"

	"github.com/user/stepcast/pkg/ports"
)

// DefaultDragThreshold is the distance in pixels a held pointer must travel from
// the button-down location before moves are reported as drags.
const DefaultDragThreshold = 10.0

// DragFilter suppresses pointer jitter around a click.
//
// A held pointer counts as dragging once either axis has moved Threshold
// pixels from the anchor. This is looser than a hook that needs both |dx| and
// |dy| past the threshold: straight horizontal or vertical drags are
// reported here, and dropped by such a hook.
//
// It is not safe for concurrent use; Hub serialises access.
type DragFilter struct {
	Threshold float64

	anchor    ports.Point
	hasAnchor bool
}

// Accept reports whether ev should be forwarded and updates the click anchor.
// Button-up events reset the anchor and are never forwarded.
func (f *DragFilter) Accept(ev ports.TrackerEvent) bool {
	switch ev.Kind {
	case ports.LeftMouseDown, ports.RightMouseDown:
		f.anchor = ev.Location
		f.hasAnchor = true
		return true
	case ports.LeftMouseUp, ports.RightMouseUp:
		f.hasAnchor = false
		return false
	case ports.LeftMouseDragged, ports.RightMouseDragged:
		if !f.hasAnchor {
			return false
		}
		threshold := f.Threshold
		if threshold <= 0 {
			threshold = DefaultDragThreshold
		}
		dx := math.Abs(ev.Location.X - f.anchor.X)
		dy := math.Abs(ev.Location.Y - f.anchor.Y)
		return math.Max(dx, dy) >= threshold
	default:
		return true
	}
}
