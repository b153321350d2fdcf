package mocks

import (
	"sync"

	"github.com/user/stepcast/pkg/ports"
)

// EventTracker is a mock implementation of ports.EventTracker backed by a
// buffered channel the test writes to directly.
type EventTracker struct {
	InitFunc func() error

	Ch chan ports.TrackerEvent

	mu           sync.Mutex
	InitCalls    int
	EnableCalls  int
	DisableCalls int
	enabled      bool
}

// NewEventTracker creates a tracker whose stream can buffer n events.
func NewEventTracker(n int) *EventTracker {
	return &EventTracker{Ch: make(chan ports.TrackerEvent, n)}
}

func (m *EventTracker) Init() error {
	m.mu.Lock()
	m.InitCalls++
	m.mu.Unlock()
	if m.InitFunc != nil {
		return m.InitFunc()
	}
	return nil
}

func (m *EventTracker) EnableTracking() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EnableCalls++
	m.enabled = true
}

// DisableTracking records the call and queues a Disable event when there is
// room in the stream.
func (m *EventTracker) DisableTracking() {
	m.mu.Lock()
	m.DisableCalls++
	m.enabled = false
	m.mu.Unlock()

	select {
	case m.Ch <- ports.TrackerEvent{Kind: ports.Disable}:
	default:
	}
}

func (m *EventTracker) Events() <-chan ports.TrackerEvent {
	return m.Ch
}

// Enabled reports whether tracking is currently enabled.
func (m *EventTracker) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Click queues a left button press at (x, y).
func (m *EventTracker) Click(x, y float64) {
	m.Ch <- ports.TrackerEvent{Kind: ports.LeftMouseDown, Location: ports.Point{X: x, Y: y}}
}

var _ ports.EventTracker = (*EventTracker)(nil)
