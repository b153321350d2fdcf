// Package capturestate holds the run status, step counter and click history shared
// by the event listener and the frame router.
package capturestate

import (
	"sync"

	"github.com/user/stepcast/pkg/ports"
)

// Status is the run status of a capture session.
type Status int

const (
	// Stopped is the initial and terminal status.
	Stopped Status = iota
	// Recording means frames are being routed to encoders.
	Recording
	// Paused means frames are dropped without touching steps.
	Paused
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Recording:
		return "recording"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// State is the per-session shared capture state.
// Status and step/clicks are guarded by separate locks; no lock is held across
// a blocking call.
type State struct {
	statusMu sync.Mutex
	status   Status

	stepMu sync.Mutex
	step   uint32
	clicks []ports.Point

	logger ports.Logger
}

// New creates a State in the Stopped status with step 0.
func New(logger ports.Logger) *State {
	return &State{
		status: Stopped,
		logger: logger.WithComponent("state"),
	}
}

// SetStatus replaces the run status.
func (s *State) SetStatus(status Status) {
	s.statusMu.Lock()
	prev := s.status
	s.status = status
	s.statusMu.Unlock()

	s.logger.Info("Capture status set to %s (was %s)", status, prev)
}

// Status returns the current run status.
func (s *State) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// IsStopped reports whether frames should not be consumed.
// Paused counts as stopped here; callers that need to tell the two apart check
// IsPaused first.
func (s *State) IsStopped() bool {
	return s.Status() != Recording
}

// IsPaused reports whether the session is paused.
func (s *State) IsPaused() bool {
	return s.Status() == Paused
}

// CurrentStep returns the step counter.
func (s *State) CurrentStep() uint32 {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()
	return s.step
}

// RecordClick advances the step counter and stores the click location atomically.
// It returns the new step number.
func (s *State) RecordClick(loc ports.Point) uint32 {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()
	s.clicks = append(s.clicks, loc)
	s.step++
	return s.step
}

// Clicks returns a copy of the recorded click locations in order.
func (s *State) Clicks() []ports.Point {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()
	out := make([]ports.Point, len(s.clicks))
	copy(out, s.clicks)
	return out
}

// ClickAt returns the location of the click that opened step, if any.
func (s *State) ClickAt(step uint32) (ports.Point, bool) {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()
	if step == 0 || int(step) > len(s.clicks) {
		return ports.Point{}, false
	}
	return s.clicks[step-1], true
}

// Snapshot is a consistent copy of the state.
type Snapshot struct {
	Status Status
	Step   uint32
	Clicks []ports.Point
}

// Snapshot returns the status, step and clicks.
func (s *State) Snapshot() Snapshot {
	status := s.Status()
	s.stepMu.Lock()
	defer s.stepMu.Unlock()
	clicks := make([]ports.Point, len(s.clicks))
	copy(clicks, s.clicks)
	return Snapshot{Status: status, Step: s.step, Clicks: clicks}
}
