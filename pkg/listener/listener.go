// Package listener turns tracker events into step boundaries.
package listener

import (
	"context"

	"github.com/user/stepcast/pkg/capturestate"
	"github.com/user/stepcast/pkg/ports"
)

// Listener drains a tracker's event stream into the capture state.
type Listener struct {
	tracker ports.EventTracker
	state   *capturestate.State
	logger  ports.Logger

	// OnClick, when set, is called after each recorded click with the new step.
	OnClick func(step uint32, ev ports.TrackerEvent)
}

// New creates a listener.
func New(tracker ports.EventTracker, state *capturestate.State, logger ports.Logger) *Listener {
	return &Listener{
		tracker: tracker,
		state:   state,
		logger:  logger.WithComponent("listener"),
	}
}

// Run consumes events until a Disable event arrives, the stream closes or ctx
// is cancelled. Left and right button presses each advance the step.
func (l *Listener) Run(ctx context.Context) {
	events := l.tracker.Events()
	for {
		var ev ports.TrackerEvent
		var ok bool
		select {
		case <-ctx.Done():
			l.logger.Debug("Listener cancelled")
			return
		case ev, ok = <-events:
		}
		if !ok {
			l.logger.Warn("Tracker event stream closed; listener stopping")
			return
		}

		l.logger.Debug("Tracker event received: %s at %s (pid %d)", ev.Kind, ev.Location, ev.PID)

		switch {
		case ev.Kind.IsClick():
			step := l.state.RecordClick(ev.Location)
			l.logger.Info("Step %d started by %s at %s", step, ev.Kind, ev.Location)
			if l.OnClick != nil {
				l.OnClick(step, ev)
			}
		case ev.Kind == ports.Disable:
			l.logger.Debug("Tracker disabled; listener stopping")
			return
		}
	}
}

// Start runs the listener on its own goroutine. The returned channel is closed
// when the listener exits.
func (l *Listener) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(ctx)
	}()
	return done
}
