// Package router maps captured frames onto per-step encoder workers.
//
// The router is the only consumer of the capture backend. For every frame it
// consults the capture state: paused frames are dropped, a stopped run ends the
// loop, and a changed step counter retires the current worker and starts a new
// one. Every worker ever started is kept in a registry so shutdown can finish
// and wait for all of them before the backend is stopped.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/stepcast/pkg/capturestate"
	"github.com/user/stepcast/pkg/encworker"
	"github.com/user/stepcast/pkg/ports"
)

// ErrCapture wraps errors reported by the capture backend. They end the session.
var ErrCapture = errors.New("router: capture failed")

// Config configures a Router.
type Config struct {
	OutputDir string
	Encoders  ports.EncoderFactory
	Capture   ports.CaptureOptions

	// Thumbnails is handed to every worker. Nil disables thumbnails.
	Thumbnails ports.ThumbnailSink
}

// Stats counts what happened to captured frames.
type Stats struct {
	Received        int // Frames returned by the backend
	Forwarded       int // Frames sent to a worker
	DroppedPaused   int
	DroppedInvalid  int // Zero width or height
	DroppedNoStep   int // Before the first click
	DroppedRejected int // Worker had already exited
	StepsStarted    int
}

// Result is returned by Run once every worker has exited.
type Result struct {
	Steps []encworker.Result // In the order the steps were started
	Stats Stats
}

// Artifacts returns the finalized step results.
func (r Result) Artifacts() []encworker.Result {
	var out []encworker.Result
	for _, s := range r.Steps {
		if s.Finalized {
			out = append(out, s)
		}
	}
	return out
}

// Router drives one capture session. It is not reusable.
type Router struct {
	backend ports.CaptureBackend
	state   *capturestate.State
	cfg     Config
	logger  ports.Logger

	workers []*encworker.Worker
	current *encworker.Worker
	step    uint32 // Step of the current worker, 0 before the first
	seq     uint32
	stats   Stats
}

// New creates a router reading from backend.
func New(backend ports.CaptureBackend, state *capturestate.State, cfg Config, logger ports.Logger) *Router {
	return &Router{
		backend: backend,
		state:   state,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run captures until the state reports Stopped, ctx is cancelled or the backend
// fails. It then finishes every worker, waits for all of them and stops the
// backend. A backend failure is returned wrapped in ErrCapture together with
// the results of the steps recorded so far.
func (r *Router) Run(ctx context.Context) (Result, error) {
	log := r.logger.WithComponent("router")

	if err := r.backend.Start(ctx, r.cfg.Capture); err != nil {
		return Result{}, fmt.Errorf("start capture: %w", err)
	}
	log.Debug("Capture started at %d fps", r.cfg.Capture.FPS)

	var runErr error
	for r.state.Status() != capturestate.Stopped {
		if ctx.Err() != nil {
			log.Debug("Context cancelled; stopping")
			break
		}

		frame, err := r.backend.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Debug("Context cancelled while waiting for a frame")
				break
			}
			runErr = fmt.Errorf("%w: %w", ErrCapture, err)
			log.Error("Capture failed: %v", err)
			break
		}
		r.stats.Received++

		if !r.route(frame) {
			break
		}
	}

	res := r.shutdown()
	log.Debug("Frames: %d received, %d forwarded, %d paused, %d invalid, %d before first step",
		r.stats.Received, r.stats.Forwarded, r.stats.DroppedPaused, r.stats.DroppedInvalid, r.stats.DroppedNoStep)
	return res, runErr
}

// route handles one frame. It returns false when the run has stopped.
func (r *Router) route(frame ports.RawFrame) bool {
	switch r.state.Status() {
	case capturestate.Paused:
		r.stats.DroppedPaused++
		return true
	case capturestate.Stopped:
		return false
	}

	if !frame.Valid() {
		r.stats.DroppedInvalid++
		return true
	}

	step := r.state.CurrentStep()
	if step != r.step {
		r.startStep(step, frame)
	} else if r.current == nil {
		r.stats.DroppedNoStep++
		return true
	} else {
		r.seq++
	}

	r.forward(frame, step)
	return true
}

// startStep starts a worker for step sized to frame and retires the previous one
// without waiting for it.
func (r *Router) startStep(step uint32, frame ports.RawFrame) {
	var click *ports.Point
	if loc, ok := r.state.ClickAt(step); ok {
		click = &loc
	}
	w := encworker.Start(encworker.Config{
		Step:       step,
		Width:      frame.Width,
		Height:     frame.Height,
		OutputDir:  r.cfg.OutputDir,
		Encoders:   r.cfg.Encoders,
		Logger:     r.logger,
		Thumbnails: r.cfg.Thumbnails,
		Click:      click,
	})
	r.workers = append(r.workers, w)
	r.stats.StepsStarted++

	if r.current != nil {
		r.current.Finish()
		r.logger.Info("Step %d closed; step %d recording to %s", r.step, step, w.Path())
	} else {
		r.logger.Info("Step %d recording to %s", step, w.Path())
	}

	r.current = w
	r.step = step
	r.seq = 1
}

func (r *Router) forward(frame ports.RawFrame, step uint32) {
	msg := encworker.EncodeFrame{Frame: frame.Clone(), Step: step, Index: r.seq}
	if err := r.current.Send(msg); err != nil {
		r.stats.DroppedRejected++
		return
	}
	r.stats.Forwarded++
}

func (r *Router) shutdown() Result {
	log := r.logger.WithComponent("router")

	for _, w := range r.workers {
		w.Finish()
	}

	res := Result{Steps: make([]encworker.Result, 0, len(r.workers))}
	for _, w := range r.workers {
		res.Steps = append(res.Steps, w.Wait())
	}
	log.Debug("All %d workers exited", len(r.workers))

	if err := r.backend.Stop(); err != nil {
		log.Warn("Failed to stop capture: %v", err)
	}

	r.current = nil
	res.Stats = r.stats
	return res
}
