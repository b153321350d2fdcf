// Package session wires the tracker, listener, router and encoders into one
// capture run and writes the run summary.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/user/stepcast/pkg/capturestate"
	"github.com/user/stepcast/pkg/listener"
	"github.com/user/stepcast/pkg/ports"
	"github.com/user/stepcast/pkg/router"
	"github.com/user/stepcast/pkg/summarizer"
)

// Summary file names written to the output directory.
const (
	SummaryMarkdownFile = "summary.md"
	SummaryJSONFile     = "summary.json"
)

var (
	// ErrAlreadyRunning is returned by Run on a session that has been started.
	ErrAlreadyRunning = errors.New("session: already started")
	// ErrNotRecording is returned by Pause when the session is not recording.
	ErrNotRecording = errors.New("session: not recording")
	// ErrNotPaused is returned by Resume when the session is not paused.
	ErrNotPaused = errors.New("session: not paused")
)

// Config contains the session configuration.
type Config struct {
	OutputDir    string
	FPS          int
	ShowCursor   bool
	WriteSummary bool

	// Names reported in the summary
	SourceName  string
	TrackerName string
}

// Deps are the collaborators a session drives.
type Deps struct {
	Backend  ports.CaptureBackend
	Tracker  ports.EventTracker
	Encoders ports.EncoderFactory
	FS       ports.FileSystem

	// Thumbnails is optional.
	Thumbnails ports.ThumbnailSink
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ID      string        `json:"id"`
	Status  string        `json:"status"`
	Step    uint32        `json:"step"`
	Clicks  []ports.Point `json:"clicks"`
	Running bool          `json:"running"`
}

// Report is returned by Run.
type Report struct {
	Summary *summarizer.Summary
	Result  router.Result
}

// Session is one capture run. It is not reusable.
type Session struct {
	id     string
	cfg    Config
	deps   Deps
	state  *capturestate.State
	logger ports.Logger

	started atomic.Bool
	running atomic.Bool

	watchMu  sync.Mutex
	watchers map[int]func(Snapshot)
	nextID   int
}

// New creates a session with a fresh id.
func New(cfg Config, deps Deps, logger ports.Logger) *Session {
	return &Session{
		id:       uuid.NewString(),
		cfg:      cfg,
		deps:     deps,
		state:    capturestate.New(logger),
		logger:   logger,
		watchers: make(map[int]func(Snapshot)),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// State returns the shared capture state.
func (s *Session) State() *capturestate.State {
	return s.state
}

// Run records until the tracker is disabled, Stop is called, ctx is cancelled
// or the capture backend fails. Steps recorded before a capture failure are
// still finalized and reported.
func (s *Session) Run(ctx context.Context) (Report, error) {
	if !s.started.CompareAndSwap(false, true) {
		return Report{}, ErrAlreadyRunning
	}

	if err := s.checkPlatform(); err != nil {
		s.logger.Error("Cannot start capture: %s", err)
		return Report{}, err
	}

	if err := s.deps.FS.MkdirAll(s.cfg.OutputDir); err != nil {
		return Report{}, fmt.Errorf("create output directory: %w", err)
	}

	if err := s.deps.Tracker.Init(); err != nil {
		return Report{}, fmt.Errorf("init tracker: %w", err)
	}
	s.deps.Tracker.EnableTracking()

	startedAt := time.Now()
	s.running.Store(true)
	s.setStatus(capturestate.Recording)
	s.logger.Info("Session %s recording to %s", s.id, s.cfg.OutputDir)

	lst := listener.New(s.deps.Tracker, s.state, s.logger)
	lst.OnClick = func(step uint32, ev ports.TrackerEvent) {
		s.notify()
	}
	listenCtx, cancelListen := context.WithCancel(ctx)
	defer cancelListen()
	listenDone := lst.Start(listenCtx)

	rt := router.New(s.deps.Backend, s.state, router.Config{
		OutputDir: s.cfg.OutputDir,
		Encoders:  s.deps.Encoders,
		Capture:   ports.CaptureOptions{FPS: s.cfg.FPS, ShowCursor: s.cfg.ShowCursor},

		Thumbnails: s.deps.Thumbnails,
	}, s.logger)

	type routed struct {
		res router.Result
		err error
	}
	routerDone := make(chan routed, 1)
	go func() {
		res, err := rt.Run(ctx)
		routerDone <- routed{res, err}
	}()

	var out routed
	select {
	case <-listenDone:
		// Tracking ended: stop routing and let the workers drain.
		s.logger.Info("Input tracking ended, stopping")
		s.setStatus(capturestate.Stopped)
		out = <-routerDone
	case out = <-routerDone:
		s.setStatus(capturestate.Stopped)
		s.deps.Tracker.DisableTracking()
		cancelListen()
		<-listenDone
	}
	endedAt := time.Now()
	s.running.Store(false)
	s.notify()

	if out.err != nil {
		s.logger.Error("Capture failed: %s", out.err)
	}

	summary := s.buildSummary(out.res, out.err, startedAt, endedAt)
	s.logger.Info("Session finished: %d steps, %d videos", len(summary.Steps), summary.ArtifactCount())

	if s.cfg.WriteSummary {
		if err := s.writeSummary(summary); err != nil {
			s.logger.Warn("Failed to write summary: %s", err)
		}
	}

	return Report{Summary: summary, Result: out.res}, out.err
}

// Pause drops frames until Resume. Steps still advance on clicks.
func (s *Session) Pause() error {
	if s.state.Status() != capturestate.Recording {
		return ErrNotRecording
	}
	s.setStatus(capturestate.Paused)
	s.logger.Info("Recording paused")
	return nil
}

// Resume continues a paused session. Frames dropped while paused leave a gap
// in the current step's timeline.
func (s *Session) Resume() error {
	if s.state.Status() != capturestate.Paused {
		return ErrNotPaused
	}
	s.setStatus(capturestate.Recording)
	s.logger.Info("Recording resumed")
	return nil
}

// Stop ends the session. Run returns once every step has been finalized.
func (s *Session) Stop() {
	if !s.running.Load() {
		return
	}
	s.setStatus(capturestate.Stopped)
	s.deps.Tracker.DisableTracking()
}

// Snapshot returns the current session view.
func (s *Session) Snapshot() Snapshot {
	snap := s.state.Snapshot()
	return Snapshot{
		ID:      s.id,
		Status:  snap.Status.String(),
		Step:    snap.Step,
		Clicks:  snap.Clicks,
		Running: s.running.Load(),
	}
}

// Watch registers fn to be called after every status change and click.
// fn runs on the goroutine that caused the change and must not block.
func (s *Session) Watch(fn func(Snapshot)) (cancel func()) {
	s.watchMu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.watchMu.Unlock()

	return func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}
}

func (s *Session) setStatus(status capturestate.Status) {
	s.state.SetStatus(status)
	s.notify()
}

func (s *Session) notify() {
	s.watchMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()

	if len(fns) == 0 {
		return
	}
	snap := s.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Session) checkPlatform() error {
	pc, ok := s.deps.Backend.(ports.PlatformChecker)
	if !ok {
		return nil
	}
	if !pc.Supported() {
		return ports.ErrUnsupportedPlatform
	}
	if !pc.HasPermission() {
		return ports.ErrPermissionDenied
	}
	return nil
}

func (s *Session) buildSummary(res router.Result, runErr error, startedAt, endedAt time.Time) *summarizer.Summary {
	b := summarizer.NewBuilder().
		WithSession(s.id, startedAt, endedAt).
		WithSettings(summarizer.Settings{
			Source:    s.cfg.SourceName,
			Tracker:   s.cfg.TrackerName,
			Encoder:   s.deps.Encoders.Name(),
			FPS:       s.cfg.FPS,
			OutputDir: s.cfg.OutputDir,
		}).
		WithClicks(s.state.Clicks()).
		WithFrames(summarizer.FrameInfo{
			Received:       res.Stats.Received,
			Forwarded:      res.Stats.Forwarded,
			DroppedPaused:  res.Stats.DroppedPaused,
			DroppedInvalid: res.Stats.DroppedInvalid,
			DroppedNoStep:  res.Stats.DroppedNoStep,
		}).
		WithError(runErr)

	for _, step := range res.Steps {
		info := summarizer.StepInfo{
			Step:       step.Step,
			Path:       step.Path,
			Frames:     step.Frames,
			Skipped:    step.Skipped,
			DurationMs: step.Duration.Milliseconds(),
		}
		if loc, ok := s.state.ClickAt(step.Step); ok {
			info.Click = &loc
		}
		if step.Err != nil {
			info.Error = step.Err.Error()
		}
		if step.Thumbnail != "" {
			info.Thumbnail = step.Thumbnail
			if rel, err := filepath.Rel(s.cfg.OutputDir, step.Thumbnail); err == nil {
				info.Thumbnail = filepath.ToSlash(rel)
			}
		}
		if step.Finalized {
			if size, err := s.deps.FS.FileSize(step.Path); err == nil {
				info.FileSize = size
			}
		}
		b.AddStep(info)
	}

	return b.Build()
}

func (s *Session) writeSummary(summary *summarizer.Summary) error {
	md := summarizer.NewWriter(summarizer.NewMarkdownFormatter(), s.deps.FS)
	if err := md.Write(filepath.Join(s.cfg.OutputDir, SummaryMarkdownFile), summary); err != nil {
		return err
	}
	js := summarizer.NewWriter(summarizer.JSONFormatter, s.deps.FS)
	if err := js.Write(filepath.Join(s.cfg.OutputDir, SummaryJSONFile), summary); err != nil {
		return err
	}
	s.logger.Info("Summary saved to %s", filepath.Join(s.cfg.OutputDir, SummaryMarkdownFile))
	return nil
}
