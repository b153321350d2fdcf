package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/stepcast/pkg/adapters/logger"
	"github.com/user/stepcast/pkg/capturestate"
	"github.com/user/stepcast/pkg/mocks"
	"github.com/user/stepcast/pkg/ports"
	"github.com/user/stepcast/pkg/router"
)

// endlessBackend produces frames forever and runs actions before chosen frames.
type endlessBackend struct {
	mocks.CaptureBackend
	mu      sync.Mutex
	n       int
	actions map[int]func()
}

func newEndlessBackend(actions map[int]func()) *endlessBackend {
	b := &endlessBackend{actions: actions}
	b.NextFrameFunc = func(ctx context.Context) (ports.RawFrame, error) {
		if err := ctx.Err(); err != nil {
			return ports.RawFrame{}, err
		}
		b.mu.Lock()
		b.n++
		n := b.n
		b.mu.Unlock()
		if fn, ok := b.actions[n]; ok {
			fn()
		}
		time.Sleep(time.Millisecond)
		return mocks.Frame(4, 2, uint64(n)*uint64(time.Millisecond), byte(n)), nil
	}
	return b
}

// checkedBackend adds platform checks to a backend.
type checkedBackend struct {
	*mocks.CaptureBackend
	supported, permitted bool
}

func (b checkedBackend) Supported() bool     { return b.supported }
func (b checkedBackend) HasPermission() bool { return b.permitted }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

type harness struct {
	sess    *Session
	tracker *mocks.EventTracker
	factory *mocks.EncoderFactory
	fs      *mocks.FileSystem
	dir     string
}

func newHarness(t *testing.T, backend ports.CaptureBackend) *harness {
	t.Helper()
	h := &harness{
		tracker: mocks.NewEventTracker(64),
		factory: &mocks.EncoderFactory{},
		fs:      mocks.NewFileSystem(),
		dir:     "/captures/run",
	}
	h.sess = New(Config{
		OutputDir:    h.dir,
		FPS:          12,
		WriteSummary: true,
		SourceName:   "mock",
		TrackerName:  "mock",
	}, Deps{
		Backend:  backend,
		Tracker:  h.tracker,
		Encoders: h.factory,
		FS:       h.fs,
	}, logger.NewNoop())
	return h
}

// clickAndWait clicks and blocks until the listener has recorded the step.
func (h *harness) clickAndWait(t *testing.T, step uint32) func() {
	return func() {
		h.tracker.Click(float64(step*10), float64(step*20))
		waitFor(t, "click", func() bool { return h.sess.State().CurrentStep() >= step })
	}
}

func runAsync(ctx context.Context, sess *Session) <-chan struct {
	rep Report
	err error
} {
	ch := make(chan struct {
		rep Report
		err error
	}, 1)
	go func() {
		rep, err := sess.Run(ctx)
		ch <- struct {
			rep Report
			err error
		}{rep, err}
	}()
	return ch
}

func TestSession_RecordsStepsUntilTrackingEnds(t *testing.T) {
	var h *harness
	backend := newEndlessBackend(nil)
	h = newHarness(t, backend)
	backend.actions = map[int]func(){
		3:  h.clickAndWait(t, 1),
		8:  h.clickAndWait(t, 2),
		12: func() { h.tracker.DisableTracking() },
	}

	rep, err := h.sess.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := rep.Summary
	if len(s.Steps) != 2 || s.ArtifactCount() != 2 {
		t.Fatalf("expected 2 steps with artifacts, got %+v", s.Steps)
	}
	if s.Steps[0].Path != filepath.Join(h.dir, "1.mp4") {
		t.Errorf("unexpected step 1 path %s", s.Steps[0].Path)
	}
	if s.Steps[0].Frames != 5 {
		t.Errorf("expected 5 frames in step 1, got %d", s.Steps[0].Frames)
	}
	if s.Steps[1].Click == nil || *s.Steps[1].Click != (ports.Point{X: 20, Y: 40}) {
		t.Errorf("unexpected step 2 click %v", s.Steps[1].Click)
	}
	if s.Frames.DroppedNoStep != 2 {
		t.Errorf("expected 2 frames before the first click, got %d", s.Frames.DroppedNoStep)
	}
	if s.SessionID != h.sess.ID() || s.SessionID == "" {
		t.Errorf("unexpected session id %q", s.SessionID)
	}
	if s.Settings.Encoder != "mock" {
		t.Errorf("expected encoder name in settings, got %q", s.Settings.Encoder)
	}

	for _, name := range []string{SummaryMarkdownFile, SummaryJSONFile} {
		if _, ok := h.fs.GetFile(filepath.Join(h.dir, name)); !ok {
			t.Errorf("expected %s to be written", name)
		}
	}
	if h.tracker.InitCalls != 1 || h.tracker.EnableCalls != 1 {
		t.Errorf("expected tracker init and enable once, got %d/%d", h.tracker.InitCalls, h.tracker.EnableCalls)
	}
	if h.sess.State().Status() != capturestate.Stopped {
		t.Errorf("expected stopped status, got %s", h.sess.State().Status())
	}
}

func TestSession_PlatformChecks(t *testing.T) {
	tests := []struct {
		name      string
		supported bool
		permitted bool
		want      error
	}{
		{"unsupported", false, true, ports.ErrUnsupportedPlatform},
		{"no permission", true, false, ports.ErrPermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &mocks.CaptureBackend{}
			h := newHarness(t, checkedBackend{CaptureBackend: inner, supported: tt.supported, permitted: tt.permitted})

			_, err := h.sess.Run(context.Background())
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if inner.StartCalls != 0 {
				t.Error("capture should not start")
			}
			if h.tracker.InitCalls != 0 {
				t.Error("tracker should not be initialised")
			}
		})
	}
}

func TestSession_PauseResumeStop(t *testing.T) {
	h := newHarness(t, newEndlessBackend(nil))

	if err := h.sess.Pause(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("expected ErrNotRecording before start, got %v", err)
	}

	done := runAsync(context.Background(), h.sess)
	waitFor(t, "recording", func() bool { return h.sess.Snapshot().Status == "recording" })

	if err := h.sess.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := h.sess.Pause(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("expected ErrNotRecording, got %v", err)
	}
	if got := h.sess.Snapshot().Status; got != "paused" {
		t.Errorf("expected paused, got %s", got)
	}
	if err := h.sess.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := h.sess.Resume(); !errors.Is(err, ErrNotPaused) {
		t.Errorf("expected ErrNotPaused, got %v", err)
	}

	h.sess.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			t.Errorf("unexpected error: %v", out.err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("session did not stop")
	}
	if h.sess.Snapshot().Running {
		t.Error("expected session to report not running")
	}
}

func TestSession_CaptureFailureIsReported(t *testing.T) {
	boom := errors.New("display lost")
	var h *harness
	backend := &mocks.CaptureBackend{}
	h = newHarness(t, backend)
	backend.Script = []mocks.ScriptedFrame{
		{Before: h.clickAndWait(t, 1), Frame: mocks.Frame(4, 2, 1, 1)},
		{Frame: mocks.Frame(4, 2, 2, 2)},
		{Err: boom},
	}

	rep, err := h.sess.Run(context.Background())
	if !errors.Is(err, router.ErrCapture) || !errors.Is(err, boom) {
		t.Fatalf("expected capture error, got %v", err)
	}
	if rep.Summary.Error == "" {
		t.Error("expected summary to record the error")
	}
	if rep.Summary.ArtifactCount() != 1 {
		t.Errorf("expected the recorded step to be kept, got %d", rep.Summary.ArtifactCount())
	}
	if h.tracker.DisableCalls == 0 {
		t.Error("expected tracking to be disabled")
	}
}

func TestSession_ContextCancel(t *testing.T) {
	h := newHarness(t, newEndlessBackend(nil))
	ctx, cancel := context.WithCancel(context.Background())

	done := runAsync(ctx, h.sess)
	waitFor(t, "recording", func() bool { return h.sess.Snapshot().Status == "recording" })
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("session did not stop on cancel")
	}
}

func TestSession_RunTwice(t *testing.T) {
	backend := newEndlessBackend(nil)
	h := newHarness(t, backend)
	backend.actions = map[int]func(){2: func() { h.sess.Stop() }}

	if _, err := h.sess.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := h.sess.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestSession_WatchReceivesChanges(t *testing.T) {
	backend := newEndlessBackend(nil)
	h := newHarness(t, backend)

	var mu sync.Mutex
	var statuses []string
	var steps []uint32
	cancel := h.sess.Watch(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, s.Status)
		steps = append(steps, s.Step)
	})
	defer cancel()

	backend.actions = map[int]func(){
		2: h.clickAndWait(t, 1),
		4: func() { h.sess.Stop() },
	}

	if _, err := h.sess.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(statuses) == 0 || statuses[0] != "recording" {
		t.Errorf("expected first notification to be recording, got %v", statuses)
	}
	if statuses[len(statuses)-1] != "stopped" {
		t.Errorf("expected last notification to be stopped, got %v", statuses)
	}
	sawStep := false
	for _, s := range steps {
		if s == 1 {
			sawStep = true
		}
	}
	if !sawStep {
		t.Error("expected a notification for the click")
	}
}

func TestSession_ThumbnailsAreLinkedRelativeToOutput(t *testing.T) {
	var h *harness
	backend := newEndlessBackend(nil)
	h = newHarness(t, backend)

	sink := mocks.NewThumbnailSink(true)
	sink.SaveThumbnailFunc = func(step uint32, img image.Image, click *ports.Point) (string, error) {
		return filepath.Join(h.dir, "thumbnails", fmt.Sprintf("step-%04d.png", step)), nil
	}
	h.sess.deps.Thumbnails = sink

	backend.actions = map[int]func(){
		2: h.clickAndWait(t, 1),
		6: func() { h.tracker.DisableTracking() },
	}

	rep, err := h.sess.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rep.Summary.Steps) != 1 {
		t.Fatalf("expected one step, got %+v", rep.Summary.Steps)
	}
	if got := rep.Summary.Steps[0].Thumbnail; got != "thumbnails/step-0001.png" {
		t.Errorf("expected relative thumbnail path, got %q", got)
	}
	if c := sink.Clicks[1]; c == nil || *c != (ports.Point{X: 10, Y: 20}) {
		t.Errorf("expected opening click to reach the sink, got %v", c)
	}
}

func TestSession_LogsOutputDirWithPercentVerbatim(t *testing.T) {
	var out bytes.Buffer
	log := logger.NewConsoleWithOptions(logger.ConsoleOptions{
		Level: ports.LevelInfo,
		Out:   &out,
		Err:   &out,
	})

	tracker := mocks.NewEventTracker(8)
	backend := newEndlessBackend(nil)
	backend.actions = map[int]func(){
		2: func() { tracker.DisableTracking() },
	}
	dir := "/captures/100%done"
	sess := New(Config{
		OutputDir:    dir,
		FPS:          12,
		WriteSummary: true,
		SourceName:   "mock",
		TrackerName:  "mock",
	}, Deps{
		Backend:  backend,
		Tracker:  tracker,
		Encoders: &mocks.EncoderFactory{},
		FS:       mocks.NewFileSystem(),
	}, log)

	if _, err := sess.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, dir) {
		t.Errorf("expected output dir %q in log, got:\n%s", dir, got)
	}
	if strings.Contains(got, "%!") {
		t.Errorf("log contains a formatting error:\n%s", got)
	}
}
