// Package encworker runs one encoder per step on its own goroutine.
//
// A worker owns its encoder and output file exclusively. Frames arrive through
// an unbounded mailbox so the producer never waits on encoding. The encoder is
// created lazily on the first valid frame; a step that never receives one leaves
// no file behind.
package encworker

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/user/stepcast/pkg/mailbox"
	"github.com/user/stepcast/pkg/pixconv"
	"github.com/user/stepcast/pkg/ports"
)

// Message is sent to a worker. It is either EncodeFrame or Finish.
type Message interface {
	isMessage()
}

// EncodeFrame carries one frame for the worker's step.
type EncodeFrame struct {
	Frame ports.RawFrame
	Step  uint32
	Index uint32 // Per-step sequence number starting at 1
}

// Finish asks the worker to drain what is already queued, finalize and exit.
type Finish struct{}

func (EncodeFrame) isMessage() {}
func (Finish) isMessage()      {}

// Config configures a worker.
type Config struct {
	Step      uint32
	Width     int
	Height    int
	OutputDir string
	Encoders  ports.EncoderFactory
	Logger    ports.Logger

	// Thumbnails, when set and enabled, receives the first encoded frame.
	Thumbnails ports.ThumbnailSink
	// Click is the location of the click that opened the step, if known.
	Click *ports.Point
}

// Result describes what a worker produced.
type Result struct {
	Step      uint32
	Path      string        // Finalized file, empty when none was written
	Frames    int           // Frames handed to the encoder successfully
	Skipped   int           // Invalid frames and frames the encoder rejected
	Duration  time.Duration // Timestamp of the last ingested frame
	Finalized bool
	Err       error  // Construction or finalization failure
	Thumbnail string // Written still of the first frame, if any
}

// Worker is a running encoder worker.
type Worker struct {
	cfg    Config
	path   string
	inbox  *mailbox.Mailbox[Message]
	done   chan struct{}
	result Result
	logger ports.Logger

	encoder     ports.VideoEncoder
	baseline    uint64
	hasBaseline bool
	lastTS      time.Duration
	lastIndex   uint32
}

// Start spawns a worker goroutine for cfg.Step.
func Start(cfg Config) *Worker {
	w := &Worker{
		cfg:    cfg,
		path:   filepath.Join(cfg.OutputDir, fmt.Sprintf("%d.%s", cfg.Step, cfg.Encoders.Extension())),
		inbox:  mailbox.New[Message](),
		done:   make(chan struct{}),
		result: Result{Step: cfg.Step},
		logger: cfg.Logger.WithComponent(fmt.Sprintf("worker-%d", cfg.Step)),
	}
	go w.run()
	return w
}

// Step returns the step this worker encodes.
func (w *Worker) Step() uint32 {
	return w.cfg.Step
}

// Path returns the output path the worker writes to once it has frames.
func (w *Worker) Path() string {
	return w.path
}

// Send queues a message. It never blocks. mailbox.ErrClosed means the worker has
// already exited and the message was dropped.
func (w *Worker) Send(msg Message) error {
	return w.inbox.Push(msg)
}

// Finish queues a Finish message. Calling it more than once, or after the worker
// has exited, is harmless.
func (w *Worker) Finish() {
	if err := w.inbox.Push(Finish{}); err != nil {
		w.logger.Debug("Finish ignored: worker already exited")
	}
}

// Done is closed when the worker has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the worker exits and returns its result.
func (w *Worker) Wait() Result {
	<-w.done
	return w.result
}

func (w *Worker) run() {
	defer close(w.done)

	finishing := false
	for {
		var msg Message
		var ok bool
		if finishing {
			msg, ok = w.inbox.TryReceive()
		} else {
			msg, ok = w.inbox.Receive()
			if !ok {
				w.logger.Debug("Queue closed; finishing")
			}
		}
		if !ok {
			break
		}

		switch m := msg.(type) {
		case EncodeFrame:
			if !w.ingest(m) {
				n := w.inbox.Discard()
				w.logger.Debug("Stopped ingesting; %d queued messages dropped", n)
				w.finalize()
				return
			}
		case Finish:
			if !finishing {
				w.logger.Debug("Finish received with %d messages queued", w.inbox.Len())
			}
			finishing = true
		}
	}

	// Reject anything sent after the drain.
	w.inbox.Discard()
	w.finalize()
}

// ingest hands one frame to the encoder. It returns false when the worker must
// stop ingesting for good.
func (w *Worker) ingest(m EncodeFrame) bool {
	if m.Step != w.cfg.Step {
		w.logger.Warn("Frame for step %d delivered to step %d; dropped", m.Step, w.cfg.Step)
		w.result.Skipped++
		return true
	}
	if m.Index <= w.lastIndex {
		w.logger.Debug("Frame index %d after %d; out of sequence", m.Index, w.lastIndex)
	}
	w.lastIndex = m.Index

	f := m.Frame
	if !f.Valid() {
		w.result.Skipped++
		return true
	}
	if f.Width != w.cfg.Width || f.Height != w.cfg.Height {
		w.logger.Warn("Frame size %dx%d does not match encoder %dx%d; dropped", f.Width, f.Height, w.cfg.Width, w.cfg.Height)
		w.result.Skipped++
		return true
	}

	if w.encoder == nil {
		enc, err := w.cfg.Encoders.Create(w.cfg.Width, w.cfg.Height, w.path)
		if err != nil {
			w.result.Err = fmt.Errorf("create encoder for step %d: %w", w.cfg.Step, err)
			w.logger.Error("Failed to create encoder for step %d: %v", w.cfg.Step, err)
			w.result.Skipped++
			return false
		}
		w.encoder = enc
		w.logger.Debug("Encoder created: %dx%d -> %s", w.cfg.Width, w.cfg.Height, w.path)
	}

	if !w.hasBaseline {
		w.baseline = f.DisplayTime
		w.hasBaseline = true
	}
	ts := w.rebase(f.DisplayTime)

	pix := pixconv.PackedBGRA(f)
	if err := w.encoder.EncodeFrame(pix, ts); err != nil {
		w.result.Skipped++
		if w.result.Frames == 0 {
			// The next accepted frame becomes time zero instead.
			w.hasBaseline = false
		}
		if errors.Is(err, ports.ErrEncoderFatal) {
			w.logger.Error("Encoder for step %d failed permanently: %v", w.cfg.Step, err)
			return false
		}
		w.logger.Warn("Encoder rejected frame %d of step %d: %v", m.Index, w.cfg.Step, err)
		return true
	}

	w.result.Frames++
	w.lastTS = ts
	if w.result.Frames == 1 {
		w.saveThumbnail(pix)
	}
	return true
}

// saveThumbnail failures are logged and never affect the clip.
func (w *Worker) saveThumbnail(pix []byte) {
	sink := w.cfg.Thumbnails
	if sink == nil || !sink.Enabled() {
		return
	}
	img := pixconv.BGRAToImage(pix, w.cfg.Width, w.cfg.Height)
	path, err := sink.SaveThumbnail(w.cfg.Step, img, w.cfg.Click)
	if err != nil {
		w.logger.Warn("Failed to save thumbnail for step %d: %v", w.cfg.Step, err)
		return
	}
	w.result.Thumbnail = path
}

// rebase converts a capture display time into a clip-relative timestamp.
// Timestamps never go below zero or backwards.
func (w *Worker) rebase(displayTime uint64) time.Duration {
	var ts time.Duration
	if displayTime > w.baseline {
		ts = time.Duration(displayTime - w.baseline)
	}
	if ts < w.lastTS {
		ts = w.lastTS
	}
	return ts
}

func (w *Worker) finalize() {
	if w.encoder == nil {
		w.logger.Debug("No encoder was created; nothing to finalize")
		return
	}

	if w.result.Frames == 0 {
		if a, ok := w.encoder.(ports.Aborter); ok {
			if err := a.Abort(); err != nil {
				w.logger.Warn("Failed to discard empty output %s: %v", w.path, err)
			}
		}
		w.logger.Debug("No frames ingested; output discarded")
		return
	}

	if err := w.encoder.Finish(); err != nil {
		w.result.Err = fmt.Errorf("finalize step %d: %w", w.cfg.Step, err)
		w.logger.Error("Failed to finalize %s: %v", w.path, err)
		return
	}

	w.result.Path = w.path
	w.result.Duration = w.lastTS
	w.result.Finalized = true
	w.logger.Debug("Finalized %s: %d frames, %v", w.path, w.result.Frames, w.lastTS)
}
