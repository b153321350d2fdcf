// Package h264encoder encodes step clips to H.264 MP4 files with an ffmpeg
// subprocess.
//
// Raw BGRA frames are piped to ffmpeg, which returns an Annex B elementary
// stream with one access unit per input frame. The stream is muxed in-process
// so every picture keeps the exact timestamp it was captured at, regardless of
// the nominal rate ffmpeg was told about.
package h264encoder

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/stepcast/pkg/ports"
)

// Factory creates H.264 encoders. It implements ports.EncoderFactory.
type Factory struct {
	Options ports.EncoderOptions
	Logger  ports.Logger
}

// NewFactory creates a factory. It fails when ffmpeg cannot be found.
func NewFactory(opts ports.EncoderOptions, logger ports.Logger) (*Factory, error) {
	if _, err := FindFFmpeg(); err != nil {
		return nil, err
	}
	return &Factory{Options: opts, Logger: logger}, nil
}

// Create starts an ffmpeg process for one clip.
func (f *Factory) Create(width, height int, path string) (ports.VideoEncoder, error) {
	ffmpegPath, err := FindFFmpeg()
	if err != nil {
		return nil, err
	}

	outW, outH := outputSize(width, height, f.Options.MaxWidth)
	fps := f.Options.FPS
	if fps <= 0 {
		fps = 30
	}

	e := &Encoder{
		path:    path,
		width:   width,
		height:  height,
		outW:    outW,
		outH:    outH,
		fps:     fps,
		logger:  f.Logger.WithComponent("h264"),
		created: time.Now(),
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "bgra",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", fmt.Sprintf("%d", fps),
		"-i", "pipe:0",
		"-vf", fmt.Sprintf("scale=%d:%d", outW, outH),
		"-fps_mode", "passthrough",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-bf", "0",
		"-g", fmt.Sprintf("%d", fps*2),
		"-crf", fmt.Sprintf("%d", qualityToCRF(f.Options.Quality)),
		"-pix_fmt", "yuv420p",
		"-x264-params", "aud=1",
		"-f", "h264",
		"pipe:1",
	}

	e.cmd = exec.Command(ffmpegPath, args...)
	e.cmd.Stdout = &e.stream
	e.cmd.Stderr = &e.stderr

	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	e.stdin = stdin

	if err := e.cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	e.logger.Debug("ffmpeg started for %s: %dx%d -> %dx%d", filepath.Base(path), width, height, outW, outH)
	return e, nil
}

// Extension returns "mp4".
func (f *Factory) Extension() string { return "mp4" }

// Name returns "h264".
func (f *Factory) Name() string { return "h264" }

// Encoder is one clip being encoded by ffmpeg.
type Encoder struct {
	path          string
	width, height int
	outW, outH    int
	fps           int
	logger        ports.Logger
	created       time.Time

	mu         sync.Mutex
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stream     bytes.Buffer
	stderr     bytes.Buffer
	timestamps []time.Duration
	failed     error
	done       bool
}

// EncodeFrame pipes one packed BGRA frame to ffmpeg.
func (e *Encoder) EncodeFrame(pix []byte, timestamp time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done {
		return ErrFinished
	}
	if e.failed != nil {
		return e.failed
	}
	if len(pix) != e.width*e.height*4 {
		return fmt.Errorf("%w: got %d bytes for %dx%d", ErrFrameSize, len(pix), e.width, e.height)
	}

	if _, err := e.stdin.Write(pix); err != nil {
		e.failed = fmt.Errorf("%w: ffmpeg stopped accepting frames: %v", ports.ErrEncoderFatal, err)
		return e.failed
	}
	e.timestamps = append(e.timestamps, timestamp)
	return nil
}

// Finish waits for ffmpeg, muxes the stream and writes the MP4 file. The file
// is synced and renamed into place before Finish returns.
func (e *Encoder) Finish() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done {
		return nil
	}
	e.done = true

	e.stdin.Close()
	if err := e.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg encoding failed: %w\nstderr: %s", err, e.stderr.String())
	}

	aus := splitAccessUnits(e.stream.Bytes())
	n := len(aus)
	if n != len(e.timestamps) {
		e.logger.Warn("ffmpeg returned %d pictures for %d frames", n, len(e.timestamps))
		if len(e.timestamps) < n {
			n = len(e.timestamps)
		}
	}

	var buf bytes.Buffer
	if err := buildMP4(&buf, e.outW, e.outH, aus[:n], e.timestamps[:n], e.fps); err != nil {
		return err
	}
	if err := writeDurably(e.path, buf.Bytes()); err != nil {
		return err
	}

	e.logger.Debug("Wrote %s: %d frames, %d bytes in %v", filepath.Base(e.path), n, buf.Len(), time.Since(e.created).Round(time.Millisecond))
	return nil
}

// Abort stops ffmpeg without writing anything.
func (e *Encoder) Abort() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done {
		return nil
	}
	e.done = true

	e.stdin.Close()
	if e.cmd.Process != nil {
		e.cmd.Process.Kill()
	}
	e.cmd.Wait()
	return nil
}

// writeDurably writes data next to path, syncs it and renames it into place.
func writeDurably(path string, data []byte) error {
	partial := path + ".partial"
	f, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(partial)
		return fmt.Errorf("write output: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(partial)
		return fmt.Errorf("sync output: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(partial)
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(partial, path); err != nil {
		os.Remove(partial)
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}

// outputSize applies maxWidth and rounds down to even dimensions for 4:2:0.
func outputSize(width, height, maxWidth int) (int, int) {
	w, h := width, height
	if maxWidth > 0 && w > maxWidth {
		h = h * maxWidth / w
		w = maxWidth
	}
	w &^= 1
	h &^= 1
	if w < 2 {
		w = 2
	}
	if h < 2 {
		h = 2
	}
	return w, h
}

// qualityToCRF maps quality 1-100 onto x264 CRF 51-18. Zero selects CRF 23.
func qualityToCRF(quality int) int {
	if quality <= 0 {
		return 23
	}
	if quality > 100 {
		quality = 100
	}
	return 51 - (quality-1)*33/99
}

var (
	_ ports.EncoderFactory = (*Factory)(nil)
	_ ports.VideoEncoder   = (*Encoder)(nil)
	_ ports.Aborter        = (*Encoder)(nil)
)
