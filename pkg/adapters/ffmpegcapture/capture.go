// Package ffmpegcapture grabs the desktop through an ffmpeg subprocess.
//
// ffmpeg reads the platform grabber (x11grab, avfoundation or gdigrab),
// scales to a fixed size and writes raw BGRA frames to a pipe, one frame
// every Width*Height*4 bytes. The output is resampled to a constant rate, so
// a frame's display time follows from its index on the pipe.
package ffmpegcapture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/user/stepcast/pkg/adapters/h264encoder"
	"github.com/user/stepcast/pkg/ports"
)

// ErrNotStarted is returned by NextFrame before Start.
var ErrNotStarted = errors.New("ffmpegcapture: not started")

// Options configures the grabber.
type Options struct {
	Width  int
	Height int
	// Display selects the screen: an X display such as ":0.0" on Linux, a
	// device index on macOS. Empty picks the platform default.
	Display string
	// Input replaces the platform grabber with a raw ffmpeg input spec,
	// for example "lavfi:testsrc2". The part before the colon is the format.
	Input string
}

// Capture implements ports.CaptureBackend.
type Capture struct {
	opts   Options
	logger ports.Logger
	goos   string

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	stderr *syncBuffer
	fps    int
	frames uint64
	cancel context.CancelFunc
}

// New creates a desktop grabber. Missing dimensions default to 1280x720.
func New(opts Options, logger ports.Logger) *Capture {
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 720
	}
	return &Capture{opts: opts, logger: logger.WithComponent("capture"), goos: runtime.GOOS}
}

// Supported reports whether this OS has a grabber and ffmpeg is installed.
func (c *Capture) Supported() bool {
	if c.opts.Input == "" {
		switch c.goos {
		case "linux", "darwin", "windows":
		default:
			return false
		}
	}
	return h264encoder.IsFFmpegAvailable()
}

// HasPermission checks what can be checked without prompting: an X display on
// Linux. Other platforms ask the user when ffmpeg first opens the screen.
func (c *Capture) HasPermission() bool {
	if c.opts.Input != "" || c.goos != "linux" {
		return true
	}
	return c.opts.Display != "" || os.Getenv("DISPLAY") != ""
}

// Start spawns ffmpeg.
func (c *Capture) Start(ctx context.Context, opts ports.CaptureOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd != nil {
		return fmt.Errorf("ffmpegcapture: already started")
	}

	ffmpegPath, err := h264encoder.FindFFmpeg()
	if err != nil {
		return err
	}

	fps := opts.FPS
	if fps <= 0 {
		fps = 12
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, c.inputArgs(fps, opts.ShowCursor)...)
	args = append(args,
		"-vf", fmt.Sprintf("scale=%d:%d", c.opts.Width, c.opts.Height),
		"-r", fmt.Sprintf("%d", fps),
		"-f", "rawvideo",
		"-pix_fmt", "bgra",
		"pipe:1",
	)

	runCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(runCtx, ffmpegPath, args...)
	c.stderr = &syncBuffer{}
	cmd.Stderr = c.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	c.cmd = cmd
	c.cancel = cancel
	c.stdout = stdout
	c.reader = bufio.NewReaderSize(stdout, c.frameSize())
	c.fps = fps
	c.frames = 0

	c.logger.Debug("ffmpeg grabbing %s at %d fps, %dx%d", strings.Join(args, " "), fps, c.opts.Width, c.opts.Height)
	return nil
}

// inputArgs builds the ffmpeg input options for the platform grabber.
func (c *Capture) inputArgs(fps int, showCursor bool) []string {
	rate := fmt.Sprintf("%d", fps)

	if c.opts.Input != "" {
		format, spec, ok := strings.Cut(c.opts.Input, ":")
		if !ok {
			return []string{"-re", "-i", c.opts.Input}
		}
		if format == "lavfi" {
			spec = fmt.Sprintf("%s=size=%dx%d:rate=%d", spec, c.opts.Width, c.opts.Height, fps)
		}
		return []string{"-re", "-f", format, "-i", spec}
	}

	cursor := "0"
	if showCursor {
		cursor = "1"
	}

	switch c.goos {
	case "darwin":
		device := c.opts.Display
		if device == "" {
			device = "1"
		}
		return []string{"-f", "avfoundation", "-capture_cursor", cursor, "-framerate", rate, "-i", device + ":none"}
	case "windows":
		return []string{"-f", "gdigrab", "-draw_mouse", cursor, "-framerate", rate, "-i", "desktop"}
	default:
		display := c.opts.Display
		if display == "" {
			display = os.Getenv("DISPLAY")
		}
		if display == "" {
			display = ":0.0"
		}
		return []string{"-f", "x11grab", "-draw_mouse", cursor, "-framerate", rate, "-i", display}
	}
}

func (c *Capture) frameSize() int {
	return c.opts.Width * c.opts.Height * 4
}

// frameTime is the display time of the index-th frame of a constant-rate stream.
func frameTime(index uint64, fps int) uint64 {
	return index * uint64(time.Second) / uint64(fps)
}

// NextFrame reads one frame from ffmpeg. Blocking reads are not interrupted by
// ctx; cancelling ctx is noticed at the next frame boundary, and Stop unblocks
// a pending read.
//
// DisplayTime is derived from the frame index and the frame rate, so it
// reflects when ffmpeg grabbed the frame rather than when the pipe was read.
func (c *Capture) NextFrame(ctx context.Context) (ports.RawFrame, error) {
	c.mu.Lock()
	reader := c.reader
	fps := c.fps
	c.mu.Unlock()
	if reader == nil {
		return ports.RawFrame{}, ErrNotStarted
	}
	if err := ctx.Err(); err != nil {
		return ports.RawFrame{}, err
	}

	data := make([]byte, c.frameSize())
	if _, err := io.ReadFull(reader, data); err != nil {
		if msg := strings.TrimSpace(c.stderrString()); msg != "" {
			return ports.RawFrame{}, fmt.Errorf("ffmpeg capture ended: %w: %s", err, msg)
		}
		return ports.RawFrame{}, fmt.Errorf("ffmpeg capture ended: %w", err)
	}

	c.mu.Lock()
	index := c.frames
	c.frames++
	c.mu.Unlock()

	return ports.RawFrame{
		PixelFormat: ports.PixelFormatBGRA,
		Width:       c.opts.Width,
		Height:      c.opts.Height,
		Data:        data,
		DisplayTime: frameTime(index, fps),
	}, nil
}

// Stop kills ffmpeg and waits for it to exit.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd == nil {
		return nil
	}
	c.cancel()
	c.cmd.Wait()
	c.cmd = nil
	c.reader = nil
	return nil
}

func (c *Capture) stderrString() string {
	c.mu.Lock()
	buf := c.stderr
	c.mu.Unlock()
	if buf == nil {
		return ""
	}
	return buf.String()
}

// syncBuffer collects ffmpeg's stderr while it is being written.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var (
	_ ports.CaptureBackend  = (*Capture)(nil)
	_ ports.PlatformChecker = (*Capture)(nil)
)
