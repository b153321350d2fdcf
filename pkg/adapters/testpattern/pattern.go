// Package testpattern provides a synthetic capture source rendered with gg.
//
// It stands in for a real screen when trying out the recorder or running it
// in CI: frames arrive at a steady rate and show a frame counter, a moving
// bar and an optional caption.
package testpattern

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"
	"time"

	"github.com/fogleman/gg"

	"github.com/user/stepcast/pkg/ports"
)

// ErrExhausted is returned by NextFrame once Limit frames have been produced.
var ErrExhausted = errors.New("testpattern: frame limit reached")

// ErrNotStarted is returned by NextFrame before Start.
var ErrNotStarted = errors.New("testpattern: not started")

// DefaultFPS is used when neither Options nor CaptureOptions set a rate.
const DefaultFPS = 12

// Options configures the pattern.
type Options struct {
	Width  int
	Height int
	// Limit stops the source after this many frames. Zero means unlimited.
	Limit int
	// Caption, if set, is drawn under the counter on every frame.
	Caption func() string
}

// Source renders frames on a ticker.
type Source struct {
	opts Options

	mu     sync.Mutex
	dc     *gg.Context
	ticker *time.Ticker
	epoch  time.Time
	n      int
}

// New creates a pattern source. Missing dimensions default to 640x360.
func New(opts Options) *Source {
	if opts.Width <= 0 {
		opts.Width = 640
	}
	if opts.Height <= 0 {
		opts.Height = 360
	}
	return &Source{opts: opts}
}

// Start begins the frame clock.
func (s *Source) Start(ctx context.Context, opts ports.CaptureOptions) error {
	fps := opts.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		return fmt.Errorf("testpattern: already started")
	}
	s.dc = gg.NewContext(s.opts.Width, s.opts.Height)
	s.ticker = time.NewTicker(time.Second / time.Duration(fps))
	s.epoch = time.Now()
	return nil
}

// NextFrame waits for the next tick and renders a frame.
func (s *Source) NextFrame(ctx context.Context) (ports.RawFrame, error) {
	s.mu.Lock()
	ticker := s.ticker
	s.mu.Unlock()
	if ticker == nil {
		return ports.RawFrame{}, ErrNotStarted
	}

	select {
	case <-ctx.Done():
		return ports.RawFrame{}, ctx.Err()
	case <-ticker.C:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker == nil {
		return ports.RawFrame{}, ErrNotStarted
	}
	if s.opts.Limit > 0 && s.n >= s.opts.Limit {
		return ports.RawFrame{}, ErrExhausted
	}
	s.n++

	elapsed := time.Since(s.epoch)
	img := s.render(s.n, elapsed)
	data := make([]byte, len(img.Pix))
	copy(data, img.Pix)

	return ports.RawFrame{
		PixelFormat: ports.PixelFormatRGBA,
		Width:       s.opts.Width,
		Height:      s.opts.Height,
		Stride:      img.Stride,
		Data:        data,
		DisplayTime: uint64(elapsed),
	}, nil
}

// Stop releases the ticker.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	return nil
}

// Frames returns how many frames have been produced.
func (s *Source) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func (s *Source) render(n int, elapsed time.Duration) *image.RGBA {
	dc := s.dc
	w, h := float64(s.opts.Width), float64(s.opts.Height)

	hue := math.Mod(elapsed.Seconds()*36, 360)
	dc.SetColor(hsv(hue, 0.35, 0.25))
	dc.Clear()

	// A bar that sweeps across the frame once every two seconds.
	phase := math.Mod(elapsed.Seconds(), 2) / 2
	dc.SetColor(hsv(math.Mod(hue+180, 360), 0.7, 0.9))
	dc.DrawRectangle(phase*w-w/10, h*0.7, w/5, h*0.1)
	dc.Fill()

	dc.SetColor(color.White)
	dc.DrawStringAnchored(fmt.Sprintf("frame %d  %.2fs", n, elapsed.Seconds()), w/2, h*0.4, 0.5, 0.5)
	if s.opts.Caption != nil {
		if caption := s.opts.Caption(); caption != "" {
			dc.DrawStringAnchored(caption, w/2, h*0.5, 0.5, 0.5)
		}
	}

	return dc.Image().(*image.RGBA)
}

// hsv converts h in degrees and s, v in [0,1] to an opaque colour.
func hsv(h, s, v float64) color.Color {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return color.RGBA{
		R: uint8((r + m) * 255),
		G: uint8((g + m) * 255),
		B: uint8((b + m) * 255),
		A: 255,
	}
}

var (
	_ ports.CaptureBackend = (*Source)(nil)
)
