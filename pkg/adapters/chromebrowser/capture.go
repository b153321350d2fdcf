package chromebrowser

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/user/stepcast/pkg/pixconv"
	"github.com/user/stepcast/pkg/ports"
)

// ErrScreencastEnded is returned by NextFrame after Stop or when the browser goes away.
var ErrScreencastEnded = errors.New("chromebrowser: screencast ended")

const screencastBuffer = 64

type screencastFrame struct {
	jpeg []byte
	at   time.Duration
}

// Capture adapts the page screencast to ports.CaptureBackend. Chrome only
// sends a frame when the page repaints; when it stays idle for a frame
// interval NextFrame repeats the last image with a fresh display time, so
// frames keep arriving at the configured rate on a static page.
type Capture struct {
	browser *Browser
	logger  ports.Logger

	// Quality is the screencast JPEG quality. Zero selects 80.
	Quality int

	mu      sync.Mutex
	frames  chan screencastFrame
	done    chan struct{}
	gone    <-chan struct{}
	active   bool
	epoch    time.Time
	interval time.Duration
	dropped  atomic.Int64

	// last is only touched by the NextFrame caller.
	last ports.RawFrame
}

const defaultFPS = 12

// Supported reports whether a Chrome binary can be found.
func (c *Capture) Supported() bool {
	_, err := FindChrome(c.browser.opts.ChromePath)
	return err == nil
}

// HasPermission is always true; a page screencast needs no OS permission.
func (c *Capture) HasPermission() bool { return true }

// Start launches the browser if needed and begins the screencast.
func (c *Capture) Start(ctx context.Context, opts ports.CaptureOptions) error {
	if err := c.browser.Launch(ctx); err != nil {
		return err
	}
	bctx, err := c.browser.context()
	if err != nil {
		return err
	}

	if err := c.begin(opts.FPS, bctx.Done()); err != nil {
		return err
	}

	chromedp.ListenTarget(bctx, func(ev interface{}) {
		e, ok := ev.(*page.EventScreencastFrame)
		if !ok {
			return
		}
		data, err := base64.StdEncoding.DecodeString(e.Data)
		if err == nil {
			c.offer(screencastFrame{jpeg: data, at: time.Since(c.epoch)})
		}
		go chromedp.Run(bctx, page.ScreencastFrameAck(e.SessionID))
	})

	quality := c.Quality
	if quality <= 0 {
		quality = 80
	}

	// everyNthFrame thins Chrome's 60 Hz compositor output to roughly opts.FPS.
	nth := int64(1)
	if opts.FPS > 0 && opts.FPS < 60 {
		nth = int64(60 / opts.FPS)
	}

	c.logger.Debug("Starting screencast")
	err = chromedp.Run(bctx,
		page.StartScreencast().
			WithFormat(page.ScreencastFormatJpeg).
			WithQuality(int64(quality)).
			WithEveryNthFrame(nth),
	)
	if err != nil {
		c.halt()
		return fmt.Errorf("start screencast: %w", err)
	}
	return nil
}

// begin resets the frame queue for a new screencast.
func (c *Capture) begin(fps int, gone <-chan struct{}) error {
	if fps <= 0 {
		fps = defaultFPS
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return fmt.Errorf("screencast already active")
	}
	c.frames = make(chan screencastFrame, screencastBuffer)
	c.done = make(chan struct{})
	c.gone = gone
	c.epoch = time.Now()
	c.interval = time.Second / time.Duration(fps)
	c.active = true
	c.last = ports.RawFrame{}
	return nil
}

// halt closes the frame queue. It reports whether a screencast was active.
func (c *Capture) halt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return false
	}
	c.active = false
	close(c.done)
	return true
}

func (c *Capture) offer(f screencastFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	select {
	case c.frames <- f:
	default:
		c.dropped.Add(1)
	}
}

// NextFrame decodes the next screencast image into a BGRA frame. After one
// frame interval without a new image it returns the previous frame again, or
// an empty frame before the first image, which the router skips.
func (c *Capture) NextFrame(ctx context.Context) (ports.RawFrame, error) {
	c.mu.Lock()
	frames, done, gone, interval, epoch := c.frames, c.done, c.gone, c.interval, c.epoch
	c.mu.Unlock()
	if frames == nil {
		return ports.RawFrame{}, ErrScreencastEnded
	}
	select {
	case <-done:
		return ports.RawFrame{}, ErrScreencastEnded
	default:
	}

	idle := time.NewTimer(interval)
	defer idle.Stop()

	select {
	case <-ctx.Done():
		return ports.RawFrame{}, ctx.Err()
	case <-done:
		return ports.RawFrame{}, ErrScreencastEnded
	case <-gone:
		return ports.RawFrame{}, fmt.Errorf("%w: browser closed", ErrScreencastEnded)
	case <-idle.C:
		frame := c.last
		frame.DisplayTime = uint64(time.Since(epoch))
		return frame, nil
	case f := <-frames:
		img, err := jpeg.Decode(bytes.NewReader(f.jpeg))
		if err != nil {
			// A corrupt image is delivered as an empty frame, which the router skips.
			c.logger.Debug("Failed to decode screencast frame: %v", err)
			return ports.RawFrame{DisplayTime: uint64(f.at)}, nil
		}
		b := img.Bounds()
		c.last = ports.RawFrame{
			PixelFormat: ports.PixelFormatBGRA,
			Width:       b.Dx(),
			Height:      b.Dy(),
			Stride:      b.Dx() * 4,
			Data:        pixconv.ImageToBGRA(img),
			DisplayTime: uint64(f.at),
		}
		return c.last, nil
	}
}

// Stop ends the screencast and closes the browser.
func (c *Capture) Stop() error {
	if c.halt() {
		if bctx, err := c.browser.context(); err == nil {
			stopCtx, cancel := context.WithTimeout(bctx, 5*time.Second)
			chromedp.Run(stopCtx, page.StopScreencast())
			cancel()
		}
		if n := c.dropped.Load(); n > 0 {
			c.logger.Warn("Dropped %d screencast frames", n)
		}
	}
	return c.browser.Close()
}

var (
	_ ports.CaptureBackend  = (*Capture)(nil)
	_ ports.PlatformChecker = (*Capture)(nil)
)
