// Package chromebrowser records a Chrome page with chromedp.
//
// The page screencast is exposed as a ports.CaptureBackend and pointer input
// inside the page as a tracker.Source, so one browser drives both the frame
// and the click side of a session.
package chromebrowser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/user/stepcast/pkg/ports"
)

// ErrNotLaunched is returned when the browser is used before Launch.
var ErrNotLaunched = errors.New("chromebrowser: browser not launched")

// Options configures the browser launch.
type Options struct {
	URL               string
	Headless          bool
	ChromePath        string
	UserAgent         string
	Headers           map[string]string
	Width             int // Viewport width in CSS pixels
	Height            int // Viewport height in CSS pixels
	IgnoreHTTPSErrors bool
	Incognito         bool
}

// Browser owns one Chrome instance and its first tab.
type Browser struct {
	opts   Options
	logger ports.Logger

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	launched    bool
	pid         int64
}

// New creates a Browser. Nothing is started until Launch.
func New(opts Options, logger ports.Logger) *Browser {
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 800
	}
	return &Browser{opts: opts, logger: logger.WithComponent("browser")}
}

// Launch starts Chrome, applies the viewport and navigates to the configured URL.
// Calling Launch again does nothing.
func (b *Browser) Launch(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.launched {
		return nil
	}

	chromePath, err := FindChrome(b.opts.ChromePath)
	if err != nil {
		return err
	}

	chromedpOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.ExecPath(chromePath),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(b.opts.Width, b.opts.Height),
	}

	if b.opts.Headless {
		chromedpOpts = append(chromedpOpts, chromedp.Flag("headless", "new"))
	} else {
		chromedpOpts = append(chromedpOpts, chromedp.Flag("headless", false))
	}
	if b.opts.Incognito {
		chromedpOpts = append(chromedpOpts, chromedp.Flag("incognito", true))
	}
	if b.opts.UserAgent != "" {
		chromedpOpts = append(chromedpOpts, chromedp.UserAgent(b.opts.UserAgent))
	}
	if b.opts.IgnoreHTTPSErrors {
		chromedpOpts = append(chromedpOpts,
			chromedp.Flag("ignore-certificate-errors", true),
			chromedp.Flag("allow-insecure-localhost", true))
	}

	if b.opts.Headless {
		b.logger.Debug("Launching browser in headless mode")
	} else {
		b.logger.Debug("Launching browser in visible mode")
	}

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(ctx, chromedpOpts...)
	b.ctx, b.cancel = chromedp.NewContext(b.allocCtx)

	// The first Run starts the browser process.
	actions := []chromedp.Action{
		network.Enable(),
		emulation.SetDeviceMetricsOverride(int64(b.opts.Width), int64(b.opts.Height), 1, false),
	}
	if len(b.opts.Headers) > 0 {
		headers := make(network.Headers, len(b.opts.Headers))
		for k, v := range b.opts.Headers {
			headers[k] = v
		}
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	if err := chromedp.Run(b.ctx, actions...); err != nil {
		b.closeLocked()
		return fmt.Errorf("start browser: %w", err)
	}

	if c := chromedp.FromContext(b.ctx); c != nil && c.Browser != nil {
		if proc := c.Browser.Process(); proc != nil {
			b.pid = int64(proc.Pid)
		}
	}
	b.launched = true

	if b.opts.URL != "" {
		b.logger.Debug("Navigating to %s", b.opts.URL)
		if err := chromedp.Run(b.ctx, chromedp.Navigate(b.opts.URL)); err != nil {
			return fmt.Errorf("navigate: %w", err)
		}
	}
	return nil
}

// Navigate loads url in the tab.
func (b *Browser) Navigate(url string) error {
	ctx, err := b.context()
	if err != nil {
		return err
	}
	return chromedp.Run(ctx, chromedp.Navigate(url))
}

// PID returns the browser process id, or 0 before Launch.
func (b *Browser) PID() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pid
}

// Capture returns the screencast as a capture backend.
func (b *Browser) Capture() *Capture {
	return &Capture{browser: b, logger: b.logger}
}

// Clicks returns the in-page pointer source.
func (b *Browser) Clicks() *ClickSource {
	return &ClickSource{browser: b}
}

// Close shuts down the browser.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
	return nil
}

func (b *Browser) closeLocked() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}

	// Give Chrome a moment to shut down gracefully, then force kill
	time.Sleep(100 * time.Millisecond)

	if b.allocCancel != nil {
		b.allocCancel()
		b.allocCancel = nil
	}
	if b.launched {
		b.logger.Debug("Browser closed")
	}
	b.launched = false
}

func (b *Browser) context() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.launched {
		return nil, ErrNotLaunched
	}
	return b.ctx, nil
}
