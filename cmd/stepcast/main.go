// Package main provides the CLI entry point for stepcast.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/stepcast/pkg/adapters/chromebrowser"
	"github.com/user/stepcast/pkg/adapters/ffmpegcapture"
	"github.com/user/stepcast/pkg/adapters/filesink"
	"github.com/user/stepcast/pkg/adapters/ggrenderer"
	"github.com/user/stepcast/pkg/adapters/h264encoder"
	"github.com/user/stepcast/pkg/adapters/logger"
	"github.com/user/stepcast/pkg/adapters/nullsink"
	"github.com/user/stepcast/pkg/adapters/osfilesystem"
	"github.com/user/stepcast/pkg/adapters/scriptedinput"
	"github.com/user/stepcast/pkg/adapters/smartencoder"
	"github.com/user/stepcast/pkg/adapters/testpattern"
	"github.com/user/stepcast/pkg/adapters/wscontrol"
	"github.com/user/stepcast/pkg/config"
	"github.com/user/stepcast/pkg/ports"
	"github.com/user/stepcast/pkg/probe"
	"github.com/user/stepcast/pkg/session"
	"github.com/user/stepcast/pkg/tracker"
)

var version = "dev"

// Flag categories
const (
	catOutput   = "Output"
	catCapture  = "Capture"
	catInput    = "Input Tracking"
	catEncoding = "Encoding"
	catBrowser  = "Browser"
	catControl  = "Remote Control"
	catLogging  = "Logging"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "stepcast",
		Usage:   l10n.T("Record screen activity as one video per step"),
		Version: version,
		Description: l10n.T("stepcast records the screen and starts a new video file at every click, " +
			"so each step of a walkthrough ends up in its own clip."),
		Commands: []*cli.Command{
			recordCommand(),
			probeCommand(),
			versionCommand(),
		},
	}
}

func recordCommand() *cli.Command {
	return &cli.Command{
		Name:  "record",
		Usage: l10n.T("Record steps until input tracking ends or the session is stopped"),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Category: l10n.T(catOutput),
				Usage: l10n.T("YAML configuration file; flags override its values")},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Category: l10n.T(catOutput),
				Usage: l10n.T("Directory for step videos and the summary")},
			&cli.BoolFlag{Name: "no-summary", Category: l10n.T(catOutput),
				Usage: l10n.T("Do not write summary.md and summary.json")},
			&cli.BoolFlag{Name: "no-thumbnails", Category: l10n.T(catOutput),
				Usage: l10n.T("Do not save a thumbnail of each step")},
			&cli.IntFlag{Name: "thumbnail-width", Category: l10n.T(catOutput),
				Usage: l10n.T("Maximum thumbnail width in pixels")},

			&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Category: l10n.T(catCapture),
				Usage: l10n.T("Capture source (testpattern, browser, desktop)")},
			&cli.IntFlag{Name: "fps", Category: l10n.T(catCapture),
				Usage: l10n.T("Capture frame rate")},
			&cli.IntFlag{Name: "width", Aliases: []string{"W"}, Category: l10n.T(catCapture),
				Usage: l10n.T("Capture width in pixels")},
			&cli.IntFlag{Name: "height", Aliases: []string{"H"}, Category: l10n.T(catCapture),
				Usage: l10n.T("Capture height in pixels")},
			&cli.StringFlag{Name: "display", Category: l10n.T(catCapture),
				Usage: l10n.T("Display to grab for the desktop source")},
			&cli.StringFlag{Name: "input", Category: l10n.T(catCapture),
				Usage: l10n.T("Raw ffmpeg input for the desktop source (e.g., lavfi:testsrc2)")},
			&cli.BoolFlag{Name: "show-cursor", Category: l10n.T(catCapture),
				Usage: l10n.T("Include the mouse cursor in captured frames")},

			&cli.StringFlag{Name: "tracker", Aliases: []string{"t"}, Category: l10n.T(catInput),
				Usage: l10n.T("Click source (stdin, interval, browser)")},
			&cli.DurationFlag{Name: "interval", Category: l10n.T(catInput),
				Usage: l10n.T("Click period for the interval tracker")},
			&cli.IntFlag{Name: "count", Category: l10n.T(catInput),
				Usage: l10n.T("Stop after this many clicks (interval tracker, 0 = unlimited)")},

			&cli.StringFlag{Name: "encoder", Aliases: []string{"e"}, Category: l10n.T(catEncoding),
				Usage: l10n.T("Video codec (auto, h264, mjpeg)")},
			&cli.IntFlag{Name: "quality", Aliases: []string{"q"}, Category: l10n.T(catEncoding),
				Usage: l10n.T("Video quality (1-100, higher is better)")},
			&cli.IntFlag{Name: "max-width", Category: l10n.T(catEncoding),
				Usage: l10n.T("Downscale wider frames to this width (0 = keep)")},
			&cli.StringFlag{Name: "ffmpeg-path", Category: l10n.T(catEncoding),
				Usage: l10n.T("Path to ffmpeg executable")},
			&cli.BoolFlag{Name: "allow-fallback", Category: l10n.T(catEncoding),
				Usage: l10n.T("Fall back to MJPEG when H.264 is requested but unavailable")},

			&cli.StringFlag{Name: "url", Category: l10n.T(catBrowser),
				Usage: l10n.T("Page to open for the browser source")},
			&cli.StringFlag{Name: "chrome-path", Category: l10n.T(catBrowser),
				Usage: l10n.T("Path to Chrome executable")},
			&cli.BoolFlag{Name: "no-headless", Category: l10n.T(catBrowser),
				Usage: l10n.T("Run browser in non-headless mode")},
			&cli.BoolFlag{Name: "ignore-https-errors", Category: l10n.T(catBrowser),
				Usage: l10n.T("Ignore HTTPS certificate errors")},

			&cli.StringFlag{Name: "control", Category: l10n.T(catControl),
				Usage: l10n.T("Serve the websocket control channel on this address (e.g., 127.0.0.1:7700)")},

			&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Category: l10n.T(catLogging),
				Usage: l10n.T("Log level (debug, info, warn, error)")},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"Q"}, Category: l10n.T(catLogging),
				Usage: l10n.T("Suppress all log output")},
		},
		Action: runRecord,
	}
}

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:      "probe",
		Usage:     l10n.T("Show frame count, duration and size of recorded clips"),
		ArgsUsage: "<file.mp4>...",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: l10n.T("Print results as JSON")},
		},
		Action: runProbe,
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: l10n.T("Show version information"),
		Action: func(c *cli.Context) error {
			fmt.Fprintln(c.App.Writer, l10n.F("stepcast version %s", version))
			return nil
		},
	}
}

// buildConfig loads the config file, if any, and applies flag overrides.
func buildConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if c.IsSet("output") {
		cfg.OutputDir = c.String("output")
	}
	if c.Bool("no-summary") {
		cfg.Summary = false
	}
	if c.Bool("no-thumbnails") {
		cfg.Thumbnails.Enabled = false
	}
	if c.IsSet("thumbnail-width") {
		cfg.Thumbnails.Width = c.Int("thumbnail-width")
	}
	if c.IsSet("source") {
		cfg.Source = c.String("source")
	}
	if c.IsSet("fps") {
		cfg.FPS = c.Int("fps")
	}
	if c.IsSet("width") {
		cfg.Capture.Width = c.Int("width")
	}
	if c.IsSet("height") {
		cfg.Capture.Height = c.Int("height")
	}
	if c.IsSet("display") {
		cfg.Capture.Display = c.String("display")
	}
	if c.IsSet("input") {
		cfg.Capture.Input = c.String("input")
	}
	if c.Bool("show-cursor") {
		cfg.ShowCursor = true
	}
	if c.IsSet("tracker") {
		cfg.Tracker = c.String("tracker")
	}
	if c.IsSet("interval") {
		cfg.Interval.Every = c.Duration("interval")
	}
	if c.IsSet("count") {
		cfg.Interval.Count = c.Int("count")
	}
	if c.IsSet("encoder") {
		cfg.Encoder.Codec = c.String("encoder")
	}
	if c.IsSet("quality") {
		cfg.Encoder.Quality = c.Int("quality")
	}
	if c.IsSet("max-width") {
		cfg.Encoder.MaxWidth = c.Int("max-width")
	}
	if c.IsSet("ffmpeg-path") {
		cfg.Encoder.FFmpegPath = c.String("ffmpeg-path")
	}
	if c.Bool("allow-fallback") {
		cfg.Encoder.AllowFallback = true
	}
	if c.IsSet("url") {
		cfg.Browser.URL = c.String("url")
	}
	if c.IsSet("chrome-path") {
		cfg.Browser.ChromePath = c.String("chrome-path")
	}
	if c.Bool("no-headless") {
		cfg.Browser.Headless = false
	}
	if c.Bool("ignore-https-errors") {
		cfg.Browser.IgnoreHTTPSErrors = true
	}
	if c.IsSet("control") {
		cfg.Control.Address = c.String("control")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.Bool("quiet") {
		cfg.LogLevel = "quiet"
	}

	return cfg, cfg.Validate()
}

// recorder holds the adapters chosen by the configuration.
type recorder struct {
	backend ports.CaptureBackend
	sources []tracker.Source
	browser *chromebrowser.Browser
	caption func() string
}

func buildRecorder(cfg config.Config, c *cli.Context, log ports.Logger) *recorder {
	r := &recorder{}

	if cfg.Source == config.SourceBrowser || cfg.Tracker == config.TrackerBrowser {
		r.browser = chromebrowser.New(chromebrowser.Options{
			URL:               cfg.Browser.URL,
			Headless:          cfg.Browser.Headless,
			ChromePath:        cfg.Browser.ChromePath,
			UserAgent:         cfg.Browser.UserAgent,
			Headers:           cfg.Browser.Headers,
			Width:             cfg.Capture.Width,
			Height:            cfg.Capture.Height,
			IgnoreHTTPSErrors: cfg.Browser.IgnoreHTTPSErrors,
			Incognito:         cfg.Browser.Incognito,
		}, log)
	}

	switch cfg.Source {
	case config.SourceBrowser:
		r.backend = r.browser.Capture()
	case config.SourceDesktop:
		r.backend = ffmpegcapture.New(ffmpegcapture.Options{
			Width:   cfg.Capture.Width,
			Height:  cfg.Capture.Height,
			Display: cfg.Capture.Display,
			Input:   cfg.Capture.Input,
		}, log)
	default:
		r.backend = testpattern.New(testpattern.Options{
			Width:   cfg.Capture.Width,
			Height:  cfg.Capture.Height,
			Caption: func() string { return r.caption() },
		})
	}

	pid := int64(os.Getpid())
	switch cfg.Tracker {
	case config.TrackerBrowser:
		r.sources = append(r.sources, r.browser.Clicks())
	case config.TrackerInterval:
		r.sources = append(r.sources, &scriptedinput.Interval{
			Every: cfg.Interval.Every,
			Count: cfg.Interval.Count,
			PID:   pid,
		})
	default:
		r.sources = append(r.sources, &scriptedinput.Terminal{In: c.App.Reader, PID: pid})
	}

	r.caption = func() string { return "" }
	return r
}

func newLogger(cfg config.Config) ports.Logger {
	if cfg.Level() == ports.LevelQuiet {
		return logger.NewNoop()
	}
	return logger.NewConsoleWithOptions(logger.ConsoleOptions{
		Level:   cfg.Level(),
		Elapsed: cfg.Level() == ports.LevelDebug,
	})
}

func runRecord(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	if cfg.Encoder.FFmpegPath != "" {
		h264encoder.SetFFmpegPath(cfg.Encoder.FFmpegPath)
	}

	codec, err := smartencoder.ParseCodec(cfg.Encoder.Codec)
	if err != nil {
		return err
	}
	factory, info, err := smartencoder.New(codec, smartencoder.Options{
		Encoder:       cfg.EncoderOptions(),
		FFmpegPath:    cfg.Encoder.FFmpegPath,
		AllowFallback: cfg.Encoder.AllowFallback,
		Logger:        log.WithComponent("encoder"),
	})
	if err != nil {
		return err
	}
	log.Info("Encoding with %s (%s)", info.Codec, info.Backend)

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	rec := buildRecorder(cfg, c, log)
	if rec.browser != nil {
		defer rec.browser.Close()
	}

	hub := tracker.NewHub(log.WithComponent("tracker"), rec.sources...)
	defer hub.Close()

	fs := osfilesystem.New()
	var thumbs ports.ThumbnailSink = nullsink.New()
	if cfg.Thumbnails.Enabled {
		thumbs = filesink.New(cfg.ThumbnailDir(), cfg.Thumbnails.Width, fs, ggrenderer.New())
	}

	sess := session.New(cfg.ToSessionConfig(), session.Deps{
		Backend:    rec.backend,
		Tracker:    hub,
		Encoders:   factory,
		FS:         fs,
		Thumbnails: thumbs,
	}, log)
	rec.caption = func() string {
		return l10n.F("Step %d", sess.Snapshot().Step)
	}

	if cfg.Control.Address != "" {
		srv := wscontrol.New(sess, log)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.Control.Address); err != nil {
				log.Error("Control server failed: %s", err)
			}
		}()
	}

	// First signal stops the session gracefully, the second aborts.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		log.Warn("Interrupted, finishing current step...")
		sess.Stop()
		select {
		case <-sigCh:
			log.Warn("Interrupted again, aborting")
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.Tracker == config.TrackerStdin {
		log.Info("Press Enter to start a new step, q to finish")
	}

	report, err := sess.Run(ctx)
	for _, step := range report.Result.Artifacts() {
		log.Info("Step %d: %s (%d frames)", step.Step, step.Path, step.Frames)
	}
	return err
}

func runProbe(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New(l10n.T("At least one video file is required"))
	}

	var infos []*probe.Info
	for _, path := range c.Args().Slice() {
		info, err := probe.File(path)
		if err != nil {
			return err
		}
		infos = append(infos, info)
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	for _, info := range infos {
		fmt.Fprintln(c.App.Writer, l10n.F("%s: %s %dx%d, %d frames (%d key), %s",
			info.Path, info.Codec, info.Width, info.Height, info.Samples, info.Keyframes, info.Duration))
	}
	return nil
}
