// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/stepcast/pkg/ports"
	"github.com/user/stepcast/pkg/session"
)

// Capture sources.
const (
	SourceTestPattern = "testpattern"
	SourceBrowser     = "browser"
	SourceDesktop     = "desktop"
)

// Tracker sources.
const (
	TrackerStdin    = "stdin"
	TrackerInterval = "interval"
	TrackerBrowser  = "browser"
)

// MaxFPS is the highest capture rate accepted.
const MaxFPS = 60

// Config represents the full configuration for stepcast.
type Config struct {
	// Output
	OutputDir  string          `yaml:"output_dir"`
	Summary    bool            `yaml:"summary"`
	Thumbnails ThumbnailConfig `yaml:"thumbnails"`

	// Recording
	FPS        int    `yaml:"fps"`
	ShowCursor bool   `yaml:"show_cursor"`
	Source     string `yaml:"source"`
	Tracker    string `yaml:"tracker"`

	Interval IntervalConfig `yaml:"interval"`
	Encoder  EncoderConfig  `yaml:"encoder"`
	Capture  CaptureConfig  `yaml:"capture"`
	Browser  BrowserConfig  `yaml:"browser"`
	Control  ControlConfig  `yaml:"control"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// ThumbnailConfig controls the still written for each step.
type ThumbnailConfig struct {
	Enabled bool `yaml:"enabled"`
	Width   int  `yaml:"width"`
}

// IntervalConfig drives the interval tracker.
type IntervalConfig struct {
	Every time.Duration `yaml:"every"`
	Count int           `yaml:"count"`
}

// EncoderConfig selects and tunes the per-step encoder.
type EncoderConfig struct {
	Codec         string `yaml:"codec"`
	Quality       int    `yaml:"quality"`
	MaxWidth      int    `yaml:"max_width"`
	FFmpegPath    string `yaml:"ffmpeg_path"`
	AllowFallback bool   `yaml:"allow_fallback"`
}

// CaptureConfig applies to the desktop and test pattern sources.
type CaptureConfig struct {
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	Display string `yaml:"display"`
	Input   string `yaml:"input"`
}

// BrowserConfig applies to the browser source and tracker.
type BrowserConfig struct {
	URL               string            `yaml:"url"`
	ChromePath        string            `yaml:"chrome_path"`
	Headless          bool              `yaml:"headless"`
	UserAgent         string            `yaml:"user_agent"`
	Headers           map[string]string `yaml:"headers"`
	IgnoreHTTPSErrors bool              `yaml:"ignore_https_errors"`
	Incognito         bool              `yaml:"incognito"`
}

// ControlConfig enables the websocket control server when Address is set.
type ControlConfig struct {
	Address string `yaml:"address"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		OutputDir: "./recordings",
		Summary:   true,
		Thumbnails: ThumbnailConfig{
			Enabled: true,
			Width:   320,
		},

		FPS:     12,
		Source:  SourceTestPattern,
		Tracker: TrackerStdin,

		Interval: IntervalConfig{
			Every: 5 * time.Second,
		},
		Encoder: EncoderConfig{
			Codec:   "auto",
			Quality: 75,
		},
		Capture: CaptureConfig{
			Width:  1280,
			Height: 720,
		},
		Browser: BrowserConfig{
			URL:       "about:blank",
			Headless:  true,
			Incognito: true,
		},

		LogLevel: "info",
	}
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Validate returns an error naming the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.OutputDir == "":
		return fmt.Errorf("output_dir: must not be empty")
	case c.FPS < 1 || c.FPS > MaxFPS:
		return fmt.Errorf("fps: %d out of range 1-%d", c.FPS, MaxFPS)
	}

	switch c.Source {
	case SourceTestPattern, SourceBrowser, SourceDesktop:
	default:
		return fmt.Errorf("source: unknown source %q", c.Source)
	}

	switch c.Tracker {
	case TrackerStdin, TrackerInterval:
	case TrackerBrowser:
		if c.Source != SourceBrowser {
			return fmt.Errorf("tracker: browser tracking needs the browser source")
		}
	default:
		return fmt.Errorf("tracker: unknown tracker %q", c.Tracker)
	}

	if c.Tracker == TrackerInterval && c.Interval.Every <= 0 {
		return fmt.Errorf("interval.every: must be positive")
	}
	if c.Interval.Count < 0 {
		return fmt.Errorf("interval.count: must not be negative")
	}

	switch c.Encoder.Codec {
	case "", "auto", "h264", "mjpeg":
	default:
		return fmt.Errorf("encoder.codec: unknown codec %q", c.Encoder.Codec)
	}
	if c.Encoder.Quality < 0 || c.Encoder.Quality > 100 {
		return fmt.Errorf("encoder.quality: %d out of range 0-100", c.Encoder.Quality)
	}
	if c.Encoder.MaxWidth < 0 {
		return fmt.Errorf("encoder.max_width: must not be negative")
	}

	if c.Thumbnails.Width < 0 {
		return fmt.Errorf("thumbnails.width: must not be negative")
	}

	if c.Capture.Width < 0 || c.Capture.Height < 0 {
		return fmt.Errorf("capture: dimensions must not be negative")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "quiet":
	default:
		return fmt.Errorf("log_level: unknown level %q", c.LogLevel)
	}
	return nil
}

// ThumbnailDir is where step thumbnails are written.
func (c Config) ThumbnailDir() string {
	return filepath.Join(c.OutputDir, "thumbnails")
}

// ToSessionConfig converts Config to session.Config.
func (c Config) ToSessionConfig() session.Config {
	return session.Config{
		OutputDir:    c.OutputDir,
		FPS:          c.FPS,
		ShowCursor:   c.ShowCursor,
		WriteSummary: c.Summary,
		SourceName:   c.Source,
		TrackerName:  c.Tracker,
	}
}

// EncoderOptions returns the options handed to encoder factories.
func (c Config) EncoderOptions() ports.EncoderOptions {
	return ports.EncoderOptions{
		FPS:      c.FPS,
		Quality:  c.Encoder.Quality,
		MaxWidth: c.Encoder.MaxWidth,
	}
}

// Level returns the parsed log level.
func (c Config) Level() ports.LogLevel {
	return ports.ParseLogLevel(c.LogLevel)
}
