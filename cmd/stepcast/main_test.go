package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/user/stepcast/pkg/config"
	"github.com/user/stepcast/pkg/probe"
	"github.com/user/stepcast/pkg/session"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"stepcast"}, args...))
	return out.String(), err
}

// parseRecord runs the record flag parsing without recording.
func parseRecord(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()
	cmd := recordCommand()
	var cfg config.Config
	var cfgErr error
	cmd.Action = func(c *cli.Context) error {
		cfg, cfgErr = buildConfig(c)
		return nil
	}
	app := &cli.App{Name: "stepcast", Commands: []*cli.Command{cmd}}
	if err := app.Run(append([]string{"stepcast", "record"}, args...)); err != nil {
		t.Fatalf("app.Run failed: %v", err)
	}
	return cfg, cfgErr
}

func TestBuildConfig_Defaults(t *testing.T) {
	cfg, err := parseRecord(t)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def := config.Defaults()
	if cfg.OutputDir != def.OutputDir || cfg.FPS != def.FPS || cfg.Source != def.Source {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestBuildConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stepcast.yaml")
	data := "output_dir: /from/file\nfps: 8\nencoder:\n  codec: h264\n  quality: 40\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := parseRecord(t,
		"-c", path,
		"--fps", "24",
		"--tracker", "interval",
		"--interval", "2s",
		"--count", "4",
		"--no-summary",
		"--no-thumbnails",
		"--thumbnail-width", "200",
		"-Q",
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.OutputDir != "/from/file" {
		t.Errorf("expected file output dir, got %s", cfg.OutputDir)
	}
	if cfg.FPS != 24 {
		t.Errorf("expected fps flag to win, got %d", cfg.FPS)
	}
	if cfg.Encoder.Codec != "h264" || cfg.Encoder.Quality != 40 {
		t.Errorf("expected encoder from file, got %+v", cfg.Encoder)
	}
	if cfg.Tracker != config.TrackerInterval || cfg.Interval.Every != 2*time.Second || cfg.Interval.Count != 4 {
		t.Errorf("unexpected tracker config: %s %+v", cfg.Tracker, cfg.Interval)
	}
	if cfg.Summary {
		t.Error("expected summary disabled")
	}
	if cfg.Thumbnails.Enabled || cfg.Thumbnails.Width != 200 {
		t.Errorf("unexpected thumbnail config: %+v", cfg.Thumbnails)
	}
	if cfg.LogLevel != "quiet" {
		t.Errorf("expected quiet log level, got %s", cfg.LogLevel)
	}
}

func TestBuildConfig_Invalid(t *testing.T) {
	if _, err := parseRecord(t, "--source", "webcam"); err == nil {
		t.Error("expected error for unknown source")
	}
	if _, err := parseRecord(t, "--tracker", "browser"); err == nil {
		t.Error("expected error for browser tracker without browser source")
	}
}

func TestRecordAndProbe(t *testing.T) {
	dir := t.TempDir()

	_, err := runApp(t, "record",
		"-Q",
		"-o", dir,
		"--source", "testpattern",
		"-W", "64", "-H", "48",
		"--fps", "20",
		"--tracker", "interval",
		"--interval", "200ms",
		"--count", "3",
		"--encoder", "mjpeg",
	)
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, session.SummaryJSONFile)); err != nil {
		t.Errorf("expected summary: %v", err)
	}
	clips, _ := filepath.Glob(filepath.Join(dir, "*.mp4"))
	if len(clips) == 0 {
		t.Fatal("expected at least one step video")
	}
	thumbs, _ := filepath.Glob(filepath.Join(dir, "thumbnails", "*.png"))
	if len(thumbs) != len(clips) {
		t.Errorf("expected a thumbnail per clip, got %d for %d clips", len(thumbs), len(clips))
	}

	out, err := runApp(t, append([]string{"probe", "--json"}, clips...)...)
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	var infos []probe.Info
	if err := json.Unmarshal([]byte(out), &infos); err != nil {
		t.Fatalf("decode probe output: %v\n%s", err, out)
	}
	if len(infos) != len(clips) {
		t.Fatalf("expected %d results, got %d", len(clips), len(infos))
	}
	for _, info := range infos {
		if info.Codec != "jpeg" || info.Width != 64 || info.Height != 48 {
			t.Errorf("unexpected clip %+v", info)
		}
		if info.Samples == 0 {
			t.Errorf("expected frames in %s", info.Path)
		}
	}
}

func TestProbe_RequiresFiles(t *testing.T) {
	if _, err := runApp(t, "probe"); err == nil {
		t.Error("expected error without files")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runApp(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, version) {
		t.Errorf("unexpected version output: %q", out)
	}
}
