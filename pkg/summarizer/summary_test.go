package summarizer

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/user/stepcast/pkg/mocks"
	"github.com/user/stepcast/pkg/ports"
)

func sampleSummary() *Summary {
	start := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	click := ports.Point{X: 120, Y: 340}
	return &Summary{
		GeneratedAt: start.Add(5 * time.Second),
		SessionID:   "0b4f6c1e-session",
		StartedAt:   start,
		EndedAt:     start.Add(3 * time.Second),
		Settings: Settings{
			Source:    "testpattern",
			Tracker:   "interval",
			Encoder:   "mjpeg",
			FPS:       12,
			OutputDir: "/tmp/out",
		},
		Steps: []StepInfo{
			{Step: 1, Path: "/tmp/out/1.mp4", Frames: 24, DurationMs: 1917, FileSize: 2 * 1024 * 1024, Click: &click},
			{Step: 2, Error: "create encoder: boom"},
		},
		Clicks: []ports.Point{click, {X: 1, Y: 2}},
		Frames: FrameInfo{Received: 40, Forwarded: 24, DroppedNoStep: 16},
	}
}

func TestNewSummary(t *testing.T) {
	before := time.Now()
	summary := NewSummary()
	after := time.Now()

	if summary.GeneratedAt.Before(before) || summary.GeneratedAt.After(after) {
		t.Errorf("GeneratedAt should be between %v and %v, got %v",
			before, after, summary.GeneratedAt)
	}
}

func TestBuilder(t *testing.T) {
	start := time.Now()
	clicks := []ports.Point{{X: 1, Y: 1}}

	summary := NewBuilder().
		WithSession("abc", start, start.Add(2*time.Second)).
		WithSettings(Settings{Source: "browser", FPS: 10}).
		AddStep(StepInfo{Step: 1, Path: "1.mp4"}).
		AddStep(StepInfo{Step: 2}).
		WithClicks(clicks).
		WithFrames(FrameInfo{Received: 5}).
		WithError(errors.New("capture failed")).
		Build()

	if summary.SessionID != "abc" {
		t.Errorf("expected session id 'abc', got '%s'", summary.SessionID)
	}
	if summary.Duration() != 2*time.Second {
		t.Errorf("expected duration 2s, got %v", summary.Duration())
	}
	if summary.ArtifactCount() != 1 {
		t.Errorf("expected 1 artifact, got %d", summary.ArtifactCount())
	}
	if summary.Error != "capture failed" {
		t.Errorf("unexpected error %q", summary.Error)
	}

	clicks[0].X = 99
	if summary.Clicks[0].X != 1 {
		t.Error("WithClicks should copy the slice")
	}
}

func TestBuilder_WithNilError(t *testing.T) {
	summary := NewBuilder().WithError(nil).Build()
	if summary.Error != "" {
		t.Errorf("expected no error, got %q", summary.Error)
	}
}

func TestMarkdownFormatter_Format(t *testing.T) {
	result := NewMarkdownFormatter().Format(sampleSummary())

	checks := []string{
		"# Capture Summary",
		"0b4f6c1e-session",
		"3.00 s",
		"2 (1 with video)",
		"| Source | testpattern |",
		"| Encoder | mjpeg |",
		"| 1 | 1.mp4 | 24 | 1917 ms | 2.00 MB | (120, 340) |",
		"error: create encoder: boom",
		"Dropped before first click: 16",
	}
	for _, want := range checks {
		if !strings.Contains(result, want) {
			t.Errorf("expected output to contain %q\n%s", want, result)
		}
	}
}

func TestMarkdownFormatter_Thumbnails(t *testing.T) {
	s := sampleSummary()
	if strings.Contains(NewMarkdownFormatter().Format(s), "## Thumbnails") {
		t.Error("no thumbnail section expected without thumbnails")
	}

	s.Steps[0].Thumbnail = "thumbnails/step-0001.png"
	result := NewMarkdownFormatter().Format(s)
	if !strings.Contains(result, "![Step 1](thumbnails/step-0001.png)") {
		t.Errorf("expected thumbnail link\n%s", result)
	}
	if strings.Contains(result, "![Step 2]") {
		t.Error("step without thumbnail should not be linked")
	}
}

func TestMarkdownFormatter_NoSteps(t *testing.T) {
	result := NewMarkdownFormatter().Format(&Summary{})
	if !strings.Contains(result, "No steps were recorded.") {
		t.Errorf("expected empty-step notice, got\n%s", result)
	}
}

func TestJSONFormatter(t *testing.T) {
	out := JSONFormatter.Format(sampleSummary())

	var decoded Summary
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(decoded.Steps) != 2 || decoded.Steps[0].Click == nil {
		t.Errorf("unexpected steps %+v", decoded.Steps)
	}
	if !strings.Contains(out, `"dropped_before_first_step": 16`) {
		t.Errorf("expected snake_case counters in\n%s", out)
	}
}

func TestWriter_Write(t *testing.T) {
	fs := mocks.NewFileSystem()
	w := NewWriter(FormatFunc(func(s *Summary) string { return "hello " + s.SessionID }), fs)

	if err := w.Write("/out/run/summary.md", &Summary{SessionID: "x"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, ok := fs.GetFile("/out/run/summary.md")
	if !ok {
		t.Fatal("expected summary file")
	}
	if string(data) != "hello x" {
		t.Errorf("expected 'hello x', got %q", data)
	}
	if !fs.HasDir("/out/run") {
		t.Error("expected parent directory to be created")
	}
}

func TestWriter_WriteError(t *testing.T) {
	fs := mocks.NewFileSystem()
	fs.WriteFileFunc = func(path string, data []byte) error { return errors.New("read-only") }

	w := NewWriter(JSONFormatter, fs)
	if err := w.Write("summary.json", &Summary{}); err == nil {
		t.Error("expected an error")
	}
}
