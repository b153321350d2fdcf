package summarizer

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Formatter defines the interface for formatting a Summary.
type Formatter interface {
	// Format converts a Summary to a formatted string.
	Format(summary *Summary) string
}

// FormatFunc is a function adapter for the Formatter interface.
type FormatFunc func(summary *Summary) string

// Format implements the Formatter interface.
func (f FormatFunc) Format(summary *Summary) string {
	return f(summary)
}

// MarkdownFormatter renders a human-readable report.
type MarkdownFormatter struct{}

// NewMarkdownFormatter creates a new MarkdownFormatter.
func NewMarkdownFormatter() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format implements the Formatter interface.
func (f *MarkdownFormatter) Format(s *Summary) string {
	var b strings.Builder

	b.WriteString("# Capture Summary\n\n")
	fmt.Fprintf(&b, "- **Session**: %s\n", s.SessionID)
	fmt.Fprintf(&b, "- **Generated**: %s\n", s.GeneratedAt.Format(time.RFC3339))
	if !s.StartedAt.IsZero() {
		fmt.Fprintf(&b, "- **Started**: %s\n", s.StartedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "- **Duration**: %s\n", formatDuration(s.Duration()))
	fmt.Fprintf(&b, "- **Steps**: %d (%d with video)\n", len(s.Steps), s.ArtifactCount())
	if s.Error != "" {
		fmt.Fprintf(&b, "- **Error**: %s\n", s.Error)
	}

	b.WriteString("\n## Settings\n\n")
	b.WriteString("| Setting | Value |\n")
	b.WriteString("|---------|-------|\n")
	fmt.Fprintf(&b, "| Source | %s |\n", s.Settings.Source)
	fmt.Fprintf(&b, "| Tracker | %s |\n", s.Settings.Tracker)
	fmt.Fprintf(&b, "| Encoder | %s |\n", s.Settings.Encoder)
	fmt.Fprintf(&b, "| FPS | %d |\n", s.Settings.FPS)
	fmt.Fprintf(&b, "| Output | %s |\n", s.Settings.OutputDir)

	b.WriteString("\n## Steps\n\n")
	if len(s.Steps) == 0 {
		b.WriteString("No steps were recorded.\n")
	} else {
		b.WriteString("| Step | File | Frames | Duration | Size | Click |\n")
		b.WriteString("|------|------|--------|----------|------|-------|\n")
		for _, step := range s.Steps {
			file := "-"
			if step.HasArtifact() {
				file = filepath.Base(step.Path)
			} else if step.Error != "" {
				file = "error: " + step.Error
			}
			click := "-"
			if step.Click != nil {
				click = step.Click.String()
			}
			fmt.Fprintf(&b, "| %d | %s | %d | %d ms | %s | %s |\n",
				step.Step, file, step.Frames, step.DurationMs, formatBytes(step.FileSize), click)
		}
	}

	var thumbs []StepInfo
	for _, step := range s.Steps {
		if step.Thumbnail != "" {
			thumbs = append(thumbs, step)
		}
	}
	if len(thumbs) > 0 {
		b.WriteString("\n## Thumbnails\n\n")
		for _, step := range thumbs {
			fmt.Fprintf(&b, "### Step %d\n\n![Step %d](%s)\n\n", step.Step, step.Step, step.Thumbnail)
		}
	}

	b.WriteString("\n## Frames\n\n")
	fmt.Fprintf(&b, "- Received: %d\n", s.Frames.Received)
	fmt.Fprintf(&b, "- Forwarded: %d\n", s.Frames.Forwarded)
	fmt.Fprintf(&b, "- Dropped while paused: %d\n", s.Frames.DroppedPaused)
	fmt.Fprintf(&b, "- Dropped as invalid: %d\n", s.Frames.DroppedInvalid)
	fmt.Fprintf(&b, "- Dropped before first click: %d\n", s.Frames.DroppedNoStep)

	return b.String()
}

// JSONFormatter renders the summary as indented JSON.
var JSONFormatter = FormatFunc(func(s *Summary) string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data) + "\n"
})

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%d ms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2f s", d.Seconds())
}

func formatBytes(n int64) string {
	switch {
	case n <= 0:
		return "-"
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.2f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.2f MB", float64(n)/(1024*1024))
	}
}
