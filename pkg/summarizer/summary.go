// Package summarizer provides summary generation for capture sessions.
package summarizer

import (
	"time"

	"github.com/user/stepcast/pkg/ports"
)

// Summary contains all data collected during a capture session.
type Summary struct {
	// Metadata
	GeneratedAt time.Time `json:"generated_at"`
	SessionID   string    `json:"session_id"`

	// Session timing
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	// Capture settings
	Settings Settings `json:"settings"`

	// Per-step output
	Steps []StepInfo `json:"steps"`

	// Every recorded click in order; click i started step i+1
	Clicks []ports.Point `json:"clicks"`

	// Frame routing counters
	Frames FrameInfo `json:"frames"`

	// Error that ended the session, if any
	Error string `json:"error,omitempty"`
}

// Settings contains the capture configuration.
type Settings struct {
	Source    string `json:"source"`
	Tracker   string `json:"tracker"`
	Encoder   string `json:"encoder"`
	FPS       int    `json:"fps"`
	OutputDir string `json:"output_dir"`
}

// StepInfo describes one step and its artifact.
type StepInfo struct {
	Step       uint32       `json:"step"`
	Path       string       `json:"path,omitempty"`
	Frames     int          `json:"frames"`
	Skipped    int          `json:"skipped"`
	DurationMs int64        `json:"duration_ms"`
	FileSize   int64        `json:"file_size"`
	Click      *ports.Point `json:"click,omitempty"`
	Thumbnail  string       `json:"thumbnail,omitempty"` // Relative to the output directory
	Error      string       `json:"error,omitempty"`
}

// HasArtifact reports whether the step produced a file.
func (s StepInfo) HasArtifact() bool {
	return s.Path != ""
}

// FrameInfo contains frame routing counters.
type FrameInfo struct {
	Received       int `json:"received"`
	Forwarded      int `json:"forwarded"`
	DroppedPaused  int `json:"dropped_paused"`
	DroppedInvalid int `json:"dropped_invalid"`
	DroppedNoStep  int `json:"dropped_before_first_step"`
}

// Duration returns the wall-clock length of the session.
func (s *Summary) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.EndedAt.Before(s.StartedAt) {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// ArtifactCount returns the number of steps that produced a file.
func (s *Summary) ArtifactCount() int {
	n := 0
	for _, step := range s.Steps {
		if step.HasArtifact() {
			n++
		}
	}
	return n
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
	}
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithSession sets the session id and time span.
func (b *Builder) WithSession(id string, startedAt, endedAt time.Time) *Builder {
	b.summary.SessionID = id
	b.summary.StartedAt = startedAt
	b.summary.EndedAt = endedAt
	return b
}

// WithSettings sets capture settings.
func (b *Builder) WithSettings(settings Settings) *Builder {
	b.summary.Settings = settings
	return b
}

// AddStep appends a step.
func (b *Builder) AddStep(step StepInfo) *Builder {
	b.summary.Steps = append(b.summary.Steps, step)
	return b
}

// WithClicks sets the click history.
func (b *Builder) WithClicks(clicks []ports.Point) *Builder {
	b.summary.Clicks = append([]ports.Point(nil), clicks...)
	return b
}

// WithFrames sets frame routing counters.
func (b *Builder) WithFrames(frames FrameInfo) *Builder {
	b.summary.Frames = frames
	return b
}

// WithError records the error that ended the session.
func (b *Builder) WithError(err error) *Builder {
	if err != nil {
		b.summary.Error = err.Error()
	}
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
