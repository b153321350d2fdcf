// Package nullsink provides a thumbnail sink that discards everything.
package nullsink

import (
	"image"

	"github.com/user/stepcast/pkg/ports"
)

// Sink is a no-op implementation of ports.ThumbnailSink.
type Sink struct{}

// New creates a new NullSink.
func New() *Sink {
	return &Sink{}
}

// Enabled returns false as this sink discards all output.
func (s *Sink) Enabled() bool {
	return false
}

// SaveThumbnail does nothing.
func (s *Sink) SaveThumbnail(step uint32, img image.Image, click *ports.Point) (string, error) {
	return "", nil
}

// Ensure Sink implements ports.ThumbnailSink
var _ ports.ThumbnailSink = (*Sink)(nil)
