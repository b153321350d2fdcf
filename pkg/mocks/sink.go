package mocks

import (
	"fmt"
	"image"
	"sync"

	"github.com/user/stepcast/pkg/ports"
)

// ThumbnailSink is a mock implementation of ports.ThumbnailSink.
type ThumbnailSink struct {
	mu sync.RWMutex

	enabled bool

	SaveThumbnailFunc func(step uint32, img image.Image, click *ports.Point) (string, error)

	Images map[uint32]image.Image
	Clicks map[uint32]*ports.Point
}

// NewThumbnailSink creates a new mock ThumbnailSink.
func NewThumbnailSink(enabled bool) *ThumbnailSink {
	return &ThumbnailSink{
		enabled: enabled,
		Images:  make(map[uint32]image.Image),
		Clicks:  make(map[uint32]*ports.Point),
	}
}

func (m *ThumbnailSink) Enabled() bool {
	return m.enabled
}

func (m *ThumbnailSink) SaveThumbnail(step uint32, img image.Image, click *ports.Point) (string, error) {
	m.mu.Lock()
	m.Images[step] = img
	m.Clicks[step] = click
	m.mu.Unlock()

	if m.SaveThumbnailFunc != nil {
		return m.SaveThumbnailFunc(step, img, click)
	}
	return fmt.Sprintf("thumbnails/%d.png", step), nil
}

// Saved returns the number of stored thumbnails.
func (m *ThumbnailSink) Saved() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Images)
}

var _ ports.ThumbnailSink = (*ThumbnailSink)(nil)
