package mocks

import (
	"image"
	"image/color"
	"sync"

	"github.com/user/stepcast/pkg/ports"
)

// Renderer is a mock implementation of ports.Renderer.
type Renderer struct {
	EncodeImageFunc func(img image.Image, format ports.ImageFormat, quality int) ([]byte, error)
	ResizeImageFunc func(img image.Image, width, height int) image.Image
	DrawMarkerFunc  func(img image.Image, p ports.Point, radius float64, c color.Color) image.Image

	mu      sync.Mutex
	Markers []ports.Point
}

func (m *Renderer) EncodeImage(img image.Image, format ports.ImageFormat, quality int) ([]byte, error) {
	if m.EncodeImageFunc != nil {
		return m.EncodeImageFunc(img, format, quality)
	}
	return []byte{}, nil
}

func (m *Renderer) ResizeImage(img image.Image, width, height int) image.Image {
	if m.ResizeImageFunc != nil {
		return m.ResizeImageFunc(img, width, height)
	}
	return image.NewRGBA(image.Rect(0, 0, width, height))
}

func (m *Renderer) DrawMarker(img image.Image, p ports.Point, radius float64, c color.Color) image.Image {
	m.mu.Lock()
	m.Markers = append(m.Markers, p)
	m.mu.Unlock()
	if m.DrawMarkerFunc != nil {
		return m.DrawMarkerFunc(img, p, radius, c)
	}
	return img
}

var _ ports.Renderer = (*Renderer)(nil)
