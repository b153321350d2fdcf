// Package filesink writes step thumbnails as PNG files.
package filesink

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"

	"github.com/user/stepcast/pkg/ports"
)

// DefaultWidth is the thumbnail width used when none is configured.
const DefaultWidth = 320

var markerColor = color.RGBA{R: 255, G: 64, B: 64, A: 255}

// Sink saves thumbnails to files.
type Sink struct {
	baseDir  string
	width    int
	fs       ports.FileSystem
	renderer ports.Renderer
}

// New creates a Sink writing into baseDir. Wider frames are scaled down to
// width, keeping their aspect ratio.
func New(baseDir string, width int, fs ports.FileSystem, renderer ports.Renderer) *Sink {
	if width <= 0 {
		width = DefaultWidth
	}
	return &Sink{
		baseDir:  baseDir,
		width:    width,
		fs:       fs,
		renderer: renderer,
	}
}

// Enabled returns true as this sink saves output.
func (s *Sink) Enabled() bool {
	return true
}

// SaveThumbnail scales img, marks the click and writes step-NNNN.png.
func (s *Sink) SaveThumbnail(step uint32, img image.Image, click *ports.Point) (string, error) {
	b := img.Bounds()
	if b.Empty() {
		return "", fmt.Errorf("empty image")
	}

	scale := 1.0
	if b.Dx() > s.width {
		scale = float64(s.width) / float64(b.Dx())
		h := int(float64(b.Dy())*scale + 0.5)
		if h < 1 {
			h = 1
		}
		img = s.renderer.ResizeImage(img, s.width, h)
	}

	if click != nil {
		p := ports.Point{X: click.X * scale, Y: click.Y * scale}
		radius := float64(img.Bounds().Dx()) / 40
		if radius < 4 {
			radius = 4
		}
		img = s.renderer.DrawMarker(img, p, radius, markerColor)
	}

	data, err := s.renderer.EncodeImage(img, ports.FormatPNG, 0)
	if err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}

	if err := s.fs.MkdirAll(s.baseDir); err != nil {
		return "", err
	}
	path := filepath.Join(s.baseDir, fmt.Sprintf("step-%04d.png", step))
	if err := s.fs.WriteFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// Ensure Sink implements ports.ThumbnailSink
var _ ports.ThumbnailSink = (*Sink)(nil)
