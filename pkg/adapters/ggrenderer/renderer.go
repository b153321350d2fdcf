// Package ggrenderer provides a renderer implementation using the gg library.
package ggrenderer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"

	"github.com/user/stepcast/pkg/ports"
)

// Renderer implements ports.Renderer using the gg library.
type Renderer struct{}

// New creates a new Renderer.
func New() *Renderer {
	return &Renderer{}
}

// EncodeImage encodes an image to the specified format.
func (r *Renderer) EncodeImage(img image.Image, format ports.ImageFormat, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case ports.FormatJPEG:
		opts := &jpeg.Options{Quality: quality}
		if err := jpeg.Encode(&buf, img, opts); err != nil {
			return nil, fmt.Errorf("encode JPEG: %w", err)
		}
	case ports.FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode PNG: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format: %d", format)
	}

	return buf.Bytes(), nil
}

// ResizeImage resizes an image to the specified dimensions.
func (r *Renderer) ResizeImage(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// DrawMarker draws a ring around p on a copy of img. Points outside the image
// leave it unchanged apart from the copy.
func (r *Renderer) DrawMarker(img image.Image, p ports.Point, radius float64, c color.Color) image.Image {
	dc := gg.NewContextForImage(img)

	b := img.Bounds()
	x := p.X - float64(b.Min.X)
	y := p.Y - float64(b.Min.Y)
	if x < 0 || y < 0 || x >= float64(b.Dx()) || y >= float64(b.Dy()) {
		return dc.Image()
	}

	lw := radius / 4
	if lw < 1 {
		lw = 1
	}

	// A dark halo keeps the ring visible on light backgrounds.
	dc.SetColor(color.RGBA{A: 160})
	dc.SetLineWidth(lw + 2)
	dc.DrawCircle(x, y, radius)
	dc.Stroke()

	dc.SetColor(c)
	dc.SetLineWidth(lw)
	dc.DrawCircle(x, y, radius)
	dc.Stroke()

	dc.DrawCircle(x, y, lw)
	dc.Fill()

	return dc.Image()
}

// Ensure Renderer implements ports.Renderer
var _ ports.Renderer = (*Renderer)(nil)
