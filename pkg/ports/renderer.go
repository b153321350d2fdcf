package ports

import (
	"image"
	"image/color"
)

// Renderer abstracts still image processing.
type Renderer interface {
	// EncodeImage encodes an image to the specified format.
	EncodeImage(img image.Image, format ImageFormat, quality int) ([]byte, error)

	// ResizeImage resizes an image to the specified dimensions.
	ResizeImage(img image.Image, width, height int) image.Image

	// DrawMarker returns a copy of img with a ring of the given radius centred on p.
	DrawMarker(img image.Image, p Point, radius float64, c color.Color) image.Image
}

// ImageFormat specifies image encoding format.
type ImageFormat int

const (
	FormatJPEG ImageFormat = iota
	FormatPNG
)
