package ports

import (
	"image"
)

// ThumbnailSink stores a still of the opening frame of every step.
// Workers call it concurrently.
type ThumbnailSink interface {
	// Enabled returns true if thumbnails are written.
	Enabled() bool

	// SaveThumbnail stores img for step and returns the written path.
	// click, when known, is the location of the click that opened the step.
	SaveThumbnail(step uint32, img image.Image, click *Point) (string, error)
}
