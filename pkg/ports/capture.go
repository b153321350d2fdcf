// Package ports defines interfaces for external dependencies.
package ports

import (
	"context"
)

// PixelFormat tags the layout of RawFrame.Data.
type PixelFormat int

const (
	// PixelFormatBGRA is 8-bit B, G, R, A per pixel.
	PixelFormatBGRA PixelFormat = iota
	// PixelFormatRGBA is 8-bit R, G, B, A per pixel.
	PixelFormatRGBA
)

// String returns the string representation of the pixel format.
func (p PixelFormat) String() string {
	switch p {
	case PixelFormatBGRA:
		return "BGRA"
	case PixelFormatRGBA:
		return "RGBA"
	default:
		return "unknown"
	}
}

// RawFrame is a single captured screen frame.
type RawFrame struct {
	PixelFormat PixelFormat
	Width       int
	Height      int
	Stride      int    // Bytes per row; 0 means Width*4
	Data        []byte // Owned pixel buffer
	DisplayTime uint64 // Monotonic capture clock, nanoseconds
}

// Valid reports whether the frame carries a picture. Zero-sized frames are placeholders.
func (f RawFrame) Valid() bool {
	return f.Width > 0 && f.Height > 0
}

// RowStride returns the effective bytes per row.
func (f RawFrame) RowStride() int {
	if f.Stride > 0 {
		return f.Stride
	}
	return f.Width * 4
}

// Clone returns a copy that shares no memory with f.
func (f RawFrame) Clone() RawFrame {
	c := f
	if f.Data != nil {
		c.Data = make([]byte, len(f.Data))
		copy(c.Data, f.Data)
	}
	return c
}

// CaptureOptions are fixed for the lifetime of one capture session.
type CaptureOptions struct {
	FPS        int
	ShowCursor bool
}

// CaptureBackend delivers raw frames from a screen-like source.
type CaptureBackend interface {
	// Start begins capturing. Frame rate and resolution are not renegotiated afterwards.
	Start(ctx context.Context, opts CaptureOptions) error

	// NextFrame blocks until the next frame is available.
	// An error means the source is gone; callers must not retry.
	NextFrame(ctx context.Context) (RawFrame, error)

	// Stop releases the capture resources.
	Stop() error
}

// PlatformChecker is optionally implemented by capture backends that depend on
// operating system support or user-granted permissions.
type PlatformChecker interface {
	Supported() bool
	HasPermission() bool
}
