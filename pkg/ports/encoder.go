package ports

import (
	"time"
)

// VideoEncoder abstracts a platform video encoder bound to one output file.
type VideoEncoder interface {
	// EncodeFrame feeds raw pixel data captured at the given clip-relative timestamp.
	// The pixel layout is the one the encoder was created for (BGRA, width*4 stride).
	EncodeFrame(pix []byte, timestamp time.Duration) error

	// Finish flushes pending data and blocks until the container file is durably written.
	Finish() error
}

// Aborter is implemented by encoders that can discard a partially written output.
// Workers call Abort instead of Finish when no frame was ever ingested.
type Aborter interface {
	Abort() error
}

// EncoderFactory constructs video encoders.
type EncoderFactory interface {
	// Create opens an encoder writing a width x height clip to path.
	Create(width, height int, path string) (VideoEncoder, error)

	// Extension returns the container file extension without the leading dot.
	Extension() string

	// Name identifies the backend for logs and summaries.
	Name() string
}

// EncoderOptions configures video encoding parameters.
type EncoderOptions struct {
	FPS      int // Nominal frame rate of the capture stream
	Quality  int // 1-100, higher is better
	MaxWidth int // Downscale wider frames to this width (0 = keep)
}
