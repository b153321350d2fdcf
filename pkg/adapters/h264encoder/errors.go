package h264encoder

import "errors"

var (
	// ErrFinished is returned when frames are sent after Finish or Abort.
	ErrFinished = errors.New("h264encoder: encoder already finished")

	// ErrFrameSize is returned when a frame buffer does not match the encoder size.
	ErrFrameSize = errors.New("h264encoder: frame size mismatch")

	// ErrNoFrames is returned when trying to build MP4 with no frames.
	ErrNoFrames = errors.New("h264encoder: no frames to encode")

	// ErrFFmpegNotFound is returned when ffmpeg is not found.
	ErrFFmpegNotFound = errors.New("h264encoder: ffmpeg not found in PATH")
)
