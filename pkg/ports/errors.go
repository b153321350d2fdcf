package ports

import "errors"

var (
	// ErrEncoderFatal is wrapped by encoders whose state forbids further frames.
	ErrEncoderFatal = errors.New("encoder in fatal state")

	// ErrUnsupportedPlatform is returned when a backend cannot run on this OS.
	ErrUnsupportedPlatform = errors.New("platform not supported")

	// ErrPermissionDenied is returned when screen capture permission is missing.
	ErrPermissionDenied = errors.New("permission not granted")
)
