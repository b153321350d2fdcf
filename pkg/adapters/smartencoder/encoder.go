// Package smartencoder selects the encoder backend for step clips with
// fallback support.
package smartencoder

import (
	"errors"
	"fmt"

	"github.com/user/stepcast/pkg/adapters/h264encoder"
	"github.com/user/stepcast/pkg/adapters/mjpegencoder"
	"github.com/user/stepcast/pkg/ports"
)

// Codec represents the video codec type.
type Codec string

const (
	// CodecAuto picks H.264 when ffmpeg is available and MJPEG otherwise.
	CodecAuto Codec = "auto"
	// CodecH264 represents H.264/AVC codec.
	CodecH264 Codec = "h264"
	// CodecMJPEG represents Motion JPEG.
	CodecMJPEG Codec = "mjpeg"
)

// ParseCodec parses a codec name. The empty string selects CodecAuto.
func ParseCodec(s string) (Codec, error) {
	switch Codec(s) {
	case "", CodecAuto:
		return CodecAuto, nil
	case CodecH264, CodecMJPEG:
		return Codec(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCodec, s)
	}
}

// Backend represents the encoding backend used.
type Backend string

const (
	// BackendFFmpeg represents FFmpeg-based encoding.
	BackendFFmpeg Backend = "ffmpeg"
	// BackendNative represents the pure Go encoder.
	BackendNative Backend = "go"
)

// Info contains information about the selected encoder.
type Info struct {
	// Codec is the actual codec being used.
	Codec Codec
	// Backend is the encoding backend being used.
	Backend Backend
	// RequestedCodec is the codec that was originally requested.
	RequestedCodec Codec
	// FallbackUsed indicates whether a fallback occurred.
	FallbackUsed bool
}

// Options configures the smart encoder behavior.
type Options struct {
	// Encoder holds frame rate, quality and size limits.
	Encoder ports.EncoderOptions
	// FFmpegPath is an optional custom path to the ffmpeg binary.
	FFmpegPath string
	// AllowFallback enables fallback to MJPEG when H.264 was requested
	// explicitly but ffmpeg is not available.
	AllowFallback bool
	// Logger is used by the encoders and to log fallback warnings.
	Logger ports.Logger
}

var (
	// ErrNoEncoderAvailable is returned when no encoder is available.
	ErrNoEncoderAvailable = errors.New("smartencoder: no encoder available")

	// ErrUnknownCodec is returned for codec names that are not recognised.
	ErrUnknownCodec = errors.New("smartencoder: unknown codec")
)

// New returns an encoder factory for the preferred codec.
//
// The selection flow:
//  1. mjpeg always uses the pure Go encoder
//  2. h264 and auto use ffmpeg when it can be found
//  3. auto falls back to mjpeg, h264 only when AllowFallback is set
func New(preferred Codec, opts Options) (ports.EncoderFactory, Info, error) {
	if opts.FFmpegPath != "" {
		h264encoder.SetFFmpegPath(opts.FFmpegPath)
	}

	info := Info{RequestedCodec: preferred}

	switch preferred {
	case CodecMJPEG:
		info.Codec = CodecMJPEG
		info.Backend = BackendNative
		return mjpegencoder.NewFactory(opts.Encoder, opts.Logger), info, nil
	case CodecH264, CodecAuto, "":
		return selectH264(preferred, opts, info)
	default:
		return nil, Info{}, fmt.Errorf("%w: %q", ErrUnknownCodec, preferred)
	}
}

func selectH264(preferred Codec, opts Options, info Info) (ports.EncoderFactory, Info, error) {
	factory, err := h264encoder.NewFactory(opts.Encoder, opts.Logger)
	if err == nil {
		info.Codec = CodecH264
		info.Backend = BackendFFmpeg
		return factory, info, nil
	}

	if preferred == CodecH264 && !opts.AllowFallback {
		return nil, Info{}, fmt.Errorf("%w: %v", ErrNoEncoderAvailable, err)
	}

	if preferred == CodecH264 && opts.Logger != nil {
		opts.Logger.Warn("H.264 encoder not available, falling back to MJPEG")
	}

	info.Codec = CodecMJPEG
	info.Backend = BackendNative
	info.FallbackUsed = preferred == CodecH264
	return mjpegencoder.NewFactory(opts.Encoder, opts.Logger), info, nil
}

// IsH264Available checks if FFmpeg-based H.264 encoding is available.
func IsH264Available() bool {
	return h264encoder.IsFFmpegAvailable()
}
