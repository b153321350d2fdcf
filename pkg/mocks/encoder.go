package mocks

import (
	"sync"
	"time"

	"github.com/user/stepcast/pkg/ports"
)

// VideoEncoder is a mock implementation of ports.VideoEncoder and ports.Aborter.
type VideoEncoder struct {
	EncodeFrameFunc func(pix []byte, timestamp time.Duration) error
	FinishFunc      func() error

	// Recorded calls for verification
	mu               sync.Mutex
	Width, Height    int
	Path             string
	EncodeFrameCalls []EncodeFrameCall
	FinishCalls      int
	AbortCalls       int
}

// EncodeFrameCall records a call to EncodeFrame.
type EncodeFrameCall struct {
	Timestamp time.Duration
	Size      int
	First     byte
}

func (m *VideoEncoder) EncodeFrame(pix []byte, timestamp time.Duration) error {
	m.mu.Lock()
	call := EncodeFrameCall{Timestamp: timestamp, Size: len(pix)}
	if len(pix) > 0 {
		call.First = pix[0]
	}
	m.EncodeFrameCalls = append(m.EncodeFrameCalls, call)
	m.mu.Unlock()

	if m.EncodeFrameFunc != nil {
		return m.EncodeFrameFunc(pix, timestamp)
	}
	return nil
}

func (m *VideoEncoder) Finish() error {
	m.mu.Lock()
	m.FinishCalls++
	m.mu.Unlock()

	if m.FinishFunc != nil {
		return m.FinishFunc()
	}
	return nil
}

func (m *VideoEncoder) Abort() error {
	m.mu.Lock()
	m.AbortCalls++
	m.mu.Unlock()
	return nil
}

// Calls returns a snapshot of the recorded EncodeFrame calls.
func (m *VideoEncoder) Calls() []EncodeFrameCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EncodeFrameCall(nil), m.EncodeFrameCalls...)
}

// Timestamps returns the timestamps passed to EncodeFrame in order.
func (m *VideoEncoder) Timestamps() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.EncodeFrameCalls))
	for i, c := range m.EncodeFrameCalls {
		out[i] = c.Timestamp
	}
	return out
}

var (
	_ ports.VideoEncoder = (*VideoEncoder)(nil)
	_ ports.Aborter      = (*VideoEncoder)(nil)
)

// EncoderFactory is a mock implementation of ports.EncoderFactory.
// It records every encoder it creates, keyed by output path.
type EncoderFactory struct {
	CreateFunc func(width, height int, path string) (ports.VideoEncoder, error)

	// NewEncoder customises encoders returned when CreateFunc is nil.
	NewEncoder func(path string) *VideoEncoder

	mu       sync.Mutex
	Encoders map[string]*VideoEncoder
	Paths    []string
}

func (m *EncoderFactory) Create(width, height int, path string) (ports.VideoEncoder, error) {
	m.mu.Lock()
	m.Paths = append(m.Paths, path)
	m.mu.Unlock()

	if m.CreateFunc != nil {
		return m.CreateFunc(width, height, path)
	}

	var enc *VideoEncoder
	if m.NewEncoder != nil {
		enc = m.NewEncoder(path)
	} else {
		enc = &VideoEncoder{}
	}
	enc.Width, enc.Height, enc.Path = width, height, path

	m.mu.Lock()
	if m.Encoders == nil {
		m.Encoders = make(map[string]*VideoEncoder)
	}
	m.Encoders[path] = enc
	m.mu.Unlock()
	return enc, nil
}

func (m *EncoderFactory) Extension() string { return "mp4" }

func (m *EncoderFactory) Name() string { return "mock" }

// Encoder returns the encoder created for path, or nil.
func (m *EncoderFactory) Encoder(path string) *VideoEncoder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Encoders[path]
}

// CreatedPaths returns the paths passed to Create in call order.
func (m *EncoderFactory) CreatedPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Paths...)
}

var _ ports.EncoderFactory = (*EncoderFactory)(nil)
