package mocks

import (
	"context"
	"sync"

	"github.com/user/stepcast/pkg/ports"
)

// ScriptedFrame is one step of a CaptureBackend script. Before runs just before
// the frame (or error) is returned, which lets tests inject clicks or status
// changes at exact points in the frame stream.
type ScriptedFrame struct {
	Before func()
	Frame  ports.RawFrame
	Err    error
}

// CaptureBackend is a mock implementation of ports.CaptureBackend.
// Without NextFrameFunc it replays Script and then blocks until ctx is done.
type CaptureBackend struct {
	StartFunc     func(ctx context.Context, opts ports.CaptureOptions) error
	NextFrameFunc func(ctx context.Context) (ports.RawFrame, error)
	StopFunc      func() error

	Script []ScriptedFrame

	mu         sync.Mutex
	pos        int
	StartCalls int
	StopCalls  int
	Options    ports.CaptureOptions
}

func (m *CaptureBackend) Start(ctx context.Context, opts ports.CaptureOptions) error {
	m.mu.Lock()
	m.StartCalls++
	m.Options = opts
	m.mu.Unlock()
	if m.StartFunc != nil {
		return m.StartFunc(ctx, opts)
	}
	return nil
}

func (m *CaptureBackend) NextFrame(ctx context.Context) (ports.RawFrame, error) {
	if m.NextFrameFunc != nil {
		return m.NextFrameFunc(ctx)
	}

	m.mu.Lock()
	if m.pos >= len(m.Script) {
		m.mu.Unlock()
		<-ctx.Done()
		return ports.RawFrame{}, ctx.Err()
	}
	item := m.Script[m.pos]
	m.pos++
	m.mu.Unlock()

	if item.Before != nil {
		item.Before()
	}
	if item.Err != nil {
		return ports.RawFrame{}, item.Err
	}
	return item.Frame, nil
}

func (m *CaptureBackend) Stop() error {
	m.mu.Lock()
	m.StopCalls++
	m.mu.Unlock()
	if m.StopFunc != nil {
		return m.StopFunc()
	}
	return nil
}

// Delivered returns how many script entries have been consumed.
func (m *CaptureBackend) Delivered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos
}

var _ ports.CaptureBackend = (*CaptureBackend)(nil)

// Frame builds a BGRA frame whose pixels are all fill.
func Frame(width, height int, displayTime uint64, fill byte) ports.RawFrame {
	data := make([]byte, width*height*4)
	for i := range data {
		data[i] = fill
	}
	return ports.RawFrame{
		PixelFormat: ports.PixelFormatBGRA,
		Width:       width,
		Height:      height,
		Data:        data,
		DisplayTime: displayTime,
	}
}
