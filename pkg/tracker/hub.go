// Package tracker implements ports.EventTracker on top of pluggable input sources.
//
// Sources (a terminal, a timer, a browser page) push raw pointer events into a
// Hub. The Hub drops them while tracking is disabled, filters drag jitter and
// exposes an unbounded, ordered event stream to a single consumer.
package tracker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/user/stepcast/pkg/mailbox"
	"github.com/user/stepcast/pkg/ports"
)

// Emitter receives events from a Source.
type Emitter interface {
	Emit(ev ports.TrackerEvent)
}

// Source produces pointer events until ctx is cancelled or the source runs out.
// A source that runs out on its own should emit a Disable event before returning.
type Source interface {
	Name() string
	Run(ctx context.Context, out Emitter) error
}

// Hub is the event tracker. Create it with NewHub.
type Hub struct {
	logger  ports.Logger
	sources []Source

	initOnce sync.Once
	enabled  atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	inbox  *mailbox.Mailbox[ports.TrackerEvent]
	events chan ports.TrackerEvent
	quit   chan struct{}
	closed sync.Once

	dragMu sync.Mutex
	drag   DragFilter
}

// NewHub creates a tracker fed by the given sources. Tracking starts disabled.
func NewHub(logger ports.Logger, sources ...Source) *Hub {
	return &Hub{
		logger:  logger.WithComponent("tracker"),
		sources: sources,
		inbox:   mailbox.New[ports.TrackerEvent](),
		events:  make(chan ports.TrackerEvent),
		quit:    make(chan struct{}),
		drag:    DragFilter{Threshold: DefaultDragThreshold},
	}
}

// Init starts the sources and the event pump. Subsequent calls do nothing.
func (h *Hub) Init() error {
	h.initOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancel = cancel

		go h.pump()

		for _, src := range h.sources {
			h.wg.Add(1)
			go func(src Source) {
				defer h.wg.Done()
				h.logger.Debug("Input source %s started", src.Name())
				if err := src.Run(ctx, h); err != nil && ctx.Err() == nil {
					h.logger.Warn("Input source %s failed: %v", src.Name(), err)
				}
				h.logger.Debug("Input source %s finished", src.Name())
			}(src)
		}
	})
	return nil
}

// EnableTracking starts forwarding pointer events.
func (h *Hub) EnableTracking() {
	h.enabled.Store(true)
	h.logger.Debug("Tracking enabled")
}

// DisableTracking stops forwarding pointer events and queues a Disable event so
// the consumer learns that tracking has ended.
func (h *Hub) DisableTracking() {
	if h.enabled.Swap(false) {
		h.logger.Debug("Tracking disabled")
	}
	_ = h.inbox.Push(ports.TrackerEvent{Kind: ports.Disable})
}

// Events returns the event stream. The channel is closed by Close.
func (h *Hub) Events() <-chan ports.TrackerEvent {
	return h.events
}

// Enabled reports whether pointer events are being forwarded.
func (h *Hub) Enabled() bool {
	return h.enabled.Load()
}

// Emit queues an event from a source. Pointer events are dropped while tracking
// is disabled; Disable events always pass.
func (h *Hub) Emit(ev ports.TrackerEvent) {
	if ev.Kind != ports.Disable {
		if !h.enabled.Load() {
			return
		}
		h.dragMu.Lock()
		ok := h.drag.Accept(ev)
		h.dragMu.Unlock()
		if !ok {
			return
		}
	}

	if err := h.inbox.Push(ev); err != nil {
		h.logger.Debug("Event %s dropped: tracker closed", ev.Kind)
	}
}

// Close stops the sources and closes the event stream. Events nobody has read
// yet are dropped. Close is idempotent.
func (h *Hub) Close() error {
	h.initOnce.Do(func() {
		// Never initialised: still close the stream for any reader.
		go h.pump()
	})
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
	h.closed.Do(func() {
		h.inbox.Close()
		close(h.quit)
	})
	return nil
}

func (h *Hub) pump() {
	defer close(h.events)
	for {
		ev, ok := h.inbox.Receive()
		if !ok {
			return
		}
		select {
		case h.events <- ev:
		case <-h.quit:
			return
		}
	}
}

var _ ports.EventTracker = (*Hub)(nil)
