// Package mailbox provides an unbounded, ordered, multi-producer single-consumer queue.
//
// Producers never block: a capture loop handing frames to an encoder must not stall
// while the encoder is busy. The consumer blocks in Receive until a value arrives or
// the mailbox is closed and drained.
package mailbox

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Push after Close.
var ErrClosed = errors.New("mailbox: closed")

// Mailbox is an unbounded FIFO queue.
type Mailbox[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int
	closed bool
}

// New creates an empty mailbox.
func New[T any]() *Mailbox[T] {
	m := &Mailbox[T]{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Push appends v. It never blocks.
func (m *Mailbox[T]) Push(v T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.items = append(m.items, v)
	m.cond.Signal()
	return nil
}

// Receive blocks until a value is available. ok is false once the mailbox is
// closed and every value pushed before Close has been received.
func (m *Mailbox[T]) Receive() (v T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.lenLocked() == 0 && !m.closed {
		m.cond.Wait()
	}
	if m.lenLocked() == 0 {
		return v, false
	}
	return m.popLocked(), true
}

// TryReceive returns the next value without blocking.
func (m *Mailbox[T]) TryReceive() (v T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lenLocked() == 0 {
		return v, false
	}
	return m.popLocked(), true
}

// Close stops accepting values and wakes a blocked receiver.
// Values already queued stay receivable. Close is idempotent.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
}

// Discard closes the mailbox and drops everything still queued.
func (m *Mailbox[T]) Discard() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.lenLocked()
	m.closed = true
	m.items = nil
	m.head = 0
	m.cond.Broadcast()
	return n
}

// Len returns the number of queued values.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lenLocked()
}

// Closed reports whether Close has been called.
func (m *Mailbox[T]) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Mailbox[T]) lenLocked() int {
	return len(m.items) - m.head
}

func (m *Mailbox[T]) popLocked() T {
	var zero T
	v := m.items[m.head]
	m.items[m.head] = zero
	m.head++
	// Compact once the consumed prefix dominates the backing array.
	if m.head > 64 && m.head*2 >= len(m.items) {
		n := copy(m.items, m.items[m.head:])
		clear(m.items[n:])
		m.items = m.items[:n]
		m.head = 0
	}
	return v
}
