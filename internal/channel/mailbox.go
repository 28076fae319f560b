package channel

import (
	"sync"
	"sync/atomic"
)

// Mailbox is a bounded channel that counts what it had to refuse. Close may
// be called more than once.
type Mailbox[T any] struct {
	ch      chan T
	dropped atomic.Int64
	once    sync.Once
}

// NewMailbox creates a mailbox holding up to size values. A size below one
// is raised to one.
func NewMailbox[T any](size int) *Mailbox[T] {
	if size < 1 {
		size = 1
	}
	return &Mailbox[T]{ch: make(chan T, size)}
}

// Send blocks until there is room.
func (m *Mailbox[T]) Send(v T) {
	m.ch <- v
}

// TrySend queues v if there is room; a refusal is counted.
func (m *Mailbox[T]) TrySend(v T) bool {
	select {
	case m.ch <- v:
		return true
	default:
		m.dropped.Add(1)
		return false
	}
}

func (m *Mailbox[T]) Receive() <-chan T { return m.ch }

func (m *Mailbox[T]) Len() int { return len(m.ch) }

func (m *Mailbox[T]) Cap() int { return cap(m.ch) }

// Dropped returns how many TrySend calls were refused.
func (m *Mailbox[T]) Dropped() int64 { return m.dropped.Load() }

// Close closes the mailbox. Values already queued can still be received.
func (m *Mailbox[T]) Close() {
	m.once.Do(func() { close(m.ch) })
}
