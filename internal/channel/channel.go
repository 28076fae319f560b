// Package channel hands values from a reader goroutine to its consumer
// through bounded mailboxes.
package channel

import (
	"context"
	"errors"
)

// ErrClosed is returned by Recv once the channel is closed and drained.
var ErrClosed = errors.New("channel closed")

// Receiver provides read access to a channel.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender provides write access to a channel.
type Sender[T any] interface {
	Send(T)
	// TrySend sends without blocking and reports whether v was accepted.
	TrySend(v T) bool
}

// Channel combines read and write access.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Dropped() int64
	Close()
}

// Recv waits for the next value or until ctx ends.
func Recv[T any](ctx context.Context, r Receiver[T]) (T, error) {
	var zero T
	select {
	case v, ok := <-r.Receive():
		if !ok {
			return zero, ErrClosed
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Drain discards every value currently buffered.
func Drain[T any](r Receiver[T]) int {
	n := 0
	for {
		select {
		case _, ok := <-r.Receive():
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}
