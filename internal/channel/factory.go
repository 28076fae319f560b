//go:build !debug

package channel

// New creates a mailbox of the given size.
func New[T any](size int) Channel[T] {
	return NewMailbox[T](size)
}
