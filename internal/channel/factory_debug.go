//go:build debug

package channel

// New ignores size in debug builds: every mailbox holds a single value, so
// overflow handling runs on the first burst.
func New[T any](int) Channel[T] {
	return NewMailbox[T](1)
}
