package cache

import (
	"sync"
)

// Latest holds the most recent value published by a single writer.
// Readers never block; Wait lets a reader park until a first value exists.
type Latest[T any] struct {
	mu      sync.Mutex
	value   T
	ok      bool
	version uint64
	ready   chan struct{}
}

func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{
		ready: make(chan struct{}),
	}
}

// Store replaces the cached value.
func (c *Latest[T]) Store(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.version++
	if !c.ok {
		c.ok = true
		close(c.ready)
	}
}

// Load returns the cached value and whether one was ever stored.
func (c *Latest[T]) Load() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.ok
}

// Version increments on every Store.
func (c *Latest[T]) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Ready is closed once a first value has been stored.
func (c *Latest[T]) Ready() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Reset forgets the cached value.
func (c *Latest[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.value = zero
	if c.ok {
		c.ok = false
		c.ready = make(chan struct{})
	}
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
