package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatest_Empty(t *testing.T) {
	c := NewLatest[int]()

	_, ok := c.Load()
	assert.False(t, ok)
	assert.Equal(t, uint64(0), c.Version())
}

func TestLatest_StoreAndLoad(t *testing.T) {
	c := NewLatest[string]()

	c.Store("a")
	c.Store("b")

	v, ok := c.Load()
	require.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, uint64(2), c.Version())
}

func TestLatest_ReadyClosesOnFirstStore(t *testing.T) {
	c := NewLatest[int]()
	ready := c.Ready()

	select {
	case <-ready:
		t.Fatal("ready before first store")
	default:
	}

	go c.Store(1)

	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("ready not closed")
	}
}

func TestLatest_Reset(t *testing.T) {
	c := NewLatest[int]()
	c.Store(5)
	c.Reset()

	_, ok := c.Load()
	assert.False(t, ok)

	select {
	case <-c.Ready():
		t.Fatal("ready should be re-armed after reset")
	default:
	}

	c.Store(6)
	<-c.Ready()
}

func TestLatest_ConcurrentAccess(t *testing.T) {
	c := NewLatest[int]()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			c.Store(i)
		}
	}()
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Load()
			}
		}()
	}
	wg.Wait()

	v, _ := c.Load()
	assert.Equal(t, 99, v)
}

func TestSafeCounter(t *testing.T) {
	var c SafeCounter
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, c.Value())

	c.Set(3)
	assert.Equal(t, 3, c.Value())
}
