package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_TrySendCountsDrops(t *testing.T) {
	m := NewMailbox[int](1)

	assert.True(t, m.TrySend(1))
	assert.False(t, m.TrySend(2))
	assert.False(t, m.TrySend(3))
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, int64(2), m.Dropped())
}

func TestMailbox_MinimumSize(t *testing.T) {
	m := NewMailbox[int](0)
	assert.Equal(t, 1, m.Cap())
	assert.True(t, m.TrySend(1))
}

func TestMailbox_CloseTwice(t *testing.T) {
	m := NewMailbox[int](2)
	m.Send(7)
	m.Close()
	m.Close()

	v, err := Recv[int](context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestRecv(t *testing.T) {
	m := NewMailbox[string](2)
	m.Send("a")

	v, err := Recv[string](context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = Recv[string](ctx, m)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	m.Close()
	_, err = Recv[string](context.Background(), m)
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestDrain(t *testing.T) {
	m := NewMailbox[int](3)
	m.Send(1)
	m.Send(2)

	assert.Equal(t, 2, Drain[int](m))
	assert.Equal(t, 0, m.Len())
}
