package queue

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ReserveDeleteRequeue(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()
	require.NoError(t, q.Put(ctx, []byte("a")))
	require.NoError(t, q.Put(ctx, []byte("b")))
	require.NoError(t, q.Put(ctx, []byte("c")))

	a, err := q.Reserve(ctx, 0)
	require.NoError(t, err)
	b, err := q.Reserve(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, q.Delete(ctx, b))

	n, err := q.Requeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again, err := q.Reserve(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, a.Body, again.Body)
	assert.Equal(t, 1, q.Len())

	assert.True(t, errors.Is(q.Delete(ctx, b), ErrNotReserved))
}

func TestMemory_ReserveWaitsForPut(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = q.Put(ctx, []byte("late"))
	}()

	msg, err := q.Reserve(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late", string(msg.Body))
}

func TestMemory_ReserveTimeout(t *testing.T) {
	q := NewMemory()
	_, err := q.Reserve(context.Background(), 10*time.Millisecond)
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestMemory_ReserveCancelled(t *testing.T) {
	q := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Reserve(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDrain(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()
	for i := 0; i < 4; i++ {
		require.NoError(t, q.Put(ctx, []byte{byte(i)}))
	}

	n, err := Drain(ctx, q, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 0, q.Len())
}

func TestMemory_Flush(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()
	require.NoError(t, q.Put(ctx, []byte("a")))
	require.NoError(t, q.Put(ctx, []byte("b")))
	_, err := q.Reserve(ctx, 0)
	require.NoError(t, err)

	n, err := q.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, q.Len())
}
