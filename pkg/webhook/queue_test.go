package webhook

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func delivery(id string) *Delivery {
	return &Delivery{ID: id, Payload: Payload{Event: "test"}}
}

func TestQueue_FIFO(t *testing.T) {
	t.Parallel()

	q := NewQueue(10)
	q.Push(delivery("1"))
	q.Push(delivery("2"))

	ctx := context.Background()
	first, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", first.ID)

	second, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", second.ID)
}

func TestQueue_OverflowDropsOldest(t *testing.T) {
	t.Parallel()

	q := NewQueue(3)
	for i := 1; i <= 3; i++ {
		assert.False(t, q.Push(delivery(fmt.Sprint(i))))
	}
	assert.True(t, q.Push(delivery("4")), "push into a full queue evicts")

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, int64(1), q.Dropped())

	d, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2", d.ID, "oldest entry was the one dropped")
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	t.Parallel()

	q := NewQueue(10)
	got := make(chan *Delivery, 1)
	go func() {
		d, err := q.Pop(context.Background())
		if err == nil {
			got <- d
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(delivery("late"))

	select {
	case d := <-got:
		assert.Equal(t, "late", d.ID)
	case <-time.After(time.Second):
		t.Fatal("Pop never returned")
	}
}

func TestQueue_PopHonorsNextAttemptAt(t *testing.T) {
	t.Parallel()

	q := NewQueue(10)
	delayed := delivery("delayed")
	delayed.NextAttemptAt = time.Now().Add(80 * time.Millisecond)
	q.Push(delayed)
	q.Push(delivery("ready"))

	ctx := context.Background()
	d, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ready", d.ID, "due delivery jumps the delayed one")

	start := time.Now()
	d, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "delayed", d.ID)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestQueue_PopRespectsContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(10)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_Clear(t *testing.T) {
	t.Parallel()

	q := NewQueue(10)
	q.Push(delivery("1"))
	q.Push(delivery("2"))
	assert.Equal(t, 2, q.Clear())
	assert.Zero(t, q.Len())
}
