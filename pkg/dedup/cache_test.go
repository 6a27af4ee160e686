package dedup

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SeenReportsDuplicates(t *testing.T) {
	t.Parallel()

	c := NewCache(time.Minute, 100)
	assert.False(t, c.Seen("m-1"))
	assert.True(t, c.Seen("m-1"))
	assert.False(t, c.Seen("m-2"))
}

func TestCache_EmptyIDNeverDuplicate(t *testing.T) {
	t.Parallel()

	c := NewCache(time.Minute, 100)
	assert.False(t, c.Seen(""))
	assert.False(t, c.Seen(""))
	assert.Zero(t, c.Len())
}

func TestCache_TTLExpiry(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	c := NewCache(time.Second, 100)
	c.now = func() time.Time { return now }

	assert.False(t, c.Seen("m-1"))
	now = now.Add(500 * time.Millisecond)
	assert.True(t, c.Seen("m-1"), "within TTL")

	now = now.Add(time.Second)
	assert.False(t, c.Seen("m-1"), "expired entries are unseen again")
}

func TestCache_MaxSizeEvictsOldest(t *testing.T) {
	t.Parallel()

	c := NewCache(time.Hour, 3)
	for i := range 3 {
		assert.False(t, c.Seen(fmt.Sprintf("m-%d", i)))
	}
	assert.Equal(t, 3, c.Len())

	// Inserting a fourth evicts m-0, the oldest.
	assert.False(t, c.Seen("m-3"))
	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Seen("m-0"), "oldest entry was evicted")
}

func TestCache_NeverExceedsMaxSize(t *testing.T) {
	t.Parallel()

	c := NewCache(time.Hour, 10)
	for i := range 100 {
		c.Seen(fmt.Sprintf("m-%d", i))
		assert.LessOrEqual(t, c.Len(), 10)
	}
}

func TestCache_PrefersExpiredEvictions(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	c := NewCache(time.Second, 3)
	c.now = func() time.Time { return now }

	c.Seen("old-1")
	c.Seen("old-2")
	now = now.Add(2 * time.Second)
	c.Seen("fresh")

	// The expired entries were pruned rather than counted against the cap.
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Seen("fresh"))
}

func TestCache_Clear(t *testing.T) {
	t.Parallel()

	c := NewCache(time.Minute, 10)
	c.Seen("m-1")
	c.Clear()
	assert.Zero(t, c.Len())
	assert.False(t, c.Seen("m-1"))
}
