package ratelimit

import (
	"sync"
	"time"
)

// Defaults applied when NewBucket receives non-positive settings.
const (
	DefaultRate  = 10.0 // tokens per second
	DefaultBurst = 20
)

// Bucket is a token bucket. Refill happens lazily on access so there is
// no background goroutine to manage.
type Bucket struct {
	mu         sync.Mutex
	rate       float64 // tokens per second
	burst      float64
	tokens     float64
	lastRefill time.Time

	now func() time.Time
}

// NewBucket creates a bucket starting full.
func NewBucket(rate float64, burst int) *Bucket {
	if rate <= 0 {
		rate = DefaultRate
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	b := &Bucket{
		rate:  rate,
		burst: float64(burst),
		now:   time.Now,
	}
	b.tokens = b.burst
	b.lastRefill = b.now()
	return b
}

// Allow consumes one token if available. Non-blocking.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Tokens returns the currently available token count.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

// RetryAfter estimates how long until one token is available. Zero when
// a token is available now.
func (b *Bucket) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	if b.tokens >= 1 {
		return 0
	}
	missing := 1 - b.tokens
	return time.Duration(missing / b.rate * float64(time.Second))
}

// Reset refills the bucket to capacity.
func (b *Bucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = b.burst
	b.lastRefill = b.now()
}

// Must be called with the lock held.
func (b *Bucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.tokens = min(b.burst, b.tokens+elapsed.Seconds()*b.rate)
	b.lastRefill = now
}
