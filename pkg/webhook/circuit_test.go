package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestBreaker() (*CircuitBreaker, *time.Time) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker(5, 2, time.Minute)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreaker_OpensOnFifthConsecutiveFailure(t *testing.T) {
	t.Parallel()

	cb, _ := newTestBreaker()
	for i := 0; i < 4; i++ {
		assert.True(t, cb.Allow())
		cb.RecordFailure()
		assert.Equal(t, CircuitClosed, cb.State(), "failure %d", i+1)
	}

	assert.True(t, cb.Allow())
	cb.RecordFailure() // 5th
	assert.Equal(t, CircuitOpen, cb.State())
	assert.False(t, cb.Allow(), "6th attempt rejected")
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	cb, _ := newTestBreaker()
	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}
	cb.RecordSuccess()
	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, CircuitClosed, cb.State(), "counter restarted after success")
}

func TestCircuitBreaker_SingleProbeAfterRecoveryTimeout(t *testing.T) {
	t.Parallel()

	cb, now := newTestBreaker()
	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	assert.False(t, cb.Allow())

	*now = now.Add(61 * time.Second)
	assert.Equal(t, CircuitHalfOpen, cb.State())
	assert.True(t, cb.Allow(), "single probe permitted")
	assert.False(t, cb.Allow(), "second concurrent probe denied")
}

func TestCircuitBreaker_ClosesAfterTwoConsecutiveSuccesses(t *testing.T) {
	t.Parallel()

	cb, now := newTestBreaker()
	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	*now = now.Add(61 * time.Second)

	assert.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, CircuitHalfOpen, cb.State())

	assert.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopensAndRestartsTimeout(t *testing.T) {
	t.Parallel()

	cb, now := newTestBreaker()
	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	*now = now.Add(61 * time.Second)
	assert.True(t, cb.Allow())
	cb.RecordFailure()

	assert.Equal(t, CircuitOpen, cb.State())
	assert.False(t, cb.Allow())

	*now = now.Add(30 * time.Second)
	assert.False(t, cb.Allow(), "timeout restarted on half-open failure")
	*now = now.Add(31 * time.Second)
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()

	cb, _ := newTestBreaker()
	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.True(t, cb.Allow())
}
