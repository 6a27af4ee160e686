package backoff_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/teneoprotocol/teneo-go/pkg/backoff"
)

func TestExponential_GrowthAndCap(t *testing.T) {
	t.Parallel()

	s := backoff.Exponential{Base: time.Second, Max: 10 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, s.Delay(1))
	assert.Equal(t, 2*time.Second, s.Delay(2))
	assert.Equal(t, 4*time.Second, s.Delay(3))
	assert.Equal(t, 10*time.Second, s.Delay(5), "capped at Max")
	assert.Zero(t, s.Delay(0))
	assert.Zero(t, s.Delay(-1))
}

func TestExponential_JitterBounds(t *testing.T) {
	t.Parallel()

	s := backoff.Exponential{Base: time.Second, Max: time.Minute, Multiplier: 2, Jitter: time.Second}
	for range 50 {
		d := s.Delay(3)
		assert.GreaterOrEqual(t, d, 4*time.Second)
		assert.Less(t, d, 5*time.Second)
	}
}

func TestLinear_Growth(t *testing.T) {
	t.Parallel()

	s := backoff.Linear{Step: time.Second, Max: 3 * time.Second}
	assert.Equal(t, time.Second, s.Delay(1))
	assert.Equal(t, 2*time.Second, s.Delay(2))
	assert.Equal(t, 3*time.Second, s.Delay(3))
	assert.Equal(t, 3*time.Second, s.Delay(10), "capped")
}

func TestConstant_FixedInterval(t *testing.T) {
	t.Parallel()

	s := backoff.Constant{Interval: 5 * time.Second}
	assert.Equal(t, 5*time.Second, s.Delay(1))
	assert.Equal(t, 5*time.Second, s.Delay(99))
}

func TestReconnectDefault_SatisfiesBounds(t *testing.T) {
	t.Parallel()

	s := backoff.ForReconnect()
	// Attempt N waits at least base*multiplier^(N-1) and at most
	// max + jitter.
	for attempt := 1; attempt <= 15; attempt++ {
		d := s.Delay(attempt)
		lower := time.Duration(float64(3*time.Second) * pow(2.5, attempt-1))
		if lower > 2*time.Minute {
			lower = 2 * time.Minute
		}
		assert.GreaterOrEqual(t, d, lower, "attempt %d", attempt)
		assert.LessOrEqual(t, d, 2*time.Minute+time.Second, "attempt %d", attempt)
	}
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for range exp {
		out *= base
	}
	return out
}
