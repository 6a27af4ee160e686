package webhook

import (
	"sync"
	"time"
)

// CircuitState is the current position of the breaker.
type CircuitState string

const (
	// CircuitClosed lets deliveries through.
	CircuitClosed CircuitState = "CLOSED"
	// CircuitOpen rejects every delivery until the recovery timeout.
	CircuitOpen CircuitState = "OPEN"
	// CircuitHalfOpen permits a single probe delivery.
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// Breaker defaults.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultRecoveryTimeout  = time.Minute
)

// CircuitBreaker protects the webhook endpoint. After failureThreshold
// consecutive failures it opens; once the recovery timeout elapses it
// half-opens and admits exactly one probe at a time. successThreshold
// consecutive successes close it again; any failure while half-open
// reopens it and restarts the timeout. Safe for concurrent use.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	successThreshold int
	recoveryTimeout  time.Duration

	state       CircuitState
	failures    int
	successes   int
	openedAt    time.Time
	probeActive bool

	now func() time.Time
}

// NewCircuitBreaker creates a breaker; non-positive arguments take the
// package defaults.
func NewCircuitBreaker(failureThreshold, successThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if successThreshold <= 0 {
		successThreshold = DefaultSuccessThreshold
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = DefaultRecoveryTimeout
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            CircuitClosed,
		now:              time.Now,
	}
}

// Allow reports whether a delivery attempt may execute now. While open
// it transitions to half-open once the recovery timeout has elapsed, and
// in half-open it admits one probe at a time.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) < cb.recoveryTimeout {
			return false
		}
		cb.state = CircuitHalfOpen
		cb.successes = 0
		cb.probeActive = true
		return true
	case CircuitHalfOpen:
		if cb.probeActive {
			return false
		}
		cb.probeActive = true
		return true
	default:
		return false
	}
}

// RecordSuccess notes a successful attempt.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.probeActive = false
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.state = CircuitClosed
			cb.failures = 0
			cb.successes = 0
		}
	}
}

// RecordFailure notes a failed attempt.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.state = CircuitOpen
			cb.openedAt = cb.now()
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
		cb.failures = cb.failureThreshold
		cb.probeActive = false
		cb.successes = 0
	}
}

// State returns the state Allow would act from, accounting for an
// elapsed recovery timeout.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.recoveryTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}

// Reset returns the breaker to closed with all counters cleared.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failures = 0
	cb.successes = 0
	cb.probeActive = false
	cb.openedAt = time.Time{}
}
