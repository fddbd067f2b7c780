package llmmediator

import (
	"sync"
	"time"
)

// CircuitBreaker is a consecutive-failure counter with a lazy TTL
// reset: once maxFailures consecutive failures accumulate, the
// breaker opens and rejects calls until ttl has elapsed since the
// failure that opened it, at which point the next Allow call fully
// closes it (failure count back to zero) and lets that call through.
type CircuitBreaker struct {
	mu          sync.Mutex
	maxFailures int
	ttl         time.Duration
	failures    int
	openedAt    *time.Time
}

// NewCircuitBreaker constructs a breaker. maxFailures <= 0 disables
// the breaker (Allow always returns true).
func NewCircuitBreaker(maxFailures int, ttl time.Duration) *CircuitBreaker {
	return &CircuitBreaker{maxFailures: maxFailures, ttl: ttl}
}

// Allow reports whether a call should proceed. It lazily clears an
// expired open state rather than running a background timer.
func (b *CircuitBreaker) Allow() bool {
	if b.maxFailures <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openedAt == nil {
		return true
	}
	if time.Since(*b.openedAt) >= b.ttl {
		b.openedAt = nil
		b.failures = 0
		return true
	}
	return false
}

// RecordSuccess closes the breaker and resets the failure counter.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openedAt = nil
}

// RecordFailure increments the failure counter, opening the breaker
// once maxFailures is reached.
func (b *CircuitBreaker) RecordFailure() {
	if b.maxFailures <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.maxFailures && b.openedAt == nil {
		now := time.Now()
		b.openedAt = &now
	}
}
