// Package resilience wraps a worker with retry, validation, circuit breaker,
// and fallback behavior. The wrapper never returns an error to the caller: it
// always produces a result, degraded and tagged with a reason when every
// recovery path is exhausted.
package resilience

import (
	"log"
	"sync"
	"time"
)

const (
	// DefaultBreakerThreshold is the error count that opens the circuit.
	DefaultBreakerThreshold = 5
	// DefaultErrorWindow is the trailing window error records live in.
	DefaultErrorWindow = 10 * time.Minute
	// DefaultResetTimeout is how long an open circuit stays open before a
	// call is attempted again.
	DefaultResetTimeout = 5 * time.Minute
)

// Breaker is a per-worker circuit breaker. Errors within a trailing window
// accumulate; reaching the threshold opens the circuit and calls fast-fail
// until the reset timeout elapses, at which point one call is allowed
// through and the circuit reopens on failure.
type Breaker struct {
	mu           sync.Mutex
	name         string
	threshold    int
	window       time.Duration
	resetTimeout time.Duration

	errors   []time.Time
	open     bool
	openedAt time.Time

	// now is replaceable for tests.
	now func() time.Time
}

// NewBreaker creates a circuit breaker with the default thresholds.
// The name is used only for logging.
func NewBreaker(name string) *Breaker {
	return &Breaker{
		name:         name,
		threshold:    DefaultBreakerThreshold,
		window:       DefaultErrorWindow,
		resetTimeout: DefaultResetTimeout,
		now:          time.Now,
	}
}

// Configure adjusts the open threshold and the reset timeout at runtime.
// Non-positive values leave the current setting unchanged.
func (b *Breaker) Configure(threshold int, resetTimeout time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if threshold > 0 {
		b.threshold = threshold
	}
	if resetTimeout > 0 {
		b.resetTimeout = resetTimeout
	}
}

// Allow reports whether a call may proceed. An open circuit whose reset
// timeout has elapsed closes and allows the call through.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return true
	}
	if b.now().Sub(b.openedAt) > b.resetTimeout {
		b.open = false
		log.Printf("[resilience] circuit breaker attempting reset for %s", b.name)
		return true
	}
	return false
}

// RecordError adds an error to the trailing window and opens the circuit
// when the threshold is reached.
func (b *Breaker) RecordError() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	cutoff := now.Add(-b.window)
	kept := b.errors[:0]
	for _, t := range b.errors {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.errors = append(kept, now)

	if len(b.errors) >= b.threshold && !b.open {
		b.open = true
		b.openedAt = now
		log.Printf("[resilience] circuit breaker opened for %s after %d errors", b.name, len(b.errors))
	}
}

// RecordSuccess clears the error history and closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.errors = b.errors[:0]
	if b.open {
		b.open = false
		b.openedAt = time.Time{}
		log.Printf("[resilience] circuit breaker reset for %s", b.name)
	}
}

// IsOpen reports whether the circuit is currently open.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// ErrorCount returns the number of errors currently in the window.
func (b *Breaker) ErrorCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.errors)
}
