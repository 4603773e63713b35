// Package guard protects outbound provider calls with a per-endpoint
// circuit breaker so a dead provider fails fast instead of tying up
// gateway tasks for the full HTTP timeout.
package guard

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// CircuitBreaker implements a per-key circuit breaker.
type CircuitBreaker struct {
	mu            sync.Mutex
	circuits      map[string]*circuit
	failThreshold int
	resetTimeout  time.Duration
	halfOpenMax   int
}

type circuit struct {
	state       CircuitState
	failures    int
	successes   int
	lastFailure time.Time
}

// NewCircuitBreaker creates a circuit breaker with configurable thresholds.
func NewCircuitBreaker(failThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		circuits:      make(map[string]*circuit),
		failThreshold: failThreshold,
		resetTimeout:  resetTimeout,
		halfOpenMax:   1,
	}
}

// Allow reports whether the circuit for the given key admits a request.
// The returned reason is non-empty when blocked.
func (cb *CircuitBreaker) Allow(key string) (bool, string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[key]
	if !ok {
		cb.circuits[key] = &circuit{state: CircuitClosed}
		return true, ""
	}

	switch c.state {
	case CircuitOpen:
		if time.Since(c.lastFailure) > cb.resetTimeout {
			c.state = CircuitHalfOpen
			c.successes = 0
			return true, ""
		}
		return false, fmt.Sprintf("circuit open for %s, resets in %s",
			key, (cb.resetTimeout - time.Since(c.lastFailure)).Round(time.Second))
	case CircuitHalfOpen:
		if c.successes >= cb.halfOpenMax {
			return false, "circuit half-open, max probes reached"
		}
		return true, ""
	default:
		return true, ""
	}
}

// RecordSuccess marks a successful execution for the given key.
func (cb *CircuitBreaker) RecordSuccess(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[key]
	if !ok {
		return
	}
	switch c.state {
	case CircuitHalfOpen:
		c.successes++
		if c.successes >= cb.halfOpenMax {
			c.state = CircuitClosed
			c.failures = 0
		}
	case CircuitClosed:
		c.failures = 0
	}
}

// RecordFailure marks a failed execution for the given key.
func (cb *CircuitBreaker) RecordFailure(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[key]
	if !ok {
		cb.circuits[key] = &circuit{state: CircuitClosed, failures: 1, lastFailure: time.Now()}
		return
	}
	c.failures++
	c.lastFailure = time.Now()
	if c.failures >= cb.failThreshold {
		c.state = CircuitOpen
	}
}

// Do wraps fn with the breaker for the key.
func (cb *CircuitBreaker) Do(key string, fn func() error) error {
	if ok, reason := cb.Allow(key); !ok {
		return fmt.Errorf("%s", reason)
	}
	if err := fn(); err != nil {
		cb.RecordFailure(key)
		return err
	}
	cb.RecordSuccess(key)
	return nil
}
