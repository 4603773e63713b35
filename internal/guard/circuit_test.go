package guard

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_ClosedByDefault(t *testing.T) {
	cb := NewCircuitBreaker(3, 5*time.Second)

	ok, reason := cb.Allow("oxapay")
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestCircuitBreaker_OpensOnThreshold(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)

	cb.Allow("oxapay")
	cb.RecordFailure("oxapay")
	cb.RecordFailure("oxapay")

	ok, reason := cb.Allow("oxapay")
	assert.False(t, ok)
	assert.Contains(t, reason, "circuit open")
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)

	cb.Allow("oxapay")
	cb.RecordFailure("oxapay")
	cb.RecordSuccess("oxapay")

	ok, _ := cb.Allow("oxapay")
	assert.True(t, ok)
}

func TestCircuitBreaker_HalfOpenAfterReset(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	cb.Allow("oxapay")
	cb.RecordFailure("oxapay")
	ok, _ := cb.Allow("oxapay")
	assert.False(t, ok)

	time.Sleep(15 * time.Millisecond)
	ok, _ = cb.Allow("oxapay")
	assert.True(t, ok, "breaker should probe after reset timeout")
}

func TestCircuitBreaker_Do(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)

	err := cb.Do("k", func() error { return errors.New("down") })
	assert.Error(t, err)

	err = cb.Do("k", func() error { return nil })
	assert.Error(t, err, "circuit is open; fn must not run")
}
