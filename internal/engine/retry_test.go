package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryStateConsumesExactlyTheBudget(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3}

	attempts := 0
	state := policy.NewState()
	for {
		attempts++ // one (failing) attempt
		next, ok := state.ShouldRetry()
		if !ok {
			break
		}
		state = next
	}
	assert.Equal(t, 3, attempts)
}

func TestRetryStateIsImmutable(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2}
	state := policy.NewState()

	next, ok := state.ShouldRetry()
	assert.True(t, ok)
	assert.Equal(t, 1, next.Remaining())
	// the original state keeps its budget
	assert.Equal(t, 2, state.Remaining())
}

func TestRetryPolicyFloorsAtOneAttempt(t *testing.T) {
	state := RetryPolicy{MaxAttempts: 0}.NewState()
	_, ok := state.ShouldRetry()
	assert.False(t, ok)
}

func TestRetryableOutcome(t *testing.T) {
	assert.True(t, retryableOutcome(0, errors.New("connection refused")))
	assert.True(t, retryableOutcome(500, nil))
	assert.True(t, retryableOutcome(302, nil))
	assert.False(t, retryableOutcome(200, nil))
	assert.False(t, retryableOutcome(204, nil))
}
