package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterAllowsBurstWithinWindow(t *testing.T) {
	limiter := NewLimiter(3, 300*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Admit(ctx))
	}
	assert.Less(t, time.Since(start), 150*time.Millisecond,
		"the first maxPermits admissions should not be delayed")
}

func TestLimiterDelaysExcessAdmissions(t *testing.T) {
	window := 300 * time.Millisecond
	limiter := NewLimiter(3, window)
	ctx := context.Background()

	// 2M admissions have to cross at least one full window boundary
	start := time.Now()
	for i := 0; i < 6; i++ {
		require.NoError(t, limiter.Admit(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), window)
}

func TestLimiterReleasesCancelledWaiters(t *testing.T) {
	limiter := NewLimiter(1, time.Minute)
	require.NoError(t, limiter.Admit(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- limiter.Admit(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter did not return")
	}
}
