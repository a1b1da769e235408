package engine

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter admits at most maxPermits operations per window, independent of the
// retry policy and the worker pool. Callers queue in FIFO order; a permit is
// never dropped, the limiter only delays.
type Limiter struct {
	limiter *rate.Limiter
}

func NewLimiter(maxPermits int, window time.Duration) *Limiter {
	if maxPermits <= 0 {
		maxPermits = 1
	}
	interval := window / time.Duration(maxPermits)
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Every(interval), maxPermits)}
}

// Admit blocks until a permit is available or the context is cancelled.
// Cancellation releases the caller's queue position.
func (l *Limiter) Admit(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
