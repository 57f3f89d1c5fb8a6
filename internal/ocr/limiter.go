package ocr

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// limiter bounds in-flight calls and paces their start.
type limiter struct {
	sem  *semaphore.Weighted
	pace *rate.Limiter
}

func newLimiter(maxConcurrent int64, every time.Duration, burst int) *limiter {
	l := &limiter{}
	if maxConcurrent > 0 {
		l.sem = semaphore.NewWeighted(maxConcurrent)
	}
	if every > 0 {
		if burst <= 0 {
			burst = 1
		}
		l.pace = rate.NewLimiter(rate.Every(every), burst)
	}
	return l
}

func withLimit[T any](ctx context.Context, l *limiter, fn func() (T, error)) (T, error) {
	var zero T
	if l == nil {
		return fn()
	}
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return zero, err
		}
		defer l.sem.Release(1)
	}
	if l.pace != nil {
		if err := l.pace.Wait(ctx); err != nil {
			return zero, err
		}
	}
	return fn()
}
