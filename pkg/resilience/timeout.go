package resilience

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when an operation exceeds its timeout
var ErrTimeout = errors.New("operation timed out")

// WithTimeout executes fn and returns its error, ErrTimeout if timeout elapses
// first, or ctx.Err() if ctx ends first.
func WithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	_, err := Race(ctx, timeout, func(runCtx context.Context) (struct{}, error) {
		return struct{}{}, fn(runCtx)
	})
	return err
}

// Race runs fn on its own goroutine against a timer and ctx. The first to
// settle decides the result. The context passed to fn keeps the values of ctx
// but is cancelled only once Race returns, so fn cannot lose to a
// cancellation the race itself has not observed yet. A result fn produces
// after that is dropped.
func Race[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	type result struct {
		value T
		err   error
	}
	// buffered so a losing fn never blocks
	done := make(chan result, 1)
	go func() {
		value, err := fn(runCtx)
		done <- result{value: value, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case r := <-done:
		return r.value, r.err
	case <-timer.C:
		return zero, ErrTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
