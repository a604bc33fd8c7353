package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var errLookupPanic = errors.New("lookup panicked")

type result[T any] struct {
	value T
	err   error
}

// bounded runs fn and gives up once ctx ends or timeout elapses, whichever is first.
// fn keeps running in the background after a timeout; its result is discarded.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- result[T]{value: zero, err: fmt.Errorf("%w: %v", errLookupPanic, r)}
			}
		}()
		v, err := fn(ctx)
		done <- result[T]{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
