// Package async runs remote identity-provider calls off the caller's goroutine
// and hands back a Future that can be awaited later.
package async

import (
	"context"
	"errors"
)

// ErrNotComplete is returned by Result when the future has not resolved yet.
var ErrNotComplete = errors.New("future not complete")

// Future holds the eventual result of an asynchronous computation.
type Future[T any] struct {
	result T
	err    error
	done   chan struct{}
}

// Go runs fn on a new goroutine and returns a Future for its result. fn
// always runs, even with a canceled ctx, so it can record its own failure.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.result, f.err = fn(ctx)
	}()
	return f
}

// Resolved returns a Future that is already complete.
func Resolved[T any](v T, err error) *Future[T] {
	f := &Future[T]{result: v, err: err, done: make(chan struct{})}
	close(f.done)
	return f
}

// Await blocks until the future completes or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the value without blocking.
func (f *Future[T]) Result() (T, error) {
	select {
	case <-f.done:
		return f.result, f.err
	default:
		var zero T
		return zero, ErrNotComplete
	}
}
