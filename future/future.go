// Package future provides a complete-once result holder used for replies that arrive
// asynchronously from a remote node.
//
// A Future is created pending, completed exactly once with a value or an error, and
// may be awaited by any number of goroutines. The first completion wins; later ones
// are ignored and report false.
package future

import (
	"context"
	"sync"
)

type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	completed bool
	val       T
	err       error
	callbacks []func(T, error)
	release   func()
}

func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func Completed[T any](v T) *Future[T] {
	f := New[T]()
	f.Complete(v)
	return f
}

func Failed[T any](err error) *Future[T] {
	f := New[T]()
	f.Fail(err)
	return f
}

// Complete resolves f with v. It reports whether this call resolved it.
func (f *Future[T]) Complete(v T) bool {
	return f.resolve(v, nil)
}

// Fail resolves f with err. It reports whether this call resolved it.
func (f *Future[T]) Fail(err error) bool {
	var zero T
	return f.resolve(zero, err)
}

func (f *Future[T]) resolve(v T, err error) bool {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return false
	}
	f.completed = true
	f.val, f.err = v, err
	cbs := f.callbacks
	f.callbacks = nil
	f.release = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(v, err)
	}
	return true
}

// Done is closed once f is resolved.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

func (f *Future[T]) IsCompleted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

// Result blocks until f is resolved and returns its outcome.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.val, f.err
}

// Wait blocks until f is resolved or ctx ends. When ctx ends first, f is failed with
// the context error and its release hook runs, so whoever would have completed it
// can drop its reference.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
	}

	f.abandon(ctx.Err())
	return f.Result()
}

func (f *Future[T]) abandon(err error) {
	f.mu.Lock()
	release := f.release
	f.mu.Unlock()
	if f.Fail(err) && release != nil {
		release()
	}
}

// OnComplete registers fn to run once f is resolved. If f is already resolved fn runs
// immediately on the calling goroutine; otherwise it runs on the resolving goroutine.
func (f *Future[T]) OnComplete(fn func(T, error)) {
	f.mu.Lock()
	if !f.completed {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	fn(f.val, f.err)
}

// OnRelease sets the hook run when a waiter gives up on a pending f.
func (f *Future[T]) OnRelease(fn func()) {
	f.mu.Lock()
	if !f.completed {
		f.release = fn
	}
	f.mu.Unlock()
}

// Map returns a future resolved with fn applied to f's value. Errors pass through
// unchanged. Giving up on the mapped future releases f.
func Map[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	out := New[U]()
	out.OnRelease(func() { f.abandon(context.Canceled) })
	f.OnComplete(func(v T, err error) {
		if err != nil {
			out.Fail(err)
			return
		}
		u, err := fn(v)
		if err != nil {
			out.Fail(err)
			return
		}
		out.Complete(u)
	})
	return out
}
