package cache

import (
	"context"
	"errors"
	"sync"
)

// Result tracks the outcome of a cache write that may still be running.
type Result struct {
	done chan struct{}
	once sync.Once
	err  error
}

// NewResult returns a pending result. Call Complete exactly once to settle it.
func NewResult() *Result {
	return &Result{done: make(chan struct{})}
}

// CompletedResult returns an already settled result.
func CompletedResult(err error) *Result {
	r := NewResult()
	r.Complete(err)
	return r
}

// Complete settles the result. Later calls are ignored.
func (r *Result) Complete(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Done is closed once the write settled.
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Err returns the write error, or nil while the write is still pending.
func (r *Result) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the write settled or ctx is done.
func (r *Result) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitAll waits on every result and joins their errors.
func WaitAll(ctx context.Context, results ...*Result) error {
	var errs []error
	for _, r := range results {
		if err := r.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
