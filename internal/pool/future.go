package pool

import (
	"context"
	"sync"

	"github.com/tbaxter-dev/foreman/pkg/models"
)

// Future is a handle to the eventual result of a submitted work item.
type Future struct {
	done   chan struct{}
	once   sync.Once
	result models.WorkResult
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// complete resolves the future with the given result. Subsequent calls are
// no-ops, so a late runner return cannot overwrite a timeout result.
func (f *Future) complete(result models.WorkResult) {
	f.once.Do(func() {
		f.result = result
		close(f.done)
	})
}

// Wait blocks until the result is available or the context is cancelled.
// Cancelling the context abandons the wait; the worker finishes or times
// out on its own rather than being hard-killed.
func (f *Future) Wait(ctx context.Context) (models.WorkResult, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return models.WorkResult{}, ctx.Err()
	}
}

// Done returns a channel closed when the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}
