package promise

import (
	"context"
	"sync"
)

// Promise is settled at most once, either with a value or with an error.
// Later calls to Resolve or Reject are ignored.
type Promise[T any] struct {
	value  T
	err    error
	doneCh chan struct{}
	once   sync.Once
}

func New[T any]() *Promise[T] {
	return &Promise[T]{
		doneCh: make(chan struct{}),
	}
}

func (p *Promise[T]) settle(value T, err error) bool {
	settled := false

	p.once.Do(func() {
		p.value = value
		p.err = err
		settled = true

		close(p.doneCh)
	})

	return settled
}

// Resolve returns false when the promise was already settled.
func (p *Promise[T]) Resolve(value T) bool {
	return p.settle(value, nil)
}

// Reject returns false when the promise was already settled.
func (p *Promise[T]) Reject(err error) bool {
	var zero T

	return p.settle(zero, err)
}

// Done is closed once the promise is settled.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.doneCh
}

// Wait blocks until the promise is settled or ctx is done. A cancelled ctx
// does not settle the promise.
func (p *Promise[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.doneCh:
		return p.value, p.err
	case <-ctx.Done():
		var zero T

		return zero, ctx.Err()
	}
}
