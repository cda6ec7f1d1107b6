// Package queue provides the bounded hand-off queue connecting the
// transport receiver to downstream consumers.
package queue

import (
	"context"
	"time"
)

// Bounded is a fixed-capacity FIFO safe for concurrent producers and
// consumers. Pushes never block: when the queue is full the newest item
// is dropped, matching the latest-value-biased nature of a telemetry
// stream.
type Bounded[T any] struct {
	ch chan T
}

// NewBounded returns a queue holding at most capacity items. A
// non-positive capacity defaults to 1024.
func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Bounded[T]{ch: make(chan T, capacity)}
}

// TryPush enqueues v without blocking. It reports false when the queue
// is full and the item was dropped.
func (q *Bounded[T]) TryPush(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

// Pop blocks until an item is available or ctx is done. The second
// return value is false when the wait was cancelled.
func (q *Bounded[T]) Pop(ctx context.Context) (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

// PopTimeout blocks for at most d waiting for an item.
func (q *Bounded[T]) PopTimeout(d time.Duration) (T, bool) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case v := <-q.ch:
		return v, true
	case <-t.C:
		var zero T
		return zero, false
	}
}

// Len returns the number of items currently queued.
func (q *Bounded[T]) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Bounded[T]) Cap() int { return cap(q.ch) }
