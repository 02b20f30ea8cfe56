package queue

import (
	"sync/atomic"

	"github.com/avlk/oppc-aux-sw/internal/errors"
)

// Queue is a bounded FIFO of values. Push drops and counts when full, Poll
// returns false when empty.
type Queue[T any] struct {
	ch      chan T
	pushed  atomic.Uint64
	dropped atomic.Uint64
}

// QueueStats is a snapshot of queue counters.
type QueueStats struct {
	Capacity int    `json:"capacity"`
	Len      int    `json:"len"`
	Pushed   uint64 `json:"pushed"`
	Dropped  uint64 `json:"dropped"`
}

// NewQueue builds a queue holding up to capacity values.
func NewQueue[T any](capacity int) (*Queue[T], error) {
	if capacity <= 0 {
		return nil, errors.Newf("invalid queue capacity: %d, must be greater than 0", capacity).
			Component("queue").
			Category(errors.CategoryValidation).
			Context("operation", "create_queue").
			Context("requested_capacity", capacity).
			Build()
	}
	return &Queue[T]{ch: make(chan T, capacity)}, nil
}

// Push appends v and reports whether it was accepted.
func (q *Queue[T]) Push(v T) bool {
	select {
	case q.ch <- v:
		q.pushed.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Poll removes the oldest value.
func (q *Queue[T]) Poll() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// C exposes the receive side for select loops.
func (q *Queue[T]) C() <-chan T { return q.ch }

// Len returns the number of queued values.
func (q *Queue[T]) Len() int { return len(q.ch) }

// Dropped returns how many pushes were refused.
func (q *Queue[T]) Dropped() uint64 { return q.dropped.Load() }

// Stats returns a snapshot of the queue counters.
func (q *Queue[T]) Stats() QueueStats {
	return QueueStats{
		Capacity: cap(q.ch),
		Len:      len(q.ch),
		Pushed:   q.pushed.Load(),
		Dropped:  q.dropped.Load(),
	}
}
