// Package queue provides the fixed-size message plumbing between signal
// chain stages. A Pool owns a set of pre-allocated messages that cycle
// through claim, fill, send, receive and return. A Queue is a bounded
// result queue with non-blocking push and poll.
//
// Neither type allocates after construction and neither blocks a producer:
// when the pool is empty or the queue is full the caller is told so and the
// event is counted.
package queue

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/avlk/oppc-aux-sw/internal/errors"
)

// ErrTimeout is returned by Receive when nothing arrived in time.
var ErrTimeout = errors.Newf("queue receive timed out").
	Component("queue").
	Category(errors.CategoryTimeout).
	Build()

// Pool is a fixed set of messages moving between a free list and a filled
// list. Claim and Send never block. Receive blocks until a message, the
// timeout or the context ends.
type Pool[T any] struct {
	free   chan *T
	filled chan *T
	size   int

	claims    atomic.Uint64
	exhausted atomic.Uint64
	sent      atomic.Uint64
	received  atomic.Uint64
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Size      int    `json:"size"`
	Free      int    `json:"free"`
	Filled    int    `json:"filled"`
	Claims    uint64 `json:"claims"`
	Exhausted uint64 `json:"exhausted"` // claims refused because every message was in use
	Sent      uint64 `json:"sent"`
	Received  uint64 `json:"received"`
}

// NewPool allocates size messages with newMsg and puts them on the free
// list.
func NewPool[T any](size int, newMsg func() *T) (*Pool[T], error) {
	if size <= 0 {
		return nil, errors.Newf("invalid pool size: %d, must be greater than 0", size).
			Component("queue").
			Category(errors.CategoryValidation).
			Context("operation", "create_pool").
			Context("requested_size", size).
			Build()
	}
	if newMsg == nil {
		newMsg = func() *T { return new(T) }
	}

	p := &Pool[T]{
		free:   make(chan *T, size),
		filled: make(chan *T, size),
		size:   size,
	}
	for range size {
		p.free <- newMsg()
	}
	return p, nil
}

// Size returns the number of messages the pool owns.
func (p *Pool[T]) Size() int { return p.size }

// Claim takes a free message. It returns false immediately when every
// message is in use.
func (p *Pool[T]) Claim() (*T, bool) {
	p.claims.Add(1)
	select {
	case m := <-p.free:
		return m, true
	default:
		p.exhausted.Add(1)
		return nil, false
	}
}

// Send hands a claimed message to the consumer. The filled list can hold
// every message of the pool, so Send never blocks for a message that came
// from Claim.
func (p *Pool[T]) Send(m *T) {
	p.sent.Add(1)
	p.filled <- m
}

// Receive waits up to timeout for a filled message. A non-positive timeout
// waits until a message arrives or ctx ends.
func (p *Pool[T]) Receive(ctx context.Context, timeout time.Duration) (*T, error) {
	select {
	case m := <-p.filled:
		p.received.Add(1)
		return m, nil
	default:
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case m := <-p.filled:
		p.received.Add(1)
		return m, nil
	case <-expired:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Return puts a drained message back on the free list.
func (p *Pool[T]) Return(m *T) {
	if m == nil {
		return
	}
	p.free <- m
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Size:      p.size,
		Free:      len(p.free),
		Filled:    len(p.filled),
		Claims:    p.claims.Load(),
		Exhausted: p.exhausted.Load(),
		Sent:      p.sent.Load(),
		Received:  p.received.Load(),
	}
}
