// Package channel provides the typed bounded queues that decouple the hot
// ingest path from its consumers. Each consumer owns its queue; there is no
// shared queue between consumers.
package channel

import (
	"context"
	"sync/atomic"
)

// Channel is a bounded FIFO queue with a drop-oldest overflow policy.
// Publishing never blocks: when the queue is full the oldest item is
// discarded to admit the new one and the drop counter advances.
type Channel[T any] struct {
	name    string
	items   chan T
	dropped atomic.Int64
}

// New creates a bounded channel with the given capacity.
func New[T any](name string, capacity int) *Channel[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Channel[T]{
		name:  name,
		items: make(chan T, capacity),
	}
}

// Name returns the channel name used in logs and health payloads.
func (c *Channel[T]) Name() string { return c.name }

// TryPublish enqueues without blocking. It reports true on a clean enqueue
// and false when the queue was full; in the full case the oldest item is
// dropped so the new one is still admitted.
func (c *Channel[T]) TryPublish(item T) bool {
	select {
	case c.items <- item:
		return true
	default:
	}

	// Full: evict the oldest entry, then retry once. A concurrent consumer
	// may have drained in between, in which case the eviction receive is a
	// normal dequeue miss and the send lands on freed capacity.
	select {
	case <-c.items:
		c.dropped.Add(1)
	default:
	}
	select {
	case c.items <- item:
	default:
		// Lost the race to another publisher; count the incoming item as
		// dropped rather than spin on the hot path.
		c.dropped.Add(1)
	}
	return false
}

// Receive blocks until an item is available or the context is cancelled.
func (c *Channel[T]) Receive(ctx context.Context) (T, bool) {
	select {
	case item := <-c.items:
		return item, true
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

// TryReceive dequeues without blocking.
func (c *Channel[T]) TryReceive() (T, bool) {
	select {
	case item := <-c.items:
		return item, true
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of queued items.
func (c *Channel[T]) Len() int { return len(c.items) }

// Cap returns the configured capacity.
func (c *Channel[T]) Cap() int { return cap(c.items) }

// Dropped returns the total number of items discarded under overflow.
func (c *Channel[T]) Dropped() int64 { return c.dropped.Load() }
