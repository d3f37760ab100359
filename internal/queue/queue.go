// Package queue provides the unbounded FIFO used by the single-writer loops.
package queue

import "sync"

// Queue is a goroutine-safe unbounded FIFO.
//
// Producers call Push from any goroutine. One consumer drains it with
// TryPop and waits on Wait between bursts, which keeps the consumer
// context-aware: it selects on Wait and ctx.Done together.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{} // buffered, size 1; closed by Close
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items:  make([]T, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Push appends v. Returns false if the queue is closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, v)

	// Coalesce: one pending signal is enough to wake the consumer.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryPop removes and returns the front item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	v := q.items[0]
	// Clear the slot so the backing array does not pin the item.
	q.items[0] = zero
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return v, true
}

// Wait returns a channel that fires when items may be available.
// It is closed once the queue is closed.
func (q *Queue[T]) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close rejects further pushes and wakes the consumer. Items already queued
// stay available to TryPop.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
