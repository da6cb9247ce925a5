package channel

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO queue. Put never blocks, which means callers
// must throttle themselves if backpressure is desired; the Producer's queue
// monitor exists to make unchecked growth visible.
//
// Queue additionally tracks outstanding work: every Put increments an
// unfinished count which is only decremented by Done, not by Get. WaitIdle
// can therefore be used to wait until every queued item has been fully
// processed, not merely dequeued.
type Queue[T any] struct {
	mu         sync.Mutex
	items      []T
	unfinished int
	ready      chan struct{} // closed while items are available
	idle       chan struct{} // closed while unfinished == 0
}

// NewQueue creates an empty unbounded queue.
func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{
		ready: make(chan struct{}),
		idle:  make(chan struct{}),
	}
	close(q.idle)
	return q
}

// Put appends an item to the queue. It never blocks.
func (q *Queue[T]) Put(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, item)
	if q.unfinished == 0 {
		q.idle = make(chan struct{})
	}
	q.unfinished++
	if len(q.items) == 1 {
		close(q.ready)
	}
}

// Get removes and returns the oldest item, blocking until one is available
// or the context is done.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.ready = make(chan struct{})
			}
			q.mu.Unlock()
			return item, nil
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-ready:
		}
	}
}

// Len returns the number of items currently queued (dequeued items are not
// counted, even if still being processed).
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Done marks one previously dequeued item as fully processed.
func (q *Queue[T]) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unfinished == 0 {
		return
	}
	q.unfinished--
	if q.unfinished == 0 {
		close(q.idle)
	}
}

// WaitIdle blocks until every item ever Put has been marked Done, or the
// context is done.
func (q *Queue[T]) WaitIdle(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-idle:
		return nil
	}
}
