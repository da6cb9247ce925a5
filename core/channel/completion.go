package channel

import (
	"context"
	"sync"
)

// Completion is a single-shot, multi-waiter notification: it is set exactly
// once and may be awaited any number of times, before or after being set.
// The Consumer sets a command's Completion when, and only when, the
// command's handler has fully terminated.
type Completion struct {
	once sync.Once
	done chan struct{}
}

// NewCompletion creates an unset Completion.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Set marks the completion as done. Subsequent calls are no-ops.
func (c *Completion) Set() {
	c.once.Do(func() { close(c.done) })
}

// Await blocks until the completion is set or the context is done.
func (c *Completion) Await(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return nil
	}
}

// Done returns a channel that is closed once the completion is set, for use
// in select statements.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// IsSet reports whether the completion has been set, without blocking.
func (c *Completion) IsSet() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Envelope pairs a command with its completion signal while the command is
// in flight on the internal queue.
type Envelope[C any] struct {
	Command C
	Done    *Completion
}
