package channel

import "context"

// ErrorQueue is the shared sink for every uncaught failure from any
// background task in the system: monitor loops, command handlers and user
// callables all report here. It is owned and drained by a supervisor which
// decides whether a failure warrants shutting the client down; nothing in
// this core retries or swallows an error that lands here.
type ErrorQueue struct {
	q *Queue[error]
}

// NewErrorQueue creates an empty error queue.
func NewErrorQueue() *ErrorQueue {
	return &ErrorQueue{q: NewQueue[error]()}
}

// Put records a background failure. Nil errors are ignored so callers can
// forward handler results unconditionally.
func (e *ErrorQueue) Put(err error) {
	if err == nil {
		return
	}
	e.q.Put(err)
}

// Get blocks until an error is available or the context is done.
func (e *ErrorQueue) Get(ctx context.Context) (error, error) {
	err, getErr := e.q.Get(ctx)
	if getErr != nil {
		return nil, getErr
	}
	e.q.Done()
	return err, nil
}

// Len returns the number of unread errors.
func (e *ErrorQueue) Len() int {
	return e.q.Len()
}
