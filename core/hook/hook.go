// Package hook implements the named extension hook points invoked around
// event sending and execution. The registry is scoped to a client instance,
// not the process, with its lifecycle tied to the owning bus.
package hook

import (
	"context"
	"errors"
	"sync"

	"github.com/fluxbus/fluxbus/core/message"
)

// Point names one extension hook point.
type Point string

const (
	BeforeEventSent      Point = "before_event_sent"
	AfterEventSent       Point = "after_event_sent"
	BeforeEventExecution Point = "before_event_execution"
	AfterEventExecution  Point = "after_event_execution"
)

// Func is a hook implementation. Implementations are external collaborators
// and must not block indefinitely.
type Func func(ctx context.Context, msg *message.EventMessage) error

// Registry holds hook registrations for one client instance.
type Registry struct {
	mu    sync.RWMutex
	hooks map[Point][]Func
}

// NewRegistry creates an empty hook registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[Point][]Func)}
}

// Register adds a hook at the given point. Hooks run in registration order.
func (r *Registry) Register(point Point, fn Func) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[point] = append(r.hooks[point], fn)
}

// Execute runs every hook registered at the point with the current message.
// All hooks run even if an earlier one fails; their errors are joined.
func (r *Registry) Execute(ctx context.Context, point Point, msg *message.EventMessage) error {
	r.mu.RLock()
	fns := r.hooks[point]
	r.mu.RUnlock()

	var errs []error
	for _, fn := range fns {
		if err := fn(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
