package command

import (
	"context"
	"fmt"
)

// Router dispatches a command to the handler registered for its variant.
// Dispatch is single dispatch over the command's concrete type: an explicit
// type switch, no reflection. A variant with no registered handler fails
// with ErrUnhandledCommand.
type Router struct {
	onSendEvent        func(context.Context, SendEvent) error
	onAcknowledgeEvent func(context.Context, AcknowledgeEvent) error
	onConsumeEvents    func(context.Context, ConsumeEvents) error
	onReceiveEvent     func(context.Context, ReceiveEvent) error
}

// NewRouter creates a router with no handlers registered.
func NewRouter() *Router {
	return &Router{}
}

// OnSendEvent registers the SendEvent handler.
func (r *Router) OnSendEvent(fn func(context.Context, SendEvent) error) *Router {
	r.onSendEvent = fn
	return r
}

// OnAcknowledgeEvent registers the AcknowledgeEvent handler.
func (r *Router) OnAcknowledgeEvent(fn func(context.Context, AcknowledgeEvent) error) *Router {
	r.onAcknowledgeEvent = fn
	return r
}

// OnConsumeEvents registers the ConsumeEvents handler.
func (r *Router) OnConsumeEvents(fn func(context.Context, ConsumeEvents) error) *Router {
	r.onConsumeEvents = fn
	return r
}

// OnReceiveEvent registers the ReceiveEvent handler.
func (r *Router) OnReceiveEvent(fn func(context.Context, ReceiveEvent) error) *Router {
	r.onReceiveEvent = fn
	return r
}

// Dispatch routes the command to its variant's handler.
func (r *Router) Dispatch(ctx context.Context, cmd Command) error {
	switch c := cmd.(type) {
	case SendEvent:
		if r.onSendEvent != nil {
			return r.onSendEvent(ctx, c)
		}
	case AcknowledgeEvent:
		if r.onAcknowledgeEvent != nil {
			return r.onAcknowledgeEvent(ctx, c)
		}
	case ConsumeEvents:
		if r.onConsumeEvents != nil {
			return r.onConsumeEvents(ctx, c)
		}
	case ReceiveEvent:
		if r.onReceiveEvent != nil {
			return r.onReceiveEvent(ctx, c)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnhandledCommand, cmd.Name())
}
