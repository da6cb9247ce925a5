package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fluxbus/fluxbus/core/channel"
	"github.com/fluxbus/fluxbus/core/command"
	"github.com/fluxbus/fluxbus/core/transport"
)

// consumeRetryDelay is the pause before reopening a broken consume stream.
const consumeRetryDelay = time.Second

// EventDock is the transport-side command handler: it executes SendEvent,
// AcknowledgeEvent and ConsumeEvents commands against the configured event
// transport, and feeds incoming events back to the client as ReceiveEvent
// commands.
type EventDock struct {
	transport transport.EventTransport
	producer  *channel.Producer[command.Command] // feeds the client-bound queue
	errs      *channel.ErrorQueue
	logger    *slog.Logger
}

// EventDockOption configures an EventDock.
type EventDockOption func(*EventDock)

// WithDockLogger sets the logger. If not set, slog.Default() is used.
func WithDockLogger(logger *slog.Logger) EventDockOption {
	return func(d *EventDock) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewEventDock creates a dock over the given event transport. The producer
// must feed the client-bound command queue.
func NewEventDock(
	tr transport.EventTransport,
	producer *channel.Producer[command.Command],
	errs *channel.ErrorQueue,
	opts ...EventDockOption,
) *EventDock {
	d := &EventDock{
		transport: tr,
		producer:  producer,
		errs:      errs,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Bind registers the dock's command handlers on the router. Consume streams
// started by ConsumeEvents commands are bound to ctx, which should span the
// bus's whole run; they must outlive the command's own handler invocation.
func (d *EventDock) Bind(ctx context.Context, r *command.Router) {
	r.OnSendEvent(func(cmdCtx context.Context, cmd command.SendEvent) error {
		return d.handleSendEvent(cmdCtx, cmd)
	})
	r.OnAcknowledgeEvent(func(cmdCtx context.Context, cmd command.AcknowledgeEvent) error {
		return d.handleAcknowledgeEvent(cmdCtx, cmd)
	})
	r.OnConsumeEvents(func(_ context.Context, cmd command.ConsumeEvents) error {
		return d.handleConsumeEvents(ctx, cmd)
	})
}

func (d *EventDock) handleSendEvent(ctx context.Context, cmd command.SendEvent) error {
	if d.transport == nil {
		return ErrNoEventTransport
	}
	return d.transport.SendEvent(ctx, cmd.Message, cmd.Options)
}

func (d *EventDock) handleAcknowledgeEvent(ctx context.Context, cmd command.AcknowledgeEvent) error {
	if d.transport == nil {
		return ErrNoEventTransport
	}
	return d.transport.Acknowledge(ctx, cmd.Message)
}

// handleConsumeEvents starts the long-lived consume task for one listener.
// The command completes once consumption has started, not when it ends.
func (d *EventDock) handleConsumeEvents(ctx context.Context, cmd command.ConsumeEvents) error {
	if d.transport == nil {
		return ErrNoEventTransport
	}
	if err := transport.CheckListenFor(cmd.Events); err != nil {
		return err
	}

	go d.consume(ctx, cmd)
	return nil
}

// consume drains the transport's consume stream and forwards each message
// to the client as a ReceiveEvent command. Each forward is awaited before
// the next so delivery order into the listener's intake queue stays FIFO.
// A broken stream is reported and reopened.
func (d *EventDock) consume(ctx context.Context, cmd command.ConsumeEvents) {
	for ctx.Err() == nil {
		stream, err := d.transport.Consume(ctx, cmd.Events, cmd.ListenerName)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			d.errs.Put(fmt.Errorf("consume for listener %q: %w", cmd.ListenerName, err))
			if errors.Is(err, transport.ErrOperationNotSupported) || errors.Is(err, transport.ErrNothingToListenFor) {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(consumeRetryDelay):
			}
			continue
		}

		for batch := range stream {
			for _, msg := range batch {
				done := d.producer.Send(command.ReceiveEvent{
					Message:      msg,
					ListenerName: cmd.ListenerName,
				})
				if err := done.Await(ctx); err != nil {
					return
				}
			}
		}

		d.logger.Debug("consume stream closed, reopening",
			slog.String("listener", cmd.ListenerName))
	}
}
