package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fluxbus/fluxbus/core/api"
	"github.com/fluxbus/fluxbus/core/channel"
	"github.com/fluxbus/fluxbus/core/command"
	"github.com/fluxbus/fluxbus/core/config"
	"github.com/fluxbus/fluxbus/core/hook"
	"github.com/fluxbus/fluxbus/core/message"
	"github.com/fluxbus/fluxbus/core/transport"
)

// Listener is a registered event callback. It receives the event message as
// its leading argument plus the (possibly cast) keyword arguments.
type Listener func(ctx context.Context, msg *message.EventMessage, kwargs map[string]any) error

// listenerEntry is one live subscription: a unique name, its interest set,
// the user callable and an intake queue of pending messages. Entries live
// for the lifetime of the client and are never individually torn down.
type listenerEntry struct {
	name   string
	events []api.EventRef
	fn     Listener
	intake *channel.Queue[*message.EventMessage]
}

// EventClient orchestrates the fire and listen flows. Outbound work goes
// through the producer as commands for the transport layer; inbound
// ReceiveEvent commands are routed back here and delivered to the matching
// listener's intake queue.
type EventClient struct {
	cfg       *config.Config
	registry  *api.Registry
	hooks     *hook.Registry
	validator Validator
	schema    SchemaSource
	producer  *channel.Producer[command.Command]
	errs      *channel.ErrorQueue
	logger    *slog.Logger

	mu        sync.Mutex
	listeners map[string]*listenerEntry
}

// EventClientOption configures an EventClient.
type EventClientOption func(*EventClient)

// WithClientLogger sets the logger. If not set, slog.Default() is used.
func WithClientLogger(logger *slog.Logger) EventClientOption {
	return func(c *EventClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithValidator sets the schema validator collaborator.
func WithValidator(v Validator) EventClientOption {
	return func(c *EventClient) {
		if v != nil {
			c.validator = v
		}
	}
}

// WithSchemaSource sets where the client reads the shared schema set from.
func WithSchemaSource(s SchemaSource) EventClientOption {
	return func(c *EventClient) {
		if s != nil {
			c.schema = s
		}
	}
}

// NewEventClient creates an event client. The producer must feed the
// transport-bound command queue; errs receives background failures.
func NewEventClient(
	cfg *config.Config,
	registry *api.Registry,
	hooks *hook.Registry,
	producer *channel.Producer[command.Command],
	errs *channel.ErrorQueue,
	opts ...EventClientOption,
) *EventClient {
	c := &EventClient{
		cfg:       cfg,
		registry:  registry,
		hooks:     hooks,
		validator: NopValidator{},
		schema:    StaticSchema(nil),
		producer:  producer,
		errs:      errs,
		logger:    slog.Default(),
		listeners: make(map[string]*listenerEntry),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FireEvent fires apiName.eventName with the given keyword arguments. The
// API must be registered locally, the event must exist on it, and the
// supplied argument names must match the event's declared parameters
// exactly. The call returns once the SendEvent command has been fully
// handled by the transport layer.
func (c *EventClient) FireEvent(ctx context.Context, apiName, eventName string, kwargs map[string]any, options transport.Options) error {
	a, err := c.registry.Get(apiName)
	if err != nil {
		return err
	}

	if err := api.ValidateName(eventName, api.KindEvent); err != nil {
		return err
	}

	ev, err := a.Event(eventName)
	if err != nil {
		return err
	}

	if err := checkArguments(a.Name, ev, kwargs); err != nil {
		return err
	}

	msg := message.NewEventMessage(a.Name, eventName, a.Version, message.ToWire(kwargs))

	if err := c.validator.ValidateOutgoing(c.cfg, c.schema.Schema(), msg); err != nil {
		return err
	}

	if err := c.hooks.Execute(ctx, hook.BeforeEventSent, msg); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "sending event",
		slog.String("event", msg.Canonical()),
		slog.String("message_id", msg.ID))

	done := c.producer.Send(command.SendEvent{Message: msg, Options: options})
	if err := done.Await(ctx); err != nil {
		return err
	}

	return c.hooks.Execute(ctx, hook.AfterEventSent, msg)
}

// checkArguments requires the supplied keyword-argument names to equal the
// event's declared parameter names as a set; any mismatch, missing or
// extra, is a configuration error.
func checkArguments(apiName string, ev api.EventDef, kwargs map[string]any) error {
	declared := ev.ParameterSet()

	match := len(kwargs) == len(declared)
	if match {
		for name := range kwargs {
			if _, ok := declared[name]; !ok {
				match = false
				break
			}
		}
	}
	if match {
		return nil
	}

	supplied := make([]string, 0, len(kwargs))
	for name := range kwargs {
		supplied = append(supplied, name)
	}
	return &InvalidEventArgumentsError{
		API:      apiName,
		Event:    ev.Name,
		Supplied: supplied,
		Expected: append([]string(nil), ev.Parameters...),
	}
}

// Listen registers a listener under a unique name for a set of (api, event)
// pairs, dispatches a ConsumeEvents command carrying the listener's intake
// queue, and starts the listener's consume loop. The loop runs until ctx is
// done; listeners are torn down process-wide, never individually.
func (c *EventClient) Listen(ctx context.Context, events []api.EventRef, listenerName string, fn Listener, options transport.Options) error {
	if fn == nil {
		return fmt.Errorf("%w: callable for listener %q is nil; perhaps you passed the result of calling the function rather than the function itself",
			ErrInvalidEventListener, listenerName)
	}

	for _, ref := range events {
		if err := ref.Validate(); err != nil {
			return err
		}
	}

	entry := &listenerEntry{
		name:   listenerName,
		events: append([]api.EventRef(nil), events...),
		fn:     fn,
		intake: channel.NewQueue[*message.EventMessage](),
	}

	c.mu.Lock()
	if _, exists := c.listeners[listenerName]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateListener, listenerName)
	}
	c.listeners[listenerName] = entry
	c.mu.Unlock()

	done := c.producer.Send(command.ConsumeEvents{
		Events:       entry.events,
		Destination:  entry.intake,
		ListenerName: listenerName,
	})
	if err := done.Await(ctx); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "listener registered",
		slog.String("listener", listenerName),
		slog.Int("events", len(entry.events)))

	go c.consumeLoop(ctx, entry, options)
	return nil
}

// consumeLoop perpetually takes the next message off the listener's intake
// queue and processes it. A failure processing one message is reported to
// the shared error queue and does not halt the loop for later messages.
func (c *EventClient) consumeLoop(ctx context.Context, entry *listenerEntry, options transport.Options) {
	for {
		msg, err := entry.intake.Get(ctx)
		if err != nil {
			return
		}

		if err := c.onMessage(ctx, entry, msg, options); err != nil {
			c.errs.Put(fmt.Errorf("listener %q processing %s: %w", entry.name, msg, err))
		}
		entry.intake.Done()
	}
}

// onMessage processes one incoming message: validate, run the before hook,
// invoke the user callable, acknowledge, run the after hook. A callable
// failure aborts processing with acknowledgement skipped.
func (c *EventClient) onMessage(ctx context.Context, entry *listenerEntry, msg *message.EventMessage, options transport.Options) error {
	c.logger.InfoContext(ctx, "received event",
		slog.String("event", msg.Canonical()),
		slog.String("message_id", msg.ID),
		slog.String("listener", entry.name))

	if err := c.validator.ValidateIncoming(c.cfg, c.schema.Schema(), msg); err != nil {
		return err
	}

	if err := c.hooks.Execute(ctx, hook.BeforeEventExecution, msg); err != nil {
		return err
	}

	kwargs := msg.Kwargs
	if c.cfg.API(msg.APIName).CastValues {
		kwargs = castKwargs(kwargs)
	}

	if err := invokeListener(ctx, entry.fn, msg, kwargs); err != nil {
		return err
	}

	done := c.producer.Send(command.AcknowledgeEvent{Message: msg, Options: options})
	if err := done.Await(ctx); err != nil {
		return err
	}

	return c.hooks.Execute(ctx, hook.AfterEventExecution, msg)
}

// invokeListener calls the user callable with panic recovery; a panic is
// treated as a listener failure, not a client crash.
func invokeListener(ctx context.Context, fn Listener, msg *message.EventMessage, kwargs map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return fn(ctx, msg, kwargs)
}

// HandleReceiveEvent delivers an inbound event to the addressed listener's
// intake queue. Transports may not scope delivery perfectly, so an unknown
// listener name is logged and the message dropped rather than failing:
// delivery is best effort.
func (c *EventClient) HandleReceiveEvent(ctx context.Context, cmd command.ReceiveEvent) error {
	c.mu.Lock()
	entry, ok := c.listeners[cmd.ListenerName]
	c.mu.Unlock()

	if !ok {
		c.logger.DebugContext(ctx, "received event for unknown listener, dropping",
			slog.String("listener", cmd.ListenerName),
			slog.String("event", cmd.Message.Canonical()))
		return nil
	}

	entry.intake.Put(cmd.Message)
	return nil
}

// Bind registers the client's inbound command handlers on the router.
func (c *EventClient) Bind(r *command.Router) {
	r.OnReceiveEvent(c.HandleReceiveEvent)
}

// ListenerNames returns the names of all registered listeners, useful for
// diagnostics.
func (c *EventClient) ListenerNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.listeners))
	for name := range c.listeners {
		names = append(names, name)
	}
	return names
}
