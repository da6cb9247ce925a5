package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fluxbus/fluxbus/core/api"
	"github.com/fluxbus/fluxbus/core/channel"
	"github.com/fluxbus/fluxbus/core/command"
	"github.com/fluxbus/fluxbus/core/config"
	"github.com/fluxbus/fluxbus/core/hook"
	"github.com/fluxbus/fluxbus/core/metrics"
	"github.com/fluxbus/fluxbus/core/transport"
)

// closeTimeout bounds transport teardown during shutdown.
const closeTimeout = 5 * time.Second

// Bus assembles the client core: two internal command channels (one bound
// for the transport layer, one bound back for the client), the event client,
// the event dock, and schema upkeep.
//
// Example:
//
//	b := bus.New(cfg,
//	    bus.WithEventTransport(redisEvents),
//	    bus.WithSchemaTransport(redisSchemas),
//	    bus.WithBusLogger(logger),
//	)
//	b.RegisterAPI(shopAPI)
//
//	g, ctx := errgroup.WithContext(context.Background())
//	g.Go(func() error { return b.Run(ctx) })
type Bus struct {
	cfg      *config.Config
	registry *api.Registry
	hooks    *hook.Registry
	logger   *slog.Logger
	metrics  *metrics.Set
	errs     *channel.ErrorQueue

	eventTransport  transport.EventTransport
	schemaTransport transport.SchemaTransport
	validator       Validator

	transportProducer *channel.Producer[command.Command]
	clientProducer    *channel.Producer[command.Command]
	transportConsumer *channel.Consumer[command.Command]
	clientConsumer    *channel.Consumer[command.Command]

	client *EventClient
	dock   *EventDock
	keeper *schemaKeeper

	mu      sync.Mutex
	running bool
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithEventTransport sets the event transport backend.
func WithEventTransport(tr transport.EventTransport) BusOption {
	return func(b *Bus) { b.eventTransport = tr }
}

// WithSchemaTransport sets the schema transport backend.
func WithSchemaTransport(tr transport.SchemaTransport) BusOption {
	return func(b *Bus) { b.schemaTransport = tr }
}

// WithBusLogger sets the logger. If not set, slog.Default() is used.
func WithBusLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBusMetrics wires the prometheus collector set into the internal
// channels.
func WithBusMetrics(set *metrics.Set) BusOption {
	return func(b *Bus) { b.metrics = set }
}

// WithBusValidator sets the schema validator collaborator.
func WithBusValidator(v Validator) BusOption {
	return func(b *Bus) {
		if v != nil {
			b.validator = v
		}
	}
}

// New creates a bus from the given configuration.
func New(cfg *config.Config, opts ...BusOption) *Bus {
	if cfg == nil {
		cfg = config.Default()
	}

	b := &Bus{
		cfg:       cfg,
		registry:  api.NewRegistry(),
		hooks:     hook.NewRegistry(),
		logger:    slog.Default(),
		errs:      channel.NewErrorQueue(),
		validator: NopValidator{},
	}

	for _, opt := range opts {
		opt(b)
	}

	transportQueue := channel.NewQueue[channel.Envelope[command.Command]]()
	clientQueue := channel.NewQueue[channel.Envelope[command.Command]]()

	b.transportProducer = channel.NewProducer(transportQueue, b.errs,
		channel.WithProducerName[command.Command]("transport"),
		channel.WithSizeWarning[command.Command](cfg.QueueSizeWarning),
		channel.WithMonitorInterval[command.Command](cfg.MonitorInterval),
		channel.WithProducerLogger[command.Command](b.logger),
		channel.WithProducerMetrics[command.Command](b.metrics),
	)
	b.clientProducer = channel.NewProducer(clientQueue, b.errs,
		channel.WithProducerName[command.Command]("client"),
		channel.WithSizeWarning[command.Command](cfg.QueueSizeWarning),
		channel.WithMonitorInterval[command.Command](cfg.MonitorInterval),
		channel.WithProducerLogger[command.Command](b.logger),
		channel.WithProducerMetrics[command.Command](b.metrics),
	)
	b.transportConsumer = channel.NewConsumer(transportQueue, b.errs,
		channel.WithConsumerName[command.Command]("transport"),
		channel.WithConsumerLogger[command.Command](b.logger),
		channel.WithConsumerMetrics[command.Command](b.metrics),
	)
	b.clientConsumer = channel.NewConsumer(clientQueue, b.errs,
		channel.WithConsumerName[command.Command]("client"),
		channel.WithConsumerLogger[command.Command](b.logger),
		channel.WithConsumerMetrics[command.Command](b.metrics),
	)

	b.keeper = newSchemaKeeper(b.schemaTransport, b.registry, cfg.Schema.TTL, b.logger)
	b.client = NewEventClient(cfg, b.registry, b.hooks, b.transportProducer, b.errs,
		WithClientLogger(b.logger),
		WithValidator(b.validator),
		WithSchemaSource(b.keeper),
	)
	b.dock = NewEventDock(b.eventTransport, b.clientProducer, b.errs,
		WithDockLogger(b.logger),
	)

	return b
}

// RegisterAPI adds a locally authoritative API. Register every API before
// Run so its schema can be stored on startup.
func (b *Bus) RegisterAPI(a *api.API) error {
	return b.registry.Register(a)
}

// On registers a hook at the given extension point.
func (b *Bus) On(point hook.Point, fn hook.Func) {
	b.hooks.Register(point, fn)
}

// FireEvent fires an event on a locally registered API and waits for the
// transport layer to finish handling it.
func (b *Bus) FireEvent(ctx context.Context, apiName, eventName string, kwargs map[string]any) error {
	return b.client.FireEvent(ctx, apiName, eventName, kwargs, nil)
}

// Listen registers an event listener under a unique name.
func (b *Bus) Listen(ctx context.Context, events []api.EventRef, listenerName string, fn Listener) error {
	return b.client.Listen(ctx, events, listenerName, fn, nil)
}

// Errors exposes the shared error queue. A supervisor should drain it and
// decide whether a background failure warrants shutting the bus down.
func (b *Bus) Errors() *channel.ErrorQueue {
	return b.errs
}

// Client exposes the underlying event client for advanced use.
func (b *Bus) Client() *EventClient {
	return b.client
}

// Schema returns the current bus-wide schema set.
func (b *Bus) Schema() Schema {
	return b.keeper.Schema()
}

// Run opens the transports, starts the internal channels and schema upkeep,
// and blocks until ctx is done, then performs the ordered shutdown: stop the
// queue monitors, stop command intake, drain in-flight handlers within the
// configured window, force-cancel stragglers, and close the transports.
// Returns nil on a clean shutdown.
func (b *Bus) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrBusAlreadyRunning
	}
	b.running = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	for _, lc := range b.lifecycles() {
		if err := lc.Open(ctx); err != nil {
			return fmt.Errorf("opening transport: %w", err)
		}
	}

	// Loops get a context independent from ctx so shutdown happens through
	// the two-phase stop protocol, not through blunt cancellation.
	loopCtx, cancelLoops := context.WithCancel(context.Background())
	defer cancelLoops()

	clientRouter := command.NewRouter()
	b.client.Bind(clientRouter)

	transportRouter := command.NewRouter()
	b.dock.Bind(loopCtx, transportRouter)

	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error { return ignoreCanceled(b.transportProducer.Start(gctx)) })
	g.Go(func() error { return ignoreCanceled(b.clientProducer.Start(gctx)) })
	g.Go(func() error {
		return ignoreCanceled(b.transportConsumer.Start(gctx, transportRouter.Dispatch))
	})
	g.Go(func() error {
		return ignoreCanceled(b.clientConsumer.Start(gctx, clientRouter.Dispatch))
	})
	g.Go(func() error { return ignoreCanceled(b.keeper.Run(gctx)) })

	// No commands should be sent before monitoring is active.
	if err := b.transportProducer.WaitUntilReady(ctx); err != nil {
		cancelLoops()
		_ = g.Wait()
		return err
	}
	if err := b.clientProducer.WaitUntilReady(ctx); err != nil {
		cancelLoops()
		_ = g.Wait()
		return err
	}

	b.logger.InfoContext(ctx, "bus started")

	select {
	case <-ctx.Done():
	case <-gctx.Done():
		// A component failed; run the same ordered shutdown and report.
	}

	b.logger.Info("bus stopping", slog.Duration("stop_wait", b.cfg.StopWait))

	b.transportProducer.Stop()
	b.clientProducer.Stop()
	if err := b.transportConsumer.Stop(b.cfg.StopWait); err != nil && !errors.Is(err, channel.ErrConsumerNotStarted) {
		b.logger.Warn("transport consumer stop failed", slog.String("error", err.Error()))
	}
	if err := b.clientConsumer.Stop(b.cfg.StopWait); err != nil && !errors.Is(err, channel.ErrConsumerNotStarted) {
		b.logger.Warn("client consumer stop failed", slog.String("error", err.Error()))
	}

	cancelLoops()
	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	for _, lc := range b.lifecycles() {
		if err := lc.Close(closeCtx); err != nil {
			b.logger.Warn("transport close failed", slog.String("error", err.Error()))
		}
	}

	b.logger.Info("bus stopped")
	return ignoreCanceled(runErr)
}

func (b *Bus) lifecycles() []transport.Lifecycle {
	var lcs []transport.Lifecycle
	if b.eventTransport != nil {
		lcs = append(lcs, b.eventTransport)
	}
	if b.schemaTransport != nil {
		lcs = append(lcs, b.schemaTransport)
	}
	return lcs
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
