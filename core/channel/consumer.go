package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxbus/fluxbus/core/metrics"
)

// DefaultStopWait bounds the graceful-drain phase of Consumer.Stop.
const DefaultStopWait = time.Second

// stopPollSteps is the number of increments the drain window is split into.
const stopPollSteps = 100

// Named is implemented by commands that can identify themselves, used for
// logging and metrics labels.
type Named interface {
	Name() string
}

// Handler executes a single command. Handler errors are forwarded to the
// shared error queue, never back through the completion signal.
type Handler[C Named] func(ctx context.Context, cmd C) error

// Consumer drains the shared queue and executes each command's handler as a
// concurrently running background task. Commands are picked up in FIFO order
// but there is no ordering guarantee between handler completions.
//
// Example:
//
//	consumer := channel.NewConsumer(queue, errs, channel.WithConsumerLogger(logger))
//	go consumer.Start(ctx, handleCommand)
//	defer consumer.Stop(time.Second)
type Consumer[C Named] struct {
	queue *Queue[Envelope[C]]
	errs  *ErrorQueue

	name    string
	logger  *slog.Logger
	metrics *metrics.Set

	mu       sync.Mutex
	cancel   context.CancelFunc
	loopDone chan struct{}
	running  map[uint64]context.CancelFunc
	nextID   uint64

	processed atomic.Int64
	failed    atomic.Int64
	active    atomic.Int32
}

// ConsumerStats provides observability metrics for monitoring and debugging.
type ConsumerStats struct {
	CommandsProcessed int64
	CommandsFailed    int64
	ActiveCommands    int32
	IsRunning         bool
}

// ConsumerOption configures a Consumer.
type ConsumerOption[C Named] func(*Consumer[C])

// WithConsumerLogger sets the logger. If not set, slog.Default() is used.
func WithConsumerLogger[C Named](logger *slog.Logger) ConsumerOption[C] {
	return func(c *Consumer[C]) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithConsumerName names the consumer's queue in logs.
func WithConsumerName[C Named](name string) ConsumerOption[C] {
	return func(c *Consumer[C]) {
		if name != "" {
			c.name = name
		}
	}
}

// WithConsumerMetrics records per-command counters on the given collector set.
func WithConsumerMetrics[C Named](set *metrics.Set) ConsumerOption[C] {
	return func(c *Consumer[C]) {
		c.metrics = set
	}
}

// NewConsumer creates a consumer over the shared queue. Handler failures are
// reported to errs.
func NewConsumer[C Named](queue *Queue[Envelope[C]], errs *ErrorQueue, opts ...ConsumerOption[C]) *Consumer[C] {
	c := &Consumer[C]{
		queue:   queue,
		errs:    errs,
		name:    "commands",
		logger:  slog.Default(),
		running: make(map[uint64]context.CancelFunc),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start runs the consumption loop until the context is cancelled or Stop is
// called. The loop performs no command logic itself; it only takes the next
// envelope off the queue and spawns its handler in the background. This is a
// blocking operation; run it in a goroutine or via an errgroup.
func (c *Consumer[C]) Start(ctx context.Context, handler Handler[C]) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return ErrConsumerAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	loopDone := make(chan struct{})
	c.loopDone = loopDone
	c.mu.Unlock()

	defer close(loopDone)

	c.logger.DebugContext(ctx, "consumer started", slog.String("queue", c.name))

	for {
		env, err := c.queue.Get(ctx)
		if err != nil {
			c.logger.Debug("consumer stopping", slog.String("queue", c.name))
			return err
		}
		c.handleInBackground(env, handler)
	}
}

// handleInBackground starts a new concurrent execution of handler(cmd) and
// registers it in the running-task set. On termination, success or failure,
// the task is removed from the set, the queue item is marked done, and the
// completion signal is set, in that order.
func (c *Consumer[C]) handleInBackground(env Envelope[C], handler Handler[C]) {
	// Tasks deliberately do not inherit the consumption loop's context:
	// phase one of Stop must not interrupt handlers that are already in
	// flight. Each task gets its own cancel so phase two can force-cancel
	// stragglers individually.
	taskCtx, taskCancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.running[id] = taskCancel
	c.mu.Unlock()

	c.active.Add(1)

	go func() {
		var err error

		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("command handler panicked: %v", r)
				}
			}()
			err = handler(taskCtx, env.Command)
		}()

		c.mu.Lock()
		delete(c.running, id)
		c.mu.Unlock()
		taskCancel()

		c.active.Add(-1)
		c.queue.Done()
		env.Done.Set()

		if err != nil {
			c.failed.Add(1)
			c.metrics.CommandFailed(env.Command.Name())
			c.errs.Put(fmt.Errorf("command %s failed: %w", env.Command.Name(), err))
			c.logger.Error("command handler failed",
				slog.String("queue", c.name),
				slog.String("command", env.Command.Name()),
				slog.String("error", err.Error()))
			return
		}

		c.processed.Add(1)
		c.metrics.CommandProcessed(env.Command.Name())
	}()
}

// Stop performs a two-phase shutdown. Phase one cancels the consumption loop
// so no new commands are picked up; already-enqueued commands stay queued
// and unprocessed. Phase two polls the running-task set in small increments
// over the wait window, letting in-flight handlers finish naturally, then
// force-cancels every task still running. Intake must stop strictly before
// cancellation, otherwise a task could be created after cancellation and
// never get cancelled.
func (c *Consumer[C]) Stop(wait time.Duration) error {
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		return ErrConsumerNotStarted
	}
	cancel := c.cancel
	c.cancel = nil
	loopDone := c.loopDone
	c.mu.Unlock()

	cancel()
	<-loopDone

	if wait <= 0 {
		wait = DefaultStopWait
	}

	step := wait / stopPollSteps
	for i := 0; i < stopPollSteps; i++ {
		if c.runningCount() == 0 {
			break
		}
		time.Sleep(step)
	}

	c.mu.Lock()
	stragglers := make([]context.CancelFunc, 0, len(c.running))
	for _, taskCancel := range c.running {
		stragglers = append(stragglers, taskCancel)
	}
	c.mu.Unlock()

	if len(stragglers) > 0 {
		c.logger.Warn("cancelling commands still running after drain window",
			slog.String("queue", c.name),
			slog.Int("count", len(stragglers)),
			slog.Duration("wait", wait))
	}
	for _, taskCancel := range stragglers {
		taskCancel()
	}

	// Cancellation is cooperative: it takes effect at the handler's next
	// context check. Wait for the set to empty out.
	for c.runningCount() > 0 {
		time.Sleep(step)
	}

	c.logger.Debug("consumer stopped", slog.String("queue", c.name))
	return nil
}

func (c *Consumer[C]) runningCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.running)
}

// Stats returns current consumer statistics for observability and monitoring.
func (c *Consumer[C]) Stats() ConsumerStats {
	c.mu.Lock()
	isRunning := c.cancel != nil
	c.mu.Unlock()

	return ConsumerStats{
		CommandsProcessed: c.processed.Load(),
		CommandsFailed:    c.failed.Load(),
		ActiveCommands:    c.active.Load(),
		IsRunning:         isRunning,
	}
}

// Healthcheck validates that the consumer is operational.
func (c *Consumer[C]) Healthcheck(ctx context.Context) error {
	if !c.Stats().IsRunning {
		return errors.Join(ErrHealthcheckFailed, ErrConsumerNotRunning)
	}
	return nil
}
