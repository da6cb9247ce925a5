package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fluxbus/fluxbus/core/metrics"
)

const (
	// DefaultSizeWarning is the queue depth at or above which the monitor
	// starts logging growth warnings.
	DefaultSizeWarning = 5

	// DefaultMonitorInterval is how often the monitor samples queue depth.
	DefaultMonitorInterval = 100 * time.Millisecond
)

// Producer accepts commands from calling code and hands them to the shared
// queue without blocking the caller longer than enqueue time. It also owns
// the queue-depth monitor: a watchdog that logs growth and recovery but
// never itself limits throughput.
//
// Example:
//
//	producer := channel.NewProducer(queue, errs, channel.WithProducerLogger(logger))
//	go producer.Start(ctx)
//	producer.WaitUntilReady(ctx)
//
//	done := producer.Send(cmd)
//	done.Await(ctx) // optional: wait for the command's handler to finish
type Producer[C any] struct {
	queue *Queue[Envelope[C]]
	errs  *ErrorQueue

	name            string
	sizeWarning     int
	monitorInterval time.Duration
	logger          *slog.Logger
	metrics         *metrics.Set

	mu     sync.Mutex
	cancel context.CancelFunc
	ready  chan struct{}
}

// ProducerOption configures a Producer.
type ProducerOption[C any] func(*Producer[C])

// WithSizeWarning sets the queue depth at which growth warnings are logged.
func WithSizeWarning[C any](n int) ProducerOption[C] {
	return func(p *Producer[C]) {
		if n > 0 {
			p.sizeWarning = n
		}
	}
}

// WithMonitorInterval sets the monitor's poll interval.
func WithMonitorInterval[C any](d time.Duration) ProducerOption[C] {
	return func(p *Producer[C]) {
		if d > 0 {
			p.monitorInterval = d
		}
	}
}

// WithProducerLogger sets the logger. If not set, slog.Default() is used.
func WithProducerLogger[C any](logger *slog.Logger) ProducerOption[C] {
	return func(p *Producer[C]) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithProducerName names the producer's queue in logs and metrics.
func WithProducerName[C any](name string) ProducerOption[C] {
	return func(p *Producer[C]) {
		if name != "" {
			p.name = name
		}
	}
}

// WithProducerMetrics publishes queue depth to the given collector set.
func WithProducerMetrics[C any](set *metrics.Set) ProducerOption[C] {
	return func(p *Producer[C]) {
		p.metrics = set
	}
}

// NewProducer creates a producer over the shared queue. Background failures
// from the monitor are reported to errs, never raised.
func NewProducer[C any](queue *Queue[Envelope[C]], errs *ErrorQueue, opts ...ProducerOption[C]) *Producer[C] {
	p := &Producer[C]{
		queue:           queue,
		errs:            errs,
		name:            "commands",
		sizeWarning:     DefaultSizeWarning,
		monitorInterval: DefaultMonitorInterval,
		logger:          slog.Default(),
		ready:           make(chan struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Send enqueues the command and returns its completion signal immediately.
// The queue is unbounded, so Send never blocks; callers that need
// backpressure must await completions themselves. Commands are picked up in
// FIFO order but execute concurrently, so callers needing ordering must
// await one command's completion before sending the next.
func (p *Producer[C]) Send(cmd C) *Completion {
	done := NewCompletion()
	p.queue.Put(Envelope[C]{Command: cmd, Done: done})
	return done
}

// Start runs the queue-depth monitor until the context is cancelled. This is
// a blocking operation; run it in a goroutine or via an errgroup. The
// monitor never panics outward: internal failures are forwarded to the
// shared error queue.
func (p *Producer[C]) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return ErrProducerAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	ready := p.ready
	p.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			p.errs.Put(fmt.Errorf("queue monitor %q panicked: %v", p.name, r))
		}
	}()

	p.logger.DebugContext(ctx, "queue monitor started",
		slog.String("queue", p.name),
		slog.Int("size_warning", p.sizeWarning),
		slog.Duration("interval", p.monitorInterval))

	ticker := time.NewTicker(p.monitorInterval)
	defer ticker.Stop()

	var (
		hasPrevious bool
		previous    int
	)

	for {
		size := p.queue.Len()
		p.metrics.SetQueueDepth(p.name, size)

		grew := size >= p.sizeWarning && (!hasPrevious || size != previous)
		recovered := hasPrevious && size < p.sizeWarning && previous >= p.sizeWarning

		switch {
		case recovered:
			p.logger.WarnContext(ctx, "queue has shrunk back to an OK size",
				slog.String("queue", p.name),
				slog.Int("size", size))
		case grew:
			p.logger.WarnContext(ctx, "queue is growing",
				slog.String("queue", p.name),
				slog.Int("size", size))
		}

		previous = size
		hasPrevious = true

		// The first sample marks the monitor ready.
		select {
		case <-ready:
		default:
			close(ready)
		}

		select {
		case <-ctx.Done():
			p.logger.Debug("queue monitor stopped", slog.String("queue", p.name))
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stop cancels the monitor loop. It is idempotent; stopping a producer that
// was never started is a no-op.
func (p *Producer[C]) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel = nil
	p.ready = make(chan struct{})
}

// Healthcheck validates that the monitor loop is running.
func (p *Producer[C]) Healthcheck(ctx context.Context) error {
	p.mu.Lock()
	running := p.cancel != nil
	p.mu.Unlock()

	if !running {
		return errors.Join(ErrHealthcheckFailed, ErrProducerNotStarted)
	}
	return nil
}

// WaitUntilReady blocks until the monitor loop has completed its first
// sample, or the context is done. Use it to sequence startup so no commands
// are sent before monitoring is active.
func (p *Producer[C]) WaitUntilReady(ctx context.Context) error {
	p.mu.Lock()
	ready := p.ready
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ready:
		return nil
	}
}
