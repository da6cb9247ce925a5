package channel_test

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbus/fluxbus/core/channel"
)

type testCmd struct {
	id string
}

func (c testCmd) Name() string { return "test_command" }

// logCapture is a slog.Handler that records every message it sees.
type logCapture struct {
	mu       sync.Mutex
	messages []string
}

func (h *logCapture) Enabled(context.Context, slog.Level) bool { return true }

func (h *logCapture) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, r.Message)
	return nil
}

func (h *logCapture) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *logCapture) WithGroup(string) slog.Handler      { return h }

func (h *logCapture) count(substr string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, msg := range h.messages {
		if strings.Contains(msg, substr) {
			n++
		}
	}
	return n
}

func TestProducerSend(t *testing.T) {
	t.Parallel()

	q := channel.NewQueue[channel.Envelope[testCmd]]()
	errs := channel.NewErrorQueue()
	p := channel.NewProducer(q, errs)

	done := p.Send(testCmd{id: "1"})
	require.NotNil(t, done)
	assert.False(t, done.IsSet(), "completion must not be set before a handler ran")
	assert.Equal(t, 1, q.Len())

	env, err := q.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", env.Command.id)
	assert.Same(t, done, env.Done)
}

func TestProducerWaitUntilReady(t *testing.T) {
	t.Parallel()

	q := channel.NewQueue[channel.Envelope[testCmd]]()
	errs := channel.NewErrorQueue()
	p := channel.NewProducer(q, errs,
		channel.WithMonitorInterval[testCmd](time.Millisecond),
		channel.WithProducerLogger[testCmd](slog.New(&logCapture{})),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = p.Start(ctx) }()
	defer p.Stop()

	require.NoError(t, p.WaitUntilReady(context.Background()))
}

func TestProducerWaitUntilReadyBlocksBeforeStart(t *testing.T) {
	t.Parallel()

	q := channel.NewQueue[channel.Envelope[testCmd]]()
	p := channel.NewProducer(q, channel.NewErrorQueue())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.WaitUntilReady(ctx), context.DeadlineExceeded)
}

func TestProducerMonitor(t *testing.T) {
	t.Parallel()

	capture := &logCapture{}
	q := channel.NewQueue[channel.Envelope[testCmd]]()
	errs := channel.NewErrorQueue()
	p := channel.NewProducer(q, errs,
		channel.WithSizeWarning[testCmd](3),
		channel.WithMonitorInterval[testCmd](2*time.Millisecond),
		channel.WithProducerLogger[testCmd](slog.New(capture)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = p.Start(ctx) }()
	defer p.Stop()
	require.NoError(t, p.WaitUntilReady(context.Background()))

	// Grow to the warning threshold.
	for i := 0; i < 4; i++ {
		p.Send(testCmd{})
	}

	require.Eventually(t, func() bool {
		return capture.count("queue is growing") == 1
	}, time.Second, time.Millisecond)

	// An unchanged size must not produce duplicate warnings.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, capture.count("queue is growing"))

	// A distinct larger size warns again.
	p.Send(testCmd{})
	require.Eventually(t, func() bool {
		return capture.count("queue is growing") == 2
	}, time.Second, time.Millisecond)

	// Drain below the threshold: exactly one recovery notice.
	for q.Len() > 0 {
		_, err := q.Get(context.Background())
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		return capture.count("queue has shrunk back to an OK size") == 1
	}, time.Second, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, capture.count("queue has shrunk back to an OK size"))
	assert.Equal(t, 0, errs.Len())
}

func TestProducerStopIsIdempotent(t *testing.T) {
	t.Parallel()

	q := channel.NewQueue[channel.Envelope[testCmd]]()
	p := channel.NewProducer(q, channel.NewErrorQueue(),
		channel.WithMonitorInterval[testCmd](time.Millisecond),
		channel.WithProducerLogger[testCmd](slog.New(&logCapture{})),
	)

	go func() { _ = p.Start(context.Background()) }()
	require.NoError(t, p.WaitUntilReady(context.Background()))

	p.Stop()
	p.Stop()
	p.Stop()
}

func TestProducerHealthcheck(t *testing.T) {
	t.Parallel()

	q := channel.NewQueue[channel.Envelope[testCmd]]()
	p := channel.NewProducer(q, channel.NewErrorQueue(),
		channel.WithMonitorInterval[testCmd](time.Millisecond),
		channel.WithProducerLogger[testCmd](slog.New(&logCapture{})),
	)

	require.ErrorIs(t, p.Healthcheck(context.Background()), channel.ErrHealthcheckFailed)

	go func() { _ = p.Start(context.Background()) }()
	require.NoError(t, p.WaitUntilReady(context.Background()))
	require.NoError(t, p.Healthcheck(context.Background()))

	p.Stop()
	require.ErrorIs(t, p.Healthcheck(context.Background()), channel.ErrProducerNotStarted)
}

func TestProducerStartTwice(t *testing.T) {
	t.Parallel()

	q := channel.NewQueue[channel.Envelope[testCmd]]()
	p := channel.NewProducer(q, channel.NewErrorQueue(),
		channel.WithMonitorInterval[testCmd](time.Millisecond),
		channel.WithProducerLogger[testCmd](slog.New(&logCapture{})),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = p.Start(ctx) }()
	require.NoError(t, p.WaitUntilReady(context.Background()))
	defer p.Stop()

	require.ErrorIs(t, p.Start(ctx), channel.ErrProducerAlreadyStarted)
}
