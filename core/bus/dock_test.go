package bus_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbus/fluxbus/core/api"
	"github.com/fluxbus/fluxbus/core/bus"
	"github.com/fluxbus/fluxbus/core/channel"
	"github.com/fluxbus/fluxbus/core/command"
	"github.com/fluxbus/fluxbus/core/message"
	"github.com/fluxbus/fluxbus/core/transport"
)

// fakeEventTransport scripts the event transport role for dock tests. Each
// Consume call hands out the next scripted stream.
type fakeEventTransport struct {
	transport.UnimplementedEventTransport

	mu           sync.Mutex
	sent         []*message.EventMessage
	acked        []*message.EventMessage
	consumeCalls int
	consumeErr   error
	streams      []chan []*message.EventMessage
}

func (f *fakeEventTransport) SendEvent(_ context.Context, msg *message.EventMessage, _ transport.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeEventTransport) Acknowledge(_ context.Context, msgs ...*message.EventMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, msgs...)
	return nil
}

func (f *fakeEventTransport) Consume(_ context.Context, listenFor []api.EventRef, _ string) (<-chan []*message.EventMessage, error) {
	if err := transport.CheckListenFor(listenFor); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumeCalls++
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	if len(f.streams) == 0 {
		// No scripted stream left: hand out one that never yields.
		return make(chan []*message.EventMessage), nil
	}
	stream := f.streams[0]
	f.streams = f.streams[1:]
	return stream, nil
}

func (f *fakeEventTransport) consumeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.consumeCalls
}

type dockHarness struct {
	router    *command.Router
	transport *fakeEventTransport
	recorder  *commandRecorder
	errs      *channel.ErrorQueue
}

// newDockHarness wires a dock to a fake transport and drains the client-bound
// queue into a recorder, standing in for the client side.
func newDockHarness(t *testing.T, tr *fakeEventTransport) *dockHarness {
	t.Helper()

	quiet := slog.New(slog.DiscardHandler)
	clientBound := channel.NewQueue[channel.Envelope[command.Command]]()
	errs := channel.NewErrorQueue()
	producer := channel.NewProducer(clientBound, errs, channel.WithProducerLogger[command.Command](quiet))
	consumer := channel.NewConsumer(clientBound, errs, channel.WithConsumerLogger[command.Command](quiet))

	recorder := &commandRecorder{fail: make(map[string]error)}
	go func() { _ = consumer.Start(context.Background(), recorder.handle) }()
	t.Cleanup(func() { _ = consumer.Stop(100 * time.Millisecond) })

	var dock *bus.EventDock
	if tr != nil {
		dock = bus.NewEventDock(tr, producer, errs, bus.WithDockLogger(quiet))
	} else {
		dock = bus.NewEventDock(nil, producer, errs, bus.WithDockLogger(quiet))
	}

	router := command.NewRouter()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	dock.Bind(ctx, router)

	return &dockHarness{router: router, transport: tr, recorder: recorder, errs: errs}
}

func TestEventDockSendAndAcknowledge(t *testing.T) {
	t.Parallel()

	tr := &fakeEventTransport{}
	h := newDockHarness(t, tr)
	ctx := context.Background()

	msg := message.NewEventMessage("shop", "order_placed", 1, map[string]any{"order_id": 1})
	require.NoError(t, h.router.Dispatch(ctx, command.SendEvent{Message: msg}))
	require.NoError(t, h.router.Dispatch(ctx, command.AcknowledgeEvent{Message: msg}))

	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.Len(t, tr.sent, 1)
	assert.Equal(t, msg.ID, tr.sent[0].ID)
	require.Len(t, tr.acked, 1)
	assert.Equal(t, msg.ID, tr.acked[0].ID)
}

func TestEventDockWithoutTransport(t *testing.T) {
	t.Parallel()

	h := newDockHarness(t, nil)
	ctx := context.Background()

	msg := message.NewEventMessage("shop", "order_placed", 1, nil)
	require.ErrorIs(t, h.router.Dispatch(ctx, command.SendEvent{Message: msg}), bus.ErrNoEventTransport)
	require.ErrorIs(t, h.router.Dispatch(ctx, command.AcknowledgeEvent{Message: msg}), bus.ErrNoEventTransport)
	require.ErrorIs(t, h.router.Dispatch(ctx, command.ConsumeEvents{ListenerName: "L1"}), bus.ErrNoEventTransport)
}

func TestEventDockConsume(t *testing.T) {
	t.Parallel()

	events := []api.EventRef{{API: "shop", Event: "order_placed"}}

	t.Run("empty interest set is a configuration error", func(t *testing.T) {
		t.Parallel()

		h := newDockHarness(t, &fakeEventTransport{})
		err := h.router.Dispatch(context.Background(), command.ConsumeEvents{ListenerName: "L1"})
		require.ErrorIs(t, err, transport.ErrNothingToListenFor)
	})

	t.Run("forwards messages in order as receive commands", func(t *testing.T) {
		t.Parallel()

		stream := make(chan []*message.EventMessage, 2)
		m1 := message.NewEventMessage("shop", "order_placed", 1, map[string]any{"order_id": 1})
		m2 := message.NewEventMessage("shop", "order_placed", 1, map[string]any{"order_id": 2})
		m3 := message.NewEventMessage("shop", "order_placed", 1, map[string]any{"order_id": 3})
		stream <- []*message.EventMessage{m1, m2}
		stream <- []*message.EventMessage{m3}

		tr := &fakeEventTransport{streams: []chan []*message.EventMessage{stream}}
		h := newDockHarness(t, tr)

		require.NoError(t, h.router.Dispatch(context.Background(), command.ConsumeEvents{
			Events:       events,
			ListenerName: "L1",
		}))

		require.Eventually(t, func() bool {
			return len(h.recorder.byName("receive_event")) == 3
		}, time.Second, time.Millisecond)

		var ids []string
		for _, cmd := range h.recorder.byName("receive_event") {
			recv := cmd.(command.ReceiveEvent)
			assert.Equal(t, "L1", recv.ListenerName)
			ids = append(ids, recv.Message.ID)
		}
		assert.Equal(t, []string{m1.ID, m2.ID, m3.ID}, ids)
	})

	t.Run("reopens a closed stream", func(t *testing.T) {
		t.Parallel()

		first := make(chan []*message.EventMessage)
		close(first)
		tr := &fakeEventTransport{streams: []chan []*message.EventMessage{first}}
		h := newDockHarness(t, tr)

		require.NoError(t, h.router.Dispatch(context.Background(), command.ConsumeEvents{
			Events:       events,
			ListenerName: "L1",
		}))

		require.Eventually(t, func() bool {
			return tr.consumeCount() >= 2
		}, time.Second, time.Millisecond)
	})

	t.Run("unsupported consume is terminal", func(t *testing.T) {
		t.Parallel()

		tr := &fakeEventTransport{consumeErr: transport.ErrOperationNotSupported}
		h := newDockHarness(t, tr)

		require.NoError(t, h.router.Dispatch(context.Background(), command.ConsumeEvents{
			Events:       events,
			ListenerName: "L1",
		}))

		err, getErr := h.errs.Get(context.Background())
		require.NoError(t, getErr)
		require.ErrorIs(t, err, transport.ErrOperationNotSupported)
		assert.Contains(t, err.Error(), `"L1"`)

		// One failed attempt, no retry loop.
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 1, tr.consumeCount())
	})
}
