package redisbus_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbus/fluxbus/core/api"
	"github.com/fluxbus/fluxbus/core/message"
	"github.com/fluxbus/fluxbus/core/transport"
	"github.com/fluxbus/fluxbus/transports/redisbus"
)

func newEventTransport(t *testing.T) (*redisbus.EventTransport, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tr := redisbus.NewEventTransport(client,
		redisbus.WithEventLogger(slog.New(slog.DiscardHandler)),
		redisbus.WithBlockTimeout(10*time.Millisecond),
	)
	require.NoError(t, tr.Open(context.Background()))
	return tr, mr
}

func fireTestEvent(t *testing.T, tr *redisbus.EventTransport, orderID int) *message.EventMessage {
	t.Helper()
	msg := message.NewEventMessage("shop", "order_placed", 1, map[string]any{"order_id": orderID})
	require.NoError(t, tr.SendEvent(context.Background(), msg, nil))
	return msg
}

func TestEventTransportSendEvent(t *testing.T) {
	t.Parallel()

	tr, mr := newEventTransport(t)
	fireTestEvent(t, tr, 1)
	fireTestEvent(t, tr, 2)

	stream, err := mr.Stream("fluxbus:stream:shop.order_placed")
	require.NoError(t, err)
	assert.Len(t, stream, 2)
}

func TestEventTransportConsume(t *testing.T) {
	t.Parallel()

	listenFor := []api.EventRef{{API: "shop", Event: "order_placed"}}

	t.Run("empty interest set", func(t *testing.T) {
		t.Parallel()

		tr, _ := newEventTransport(t)
		_, err := tr.Consume(context.Background(), nil, "L1")
		require.ErrorIs(t, err, transport.ErrNothingToListenFor)
	})

	t.Run("delivers sent events in order", func(t *testing.T) {
		t.Parallel()

		tr, _ := newEventTransport(t)
		sent1 := fireTestEvent(t, tr, 1)
		sent2 := fireTestEvent(t, tr, 2)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		stream, err := tr.Consume(ctx, listenFor, "L1")
		require.NoError(t, err)

		var got []*message.EventMessage
		for len(got) < 2 {
			select {
			case batch := <-stream:
				got = append(got, batch...)
			case <-time.After(5 * time.Second):
				t.Fatal("events were not delivered")
			}
		}

		require.Len(t, got, 2)
		assert.Equal(t, sent1.ID, got[0].ID)
		assert.Equal(t, sent2.ID, got[1].ID)
		assert.Equal(t, "shop", got[0].APIName)
		assert.Equal(t, "order_placed", got[0].EventName)
		assert.Equal(t, 1, got[0].Version)
		assert.Equal(t, map[string]any{"order_id": float64(1)}, got[0].Kwargs)
	})

	t.Run("consume twice tolerates the existing group", func(t *testing.T) {
		t.Parallel()

		tr, _ := newEventTransport(t)
		fireTestEvent(t, tr, 1)

		ctx1, cancel1 := context.WithCancel(context.Background())
		stream1, err := tr.Consume(ctx1, listenFor, "L1")
		require.NoError(t, err)
		select {
		case <-stream1:
		case <-time.After(5 * time.Second):
			t.Fatal("first consume saw nothing")
		}
		cancel1()

		// Group already exists now; a second consume must not fail.
		ctx2, cancel2 := context.WithCancel(context.Background())
		defer cancel2()
		_, err = tr.Consume(ctx2, listenFor, "L1")
		require.NoError(t, err)
	})

	t.Run("distinct listeners each get every event", func(t *testing.T) {
		t.Parallel()

		tr, _ := newEventTransport(t)
		sent := fireTestEvent(t, tr, 1)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		for _, listener := range []string{"L1", "L2"} {
			stream, err := tr.Consume(ctx, listenFor, listener)
			require.NoError(t, err)
			select {
			case batch := <-stream:
				require.Len(t, batch, 1)
				assert.Equal(t, sent.ID, batch[0].ID)
			case <-time.After(5 * time.Second):
				t.Fatalf("listener %s did not receive the event", listener)
			}
		}
	})

	t.Run("closes the channel when the context ends", func(t *testing.T) {
		t.Parallel()

		tr, _ := newEventTransport(t)
		ctx, cancel := context.WithCancel(context.Background())
		stream, err := tr.Consume(ctx, listenFor, "L1")
		require.NoError(t, err)

		cancel()
		select {
		case _, open := <-stream:
			assert.False(t, open)
		case <-time.After(5 * time.Second):
			t.Fatal("stream did not close after cancellation")
		}
	})
}

func TestEventTransportAcknowledge(t *testing.T) {
	t.Parallel()

	tr, _ := newEventTransport(t)
	sent := fireTestEvent(t, tr, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := tr.Consume(ctx, []api.EventRef{{API: "shop", Event: "order_placed"}}, "L1")
	require.NoError(t, err)

	var got *message.EventMessage
	select {
	case batch := <-stream:
		require.Len(t, batch, 1)
		got = batch[0]
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
	require.Equal(t, sent.ID, got.ID)

	require.NoError(t, tr.Acknowledge(ctx, got))

	// Acknowledging again, or acknowledging something never consumed, is a
	// harmless no-op.
	require.NoError(t, tr.Acknowledge(ctx, got))
	require.NoError(t, tr.Acknowledge(ctx, message.NewEventMessage("shop", "order_placed", 1, nil)))
}

func TestEventTransportHistory(t *testing.T) {
	t.Parallel()

	t.Run("newest first", func(t *testing.T) {
		t.Parallel()

		tr, _ := newEventTransport(t)
		sent1 := fireTestEvent(t, tr, 1)
		sent2 := fireTestEvent(t, tr, 2)
		sent3 := fireTestEvent(t, tr, 3)

		stream, err := tr.History(context.Background(), "shop", "order_placed",
			time.Time{}, time.Time{}, true)
		require.NoError(t, err)

		var ids []string
		for msg := range stream {
			ids = append(ids, msg.ID)
		}
		assert.Equal(t, []string{sent3.ID, sent2.ID, sent1.ID}, ids)
	})

	t.Run("empty stream yields nothing", func(t *testing.T) {
		t.Parallel()

		tr, _ := newEventTransport(t)
		stream, err := tr.History(context.Background(), "shop", "order_placed",
			time.Time{}, time.Time{}, true)
		require.NoError(t, err)

		count := 0
		for range stream {
			count++
		}
		assert.Zero(t, count)
	})
}

func TestEventTransportOpenFailure(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	tr := redisbus.NewEventTransport(client,
		redisbus.WithEventLogger(slog.New(slog.DiscardHandler)))
	require.Error(t, tr.Open(context.Background()))
}
