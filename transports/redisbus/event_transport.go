package redisbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fluxbus/fluxbus/core/api"
	"github.com/fluxbus/fluxbus/core/message"
	"github.com/fluxbus/fluxbus/core/transport"
)

// EventTransport implements the event capability role over Redis Streams:
// one stream per (api, event) pair, one consumer group per listener name,
// XACK-based at-least-once acknowledgement.
//
// The transport does not implement the RPC or result roles.
type EventTransport struct {
	client       *redis.Client
	prefix       string
	maxLen       int64
	batchSize    int64
	block        time.Duration
	consumerName string
	logger       *slog.Logger

	// pending maps message ID to the stream position to XACK, recorded at
	// consume time and released at acknowledge time.
	pending sync.Map // string -> pendingEntry
}

type pendingEntry struct {
	stream  string
	group   string
	entryID string
}

// EventTransportOption configures an EventTransport.
type EventTransportOption func(*EventTransport)

// WithEventLogger sets the logger. If not set, slog.Default() is used.
func WithEventLogger(logger *slog.Logger) EventTransportOption {
	return func(t *EventTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithStreamPrefix overrides the stream key prefix.
func WithStreamPrefix(prefix string) EventTransportOption {
	return func(t *EventTransport) {
		if prefix != "" {
			t.prefix = prefix
		}
	}
}

// WithStreamMaxLen caps each stream's approximate length.
func WithStreamMaxLen(n int64) EventTransportOption {
	return func(t *EventTransport) {
		if n > 0 {
			t.maxLen = n
		}
	}
}

// WithBatchSize sets the maximum entries read per consume call.
func WithBatchSize(n int64) EventTransportOption {
	return func(t *EventTransport) {
		if n > 0 {
			t.batchSize = n
		}
	}
}

// WithBlockTimeout sets how long a consume read blocks.
func WithBlockTimeout(d time.Duration) EventTransportOption {
	return func(t *EventTransport) {
		if d > 0 {
			t.block = d
		}
	}
}

// NewEventTransport creates an event transport over the given client. The
// client is caller-owned; Close does not close it.
func NewEventTransport(client *redis.Client, opts ...EventTransportOption) *EventTransport {
	t := &EventTransport{
		client:       client,
		prefix:       "fluxbus:stream:",
		maxLen:       100_000,
		batchSize:    10,
		block:        5 * time.Second,
		consumerName: uuid.New().String(),
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// NewEventTransportFromConfig creates a client and transport from config.
func NewEventTransportFromConfig(cfg Config, opts ...EventTransportOption) *EventTransport {
	allOpts := append([]EventTransportOption{
		WithStreamPrefix(cfg.StreamPrefix),
		WithStreamMaxLen(cfg.StreamMaxLen),
		WithBatchSize(cfg.BatchSize),
		WithBlockTimeout(cfg.BlockTimeout),
	}, opts...)
	return NewEventTransport(NewClient(cfg), allOpts...)
}

// Open verifies connectivity.
func (t *EventTransport) Open(ctx context.Context) error {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (t *EventTransport) Close(context.Context) error { return nil }

func (t *EventTransport) streamKey(apiName, eventName string) string {
	return t.prefix + apiName + "." + eventName
}

func groupName(listenerName string) string {
	return "fluxbus:" + listenerName
}

// SendEvent appends the event to its stream.
func (t *EventTransport) SendEvent(ctx context.Context, msg *message.EventMessage, _ transport.Options) error {
	kwargs, err := json.Marshal(msg.Kwargs)
	if err != nil {
		return fmt.Errorf("marshaling kwargs for %s: %w", msg, err)
	}

	err = t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.streamKey(msg.APIName, msg.EventName),
		MaxLen: t.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":         msg.ID,
			"api_name":   msg.APIName,
			"event_name": msg.EventName,
			"version":    strconv.Itoa(msg.Version),
			"kwargs":     string(kwargs),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd for %s: %w", msg, err)
	}

	t.logger.DebugContext(ctx, "event sent",
		slog.String("event", msg.Canonical()),
		slog.String("message_id", msg.ID))
	return nil
}

// Consume creates a consumer group per stream for the listener and streams
// batches until ctx is done. The returned channel closes on a read failure;
// callers restart by calling Consume again.
func (t *EventTransport) Consume(ctx context.Context, listenFor []api.EventRef, listenerName string) (<-chan []*message.EventMessage, error) {
	if err := transport.CheckListenFor(listenFor); err != nil {
		return nil, err
	}

	group := groupName(listenerName)
	streams := make([]string, 0, len(listenFor)*2)
	for _, ref := range listenFor {
		key := t.streamKey(ref.API, ref.Event)
		if err := t.client.XGroupCreateMkStream(ctx, key, group, "0").Err(); err != nil && !isBusyGroup(err) {
			return nil, fmt.Errorf("creating group %q on %q: %w", group, key, err)
		}
		streams = append(streams, key)
	}
	// XREADGROUP wants stream names first, then one cursor per stream.
	for range listenFor {
		streams = append(streams, ">")
	}

	out := make(chan []*message.EventMessage)

	go func() {
		defer close(out)

		for ctx.Err() == nil {
			res, err := t.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    group,
				Consumer: t.consumerName,
				Streams:  streams,
				Count:    t.batchSize,
				Block:    t.block,
			}).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				t.logger.Warn("consume read failed, closing stream",
					slog.String("listener", listenerName),
					slog.String("error", err.Error()))
				return
			}

			var batch []*message.EventMessage
			for _, stream := range res {
				for _, entry := range stream.Messages {
					msg, err := parseEntry(entry.Values)
					if err != nil {
						t.logger.Warn("skipping malformed stream entry",
							slog.String("stream", stream.Stream),
							slog.String("entry_id", entry.ID),
							slog.String("error", err.Error()))
						continue
					}
					t.pending.Store(msg.ID, pendingEntry{
						stream:  stream.Stream,
						group:   group,
						entryID: entry.ID,
					})
					batch = append(batch, msg)
				}
			}

			if len(batch) == 0 {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- batch:
			}
		}
	}()

	return out, nil
}

// Acknowledge XACKs previously consumed messages. Messages not pending on
// this transport instance are skipped; acknowledgement is idempotent.
func (t *EventTransport) Acknowledge(ctx context.Context, msgs ...*message.EventMessage) error {
	for _, msg := range msgs {
		v, ok := t.pending.LoadAndDelete(msg.ID)
		if !ok {
			t.logger.DebugContext(ctx, "acknowledge for unknown message, skipping",
				slog.String("message_id", msg.ID))
			continue
		}
		entry := v.(pendingEntry)
		if err := t.client.XAck(ctx, entry.stream, entry.group, entry.entryID).Err(); err != nil {
			return fmt.Errorf("xack %s on %s: %w", entry.entryID, entry.stream, err)
		}
	}
	return nil
}

// History streams past events for the given api/event, newest first, from
// the time-ordered stream IDs. Zero start/stop times mean unbounded.
func (t *EventTransport) History(ctx context.Context, apiName, eventName string, start, stop time.Time, startInclusive bool) (<-chan *message.EventMessage, error) {
	key := t.streamKey(apiName, eventName)

	upper := "+"
	if !stop.IsZero() {
		upper = strconv.FormatInt(stop.UnixMilli(), 10)
	}
	lower := "-"
	if !start.IsZero() {
		lower = strconv.FormatInt(start.UnixMilli(), 10)
		if !startInclusive {
			lower = "(" + lower
		}
	}

	out := make(chan *message.EventMessage)

	go func() {
		defer close(out)

		entries, err := t.client.XRevRange(ctx, key, upper, lower).Result()
		if err != nil {
			t.logger.Warn("history read failed",
				slog.String("stream", key),
				slog.String("error", err.Error()))
			return
		}

		for _, entry := range entries {
			msg, err := parseEntry(entry.Values)
			if err != nil {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- msg:
			}
		}
	}()

	return out, nil
}

func parseEntry(values map[string]any) (*message.EventMessage, error) {
	id, _ := values["id"].(string)
	apiName, _ := values["api_name"].(string)
	eventName, _ := values["event_name"].(string)
	versionStr, _ := values["version"].(string)
	kwargsStr, _ := values["kwargs"].(string)

	if id == "" || apiName == "" || eventName == "" {
		return nil, fmt.Errorf("%w: missing required fields", ErrMalformedEntry)
	}

	version, err := strconv.Atoi(versionStr)
	if err != nil {
		return nil, fmt.Errorf("%w: bad version %q", ErrMalformedEntry, versionStr)
	}

	var kwargs map[string]any
	if kwargsStr != "" {
		if err := json.Unmarshal([]byte(kwargsStr), &kwargs); err != nil {
			return nil, fmt.Errorf("%w: bad kwargs: %v", ErrMalformedEntry, err)
		}
	}

	return &message.EventMessage{
		ID:        id,
		APIName:   apiName,
		EventName: eventName,
		Version:   version,
		Kwargs:    kwargs,
	}, nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
