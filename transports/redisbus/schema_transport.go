package redisbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// SchemaTransport shares API schemas through Redis: one TTL'd key per API
// plus an index set of known API names. Expired schemas fall out of the set
// lazily on Load.
type SchemaTransport struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// SchemaTransportOption configures a SchemaTransport.
type SchemaTransportOption func(*SchemaTransport)

// WithSchemaLogger sets the logger. If not set, slog.Default() is used.
func WithSchemaLogger(logger *slog.Logger) SchemaTransportOption {
	return func(t *SchemaTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithSchemaPrefix overrides the schema key prefix.
func WithSchemaPrefix(prefix string) SchemaTransportOption {
	return func(t *SchemaTransport) {
		if prefix != "" {
			t.prefix = prefix
		}
	}
}

// NewSchemaTransport creates a schema transport over the given client. The
// client is caller-owned; Close does not close it.
func NewSchemaTransport(client *redis.Client, opts ...SchemaTransportOption) *SchemaTransport {
	t := &SchemaTransport{
		client: client,
		prefix: "fluxbus:schema:",
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// NewSchemaTransportFromConfig creates a client and transport from config.
func NewSchemaTransportFromConfig(cfg Config, opts ...SchemaTransportOption) *SchemaTransport {
	allOpts := append([]SchemaTransportOption{
		WithSchemaPrefix(cfg.SchemaPrefix),
	}, opts...)
	return NewSchemaTransport(NewClient(cfg), allOpts...)
}

// Open verifies connectivity.
func (t *SchemaTransport) Open(ctx context.Context) error {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (t *SchemaTransport) Close(context.Context) error { return nil }

func (t *SchemaTransport) schemaKey(apiName string) string {
	return t.prefix + apiName
}

func (t *SchemaTransport) indexKey() string {
	return t.prefix + "index"
}

// Store registers a schema for the given API with an expiry, and records
// the API name in the index set.
func (t *SchemaTransport) Store(ctx context.Context, apiName string, schema json.RawMessage, ttl time.Duration) error {
	pipe := t.client.TxPipeline()
	pipe.Set(ctx, t.schemaKey(apiName), []byte(schema), ttl)
	pipe.SAdd(ctx, t.indexKey(), apiName)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing schema for %q: %w", apiName, err)
	}
	return nil
}

// Ping keeps a stored schema alive by re-storing it, refreshing the expiry.
func (t *SchemaTransport) Ping(ctx context.Context, apiName string, schema json.RawMessage, ttl time.Duration) error {
	return t.Store(ctx, apiName, schema, ttl)
}

// Load returns the full current schema set. API names whose schema key has
// expired are pruned from the index as they are encountered.
func (t *SchemaTransport) Load(ctx context.Context) (map[string]json.RawMessage, error) {
	names, err := t.client.SMembers(ctx, t.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("loading schema index: %w", err)
	}

	schemas := make(map[string]json.RawMessage, len(names))
	for _, name := range names {
		data, err := t.client.Get(ctx, t.schemaKey(name)).Bytes()
		if errors.Is(err, redis.Nil) {
			if err := t.client.SRem(ctx, t.indexKey(), name).Err(); err != nil {
				t.logger.Warn("pruning expired schema failed",
					slog.String("api", name),
					slog.String("error", err.Error()))
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading schema for %q: %w", name, err)
		}
		schemas[name] = json.RawMessage(data)
	}
	return schemas, nil
}
