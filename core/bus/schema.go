package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fluxbus/fluxbus/core/api"
	"github.com/fluxbus/fluxbus/core/transport"
)

// schemaKeeper maintains the shared schema set: it stores each local API's
// schema with a TTL on startup, pings it at half the TTL to keep it alive,
// and periodically reloads the full bus-wide set. It is the bus's
// SchemaSource.
type schemaKeeper struct {
	transport transport.SchemaTransport
	registry  *api.Registry
	ttl       time.Duration
	logger    *slog.Logger

	mu      sync.RWMutex
	schemas Schema
}

func newSchemaKeeper(tr transport.SchemaTransport, registry *api.Registry, ttl time.Duration, logger *slog.Logger) *schemaKeeper {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &schemaKeeper{
		transport: tr,
		registry:  registry,
		ttl:       ttl,
		logger:    logger,
		schemas:   make(Schema),
	}
}

// Schema returns a snapshot of the current bus-wide schema set.
func (k *schemaKeeper) Schema() Schema {
	k.mu.RLock()
	defer k.mu.RUnlock()

	out := make(Schema, len(k.schemas))
	for name, schema := range k.schemas {
		out[name] = schema
	}
	return out
}

// Run stores local schemas, then keeps them alive and the shared set fresh
// until the context is done. Without a schema transport it only publishes
// the local schemas into the in-memory set.
func (k *schemaKeeper) Run(ctx context.Context) error {
	if k.transport == nil {
		k.loadLocalOnly()
		<-ctx.Done()
		return ctx.Err()
	}

	if err := k.storeAll(ctx); err != nil {
		return err
	}
	if err := k.reload(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(k.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := k.pingAll(ctx); err != nil {
				k.logger.Warn("schema ping failed", slog.String("error", err.Error()))
			}
			if err := k.reload(ctx); err != nil {
				k.logger.Warn("schema reload failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (k *schemaKeeper) loadLocalOnly() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, a := range k.registry.All() {
		k.schemas[a.Name] = LocalSchema(a)
	}
}

func (k *schemaKeeper) storeAll(ctx context.Context) error {
	for _, a := range k.registry.All() {
		if err := k.transport.Store(ctx, a.Name, LocalSchema(a), k.ttl); err != nil {
			return fmt.Errorf("storing schema for %q: %w", a.Name, err)
		}
	}
	return nil
}

func (k *schemaKeeper) pingAll(ctx context.Context) error {
	for _, a := range k.registry.All() {
		if err := k.transport.Ping(ctx, a.Name, LocalSchema(a), k.ttl); err != nil {
			return fmt.Errorf("pinging schema for %q: %w", a.Name, err)
		}
	}
	return nil
}

func (k *schemaKeeper) reload(ctx context.Context) error {
	loaded, err := k.transport.Load(ctx)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.schemas = make(Schema, len(loaded))
	for name, schema := range loaded {
		k.schemas[name] = schema
	}
	// Local APIs are authoritative even if the shared set is stale.
	for _, a := range k.registry.All() {
		if _, ok := k.schemas[a.Name]; !ok {
			k.schemas[a.Name] = LocalSchema(a)
		}
	}
	return nil
}

// LocalSchema renders the schema document for a locally registered API:
// its version and each event's declared parameter names.
func LocalSchema(a *api.API) json.RawMessage {
	type eventSchema struct {
		Parameters []string `json:"parameters"`
	}
	doc := struct {
		Version int                    `json:"version"`
		Events  map[string]eventSchema `json:"events"`
	}{
		Version: a.Version,
		Events:  make(map[string]eventSchema),
	}

	for _, name := range a.EventNames() {
		ev, err := a.Event(name)
		if err != nil {
			continue
		}
		doc.Events[name] = eventSchema{Parameters: append([]string(nil), ev.Parameters...)}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}
