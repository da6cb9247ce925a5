// Package transport defines the capability contracts a wire backend must
// implement to plug into the bus. A backend may implement any subset of the
// four roles (RPC, Result, Event, Schema) depending on what it can offer;
// operations a backend has no natural implementation for must fail with
// ErrOperationNotSupported rather than behave incorrectly. The embeddable
// Unimplemented types provide exactly that default.
package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fluxbus/fluxbus/core/api"
	"github.com/fluxbus/fluxbus/core/message"
)

// Options carries per-call, backend-specific options. Keys and value types
// are defined by the concrete backend.
type Options map[string]any

// Lifecycle is implemented by every transport role. Open and Close are each
// invoked exactly once per transport instance by the owning bus: Open before
// any operation, Close after the last one.
type Lifecycle interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

// NopLifecycle provides no-op Open/Close for backends that need no
// connection setup or teardown.
type NopLifecycle struct{}

func (NopLifecycle) Open(context.Context) error  { return nil }
func (NopLifecycle) Close(context.Context) error { return nil }

// RPCTransport implements the sending and receiving of RPC calls.
type RPCTransport interface {
	Lifecycle

	// CallRPC publishes a call to a remote procedure.
	CallRPC(ctx context.Context, msg *message.RPCMessage, options Options) error

	// ConsumeRPCs receives pending call requests for the given API names.
	ConsumeRPCs(ctx context.Context, apiNames []string) ([]*message.RPCMessage, error)
}

// ResultTransport implements the sending and receiving of RPC results.
type ResultTransport interface {
	Lifecycle

	// ReturnPath computes where the result for the given call should be
	// delivered, in whatever addressing scheme the backend uses.
	ReturnPath(msg *message.RPCMessage) string

	// SendResult delivers a result to the given return path.
	SendResult(ctx context.Context, rpc *message.RPCMessage, result *message.ResultMessage, returnPath string) error

	// ReceiveResult awaits and retrieves the result for the given call.
	ReceiveResult(ctx context.Context, rpc *message.RPCMessage, returnPath string, options Options) (*message.ResultMessage, error)
}

// EventTransport implements the sending and consumption of events.
type EventTransport interface {
	Lifecycle

	// SendEvent publishes an event.
	SendEvent(ctx context.Context, msg *message.EventMessage, options Options) error

	// Consume streams batches of incoming events for the given (api, event)
	// pairs on behalf of the named listener. The stream is infinite: it
	// yields until ctx is done, and a broken stream may be restarted by
	// calling Consume again. Calling Consume with an empty listenFor is a
	// configuration error (ErrNothingToListenFor).
	Consume(ctx context.Context, listenFor []api.EventRef, listenerName string) (<-chan []*message.EventMessage, error)

	// Acknowledge marks one or more events as successfully processed.
	// Backends without at-least-once semantics treat this as a no-op.
	Acknowledge(ctx context.Context, msgs ...*message.EventMessage) error

	// History streams past events for the given api/event during the
	// optionally bounded range, newest first. Zero times mean unbounded.
	History(ctx context.Context, apiName, eventName string, start, stop time.Time, startInclusive bool) (<-chan *message.EventMessage, error)
}

// SchemaTransport implements the sharing of API schemas between bus clients.
type SchemaTransport interface {
	Lifecycle

	// Store registers a schema for the given API with an expiry.
	Store(ctx context.Context, apiName string, schema json.RawMessage, ttl time.Duration) error

	// Ping keeps alive a schema already registered via Store. Backends
	// conventionally implement this by re-storing, refreshing the expiry.
	Ping(ctx context.Context, apiName string, schema json.RawMessage, ttl time.Duration) error

	// Load returns the full current schema set, mapping API name to schema.
	Load(ctx context.Context) (map[string]json.RawMessage, error)
}
