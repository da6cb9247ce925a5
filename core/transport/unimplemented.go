package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fluxbus/fluxbus/core/api"
	"github.com/fluxbus/fluxbus/core/message"
)

func unsupported(op string) error {
	return fmt.Errorf("%w: %s", ErrOperationNotSupported, op)
}

// UnimplementedRPCTransport can be embedded by backends that only implement
// part of the RPC role; every operation fails as unsupported.
type UnimplementedRPCTransport struct {
	NopLifecycle
}

func (UnimplementedRPCTransport) CallRPC(context.Context, *message.RPCMessage, Options) error {
	return unsupported("call_rpc")
}

func (UnimplementedRPCTransport) ConsumeRPCs(context.Context, []string) ([]*message.RPCMessage, error) {
	return nil, unsupported("consume_rpcs")
}

// UnimplementedResultTransport can be embedded by backends that only
// implement part of the result role.
type UnimplementedResultTransport struct {
	NopLifecycle
}

func (UnimplementedResultTransport) ReturnPath(*message.RPCMessage) string { return "" }

func (UnimplementedResultTransport) SendResult(context.Context, *message.RPCMessage, *message.ResultMessage, string) error {
	return unsupported("send_result")
}

func (UnimplementedResultTransport) ReceiveResult(context.Context, *message.RPCMessage, string, Options) (*message.ResultMessage, error) {
	return nil, unsupported("receive_result")
}

// UnimplementedEventTransport can be embedded by backends that only
// implement part of the event role. Acknowledge defaults to a no-op, the
// right behavior for transports without at-least-once semantics; History
// defaults to unsupported.
type UnimplementedEventTransport struct {
	NopLifecycle
}

func (UnimplementedEventTransport) SendEvent(context.Context, *message.EventMessage, Options) error {
	return unsupported("send_event")
}

func (UnimplementedEventTransport) Consume(context.Context, []api.EventRef, string) (<-chan []*message.EventMessage, error) {
	return nil, unsupported("consume")
}

func (UnimplementedEventTransport) Acknowledge(context.Context, ...*message.EventMessage) error {
	return nil
}

func (UnimplementedEventTransport) History(context.Context, string, string, time.Time, time.Time, bool) (<-chan *message.EventMessage, error) {
	return nil, unsupported("history")
}

// UnimplementedSchemaTransport can be embedded by backends that only
// implement part of the schema role.
type UnimplementedSchemaTransport struct {
	NopLifecycle
}

func (UnimplementedSchemaTransport) Store(context.Context, string, json.RawMessage, time.Duration) error {
	return unsupported("store")
}

func (UnimplementedSchemaTransport) Ping(context.Context, string, json.RawMessage, time.Duration) error {
	return unsupported("ping")
}

func (UnimplementedSchemaTransport) Load(context.Context) (map[string]json.RawMessage, error) {
	return nil, unsupported("load")
}

// CheckListenFor is a sanity check for EventTransport.Consume
// implementations: call it first and return its error verbatim.
func CheckListenFor(listenFor []api.EventRef) error {
	if len(listenFor) == 0 {
		return ErrNothingToListenFor
	}
	return nil
}
