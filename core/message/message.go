package message

import (
	"fmt"

	"github.com/google/uuid"
)

// EventMessage is the canonical representation of a single event occurrence,
// independent of any transport encoding. It is immutable after construction
// and flows from the firing client, through a transport, to the listeners on
// the receiving side.
type EventMessage struct {
	ID        string         `json:"id"`
	APIName   string         `json:"api_name"`
	EventName string         `json:"event_name"`
	Version   int            `json:"version"`
	Kwargs    map[string]any `json:"kwargs"`
}

// NewEventMessage creates an EventMessage with a generated identifier.
// The kwargs map is copied so later mutation by the caller cannot leak
// into an already-dispatched message.
func NewEventMessage(apiName, eventName string, version int, kwargs map[string]any) *EventMessage {
	copied := make(map[string]any, len(kwargs))
	for k, v := range kwargs {
		copied[k] = v
	}

	return &EventMessage{
		ID:        uuid.New().String(),
		APIName:   apiName,
		EventName: eventName,
		Version:   version,
		Kwargs:    copied,
	}
}

// Canonical returns the fully qualified "api.event" name.
func (m *EventMessage) Canonical() string {
	return m.APIName + "." + m.EventName
}

func (m *EventMessage) String() string {
	return fmt.Sprintf("EventMessage(%s @ %s)", m.Canonical(), m.ID)
}

// RPCMessage represents a single remote procedure call request.
type RPCMessage struct {
	ID            string         `json:"id"`
	APIName       string         `json:"api_name"`
	ProcedureName string         `json:"procedure_name"`
	Kwargs        map[string]any `json:"kwargs"`
	ReturnPath    string         `json:"return_path,omitempty"`
}

// NewRPCMessage creates an RPCMessage with a generated identifier.
func NewRPCMessage(apiName, procedureName string, kwargs map[string]any) *RPCMessage {
	copied := make(map[string]any, len(kwargs))
	for k, v := range kwargs {
		copied[k] = v
	}

	return &RPCMessage{
		ID:            uuid.New().String(),
		APIName:       apiName,
		ProcedureName: procedureName,
		Kwargs:        copied,
	}
}

// Canonical returns the fully qualified "api.procedure" name.
func (m *RPCMessage) Canonical() string {
	return m.APIName + "." + m.ProcedureName
}

func (m *RPCMessage) String() string {
	return fmt.Sprintf("RPCMessage(%s @ %s)", m.Canonical(), m.ID)
}

// ResultMessage carries the outcome of a remote procedure call back to the
// caller. Exactly one of Result or Error is meaningful.
type ResultMessage struct {
	ID       string `json:"id"`
	RPCID    string `json:"rpc_id"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
	HasError bool   `json:"has_error"`
}

// NewResultMessage creates a successful result for the given RPC message.
func NewResultMessage(rpc *RPCMessage, result any) *ResultMessage {
	return &ResultMessage{
		ID:     uuid.New().String(),
		RPCID:  rpc.ID,
		Result: result,
	}
}

// NewErrorResultMessage creates an error result for the given RPC message.
func NewErrorResultMessage(rpc *RPCMessage, errMsg string) *ResultMessage {
	return &ResultMessage{
		ID:       uuid.New().String(),
		RPCID:    rpc.ID,
		Error:    errMsg,
		HasError: true,
	}
}
