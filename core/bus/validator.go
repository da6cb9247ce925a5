package bus

import (
	"encoding/json"

	"github.com/fluxbus/fluxbus/core/config"
	"github.com/fluxbus/fluxbus/core/message"
)

// Schema maps API names to their shared schema documents.
type Schema = map[string]json.RawMessage

// Validator checks messages against the shared schema set. The validation
// rules themselves live outside this core; this only fixes the two points
// at which validation is invoked: outgoing before dispatch, incoming before
// a listener runs.
type Validator interface {
	ValidateOutgoing(cfg *config.Config, schema Schema, msg *message.EventMessage) error
	ValidateIncoming(cfg *config.Config, schema Schema, msg *message.EventMessage) error
}

// NopValidator accepts every message. It is the default when no validator
// collaborator is supplied.
type NopValidator struct{}

func (NopValidator) ValidateOutgoing(*config.Config, Schema, *message.EventMessage) error {
	return nil
}

func (NopValidator) ValidateIncoming(*config.Config, Schema, *message.EventMessage) error {
	return nil
}

// SchemaSource exposes the current bus-wide schema set.
type SchemaSource interface {
	Schema() Schema
}

// StaticSchema is a fixed SchemaSource, mainly useful in tests.
type StaticSchema Schema

func (s StaticSchema) Schema() Schema { return Schema(s) }
