// Package command defines the tagged commands that cross the internal
// producer/consumer boundary, and a Router that dispatches a command value
// to the handler registered for its variant.
package command

import (
	"github.com/fluxbus/fluxbus/core/api"
	"github.com/fluxbus/fluxbus/core/channel"
	"github.com/fluxbus/fluxbus/core/message"
	"github.com/fluxbus/fluxbus/core/transport"
)

// Options carries per-call, backend-specific options through to a transport.
type Options = transport.Options

// Command is the sealed set of instructions crossing the internal boundary.
// A command is immutable once constructed and consumed exactly once by a
// handler.
type Command interface {
	// Name identifies the variant for logs and metrics.
	Name() string

	isCommand()
}

// SendEvent asks the transport layer to publish an event.
type SendEvent struct {
	Message *message.EventMessage
	Options Options
}

func (SendEvent) Name() string { return "send_event" }
func (SendEvent) isCommand()   {}

// AcknowledgeEvent asks the transport layer to acknowledge a successfully
// processed event.
type AcknowledgeEvent struct {
	Message *message.EventMessage
	Options Options
}

func (AcknowledgeEvent) Name() string { return "acknowledge_event" }
func (AcknowledgeEvent) isCommand()   {}

// ConsumeEvents asks the transport layer to begin consuming the given
// (api, event) pairs on behalf of a listener, delivering incoming messages
// to the listener's intake queue.
type ConsumeEvents struct {
	Events       []api.EventRef
	Destination  *channel.Queue[*message.EventMessage]
	ListenerName string
}

func (ConsumeEvents) Name() string { return "consume_events" }
func (ConsumeEvents) isCommand()   {}

// ReceiveEvent carries an inbound event from the transport layer back to the
// client, addressed to a named listener.
type ReceiveEvent struct {
	Message      *message.EventMessage
	ListenerName string
}

func (ReceiveEvent) Name() string { return "receive_event" }
func (ReceiveEvent) isCommand()   {}
