// Package bus is the orchestration layer of the client core: it wires the
// internal command channels to an event transport and exposes the two
// application-facing flows.
//
// The fire flow resolves the API locally (an API must be locally
// authoritative to fire its events), validates the event and its keyword
// arguments, normalizes values into wire-safe form, runs outgoing
// validation and the before-send hook, dispatches a SendEvent command, and
// waits for the transport layer to finish handling it before running the
// after-send hook.
//
// The listen flow registers a uniquely named listener with its own intake
// queue, dispatches a ConsumeEvents command, and runs a per-listener
// consume loop that validates each incoming message, runs the execution
// hooks around the user callable, and acknowledges the message afterwards.
// A callable failure skips acknowledgement, reports to the shared error
// queue, and leaves the loop running for later messages.
//
// Inbound events arrive as ReceiveEvent commands routed through a
// command.Router to the client, which pushes them onto the addressed
// listener's intake queue. Unknown listener names are logged and dropped:
// transports may not perfectly scope delivery, so inbound dispatch is best
// effort.
//
// EventDock is the other side of the internal channel: it executes
// transport-bound commands against the configured transport.EventTransport
// and feeds consumed events back as ReceiveEvent commands. Bus assembles
// both sides, the queue monitors, and schema upkeep into one Run lifecycle.
package bus
