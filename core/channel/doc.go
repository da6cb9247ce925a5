// Package channel implements the internal command channel that decouples
// application-facing clients from the transport layer.
//
// A Producer puts commands onto a shared unbounded FIFO queue, pairing each
// with a single-shot Completion the caller may await. A Consumer drains the
// queue and runs each command's handler as a background task, tracking
// in-flight work so shutdown can first stop intake, then drain within a
// bounded window, and finally force-cancel stragglers.
//
// Failures inside background tasks never propagate to callers; they are
// forwarded exactly once to the shared ErrorQueue, whose owner decides
// whether the client should shut down. A command's Completion is set even
// when its handler fails, so awaiters are never left hanging.
//
// The Producer additionally runs a queue-depth monitor that logs a warning
// when the queue grows to the configured threshold and a recovery notice
// when it shrinks back below it. The monitor observes; it does not throttle.
package channel
