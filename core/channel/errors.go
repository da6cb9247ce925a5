package channel

import "errors"

var (
	// ErrProducerAlreadyStarted is returned when attempting to start a producer monitor that is already running.
	ErrProducerAlreadyStarted = errors.New("producer already started")

	// ErrProducerNotStarted is returned when attempting to stop a producer monitor that is not running.
	ErrProducerNotStarted = errors.New("producer not started")

	// ErrConsumerAlreadyStarted is returned when attempting to start a consumer that is already running.
	ErrConsumerAlreadyStarted = errors.New("consumer already started")

	// ErrConsumerNotStarted is returned when attempting to stop a consumer that is not running.
	ErrConsumerNotStarted = errors.New("consumer not started")

	// ErrHealthcheckFailed is returned when a channel component health check fails.
	ErrHealthcheckFailed = errors.New("healthcheck failed")

	// ErrConsumerNotRunning is returned when the consumer is not running during health checks.
	ErrConsumerNotRunning = errors.New("consumer not running")
)
