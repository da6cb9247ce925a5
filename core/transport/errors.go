package transport

import "errors"

var (
	// ErrOperationNotSupported is returned by capability operations a backend does not implement.
	ErrOperationNotSupported = errors.New("operation not supported by this transport")

	// ErrNothingToListenFor is returned when Consume is called without any (api, event) pairs.
	ErrNothingToListenFor = errors.New("consume called with nothing to listen for")
)
