package api

import "errors"

var (
	// ErrUnknownAPI is returned when resolving an API name that is not registered locally.
	ErrUnknownAPI = errors.New("unknown API")

	// ErrEventNotFound is returned when an API does not declare the requested event.
	ErrEventNotFound = errors.New("event not found")

	// ErrDuplicateAPI is returned when registering an API name twice.
	ErrDuplicateAPI = errors.New("API already registered")

	// ErrDuplicateEvent is returned when an API declares the same event name twice.
	ErrDuplicateEvent = errors.New("event already defined")

	// ErrInvalidName is returned when an API or event name fails syntax validation.
	ErrInvalidName = errors.New("invalid name")
)
