package redisbus

import "errors"

// ErrMalformedEntry is returned when a stream entry cannot be decoded into
// an event message.
var ErrMalformedEntry = errors.New("malformed stream entry")
