package command

import "errors"

// ErrUnhandledCommand is returned when a command's variant has no registered handler.
var ErrUnhandledCommand = errors.New("no handler registered for command")
