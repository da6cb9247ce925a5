package bus

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidEventListener is returned when a listener callable fails its sanity check.
	ErrInvalidEventListener = errors.New("invalid event listener")

	// ErrDuplicateListener is returned when registering a listener name that is already taken.
	ErrDuplicateListener = errors.New("listener name already registered")

	// ErrNoEventTransport is returned when an event operation is attempted without an event transport configured.
	ErrNoEventTransport = errors.New("no event transport configured")

	// ErrBusAlreadyRunning is returned when starting a bus that is already running.
	ErrBusAlreadyRunning = errors.New("bus already running")
)

// InvalidEventArgumentsError reports a mismatch between the keyword
// arguments supplied when firing an event and the event's declared
// parameter names. Both counts and both name sets are reported for
// diagnosis.
type InvalidEventArgumentsError struct {
	API      string
	Event    string
	Supplied []string
	Expected []string
}

func (e *InvalidEventArgumentsError) Error() string {
	supplied := append([]string(nil), e.Supplied...)
	expected := append([]string(nil), e.Expected...)
	sort.Strings(supplied)
	sort.Strings(expected)

	return fmt.Sprintf(
		"invalid event arguments firing %s.%s: got %d argument(s) [%s], event expects %d [%s]",
		e.API, e.Event,
		len(supplied), strings.Join(supplied, ", "),
		len(expected), strings.Join(expected, ", "),
	)
}
