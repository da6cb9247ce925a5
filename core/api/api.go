// Package api holds the local API registry: the set of APIs this process is
// authoritative for, each with its named events and their declared
// parameters. Events may only be fired for locally registered APIs; firing
// on behalf of a remote API is disallowed by design.
package api

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// EventDef declares one event on an API: its name and the exact set of
// keyword-argument names callers must supply when firing it.
type EventDef struct {
	Name       string
	Parameters []string
}

// ParameterSet returns the declared parameter names as a lookup set.
func (e EventDef) ParameterSet() map[string]struct{} {
	set := make(map[string]struct{}, len(e.Parameters))
	for _, p := range e.Parameters {
		set[p] = struct{}{}
	}
	return set
}

// API describes one locally authoritative API: a named, versioned collection
// of events.
type API struct {
	Name    string
	Version int
	events  map[string]EventDef
}

// New creates an API definition.
func New(name string, version int, events ...EventDef) (*API, error) {
	if err := ValidateName(name, KindAPI); err != nil {
		return nil, err
	}

	a := &API{
		Name:    name,
		Version: version,
		events:  make(map[string]EventDef, len(events)),
	}
	for _, ev := range events {
		if err := ValidateName(ev.Name, KindEvent); err != nil {
			return nil, err
		}
		if _, exists := a.events[ev.Name]; exists {
			return nil, fmt.Errorf("%w: event %q on API %q", ErrDuplicateEvent, ev.Name, name)
		}
		a.events[ev.Name] = ev
	}
	return a, nil
}

// MustNew is like New but panics on error, for package-level API definitions.
func MustNew(name string, version int, events ...EventDef) *API {
	a, err := New(name, version, events...)
	if err != nil {
		panic(err)
	}
	return a
}

// Event returns the definition of the named event.
func (a *API) Event(name string) (EventDef, error) {
	ev, ok := a.events[name]
	if !ok {
		return EventDef{}, fmt.Errorf("%w: API %q has no event %q; you may need to define the event, or you may be using the wrong API",
			ErrEventNotFound, a.Name, name)
	}
	return ev, nil
}

// EventNames returns the names of all events on the API, sorted.
func (a *API) EventNames() []string {
	names := make([]string, 0, len(a.events))
	for name := range a.events {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry maps API names to locally registered API definitions. An API
// being in the registry implies this process is an authority on it.
type Registry struct {
	mu   sync.RWMutex
	apis map[string]*API
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{apis: make(map[string]*API)}
}

// Register adds an API to the registry. Registering the same name twice is a
// configuration error.
func (r *Registry) Register(a *API) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.apis[a.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateAPI, a.Name)
	}
	r.apis[a.Name] = a
	return nil
}

// Get returns the named API, or ErrUnknownAPI if this process is not an
// authority on it.
func (r *Registry) Get(name string) (*API, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.apis[name]
	if !ok {
		return nil, fmt.Errorf("%w: no API named %q is registered locally; an API must be registered here before its events can be fired, "+
			"as firing events on behalf of remote APIs is not allowed (also check for typos in the API name)",
			ErrUnknownAPI, name)
	}
	return a, nil
}

// All returns every registered API, sorted by name.
func (r *Registry) All() []*API {
	r.mu.RLock()
	defer r.mu.RUnlock()

	apis := make([]*API, 0, len(r.apis))
	for _, a := range r.apis {
		apis = append(apis, a)
	}
	sort.Slice(apis, func(i, j int) bool { return apis[i].Name < apis[j].Name })
	return apis
}

// NameKind distinguishes the syntax rules for API names and event names.
type NameKind string

const (
	KindAPI   NameKind = "api"
	KindEvent NameKind = "event"
)

var (
	// API names are dotted identifier paths, e.g. "mycompany.auth".
	apiNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)*$`)
	// Event names are bare identifiers, e.g. "user_registered".
	eventNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// ValidateName checks the syntax of an API or event name.
func ValidateName(name string, kind NameKind) error {
	var re *regexp.Regexp
	switch kind {
	case KindAPI:
		re = apiNameRe
	case KindEvent:
		re = eventNameRe
	default:
		return fmt.Errorf("%w: unknown name kind %q", ErrInvalidName, kind)
	}

	if !re.MatchString(name) {
		return fmt.Errorf("%w: %q is not a valid %s name", ErrInvalidName, name, kind)
	}
	return nil
}

// EventRef identifies one (api, event) pair a listener is interested in.
type EventRef struct {
	API   string
	Event string
}

// Validate checks both halves of the reference.
func (r EventRef) Validate() error {
	if err := ValidateName(r.API, KindAPI); err != nil {
		return err
	}
	return ValidateName(r.Event, KindEvent)
}

func (r EventRef) String() string {
	return r.API + "." + r.Event
}
