package event

import (
	"sync"

	memerrors "github.com/rmurphy/memimage/pkg/memimage/errors"
)

// Registry dispatches Apply by Kind, pre-populated with the built-in
// handler for all eighteen kinds. Overriding a kind (most usefully
// KindScript, to run an actual registered script engine instead of
// replaying a recorded snapshot) is a single Register call.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Kind]Handler
}

// NewRegistry creates a registry with the built-in handler for every
// recognized kind already registered.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[Kind]Handler, len(AllKinds()))}
	for _, k := range AllKinds() {
		r.handlers[k] = defaultHandler(k)
	}
	return r
}

// defaultHandler binds kind into a closure over the package-level apply
// switch, so each registry entry is a Handler in its own right rather
// than all of them sharing one handler that re-dispatches on kind.
func defaultHandler(kind Kind) Handler {
	return HandlerFunc(func(container any, payload map[string]any) error {
		return apply(kind, container, payload)
	})
}

// Register installs h as the handler for kind, replacing the default.
func (r *Registry) Register(kind Kind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Apply dispatches to the handler registered for evt.Kind.
func (r *Registry) Apply(container any, evt *Event) error {
	r.mu.RLock()
	h, ok := r.handlers[evt.Kind]
	r.mu.RUnlock()
	if !ok {
		return memerrors.Configuration(memerrors.ErrUnknownEventKind, string(evt.Kind))
	}
	return h.Apply(container, evt.Payload)
}
