// Package classreg is the class registry spec.md §4.6 describes: a
// name-to-constructor lookup a deserialized instance's class tag is
// resolved against, with the one rule that matters enforced in the
// type itself — New never invokes anything resembling a constructor.
package classreg

import (
	"fmt"
	"reflect"
	"sync"

	memerrors "github.com/rmurphy/memimage/pkg/memimage/errors"
)

// entries is the thread-safe name-to-type table backing Registry,
// sized for read-heavy access: lookups happen on every deserialized
// instance, registration happens once at startup.
type entries struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

func newEntries() *entries {
	return &entries{types: make(map[string]reflect.Type)}
}

func (e *entries) get(name string) (reflect.Type, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.types[name]
	return t, ok
}

func (e *entries) set(name string, t reflect.Type) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types[name] = t
}

func (e *entries) has(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.types[name]
	return ok
}

func (e *entries) names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.types))
	for n := range e.types {
		out = append(out, n)
	}
	return out
}

// Registry maps class names to the Go struct type that backs them.
// Register once per class at startup; New is called on the hot path,
// once per class-tagged record a deserialization pass encounters.
type Registry struct {
	entries *entries
}

// New creates an empty class registry.
func New() *Registry {
	return &Registry{entries: newEntries()}
}

// Register associates name with the struct type of zero, so that later
// New(name) calls can produce a bare instance of it. zero must be a
// struct or a pointer to one; its value is never read, only its type.
// Registering the same name twice is a configuration error.
func (r *Registry) Register(name string, zero any) error {
	if r.entries.has(name) {
		return memerrors.Configuration(&memerrors.ClassError{Name: name, Err: memerrors.ErrDuplicateClass}, "registering class")
	}
	t := reflect.TypeOf(zero)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return memerrors.Configuration(fmt.Errorf("classreg: %q is not backed by a struct type", name), "registering class")
	}
	r.entries.set(name, t)
	return nil
}

// New produces a bare *T for the struct type registered under name,
// with every field at its zero value. It never calls a constructor,
// user-defined initializer, or even a zero-argument method on T: the
// caller (the deserializer) is responsible for populating every field
// itself, which is what lets a cyclic reference into the instance be
// patched in place during Pass2 before any code ever observes it.
func (r *Registry) New(name string) (any, error) {
	t, ok := r.entries.get(name)
	if !ok {
		return nil, memerrors.Configuration(&memerrors.ClassError{Name: name, Err: memerrors.ErrUnknownClass}, "creating instance")
	}
	return reflect.New(t).Interface(), nil
}

// Has reports whether name has a registered type.
func (r *Registry) Has(name string) bool {
	return r.entries.has(name)
}

// Names returns every registered class name, in no particular order.
func (r *Registry) Names() []string {
	return r.entries.names()
}
