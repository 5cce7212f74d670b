package wrap

import (
	"context"
	"fmt"

	"github.com/rmurphy/memimage/pkg/memimage/classify"
	memerrors "github.com/rmurphy/memimage/pkg/memimage/errors"
	"github.com/rmurphy/memimage/pkg/memimage/event"
	"github.com/rmurphy/memimage/pkg/memimage/path"
)

// Wrapper intercepts access to exactly one container linked into a
// Graph. Which of the record, sequence, map, and set method sets apply
// depends on the concrete type of the wrapped target; calling one that
// doesn't match returns a configuration error rather than panicking, the
// same way a dynamic-language Proxy trap would raise on an operation its
// target doesn't support.
type Wrapper struct {
	graph  *Graph
	target any
}

// Target returns the raw classify value this wrapper intercepts. The
// replay engine uses this to rebuild a graph with no interception at
// all — applying a recorded event needs the bare container, not a
// wrapper around it.
func (w *Wrapper) Target() any { return w.target }

// Path returns the wrapper's canonical location in the graph.
func (w *Wrapper) Path() path.Path {
	w.graph.mu.RLock()
	defer w.graph.mu.RUnlock()
	return w.graph.paths[w.target]
}

// ClassName returns the underlying value's class name, empty for a
// plain Record, Sequence, Dict, or Set.
func (w *Wrapper) ClassName() string {
	if rl, ok := classify.AsRecordLike(w.target); ok {
		return rl.ClassName()
	}
	return ""
}

// Len reports the number of elements or properties the wrapped
// container holds, whichever notion of size its category has.
func (w *Wrapper) Len() int {
	switch t := w.target.(type) {
	case *classify.Sequence:
		return t.Len()
	case *classify.Dict:
		return t.Len()
	case *classify.Set:
		return t.Len()
	}
	if rl, ok := classify.AsRecordLike(w.target); ok {
		return len(rl.Keys())
	}
	return 0
}

// recordLike returns a RecordLike view of the wrapped target, or an
// error if the target isn't record-shaped.
func (w *Wrapper) recordLike() (classify.RecordLike, error) {
	rl, ok := classify.AsRecordLike(w.target)
	if !ok {
		return nil, memerrors.Configuration(fmt.Errorf("wrap: %T is not record-like", w.target), "property access")
	}
	return rl, nil
}

// Get returns the value at key, wrapping it first if it is itself a
// container — so that further mutation reached through the returned
// value is intercepted too, the recursive-Proxy behavior spec.md §4.6
// describes.
func (w *Wrapper) Get(key string) (any, bool) {
	rl, err := w.recordLike()
	if err != nil {
		return nil, false
	}
	v, ok := rl.Get(key)
	if !ok {
		return nil, false
	}
	return w.graph.link(v, w.Path().Child(key)), true
}

// Keys returns the wrapped record's property names in order.
func (w *Wrapper) Keys() []string {
	rl, err := w.recordLike()
	if err != nil {
		return nil
	}
	return rl.Keys()
}

// Set installs value at key: the live mutation happens immediately, and
// — unless the graph is replaying — a property.write event carrying
// value's event-value wire form is appended to the log.
func (w *Wrapper) Set(ctx context.Context, key string, value any) error {
	rl, err := w.recordLike()
	if err != nil {
		return err
	}
	encoded, err := w.graph.encode(value)
	if err != nil {
		return memerrors.Integrity(fmt.Errorf("encoding value for key %q: %w", key, err), "property write")
	}
	wrapped := w.graph.link(value, w.Path().Child(key))
	rl.Set(key, wrapped)
	return w.graph.emit(ctx, event.KindPropertyWrite, w.Path(), map[string]any{"key": key, "value": encoded})
}

// Delete removes key, emitting a property.delete event.
func (w *Wrapper) Delete(ctx context.Context, key string) error {
	rl, err := w.recordLike()
	if err != nil {
		return err
	}
	rl.Delete(key)
	return w.graph.emit(ctx, event.KindPropertyDelete, w.Path(), map[string]any{"key": key})
}
