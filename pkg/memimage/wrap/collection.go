package wrap

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rmurphy/memimage/pkg/memimage/classify"
	memerrors "github.com/rmurphy/memimage/pkg/memimage/errors"
	"github.com/rmurphy/memimage/pkg/memimage/event"
)

func (w *Wrapper) dict() (*classify.Dict, error) {
	d, ok := w.target.(*classify.Dict)
	if !ok {
		return nil, memerrors.Configuration(fmt.Errorf("wrap: %T is not a map", w.target), "map access")
	}
	return d, nil
}

func (w *Wrapper) set() (*classify.Set, error) {
	s, ok := w.target.(*classify.Set)
	if !ok {
		return nil, memerrors.Configuration(fmt.Errorf("wrap: %T is not a set", w.target), "set access")
	}
	return s, nil
}

// dictIndexOf returns the insertion-order position of key in d, or -1
// if key isn't present. Dict entries never reorder once written, but
// deleting a key shifts every later key's index down by one.
func dictIndexOf(d *classify.Dict, key any) int {
	for i, e := range d.Entries() {
		if e[0] == key {
			return i
		}
	}
	return -1
}

// MapGet returns the value for key, wrapped if it is itself a container.
func (w *Wrapper) MapGet(key any) (any, bool) {
	d, err := w.dict()
	if err != nil {
		return nil, false
	}
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	idx := dictIndexOf(d, key)
	return w.graph.link(v, w.Path().Child("v"+strconv.Itoa(idx))), true
}

// MapEntries returns the map's key/value pairs in insertion order, with
// container values wrapped.
func (w *Wrapper) MapEntries() [][2]any {
	d, err := w.dict()
	if err != nil {
		return nil
	}
	entries := d.Entries()
	out := make([][2]any, len(entries))
	for i, e := range entries {
		out[i] = [2]any{e[0], w.graph.link(e[1], w.Path().Child("v"+strconv.Itoa(i)))}
	}
	return out
}

// MapSet installs value at key, emitting a map.set event. Keys are
// stored raw, never wrapped: classify.Dict keys key a native Go map, so
// wrapping one would break every future lookup by the caller's original,
// unwrapped key value.
func (w *Wrapper) MapSet(ctx context.Context, key, value any) error {
	d, err := w.dict()
	if err != nil {
		return err
	}
	encodedKey, err := w.graph.encode(key)
	if err != nil {
		return memerrors.Integrity(err, "encoding map key")
	}
	encodedValue, err := w.graph.encode(value)
	if err != nil {
		return memerrors.Integrity(err, "encoding map value")
	}
	idx := dictIndexOf(d, key)
	if idx < 0 {
		idx = d.Len()
	}
	linked := w.graph.link(value, w.Path().Child("v"+strconv.Itoa(idx)))
	d.Set(key, linked)
	return w.graph.emit(ctx, event.KindMapSet, w.Path(), map[string]any{"key": encodedKey, "value": encodedValue})
}

// MapDelete removes key, emitting a map.delete event.
func (w *Wrapper) MapDelete(ctx context.Context, key any) error {
	d, err := w.dict()
	if err != nil {
		return err
	}
	encodedKey, err := w.graph.encode(key)
	if err != nil {
		return memerrors.Integrity(err, "encoding map key")
	}
	d.Delete(key)
	return w.graph.emit(ctx, event.KindMapDelete, w.Path(), map[string]any{"key": encodedKey})
}

// MapClear removes every entry, emitting a map.clear event.
func (w *Wrapper) MapClear(ctx context.Context) error {
	d, err := w.dict()
	if err != nil {
		return err
	}
	d.Clear()
	return w.graph.emit(ctx, event.KindMapClear, w.Path(), map[string]any{})
}

// Values returns the set's members in insertion order, wrapped where
// they are themselves containers.
func (w *Wrapper) Values() []any {
	s, err := w.set()
	if err != nil {
		return nil
	}
	vals := s.Values()
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = w.graph.link(v, w.Path().Child("v"+strconv.Itoa(i)))
	}
	return out
}

// Add inserts value into the set if not already present, emitting a
// set.add event only when it was actually added.
func (w *Wrapper) Add(ctx context.Context, value any) error {
	s, err := w.set()
	if err != nil {
		return err
	}
	encoded, err := w.graph.encode(value)
	if err != nil {
		return memerrors.Integrity(err, "encoding set value")
	}
	raw := w.graph.linkRaw(value, w.Path().Child("v"+strconv.Itoa(s.Len())))
	if !s.Add(raw) {
		return nil
	}
	return w.graph.emit(ctx, event.KindSetAdd, w.Path(), map[string]any{"value": encoded})
}

// Remove deletes value from the set, emitting a set.delete event only
// when it was actually present.
func (w *Wrapper) Remove(ctx context.Context, value any) error {
	s, err := w.set()
	if err != nil {
		return err
	}
	encoded, err := w.graph.encode(value)
	if err != nil {
		return memerrors.Integrity(err, "encoding set value")
	}
	if !s.Delete(Unwrap(value)) {
		return nil
	}
	return w.graph.emit(ctx, event.KindSetDelete, w.Path(), map[string]any{"value": encoded})
}

// Clear removes every value, emitting a set.clear event.
func (w *Wrapper) Clear(ctx context.Context) error {
	s, err := w.set()
	if err != nil {
		return err
	}
	s.Clear()
	return w.graph.emit(ctx, event.KindSetClear, w.Path(), map[string]any{})
}
