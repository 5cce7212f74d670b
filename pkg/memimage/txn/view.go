package txn

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/rmurphy/memimage/pkg/memimage/classify"
	"github.com/rmurphy/memimage/pkg/memimage/delta"
	memerrors "github.com/rmurphy/memimage/pkg/memimage/errors"
	"github.com/rmurphy/memimage/pkg/memimage/path"
	"github.com/rmurphy/memimage/pkg/memimage/wrap"
)

// View is a transactional handle onto one container. A record,
// sequence, or set View's access goes through the transaction's working
// copy of the whole container rather than the base graph directly: the
// first access clones the container's current base contents into the
// overlay (copy-on-write), and every further access within the same
// transaction reads and writes that clone. A map View instead tracks
// each touched key as its own overlay entry (see MapGet/MapSet and
// friends below) and never clones the map itself. A View backed by base
// is a container that exists in the base graph; a View backed only by
// local is a brand-new container created within the transaction that
// the base graph has never linked and so has no path of its own yet —
// it commits as part of whichever tracked parent's diff picks it up.
type View struct {
	tx    *Tx
	base  *wrap.Wrapper
	local any // valid only when base == nil
}

// current returns the transaction's working copy of the container,
// cloning it from base on first access.
func (v *View) current() any {
	if v.base == nil {
		return v.local
	}
	p := v.base.Path()
	if val, ok := v.tx.delta.Get(p); ok && !delta.IsDeleted(val) {
		return val
	}
	clone := cloneContainer(v.base.Target())
	v.tx.delta.Set(p, clone)
	v.tx.track(p, v.base)
	return clone
}

// child wraps a value read off a working copy as a View if it is
// itself a container: one already linked into the base graph gets a
// View over its existing Wrapper, so further navigation still resolves
// to the one overlay entry for that path; anything else is a View the
// transaction itself holds the only reference to.
func (v *View) child(value any) any {
	if !isContainerValue(value) {
		return value
	}
	if w, ok := v.tx.base.Lookup(value); ok {
		return v.tx.View(w)
	}
	return &View{tx: v.tx, local: value}
}

func isContainerValue(value any) bool {
	switch value.(type) {
	case *classify.Record, *classify.Sequence, *classify.Dict, *classify.Set:
		return true
	}
	return classify.IsClassInstance(value)
}

// unwrapArg reduces a value a caller passed in back to the raw classify
// form View stores internally, so a View returned from one method can be
// handed straight back into another (e.g. reading a nested record off a
// Get and writing it into a different key). A map View has no single
// working-copy object to hand back — its pending state is spread across
// per-key overlay entries — so it is materialized into a plain Dict
// first.
func unwrapArg(value any) any {
	tv, ok := value.(*View)
	if !ok {
		return value
	}
	if tv.isDict() {
		return tv.snapshotDict()
	}
	return tv.current()
}

// snapshotDict materializes v's pending map state (live base entries
// merged with this transaction's per-key overlay) into an independent
// *classify.Dict, for a caller that needs the map itself as a value
// (e.g. storing it under a different key) rather than reading through
// it in place.
func (v *View) snapshotDict() *classify.Dict {
	if v.base == nil {
		d, _ := v.localDict()
		return d
	}
	out := classify.NewDict()
	for _, e := range v.MapEntries() {
		out.Set(e[0], unwrapArg(e[1]))
	}
	return out
}

// cloneContainer makes a shallow, independent copy of target's own
// structure (keys, items, entries) without deep-copying the values they
// hold — the same shallow-copy semantics spec.md §4.9 calls for, since a
// transaction isolates the container boundaries it overlays, not the
// objects reachable through them.
func cloneContainer(target any) any {
	switch t := target.(type) {
	case *classify.Record:
		clone := classify.NewRecord(t.Class)
		for _, k := range t.Keys() {
			v, _ := t.Get(k)
			clone.Set(k, v)
		}
		return clone
	case *classify.Sequence:
		items := make([]any, len(t.Items))
		copy(items, t.Items)
		return &classify.Sequence{Items: items}
	case *classify.Dict:
		clone := classify.NewDict()
		for _, e := range t.Entries() {
			clone.Set(e[0], e[1])
		}
		return clone
	case *classify.Set:
		clone := classify.NewSet()
		for _, v := range t.Values() {
			clone.AddRaw(v)
		}
		return clone
	default:
		rv := reflect.ValueOf(target)
		if rv.Kind() == reflect.Ptr && !rv.IsNil() && rv.Elem().Kind() == reflect.Struct {
			out := reflect.New(rv.Elem().Type())
			out.Elem().Set(rv.Elem())
			return out.Interface()
		}
		return target
	}
}

func recordErr(target any) error {
	return memerrors.Configuration(fmt.Errorf("txn: %T is not record-like", target), "transaction property access")
}

// Get returns the value at key, wrapped in a View if it is itself a
// container.
func (v *View) Get(key string) (any, bool) {
	rl, ok := classify.AsRecordLike(v.current())
	if !ok {
		return nil, false
	}
	val, ok := rl.Get(key)
	if !ok {
		return nil, false
	}
	return v.child(val), true
}

// Keys returns the record's property names in order.
func (v *View) Keys() []string {
	rl, ok := classify.AsRecordLike(v.current())
	if !ok {
		return nil
	}
	return rl.Keys()
}

// Set installs value at key in the transaction's working copy.
func (v *View) Set(key string, value any) error {
	rl, ok := classify.AsRecordLike(v.current())
	if !ok {
		return recordErr(v.current())
	}
	rl.Set(key, unwrapArg(value))
	return nil
}

// Delete removes key from the transaction's working copy. If the value
// being removed is itself a tracked container, its own overlay entry
// (if any) is marked deleted so Save does not also try to commit stale
// content for a path the parent no longer references. A map's per-key
// overlay entries live one path segment below its own, so they are
// purged individually rather than by the same single deletion marker.
func (v *View) Delete(key string) error {
	cur := v.current()
	rl, ok := classify.AsRecordLike(cur)
	if !ok {
		return recordErr(cur)
	}
	if old, had := rl.Get(key); had {
		if w, ok := v.tx.base.Lookup(old); ok {
			if _, isDict := w.Target().(*classify.Dict); isDict {
				for _, e := range v.tx.delta.Entries() {
					if len(e.Path) == len(w.Path())+1 && e.Path.HasPrefix(w.Path()) {
						v.tx.delta.Delete(e.Path)
					}
				}
			}
			v.tx.delta.Delete(w.Path())
		}
	}
	rl.Delete(key)
	return nil
}

// sequence returns the working Sequence copy, or an error if the view
// doesn't address one.
func (v *View) sequence() (*classify.Sequence, error) {
	seq, ok := v.current().(*classify.Sequence)
	if !ok {
		return nil, memerrors.Configuration(fmt.Errorf("txn: %T is not a sequence", v.current()), "transaction sequence access")
	}
	return seq, nil
}

// Len reports the number of elements or properties the view holds.
func (v *View) Len() int {
	if v.isDict() {
		return len(v.MapEntries())
	}
	switch t := v.current().(type) {
	case *classify.Sequence:
		return t.Len()
	case *classify.Set:
		return t.Len()
	default:
		if rl, ok := classify.AsRecordLike(t); ok {
			return len(rl.Keys())
		}
	}
	return 0
}

// At returns the element at index i.
func (v *View) At(i int) (any, bool) {
	seq, err := v.sequence()
	if err != nil || i < 0 || i >= len(seq.Items) {
		return nil, false
	}
	return v.child(seq.Items[i]), true
}

// Push appends items to the end of the sequence.
func (v *View) Push(items ...any) error {
	seq, err := v.sequence()
	if err != nil {
		return err
	}
	for _, it := range items {
		seq.Items = append(seq.Items, unwrapArg(it))
	}
	return nil
}

// Pop removes and returns the last element.
func (v *View) Pop() (any, bool, error) {
	seq, err := v.sequence()
	if err != nil {
		return nil, false, err
	}
	if len(seq.Items) == 0 {
		return nil, false, nil
	}
	last := seq.Items[len(seq.Items)-1]
	seq.Items = seq.Items[:len(seq.Items)-1]
	return v.child(last), true, nil
}

// Shift removes and returns the first element.
func (v *View) Shift() (any, bool, error) {
	seq, err := v.sequence()
	if err != nil {
		return nil, false, err
	}
	if len(seq.Items) == 0 {
		return nil, false, nil
	}
	first := seq.Items[0]
	seq.Items = seq.Items[1:]
	return v.child(first), true, nil
}

// Unshift prepends items to the front of the sequence.
func (v *View) Unshift(items ...any) error {
	seq, err := v.sequence()
	if err != nil {
		return err
	}
	raw := make([]any, len(items))
	for i, it := range items {
		raw[i] = unwrapArg(it)
	}
	seq.Items = append(append([]any{}, raw...), seq.Items...)
	return nil
}

// Splice removes deleteCount elements starting at start and inserts
// items in their place, returning the removed elements.
func (v *View) Splice(start, deleteCount int, items ...any) ([]any, error) {
	seq, err := v.sequence()
	if err != nil {
		return nil, err
	}
	n := len(seq.Items)
	start = clamp(start, n)
	end := clamp(start+deleteCount, n)

	removed := append([]any{}, seq.Items[start:end]...)
	raw := make([]any, len(items))
	for i, it := range items {
		raw[i] = unwrapArg(it)
	}
	tail := append([]any{}, seq.Items[end:]...)
	seq.Items = append(append(seq.Items[:start:start], raw...), tail...)
	return removed, nil
}

// SortBy reorders the sequence's elements using less.
func (v *View) SortBy(less func(a, b any) bool) error {
	seq, err := v.sequence()
	if err != nil {
		return err
	}
	sort.SliceStable(seq.Items, func(i, j int) bool {
		return less(seq.Items[i], seq.Items[j])
	})
	return nil
}

// Reverse reverses the sequence in place.
func (v *View) Reverse() error {
	seq, err := v.sequence()
	if err != nil {
		return err
	}
	for i, j := 0, len(seq.Items)-1; i < j; i, j = i+1, j-1 {
		seq.Items[i], seq.Items[j] = seq.Items[j], seq.Items[i]
	}
	return nil
}

// Fill overwrites the half-open range [start, end) with value.
func (v *View) Fill(value any, start, end int) error {
	seq, err := v.sequence()
	if err != nil {
		return err
	}
	n := len(seq.Items)
	start = clamp(start, n)
	end = clamp(end, n)
	raw := unwrapArg(value)
	for i := start; i < end; i++ {
		seq.Items[i] = raw
	}
	return nil
}

// CopyWithin copies the half-open range [start, end) to target.
func (v *View) CopyWithin(target, start, end int) error {
	seq, err := v.sequence()
	if err != nil {
		return err
	}
	n := len(seq.Items)
	target = clamp(target, n)
	start = clamp(start, n)
	end = clamp(end, n)
	chunk := append([]any{}, seq.Items[start:end]...)
	for i, val := range chunk {
		if target+i >= n {
			break
		}
		seq.Items[target+i] = val
	}
	return nil
}

func clamp(i, length int) int {
	if i < 0 {
		i = 0
	}
	if i > length {
		i = length
	}
	return i
}

// mapEntryDelta is one transaction's pending change to a single map key,
// stored in the overlay at a path one segment deeper than the dict's own
// path (<map-path>.k<segment>, segment from mapKeySegment, spec.md §4.9) rather than folded into a clone
// of the whole map — a transaction that only reads through a map never
// creates one of these, so it has nothing of its own to commit. Built
// fresh on every MapSet/MapDelete and never mutated afterward, so a
// Checkpoint can reuse the same value without a deep clone.
type mapEntryDelta struct {
	key     any
	value   any
	deleted bool
}

// mapClearedMarker is MapClear's pending-state signal: stored at the
// dict's own path (the same depth commitRecordLike-style whole-container
// entries use) so Save recognizes it as "start this dict from empty",
// distinct from any per-key entry one level below it.
type mapClearedMarker struct{}

// localDict returns v's backing Dict when it is a brand-new container
// this transaction created and never linked to the base graph — such a
// container has no base state to diff against, so it is mutated in
// place like any other newly-created value rather than tracked per key.
func (v *View) localDict() (*classify.Dict, error) {
	d, ok := v.local.(*classify.Dict)
	if !ok {
		return nil, memerrors.Configuration(fmt.Errorf("txn: %T is not a map", v.local), "transaction map access")
	}
	return d, nil
}

func (v *View) isDict() bool {
	if v.base != nil {
		_, ok := v.base.Target().(*classify.Dict)
		return ok
	}
	_, ok := v.local.(*classify.Dict)
	return ok
}

// mapKeySegment renders key into a path segment unique within one dict:
// its Go type plus its %v form (classify.Dict keys are restricted to
// comparable scalar kinds, so two distinct keys of the same type never
// share a %v rendering). Dots are escaped since path.Path round-trips
// through a "."-joined string form (path.Path.String/path.Parse) and an
// unescaped dot would otherwise be read back as an extra path segment:
// "_" becomes "__" and "." becomes "_d", so no two renderings collide.
func mapKeySegment(key any) string {
	seg := strings.ReplaceAll(fmt.Sprintf("%T:%v", key, key), "_", "__")
	return strings.ReplaceAll(seg, ".", "_d")
}

func (v *View) mapOverlayPath(key any) path.Path {
	return v.base.Path().Child("k" + mapKeySegment(key))
}

// mapCleared reports whether this transaction has MapClear'd v's dict,
// meaning live base entries are no longer part of its pending state.
func (v *View) mapCleared() bool {
	if v.base == nil {
		return false
	}
	val, ok := v.tx.delta.Get(v.base.Path())
	if !ok {
		return false
	}
	_, cleared := val.(mapClearedMarker)
	return cleared
}

// mapOverlay collects this transaction's pending per-key edits for v's
// tracked dict, keyed by the real key value (never by its path segment,
// which is a lossy encoding used only to give each key a stable overlay
// slot) in first-write order.
func (v *View) mapOverlay() (map[any]mapEntryDelta, []any) {
	overlay := map[any]mapEntryDelta{}
	var order []any
	prefix := v.base.Path()
	for _, e := range v.tx.delta.Entries() {
		if len(e.Path) != len(prefix)+1 || !e.Path.HasPrefix(prefix) {
			continue
		}
		med, ok := e.Value.(mapEntryDelta)
		if !ok {
			continue
		}
		if _, seen := overlay[med.key]; !seen {
			order = append(order, med.key)
		}
		overlay[med.key] = med
	}
	return overlay, order
}

// MapGet returns the value for key: a pending write this transaction
// made to key if there is one, else key's live value in the base graph.
// Reading a key never clones the surrounding map, so a transaction that
// only reads through a map commits nothing for it (spec.md §4.9).
func (v *View) MapGet(key any) (any, bool) {
	if v.base == nil {
		d, err := v.localDict()
		if err != nil {
			return nil, false
		}
		val, ok := d.Get(key)
		if !ok {
			return nil, false
		}
		return v.child(val), true
	}
	if raw, ok := v.tx.delta.Get(v.mapOverlayPath(key)); ok {
		if med, ok := raw.(mapEntryDelta); ok {
			if med.deleted {
				return nil, false
			}
			return v.child(med.value), true
		}
	}
	if v.mapCleared() {
		return nil, false
	}
	val, ok := v.base.MapGet(key)
	if !ok {
		return nil, false
	}
	return v.child(wrap.Unwrap(val)), true
}

// MapSet installs value at key as a pending per-key overlay entry,
// without touching any other key in the map.
func (v *View) MapSet(key, value any) error {
	if v.base == nil {
		d, err := v.localDict()
		if err != nil {
			return err
		}
		d.Set(key, unwrapArg(value))
		return nil
	}
	p := v.mapOverlayPath(key)
	v.tx.delta.Set(p, mapEntryDelta{key: key, value: unwrapArg(value)})
	v.tx.track(p, v.base)
	return nil
}

// MapDelete removes key as a pending per-key overlay entry.
func (v *View) MapDelete(key any) error {
	if v.base == nil {
		d, err := v.localDict()
		if err != nil {
			return err
		}
		d.Delete(key)
		return nil
	}
	p := v.mapOverlayPath(key)
	v.tx.delta.Set(p, mapEntryDelta{key: key, deleted: true})
	v.tx.track(p, v.base)
	return nil
}

// MapClear marks the map's pending state as empty, superseding any
// per-key entries already pending for it (a set or delete made earlier
// in the same transaction is now moot).
func (v *View) MapClear() error {
	if v.base == nil {
		d, err := v.localDict()
		if err != nil {
			return err
		}
		d.Clear()
		return nil
	}
	prefix := v.base.Path()
	for _, e := range v.tx.delta.Entries() {
		if len(e.Path) == len(prefix)+1 && e.Path.HasPrefix(prefix) {
			v.tx.delta.Delete(e.Path)
		}
	}
	v.tx.delta.Set(prefix, mapClearedMarker{})
	v.tx.track(prefix, v.base)
	return nil
}

// MapEntries returns the map's key/value pairs in insertion order: the
// live base entries (unless the map was cleared this transaction) with
// any pending per-key overlay applied on top, followed by any brand-new
// key the base dict never held.
func (v *View) MapEntries() [][2]any {
	if v.base == nil {
		d, err := v.localDict()
		if err != nil {
			return nil
		}
		entries := d.Entries()
		out := make([][2]any, len(entries))
		for i, e := range entries {
			out[i] = [2]any{e[0], v.child(e[1])}
		}
		return out
	}

	overlay, order := v.mapOverlay()
	emitted := map[any]bool{}
	var out [][2]any
	if !v.mapCleared() {
		for _, e := range v.base.MapEntries() {
			key := e[0]
			emitted[key] = true
			if s, ok := overlay[key]; ok {
				if !s.deleted {
					out = append(out, [2]any{key, v.child(s.value)})
				}
				continue
			}
			out = append(out, [2]any{key, v.child(wrap.Unwrap(e[1]))})
		}
	}
	for _, key := range order {
		if emitted[key] {
			continue
		}
		s := overlay[key]
		if s.deleted {
			continue
		}
		out = append(out, [2]any{key, v.child(s.value)})
	}
	return out
}

func (v *View) set() (*classify.Set, error) {
	s, ok := v.current().(*classify.Set)
	if !ok {
		return nil, memerrors.Configuration(fmt.Errorf("txn: %T is not a set", v.current()), "transaction set access")
	}
	return s, nil
}

// Values returns the set's members in insertion order.
func (v *View) Values() []any {
	s, err := v.set()
	if err != nil {
		return nil
	}
	vals := s.Values()
	out := make([]any, len(vals))
	for i, val := range vals {
		out[i] = v.child(val)
	}
	return out
}

// Add inserts value into the set if not already present.
func (v *View) Add(value any) error {
	s, err := v.set()
	if err != nil {
		return err
	}
	s.Add(unwrapArg(value))
	return nil
}

// Remove deletes value from the set.
func (v *View) Remove(value any) error {
	s, err := v.set()
	if err != nil {
		return err
	}
	s.Delete(unwrapArg(value))
	return nil
}

// Clear removes every value.
func (v *View) Clear() error {
	s, err := v.set()
	if err != nil {
		return err
	}
	s.Clear()
	return nil
}

// Script runs mutate directly against the transaction's working copy of
// the container, for a custom mutation that doesn't reduce to one of
// the other methods above — the same escape hatch wrap.Wrapper.Script
// offers a live graph.
func (v *View) Script(_ context.Context, mutate func(target any) error) error {
	return mutate(v.current())
}
