package classify

import "time"

// Record is a plain keyed object — the Go realization of a dynamic
// language's ordinary object. Keys preserve insertion order so snapshots
// are deterministic. Class is the reserved class-name marker (empty for
// plain objects); it is never itself treated as a graph property.
type Record struct {
	Class string
	keys  []string
	vals  map[string]any
}

// NewRecord creates an empty record, optionally tagged with a class name.
func NewRecord(class string) *Record {
	return &Record{Class: class, vals: make(map[string]any)}
}

// Get returns the value at key and whether it is present.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.vals[key]
	return v, ok
}

// Set installs value at key, appending key to the iteration order on
// first write.
func (r *Record) Set(key string, value any) {
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = value
}

// Delete removes key, preserving the order of the remaining keys.
func (r *Record) Delete(key string) {
	if _, ok := r.vals[key]; !ok {
		return
	}
	delete(r.vals, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the property names in insertion order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of properties.
func (r *Record) Len() int {
	return len(r.keys)
}

// Sequence is an indexed, ordered list — the Go realization of a
// dynamic-language array. All nine mutating methods spec.md §4.2 names
// operate on Items directly.
type Sequence struct {
	Items []any
}

// NewSequence creates a sequence from the given items.
func NewSequence(items ...any) *Sequence {
	s := &Sequence{Items: make([]any, len(items))}
	copy(s.Items, items)
	return s
}

// Len returns the number of elements.
func (s *Sequence) Len() int { return len(s.Items) }

// Dict is a keyed map preserving insertion order — the Go realization of
// a dynamic-language Map. Keys are compared with Go's own map key
// equality, restricting keys to the comparable
// subset (strings, numbers, booleans) plus object identity for pointers.
type Dict struct {
	keys []any
	vals map[any]any
}

// NewDict creates an empty keyed map.
func NewDict() *Dict {
	return &Dict{vals: make(map[any]any)}
}

// Get returns the value for key and whether it is present.
func (d *Dict) Get(key any) (any, bool) {
	v, ok := d.vals[key]
	return v, ok
}

// Set installs value at key.
func (d *Dict) Set(key, value any) {
	if _, ok := d.vals[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.vals[key] = value
}

// Delete removes key and reports whether it was present.
func (d *Dict) Delete(key any) bool {
	if _, ok := d.vals[key]; !ok {
		return false
	}
	delete(d.vals, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes every entry.
func (d *Dict) Clear() {
	d.keys = nil
	d.vals = make(map[any]any)
}

// Entries returns [key, value] pairs in insertion order.
func (d *Dict) Entries() [][2]any {
	out := make([][2]any, len(d.keys))
	for i, k := range d.keys {
		out[i] = [2]any{k, d.vals[k]}
	}
	return out
}

// Len returns the number of entries.
func (d *Dict) Len() int { return len(d.keys) }

// Set is a collection of unique values — the Go realization of a
// dynamic-language Set. Membership is decided by equalValues (see
// equality.go): primitives compare by value, objects by identity.
type Set struct {
	items []any
}

// NewSet creates an empty unique-value set.
func NewSet() *Set {
	return &Set{}
}

// Add inserts value if not already present; reports whether it was
// added.
func (s *Set) Add(value any) bool {
	for _, v := range s.items {
		if equalValues(v, value) {
			return false
		}
	}
	s.items = append(s.items, value)
	return true
}

// Delete removes value and reports whether it was present.
func (s *Set) Delete(value any) bool {
	for i, v := range s.items {
		if equalValues(v, value) {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

// Clear removes every value.
func (s *Set) Clear() {
	s.items = nil
}

// Values returns the set members in insertion order.
func (s *Set) Values() []any {
	out := make([]any, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of values.
func (s *Set) Len() int { return len(s.items) }

// AddRaw appends value without the membership check Add performs. It
// exists only for the deserializer, which reconstructs a set from a
// wire form that was already deduplicated when it was written.
func (s *Set) AddRaw(value any) {
	s.items = append(s.items, value)
}

// SetAt overwrites the value at position i without a membership check.
// It exists only for the deserializer, to patch a slot originally
// filled with a placeholder once the reference it points to resolves.
func (s *Set) SetAt(i int, value any) {
	if i >= 0 && i < len(s.items) {
		s.items[i] = value
	}
}

// Timestamp wraps a point in time plus any user-added properties
// (spec.md §4.3: timestamps serialize with their tagged form *and*
// their enumerable properties). A zero Valid means the instant could
// not be represented (an invalid date), serialized as dateValue: null.
// Timestamp is a pointer-identity object like Record and Sequence so it
// can participate in reference tracking the same as any other object.
type Timestamp struct {
	When  time.Time
	Valid bool
	Props *Record // user-defined fields, nil if none
}

// NewTimestamp wraps t as a valid timestamp with no extra properties.
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{When: t, Valid: true}
}

// Regexp carries a regular expression's source, flags, and last match
// index the way a dynamic-language RegExp object does, plus any
// user-added properties.
type Regexp struct {
	Source    string
	Flags     string
	LastIndex int
	Props     *Record
}

// Func captures a function by its source text only; its closure
// environment is lost on serialization (spec.md §9 (c), a documented
// gap, not a bug).
type Func struct {
	SourceCode string
}

// Symbol is an opaque atomic tag carrying only a human-readable
// description, the Go realization of a dynamic-language Symbol.
type Symbol struct {
	Description string
	id          *struct{} // distinguishes symbols with equal descriptions
}

// NewSymbol creates a fresh, identity-distinct symbol.
func NewSymbol(description string) Symbol {
	return Symbol{Description: description, id: new(struct{})}
}
