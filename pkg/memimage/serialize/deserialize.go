package serialize

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"time"

	"github.com/rmurphy/memimage/pkg/memimage/classify"
	"github.com/rmurphy/memimage/pkg/memimage/path"
)

// ClassFactory creates a bare instance of a registered class by name,
// without ever invoking its constructor, so that a deserialized
// instance's fields can be populated directly and any cycle that
// reaches back into it can be patched in place. Implemented by
// pkg/memimage/classreg.Registry.
type ClassFactory interface {
	New(class string) (any, error)
}

// Placeholder is an unresolved {type: ref, ...} encountered during Pass1,
// recorded instead of resolved immediately because the object it points
// at may not have been materialized yet (a forward or cyclic reference).
type Placeholder struct {
	// Path is the path the reference names: absolute from the graph
	// root in snapshot mode, or relative to whichever root a Resolver
	// tries first in event-value mode (see EventValueResolver).
	Path path.Path
	// Apply installs the resolved value into the container slot this
	// placeholder was found in.
	Apply func(resolved any)
}

// Deserializer runs Pass1 of reconstruction: it rebuilds typed nodes
// from a JSON-compatible tree and collects every unresolved reference
// as a Placeholder instead of failing on a forward reference.
type Deserializer struct {
	// Classes creates instances for class-tagged records. If nil, a
	// class-tagged record is reconstructed as a plain *classify.Record
	// carrying the class name, rather than the original struct type.
	Classes ClassFactory
}

// Pass1 materializes tree into live graph values, returning the
// reconstructed root and the placeholders still to resolve.
func (d *Deserializer) Pass1(tree any) (any, []Placeholder, error) {
	return d.value(tree, path.Root())
}

// child processes one container slot: if node is a {type: ref, ...}
// marker, the slot is left unresolved and returned as a Placeholder
// bound to setter; otherwise node is materialized immediately and
// setter is called with the result right away.
func (d *Deserializer) child(node any, p path.Path, setter func(any)) ([]Placeholder, error) {
	if m, ok := node.(map[string]any); ok {
		if tag, _ := m[TypeKey].(string); tag == TagRef {
			refPath := pathFromWire(m[RefPathKey])
			setter(nil)
			return []Placeholder{{Path: refPath, Apply: setter}}, nil
		}
	}
	val, phs, err := d.value(node, p)
	if err != nil {
		return nil, err
	}
	setter(val)
	return phs, nil
}

func (d *Deserializer) value(node any, p path.Path) (any, []Placeholder, error) {
	switch n := node.(type) {
	case nil:
		return nil, nil, nil
	case []any:
		return d.sequence(n, p)
	case map[string]any:
		tag, _ := n[TypeKey].(string)
		switch tag {
		case "":
			return d.record(n, p)
		case TagAbsent:
			return classify.Undefined, nil, nil
		case TagFunction:
			return classify.Func{SourceCode: asString(n[FunctionSourceKey])}, nil, nil
		case TagBigInt:
			bi := new(big.Int)
			if _, ok := bi.SetString(asString(n["value"]), 10); !ok {
				return nil, nil, fmt.Errorf("serialize: malformed bigint literal %q", n["value"])
			}
			return bi, nil, nil
		case TagSymbol:
			return classify.NewSymbol(asString(n["description"])), nil, nil
		case TagDate:
			return d.timestamp(n, p)
		case TagRegexp:
			return d.regexp(n, p)
		case TagMap:
			return d.dict(n, p)
		case TagSet:
			return d.set(n, p)
		case TagRef:
			// A ref reaching value() directly (rather than through
			// child()) means it is the tree root itself. Pass1 returns
			// the root before any placeholder is resolved, so there is
			// no slot a later Apply could patch; such a tree is
			// rejected. replay.Engine decodes each event value inside a
			// one-item holder sequence, so a bare reference there
			// arrives through child() instead.
			return nil, nil, fmt.Errorf("serialize: a bare reference cannot be the root of a deserialized value")
		default:
			return nil, nil, fmt.Errorf("serialize: unknown wire tag %q", tag)
		}
	default:
		// string, bool, and the Go numeric kinds pass through unchanged.
		return n, nil, nil
	}
}

func (d *Deserializer) sequence(n []any, p path.Path) (any, []Placeholder, error) {
	seq := classify.NewSequence()
	seq.Items = make([]any, len(n))
	var phs []Placeholder
	for i, item := range n {
		idx := i
		childPhs, err := d.child(item, p.Child(strconv.Itoa(i)), func(v any) { seq.Items[idx] = v })
		if err != nil {
			return nil, nil, err
		}
		phs = append(phs, childPhs...)
	}
	return seq, phs, nil
}

func (d *Deserializer) record(n map[string]any, p path.Path) (any, []Placeholder, error) {
	class, hasClass := n[ClassKey].(string)

	var target classify.RecordLike
	var raw any
	switch {
	case hasClass && class != "" && d.Classes != nil:
		inst, err := d.Classes.New(class)
		if err != nil {
			return nil, nil, err
		}
		rl, ok := classify.AsRecordLike(inst)
		if !ok {
			return nil, nil, fmt.Errorf("serialize: class %q did not produce a record-like instance", class)
		}
		raw, target = inst, rl
	default:
		rec := classify.NewRecord(class)
		raw, target = rec, rec
	}

	keys := recordKeyOrder(n)
	var phs []Placeholder
	for _, k := range keys {
		val, ok := n[k]
		if !ok {
			continue
		}
		key := k
		childPhs, err := d.child(val, p.Child(k), func(v any) { target.Set(key, v) })
		if err != nil {
			return nil, nil, err
		}
		phs = append(phs, childPhs...)
	}
	return raw, phs, nil
}

// recordKeyOrder recovers a record's original property order from its
// __keys__ marker, falling back to a deterministic sort when the
// marker is absent (a tree built by hand rather than by Serialize).
func recordKeyOrder(n map[string]any) []string {
	if raw, ok := n[KeysKey].([]any); ok {
		keys := make([]string, 0, len(raw))
		for _, k := range raw {
			if s, ok := k.(string); ok {
				keys = append(keys, s)
			}
		}
		return keys
	}
	keys := make([]string, 0, len(n))
	for k := range n {
		if k == TypeKey || k == ClassKey || k == KeysKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d *Deserializer) dict(n map[string]any, p path.Path) (any, []Placeholder, error) {
	entries, _ := n["entries"].([]any)
	dict := classify.NewDict()
	var phs []Placeholder
	for i, raw := range entries {
		pair, ok := raw.([]any)
		if !ok || len(pair) != 2 {
			return nil, nil, fmt.Errorf("serialize: malformed map entry at index %d", i)
		}
		keyVal, keyPhs, err := d.value(pair[0], p.Child("k"+strconv.Itoa(i)))
		if err != nil {
			return nil, nil, err
		}
		phs = append(phs, keyPhs...)

		dict.Set(keyVal, classify.Undefined)
		capturedKey := keyVal
		valPhs, err := d.child(pair[1], p.Child("v"+strconv.Itoa(i)), func(v any) { dict.Set(capturedKey, v) })
		if err != nil {
			return nil, nil, err
		}
		phs = append(phs, valPhs...)
	}
	return dict, phs, nil
}

func (d *Deserializer) set(n map[string]any, p path.Path) (any, []Placeholder, error) {
	values, _ := n["values"].([]any)
	st := classify.NewSet()
	var phs []Placeholder
	for i, raw := range values {
		st.AddRaw(nil)
		idx := i
		childPhs, err := d.child(raw, p.Child("v"+strconv.Itoa(i)), func(v any) { st.SetAt(idx, v) })
		if err != nil {
			return nil, nil, err
		}
		phs = append(phs, childPhs...)
	}
	return st, phs, nil
}

// timestamp reconstructs a date tag whose user-defined properties were
// spread directly into the tagged object rather than nested under a
// sub-key (see (*serializer).timestamp); everything but the reserved
// dateValue/type/key-order markers is itself that property set.
func (d *Deserializer) timestamp(n map[string]any, p path.Path) (any, []Placeholder, error) {
	ts := &classify.Timestamp{}
	if v, ok := n[DateValueKey]; ok && v != nil {
		t, err := time.Parse(time.RFC3339Nano, asString(v))
		if err != nil {
			return nil, nil, fmt.Errorf("serialize: malformed timestamp %q: %w", v, err)
		}
		ts.When, ts.Valid = t, true
	}
	propsNode := withoutDateTag(n)
	if len(propsNode) == 0 {
		return ts, nil, nil
	}
	props, phs, err := d.record(propsNode, p)
	if err != nil {
		return nil, nil, err
	}
	ts.Props = props.(*classify.Record)
	return ts, phs, nil
}

// withoutDateTag strips the date tag's own reserved fields, leaving
// only the spread user-defined properties (plus the __keys__ marker
// recording their order, which (*serializer).record already limited to
// just those properties).
func withoutDateTag(n map[string]any) map[string]any {
	out := make(map[string]any, len(n))
	for k, v := range n {
		if k == TypeKey || k == DateValueKey {
			continue
		}
		out[k] = v
	}
	return out
}

func (d *Deserializer) regexp(n map[string]any, p path.Path) (any, []Placeholder, error) {
	re := &classify.Regexp{
		Source:    asString(n["source"]),
		Flags:     asString(n["flags"]),
		LastIndex: asInt(n["lastIndex"]),
	}
	var phs []Placeholder
	if raw, ok := n["properties"].(map[string]any); ok {
		props, propPhs, err := d.record(withoutTag(raw), p.Child("properties"))
		if err != nil {
			return nil, nil, err
		}
		re.Props = props.(*classify.Record)
		phs = propPhs
	}
	return re, phs, nil
}

// withoutTag returns n as-is; properties sub-trees are always written
// by (*serializer).record, which never sets TypeKey, so there is
// nothing to strip. Named for clarity at the call site.
func withoutTag(n map[string]any) map[string]any { return n }

// pathFromWire reconstructs a path.Path from a ref tag's path field: a
// plain []string when the tree was built in-process by Serialize, or a
// []any of strings when it arrived via encoding/json or gopkg.in/
// yaml.v3, both of which decode a JSON/YAML array into []any.
func pathFromWire(v any) path.Path {
	switch segs := v.(type) {
	case []string:
		out := make(path.Path, len(segs))
		copy(out, segs)
		return out
	case []any:
		out := make(path.Path, 0, len(segs))
		for _, seg := range segs {
			if s, ok := seg.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

// Deserialize reconstructs a snapshot-mode tree in one call: Pass1
// followed by immediate resolution against the freshly built root,
// since snapshot-mode references are always relative to that same root.
func Deserialize(tree any, classes ClassFactory) (any, error) {
	d := &Deserializer{Classes: classes}
	root, phs, err := d.Pass1(tree)
	if err != nil {
		return nil, err
	}
	if err := ResolvePlaceholders(phs, &SnapshotResolver{Root: root}); err != nil {
		return nil, err
	}
	return root, nil
}
