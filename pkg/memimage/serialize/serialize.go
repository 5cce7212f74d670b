package serialize

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/rmurphy/memimage/pkg/memimage/classify"
	"github.com/rmurphy/memimage/pkg/memimage/path"
)

// Mode selects which of the two serialization strategies spec.md §4.3
// and §4.4 describe.
type Mode int

const (
	// ModeSnapshot assigns every object its canonical path the first
	// time it is visited in a full-graph walk; later visits become
	// {type: ref, path: [...]} pointing at that canonical path.
	ModeSnapshot Mode = iota
	// ModeEventValue serializes a single value against the graph that
	// already surrounds it: objects first seen within the value being
	// serialized get a path local to that value; objects already
	// reachable elsewhere in the live graph get an external path,
	// resolved through Options.External — local scope is tried before
	// external scope, the same order a closure resolves a variable name
	// in its own scope before its enclosing one.
	ModeEventValue
)

// Scope looks up the canonical path of an object already present
// somewhere in the graph, for the external half of event-value mode.
type Scope interface {
	PathOf(v any) (path.Path, bool)
}

// Options configures a single Serialize call.
type Options struct {
	// Unwrap strips an interception wrapper down to the bare value it
	// wraps, if v is wrapped. The serializer has no dependency on the
	// wrap package to avoid an import cycle (wrap depends on
	// serialize); callers that wrap values supply this hook instead.
	Unwrap func(v any) any
	// External resolves canonical paths for objects outside the value
	// subtree being serialized. Required for ModeEventValue, ignored
	// for ModeSnapshot.
	External Scope
}

// Serialize walks v and produces a JSON-compatible tree: nested
// map[string]any, []any, string, bool, and the Go numeric kinds, with
// classify's wrapper types rendered in their tagged wire form (see
// wire.go) and duplicate object visits collapsed into {type: ref, ...}.
//
// currentPath is the path v itself occupies: path.Root() for a
// whole-graph snapshot, or the path of the subtree root for an
// event-value serialization.
func Serialize(v any, mode Mode, currentPath path.Path, opts Options) (any, error) {
	s := &serializer{mode: mode, opts: opts, visited: make(map[any]path.Path)}
	return s.value(v, currentPath)
}

type serializer struct {
	mode    Mode
	opts    Options
	visited map[any]path.Path // identity -> path already assigned this call
}

func (s *serializer) value(v any, p path.Path) (any, error) {
	if s.opts.Unwrap != nil {
		v = s.opts.Unwrap(v)
	}
	info := classify.Of(v)

	switch info.Category {
	case classify.CategoryNull:
		return nil, nil
	case classify.CategoryUndefined:
		return map[string]any{TypeKey: TagAbsent}, nil
	case classify.CategoryPrimitive:
		return v, nil
	case classify.CategoryBigInt:
		return map[string]any{TypeKey: TagBigInt, "value": v.(*big.Int).String()}, nil
	case classify.CategorySymbol:
		return map[string]any{TypeKey: TagSymbol, "description": v.(classify.Symbol).Description}, nil
	case classify.CategoryFunction:
		if info.Unrepresentable {
			return map[string]any{TypeKey: TagAbsent}, nil
		}
		return map[string]any{TypeKey: TagFunction, FunctionSourceKey: v.(classify.Func).SourceCode}, nil
	}

	// Everything past this point is an object category that can take
	// part in reference cycles or sharing; check whether it has already
	// been visited this call before recursing into it.
	if ref, already := s.refFor(v, p); already {
		return ref, nil
	}

	switch info.Category {
	case classify.CategoryTimestamp:
		return s.timestamp(v.(*classify.Timestamp), p)
	case classify.CategoryRegexp:
		return s.regexp(v.(*classify.Regexp), p)
	case classify.CategorySequence:
		return s.sequence(v.(*classify.Sequence), p)
	case classify.CategoryMap:
		return s.dict(v.(*classify.Dict), p)
	case classify.CategorySet:
		return s.set(v.(*classify.Set), p)
	case classify.CategoryRecord:
		rl, ok := classify.AsRecordLike(v)
		if !ok {
			return nil, fmt.Errorf("serialize: record-category value %T has no RecordLike view", v)
		}
		return s.record(rl, p)
	}
	return nil, fmt.Errorf("serialize: unclassifiable value of type %T", v)
}

// refFor reports whether v has already been assigned a path during this
// call and, if so, returns its wire-form reference. Otherwise it
// records p as v's path and returns (nil, false) so the caller proceeds
// to serialize v's contents.
//
// A reference carries only its path segment array (spec.md §6.2), never
// a scope marker: local references (objects already visited within this
// same call) are checked before external ones (objects already elsewhere
// in the live graph), the same local-before-enclosing-scope order a
// closure resolves a variable name by — Pass2 re-derives which scope a
// path belongs to the same way, by trying local first.
func (s *serializer) refFor(v any, p path.Path) (any, bool) {
	if prior, ok := s.visited[v]; ok {
		return map[string]any{TypeKey: TagRef, RefPathKey: append([]string{}, prior...)}, true
	}
	if s.mode == ModeEventValue && s.opts.External != nil {
		if extPath, ok := s.opts.External.PathOf(v); ok {
			return map[string]any{TypeKey: TagRef, RefPathKey: append([]string{}, extPath...)}, true
		}
	}
	s.visited[v] = p
	return nil, false
}

func (s *serializer) record(rl classify.RecordLike, p path.Path) (any, error) {
	keys := rl.Keys()
	out := map[string]any{}
	if name := rl.ClassName(); name != "" {
		out[ClassKey] = name
	}
	order := make([]any, len(keys))
	for i, k := range keys {
		order[i] = k
	}
	out[KeysKey] = order
	for _, k := range keys {
		val, _ := rl.Get(k)
		child, err := s.value(val, p.Child(k))
		if err != nil {
			return nil, err
		}
		out[k] = child
	}
	return out, nil
}

func (s *serializer) sequence(seq *classify.Sequence, p path.Path) (any, error) {
	out := make([]any, len(seq.Items))
	for i, item := range seq.Items {
		child, err := s.value(item, p.Child(strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		out[i] = child
	}
	return out, nil
}

func (s *serializer) dict(d *classify.Dict, p path.Path) (any, error) {
	entries := d.Entries()
	out := make([]any, len(entries))
	for i, e := range entries {
		k, err := s.value(e[0], p.Child("k"+strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		v, err := s.value(e[1], p.Child("v"+strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		out[i] = []any{k, v}
	}
	return map[string]any{TypeKey: TagMap, "entries": out}, nil
}

func (s *serializer) set(st *classify.Set, p path.Path) (any, error) {
	vals := st.Values()
	out := make([]any, len(vals))
	for i, v := range vals {
		child, err := s.value(v, p.Child("v"+strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		out[i] = child
	}
	return map[string]any{TypeKey: TagSet, "values": out}, nil
}

// timestamp renders a date tag (spec.md §6.2): the reserved dateValue
// field plus every user-defined property spread directly into the same
// object, rather than nested under a sub-key — a Date's own properties
// are direct children of the date itself, the same as any other record.
func (s *serializer) timestamp(ts *classify.Timestamp, p path.Path) (any, error) {
	out := map[string]any{TypeKey: TagDate}
	if ts.Valid {
		out[DateValueKey] = ts.When.UTC().Format(time.RFC3339Nano)
	} else {
		out[DateValueKey] = nil
	}
	if ts.Props != nil && ts.Props.Len() > 0 {
		props, err := s.record(ts.Props, p)
		if err != nil {
			return nil, err
		}
		for k, v := range props.(map[string]any) {
			out[k] = v
		}
	}
	return out, nil
}

func (s *serializer) regexp(re *classify.Regexp, p path.Path) (any, error) {
	out := map[string]any{
		TypeKey:     TagRegexp,
		"source":    re.Source,
		"flags":     re.Flags,
		"lastIndex": re.LastIndex,
	}
	if re.Props != nil && re.Props.Len() > 0 {
		props, err := s.record(re.Props, p.Child("properties"))
		if err != nil {
			return nil, err
		}
		out["properties"] = props
	}
	return out, nil
}
