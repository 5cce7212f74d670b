package serialize

import (
	"strconv"
	"strings"

	"github.com/rmurphy/memimage/pkg/memimage/classify"
	memerrors "github.com/rmurphy/memimage/pkg/memimage/errors"
	"github.com/rmurphy/memimage/pkg/memimage/path"
)

// Resolver looks up the live value a Placeholder's path names. Pass2 of
// reconstruction is just ResolvePlaceholders driven by one of these.
type Resolver interface {
	Resolve(ph Placeholder) (any, bool)
}

// SnapshotResolver resolves every placeholder against a single root,
// the way snapshot mode's canonical paths are always rooted at the
// whole graph.
type SnapshotResolver struct {
	Root any
}

// Resolve implements Resolver.
func (r *SnapshotResolver) Resolve(ph Placeholder) (any, bool) {
	return navigate(r.Root, ph.Path)
}

// EventValueResolver resolves a placeholder by trying the deserialized
// value's own local root first and External only if that fails — the
// wire form carries no scope marker of its own (spec.md §6.2's ref tag
// is just a path), so Pass2 rediscovers which scope a reference belongs
// to the same way a closure resolves a variable name: its own scope
// before its enclosing one.
type EventValueResolver struct {
	// LocalRoot is the root of the value subtree just deserialized.
	LocalRoot any
	// External resolves a path against the live graph that already
	// surrounded the value when it was serialized. Tried only once
	// LocalRoot has failed to resolve the path itself.
	External func(path.Path) (any, bool)
}

// Resolve implements Resolver.
func (r *EventValueResolver) Resolve(ph Placeholder) (any, bool) {
	if v, ok := navigate(r.LocalRoot, ph.Path); ok {
		return v, true
	}
	if r.External == nil {
		return nil, false
	}
	return r.External(ph.Path)
}

// ResolvePlaceholders runs Pass2: every placeholder is resolved through
// resolver and applied to the container slot it was found in. An
// unresolvable placeholder is an integrity error, not a retryable one —
// the log itself is inconsistent with the snapshot it was replayed onto.
func ResolvePlaceholders(phs []Placeholder, resolver Resolver) error {
	for _, ph := range phs {
		resolved, ok := resolver.Resolve(ph)
		if !ok {
			return memerrors.Integrity(&memerrors.ReferenceError{Path: []string(ph.Path)}, "resolving reference")
		}
		ph.Apply(resolved)
	}
	return nil
}

// navigate walks root along p, stepping through whichever container
// kind occupies each position: record-like keyed lookup by default,
// with index-shaped segments ("0", "k3", "v3") understood by the
// sequence, map-entry, and set-member containers that write them.
func navigate(root any, p path.Path) (any, bool) {
	cur := root
	for _, seg := range p {
		next, ok := step(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func step(cur any, seg string) (any, bool) {
	switch c := cur.(type) {
	case *classify.Sequence:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(c.Items) {
			return nil, false
		}
		return c.Items[i], true
	case *classify.Dict:
		return dictStep(c, seg)
	case *classify.Set:
		if !strings.HasPrefix(seg, "v") {
			return nil, false
		}
		i, err := strconv.Atoi(seg[1:])
		vals := c.Values()
		if err != nil || i < 0 || i >= len(vals) {
			return nil, false
		}
		return vals[i], true
	case *classify.Timestamp:
		return propStep(c.Props, seg)
	case *classify.Regexp:
		return propStep(c.Props, seg)
	default:
		rl, ok := classify.AsRecordLike(cur)
		if !ok {
			return nil, false
		}
		return rl.Get(seg)
	}
}

func dictStep(d *classify.Dict, seg string) (any, bool) {
	if len(seg) < 2 {
		return nil, false
	}
	i, err := strconv.Atoi(seg[1:])
	if err != nil {
		return nil, false
	}
	entries := d.Entries()
	if i < 0 || i >= len(entries) {
		return nil, false
	}
	switch seg[0] {
	case 'k':
		return entries[i][0], true
	case 'v':
		return entries[i][1], true
	default:
		return nil, false
	}
}

func propStep(props *classify.Record, seg string) (any, bool) {
	if props == nil {
		return nil, false
	}
	return props.Get(seg)
}
