// Package wrap implements the interception layer spec.md §4.6 describes
// as a proxy over the live object graph: every container reachable from
// a Graph's root is linked in under a canonical path the first time it
// is attached, and every mutating call through its Wrapper both performs
// the mutation directly and appends the matching event to the graph's
// log, unless the process is currently replaying (see BeginReplay).
//
// Go has no language-level proxy trap, so interception here means a
// Wrapper type standing in front of a *classify.Record, *classify.
// Sequence, *classify.Dict, *classify.Set, or class instance: callers
// that want mutations observed go through the Wrapper's methods instead
// of reaching into the classify value directly, the same discipline a
// dynamic-language caller gets from the language's own Proxy trap.
package wrap

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rmurphy/memimage/pkg/memimage/classify"
	memerrors "github.com/rmurphy/memimage/pkg/memimage/errors"
	"github.com/rmurphy/memimage/pkg/memimage/event"
	"github.com/rmurphy/memimage/pkg/memimage/eventlog"
	"github.com/rmurphy/memimage/pkg/memimage/path"
	"github.com/rmurphy/memimage/pkg/memimage/serialize"
)

// Graph is the live, intercepted object graph rooted at one container.
// Its wrappers and paths tables are the Go realization of the WeakMap
// pair spec.md §4.6 describes (object -> canonical path, object ->
// wrapper): Go pointers already carry identity, so a plain map keyed by
// the raw target serves the same purpose without needing weak
// references, which spec.md explicitly allows.
type Graph struct {
	mu       sync.RWMutex
	Log      eventlog.Log
	wrappers map[any]*Wrapper
	paths    map[any]path.Path
	root     *Wrapper
	txActive atomic.Bool
}

// New creates a graph that appends every mutation to log. log may be
// nil, for a scratch graph whose mutations apply live but are never
// recorded or replayed.
func New(log eventlog.Log) *Graph {
	return &Graph{
		Log:      log,
		wrappers: make(map[any]*Wrapper),
		paths:    make(map[any]path.Path),
	}
}

// Attach installs root as the graph's root container — one of
// *classify.Record, *classify.Sequence, *classify.Dict, *classify.Set,
// or a registered class instance — and returns its Wrapper.
func (g *Graph) Attach(root any) *Wrapper {
	g.mu.Lock()
	defer g.mu.Unlock()
	w := g.wrapLocked(root, path.Root())
	g.root = w
	return w
}

// Root returns the graph's root wrapper, or nil if Attach has not been
// called yet.
func (g *Graph) Root() *Wrapper {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.root
}

// BeginTransaction marks the graph as having one transaction in
// progress, returning a configuration error wrapping
// memerrors.ErrNestedTransaction if one is already active — spec.md §9
// forbids layering a transaction wrapper over another. Callers must
// call EndTransaction when the transaction saves or is discarded.
func (g *Graph) BeginTransaction() error {
	if !g.txActive.CompareAndSwap(false, true) {
		return memerrors.Configuration(memerrors.ErrNestedTransaction, "beginning transaction")
	}
	return nil
}

// EndTransaction releases the guard BeginTransaction set.
func (g *Graph) EndTransaction() {
	g.txActive.Store(false)
}

// PathOf implements serialize.Scope: the canonical path of any value
// already linked into the graph, consulted for the external half of
// event-value serialization (spec.md §4.4).
func (g *Graph) PathOf(v any) (path.Path, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.paths[Unwrap(v)]
	return p, ok
}

// Lookup returns the existing Wrapper for target if it is already
// linked into the graph, without linking it if it isn't. A transaction
// view uses this to tell a container it just read off a working copy —
// unchanged since the base graph was last touched — apart from a
// container a write already replaced with something the base graph has
// never seen.
func (g *Graph) Lookup(target any) (*Wrapper, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	w, ok := g.wrappers[Unwrap(target)]
	return w, ok
}

// Unwrap strips a Wrapper down to the classify value it wraps — the
// hook serialize.Options.Unwrap expects, kept free of any dependency
// from serialize back onto wrap. Any value that isn't a Wrapper passes
// through unchanged.
func Unwrap(v any) any {
	if w, ok := v.(*Wrapper); ok {
		return w.target
	}
	return v
}

// wrapLocked links target into the graph at p if it is not already
// linked, caching the Wrapper by the target's identity so every access
// path to the same object returns the same Wrapper. A value already
// linked keeps the path it was first attached at — the live-graph
// analogue of snapshot mode's "first visit assigns the canonical path"
// rule. Callers must hold g.mu.
func (g *Graph) wrapLocked(target any, p path.Path) *Wrapper {
	if w, ok := target.(*Wrapper); ok {
		return w
	}
	if w, ok := g.wrappers[target]; ok {
		return w
	}
	w := &Wrapper{graph: g, target: target}
	g.wrappers[target] = w
	g.paths[target] = p
	return w
}

// isLinkable reports whether value is a container the graph tracks
// identity for: one of the four built-in collection kinds, or a
// registered class instance.
func isLinkable(value any) bool {
	switch value.(type) {
	case *classify.Record, *classify.Sequence, *classify.Dict, *classify.Set:
		return true
	}
	return classify.IsClassInstance(value)
}

// link prepares value for storage into a container slot at childPath,
// returning its Wrapper if it is linkable and value itself otherwise.
// Used for Record properties, Sequence elements, and Dict values, none
// of which ever compare their stored values by equality — only Set
// members need linkRaw instead, see below.
func (g *Graph) link(value any, childPath path.Path) any {
	if !isLinkable(value) {
		return value
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.wrapLocked(value, childPath)
}

// linkRaw behaves like link but returns the raw target rather than its
// Wrapper. classify.Set's membership test (equality.go) compares object
// members by Go pointer identity through a type switch that does not
// know about *Wrapper; storing a Wrapper as a set member would shadow
// that identity comparison; storing the raw target instead, while still
// registering its canonical path here, keeps both correct.
func (g *Graph) linkRaw(value any, childPath path.Path) any {
	if !isLinkable(value) {
		return value
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	w := g.wrapLocked(value, childPath)
	return w.target
}

// emit appends the event to Log unless the process is currently
// replaying or no log is attached, wrapping any backend failure as a
// categorized error (spec.md §9: log I/O failures surface at the
// asynchronous emit boundary, the core never retries them).
func (g *Graph) emit(ctx context.Context, kind event.Kind, p path.Path, payload map[string]any) error {
	if Replaying() || g.Log == nil {
		return nil
	}
	evt := event.New(kind, p, payload)
	if err := g.Log.Append(ctx, evt); err != nil {
		return memerrors.Backend(&memerrors.EventError{Kind: string(kind), Path: p.String(), Op: "emit", Err: err}, "appending event")
	}
	return nil
}

// encode reduces v to its event-value wire form (spec.md §4.4): a value
// independent of wherever it ends up attached, rooted fresh at
// path.Root() so objects first seen within v itself get local paths and
// objects already elsewhere in the live graph collapse to external
// references resolved through g.
//
// encode must run before the value is linked into the graph (see
// Wrapper.Set and friends) — linking assigns v's own canonical path
// before it has one, and encoding afterward would make v look like an
// external reference to itself instead of inlining its content.
func (g *Graph) encode(v any) (any, error) {
	return serialize.Serialize(v, serialize.ModeEventValue, path.Root(), serialize.Options{
		Unwrap:   Unwrap,
		External: g,
	})
}

func (g *Graph) encodeItems(items []any) ([]any, error) {
	out := make([]any, len(items))
	for i, it := range items {
		enc, err := g.encode(it)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}
