// Package txn implements a transaction over a live graph (spec.md
// §4.9): reads merge a path-keyed overlay over the base graph, writes
// land only in the overlay, and Save commits every touched container
// atomically, compensating already-committed containers in reverse
// order if a later one fails partway through commit.
//
// Go gives every container at most one canonical path, and the base
// wrap.Graph already owns that bookkeeping; a transaction therefore
// addresses its overlay the same way — by the container's own
// canonical path — rather than reinventing a second identity scheme.
// A record, sequence, or set's overlay granularity is per-container: the
// first mutation touching one clones its current contents once
// (copy-on-write) and every further mutation in the same transaction
// operates directly on that clone, the same "effect, not operation"
// simplification event.KindScript and event.KindSequenceSort already
// make for what Go cannot otherwise replay or diff cheaply. A map's
// overlay is finer-grained still: each touched key gets its own overlay
// entry one path segment below the map's own (spec.md §4.9), so reading
// through a map — or writing one key of it — never clones in, or
// commits, any key the transaction didn't touch.
package txn

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/rmurphy/memimage/pkg/memimage/classify"
	"github.com/rmurphy/memimage/pkg/memimage/delta"
	memerrors "github.com/rmurphy/memimage/pkg/memimage/errors"
	"github.com/rmurphy/memimage/pkg/memimage/path"
	"github.com/rmurphy/memimage/pkg/memimage/wrap"
)

// Tx is one transaction's overlay plus the bookkeeping Save needs to
// commit it: which base container each touched path corresponds to.
type Tx struct {
	mu         sync.Mutex
	base       *wrap.Graph
	delta      *delta.Manager
	containers map[string]*wrap.Wrapper
	done       bool
}

// Begin opens a transaction over base. Only one transaction may be
// active on a given graph at a time; Begin returns a configuration
// error wrapping memerrors.ErrNestedTransaction otherwise.
func Begin(base *wrap.Graph) (*Tx, error) {
	if err := base.BeginTransaction(); err != nil {
		return nil, err
	}
	return &Tx{base: base, delta: delta.New(), containers: make(map[string]*wrap.Wrapper)}, nil
}

// Root returns a view over the transaction's root container.
func (t *Tx) Root() *View {
	return t.View(t.base.Root())
}

// View returns a transactional view over container: reads merge any
// pending overlay entry for container's path over its live base state;
// writes land only in the overlay until Save commits them.
func (t *Tx) View(container *wrap.Wrapper) *View {
	return &View{tx: t, base: container}
}

// Discard abandons every pending write without touching the base graph.
func (t *Tx) Discard() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.delta.Clear()
	t.done = true
	t.base.EndTransaction()
	return nil
}

// Checkpoint captures the overlay's current contents, for a nested
// savepoint within this transaction (spec.md §4.9). Restore rewinds to
// it. Every pending container is copied through cloneContainer rather
// than aliased: View.current hands out the same working-copy pointer on
// every access within a transaction, so a plain map copy of the overlay
// would let a write made after the checkpoint mutate the snapshot too.
// Checkpoints do not cover which containers have been tracked for
// commit, only the values pending for them — tracking a container a
// second time after a Restore is harmless, since current only clones
// from base once per path regardless of how many times it runs.
func (t *Tx) Checkpoint() *delta.Manager {
	t.mu.Lock()
	defer t.mu.Unlock()
	return snapshotDelta(t.delta)
}

// Restore discards every write made since snapshot was captured.
func (t *Tx) Restore(snapshot *delta.Manager) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delta = snapshotDelta(snapshot)
}

// snapshotDelta builds an independent overlay holding its own clone of
// every pending container, preserving deletion markers as-is.
func snapshotDelta(src *delta.Manager) *delta.Manager {
	out := delta.New()
	for _, e := range src.Entries() {
		if delta.IsDeleted(e.Value) {
			out.Delete(e.Path)
			continue
		}
		out.Set(e.Path, cloneContainer(e.Value))
	}
	return out
}

// track records which base container a touched path belongs to, so
// Save knows which live Wrapper to commit each overlay entry through.
func (t *Tx) track(p path.Path, w *wrap.Wrapper) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.containers[p.String()] = w
}

// Save commits every touched container to the base graph, in
// shallowest-path-first order (delta.Manager.Entries' own order, so a
// parent container's new shape is live before any child commit that
// might read it). If commit fails partway through, every container
// already committed is compensated in reverse order before Save
// returns an error: a run-forward / unwind-on-failure shape, scaled
// down to a single synchronous pass since a transaction's steps are
// graph mutations, not external calls that need retries or timeouts
// of their own.
func (t *Tx) Save(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return memerrors.Configuration(fmt.Errorf("txn: transaction already saved or discarded"), "saving transaction")
	}
	defer func() {
		t.done = true
		t.base.EndTransaction()
	}()

	entries := t.delta.Entries()
	var committed []commitStep

	for _, entry := range entries {
		w, ok := t.containers[entry.Path.String()]
		if !ok {
			// A path-only deletion tripwire (see View.Delete) with no
			// container of its own to commit.
			continue
		}
		if delta.IsDeleted(entry.Value) {
			continue
		}
		undo, err := commitEntry(ctx, w, entry.Path, entry.Value)
		if err != nil {
			return t.rollback(ctx, committed, err)
		}
		committed = append(committed, commitStep{wrapper: w, undo: undo})
	}

	t.delta.Clear()
	return nil
}

// commitStep records one already-committed container plus the closure
// that reverses it, for Save's compensating rollback.
type commitStep struct {
	wrapper *wrap.Wrapper
	undo    func(context.Context) error
}

func (t *Tx) rollback(ctx context.Context, committed []commitStep, cause error) error {
	for i := len(committed) - 1; i >= 0; i-- {
		if err := committed[i].undo(ctx); err != nil {
			return memerrors.Backend(fmt.Errorf(
				"transaction commit failed (%w) and compensating %q also failed: %v",
				cause, committed[i].wrapper.Path(), err,
			), "rolling back transaction")
		}
	}
	return memerrors.Integrity(cause, "saving transaction")
}

// commitEntry applies local's final state to w and returns a closure
// that restores w's pre-commit state, for Save's rollback path.
//
// A per-key map entry's path sits one segment deeper than w's own path
// (see View.mapOverlayPath); everything else is a whole-container entry
// sitting exactly at w's own path, dispatched by local's concrete type.
func commitEntry(ctx context.Context, w *wrap.Wrapper, entryPath path.Path, local any) (func(context.Context) error, error) {
	if len(entryPath) > len(w.Path()) {
		return commitMapKey(ctx, w, local)
	}
	switch target := local.(type) {
	case *classify.Sequence:
		return commitSequence(ctx, w, target)
	case *classify.Set:
		return commitSet(ctx, w, target)
	case *classify.Dict:
		// Reached only through View.Script's whole-container escape
		// hatch (spec.md §4.9 otherwise tracks a map per key, see
		// commitMapKey/commitMapClear).
		return commitDict(ctx, w, target)
	case mapClearedMarker:
		return commitMapClear(ctx, w)
	default:
		return commitRecordLike(ctx, w, local)
	}
}

// commitMapKey applies one pending per-key map change: a set or a
// delete of exactly the key the transaction touched, leaving every
// other key in the live map untouched.
func commitMapKey(ctx context.Context, w *wrap.Wrapper, local any) (func(context.Context) error, error) {
	e, ok := local.(mapEntryDelta)
	if !ok {
		return nil, memerrors.Configuration(fmt.Errorf("txn: %T is not a pending map entry", local), "transaction commit")
	}
	prevValue, hadPrev := w.MapGet(e.key)
	if e.deleted {
		if err := w.MapDelete(ctx, e.key); err != nil {
			return nil, err
		}
	} else if err := w.MapSet(ctx, e.key, e.value); err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		if !hadPrev {
			return w.MapDelete(ctx, e.key)
		}
		return w.MapSet(ctx, e.key, wrap.Unwrap(prevValue))
	}, nil
}

// commitMapClear applies a pending MapClear, capturing every live entry
// first so rollback can restore them individually.
func commitMapClear(ctx context.Context, w *wrap.Wrapper) (func(context.Context) error, error) {
	prevEntries := w.MapEntries()
	if err := w.MapClear(ctx); err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		for _, e := range prevEntries {
			if err := w.MapSet(ctx, e[0], wrap.Unwrap(e[1])); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

func commitSequence(ctx context.Context, w *wrap.Wrapper, target *classify.Sequence) (func(context.Context) error, error) {
	prev, ok := w.Target().(*classify.Sequence)
	if !ok {
		return nil, memerrors.Configuration(fmt.Errorf("txn: %T is not a sequence", w.Target()), "transaction commit")
	}
	prevItems := append([]any{}, prev.Items...)
	if err := w.Script(ctx, func(t any) error {
		t.(*classify.Sequence).Items = target.Items
		return nil
	}); err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		return w.Script(ctx, func(t any) error {
			t.(*classify.Sequence).Items = prevItems
			return nil
		})
	}, nil
}

func commitDict(ctx context.Context, w *wrap.Wrapper, target *classify.Dict) (func(context.Context) error, error) {
	prev, ok := w.Target().(*classify.Dict)
	if !ok {
		return nil, memerrors.Configuration(fmt.Errorf("txn: %T is not a map", w.Target()), "transaction commit")
	}
	prevEntries := prev.Entries()
	if err := w.Script(ctx, func(t any) error {
		d := t.(*classify.Dict)
		d.Clear()
		for _, e := range target.Entries() {
			d.Set(e[0], e[1])
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		return w.Script(ctx, func(t any) error {
			d := t.(*classify.Dict)
			d.Clear()
			for _, e := range prevEntries {
				d.Set(e[0], e[1])
			}
			return nil
		})
	}, nil
}

func commitSet(ctx context.Context, w *wrap.Wrapper, target *classify.Set) (func(context.Context) error, error) {
	prev, ok := w.Target().(*classify.Set)
	if !ok {
		return nil, memerrors.Configuration(fmt.Errorf("txn: %T is not a set", w.Target()), "transaction commit")
	}
	prevValues := prev.Values()
	if err := w.Script(ctx, func(t any) error {
		s := t.(*classify.Set)
		s.Clear()
		for _, v := range target.Values() {
			s.Add(v)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		return w.Script(ctx, func(t any) error {
			s := t.(*classify.Set)
			s.Clear()
			for _, v := range prevValues {
				s.Add(v)
			}
			return nil
		})
	}, nil
}

// commitRecordLike diffs local's keys against w's current live keys,
// writing only what actually changed rather than replaying every key —
// a record's properties, unlike a sequence's indices, already have a
// cheap per-key write (Wrapper.Set), so there is no need to fall back
// to the wholesale Script replacement the other three kinds use.
func commitRecordLike(ctx context.Context, w *wrap.Wrapper, local any) (func(context.Context) error, error) {
	rl, ok := classify.AsRecordLike(local)
	if !ok {
		return nil, memerrors.Configuration(fmt.Errorf("txn: %T has no record-like commit form", local), "transaction commit")
	}

	prev := map[string]any{}
	for _, k := range w.Keys() {
		v, _ := w.Get(k)
		prev[k] = wrap.Unwrap(v)
	}

	newKeys := map[string]bool{}
	for _, k := range rl.Keys() {
		newKeys[k] = true
		nv, _ := rl.Get(k)
		ov, had := prev[k]
		if !had || !reflect.DeepEqual(ov, nv) {
			if err := w.Set(ctx, k, nv); err != nil {
				return nil, err
			}
		}
	}
	for k := range prev {
		if !newKeys[k] {
			if err := w.Delete(ctx, k); err != nil {
				return nil, err
			}
		}
	}

	undo := func(ctx context.Context) error {
		for k := range newKeys {
			if _, had := prev[k]; !had {
				if err := w.Delete(ctx, k); err != nil {
					return err
				}
			}
		}
		for k, v := range prev {
			if err := w.Set(ctx, k, v); err != nil {
				return err
			}
		}
		return nil
	}
	return undo, nil
}
