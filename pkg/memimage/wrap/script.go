package wrap

import (
	"context"
	"fmt"

	"github.com/rmurphy/memimage/pkg/memimage/classify"
	memerrors "github.com/rmurphy/memimage/pkg/memimage/errors"
	"github.com/rmurphy/memimage/pkg/memimage/event"
)

// Script runs mutate directly against the wrapped container and records
// the resulting contents as a script event — the escape hatch for a
// custom method that doesn't reduce to one of the other seventeen kinds
// (spec.md §4.2). Go cannot replay an arbitrary captured method the way
// it replays push or splice index arithmetic, so the event carries the
// container's resulting state rather than mutate itself.
func (w *Wrapper) Script(ctx context.Context, mutate func(target any) error) error {
	if err := mutate(w.target); err != nil {
		return err
	}
	snapshot, err := w.snapshotContents()
	if err != nil {
		return memerrors.Integrity(err, "encoding script snapshot")
	}
	return w.graph.emit(ctx, event.KindScript, w.Path(), map[string]any{"snapshot": snapshot})
}

// snapshotContents encodes the wrapped container's current contents one
// child at a time rather than through Graph.encode on the container as
// a whole: the container is already linked at its own canonical path,
// so encoding it wholesale would collapse it to an external reference
// to itself instead of describing what it actually holds.
func (w *Wrapper) snapshotContents() (any, error) {
	switch t := w.target.(type) {
	case *classify.Sequence:
		return w.graph.encodeItems(t.Items)
	case *classify.Dict:
		entries := t.Entries()
		out := make([]any, len(entries))
		for i, e := range entries {
			k, err := w.graph.encode(e[0])
			if err != nil {
				return nil, err
			}
			v, err := w.graph.encode(e[1])
			if err != nil {
				return nil, err
			}
			out[i] = []any{k, v}
		}
		return out, nil
	case *classify.Set:
		return w.graph.encodeItems(t.Values())
	default:
		rl, ok := classify.AsRecordLike(w.target)
		if !ok {
			return nil, fmt.Errorf("wrap: %T has no script snapshot form", w.target)
		}
		out := map[string]any{}
		for _, k := range rl.Keys() {
			v, _ := rl.Get(k)
			enc, err := w.graph.encode(v)
			if err != nil {
				return nil, err
			}
			out[k] = enc
		}
		return out, nil
	}
}
