package wrap

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/rmurphy/memimage/pkg/memimage/classify"
	memerrors "github.com/rmurphy/memimage/pkg/memimage/errors"
	"github.com/rmurphy/memimage/pkg/memimage/event"
)

// sequence returns the wrapped target as a *classify.Sequence, or an
// error if the wrapper wraps something else.
func (w *Wrapper) sequence() (*classify.Sequence, error) {
	seq, ok := w.target.(*classify.Sequence)
	if !ok {
		return nil, memerrors.Configuration(fmt.Errorf("wrap: %T is not a sequence", w.target), "sequence access")
	}
	return seq, nil
}

// At returns the element at index i, wrapped if it is itself a
// container.
func (w *Wrapper) At(i int) (any, bool) {
	seq, err := w.sequence()
	if err != nil || i < 0 || i >= len(seq.Items) {
		return nil, false
	}
	return w.graph.link(seq.Items[i], w.Path().Child(strconv.Itoa(i))), true
}

// linkAt links value as the sequence's own slot value for index i and
// returns both its event-value encoding and its linked (possibly
// wrapped) form.
func (w *Wrapper) linkAt(value any, i int) (encoded, linked any, err error) {
	encoded, err = w.graph.encode(value)
	if err != nil {
		return nil, nil, err
	}
	linked = w.graph.link(value, w.Path().Child(strconv.Itoa(i)))
	return encoded, linked, nil
}

func (w *Wrapper) linkItemsAt(items []any, base int) (encoded, linked []any, err error) {
	encoded = make([]any, len(items))
	linked = make([]any, len(items))
	for i, v := range items {
		e, l, lerr := w.linkAt(v, base+i)
		if lerr != nil {
			return nil, nil, lerr
		}
		encoded[i] = e
		linked[i] = l
	}
	return encoded, linked, nil
}

// Push appends items to the end of the sequence.
func (w *Wrapper) Push(ctx context.Context, items ...any) error {
	seq, err := w.sequence()
	if err != nil {
		return err
	}
	encoded, linked, err := w.linkItemsAt(items, len(seq.Items))
	if err != nil {
		return memerrors.Integrity(err, "sequence push")
	}
	seq.Items = append(seq.Items, linked...)
	return w.graph.emit(ctx, event.KindSequencePush, w.Path(), map[string]any{"items": encoded})
}

// Pop removes and returns the last element, or (nil, false) if the
// sequence is empty.
func (w *Wrapper) Pop(ctx context.Context) (any, bool, error) {
	seq, err := w.sequence()
	if err != nil {
		return nil, false, err
	}
	if len(seq.Items) == 0 {
		return nil, false, nil
	}
	last := seq.Items[len(seq.Items)-1]
	seq.Items = seq.Items[:len(seq.Items)-1]
	if err := w.graph.emit(ctx, event.KindSequencePop, w.Path(), map[string]any{}); err != nil {
		return nil, false, err
	}
	return last, true, nil
}

// Shift removes and returns the first element, or (nil, false) if the
// sequence is empty.
func (w *Wrapper) Shift(ctx context.Context) (any, bool, error) {
	seq, err := w.sequence()
	if err != nil {
		return nil, false, err
	}
	if len(seq.Items) == 0 {
		return nil, false, nil
	}
	first := seq.Items[0]
	seq.Items = seq.Items[1:]
	if err := w.graph.emit(ctx, event.KindSequenceShift, w.Path(), map[string]any{}); err != nil {
		return nil, false, err
	}
	return first, true, nil
}

// Unshift prepends items to the front of the sequence. Indices assigned
// to the prepended items' own paths do not retroactively shift the
// paths already assigned to the elements they displace, so those
// elements' recorded positional paths go stale.
func (w *Wrapper) Unshift(ctx context.Context, items ...any) error {
	seq, err := w.sequence()
	if err != nil {
		return err
	}
	encoded, linked, err := w.linkItemsAt(items, 0)
	if err != nil {
		return memerrors.Integrity(err, "sequence unshift")
	}
	seq.Items = append(append([]any{}, linked...), seq.Items...)
	return w.graph.emit(ctx, event.KindSequenceUnshift, w.Path(), map[string]any{"items": encoded})
}

// Splice removes deleteCount elements starting at start and inserts
// items in their place, returning the removed elements.
func (w *Wrapper) Splice(ctx context.Context, start, deleteCount int, items ...any) ([]any, error) {
	seq, err := w.sequence()
	if err != nil {
		return nil, err
	}
	n := len(seq.Items)
	start = clamp(start, n)
	end := clamp(start+deleteCount, n)

	removed := append([]any{}, seq.Items[start:end]...)
	encoded, linked, err := w.linkItemsAt(items, start)
	if err != nil {
		return nil, memerrors.Integrity(err, "sequence splice")
	}
	tail := append([]any{}, seq.Items[end:]...)
	seq.Items = append(append(seq.Items[:start:start], linked...), tail...)

	if err := w.graph.emit(ctx, event.KindSequenceSplice, w.Path(), map[string]any{
		"start":       start,
		"deleteCount": end - start,
		"items":       encoded,
	}); err != nil {
		return nil, err
	}
	return removed, nil
}

// SortBy reorders the sequence's elements using less, replaying the
// resulting order the same way the event log does: Go cannot serialize
// a comparator closure, so the event carries the final order directly
// rather than the function that produced it (see event.KindSequenceSort).
func (w *Wrapper) SortBy(ctx context.Context, less func(a, b any) bool) error {
	seq, err := w.sequence()
	if err != nil {
		return err
	}
	sort.SliceStable(seq.Items, func(i, j int) bool {
		return less(seq.Items[i], seq.Items[j])
	})
	encoded, err := w.graph.encodeItems(seq.Items)
	if err != nil {
		return memerrors.Integrity(err, "sequence sort")
	}
	return w.graph.emit(ctx, event.KindSequenceSort, w.Path(), map[string]any{"items": encoded})
}

// Reverse reverses the sequence in place.
func (w *Wrapper) Reverse(ctx context.Context) error {
	seq, err := w.sequence()
	if err != nil {
		return err
	}
	for i, j := 0, len(seq.Items)-1; i < j; i, j = i+1, j-1 {
		seq.Items[i], seq.Items[j] = seq.Items[j], seq.Items[i]
	}
	return w.graph.emit(ctx, event.KindSequenceReverse, w.Path(), map[string]any{})
}

// Fill overwrites the half-open range [start, end) with value. A shared
// object value aliases every position it is written to, matching a
// dynamic-language array fill of an object reference.
func (w *Wrapper) Fill(ctx context.Context, value any, start, end int) error {
	seq, err := w.sequence()
	if err != nil {
		return err
	}
	n := len(seq.Items)
	start = clamp(start, n)
	end = clamp(end, n)

	encoded, linked, err := w.linkAt(value, start)
	if err != nil {
		return memerrors.Integrity(err, "sequence fill")
	}
	for i := start; i < end; i++ {
		seq.Items[i] = linked
	}
	return w.graph.emit(ctx, event.KindSequenceFill, w.Path(), map[string]any{
		"value": encoded, "start": start, "end": end,
	})
}

// CopyWithin copies the half-open range [start, end) to target,
// truncating at the sequence's own length. No new objects are linked:
// the copied slots alias the elements already at [start, end), the same
// live-reference aliasing a dynamic-language copyWithin produces for
// object elements.
func (w *Wrapper) CopyWithin(ctx context.Context, target, start, end int) error {
	seq, err := w.sequence()
	if err != nil {
		return err
	}
	n := len(seq.Items)
	target = clamp(target, n)
	start = clamp(start, n)
	end = clamp(end, n)

	chunk := append([]any{}, seq.Items[start:end]...)
	for i, v := range chunk {
		if target+i >= n {
			break
		}
		seq.Items[target+i] = v
	}
	return w.graph.emit(ctx, event.KindSequenceCopyWithin, w.Path(), map[string]any{
		"target": target, "start": start, "end": end,
	})
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
