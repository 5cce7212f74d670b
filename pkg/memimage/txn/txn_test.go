package txn_test

import (
	"context"
	"testing"

	"github.com/rmurphy/memimage/pkg/memimage/classify"
	memerrors "github.com/rmurphy/memimage/pkg/memimage/errors"
	"github.com/rmurphy/memimage/pkg/memimage/eventlog"
	"github.com/rmurphy/memimage/pkg/memimage/txn"
	"github.com/rmurphy/memimage/pkg/memimage/wrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGraph(t *testing.T, root any) (*wrap.Graph, *wrap.Wrapper) {
	t.Helper()
	log := eventlog.NewMemoryLog()
	g := wrap.New(log)
	return g, g.Attach(root)
}

func TestTxMergesOverlayOverBaseOnRead(t *testing.T) {
	g, root := newGraph(t, classify.NewRecord(""))
	ctx := context.Background()
	require.NoError(t, root.Set(ctx, "name", "ada"))

	tx, err := txn.Begin(g)
	require.NoError(t, err)

	name, ok := tx.Root().Get("name")
	require.True(t, ok)
	assert.Equal(t, "ada", name)
}

func TestTxWritesStayInOverlayUntilSave(t *testing.T) {
	g, root := newGraph(t, classify.NewRecord(""))

	tx, err := txn.Begin(g)
	require.NoError(t, err)
	require.NoError(t, tx.Root().Set("count", 1))

	_, ok := root.Get("count")
	assert.False(t, ok, "uncommitted write must not be visible on the base graph")

	require.NoError(t, tx.Save(context.Background()))

	v, ok := root.Get("count")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestTxDeleteRemovesKeyOnSave(t *testing.T) {
	g, root := newGraph(t, classify.NewRecord(""))
	ctx := context.Background()
	require.NoError(t, root.Set(ctx, "name", "ada"))

	tx, err := txn.Begin(g)
	require.NoError(t, err)
	require.NoError(t, tx.Root().Delete("name"))
	require.NoError(t, tx.Save(ctx))

	_, ok := root.Get("name")
	assert.False(t, ok)
}

func TestTxNestedRecordWriteSavesThroughToBase(t *testing.T) {
	g, root := newGraph(t, classify.NewRecord(""))
	ctx := context.Background()
	child := classify.NewRecord("")
	require.NoError(t, root.Set(ctx, "child", child))

	tx, err := txn.Begin(g)
	require.NoError(t, err)

	childView, ok := tx.Root().Get("child")
	require.True(t, ok)
	cv, ok := childView.(*txn.View)
	require.True(t, ok)
	require.NoError(t, cv.Set("x", 42))

	require.NoError(t, tx.Save(ctx))

	childWrapper, ok := root.Get("child")
	require.True(t, ok)
	x, ok := childWrapper.(*wrap.Wrapper).Get("x")
	require.True(t, ok)
	assert.Equal(t, 42, x)
}

func TestTxSequencePushSavesWholeContainer(t *testing.T) {
	g, root := newGraph(t, classify.NewSequence("a", "b"))

	tx, err := txn.Begin(g)
	require.NoError(t, err)

	rootView := tx.Root()
	require.NoError(t, rootView.Push("c"))

	// uncommitted: base still has only the original two items.
	assert.Equal(t, 2, root.Len())

	require.NoError(t, tx.Save(context.Background()))
	assert.Equal(t, 3, root.Len())
	v, ok := root.At(2)
	require.True(t, ok)
	assert.Equal(t, "c", v)
}

func TestTxDictSetAndDelete(t *testing.T) {
	g, root := newGraph(t, classify.NewDict())

	tx, err := txn.Begin(g)
	require.NoError(t, err)
	rootView := tx.Root()
	require.NoError(t, rootView.MapSet("k1", "v1"))
	require.NoError(t, rootView.MapSet("k2", "v2"))
	require.NoError(t, rootView.MapDelete("k1"))
	require.NoError(t, tx.Save(context.Background()))

	v, ok := root.MapGet("k2")
	require.True(t, ok)
	assert.Equal(t, "v2", v)
	_, ok = root.MapGet("k1")
	assert.False(t, ok)
}

func TestTxSetAddAndRemove(t *testing.T) {
	g, root := newGraph(t, classify.NewSet())

	tx, err := txn.Begin(g)
	require.NoError(t, err)
	rootView := tx.Root()
	require.NoError(t, rootView.Add("x"))
	require.NoError(t, rootView.Add("y"))
	require.NoError(t, rootView.Remove("x"))
	require.NoError(t, tx.Save(context.Background()))

	assert.Equal(t, []any{"y"}, root.Values())
}

func TestTxDiscardAbandonsWrites(t *testing.T) {
	g, root := newGraph(t, classify.NewRecord(""))

	tx, err := txn.Begin(g)
	require.NoError(t, err)
	require.NoError(t, tx.Root().Set("count", 1))
	require.NoError(t, tx.Discard())

	_, ok := root.Get("count")
	assert.False(t, ok)

	// the transaction guard must release so a fresh one can begin.
	tx2, err := txn.Begin(g)
	require.NoError(t, err)
	require.NoError(t, tx2.Discard())
}

func TestTxRejectsNestedBegin(t *testing.T) {
	g, _ := newGraph(t, classify.NewRecord(""))

	tx, err := txn.Begin(g)
	require.NoError(t, err)
	defer tx.Discard()

	_, err = txn.Begin(g)
	require.Error(t, err)
	assert.ErrorIs(t, err, memerrors.ErrNestedTransaction)
}

func TestTxCheckpointRestore(t *testing.T) {
	g, root := newGraph(t, classify.NewRecord(""))

	tx, err := txn.Begin(g)
	require.NoError(t, err)
	require.NoError(t, tx.Root().Set("a", 1))
	snap := tx.Checkpoint()
	require.NoError(t, tx.Root().Set("b", 2))
	tx.Restore(snap)

	require.NoError(t, tx.Save(context.Background()))

	_, ok := root.Get("b")
	assert.False(t, ok)
	v, ok := root.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}
