package txn

import (
	"context"
	"testing"

	"github.com/rmurphy/memimage/pkg/memimage/classify"
	"github.com/rmurphy/memimage/pkg/memimage/eventlog"
	"github.com/rmurphy/memimage/pkg/memimage/wrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSaveRollsBackEarlierCommitsOnLaterFailure forces the second of two
// tracked containers to fail mid-commit by corrupting its overlay entry
// directly (package-internal access), then checks that the first
// container's already-applied write is undone and the base graph ends up
// exactly as it started.
func TestSaveRollsBackEarlierCommitsOnLaterFailure(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryLog()
	g := wrap.New(log)
	root := g.Attach(classify.NewRecord(""))

	ok := classify.NewRecord("")
	require.NoError(t, root.Set(ctx, "aaa_ok", ok))
	broken := classify.NewSet()
	require.NoError(t, root.Set(ctx, "zzz_broken", broken))

	okWrapper, found := root.Get("aaa_ok")
	require.True(t, found)
	brokenWrapper, found := root.Get("zzz_broken")
	require.True(t, found)

	tx, err := Begin(g)
	require.NoError(t, err)

	okView := tx.View(okWrapper.(*wrap.Wrapper))
	require.NoError(t, okView.Set("x", 1))

	brokenView := tx.View(brokenWrapper.(*wrap.Wrapper))
	// Force this container's working copy to a shape that cannot
	// possibly commit against its base Set wrapper.
	tx.delta.Set(brokenWrapper.(*wrap.Wrapper).Path(), classify.NewDict())
	tx.track(brokenWrapper.(*wrap.Wrapper).Path(), brokenView.base)

	err = tx.Save(ctx)
	require.Error(t, err)

	// the "ok" record's write must have been rolled back.
	v, has := okWrapper.(*wrap.Wrapper).Get("x")
	assert.False(t, has, "rolled-back write should not remain, got %v", v)
}
