package eventlog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rmurphy/memimage/pkg/memimage/event"
	"github.com/rmurphy/memimage/pkg/memimage/eventlog"
	"github.com/rmurphy/memimage/pkg/memimage/path"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent(key string) *event.Event {
	return event.New(event.KindPropertyWrite, path.Parse("root"), map[string]any{"key": key, "value": 1})
}

func testLog(t *testing.T, l eventlog.Log) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, sampleEvent("a")))
	require.NoError(t, l.Append(ctx, sampleEvent("b")))

	all, err := l.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Payload["key"])
	assert.Equal(t, "b", all[1].Payload["key"])

	evts, errc := l.Stream(ctx)
	var streamed []*event.Event
	for e := range evts {
		streamed = append(streamed, e)
	}
	require.NoError(t, <-errc)
	require.Len(t, streamed, 2)

	require.NoError(t, l.Close())
	err = l.Append(ctx, sampleEvent("c"))
	assert.ErrorIs(t, err, eventlog.ErrClosed)
}

func TestMemoryLog(t *testing.T) {
	testLog(t, eventlog.NewMemoryLog())
}

func TestFileLog(t *testing.T) {
	dir := t.TempDir()
	l, err := eventlog.OpenFileLog(filepath.Join(dir, "events.ndjson"))
	require.NoError(t, err)
	testLog(t, l)
}

func TestFileLogPermissions(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "events.ndjson")
	l, err := eventlog.OpenFileLog(p)
	require.NoError(t, err)
	defer l.Close()

	info, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSQLiteLog(t *testing.T) {
	l, err := eventlog.OpenSQLiteLog(":memory:")
	require.NoError(t, err)
	testLog(t, l)
}
