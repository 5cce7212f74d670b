package event_test

import (
	"testing"

	"github.com/rmurphy/memimage/pkg/memimage/event"
	"github.com/rmurphy/memimage/pkg/memimage/path"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventJSONRoundTrip(t *testing.T) {
	evt := event.New(event.KindPropertyWrite, path.Parse("users.3"), map[string]any{
		"key":   "name",
		"value": "Ada",
	})

	data, err := evt.MarshalJSON()
	require.NoError(t, err)

	var decoded event.Event
	require.NoError(t, decoded.UnmarshalJSON(data))

	assert.Equal(t, evt.ID, decoded.ID)
	assert.Equal(t, event.KindPropertyWrite, decoded.Kind)
	assert.True(t, evt.Path.Equal(decoded.Path))
	assert.Equal(t, "name", decoded.Payload["key"])
	assert.WithinDuration(t, evt.Timestamp, decoded.Timestamp, 0)
}

func TestUnmarshalUnknownKindFails(t *testing.T) {
	var decoded event.Event
	err := decoded.UnmarshalJSON([]byte(`{"id":"x","kind":"bogus","path":"","timestamp":"2024-01-01T00:00:00Z"}`))
	require.Error(t, err)
}

func TestAllKindsCount(t *testing.T) {
	assert.Len(t, event.AllKinds(), 18)
}
