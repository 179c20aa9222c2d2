package statestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	rec := Record{
		SessionID:        "sess-1",
		Path:             "/tmp/session.jsonl",
		Offset:           128,
		ToolUseToBlock:   map[string]string{"tu1": "b3"},
		CurrentRequestID: "r7",
		BlockSeq:         4,
		Destinations: map[string]DestinationState{
			"telegram:123": {Kind: "telegram", Target: "123", CurrentTurnID: "r7", CurrentHandle: "99"},
		},
	}
	require.NoError(t, store.Save(rec))

	loaded, ok, err := store.Load("sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, loaded)
}

func TestLoadMissingReturnsFalse(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, ok, err := store.Load("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadAllSkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(Record{SessionID: "good", Offset: 1}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))

	records, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "good", records[0].SessionID)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(Record{SessionID: "sess-1"}))
	require.NoError(t, store.Delete("sess-1"))
	require.NoError(t, store.Delete("sess-1"))

	_, ok, err := store.Load("sess-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
