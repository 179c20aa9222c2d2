package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAppend(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(s)
	require.NoError(t, err)
}

func TestWatcherEmitsAppendedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"a\":1}\n"), 0o644))

	w, err := New(20 * time.Millisecond)
	require.NoError(t, err)
	defer w.Close()
	go w.Run()

	require.NoError(t, w.Watch("sess-1", path, 0))

	batch := waitBatch(t, w)
	require.Len(t, batch.Lines, 1)
	assert.Equal(t, `{"a":1}`, string(batch.Lines[0]))
	assert.False(t, batch.Truncated)

	writeAppend(t, path, "{\"a\":2}\n{\"a\":3}\n")
	batch = waitBatch(t, w)
	require.Len(t, batch.Lines, 2)
	assert.Equal(t, `{"a":2}`, string(batch.Lines[0]))
	assert.Equal(t, `{"a":3}`, string(batch.Lines[1]))
}

func TestWatcherHoldsBackIncompleteTrailingLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	w, err := New(20 * time.Millisecond)
	require.NoError(t, err)
	defer w.Close()
	go w.Run()

	require.NoError(t, w.Watch("sess-1", path, 0))

	writeAppend(t, path, "{\"a\":1}") // no trailing newline yet
	select {
	case b := <-w.Batches():
		t.Fatalf("unexpected batch before line completed: %+v", b)
	case <-time.After(80 * time.Millisecond):
	}

	writeAppend(t, path, "\n")
	batch := waitBatch(t, w)
	require.Len(t, batch.Lines, 1)
	assert.Equal(t, `{"a":1}`, string(batch.Lines[0]))
}

func TestWatcherDetectsTruncation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"a\":1}\n{\"a\":2}\n"), 0o644))

	w, err := New(20 * time.Millisecond)
	require.NoError(t, err)
	defer w.Close()
	go w.Run()

	require.NoError(t, w.Watch("sess-1", path, 0))
	first := waitBatch(t, w)
	require.Len(t, first.Lines, 2)

	require.NoError(t, os.WriteFile(path, []byte("{\"a\":9}\n"), 0o644))
	w.signal(w.sessions[path])

	batch := waitBatch(t, w)
	assert.True(t, batch.Truncated)
	require.Len(t, batch.Lines, 1)
	assert.Equal(t, `{"a":9}`, string(batch.Lines[0]))
}

func waitBatch(t *testing.T, w *Watcher) Batch {
	t.Helper()
	select {
	case b := <-w.Batches():
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
		return Batch{}
	}
}
