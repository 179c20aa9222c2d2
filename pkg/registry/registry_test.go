package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionrelay/tailwatch/pkg/debounce"
	"github.com/sessionrelay/tailwatch/pkg/destination"
	"github.com/sessionrelay/tailwatch/pkg/statestore"
	"github.com/sessionrelay/tailwatch/pkg/watcher"
)

type fakePublisher struct {
	sent  []string
	edits []string
	seq   int
}

func (p *fakePublisher) Send(ctx context.Context, target, text string) (string, error) {
	p.seq++
	p.sent = append(p.sent, text)
	return "handle-1", nil
}

func (p *fakePublisher) Edit(ctx context.Context, target, handle, text string) error {
	p.edits = append(p.edits, text)
	return nil
}

func newTestRegistry(t *testing.T) (*Registry, *fakePublisher) {
	t.Helper()

	w, err := watcher.New(20 * time.Millisecond)
	require.NoError(t, err)
	go w.Run()
	t.Cleanup(func() { w.Close() })

	store, err := statestore.New(t.TempDir())
	require.NoError(t, err)

	pub := &fakePublisher{}
	db := debounce.New(debounce.Config{MinEditGap: 10 * time.Millisecond, RateBudget: 100, RateWindow: time.Second}, pub)

	reg := New(Config{
		Watcher:      w,
		Store:        store,
		Debouncers:   map[destination.Kind]*debounce.Debouncer{destination.KindTelegram: db},
		IdleGrace:    50 * time.Millisecond,
		IdleFinalize: time.Second,
	})
	t.Cleanup(func() { reg.Shutdown(time.Second) })
	return reg, pub
}

func TestAttachIsIdempotent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "s.jsonl")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	target := destination.Target{Kind: destination.KindTelegram, ChatID: "123"}
	require.NoError(t, reg.Attach("sess-1", path, target))
	require.NoError(t, reg.Attach("sess-1", path, target))

	infos := reg.List()
	require.Len(t, infos, 1)
	assert.Len(t, infos[0].Destinations, 1)
	assert.True(t, reg.Exists("sess-1", target))
}

func TestDetachUnknownIsNoop(t *testing.T) {
	reg, _ := newTestRegistry(t)
	err := reg.Detach("nonexistent", destination.Target{Kind: destination.KindTelegram, ChatID: "1"})
	assert.NoError(t, err)
}

func TestAttachRejectsUnconfiguredDestinationKind(t *testing.T) {
	reg, _ := newTestRegistry(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "s.jsonl")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	err := reg.Attach("sess-1", path, destination.Target{Kind: destination.KindSlack, Channel: "C1"})
	assert.Error(t, err)
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(line + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

// TestRestartResumesOpenTurnAsEditNotDuplicate exercises the restart-safety
// path directly: a second registry built from the same on-disk state store
// must pick up the first registry's open turn handle via LoadPersisted, so
// a block joining that turn after "restart" produces an edit of the
// existing message rather than a second SendNewMessage.
func TestRestartResumesOpenTurnAsEditNotDuplicate(t *testing.T) {
	dir := t.TempDir()
	storeDir := filepath.Join(dir, "state")
	path := filepath.Join(dir, "s.jsonl")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	target := destination.Target{Kind: destination.KindTelegram, ChatID: "123"}

	store1, err := statestore.New(storeDir)
	require.NoError(t, err)
	w1, err := watcher.New(20 * time.Millisecond)
	require.NoError(t, err)
	go w1.Run()

	pub1 := &fakePublisher{}
	db1 := debounce.New(debounce.Config{MinEditGap: 10 * time.Millisecond, RateBudget: 100, RateWindow: time.Second}, pub1)
	reg1 := New(Config{
		Watcher:      w1,
		Store:        store1,
		Debouncers:   map[destination.Kind]*debounce.Debouncer{destination.KindTelegram: db1},
		IdleGrace:    50 * time.Millisecond,
		IdleFinalize: time.Second,
	})
	require.NoError(t, reg1.Attach("sess-1", path, target))

	appendLine(t, path, `{"type":"user","message":{"role":"user","content":"hello"}}`)
	require.Eventually(t, func() bool { return len(pub1.sent) == 1 }, 2*time.Second, 10*time.Millisecond)

	reg1.Shutdown(time.Second)
	require.NoError(t, w1.Close())

	store2, err := statestore.New(storeDir)
	require.NoError(t, err)
	w2, err := watcher.New(20 * time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { w2.Close() })
	go w2.Run()

	pub2 := &fakePublisher{}
	db2 := debounce.New(debounce.Config{MinEditGap: 10 * time.Millisecond, RateBudget: 100, RateWindow: time.Second}, pub2)
	reg2 := New(Config{
		Watcher:      w2,
		Store:        store2,
		Debouncers:   map[destination.Kind]*debounce.Debouncer{destination.KindTelegram: db2},
		IdleGrace:    50 * time.Millisecond,
		IdleFinalize: time.Second,
	})
	t.Cleanup(func() { reg2.Shutdown(time.Second) })

	require.NoError(t, reg2.LoadPersisted())
	require.True(t, reg2.Exists("sess-1", target))

	appendLine(t, path, `{"role":"assistant","requestId":"req-1","message":{"role":"assistant","content":"hi there"}}`)

	require.Eventually(t, func() bool { return len(pub2.edits) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, pub2.sent, "a block joining a pre-restart open turn must edit, not send a duplicate message")
}

func TestEndToEndUserBlockSendsNewMessage(t *testing.T) {
	reg, pub := newTestRegistry(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "s.jsonl")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	target := destination.Target{Kind: destination.KindTelegram, ChatID: "123"}
	require.NoError(t, reg.Attach("sess-1", path, target))

	line := `{"type":"user","message":{"role":"user","content":"hello there"}}` + "\n"
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(line)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		return len(pub.sent) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, pub.sent[0], "hello there")
}
