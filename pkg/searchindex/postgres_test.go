package searchindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestIndex starts a disposable PostgreSQL container, applies migrations
// through NewPostgresSearchIndex, and returns a ready index.
func newTestIndex(t *testing.T) *PostgresSearchIndex {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	idx, err := NewPostgresSearchIndex(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(idx.Close)

	return idx
}

func TestIndexSessionThenSearchByPath(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.IndexSession(ctx, "sess-1", "/tmp/transcripts/sess-1.jsonl"))
	require.NoError(t, idx.IndexSession(ctx, "sess-2", "/tmp/transcripts/sess-2.jsonl"))

	hits, err := idx.Search(ctx, "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "sess-1", hits[0].SessionID)
}

func TestIndexSessionUpsertsOnConflict(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.IndexSession(ctx, "sess-1", "/tmp/old-path.jsonl"))
	require.NoError(t, idx.IndexSession(ctx, "sess-1", "/tmp/new-path.jsonl"))

	hits, err := idx.Search(ctx, "new-path", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "/tmp/new-path.jsonl", hits[0].Path)
}

func TestSearchRespectsLimit(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, idx.IndexSession(ctx, "sess-"+string(rune('a'+i)), "/tmp/transcripts/shared.jsonl"))
	}

	hits, err := idx.Search(ctx, "shared", 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}
