// Package searchindex defines the boundary interface for the full-text
// session search feature (§4.13). Per the explicit non-goal, the feature
// itself (indexing pipeline, bot search command) is not implemented;
// NoopSearchIndex satisfies the interface for orchestrators that don't
// configure a backing store, and PostgresSearchIndex gives the interface
// a concrete, exercised home atop the teacher's pgx/golang-migrate stack.
package searchindex

import "context"

// SearchHit is one matching session returned by Search.
type SearchHit struct {
	SessionID string
	Path      string
	Snippet   string
}

// SearchIndex is the boundary the orchestrator depends on; a session's
// content is indexed as it's processed and later searched via a bot
// command (out of scope, per spec.md's non-goal).
type SearchIndex interface {
	IndexSession(ctx context.Context, sessionID, path string) error
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
}

// NoopSearchIndex discards every IndexSession call and always returns no
// results, satisfying SearchIndex when no backing store is configured.
type NoopSearchIndex struct{}

func (NoopSearchIndex) IndexSession(ctx context.Context, sessionID, path string) error {
	return nil
}

func (NoopSearchIndex) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	return nil, nil
}
