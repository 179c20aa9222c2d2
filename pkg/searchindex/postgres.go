package searchindex

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresSearchIndex is a best-effort stub satisfying SearchIndex atop
// the teacher's PostgreSQL stack (pgx + golang-migrate), grounded on
// the haowjy-meridian example pack's pgxpool-backed repositories,
// generalized from typed row scans to the single indexed_session table
// this boundary interface needs.
type PostgresSearchIndex struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresSearchIndex connects to dsn, applies the indexed_session
// migration, and returns a ready PostgresSearchIndex.
func NewPostgresSearchIndex(ctx context.Context, dsn string) (*PostgresSearchIndex, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("searchindex: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("searchindex: ping: %w", err)
	}

	if err := migrateUp(dsn); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresSearchIndex{pool: pool, logger: slog.Default().With("component", "searchindex")}, nil
}

// migrateUp opens a standalone database/sql connection via pgx's stdlib
// adapter (golang-migrate drives migrations through database/sql, not
// pgxpool) and applies every pending migration, mirroring
// sidedotdev-sidekick's migrate.NewWithInstance("iofs", ...) wiring
// adapted from sqlite to postgres.
func migrateUp(dsn string) error {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("searchindex: migration connection: %w", err)
	}
	defer sqlDB.Close()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("searchindex: migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("searchindex: migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("searchindex: migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("searchindex: apply migrations: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (p *PostgresSearchIndex) Close() {
	p.pool.Close()
}

// IndexSession records that sessionID's transcript at path has been
// observed, upserting on conflict so repeated attach/detach cycles don't
// error.
func (p *PostgresSearchIndex) IndexSession(ctx context.Context, sessionID, path string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO indexed_session (session_id, path, indexed_at)
		VALUES ($1, $2, now())
		ON CONFLICT (session_id) DO UPDATE SET path = EXCLUDED.path, indexed_at = now()
	`, sessionID, path)
	if err != nil {
		p.logger.Warn("failed to index session", "session_id", sessionID, "error", err)
		return fmt.Errorf("searchindex: index session: %w", err)
	}
	return nil
}

// Search performs a trigram ILIKE match against indexed paths, per
// §4.13's "Search as a trigram ILIKE query" stub scope.
func (p *PostgresSearchIndex) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT session_id, path
		FROM indexed_session
		WHERE path ILIKE '%' || $1 || '%'
		ORDER BY indexed_at DESC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searchindex: search: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var hit SearchHit
		if err := rows.Scan(&hit.SessionID, &hit.Path); err != nil {
			return nil, fmt.Errorf("searchindex: scan: %w", err)
		}
		hit.Snippet = hit.Path
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}
