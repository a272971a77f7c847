// Package store implements the relational entity store on SQLite.
//
// It owns the durable records (organizations, jobs, candidates,
// applications, match events) and the referential side of the dual-store
// model: every row's vector_ref points at the entity's single live index
// entry. The vector index itself is never touched from here.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS organizations (
	id              TEXT PRIMARY KEY,
	external_id     TEXT NOT NULL UNIQUE,
	name            TEXT NOT NULL,
	default_weights TEXT,
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id              TEXT PRIMARY KEY,
	external_id     TEXT NOT NULL UNIQUE,
	org_id          TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	title           TEXT NOT NULL,
	attributes      TEXT NOT NULL,
	vector_ref      TEXT,
	fingerprint     TEXT NOT NULL DEFAULT '',
	embedding_model TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_org ON jobs(org_id);
CREATE INDEX IF NOT EXISTS idx_jobs_updated ON jobs(updated_at);

CREATE TABLE IF NOT EXISTS candidates (
	id              TEXT PRIMARY KEY,
	external_id     TEXT NOT NULL UNIQUE,
	summary         TEXT NOT NULL DEFAULT '',
	attributes      TEXT NOT NULL,
	vector_ref      TEXT,
	fingerprint     TEXT NOT NULL DEFAULT '',
	embedding_model TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_candidates_updated ON candidates(updated_at);

CREATE TABLE IF NOT EXISTS applications (
	id           TEXT PRIMARY KEY,
	candidate_id TEXT NOT NULL REFERENCES candidates(id) ON DELETE CASCADE,
	org_id       TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	job_id       TEXT REFERENCES jobs(id) ON DELETE CASCADE,
	status       TEXT NOT NULL DEFAULT 'applied',
	applied_at   TIMESTAMP NOT NULL,
	created_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_applications_candidate ON applications(candidate_id);
CREATE INDEX IF NOT EXISTS idx_applications_job ON applications(job_id);

CREATE TABLE IF NOT EXISTS match_events (
	id               TEXT PRIMARY KEY,
	query_entity_id  TEXT NOT NULL,
	result_entity_id TEXT NOT NULL,
	similarity       REAL NOT NULL,
	composite_score  REAL NOT NULL,
	rank             INTEGER NOT NULL,
	created_at       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_match_events_query ON match_events(query_entity_id);
CREATE INDEX IF NOT EXISTS idx_match_events_result ON match_events(result_entity_id);
CREATE INDEX IF NOT EXISTS idx_match_events_created ON match_events(created_at);
`

// Store is the SQLite-backed entity store.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path and bootstraps the schema.
// Pass ":memory:" for an ephemeral store in tests.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path required")
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrapping schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
