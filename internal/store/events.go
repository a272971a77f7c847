package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/matchd/internal/entity"
)

// InsertMatchEvents batch-inserts audit records for a matching request.
func (s *Store) InsertMatchEvents(ctx context.Context, events []entity.MatchEvent) error {
	if len(events) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO match_events (id, query_entity_id, result_entity_id, similarity, composite_score, rank, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing match event insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, ev := range events {
			id := ev.ID
			if id == uuid.Nil {
				id = uuid.New()
			}
			createdAt := ev.CreatedAt
			if createdAt.IsZero() {
				createdAt = now
			}
			if _, err := stmt.ExecContext(ctx, id.String(),
				ev.QueryEntityID.String(), ev.ResultEntityID.String(),
				ev.Similarity, ev.CompositeScore, ev.Rank, createdAt); err != nil {
				return fmt.Errorf("inserting match event: %w", err)
			}
		}
		return nil
	})
}

// DeleteMatchEventsBefore prunes audit records older than the cutoff and
// returns how many were removed.
func (s *Store) DeleteMatchEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM match_events WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning match events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned match events: %w", err)
	}
	return n, nil
}

// CountMatchEventsFor returns how many audit rows reference the entity on
// either side. Used by tests and erasure verification.
func (s *Store) CountMatchEventsFor(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM match_events WHERE query_entity_id = ? OR result_entity_id = ?",
		id.String(), id.String()).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting match events: %w", err)
	}
	return count, nil
}
