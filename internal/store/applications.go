package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/matchd/internal/entity"
)

// SaveApplication records a candidate's application. Applications are
// cascade-deleted when the candidate, organization, or job is erased.
func (s *Store) SaveApplication(ctx context.Context, app *entity.Application) error {
	if app.ID == uuid.Nil {
		app.ID = uuid.New()
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	if app.AppliedAt.IsZero() {
		app.AppliedAt = now
	}
	if app.Status == "" {
		app.Status = "applied"
	}

	var jobID any
	if app.JobID != uuid.Nil {
		jobID = app.JobID.String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO applications (id, candidate_id, org_id, job_id, status, applied_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status
	`, app.ID.String(), app.CandidateID.String(), app.OrgID.String(), jobID,
		app.Status, app.AppliedAt, app.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving application: %w", err)
	}
	return nil
}

// CountApplicationsFor returns how many applications reference a candidate.
func (s *Store) CountApplicationsFor(ctx context.Context, candidateID uuid.UUID) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM applications WHERE candidate_id = ?",
		candidateID.String()).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting applications: %w", err)
	}
	return count, nil
}
