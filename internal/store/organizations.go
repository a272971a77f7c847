package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/matchd/internal/entity"
)

// SaveOrganization inserts or updates an organization.
func (s *Store) SaveOrganization(ctx context.Context, org *entity.Organization) error {
	var weights any
	if org.DefaultWeights != nil {
		b, err := json.Marshal(org.DefaultWeights)
		if err != nil {
			return fmt.Errorf("marshaling default weights: %w", err)
		}
		weights = string(b)
	}

	now := time.Now().UTC()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = now
	}
	org.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, external_id, name, default_weights, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			name = excluded.name,
			default_weights = excluded.default_weights,
			updated_at = excluded.updated_at
	`, org.ID.String(), org.ExternalID, org.Name, weights, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving organization %s: %w", org.ExternalID, err)
	}
	return nil
}

// GetOrganization retrieves an organization by external identifier.
func (s *Store) GetOrganization(ctx context.Context, externalID string) (*entity.Organization, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, name, default_weights, created_at, updated_at
		FROM organizations WHERE external_id = ?
	`, externalID)
	return scanOrganization(row.Scan, externalID)
}

// GetOrganizationByID retrieves an organization by internal id.
func (s *Store) GetOrganizationByID(ctx context.Context, id uuid.UUID) (*entity.Organization, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, name, default_weights, created_at, updated_at
		FROM organizations WHERE id = ?
	`, id.String())
	return scanOrganization(row.Scan, id.String())
}

func scanOrganization(scan func(dest ...any) error, key string) (*entity.Organization, error) {
	var (
		org       entity.Organization
		id        string
		weights   sql.NullString
		createdAt sql.NullTime
		updatedAt sql.NullTime
	)
	if err := scan(&id, &org.ExternalID, &org.Name, &weights, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("organization %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("getting organization %q: %w", key, err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parsing organization id %q: %w", id, err)
	}
	org.ID = parsed

	if weights.Valid && weights.String != "" {
		if err := json.Unmarshal([]byte(weights.String), &org.DefaultWeights); err != nil {
			return nil, fmt.Errorf("unmarshaling default weights: %w", err)
		}
	}
	if createdAt.Valid {
		org.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		org.UpdatedAt = updatedAt.Time
	}
	return &org, nil
}
