package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/matchd/internal/entity"
)

func tableFor(category entity.Category) (string, error) {
	switch category {
	case entity.CategoryJob:
		return "jobs", nil
	case entity.CategoryCandidate:
		return "candidates", nil
	default:
		return "", fmt.Errorf("%w: %q", entity.ErrInvalidCategory, category)
	}
}

// SaveEntity inserts or updates an entity row in a single atomic
// statement. The caller supplies the full desired state, including the
// vector_ref and fingerprint obtained after a successful embedding, so a
// commit is all-or-nothing at the entity boundary.
func (s *Store) SaveEntity(ctx context.Context, e *entity.Entity) error {
	if !e.Category.Valid() {
		return fmt.Errorf("%w: %q", entity.ErrInvalidCategory, e.Category)
	}

	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return fmt.Errorf("marshaling attributes: %w", err)
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	var vectorRef any
	if e.VectorRef != nil {
		vectorRef = e.VectorRef.String()
	}

	if e.Category == entity.CategoryJob {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO jobs (id, external_id, org_id, title, attributes, vector_ref, fingerprint, embedding_model, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(external_id) DO UPDATE SET
				org_id = excluded.org_id,
				title = excluded.title,
				attributes = excluded.attributes,
				vector_ref = excluded.vector_ref,
				fingerprint = excluded.fingerprint,
				embedding_model = excluded.embedding_model,
				updated_at = excluded.updated_at
		`, e.ID.String(), e.ExternalID, e.OrgID.String(), e.Title, string(attrs),
			vectorRef, e.Fingerprint, e.EmbeddingModel, e.CreatedAt, e.UpdatedAt)
	} else {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO candidates (id, external_id, summary, attributes, vector_ref, fingerprint, embedding_model, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(external_id) DO UPDATE SET
				summary = excluded.summary,
				attributes = excluded.attributes,
				vector_ref = excluded.vector_ref,
				fingerprint = excluded.fingerprint,
				embedding_model = excluded.embedding_model,
				updated_at = excluded.updated_at
		`, e.ID.String(), e.ExternalID, e.Summary, string(attrs),
			vectorRef, e.Fingerprint, e.EmbeddingModel, e.CreatedAt, e.UpdatedAt)
	}
	if err != nil {
		return fmt.Errorf("saving %s %s: %w", e.Category, e.ExternalID, err)
	}
	return nil
}

func entityColumns(category entity.Category) string {
	if category == entity.CategoryJob {
		return "id, external_id, org_id, title, '' AS summary, attributes, vector_ref, fingerprint, embedding_model, created_at, updated_at"
	}
	return "id, external_id, '' AS org_id, '' AS title, summary, attributes, vector_ref, fingerprint, embedding_model, created_at, updated_at"
}

func scanEntity(category entity.Category, scan func(dest ...any) error) (*entity.Entity, error) {
	var (
		e         entity.Entity
		id, orgID string
		attrs     string
		vectorRef sql.NullString
		createdAt sql.NullTime
		updatedAt sql.NullTime
	)
	e.Category = category

	if err := scan(&id, &e.ExternalID, &orgID, &e.Title, &e.Summary, &attrs,
		&vectorRef, &e.Fingerprint, &e.EmbeddingModel, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parsing entity id %q: %w", id, err)
	}
	e.ID = parsed

	if orgID != "" {
		if e.OrgID, err = uuid.Parse(orgID); err != nil {
			return nil, fmt.Errorf("parsing org id %q: %w", orgID, err)
		}
	}
	if vectorRef.Valid && vectorRef.String != "" {
		ref, err := uuid.Parse(vectorRef.String)
		if err != nil {
			return nil, fmt.Errorf("parsing vector ref %q: %w", vectorRef.String, err)
		}
		e.VectorRef = &ref
	}
	if err := json.Unmarshal([]byte(attrs), &e.Attributes); err != nil {
		return nil, fmt.Errorf("unmarshaling attributes: %w", err)
	}
	if createdAt.Valid {
		e.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		e.UpdatedAt = updatedAt.Time
	}
	return &e, nil
}

// GetEntity retrieves an entity by its external identifier.
func (s *Store) GetEntity(ctx context.Context, category entity.Category, externalID string) (*entity.Entity, error) {
	table, err := tableFor(category)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE external_id = ?", entityColumns(category), table),
		externalID)

	e, err := scanEntity(category, row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s %q: %w", category, externalID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s %q: %w", category, externalID, err)
	}
	return e, nil
}

// GetEntitiesByIDs batch-fetches entities by internal id in one query.
// Missing ids are silently absent from the result map.
func (s *Store) GetEntitiesByIDs(ctx context.Context, category entity.Category, ids []uuid.UUID) (map[uuid.UUID]*entity.Entity, error) {
	result := make(map[uuid.UUID]*entity.Entity, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	table, err := tableFor(category)
	if err != nil {
		return nil, err
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id.String()
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE id IN (%s)",
			entityColumns(category), table, strings.Join(placeholders, ",")),
		args...)
	if err != nil {
		return nil, fmt.Errorf("batch fetching %s: %w", category, err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntity(category, rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", category, err)
		}
		result[e.ID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", category, err)
	}
	return result, nil
}

// EraseEntity deletes the entity row and every dependent record (match
// events referencing it on either side; applications go via cascade) in
// one transaction. Erasing an absent entity is a no-op.
func (s *Store) EraseEntity(ctx context.Context, category entity.Category, id uuid.UUID) error {
	table, err := tableFor(category)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM match_events WHERE query_entity_id = ? OR result_entity_id = ?",
			id.String(), id.String()); err != nil {
			return fmt.Errorf("deleting match events for %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id.String()); err != nil {
			return fmt.Errorf("deleting %s %s: %w", category, id, err)
		}
		return nil
	})
}

// SelectExpired returns up to limit entities whose updated_at precedes the
// cutoff, oldest first. The sweep erases them batch by batch; erased rows
// no longer match the predicate, so a resumed sweep simply continues.
func (s *Store) SelectExpired(ctx context.Context, category entity.Category, cutoff time.Time, limit int) ([]*entity.Entity, error) {
	table, err := tableFor(category)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE updated_at < ? ORDER BY updated_at ASC LIMIT ?",
			entityColumns(category), table),
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("selecting expired %s: %w", category, err)
	}
	defer rows.Close()

	var out []*entity.Entity
	for rows.Next() {
		e, err := scanEntity(category, rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning expired %s: %w", category, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating expired %s: %w", category, err)
	}
	return out, nil
}

// CountEntities returns the number of live rows in a category.
func (s *Store) CountEntities(ctx context.Context, category entity.Category) (int, error) {
	table, err := tableFor(category)
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting %s: %w", category, err)
	}
	return count, nil
}
