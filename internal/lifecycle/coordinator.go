// Package lifecycle coordinates writes across the entity store and the
// vector index. Every mutation flows through here so the two stores stay
// consistent: each entity keeps at most one live vector, and every live
// vector maps back to exactly one live entity.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/matchd/internal/embeddings"
	"github.com/fyrsmithlabs/matchd/internal/entity"
	"github.com/fyrsmithlabs/matchd/internal/logging"
	"github.com/fyrsmithlabs/matchd/internal/matching"
	"github.com/fyrsmithlabs/matchd/internal/store"
	"github.com/fyrsmithlabs/matchd/internal/vectorstore"
)

var tracer = otel.Tracer("matchd.lifecycle")

// ErrRetryableFailure marks transient infrastructure failures. The entity
// is left at its last-known-good state; the caller may retry the whole
// operation.
var ErrRetryableFailure = errors.New("retryable failure")

// Retryable reports whether the caller should retry the operation later
// instead of treating it as a precondition error.
func Retryable(err error) bool {
	return errors.Is(err, ErrRetryableFailure) ||
		errors.Is(err, vectorstore.ErrIndexUnavailable) ||
		errors.Is(err, embeddings.ErrRateLimited) ||
		errors.Is(err, embeddings.ErrTimeout)
}

// EntityStore is the slice of the store the coordinator writes through.
type EntityStore interface {
	SaveEntity(ctx context.Context, e *entity.Entity) error
	GetEntity(ctx context.Context, category entity.Category, externalID string) (*entity.Entity, error)
	EraseEntity(ctx context.Context, category entity.Category, id uuid.UUID) error
	SelectExpired(ctx context.Context, category entity.Category, cutoff time.Time, limit int) ([]*entity.Entity, error)
	SaveOrganization(ctx context.Context, org *entity.Organization) error
	GetOrganization(ctx context.Context, externalID string) (*entity.Organization, error)
	SaveApplication(ctx context.Context, app *entity.Application) error
	InsertMatchEvents(ctx context.Context, events []entity.MatchEvent) error
	DeleteMatchEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds retention and coordination settings.
type Config struct {
	// EntityWindow is how long an entity may go without an update before
	// the sweep erases it.
	EntityWindow time.Duration

	// AuditWindow bounds match-event audit rows, independent of the
	// source entities' lifetimes.
	AuditWindow time.Duration

	// SweepInterval is the pause between scheduled sweeps.
	SweepInterval time.Duration

	// BatchSize bounds each sweep selection so a crash loses at most one
	// batch of progress.
	BatchSize int

	// EraseRetries is how many times the metadata deletion is retried
	// after the vector deletion already succeeded.
	EraseRetries int

	// EraseBackoff is the initial pause before the first metadata
	// deletion retry, doubled on each subsequent attempt.
	EraseBackoff time.Duration
}

// ApplyDefaults fills in zero values with production defaults.
func (c *Config) ApplyDefaults() {
	if c.EntityWindow == 0 {
		c.EntityWindow = 365 * 24 * time.Hour
	}
	if c.AuditWindow == 0 {
		c.AuditWindow = 90 * 24 * time.Hour
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 24 * time.Hour
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.EraseRetries == 0 {
		c.EraseRetries = 3
	}
	if c.EraseBackoff == 0 {
		c.EraseBackoff = 100 * time.Millisecond
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.EntityWindow <= 0 || c.AuditWindow <= 0 {
		return errors.New("retention windows must be positive")
	}
	if c.BatchSize <= 0 {
		return errors.New("batch size must be positive")
	}
	return nil
}

// UpsertInput is a caller-submitted entity. The coordinator assigns the
// internal id, the vector ref, and the fingerprint.
type UpsertInput struct {
	Category   entity.Category
	ExternalID string

	// OrgExternalID and OrgName identify a job's organization. The org
	// row is created on first reference. Ignored for candidates.
	OrgExternalID string
	OrgName       string

	Title      string
	Summary    string
	Attributes entity.Attributes
}

// Coordinator serializes lifecycle operations per entity and keeps the
// entity store and the vector index consistent through them.
type Coordinator struct {
	store   EntityStore
	index   vectorstore.Index
	gateway embeddings.Gateway
	config  Config
	logger  *zap.Logger

	// locks serializes create/update/erase per entity key so a concurrent
	// update and erasure cannot interleave. Matching reads never take
	// these locks. Entries are refcounted and removed once the last
	// holder releases, so the map stays bounded by in-flight operations.
	locksMu sync.Mutex
	locks   map[string]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

// NewCoordinator creates a lifecycle coordinator.
func NewCoordinator(config Config, entities EntityStore, index vectorstore.Index, gateway embeddings.Gateway, logger *zap.Logger) (*Coordinator, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating lifecycle config: %w", err)
	}
	if entities == nil || index == nil || gateway == nil {
		return nil, errors.New("store, index, and embedding gateway are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:   entities,
		index:   index,
		gateway: gateway,
		config:  config,
		logger:  logger,
		locks:   make(map[string]*entityLock),
	}, nil
}

func (c *Coordinator) lock(category entity.Category, externalID string) func() {
	key := string(category) + "/" + externalID

	c.locksMu.Lock()
	l, ok := c.locks[key]
	if !ok {
		l = &entityLock{}
		c.locks[key] = l
	}
	l.refs++
	c.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, key)
		}
		c.locksMu.Unlock()
	}
}

// UpsertEntity creates or updates an entity. When the canonical text or
// model version changed it re-embeds and replaces the vector under the
// same point id, then commits the row in one statement. On any failure
// the entity keeps its last-known-good state: an existing row and its
// vector stay untouched, a new entity leaves no trace in either store.
func (c *Coordinator) UpsertEntity(ctx context.Context, input UpsertInput) (*entity.Entity, error) {
	ctx, span := tracer.Start(ctx, "Coordinator.UpsertEntity")
	defer span.End()
	span.SetAttributes(attribute.String("category", string(input.Category)))

	e, err := c.upsert(ctx, input)
	if err != nil {
		Upserts.WithLabelValues(string(input.Category), "error").Inc()
		span.RecordError(err)
		return nil, err
	}
	Upserts.WithLabelValues(string(input.Category), "success").Inc()
	return e, nil
}

func (c *Coordinator) upsert(ctx context.Context, input UpsertInput) (*entity.Entity, error) {
	if !input.Category.Valid() {
		return nil, fmt.Errorf("%w: %q", entity.ErrInvalidCategory, input.Category)
	}
	if input.ExternalID == "" {
		return nil, fmt.Errorf("%w: external id is required", entity.ErrInvalidAttributes)
	}
	if err := input.Attributes.Validate(input.Category); err != nil {
		return nil, err
	}

	unlock := c.lock(input.Category, input.ExternalID)
	defer unlock()

	existing, err := c.store.GetEntity(ctx, input.Category, input.ExternalID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading entity: %w", err)
	}

	e := &entity.Entity{
		ID:         uuid.New(),
		ExternalID: input.ExternalID,
		Category:   input.Category,
		Title:      input.Title,
		Summary:    input.Summary,
		Attributes: input.Attributes,
	}
	if existing != nil {
		e.ID = existing.ID
		e.CreatedAt = existing.CreatedAt
	}

	if input.Category == entity.CategoryJob {
		org, err := c.ensureOrganization(ctx, input.OrgExternalID, input.OrgName)
		if err != nil {
			return nil, err
		}
		e.OrgID = org.ID
	}

	text := entity.EmbeddingText(e)
	fingerprint := entity.Fingerprint(c.gateway.ModelVersion(), text)

	if existing != nil && existing.Embedded() && existing.Fingerprint == fingerprint {
		// Canonical text and model unchanged. Metadata-only commit, the
		// vector stays as is.
		e.VectorRef = existing.VectorRef
		e.Fingerprint = existing.Fingerprint
		e.EmbeddingModel = existing.EmbeddingModel
		if err := c.store.SaveEntity(ctx, e); err != nil {
			return nil, fmt.Errorf("%w: saving entity: %w", ErrRetryableFailure, err)
		}
		return e, nil
	}

	// The embedding call dominates latency and only the in-process entity
	// lock is held across it, never a store transaction.
	vector, err := c.gateway.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, embeddings.ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: embedding %s %s: %w", ErrRetryableFailure, input.Category, input.ExternalID, err)
	}

	// Reuse the prior point id so the upsert replaces the old vector
	// instead of adding a second one.
	ref := uuid.New()
	if existing != nil && existing.VectorRef != nil {
		ref = *existing.VectorRef
	}

	point := vectorstore.Point{
		Ref:            ref,
		EntityID:       e.ID,
		ExternalID:     e.ExternalID,
		Category:       e.Category,
		Vector:         vector,
		CreatedAt:      time.Now().UTC(),
		EducationLevel: e.Attributes.EducationLevel,
	}
	if e.OrgID != uuid.Nil {
		point.OrgID = e.OrgID.String()
	}
	if err := c.index.Upsert(ctx, vectorstore.CollectionFor(e.Category), point); err != nil {
		if errors.Is(err, vectorstore.ErrDimensionMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: upserting vector: %w", ErrRetryableFailure, err)
	}

	// Commit last. The row write is a single atomic statement, so either
	// the new attributes, vector ref, and fingerprint all land or none
	// do. If it fails, the replaced vector still belongs to this entity
	// under the same ref, so both invariants hold at the prior state.
	e.VectorRef = &ref
	e.Fingerprint = fingerprint
	e.EmbeddingModel = c.gateway.ModelVersion()
	if err := c.store.SaveEntity(ctx, e); err != nil {
		return nil, fmt.Errorf("%w: committing entity: %w", ErrRetryableFailure, err)
	}

	c.logger.Info("entity upserted",
		zap.String("category", string(e.Category)),
		zap.String("external_id", e.ExternalID),
		zap.String("entity_id", e.ID.String()),
		logging.RedactedString("canonical_text", text),
		zap.Bool("re_embedded", true))

	return e, nil
}

func (c *Coordinator) ensureOrganization(ctx context.Context, externalID, name string) (*entity.Organization, error) {
	if externalID == "" {
		return nil, fmt.Errorf("%w: job requires an organization id", entity.ErrInvalidAttributes)
	}
	org, err := c.store.GetOrganization(ctx, externalID)
	if err == nil {
		return org, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading organization: %w", err)
	}
	org = &entity.Organization{
		ID:         uuid.New(),
		ExternalID: externalID,
		Name:       name,
	}
	if err := c.store.SaveOrganization(ctx, org); err != nil {
		return nil, fmt.Errorf("%w: saving organization: %w", ErrRetryableFailure, err)
	}
	return org, nil
}

// Erase removes an entity from both stores. Idempotent: erasing an absent
// entity succeeds. The vector goes first and the metadata row only after,
// with retries, so no row ever survives pointing at a deleted vector
// while success has been reported.
func (c *Coordinator) Erase(ctx context.Context, category entity.Category, externalID string) error {
	ctx, span := tracer.Start(ctx, "Coordinator.Erase")
	defer span.End()
	span.SetAttributes(attribute.String("category", string(category)))

	if err := c.erase(ctx, category, externalID); err != nil {
		Erasures.WithLabelValues(string(category), "error").Inc()
		span.RecordError(err)
		return err
	}
	Erasures.WithLabelValues(string(category), "success").Inc()
	return nil
}

func (c *Coordinator) erase(ctx context.Context, category entity.Category, externalID string) error {
	if !category.Valid() {
		return fmt.Errorf("%w: %q", entity.ErrInvalidCategory, category)
	}

	unlock := c.lock(category, externalID)
	defer unlock()

	e, err := c.store.GetEntity(ctx, category, externalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("loading entity: %w", err)
	}

	if e.VectorRef != nil {
		if err := c.index.Delete(ctx, vectorstore.CollectionFor(category), *e.VectorRef); err != nil {
			return fmt.Errorf("%w: deleting vector: %w", ErrRetryableFailure, err)
		}
	}

	// The vector is gone. The row deletion must not be abandoned now or a
	// dangling vector ref would survive, so retry it before giving up.
	var lastErr error
	backoff := c.config.EraseBackoff
	for attempt := 0; attempt <= c.config.EraseRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: erasure interrupted: %w", ErrRetryableFailure, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if lastErr = c.store.EraseEntity(ctx, category, e.ID); lastErr == nil {
			c.logger.Info("entity erased",
				zap.String("category", string(category)),
				zap.String("entity_id", e.ID.String()))
			return nil
		}
	}
	return fmt.Errorf("%w: erasing entity row after vector deletion: %w", ErrRetryableFailure, lastErr)
}

// RecordMatchEvents persists the audit trail of one matching request.
// Audit rows live on their own retention window, independent of the
// entities they reference.
func (c *Coordinator) RecordMatchEvents(ctx context.Context, result *matching.Result) error {
	if result == nil || len(result.Matches) == 0 {
		return nil
	}
	now := time.Now().UTC()
	events := make([]entity.MatchEvent, 0, len(result.Matches))
	for _, m := range result.Matches {
		events = append(events, entity.MatchEvent{
			ID:             uuid.New(),
			QueryEntityID:  result.Query.ID,
			ResultEntityID: m.Entity.ID,
			Similarity:     m.Similarity,
			CompositeScore: m.Composite,
			Rank:           m.Rank,
			CreatedAt:      now,
		})
	}
	if err := c.store.InsertMatchEvents(ctx, events); err != nil {
		return fmt.Errorf("recording match events: %w", err)
	}
	return nil
}

// RecordApplication records that a candidate applied to a job. Both
// entities must already exist; the organization comes from the job. The
// application row is cascade-deleted when either side is erased.
func (c *Coordinator) RecordApplication(ctx context.Context, candidateExternalID, jobExternalID, status string) (*entity.Application, error) {
	ctx, span := tracer.Start(ctx, "Coordinator.RecordApplication")
	defer span.End()

	cand, err := c.store.GetEntity(ctx, entity.CategoryCandidate, candidateExternalID)
	if err != nil {
		return nil, fmt.Errorf("loading candidate %s: %w", candidateExternalID, err)
	}
	job, err := c.store.GetEntity(ctx, entity.CategoryJob, jobExternalID)
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", jobExternalID, err)
	}

	app := &entity.Application{
		ID:          uuid.New(),
		CandidateID: cand.ID,
		OrgID:       job.OrgID,
		JobID:       job.ID,
		Status:      status,
	}
	if err := c.store.SaveApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("%w: saving application: %w", ErrRetryableFailure, err)
	}
	return app, nil
}
