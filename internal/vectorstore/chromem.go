package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig holds configuration for the embedded chromem index.
type ChromemConfig struct {
	// Path is the persistence directory. Empty keeps the index in memory,
	// which is what tests want.
	Path string

	// VectorSize is the embedding dimensionality.
	VectorSize int

	// Compress enables gzip for persisted collections.
	Compress bool
}

// Validate validates the configuration.
func (c ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// ChromemIndex is an embedded Index implementation on chromem-go. It
// serves single-node deployments and tests where running Qdrant is not
// worth the operational cost.
type ChromemIndex struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

// NewChromemIndex creates an embedded index, persistent when config.Path
// is set.
func NewChromemIndex(config ChromemConfig, logger *zap.Logger) (*ChromemIndex, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(config.Path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem db at %s: %w", config.Path, err)
		}
	}

	return &ChromemIndex{
		db:          db,
		config:      config,
		logger:      logger,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// Close is a no-op; chromem persists incrementally.
func (c *ChromemIndex) Close() error {
	return nil
}

func (c *ChromemIndex) collection(name string) (*chromem.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if col, ok := c.collections[name]; ok {
		return col, nil
	}
	// Embeddings are always supplied by the caller, so no embedding
	// function is configured.
	col, err := c.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", name, err)
	}
	c.collections[name] = col
	return col, nil
}

// EnsureCollection creates the collection if absent.
func (c *ChromemIndex) EnsureCollection(ctx context.Context, name string) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	_, err := c.collection(name)
	return err
}

// Upsert writes the point. chromem replaces documents by id, which keeps
// one live vector per ref.
func (c *ChromemIndex) Upsert(ctx context.Context, collection string, p Point) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(p.Vector) != c.config.VectorSize {
		return fmt.Errorf("%w: got %d, collection expects %d", ErrDimensionMismatch, len(p.Vector), c.config.VectorSize)
	}

	col, err := c.collection(collection)
	if err != nil {
		return err
	}

	metadata := map[string]string{
		"entity_id":   p.EntityID.String(),
		"external_id": p.ExternalID,
		"category":    string(p.Category),
		"created_at":  p.CreatedAt.UTC().Format(time.RFC3339),
	}
	if p.OrgID != "" {
		metadata["org_id"] = p.OrgID
	}
	if p.EducationLevel != "" {
		metadata["education_level"] = p.EducationLevel
	}

	err = col.AddDocument(ctx, chromem.Document{
		ID:        p.Ref.String(),
		Embedding: p.Vector,
		Content:   p.ExternalID,
		Metadata:  metadata,
	})
	if err != nil {
		IndexOperations.WithLabelValues("upsert", "error").Inc()
		return fmt.Errorf("upserting point to %s: %w", collection, err)
	}
	IndexOperations.WithLabelValues("upsert", "success").Inc()
	return nil
}

// Delete removes the point with the given ref; absent refs are a no-op.
func (c *ChromemIndex) Delete(ctx context.Context, collection string, ref uuid.UUID) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	col, err := c.collection(collection)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ref.String()); err != nil {
		IndexOperations.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("deleting point from %s: %w", collection, err)
	}
	IndexOperations.WithLabelValues("delete", "success").Inc()
	return nil
}

// Fetch returns the stored embedding for a ref.
func (c *ChromemIndex) Fetch(ctx context.Context, collection string, ref uuid.UUID) ([]float32, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	col, err := c.collection(collection)
	if err != nil {
		return nil, err
	}
	doc, err := col.GetByID(ctx, ref.String())
	if err != nil {
		IndexOperations.WithLabelValues("fetch", "error").Inc()
		return nil, fmt.Errorf("%w: ref %s in %s", ErrVectorNotFound, ref, collection)
	}
	IndexOperations.WithLabelValues("fetch", "success").Inc()
	return doc.Embedding, nil
}

// Search performs filtered cosine top-K search over the embedded index.
func (c *ChromemIndex) Search(ctx context.Context, collection string, vector []float32, topK int, scoreFloor float64, filters map[string]string) ([]Hit, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidConfig, topK)
	}
	if len(vector) != c.config.VectorSize {
		return nil, fmt.Errorf("%w: got %d, collection expects %d", ErrDimensionMismatch, len(vector), c.config.VectorSize)
	}

	col, err := c.collection(collection)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults above the document count.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	n := topK
	if n > count {
		n = count
	}

	var where map[string]string
	if len(filters) > 0 {
		where = filters
	}

	results, err := col.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		IndexOperations.WithLabelValues("search", "error").Inc()
		return nil, fmt.Errorf("searching %s: %w", collection, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, res := range results {
		sim := float64(res.Similarity)
		if sim < scoreFloor {
			continue
		}
		entityID, err := uuid.Parse(res.Metadata["entity_id"])
		if err != nil {
			c.logger.Warn("skipping point with malformed entity id",
				zap.String("collection", collection), zap.String("point", res.ID))
			continue
		}
		hits = append(hits, Hit{
			EntityID:   entityID,
			ExternalID: res.Metadata["external_id"],
			Similarity: sim,
		})
	}
	sortHits(hits)

	IndexOperations.WithLabelValues("search", "success").Inc()
	SearchResultCount.Observe(float64(len(hits)))
	return hits, nil
}

// CollectionInfo reports point count and vector size.
func (c *ChromemIndex) CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	col, err := c.collection(name)
	if err != nil {
		return nil, err
	}
	return &CollectionInfo{
		Name:       name,
		PointCount: col.Count(),
		VectorSize: c.config.VectorSize,
	}, nil
}

// DeleteCollection drops the collection. Absent collections are a no-op.
func (c *ChromemIndex) DeleteCollection(ctx context.Context, name string) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	delete(c.collections, name)
	return nil
}

// Ensure ChromemIndex implements Index.
var _ Index = (*ChromemIndex)(nil)
