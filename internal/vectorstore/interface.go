// Package vectorstore defines the vector index adapter and its
// implementations.
//
// The adapter owns the mapping from an entity's internal identifier to its
// single current vector in the similarity index. It never mutates the
// entity store.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/matchd/internal/entity"
)

// Sentinel errors for index operations.
var (
	// ErrIndexUnavailable indicates the backing index cannot be reached
	// after retries. Callers may retry the whole operation later.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrDimensionMismatch indicates a vector whose length disagrees with
	// the collection's configured size.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrInvalidConfig indicates invalid adapter configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrVectorNotFound indicates a fetch for a ref with no live point.
	ErrVectorNotFound = errors.New("vector not found")
)

// collectionNamePattern validates collection names:
// lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName rejects names outside ^[a-z0-9_]{1,64}$.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// CollectionFor maps an entity category to its index collection. One
// collection per category.
func CollectionFor(category entity.Category) string {
	if category == entity.CategoryJob {
		return "jobs"
	}
	return "candidates"
}

// Point is an entity's vector representation plus the payload used for
// filtered search. The Ref doubles as the index point id: upserting with
// the same Ref replaces the prior vector instead of duplicating it.
type Point struct {
	Ref        uuid.UUID
	EntityID   uuid.UUID
	ExternalID string
	Category   entity.Category
	Vector     []float32
	CreatedAt  time.Time

	// OrgID scopes job points to their organization for filtered search.
	// Empty for candidates.
	OrgID string

	// EducationLevel is carried in the payload so callers can filter on it.
	EducationLevel string
}

// Hit is one similarity search result.
type Hit struct {
	EntityID   uuid.UUID
	ExternalID string
	Similarity float64
}

// CollectionInfo describes a collection.
type CollectionInfo struct {
	Name       string `json:"name"`
	PointCount int    `json:"point_count"`
	VectorSize int    `json:"vector_size"`
}

// Index is the vector index adapter contract.
//
// Implementations: QdrantIndex (external Qdrant over gRPC) and
// ChromemIndex (embedded chromem-go for single-node deployments and
// tests).
type Index interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, name string) error

	// Upsert writes the point, replacing any prior vector stored under the
	// same Ref. Returns ErrDimensionMismatch before touching the index
	// when the vector length is wrong.
	Upsert(ctx context.Context, collection string, p Point) error

	// Delete removes the point with the given ref. Idempotent: deleting an
	// absent ref is not an error.
	Delete(ctx context.Context, collection string, ref uuid.UUID) error

	// Fetch returns the stored vector for a ref, or ErrVectorNotFound.
	Fetch(ctx context.Context, collection string, ref uuid.UUID) ([]float32, error)

	// Search returns up to topK hits with similarity >= scoreFloor,
	// ordered by similarity descending with ties broken by ascending
	// entity id. Filters match payload fields exactly.
	Search(ctx context.Context, collection string, vector []float32, topK int, scoreFloor float64, filters map[string]string) ([]Hit, error)

	// CollectionInfo reports point count and vector size.
	CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)

	// DeleteCollection drops the collection and every point in it.
	// Deleting an absent collection is not an error.
	DeleteCollection(ctx context.Context, name string) error

	// Close releases the connection and resources.
	Close() error
}

// sortHits enforces the deterministic result order shared by all
// implementations: similarity descending, entity id ascending on ties.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].EntityID.String() < hits[j].EntityID.String()
	})
}
