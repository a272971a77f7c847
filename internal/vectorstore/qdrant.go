package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("matchd.vectorstore.qdrant")

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334, NOT the HTTP REST port).
	Port int

	// VectorSize is the embedding dimensionality. Every upserted vector
	// must have exactly this length.
	VectorSize int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries is the maximum number of retry attempts for transient failures.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled on each retry.
	RetryBackoff time.Duration

	// CircuitBreakerThreshold is the number of failures before opening the circuit.
	CircuitBreakerThreshold int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// isTransient reports whether a gRPC error should be retried.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantIndex is an Index implementation on Qdrant's native gRPC client.
type QdrantIndex struct {
	client *qdrant.Client
	config QdrantConfig

	// collections caches collection existence to avoid repeated checks.
	collections sync.Map

	circuitBreaker struct {
		failures int
		lastFail time.Time
		mu       sync.Mutex
	}
}

// NewQdrantIndex connects to Qdrant and verifies the connection with a
// health check.
func NewQdrantIndex(config QdrantConfig) (*QdrantIndex, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(16 * 1024 * 1024),
				grpc.MaxCallSendMsgSize(16 * 1024 * 1024),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	idx := &QdrantIndex{client: client, config: config}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check failed: %v", ErrIndexUnavailable, err)
	}

	return idx, nil
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

// retryOperation retries an operation with exponential backoff, honoring
// the circuit breaker and transient-error classification.
func (q *QdrantIndex) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := q.config.RetryBackoff

	for attempt := 0; attempt <= q.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			q.resetCircuitBreaker()
			return nil
		}

		if q.isCircuitOpen() {
			return fmt.Errorf("%w: %s: circuit breaker open", ErrIndexUnavailable, operationName)
		}

		if !isTransient(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		q.recordFailure()

		if attempt == q.config.MaxRetries {
			return fmt.Errorf("%w: %s failed after %d retries: %v", ErrIndexUnavailable, operationName, q.config.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

func (q *QdrantIndex) recordFailure() {
	q.circuitBreaker.mu.Lock()
	defer q.circuitBreaker.mu.Unlock()
	q.circuitBreaker.failures++
	q.circuitBreaker.lastFail = time.Now()
}

func (q *QdrantIndex) resetCircuitBreaker() {
	q.circuitBreaker.mu.Lock()
	defer q.circuitBreaker.mu.Unlock()
	q.circuitBreaker.failures = 0
}

func (q *QdrantIndex) isCircuitOpen() bool {
	q.circuitBreaker.mu.Lock()
	defer q.circuitBreaker.mu.Unlock()

	if q.circuitBreaker.failures >= q.config.CircuitBreakerThreshold {
		// Allow retry after 30 seconds
		if time.Since(q.circuitBreaker.lastFail) > 30*time.Second {
			q.circuitBreaker.failures = 0
			return false
		}
		return true
	}
	return false
}

// EnsureCollection creates the collection with cosine distance if absent.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.EnsureCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		return err
	}

	if _, ok := q.collections.Load(name); ok {
		return nil
	}

	var exists bool
	err := q.retryOperation(ctx, "collection_exists", func() error {
		_, err := q.client.GetCollectionInfo(ctx, name)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
				exists = false
				return nil
			}
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("checking collection %s: %w", name, err)
	}

	if !exists {
		err = q.retryOperation(ctx, "create_collection", func() error {
			return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: name,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     uint64(q.config.VectorSize),
					Distance: qdrant.Distance_Cosine,
				}),
			})
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("creating collection %s: %w", name, err)
		}
	}

	q.collections.Store(name, true)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Upsert writes the point, replacing any prior vector under the same ref.
func (q *QdrantIndex) Upsert(ctx context.Context, collection string, p Point) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.String("entity_id", p.EntityID.String()),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(p.Vector) != q.config.VectorSize {
		return fmt.Errorf("%w: got %d, collection expects %d", ErrDimensionMismatch, len(p.Vector), q.config.VectorSize)
	}

	payload := map[string]*qdrant.Value{
		"entity_id":   {Kind: &qdrant.Value_StringValue{StringValue: p.EntityID.String()}},
		"external_id": {Kind: &qdrant.Value_StringValue{StringValue: p.ExternalID}},
		"category":    {Kind: &qdrant.Value_StringValue{StringValue: string(p.Category)}},
		"created_at":  {Kind: &qdrant.Value_StringValue{StringValue: p.CreatedAt.UTC().Format(time.RFC3339)}},
	}
	if p.OrgID != "" {
		payload["org_id"] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: p.OrgID}}
	}
	if p.EducationLevel != "" {
		payload["education_level"] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: p.EducationLevel}}
	}

	err := q.retryOperation(ctx, "upsert", func() error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points: []*qdrant.PointStruct{{
				Id:      qdrant.NewIDUUID(p.Ref.String()),
				Vectors: qdrant.NewVectors(p.Vector...),
				Payload: payload,
			}},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		IndexOperations.WithLabelValues("upsert", "error").Inc()
		return fmt.Errorf("upserting point to %s: %w", collection, err)
	}

	IndexOperations.WithLabelValues("upsert", "success").Inc()
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Delete removes the point with the given ref. Deleting an absent ref
// succeeds.
func (q *QdrantIndex) Delete(ctx context.Context, collection string, ref uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	err := q.retryOperation(ctx, "delete", func() error {
		_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{
						Ids: []*qdrant.PointId{qdrant.NewIDUUID(ref.String())},
					},
				},
			},
		})
		// Qdrant treats deleting unknown ids as success already; a missing
		// collection means there is nothing to delete either.
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
			return nil
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		IndexOperations.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("deleting point from %s: %w", collection, err)
	}

	IndexOperations.WithLabelValues("delete", "success").Inc()
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Fetch returns the stored vector for a ref.
func (q *QdrantIndex) Fetch(ctx context.Context, collection string, ref uuid.UUID) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	var vector []float32
	err := q.retryOperation(ctx, "fetch", func() error {
		points, err := q.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: collection,
			Ids:            []*qdrant.PointId{qdrant.NewIDUUID(ref.String())},
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return err
		}
		if len(points) == 0 {
			return nil
		}
		if v := points[0].GetVectors().GetVector(); v != nil {
			vector = v.Data
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetching point from %s: %w", collection, err)
	}
	if vector == nil {
		return nil, fmt.Errorf("%w: ref %s in %s", ErrVectorNotFound, ref, collection)
	}

	span.SetStatus(codes.Ok, "success")
	return vector, nil
}

// Search performs filtered cosine top-K search.
func (q *QdrantIndex) Search(ctx context.Context, collection string, vector []float32, topK int, scoreFloor float64, filters map[string]string) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("top_k", topK),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidConfig, topK)
	}
	if len(vector) != q.config.VectorSize {
		return nil, fmt.Errorf("%w: got %d, collection expects %d", ErrDimensionMismatch, len(vector), q.config.VectorSize)
	}

	var filter *qdrant.Filter
	if len(filters) > 0 {
		conditions := make([]*qdrant.Condition, 0, len(filters))
		for key, value := range filters {
			conditions = append(conditions, &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: key,
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: value},
						},
					},
				},
			})
		}
		filter = &qdrant.Filter{Must: conditions}
	}

	threshold := float32(scoreFloor)
	var results []*qdrant.ScoredPoint
	err := q.retryOperation(ctx, "search", func() error {
		res, err := q.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(topK)),
			ScoreThreshold: &threshold,
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         filter,
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		IndexOperations.WithLabelValues("search", "error").Inc()
		return nil, fmt.Errorf("searching %s: %w", collection, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, point := range results {
		hit := Hit{Similarity: float64(point.Score)}
		if point.Payload != nil {
			if v, ok := point.Payload["entity_id"]; ok {
				if s, ok := v.Kind.(*qdrant.Value_StringValue); ok {
					if id, err := uuid.Parse(s.StringValue); err == nil {
						hit.EntityID = id
					}
				}
			}
			if v, ok := point.Payload["external_id"]; ok {
				if s, ok := v.Kind.(*qdrant.Value_StringValue); ok {
					hit.ExternalID = s.StringValue
				}
			}
		}
		if hit.EntityID == uuid.Nil {
			continue
		}
		hits = append(hits, hit)
	}
	sortHits(hits)

	IndexOperations.WithLabelValues("search", "success").Inc()
	SearchResultCount.Observe(float64(len(hits)))
	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// CollectionInfo returns point count and vector size for a collection.
func (q *QdrantIndex) CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.CollectionInfo")
	defer span.End()

	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}

	var info *CollectionInfo
	err := q.retryOperation(ctx, "collection_info", func() error {
		collInfo, err := q.client.GetCollectionInfo(ctx, name)
		if err != nil {
			return err
		}
		pointCount := 0
		if collInfo.PointsCount != nil {
			pointCount = int(*collInfo.PointsCount)
		}
		info = &CollectionInfo{
			Name:       name,
			PointCount: pointCount,
			VectorSize: q.config.VectorSize,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("getting collection info for %s: %w", name, err)
	}

	span.SetStatus(codes.Ok, "success")
	return info, nil
}

// DeleteCollection drops the collection. Absent collections are a no-op.
func (q *QdrantIndex) DeleteCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.DeleteCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		return err
	}

	err := q.retryOperation(ctx, "delete_collection", func() error {
		err := q.client.DeleteCollection(ctx, name)
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
			return nil
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}

	q.collections.Delete(name)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Ensure QdrantIndex implements Index.
var _ Index = (*QdrantIndex)(nil)
