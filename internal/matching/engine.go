// Package matching implements the ranking engine: semantic retrieval from
// the vector index combined with rule-based skill coverage, producing a
// deterministic ranked result set with per-result explanations.
//
// The engine is stateless per request and read-only. Given the same
// stored entities, weights, and topK, repeated calls return identical
// output.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/matchd/internal/entity"
	"github.com/fyrsmithlabs/matchd/internal/store"
	"github.com/fyrsmithlabs/matchd/internal/vectorstore"
)

var tracer = otel.Tracer("matchd.matching")

// Sentinel errors. Both are precondition failures reported to the caller
// without retry and without side effects.
var (
	// ErrNotFound indicates the query entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrNotEmbedded indicates the query entity has no live vector yet.
	ErrNotEmbedded = errors.New("entity not embedded")
)

const (
	defaultTopK = 10

	// fetchK over-fetches because re-ranking can reorder within the
	// retrieved set but never recover candidates the search excluded.
	overFetchFactor = 3
	minFetchK       = 30
	maxFetchK       = 100
)

// EntityReader is the slice of the entity store the engine needs. Matching
// never writes.
type EntityReader interface {
	GetEntity(ctx context.Context, category entity.Category, externalID string) (*entity.Entity, error)
	GetEntitiesByIDs(ctx context.Context, category entity.Category, ids []uuid.UUID) (map[uuid.UUID]*entity.Entity, error)
	GetOrganizationByID(ctx context.Context, id uuid.UUID) (*entity.Organization, error)
}

// Config holds the engine's ranking defaults.
type Config struct {
	// DefaultWeights apply when neither the request nor the query job's
	// organization supplies weights.
	DefaultWeights Weights

	// MinSimilarity is the default raw-similarity floor. Filtering happens
	// on semantic relevance, never on the composite score, so skill
	// weighting cannot resurrect semantically irrelevant matches.
	MinSimilarity float64

	// MaxTopK caps caller-requested result sizes.
	MaxTopK int

	// ExplainTopN bounds how many leading results get a gateway-generated
	// explanation per request.
	ExplainTopN int
}

// ApplyDefaults fills in zero values with production defaults.
func (c *Config) ApplyDefaults() {
	if c.DefaultWeights == (Weights{}) {
		c.DefaultWeights = DefaultWeights
	}
	if c.MinSimilarity == 0 {
		c.MinSimilarity = 0.70
	}
	if c.MaxTopK == 0 {
		c.MaxTopK = 100
	}
	if c.ExplainTopN == 0 {
		c.ExplainTopN = 5
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if _, err := c.DefaultWeights.Normalize(); err != nil {
		return err
	}
	if c.MinSimilarity < -1 || c.MinSimilarity > 1 {
		return fmt.Errorf("min similarity must be in [-1, 1], got %v", c.MinSimilarity)
	}
	if c.MaxTopK <= 0 {
		return fmt.Errorf("max top k must be positive, got %d", c.MaxTopK)
	}
	return nil
}

// Request describes one matching invocation. Weights and MinSimilarity
// are optional overrides; nil falls through to organization defaults and
// then the engine configuration.
type Request struct {
	// Category is the query entity's category. Results come from the
	// counterpart category.
	Category   entity.Category
	ExternalID string

	TopK          int
	MinSimilarity *float64
	Filters       map[string]string
	Weights       *Weights
}

// Match is one ranked result.
type Match struct {
	Rank       int
	Entity     *entity.Entity
	Similarity float64
	Composite  float64
	Breakdown  SkillBreakdown

	// Summary is always present, built from the coverage breakdown.
	Summary string

	// Explanation is gateway-generated for the leading results and falls
	// back to the templated summary when the gateway fails. Nil outside
	// the explained prefix.
	Explanation *Explanation
}

// Result is the full response for one matching request.
type Result struct {
	Query   *entity.Entity
	Weights Weights
	Matches []Match
}

// Engine ranks counterpart entities for a query entity.
type Engine struct {
	store     EntityReader
	index     vectorstore.Index
	explainer Explainer
	config    Config
	logger    *zap.Logger
}

// NewEngine creates a matching engine. The explainer may be nil, in which
// case every result carries only the templated summary.
func NewEngine(config Config, entities EntityReader, index vectorstore.Index, explainer Explainer, logger *zap.Logger) (*Engine, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating matching config: %w", err)
	}
	if entities == nil || index == nil {
		return nil, errors.New("entity reader and index are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:     entities,
		index:     index,
		explainer: explainer,
		config:    config,
		logger:    logger,
	}, nil
}

// Match resolves the query entity, retrieves similar counterparts, scores
// and ranks them, and attaches explanations to the leading prefix.
func (e *Engine) Match(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Engine.Match")
	defer span.End()
	span.SetAttributes(
		attribute.String("category", string(req.Category)),
		attribute.Int("top_k", req.TopK),
	)

	start := time.Now()
	result, err := e.match(ctx, req)
	Duration.WithLabelValues(string(req.Category)).Observe(time.Since(start).Seconds())
	if err != nil {
		Requests.WithLabelValues(string(req.Category), "error").Inc()
		span.RecordError(err)
		return nil, err
	}
	Requests.WithLabelValues(string(req.Category), "success").Inc()
	return result, nil
}

func (e *Engine) match(ctx context.Context, req Request) (*Result, error) {
	if !req.Category.Valid() {
		return nil, fmt.Errorf("%w: %q", entity.ErrInvalidCategory, req.Category)
	}

	query, err := e.store.GetEntity(ctx, req.Category, req.ExternalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s %s", ErrNotFound, req.Category, req.ExternalID)
		}
		return nil, fmt.Errorf("loading query entity: %w", err)
	}
	if !query.Embedded() {
		return nil, fmt.Errorf("%w: %s %s", ErrNotEmbedded, req.Category, req.ExternalID)
	}

	weights, err := e.resolveWeights(ctx, req, query)
	if err != nil {
		return nil, err
	}

	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > e.config.MaxTopK {
		topK = e.config.MaxTopK
	}
	floor := e.config.MinSimilarity
	if req.MinSimilarity != nil {
		floor = *req.MinSimilarity
	}

	vector, err := e.index.Fetch(ctx, vectorstore.CollectionFor(req.Category), *query.VectorRef)
	if err != nil {
		if errors.Is(err, vectorstore.ErrVectorNotFound) {
			// The row claims a vector the index does not hold. Treat as
			// not embedded so the caller can resubmit the entity.
			e.logger.Warn("vector ref without live vector",
				zap.String("category", string(req.Category)),
				zap.String("entity_id", query.ID.String()))
			return nil, fmt.Errorf("%w: %s %s", ErrNotEmbedded, req.Category, req.ExternalID)
		}
		return nil, fmt.Errorf("fetching query vector: %w", err)
	}

	fetchK := topK * overFetchFactor
	if fetchK < minFetchK {
		fetchK = minFetchK
	}
	if fetchK > maxFetchK {
		fetchK = maxFetchK
	}

	counterpart := req.Category.Counterpart()
	hits, err := e.index.Search(ctx, vectorstore.CollectionFor(counterpart), vector, fetchK, floor, req.Filters)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", counterpart, err)
	}

	ids := make([]uuid.UUID, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.EntityID)
	}
	entities, err := e.store.GetEntitiesByIDs(ctx, counterpart, ids)
	if err != nil {
		return nil, fmt.Errorf("loading %d candidates: %w", len(ids), err)
	}

	matches := e.score(query, hits, entities, weights, floor, topK)
	e.explain(ctx, query, matches)

	e.logger.Debug("matching request complete",
		zap.String("category", string(req.Category)),
		zap.String("external_id", req.ExternalID),
		zap.Int("retrieved", len(hits)),
		zap.Int("returned", len(matches)))

	return &Result{Query: query, Weights: weights, Matches: matches}, nil
}

// resolveWeights picks request weights over the query job's organization
// defaults over the engine configuration, then normalizes.
func (e *Engine) resolveWeights(ctx context.Context, req Request, query *entity.Entity) (Weights, error) {
	if req.Weights != nil {
		return req.Weights.Normalize()
	}
	if query.Category == entity.CategoryJob && query.OrgID != uuid.Nil {
		org, err := e.store.GetOrganizationByID(ctx, query.OrgID)
		if err == nil && org.DefaultWeights != nil {
			return FromMap(org.DefaultWeights).Normalize()
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return Weights{}, fmt.Errorf("loading organization weights: %w", err)
		}
	}
	return e.config.DefaultWeights.Normalize()
}

// score joins hits against their entity rows, computes coverage and
// composite scores, sorts deterministically, re-checks the similarity
// floor, and truncates to topK.
func (e *Engine) score(query *entity.Entity, hits []vectorstore.Hit, entities map[uuid.UUID]*entity.Entity, weights Weights, floor float64, topK int) []Match {
	scored := make([]Match, 0, len(hits))
	for _, hit := range hits {
		ent, ok := entities[hit.EntityID]
		if !ok {
			// Vector without a live row. The sweep will reconcile it;
			// never surface it to the caller.
			e.logger.Warn("search hit without entity row",
				zap.String("entity_id", hit.EntityID.String()))
			continue
		}

		var breakdown SkillBreakdown
		if query.Category == entity.CategoryJob {
			breakdown = ComputeBreakdown(ent.Attributes.Skills, query.Attributes.RequiredSkills, query.Attributes.PreferredSkills)
		} else {
			breakdown = ComputeBreakdown(query.Attributes.Skills, ent.Attributes.RequiredSkills, ent.Attributes.PreferredSkills)
		}

		composite := weights.Similarity*hit.Similarity +
			weights.RequiredSkills*breakdown.RequiredCoverage +
			weights.PreferredSkills*breakdown.PreferredCoverage

		scored = append(scored, Match{
			Entity:     ent,
			Similarity: hit.Similarity,
			Composite:  composite,
			Breakdown:  breakdown,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Composite != scored[j].Composite {
			return scored[i].Composite > scored[j].Composite
		}
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Entity.ID.String() < scored[j].Entity.ID.String()
	})

	matches := make([]Match, 0, topK)
	for _, m := range scored {
		if m.Similarity < floor {
			continue
		}
		m.Rank = len(matches) + 1
		m.Summary = TemplateSummary(m.Similarity, m.Breakdown, m.Composite)
		matches = append(matches, m)
		if len(matches) == topK {
			break
		}
	}
	return matches
}

// explain attaches gateway explanations to the leading prefix. Gateway
// failure degrades to the templated summary, never fails the request.
func (e *Engine) explain(ctx context.Context, query *entity.Entity, matches []Match) {
	if e.explainer == nil {
		return
	}
	for i := range matches {
		if i >= e.config.ExplainTopN {
			break
		}
		m := &matches[i]
		expl, err := e.explainer.Explain(ctx, query, m.Entity, m.Breakdown, m.Similarity)
		if err != nil || expl == nil {
			if err != nil {
				e.logger.Debug("explanation gateway failed, using template",
					zap.Int("rank", m.Rank),
					zap.Error(err))
			}
			m.Explanation = &Explanation{Summary: m.Summary}
			continue
		}
		m.Explanation = expl
	}
}
