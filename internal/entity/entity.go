// Package entity defines the domain records shared by the store, the
// matching engine, and the lifecycle coordinator.
package entity

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for entity validation.
var (
	// ErrInvalidCategory indicates an unknown entity category.
	ErrInvalidCategory = errors.New("invalid entity category")

	// ErrInvalidAttributes indicates canonical attributes that fail schema checks.
	ErrInvalidAttributes = errors.New("invalid canonical attributes")
)

// Category distinguishes the two matchable populations.
type Category string

const (
	// CategoryJob is a job posting.
	CategoryJob Category = "job"

	// CategoryCandidate is a candidate profile.
	CategoryCandidate Category = "candidate"
)

// Valid reports whether the category is known.
func (c Category) Valid() bool {
	return c == CategoryJob || c == CategoryCandidate
}

// Counterpart returns the opposite category (jobs match candidates and
// vice versa).
func (c Category) Counterpart() Category {
	if c == CategoryJob {
		return CategoryCandidate
	}
	return CategoryJob
}

// Attributes are the structured fields used for scoring. They are produced
// by the upstream structurer; matchd validates shape, not parsing quality.
type Attributes struct {
	RequiredSkills  []string `json:"required_skills,omitempty"`
	PreferredSkills []string `json:"preferred_skills,omitempty"`
	Skills          []string `json:"skills,omitempty"`
	ExperienceYears float64  `json:"experience_years,omitempty"`
	EducationLevel  string   `json:"education_level,omitempty"`
	Locations       []string `json:"locations,omitempty"`
	JobType         string   `json:"job_type,omitempty"`
}

// Validate performs the schema checks matchd applies at the boundary.
func (a Attributes) Validate(category Category) error {
	if a.ExperienceYears < 0 {
		return fmt.Errorf("%w: experience_years must be >= 0, got %v", ErrInvalidAttributes, a.ExperienceYears)
	}
	for _, set := range [][]string{a.RequiredSkills, a.PreferredSkills, a.Skills} {
		for _, s := range set {
			if s == "" {
				return fmt.Errorf("%w: skills must be non-empty strings", ErrInvalidAttributes)
			}
		}
	}
	if category == CategoryCandidate && len(a.Skills) == 0 {
		return fmt.Errorf("%w: candidate requires at least one skill", ErrInvalidAttributes)
	}
	return nil
}

// Entity is a job posting or candidate profile with at most one live
// vector representation.
type Entity struct {
	// ID is the system-generated identifier, stable for the entity's lifetime.
	ID uuid.UUID

	// ExternalID is the caller-supplied, anonymized identifier. Unique per category.
	ExternalID string

	// Category is job or candidate.
	Category Category

	// OrgID links a job to its organization. Unset for candidates.
	OrgID uuid.UUID

	// Title is the job title. Empty for candidates.
	Title string

	// Summary is the candidate profile summary. Empty for jobs.
	Summary string

	// Attributes are the canonical scoring fields.
	Attributes Attributes

	// VectorRef is the point id of the entity's current vector in the
	// index. Nil until the first successful embedding.
	VectorRef *uuid.UUID

	// Fingerprint is the hash of the model version and canonical text that
	// produced the current vector. Used to detect staleness.
	Fingerprint string

	// EmbeddingModel is the model version behind the current vector.
	EmbeddingModel string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Embedded reports whether the entity has a live vector representation.
func (e *Entity) Embedded() bool {
	return e.VectorRef != nil
}

// Organization owns job postings and optionally a default set of ranking
// weights for its matching requests.
type Organization struct {
	ID         uuid.UUID
	ExternalID string
	Name       string

	// DefaultWeights overrides the global ranking weights for this
	// organization's requests when the caller supplies none. Stored as
	// {similarity, required_skills, preferred_skills}; nil means inherit.
	DefaultWeights map[string]float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Application links a candidate to an organization and optionally a
// specific job. Cascade-deleted with either side.
type Application struct {
	ID          uuid.UUID
	CandidateID uuid.UUID
	OrgID       uuid.UUID
	JobID       uuid.UUID // zero when the application targets the org only
	Status      string
	AppliedAt   time.Time
	CreatedAt   time.Time
}

// MatchEvent is a sampled audit record of one ranked result. It is owned
// by the lifecycle coordinator and pruned on its own retention window,
// independent of the source entities' lifetimes.
type MatchEvent struct {
	ID             uuid.UUID
	QueryEntityID  uuid.UUID
	ResultEntityID uuid.UUID
	Similarity     float64
	CompositeScore float64
	Rank           int
	CreatedAt      time.Time
}
