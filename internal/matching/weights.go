package matching

import (
	"errors"
	"fmt"
)

// ErrInvalidWeights indicates a negative ranking weight. Surfaced to the
// caller immediately, never retried.
var ErrInvalidWeights = errors.New("invalid ranking weights")

// DefaultWeights are the global ranking defaults applied when neither the
// request nor the organization supplies its own.
var DefaultWeights = Weights{
	Similarity:      0.6,
	RequiredSkills:  0.3,
	PreferredSkills: 0.1,
}

// Weights controls the composite score. Values need not sum to 1 as
// supplied; Normalize rescales them. Immutable per request.
type Weights struct {
	Similarity      float64 `json:"similarity"`
	RequiredSkills  float64 `json:"required_skills"`
	PreferredSkills float64 `json:"preferred_skills"`
}

// Normalize rescales the weights so they sum to 1. All-zero input falls
// back to pure similarity ranking. Negative values are rejected.
func (w Weights) Normalize() (Weights, error) {
	if w.Similarity < 0 || w.RequiredSkills < 0 || w.PreferredSkills < 0 {
		return Weights{}, fmt.Errorf("%w: weights must be >= 0, got %+v", ErrInvalidWeights, w)
	}
	sum := w.Similarity + w.RequiredSkills + w.PreferredSkills
	if sum == 0 {
		return Weights{Similarity: 1}, nil
	}
	return Weights{
		Similarity:      w.Similarity / sum,
		RequiredSkills:  w.RequiredSkills / sum,
		PreferredSkills: w.PreferredSkills / sum,
	}, nil
}

// FromMap builds Weights from an organization's stored default map.
// Missing keys fall back to the global defaults.
func FromMap(m map[string]float64) Weights {
	w := DefaultWeights
	if m == nil {
		return w
	}
	if v, ok := m["similarity"]; ok {
		w.Similarity = v
	}
	if v, ok := m["required_skills"]; ok {
		w.RequiredSkills = v
	}
	if v, ok := m["preferred_skills"]; ok {
		w.PreferredSkills = v
	}
	return w
}
