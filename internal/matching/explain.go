package matching

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/matchd/internal/entity"
)

// Explanation is an optional natural-language enrichment of one ranked
// result. Absence never removes the result from the ranked output.
type Explanation struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights,omitempty"`
}

// Explainer produces an explanation for one query/counterpart pair.
// Implementations are best-effort: any error degrades to the templated
// summary, it is never surfaced to the caller.
type Explainer interface {
	Explain(ctx context.Context, query, counterpart *entity.Entity, breakdown SkillBreakdown, similarity float64) (*Explanation, error)
}

// TemplateSummary builds a rule-based one-line summary from the coverage
// breakdown. Used for every result and as the fallback when the
// explanation gateway fails.
func TemplateSummary(similarity float64, breakdown SkillBreakdown, composite float64) string {
	var parts []string
	if breakdown.RequiredTotal > 0 {
		parts = append(parts, fmt.Sprintf("%d/%d required skills", len(breakdown.RequiredMatched), breakdown.RequiredTotal))
	}
	if breakdown.PreferredTotal > 0 {
		parts = append(parts, fmt.Sprintf("%d/%d preferred skills", len(breakdown.PreferredMatched), breakdown.PreferredTotal))
	}
	switch {
	case similarity >= 0.85:
		parts = append(parts, "strong semantic alignment")
	case similarity >= 0.75:
		parts = append(parts, "good semantic fit")
	}
	if len(parts) == 0 {
		return fmt.Sprintf("Match score: %.0f%%", composite*100)
	}
	return "Matched " + strings.Join(parts, ", ") + "."
}
