package matching

import (
	"sort"

	"github.com/fyrsmithlabs/matchd/internal/entity"
)

// SkillBreakdown is the rule-based coverage analysis of one candidate
// against one job's stated requirements. The matched and missing lists
// are sorted so identical inputs always produce identical output.
type SkillBreakdown struct {
	RequiredMatched  []string `json:"required_skills_matched"`
	RequiredMissing  []string `json:"required_skills_missing"`
	PreferredMatched []string `json:"preferred_skills_matched"`
	PreferredMissing []string `json:"preferred_skills_missing"`

	RequiredTotal  int `json:"required_total_count"`
	PreferredTotal int `json:"preferred_total_count"`

	// RequiredCoverage is |matched| / |required|, or 1.0 when the job
	// states no required skills: an entity with no requirements imposes
	// no skill penalty. PreferredCoverage follows the same rule.
	RequiredCoverage  float64 `json:"required_coverage"`
	PreferredCoverage float64 `json:"preferred_coverage"`
}

// ComputeBreakdown intersects the candidate's skills with a job's required
// and preferred skill sets. All inputs pass through skill normalization
// and hygiene filtering first.
func ComputeBreakdown(candidateSkills, requiredSkills, preferredSkills []string) SkillBreakdown {
	candidate := entity.SkillSet(candidateSkills)
	required := entity.SkillSet(requiredSkills)
	preferred := entity.SkillSet(preferredSkills)

	reqMatched, reqMissing := intersect(candidate, required)
	prefMatched, prefMissing := intersect(candidate, preferred)

	return SkillBreakdown{
		RequiredMatched:   reqMatched,
		RequiredMissing:   reqMissing,
		PreferredMatched:  prefMatched,
		PreferredMissing:  prefMissing,
		RequiredTotal:     len(required),
		PreferredTotal:    len(preferred),
		RequiredCoverage:  coverage(len(reqMatched), len(required)),
		PreferredCoverage: coverage(len(prefMatched), len(preferred)),
	}
}

func coverage(matched, total int) float64 {
	if total == 0 {
		return 1.0
	}
	return float64(matched) / float64(total)
}

// intersect splits wanted into the skills the candidate has and the ones
// it lacks, both sorted ascending.
func intersect(have, wanted map[string]struct{}) (matched, missing []string) {
	matched = make([]string, 0, len(wanted))
	missing = make([]string, 0, len(wanted))
	for skill := range wanted {
		if _, ok := have[skill]; ok {
			matched = append(matched, skill)
		} else {
			missing = append(missing, skill)
		}
	}
	sort.Strings(matched)
	sort.Strings(missing)
	return matched, missing
}
