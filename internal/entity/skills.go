package entity

import "strings"

// maxSkillLength filters out requirement sentences masquerading as skills.
const maxSkillLength = 50

// skillNoisePrefixes mark strings that are requirement prose rather than
// skills ("Bachelor's degree in...", "experience with...").
var skillNoisePrefixes = []string{
	"bachelor", "master", "phd", "currently", "experience with",
	"knowledge of", "understanding of", "strong", "excellent",
	"proficiency in", "familiarity", "ability to", "minimum",
	"years of", "degree in",
}

// NormalizeSkill canonicalizes a skill string for set comparison.
func NormalizeSkill(skill string) string {
	return strings.ToLower(strings.TrimSpace(skill))
}

func validSkill(skill string) bool {
	if len(skill) > maxSkillLength {
		return false
	}
	lower := strings.ToLower(skill)
	for _, prefix := range skillNoisePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return true
}

// SkillSet builds a normalized set from a skill list, dropping entries
// that look like requirement sentences instead of skills.
func SkillSet(skills []string) map[string]struct{} {
	set := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		if validSkill(s) {
			set[NormalizeSkill(s)] = struct{}{}
		}
	}
	return set
}
