package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// EmbeddingText builds the canonical text representation of an entity for
// the embedding gateway. A stable rendering matters: the fingerprint of
// this text decides whether an update triggers re-embedding.
func EmbeddingText(e *Entity) string {
	if e.Category == CategoryJob {
		return jobEmbeddingText(e)
	}
	return candidateEmbeddingText(e)
}

func jobEmbeddingText(e *Entity) string {
	var parts []string
	if e.Title != "" {
		parts = append(parts, "Job Title: "+e.Title)
	}
	if len(e.Attributes.RequiredSkills) > 0 {
		parts = append(parts, "Required Skills: "+strings.Join(e.Attributes.RequiredSkills, ", "))
	}
	if len(e.Attributes.PreferredSkills) > 0 {
		parts = append(parts, "Preferred Skills: "+strings.Join(e.Attributes.PreferredSkills, ", "))
	}
	if e.Attributes.EducationLevel != "" {
		parts = append(parts, "Education: "+e.Attributes.EducationLevel)
	}
	if e.Attributes.ExperienceYears > 0 {
		parts = append(parts, "Experience: "+formatYears(e.Attributes.ExperienceYears))
	}
	if len(e.Attributes.Locations) > 0 {
		parts = append(parts, "Location: "+strings.Join(e.Attributes.Locations, ", "))
	}
	if e.Attributes.JobType != "" {
		parts = append(parts, "Type: "+e.Attributes.JobType)
	}
	return strings.Join(parts, ". ")
}

func candidateEmbeddingText(e *Entity) string {
	var parts []string
	if len(e.Attributes.Skills) > 0 {
		parts = append(parts, "Skills: "+strings.Join(e.Attributes.Skills, ", "))
	}
	if e.Attributes.EducationLevel != "" {
		parts = append(parts, "Education: "+e.Attributes.EducationLevel)
	}
	if e.Attributes.ExperienceYears > 0 {
		parts = append(parts, "Experience: "+formatYears(e.Attributes.ExperienceYears))
	}
	if len(e.Attributes.Locations) > 0 {
		parts = append(parts, "Preferred Locations: "+strings.Join(e.Attributes.Locations, ", "))
	}
	if e.Summary != "" {
		parts = append(parts, "Summary: "+e.Summary)
	}
	return strings.Join(parts, ". ")
}

func formatYears(years float64) string {
	if years == float64(int(years)) {
		return fmt.Sprintf("%d years", int(years))
	}
	return strconv.FormatFloat(years, 'f', 1, 64) + " years"
}

// Fingerprint hashes the model version and canonical text behind a vector.
// An unchanged fingerprint means an update can skip re-embedding.
func Fingerprint(modelVersion, text string) string {
	sum := sha256.Sum256([]byte(modelVersion + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
