package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmbeddingText(t *testing.T) {
	t.Run("job", func(t *testing.T) {
		e := &Entity{
			Category: CategoryJob,
			Title:    "Backend Engineer",
			Attributes: Attributes{
				RequiredSkills:  []string{"Go", "PostgreSQL"},
				PreferredSkills: []string{"Kubernetes"},
				EducationLevel:  "bachelor",
				ExperienceYears: 3,
			},
		}
		got := EmbeddingText(e)
		assert.Equal(t, "Job Title: Backend Engineer. Required Skills: Go, PostgreSQL. Preferred Skills: Kubernetes. Education: bachelor. Experience: 3 years", got)
	})

	t.Run("candidate", func(t *testing.T) {
		e := &Entity{
			Category: CategoryCandidate,
			Summary:  "Systems programmer.",
			Attributes: Attributes{
				Skills:          []string{"Rust", "Linux"},
				ExperienceYears: 2.5,
			},
		}
		got := EmbeddingText(e)
		assert.Equal(t, "Skills: Rust, Linux. Experience: 2.5 years. Summary: Systems programmer.", got)
	})

	t.Run("empty fields are omitted", func(t *testing.T) {
		e := &Entity{Category: CategoryJob, Title: "Intern"}
		assert.Equal(t, "Job Title: Intern", EmbeddingText(e))
	})
}

func TestFingerprint(t *testing.T) {
	t.Run("stable for identical input", func(t *testing.T) {
		assert.Equal(t, Fingerprint("model-v1", "text"), Fingerprint("model-v1", "text"))
	})

	t.Run("changes with text", func(t *testing.T) {
		assert.NotEqual(t, Fingerprint("model-v1", "a"), Fingerprint("model-v1", "b"))
	})

	t.Run("changes with model version", func(t *testing.T) {
		assert.NotEqual(t, Fingerprint("model-v1", "a"), Fingerprint("model-v2", "a"))
	})

	t.Run("model and text do not collide across the separator", func(t *testing.T) {
		assert.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"))
	})
}

func TestAttributesValidate(t *testing.T) {
	t.Run("negative experience rejected", func(t *testing.T) {
		err := Attributes{ExperienceYears: -1}.Validate(CategoryJob)
		assert.ErrorIs(t, err, ErrInvalidAttributes)
	})

	t.Run("empty skill string rejected", func(t *testing.T) {
		err := Attributes{RequiredSkills: []string{"Go", ""}}.Validate(CategoryJob)
		assert.ErrorIs(t, err, ErrInvalidAttributes)
	})

	t.Run("candidate requires a skill", func(t *testing.T) {
		err := Attributes{}.Validate(CategoryCandidate)
		assert.ErrorIs(t, err, ErrInvalidAttributes)
	})

	t.Run("valid job attributes", func(t *testing.T) {
		err := Attributes{RequiredSkills: []string{"Go"}}.Validate(CategoryJob)
		assert.NoError(t, err)
	})
}
