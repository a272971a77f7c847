package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSkill(t *testing.T) {
	assert.Equal(t, "python", NormalizeSkill("  Python "))
	assert.Equal(t, "c++", NormalizeSkill("C++"))
}

func TestSkillSet(t *testing.T) {
	t.Run("normalizes and deduplicates", func(t *testing.T) {
		set := SkillSet([]string{"Python", " python", "Docker"})
		assert.Len(t, set, 2)
		assert.Contains(t, set, "python")
		assert.Contains(t, set, "docker")
	})

	t.Run("filters requirement sentences", func(t *testing.T) {
		set := SkillSet([]string{
			"Python",
			"Bachelor's degree in Computer Science",
			"Strong communication skills",
			"experience with distributed systems at scale",
			"Minimum 3 years",
		})
		assert.Len(t, set, 1)
		assert.Contains(t, set, "python")
	})

	t.Run("filters over-long entries", func(t *testing.T) {
		long := "a skill description that rambles on for far longer than any real skill name would"
		set := SkillSet([]string{long, "Go"})
		assert.Len(t, set, 1)
		assert.Contains(t, set, "go")
	})

	t.Run("empty input yields empty set", func(t *testing.T) {
		assert.Empty(t, SkillSet(nil))
	})
}
