package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeBreakdown(t *testing.T) {
	t.Run("partial coverage", func(t *testing.T) {
		b := ComputeBreakdown(
			[]string{"Python", "FastAPI", "Docker", "Git", "Linux"},
			[]string{"Python", "FastAPI", "PostgreSQL", "Docker", "Git"},
			[]string{"Kubernetes", "AWS"},
		)
		assert.Equal(t, []string{"docker", "fastapi", "git", "python"}, b.RequiredMatched)
		assert.Equal(t, []string{"postgresql"}, b.RequiredMissing)
		assert.Empty(t, b.PreferredMatched)
		assert.ElementsMatch(t, []string{"kubernetes", "aws"}, b.PreferredMissing)
		assert.InDelta(t, 0.8, b.RequiredCoverage, 1e-9)
		assert.InDelta(t, 0.0, b.PreferredCoverage, 1e-9)
	})

	t.Run("no stated requirements impose no penalty", func(t *testing.T) {
		b := ComputeBreakdown([]string{"anything"}, nil, nil)
		assert.Equal(t, 1.0, b.RequiredCoverage)
		assert.Equal(t, 1.0, b.PreferredCoverage)
		assert.Zero(t, b.RequiredTotal)
	})

	t.Run("empty candidate against requirements", func(t *testing.T) {
		b := ComputeBreakdown(nil, []string{"Go"}, nil)
		assert.Equal(t, 0.0, b.RequiredCoverage)
		assert.Equal(t, []string{"go"}, b.RequiredMissing)
	})

	t.Run("case insensitive matching", func(t *testing.T) {
		b := ComputeBreakdown([]string{"PYTHON"}, []string{"python"}, nil)
		assert.Equal(t, 1.0, b.RequiredCoverage)
	})

	t.Run("requirement prose dropped before set arithmetic", func(t *testing.T) {
		b := ComputeBreakdown(
			[]string{"Python"},
			[]string{"Python", "Strong communication skills"},
			nil,
		)
		// The prose entry never counts as a requirement.
		assert.Equal(t, 1, b.RequiredTotal)
		assert.Equal(t, 1.0, b.RequiredCoverage)
	})

	t.Run("matched and missing lists are sorted", func(t *testing.T) {
		b := ComputeBreakdown(
			[]string{"zig", "ada", "c"},
			[]string{"zig", "c", "ada", "rust", "go"},
			nil,
		)
		assert.Equal(t, []string{"ada", "c", "zig"}, b.RequiredMatched)
		assert.Equal(t, []string{"go", "rust"}, b.RequiredMissing)
	})
}
