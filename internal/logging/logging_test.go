package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("json production logger", func(t *testing.T) {
		logger, err := New("info", "json")
		require.NoError(t, err)
		require.NotNil(t, logger)
	})

	t.Run("console development logger", func(t *testing.T) {
		logger, err := New("debug", "console")
		require.NoError(t, err)
		require.NotNil(t, logger)
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := New("verbose", "json")
		require.Error(t, err)
	})
}

func TestRedactedString(t *testing.T) {
	field := RedactedString("summary", "Five years building Go services.")
	assert.Equal(t, "summary", field.Key)
	assert.Equal(t, "[REDACTED:32]", field.String)
	assert.NotContains(t, field.String, "Go services")
}
