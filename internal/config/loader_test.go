package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Run("empty path yields defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "qdrant", cfg.Index.Backend)
		assert.Equal(t, 1536, cfg.Index.VectorSize)
		assert.Equal(t, 0.6, cfg.Matching.SimilarityWeight)
		assert.Equal(t, 0.70, cfg.Matching.MinSimilarity)
		assert.Equal(t, 365*24*time.Hour, cfg.Retention.EntityWindow)
		assert.Equal(t, 90*24*time.Hour, cfg.Retention.AuditWindow)
		assert.False(t, cfg.Insights.Enabled)
	})

	t.Run("missing file is not an error", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
	})
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9090
database:
  path: /var/lib/matchd/entities.db
index:
  backend: chromem
  path: /var/lib/matchd/index
  vector_size: 768
embedding:
  timeout: 45s
matching:
  min_similarity: 0.5
retention:
  entity_window: 720h
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/var/lib/matchd/entities.db", cfg.Database.Path)
	assert.Equal(t, "chromem", cfg.Index.Backend)
	assert.Equal(t, 768, cfg.Index.VectorSize)
	assert.Equal(t, 45*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 0.5, cfg.Matching.MinSimilarity)
	assert.Equal(t, 720*time.Hour, cfg.Retention.EntityWindow)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedding.Model)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Run("section-first mapping", func(t *testing.T) {
		t.Setenv("MATCHD_SERVER_PORT", "7070")
		t.Setenv("MATCHD_EMBEDDING_BASE_URL", "http://tei.local:8081/v1")
		t.Setenv("MATCHD_INDEX_VECTOR_SIZE", "384")

		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, 7070, cfg.Server.Port)
		assert.Equal(t, "http://tei.local:8081/v1", cfg.Embedding.BaseURL)
		assert.Equal(t, 384, cfg.Index.VectorSize)
	})

	t.Run("environment beats file", func(t *testing.T) {
		path := writeConfigFile(t, "server:\n  port: 9090\n")
		t.Setenv("MATCHD_SERVER_PORT", "7070")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Server.Port)
	})
}

func TestLoadRejectsBadInput(t *testing.T) {
	t.Run("invalid yaml", func(t *testing.T) {
		path := writeConfigFile(t, "server: [unclosed")
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("oversized file", func(t *testing.T) {
		path := writeConfigFile(t, "# "+strings.Repeat("x", maxConfigFileSize))
		_, err := Load(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("validation failure surfaces", func(t *testing.T) {
		path := writeConfigFile(t, "index:\n  backend: pinecone\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestConfigValidate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		require.NoError(t, NewDefaultConfig().Validate())
	})

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero server port", func(c *Config) { c.Server.Port = 0 }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"unknown backend", func(c *Config) { c.Index.Backend = "weaviate" }},
		{"qdrant without host", func(c *Config) { c.Index.Host = "" }},
		{"chromem without path", func(c *Config) { c.Index.Backend = "chromem"; c.Index.Path = "" }},
		{"zero vector size", func(c *Config) { c.Index.VectorSize = 0 }},
		{"empty embedding url", func(c *Config) { c.Embedding.BaseURL = "" }},
		{"empty embedding model", func(c *Config) { c.Embedding.Model = "" }},
		{"negative embedding retries", func(c *Config) { c.Embedding.MaxRetries = -1 }},
		{"insights enabled without key", func(c *Config) { c.Insights.Enabled = true; c.Insights.APIKey = "" }},
		{"negative ranking weight", func(c *Config) { c.Matching.RequiredWeight = -0.1 }},
		{"min similarity out of range", func(c *Config) { c.Matching.MinSimilarity = 1.5 }},
		{"zero max top_k", func(c *Config) { c.Matching.MaxTopK = 0 }},
		{"zero retention batch", func(c *Config) { c.Retention.BatchSize = 0 }},
		{"zero retention interval", func(c *Config) { c.Retention.Interval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
