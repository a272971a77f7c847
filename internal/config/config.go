// Package config provides configuration loading for matchd.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig indicates configuration that fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration for the matchd daemon.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Index     IndexConfig     `koanf:"index"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Insights  InsightsConfig  `koanf:"insights"`
	Matching  MatchingConfig  `koanf:"matching"`
	Retention RetentionConfig `koanf:"retention"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// DatabaseConfig holds the entity store settings.
type DatabaseConfig struct {
	// Path is the SQLite database file. ":memory:" is accepted for tests.
	Path string `koanf:"path"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	// Backend selects the index implementation: "qdrant" or "chromem".
	Backend string `koanf:"backend"`

	// Host and Port locate the Qdrant gRPC endpoint (port 6334, not the
	// HTTP REST port). Ignored for the chromem backend.
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// Path is the chromem persistence directory. Ignored for qdrant.
	Path string `koanf:"path"`

	// VectorSize is the embedding dimensionality. Must match the
	// embedding model's output; vectors of any other length are rejected.
	VectorSize int `koanf:"vector_size"`

	UseTLS bool `koanf:"use_tls"`
}

// EmbeddingConfig holds embedding gateway settings.
type EmbeddingConfig struct {
	// BaseURL is the OpenAI-compatible endpoint (OpenAI or a local TEI server).
	BaseURL string `koanf:"base_url"`

	// Model is the embedding model version. Part of the fingerprint.
	Model string `koanf:"model"`

	APIKey string `koanf:"api_key"`

	// Timeout bounds a single embed call.
	Timeout time.Duration `koanf:"timeout"`

	// MaxRetries bounds retries on rate-limit and timeout errors.
	MaxRetries int `koanf:"max_retries"`
}

// InsightsConfig holds explanation gateway settings.
type InsightsConfig struct {
	Enabled bool   `koanf:"enabled"`
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`

	// TopN bounds how many ranked results get a generated explanation.
	// Results beyond the prefix get the templated summary.
	TopN int `koanf:"top_n"`

	// Timeout bounds a single explain call.
	Timeout time.Duration `koanf:"timeout"`
}

// MatchingConfig holds ranking defaults.
type MatchingConfig struct {
	SimilarityWeight float64 `koanf:"similarity_weight"`
	RequiredWeight   float64 `koanf:"required_weight"`
	PreferredWeight  float64 `koanf:"preferred_weight"`

	// MinSimilarity is the default raw-similarity floor.
	MinSimilarity float64 `koanf:"min_similarity"`

	// MaxTopK caps caller-requested result sizes.
	MaxTopK int `koanf:"max_top_k"`
}

// RetentionConfig holds retention sweep settings.
type RetentionConfig struct {
	// EntityWindow is how long an entity may go without updates before the
	// sweep erases it. Zero disables entity sweeps.
	EntityWindow time.Duration `koanf:"entity_window"`

	// AuditWindow is the independent retention window for match events.
	AuditWindow time.Duration `koanf:"audit_window"`

	// BatchSize bounds the number of entities erased per sweep batch.
	BatchSize int `koanf:"batch_size"`

	// Interval is the time between scheduled sweeps.
	Interval time.Duration `koanf:"interval"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// NewDefaultConfig returns a config with production-ready defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Path: "matchd.db",
		},
		Index: IndexConfig{
			Backend:    "qdrant",
			Host:       "localhost",
			Port:       6334,
			VectorSize: 1536,
		},
		Embedding: EmbeddingConfig{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "text-embedding-3-large",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Insights: InsightsConfig{
			Enabled: false,
			Model:   "gemini-2.5-flash",
			TopN:    5,
			Timeout: 15 * time.Second,
		},
		Matching: MatchingConfig{
			SimilarityWeight: 0.6,
			RequiredWeight:   0.3,
			PreferredWeight:  0.1,
			MinSimilarity:    0.70,
			MaxTopK:          100,
		},
		Retention: RetentionConfig{
			EntityWindow: 365 * 24 * time.Hour,
			AuditWindow:  90 * 24 * time.Hour,
			BatchSize:    100,
			Interval:     24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port: %d", ErrInvalidConfig, c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path required", ErrInvalidConfig)
	}
	switch c.Index.Backend {
	case "qdrant":
		if c.Index.Host == "" {
			return fmt.Errorf("%w: index host required", ErrInvalidConfig)
		}
		if c.Index.Port <= 0 || c.Index.Port > 65535 {
			return fmt.Errorf("%w: invalid index port: %d", ErrInvalidConfig, c.Index.Port)
		}
	case "chromem":
		if c.Index.Path == "" {
			return fmt.Errorf("%w: index path required for chromem backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown index backend: %q", ErrInvalidConfig, c.Index.Backend)
	}
	if c.Index.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("%w: embedding base URL required", ErrInvalidConfig)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("%w: embedding model required", ErrInvalidConfig)
	}
	if c.Embedding.MaxRetries < 0 {
		return fmt.Errorf("%w: embedding max retries must be >= 0", ErrInvalidConfig)
	}
	if c.Insights.Enabled && c.Insights.APIKey == "" {
		return fmt.Errorf("%w: insights api key required when insights are enabled", ErrInvalidConfig)
	}
	if c.Matching.SimilarityWeight < 0 || c.Matching.RequiredWeight < 0 || c.Matching.PreferredWeight < 0 {
		return fmt.Errorf("%w: ranking weights must be >= 0", ErrInvalidConfig)
	}
	if c.Matching.MinSimilarity < -1 || c.Matching.MinSimilarity > 1 {
		return fmt.Errorf("%w: min similarity must be in [-1, 1]", ErrInvalidConfig)
	}
	if c.Matching.MaxTopK <= 0 {
		return fmt.Errorf("%w: max top_k must be positive", ErrInvalidConfig)
	}
	if c.Retention.BatchSize <= 0 {
		return fmt.Errorf("%w: retention batch size must be positive", ErrInvalidConfig)
	}
	if c.Retention.Interval <= 0 {
		return fmt.Errorf("%w: retention interval must be positive", ErrInvalidConfig)
	}
	return nil
}
