// Package embeddings provides the embedding gateway.
//
// Embedding generation is an external capability: a fallible, rate-limited
// call that turns canonical entity text into a fixed-length vector. The
// client wraps langchaingo's OpenAI-compatible embedder, which works
// against OpenAI or a local TEI (Text Embeddings Inference) server.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// Sentinel errors for embedding calls.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates text the model cannot embed. Not retried.
	ErrInvalidInput = errors.New("invalid embedding input")

	// ErrRateLimited indicates the provider rejected the call for quota.
	ErrRateLimited = errors.New("embedding rate limited")

	// ErrTimeout indicates the call exceeded its deadline.
	ErrTimeout = errors.New("embedding timed out")

	// ErrUnexpectedDimension indicates the provider returned a vector of
	// the wrong length. Never retried; nothing with the wrong dimension
	// may reach the index.
	ErrUnexpectedDimension = errors.New("unexpected embedding dimension")
)

// Gateway converts canonical entity text into a fixed-length vector.
type Gateway interface {
	// Embed returns the embedding for text. Retryable failures surface as
	// ErrRateLimited or ErrTimeout after the retry budget is spent.
	Embed(ctx context.Context, text string) ([]float32, error)

	// ModelVersion identifies the model; it feeds the fingerprint.
	ModelVersion() string

	// Dimensions is the fixed vector length of this deployment.
	Dimensions() int
}

// Config holds configuration for the embedding client.
type Config struct {
	// BaseURL is the OpenAI-compatible endpoint.
	BaseURL string

	// Model is the embedding model. Part of every fingerprint.
	Model string

	// APIKey is required for OpenAI; TEI ignores it.
	APIKey string

	// Dimensions is the expected vector length.
	Dimensions int

	// Timeout bounds one provider call.
	Timeout time.Duration

	// MaxRetries bounds retries on rate-limit and timeout.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled per retry.
	RetryBackoff time.Duration
}

// ApplyDefaults sets defaults for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("%w: dimensions required", ErrInvalidConfig)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// Client is the production Gateway on langchaingo.
type Client struct {
	embedder *lcembeddings.EmbedderImpl
	config   Config
	logger   *zap.Logger
}

// NewClient creates an embedding client.
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	apiKey := config.APIKey
	if apiKey == "" {
		// langchaingo requires a token; TEI ignores it.
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(config.BaseURL),
		openai.WithEmbeddingModel(config.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &Client{embedder: embedder, config: config, logger: logger}, nil
}

// ModelVersion identifies the configured model.
func (c *Client) ModelVersion() string {
	return c.config.Model
}

// Dimensions is the expected vector length.
func (c *Client) Dimensions() int {
	return c.config.Dimensions
}

// Embed generates the embedding for text with bounded timeout and a small
// retry budget on transient provider failures.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrInvalidInput)
	}

	backoff := c.config.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		vector, err := c.embedOnce(ctx, text)
		if err == nil {
			if len(vector) != c.config.Dimensions {
				return nil, fmt.Errorf("%w: got %d, expected %d", ErrUnexpectedDimension, len(vector), c.config.Dimensions)
			}
			return vector, nil
		}

		lastErr = classify(err)
		if !retryable(lastErr) {
			return nil, lastErr
		}
		if attempt == c.config.MaxRetries {
			break
		}

		c.logger.Warn("embedding call failed, retrying",
			zap.Int("attempt", attempt+1), zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("embedding canceled: %w", ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	return nil, fmt.Errorf("embedding failed after %d retries: %w", c.config.MaxRetries, lastErr)
}

func (c *Client) embedOnce(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	return c.embedder.EmbedQuery(callCtx, text)
}

// classify maps provider errors onto the gateway taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case isRateLimit(err):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	default:
		return err
	}
}

func isRateLimit(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(strings.ToLower(msg), "rate limit") ||
		strings.Contains(strings.ToLower(msg), "quota")
}

func retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout)
}

// Ensure Client implements Gateway.
var _ Gateway = (*Client)(nil)
