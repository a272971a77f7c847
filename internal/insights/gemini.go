// Package insights generates natural-language match explanations with
// Gemini. It is a best-effort collaborator: the engine falls back to
// templated summaries whenever this package errors.
package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/fyrsmithlabs/matchd/internal/entity"
	"github.com/fyrsmithlabs/matchd/internal/matching"
)

const defaultModel = "gemini-2.5-flash"

// ErrInvalidConfig indicates missing or invalid generator configuration.
var ErrInvalidConfig = errors.New("invalid insights configuration")

// Config holds Gemini generator settings.
type Config struct {
	// APIKey authenticates against the Gemini API.
	APIKey string

	// Model is the Gemini model name.
	Model string

	// Timeout bounds each generation call.
	Timeout time.Duration
}

// ApplyDefaults fills in zero values with production defaults.
func (c *Config) ApplyDefaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Second
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: api key is required", ErrInvalidConfig)
	}
	return nil
}

// Generator produces match explanations through the Gemini API.
type Generator struct {
	client *genai.Client
	config Config
	logger *zap.Logger
}

var _ matching.Explainer = (*Generator)(nil)

// NewGenerator creates a Gemini-backed explainer.
func NewGenerator(ctx context.Context, config Config, logger *zap.Logger) (*Generator, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(config.APIKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &Generator{client: client, config: config, logger: logger}, nil
}

// response is the JSON shape we ask the model for.
type response struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
}

// Explain builds a match-analysis prompt from the two entities and the
// coverage breakdown and returns the model's summary and highlights.
func (g *Generator) Explain(ctx context.Context, query, counterpart *entity.Entity, breakdown matching.SkillBreakdown, similarity float64) (*matching.Explanation, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	prompt := buildPrompt(query, counterpart, breakdown, similarity)

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.config.Model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, fmt.Errorf("generating explanation: %w", err)
	}

	text := collectText(resp)
	if text == "" {
		return nil, errors.New("empty explanation response")
	}

	var parsed response
	if err := json.Unmarshal([]byte(text), &parsed); err != nil || parsed.Summary == "" {
		// Model returned prose instead of the requested JSON. Still usable.
		return &matching.Explanation{Summary: strings.TrimSpace(text)}, nil
	}
	return &matching.Explanation{
		Summary:    parsed.Summary,
		Highlights: parsed.Highlights,
	}, nil
}

func collectText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				b.WriteString(part.Text)
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func buildPrompt(query, counterpart *entity.Entity, breakdown matching.SkillBreakdown, similarity float64) string {
	job, candidate := query, counterpart
	if query.Category == entity.CategoryCandidate {
		job, candidate = counterpart, query
	}

	var b strings.Builder
	b.WriteString("You are an expert recruiting consultant analyzing a job/candidate match.\n\n")

	fmt.Fprintf(&b, "JOB POSTING:\n")
	fmt.Fprintf(&b, "- Title: %s\n", job.Title)
	fmt.Fprintf(&b, "- Required Skills: %s\n", strings.Join(job.Attributes.RequiredSkills, ", "))
	fmt.Fprintf(&b, "- Preferred Skills: %s\n", strings.Join(job.Attributes.PreferredSkills, ", "))
	if job.Attributes.EducationLevel != "" {
		fmt.Fprintf(&b, "- Education Requirement: %s\n", job.Attributes.EducationLevel)
	}

	fmt.Fprintf(&b, "\nCANDIDATE PROFILE:\n")
	if candidate.Summary != "" {
		fmt.Fprintf(&b, "- Summary: %s\n", candidate.Summary)
	}
	fmt.Fprintf(&b, "- Skills: %s\n", strings.Join(candidate.Attributes.Skills, ", "))
	if candidate.Attributes.EducationLevel != "" {
		fmt.Fprintf(&b, "- Education: %s\n", candidate.Attributes.EducationLevel)
	}
	if candidate.Attributes.ExperienceYears > 0 {
		fmt.Fprintf(&b, "- Experience: %.1f years\n", candidate.Attributes.ExperienceYears)
	}

	fmt.Fprintf(&b, "\nSEMANTIC SIMILARITY: %.0f%%\n", similarity*100)
	fmt.Fprintf(&b, "REQUIRED SKILLS MATCHED: %s\n", strings.Join(breakdown.RequiredMatched, ", "))
	fmt.Fprintf(&b, "REQUIRED SKILLS MISSING: %s\n", strings.Join(breakdown.RequiredMissing, ", "))
	fmt.Fprintf(&b, "PREFERRED SKILLS MATCHED: %s\n", strings.Join(breakdown.PreferredMatched, ", "))

	b.WriteString(`
Respond with JSON only:
{"summary": "two sentences on why this match works and where it falls short", "highlights": ["specific strength or gap", "..."]}
Be specific. Mention transferable skills where the exact skill is missing.`)

	return b.String()
}
