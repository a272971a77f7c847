package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/matchd/internal/embeddings"
	"github.com/fyrsmithlabs/matchd/internal/entity"
	"github.com/fyrsmithlabs/matchd/internal/lifecycle"
	"github.com/fyrsmithlabs/matchd/internal/matching"
	"github.com/fyrsmithlabs/matchd/internal/store"
	"github.com/fyrsmithlabs/matchd/internal/vectorstore"
)

// UpsertJobRequest is the request body for POST /api/v1/jobs.
type UpsertJobRequest struct {
	ExternalID    string            `json:"external_id"`
	OrgExternalID string            `json:"org_external_id"`
	OrgName       string            `json:"org_name,omitempty"`
	Title         string            `json:"title"`
	Attributes    entity.Attributes `json:"attributes"`
}

// UpsertCandidateRequest is the request body for POST /api/v1/candidates.
type UpsertCandidateRequest struct {
	ExternalID string            `json:"external_id"`
	Summary    string            `json:"summary,omitempty"`
	Attributes entity.Attributes `json:"attributes"`
}

// UpsertResponse is the response body for entity submissions.
type UpsertResponse struct {
	EntityID   string `json:"entity_id"`
	ExternalID string `json:"external_id"`
	Embedded   bool   `json:"embedded"`
}

// MatchRequest is the request body for the matching endpoints.
type MatchRequest struct {
	ExternalID    string            `json:"external_id"`
	TopK          int               `json:"top_k,omitempty"`
	MinSimilarity *float64          `json:"min_similarity,omitempty"`
	Filters       map[string]string `json:"filters,omitempty"`
	Weights       *matching.Weights `json:"ranking_weights,omitempty"`
}

// MatchEntry is one ranked result in a matching response.
type MatchEntry struct {
	Rank        int                     `json:"rank"`
	ExternalID  string                  `json:"external_id"`
	Title       string                  `json:"title,omitempty"`
	Similarity  float64                 `json:"similarity"`
	Score       float64                 `json:"score"`
	Breakdown   matching.SkillBreakdown `json:"skills_breakdown"`
	Summary     string                  `json:"summary"`
	Explanation *matching.Explanation   `json:"explanation,omitempty"`
}

// MatchResponse is the response body for the matching endpoints.
type MatchResponse struct {
	QueryExternalID string           `json:"query_external_id"`
	Weights         matching.Weights `json:"ranking_weights"`
	Matches         []MatchEntry     `json:"matches"`
}

func (s *Server) handleUpsertJob(c echo.Context) error {
	var req UpsertJobRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return s.upsert(c, lifecycle.UpsertInput{
		Category:      entity.CategoryJob,
		ExternalID:    req.ExternalID,
		OrgExternalID: req.OrgExternalID,
		OrgName:       req.OrgName,
		Title:         req.Title,
		Attributes:    req.Attributes,
	})
}

func (s *Server) handleUpsertCandidate(c echo.Context) error {
	var req UpsertCandidateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return s.upsert(c, lifecycle.UpsertInput{
		Category:   entity.CategoryCandidate,
		ExternalID: req.ExternalID,
		Summary:    req.Summary,
		Attributes: req.Attributes,
	})
}

func (s *Server) upsert(c echo.Context, input lifecycle.UpsertInput) error {
	e, err := s.coordinator.UpsertEntity(c.Request().Context(), input)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, UpsertResponse{
		EntityID:   e.ID.String(),
		ExternalID: e.ExternalID,
		Embedded:   e.Embedded(),
	})
}

// ApplicationRequest is the request body for POST /api/v1/applications.
type ApplicationRequest struct {
	CandidateExternalID string `json:"candidate_external_id"`
	JobExternalID       string `json:"job_external_id"`
	Status              string `json:"status,omitempty"`
}

// ApplicationResponse is the response body for recorded applications.
type ApplicationResponse struct {
	ApplicationID string `json:"application_id"`
	Status        string `json:"status"`
}

func (s *Server) handleRecordApplication(c echo.Context) error {
	var req ApplicationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.CandidateExternalID == "" || req.JobExternalID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "candidate_external_id and job_external_id are required")
	}

	app, err := s.coordinator.RecordApplication(c.Request().Context(), req.CandidateExternalID, req.JobExternalID, req.Status)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusCreated, ApplicationResponse{
		ApplicationID: app.ID.String(),
		Status:        app.Status,
	})
}

func (s *Server) handleEraseJob(c echo.Context) error {
	return s.erase(c, entity.CategoryJob)
}

func (s *Server) handleEraseCandidate(c echo.Context) error {
	return s.erase(c, entity.CategoryCandidate)
}

func (s *Server) erase(c echo.Context, category entity.Category) error {
	externalID := c.Param("external_id")
	if externalID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "external_id is required")
	}
	if err := s.coordinator.Erase(c.Request().Context(), category, externalID); err != nil {
		return s.mapError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleMatchCandidates ranks candidates for a job.
func (s *Server) handleMatchCandidates(c echo.Context) error {
	return s.match(c, entity.CategoryJob)
}

// handleMatchJobs ranks jobs for a candidate.
func (s *Server) handleMatchJobs(c echo.Context) error {
	return s.match(c, entity.CategoryCandidate)
}

func (s *Server) match(c echo.Context, category entity.Category) error {
	var req MatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ExternalID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "external_id is required")
	}

	result, err := s.engine.Match(c.Request().Context(), matching.Request{
		Category:      category,
		ExternalID:    req.ExternalID,
		TopK:          req.TopK,
		MinSimilarity: req.MinSimilarity,
		Filters:       req.Filters,
		Weights:       req.Weights,
	})
	if err != nil {
		return s.mapError(c, err)
	}

	// Audit failure never loses the caller's result.
	if err := s.coordinator.RecordMatchEvents(c.Request().Context(), result); err != nil {
		s.logger.Warn("recording match events failed", zap.Error(err))
	}

	resp := MatchResponse{
		QueryExternalID: result.Query.ExternalID,
		Weights:         result.Weights,
		Matches:         make([]MatchEntry, 0, len(result.Matches)),
	}
	for _, m := range result.Matches {
		title := m.Entity.Title
		if m.Entity.Category == entity.CategoryCandidate {
			title = ""
		}
		resp.Matches = append(resp.Matches, MatchEntry{
			Rank:        m.Rank,
			ExternalID:  m.Entity.ExternalID,
			Title:       title,
			Similarity:  m.Similarity,
			Score:       m.Composite,
			Breakdown:   m.Breakdown,
			Summary:     m.Summary,
			Explanation: m.Explanation,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// mapError translates domain errors to HTTP status codes: precondition
// failures are 4xx, transient infrastructure failures are 503.
func (s *Server) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, matching.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, matching.ErrNotEmbedded):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, matching.ErrInvalidWeights),
		errors.Is(err, entity.ErrInvalidCategory),
		errors.Is(err, entity.ErrInvalidAttributes),
		errors.Is(err, embeddings.ErrInvalidInput),
		errors.Is(err, vectorstore.ErrDimensionMismatch):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case lifecycle.Retryable(err), errors.Is(err, vectorstore.ErrIndexUnavailable):
		s.logger.Error("retryable service failure", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		s.logger.Error("internal error", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
