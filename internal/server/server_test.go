package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/matchd/internal/entity"
	"github.com/fyrsmithlabs/matchd/internal/lifecycle"
	"github.com/fyrsmithlabs/matchd/internal/matching"
	"github.com/fyrsmithlabs/matchd/internal/store"
	"github.com/fyrsmithlabs/matchd/internal/vectorstore"
)

type fakeMatcher struct {
	result  *matching.Result
	err     error
	lastReq matching.Request
}

func (f *fakeMatcher) Match(_ context.Context, req matching.Request) (*matching.Result, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeLifecycle struct {
	entity         *entity.Entity
	upsertErr      error
	eraseErr       error
	recordErr      error
	applicationErr error

	lastUpsert lifecycle.UpsertInput
	erased     []string
	recorded   int
}

func (f *fakeLifecycle) UpsertEntity(_ context.Context, input lifecycle.UpsertInput) (*entity.Entity, error) {
	f.lastUpsert = input
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	return f.entity, nil
}

func (f *fakeLifecycle) Erase(_ context.Context, category entity.Category, externalID string) error {
	f.erased = append(f.erased, string(category)+"/"+externalID)
	return f.eraseErr
}

func (f *fakeLifecycle) RecordMatchEvents(_ context.Context, _ *matching.Result) error {
	f.recorded++
	return f.recordErr
}

func (f *fakeLifecycle) RecordApplication(_ context.Context, candidateExternalID, jobExternalID, status string) (*entity.Application, error) {
	if f.applicationErr != nil {
		return nil, f.applicationErr
	}
	if status == "" {
		status = "applied"
	}
	return &entity.Application{ID: uuid.New(), Status: status}, nil
}

func newTestServer(t *testing.T, m *fakeMatcher, l *fakeLifecycle) *Server {
	t.Helper()
	s, err := NewServer(m, l, zap.NewNop(), &Config{Host: "localhost", Port: 0})
	require.NoError(t, err)
	return s
}

func doJSON(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func embeddedEntity(category entity.Category, externalID string) *entity.Entity {
	ref := uuid.New()
	return &entity.Entity{
		ID:         uuid.New(),
		ExternalID: externalID,
		Category:   category,
		Title:      "Backend Engineer",
		VectorRef:  &ref,
	}
}

func TestNewServer(t *testing.T) {
	t.Run("requires engine and coordinator", func(t *testing.T) {
		_, err := NewServer(nil, &fakeLifecycle{}, zap.NewNop(), nil)
		require.Error(t, err)

		_, err = NewServer(&fakeMatcher{}, nil, zap.NewNop(), nil)
		require.Error(t, err)
	})

	t.Run("requires logger", func(t *testing.T) {
		_, err := NewServer(&fakeMatcher{}, &fakeLifecycle{}, nil, nil)
		require.Error(t, err)
	})

	t.Run("nil config gets defaults", func(t *testing.T) {
		s, err := NewServer(&fakeMatcher{}, &fakeLifecycle{}, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, 8080, s.config.Port)
	})
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeMatcher{}, &fakeLifecycle{})
	rec := doJSON(s, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeMatcher{}, &fakeLifecycle{})
	rec := doJSON(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpsertJob(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		lc := &fakeLifecycle{entity: embeddedEntity(entity.CategoryJob, "job-1")}
		s := newTestServer(t, &fakeMatcher{}, lc)

		rec := doJSON(s, http.MethodPost, "/api/v1/jobs", `{
			"external_id": "job-1",
			"org_external_id": "org-1",
			"org_name": "Acme",
			"title": "Backend Engineer",
			"attributes": {"required_skills": ["go", "sql"]}
		}`)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp UpsertResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "job-1", resp.ExternalID)
		assert.True(t, resp.Embedded)

		assert.Equal(t, entity.CategoryJob, lc.lastUpsert.Category)
		assert.Equal(t, "org-1", lc.lastUpsert.OrgExternalID)
		assert.Equal(t, "Acme", lc.lastUpsert.OrgName)
		assert.Equal(t, []string{"go", "sql"}, lc.lastUpsert.Attributes.RequiredSkills)
	})

	t.Run("malformed body", func(t *testing.T) {
		s := newTestServer(t, &fakeMatcher{}, &fakeLifecycle{})
		rec := doJSON(s, http.MethodPost, "/api/v1/jobs", `{"external_id": `)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid attributes", func(t *testing.T) {
		lc := &fakeLifecycle{upsertErr: fmt.Errorf("validating: %w", entity.ErrInvalidAttributes)}
		s := newTestServer(t, &fakeMatcher{}, lc)
		rec := doJSON(s, http.MethodPost, "/api/v1/jobs", `{"external_id": "job-1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("index down", func(t *testing.T) {
		lc := &fakeLifecycle{upsertErr: fmt.Errorf("indexing: %w", vectorstore.ErrIndexUnavailable)}
		s := newTestServer(t, &fakeMatcher{}, lc)
		rec := doJSON(s, http.MethodPost, "/api/v1/jobs", `{"external_id": "job-1"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestUpsertCandidate(t *testing.T) {
	lc := &fakeLifecycle{entity: embeddedEntity(entity.CategoryCandidate, "cand-1")}
	s := newTestServer(t, &fakeMatcher{}, lc)

	rec := doJSON(s, http.MethodPost, "/api/v1/candidates", `{
		"external_id": "cand-1",
		"summary": "Backend developer with five years of Go.",
		"attributes": {"skills": ["go", "postgresql"]}
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, entity.CategoryCandidate, lc.lastUpsert.Category)
	assert.Equal(t, "Backend developer with five years of Go.", lc.lastUpsert.Summary)
}

func TestRecordApplication(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		s := newTestServer(t, &fakeMatcher{}, &fakeLifecycle{})
		rec := doJSON(s, http.MethodPost, "/api/v1/applications", `{
			"candidate_external_id": "cand-1",
			"job_external_id": "job-1",
			"status": "interviewing"
		}`)

		require.Equal(t, http.StatusCreated, rec.Code)
		var resp ApplicationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "interviewing", resp.Status)
		assert.NotEmpty(t, resp.ApplicationID)
	})

	t.Run("missing ids", func(t *testing.T) {
		s := newTestServer(t, &fakeMatcher{}, &fakeLifecycle{})
		rec := doJSON(s, http.MethodPost, "/api/v1/applications", `{"candidate_external_id": "cand-1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown entity", func(t *testing.T) {
		lc := &fakeLifecycle{applicationErr: fmt.Errorf("loading job job-9: %w", store.ErrNotFound)}
		s := newTestServer(t, &fakeMatcher{}, lc)
		rec := doJSON(s, http.MethodPost, "/api/v1/applications", `{
			"candidate_external_id": "cand-1",
			"job_external_id": "job-9"
		}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestErase(t *testing.T) {
	t.Run("deletes and returns no content", func(t *testing.T) {
		lc := &fakeLifecycle{}
		s := newTestServer(t, &fakeMatcher{}, lc)

		rec := doJSON(s, http.MethodDelete, "/api/v1/candidates/cand-1", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, []string{"candidate/cand-1"}, lc.erased)
	})

	t.Run("retryable failure maps to 503", func(t *testing.T) {
		lc := &fakeLifecycle{eraseErr: fmt.Errorf("row removal: %w", lifecycle.ErrRetryableFailure)}
		s := newTestServer(t, &fakeMatcher{}, lc)

		rec := doJSON(s, http.MethodDelete, "/api/v1/jobs/job-1", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestMatchCandidates(t *testing.T) {
	query := embeddedEntity(entity.CategoryJob, "job-1")
	cand := embeddedEntity(entity.CategoryCandidate, "cand-1")
	cand.Title = ""
	result := &matching.Result{
		Query:   query,
		Weights: matching.DefaultWeights,
		Matches: []matching.Match{{
			Rank:       1,
			Entity:     cand,
			Similarity: 0.82,
			Composite:  0.78,
			Breakdown: matching.SkillBreakdown{
				RequiredMatched:  []string{"go"},
				RequiredTotal:    1,
				RequiredCoverage: 1.0,
			},
			Summary: "Matched 1/1 required skills, good semantic fit.",
		}},
	}

	t.Run("success", func(t *testing.T) {
		m := &fakeMatcher{result: result}
		lc := &fakeLifecycle{}
		s := newTestServer(t, m, lc)

		rec := doJSON(s, http.MethodPost, "/api/v1/matching/candidates", `{
			"external_id": "job-1",
			"top_k": 5,
			"filters": {"education_level": "masters"},
			"ranking_weights": {"similarity": 0.5, "required_skills": 0.5}
		}`)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp MatchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "job-1", resp.QueryExternalID)
		require.Len(t, resp.Matches, 1)
		assert.Equal(t, 1, resp.Matches[0].Rank)
		assert.Equal(t, "cand-1", resp.Matches[0].ExternalID)
		assert.InDelta(t, 0.78, resp.Matches[0].Score, 1e-9)
		assert.Equal(t, 1.0, resp.Matches[0].Breakdown.RequiredCoverage)

		assert.Equal(t, entity.CategoryJob, m.lastReq.Category)
		assert.Equal(t, 5, m.lastReq.TopK)
		assert.Equal(t, "masters", m.lastReq.Filters["education_level"])
		require.NotNil(t, m.lastReq.Weights)
		assert.Equal(t, 0.5, m.lastReq.Weights.Similarity)

		assert.Equal(t, 1, lc.recorded, "match results are recorded for audit")
	})

	t.Run("audit failure does not fail the request", func(t *testing.T) {
		lc := &fakeLifecycle{recordErr: errors.New("audit table locked")}
		s := newTestServer(t, &fakeMatcher{result: result}, lc)

		rec := doJSON(s, http.MethodPost, "/api/v1/matching/candidates", `{"external_id": "job-1"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing external id", func(t *testing.T) {
		s := newTestServer(t, &fakeMatcher{}, &fakeLifecycle{})
		rec := doJSON(s, http.MethodPost, "/api/v1/matching/candidates", `{"top_k": 5}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown query", func(t *testing.T) {
		m := &fakeMatcher{err: fmt.Errorf("job nope: %w", matching.ErrNotFound)}
		s := newTestServer(t, m, &fakeLifecycle{})
		rec := doJSON(s, http.MethodPost, "/api/v1/matching/candidates", `{"external_id": "nope"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("not yet embedded", func(t *testing.T) {
		m := &fakeMatcher{err: fmt.Errorf("job job-1: %w", matching.ErrNotEmbedded)}
		s := newTestServer(t, m, &fakeLifecycle{})
		rec := doJSON(s, http.MethodPost, "/api/v1/matching/candidates", `{"external_id": "job-1"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("invalid weights", func(t *testing.T) {
		m := &fakeMatcher{err: fmt.Errorf("resolving weights: %w", matching.ErrInvalidWeights)}
		s := newTestServer(t, m, &fakeLifecycle{})
		rec := doJSON(s, http.MethodPost, "/api/v1/matching/candidates", `{"external_id": "job-1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("index unavailable", func(t *testing.T) {
		m := &fakeMatcher{err: fmt.Errorf("search: %w", vectorstore.ErrIndexUnavailable)}
		s := newTestServer(t, m, &fakeLifecycle{})
		rec := doJSON(s, http.MethodPost, "/api/v1/matching/candidates", `{"external_id": "job-1"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("unexpected error is 500", func(t *testing.T) {
		m := &fakeMatcher{err: errors.New("boom")}
		s := newTestServer(t, m, &fakeLifecycle{})
		rec := doJSON(s, http.MethodPost, "/api/v1/matching/candidates", `{"external_id": "job-1"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestMatchJobs(t *testing.T) {
	query := embeddedEntity(entity.CategoryCandidate, "cand-1")
	query.Title = ""
	job := embeddedEntity(entity.CategoryJob, "job-1")
	result := &matching.Result{
		Query:   query,
		Weights: matching.DefaultWeights,
		Matches: []matching.Match{{Rank: 1, Entity: job, Similarity: 0.9, Composite: 0.85}},
	}

	m := &fakeMatcher{result: result}
	s := newTestServer(t, m, &fakeLifecycle{})

	rec := doJSON(s, http.MethodPost, "/api/v1/matching/jobs", `{"external_id": "cand-1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, entity.CategoryCandidate, m.lastReq.Category)

	var resp MatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, "Backend Engineer", resp.Matches[0].Title, "job titles are returned to candidates")
}
