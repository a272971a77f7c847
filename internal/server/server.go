// Package server provides the HTTP API for matchd.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/matchd/internal/entity"
	"github.com/fyrsmithlabs/matchd/internal/lifecycle"
	"github.com/fyrsmithlabs/matchd/internal/matching"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Matcher is the matching engine surface the server exposes.
type Matcher interface {
	Match(ctx context.Context, req matching.Request) (*matching.Result, error)
}

// Lifecycle is the coordinator surface the server exposes.
type Lifecycle interface {
	UpsertEntity(ctx context.Context, input lifecycle.UpsertInput) (*entity.Entity, error)
	Erase(ctx context.Context, category entity.Category, externalID string) error
	RecordMatchEvents(ctx context.Context, result *matching.Result) error
	RecordApplication(ctx context.Context, candidateExternalID, jobExternalID, status string) (*entity.Application, error)
}

// Server provides HTTP endpoints for matchd.
type Server struct {
	echo        *echo.Echo
	engine      Matcher
	coordinator Lifecycle
	logger      *zap.Logger
	config      *Config
}

// NewServer creates a new HTTP server.
func NewServer(engine Matcher, coordinator Lifecycle, logger *zap.Logger, cfg *Config) (*Server, error) {
	if engine == nil || coordinator == nil {
		return nil, fmt.Errorf("engine and coordinator are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:        e,
		engine:      engine,
		coordinator: coordinator,
		logger:      logger,
		config:      cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	// Health check and metrics
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := s.echo.Group("/api/v1")
	v1.POST("/jobs", s.handleUpsertJob)
	v1.POST("/candidates", s.handleUpsertCandidate)
	v1.DELETE("/jobs/:external_id", s.handleEraseJob)
	v1.DELETE("/candidates/:external_id", s.handleEraseCandidate)
	v1.POST("/applications", s.handleRecordApplication)
	v1.POST("/matching/candidates", s.handleMatchCandidates)
	v1.POST("/matching/jobs", s.handleMatchJobs)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
