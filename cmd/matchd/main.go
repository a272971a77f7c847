// Matchd is the job/candidate matching daemon.
//
// It keeps a relational entity store and a vector similarity index
// consistent through entity submissions, erasure requests, and scheduled
// retention sweeps, and serves ranked matching requests over HTTP.
//
// Usage:
//
//	# Start with defaults
//	matchd
//
//	# Start with a config file; any key can also come from MATCHD_* env vars
//	matchd -config /etc/matchd/config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/matchd/internal/config"
	"github.com/fyrsmithlabs/matchd/internal/embeddings"
	"github.com/fyrsmithlabs/matchd/internal/insights"
	"github.com/fyrsmithlabs/matchd/internal/lifecycle"
	"github.com/fyrsmithlabs/matchd/internal/logging"
	"github.com/fyrsmithlabs/matchd/internal/matching"
	"github.com/fyrsmithlabs/matchd/internal/server"
	"github.com/fyrsmithlabs/matchd/internal/store"
	"github.com/fyrsmithlabs/matchd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  matchd             Start the matchd daemon\n")
			fmt.Fprintf(os.Stderr, "  matchd version     Show version information\n")
			os.Exit(1)
		}
	}

	// Signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("matchd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run initializes all dependencies and blocks until context cancellation:
//  1. Loads and validates configuration
//  2. Initializes the logger
//  3. Opens the entity store and connects to the vector index
//  4. Creates the embedding gateway and optional insights generator
//  5. Wires the matching engine and the lifecycle coordinator
//  6. Starts the retention sweeper and the HTTP server
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting matchd",
		zap.Int("port", cfg.Server.Port),
		zap.String("index_backend", cfg.Index.Backend),
		zap.String("embedding_model", cfg.Embedding.Model))

	entities, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening entity store: %w", err)
	}
	defer entities.Close()

	index, err := newIndex(cfg, logger)
	if err != nil {
		return fmt.Errorf("connecting to vector index: %w", err)
	}
	defer index.Close()

	for _, collection := range []string{"jobs", "candidates"} {
		if err := index.EnsureCollection(ctx, collection); err != nil {
			return fmt.Errorf("ensuring collection %s: %w", collection, err)
		}
	}

	gateway, err := embeddings.NewClient(embeddings.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		Dimensions: cfg.Index.VectorSize,
		Timeout:    cfg.Embedding.Timeout,
		MaxRetries: cfg.Embedding.MaxRetries,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating embedding gateway: %w", err)
	}

	var explainer matching.Explainer
	if cfg.Insights.Enabled {
		generator, err := insights.NewGenerator(ctx, insights.Config{
			APIKey:  cfg.Insights.APIKey,
			Model:   cfg.Insights.Model,
			Timeout: cfg.Insights.Timeout,
		}, logger)
		if err != nil {
			// Explanations are best-effort; the templated summaries cover
			// for them.
			logger.Warn("insights generator unavailable, using templated summaries", zap.Error(err))
		} else {
			explainer = generator
		}
	}

	engine, err := matching.NewEngine(matching.Config{
		DefaultWeights: matching.Weights{
			Similarity:      cfg.Matching.SimilarityWeight,
			RequiredSkills:  cfg.Matching.RequiredWeight,
			PreferredSkills: cfg.Matching.PreferredWeight,
		},
		MinSimilarity: cfg.Matching.MinSimilarity,
		MaxTopK:       cfg.Matching.MaxTopK,
		ExplainTopN:   cfg.Insights.TopN,
	}, entities, index, explainer, logger)
	if err != nil {
		return fmt.Errorf("creating matching engine: %w", err)
	}

	coordinator, err := lifecycle.NewCoordinator(lifecycle.Config{
		EntityWindow:  cfg.Retention.EntityWindow,
		AuditWindow:   cfg.Retention.AuditWindow,
		SweepInterval: cfg.Retention.Interval,
		BatchSize:     cfg.Retention.BatchSize,
	}, entities, index, gateway, logger)
	if err != nil {
		return fmt.Errorf("creating lifecycle coordinator: %w", err)
	}

	go coordinator.Run(ctx)

	srv, err := server.NewServer(engine, coordinator, logger, &server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// newIndex selects the vector index backend from configuration.
func newIndex(cfg *config.Config, logger *zap.Logger) (vectorstore.Index, error) {
	switch cfg.Index.Backend {
	case "chromem":
		return vectorstore.NewChromemIndex(vectorstore.ChromemConfig{
			Path:       cfg.Index.Path,
			VectorSize: cfg.Index.VectorSize,
		}, logger)
	case "qdrant":
		return vectorstore.NewQdrantIndex(vectorstore.QdrantConfig{
			Host:       cfg.Index.Host,
			Port:       cfg.Index.Port,
			VectorSize: cfg.Index.VectorSize,
			UseTLS:     cfg.Index.UseTLS,
		})
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}
