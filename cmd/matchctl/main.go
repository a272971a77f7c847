// Package main is the entry point for the matchctl admin CLI.
//
// matchctl operates directly on a matchd deployment's entity store and
// vector index for operations that should not wait for the daemon's
// schedule: on-demand retention sweeps, erasure requests, and store
// statistics.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/matchd/internal/config"
	"github.com/fyrsmithlabs/matchd/internal/embeddings"
	"github.com/fyrsmithlabs/matchd/internal/lifecycle"
	"github.com/fyrsmithlabs/matchd/internal/logging"
	"github.com/fyrsmithlabs/matchd/internal/store"
	"github.com/fyrsmithlabs/matchd/internal/vectorstore"
)

// version is set at build time via ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "matchctl",
	Short:   "Admin operations for a matchd deployment",
	Version: version,
	Long: `matchctl runs administrative operations against a matchd deployment's
stores: on-demand retention sweeps, right-to-erasure requests, and
store statistics. It reads the same config file and MATCHD_* environment
variables as the daemon.`,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: built-in defaults plus MATCHD_* env)")
}

// env builds the shared store/index/coordinator wiring for subcommands.
type env struct {
	cfg         *config.Config
	store       *store.Store
	index       vectorstore.Index
	coordinator *lifecycle.Coordinator
	logger      *zap.Logger
}

func (e *env) Close() {
	if e.index != nil {
		_ = e.index.Close()
	}
	if e.store != nil {
		_ = e.store.Close()
	}
	if e.logger != nil {
		_ = e.logger.Sync()
	}
}

func newEnv(cmd *cobra.Command) (*env, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, "console")
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	entities, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening entity store: %w", err)
	}

	var index vectorstore.Index
	switch cfg.Index.Backend {
	case "chromem":
		index, err = vectorstore.NewChromemIndex(vectorstore.ChromemConfig{
			Path:       cfg.Index.Path,
			VectorSize: cfg.Index.VectorSize,
		}, logger)
	case "qdrant":
		index, err = vectorstore.NewQdrantIndex(vectorstore.QdrantConfig{
			Host:       cfg.Index.Host,
			Port:       cfg.Index.Port,
			VectorSize: cfg.Index.VectorSize,
			UseTLS:     cfg.Index.UseTLS,
		})
	default:
		err = fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
	if err != nil {
		_ = entities.Close()
		return nil, fmt.Errorf("connecting to vector index: %w", err)
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
		_ = index.Close()
		_ = entities.Close()
		return nil, fmt.Errorf("creating embedding gateway: %w", err)
	}

	coordinator, err := lifecycle.NewCoordinator(lifecycle.Config{
		EntityWindow:  cfg.Retention.EntityWindow,
		AuditWindow:   cfg.Retention.AuditWindow,
		SweepInterval: cfg.Retention.Interval,
		BatchSize:     cfg.Retention.BatchSize,
	}, entities, index, gateway, logger)
	if err != nil {
		_ = index.Close()
		_ = entities.Close()
		return nil, fmt.Errorf("creating lifecycle coordinator: %w", err)
	}

	return &env{
		cfg:         cfg,
		store:       entities,
		index:       index,
		coordinator: coordinator,
		logger:      logger,
	}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
