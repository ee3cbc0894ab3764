// Package cli implements hybridctl, the operator tool for the search core:
// index creation, local batch indexing, sweeps, totals and resyncs, and ad
// hoc queries.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aerospike-examples/hybrid-search/internal/embedding"
	"github.com/aerospike-examples/hybrid-search/internal/indexer"
	"github.com/aerospike-examples/hybrid-search/internal/indexer/tokenizer"
	"github.com/aerospike-examples/hybrid-search/internal/searcher"
	"github.com/aerospike-examples/hybrid-search/internal/searcher/assembler"
	"github.com/aerospike-examples/hybrid-search/internal/searcher/cache"
	"github.com/aerospike-examples/hybrid-search/internal/searcher/executor"
	"github.com/aerospike-examples/hybrid-search/internal/storage/backend"
	"github.com/aerospike-examples/hybrid-search/pkg/config"
	"github.com/aerospike-examples/hybrid-search/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "hybridctl",
	Short: "Operate the hybrid search index",
	Long: `hybridctl runs maintenance tasks against the key-value store and vector
index used by the search services: creating the vector index, indexing pages
from a JSONL file, sweeping stale documents, recomputing corpus totals,
resyncing document meta and postings, and running queries.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(logger.New(os.Stderr, "hybridctl", logLevel, "text"))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/development.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

// Execute runs the command line. SIGINT and SIGTERM cancel the running
// command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// app holds the collaborators a command opens from the configuration.
type app struct {
	cfg       *config.Config
	backends  *backend.Backends
	embedder  embedding.Embedder
	lifecycle *indexer.Manager
}

func openApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	backends, err := backend.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	embedder, err := embedding.New(cfg.Embedding, cfg.Vector.Dimensions, nil)
	if err != nil {
		backends.Close()
		return nil, err
	}
	return &app{
		cfg:       cfg,
		backends:  backends,
		embedder:  embedder,
		lifecycle: indexer.NewManager(backends.Store, backends.Vectors, nil),
	}, nil
}

func (a *app) engine() (*indexer.Engine, error) {
	return indexer.NewEngine(a.cfg.Indexer, a.lifecycle, a.backends.Store, a.backends.Vectors,
		a.embedder, tokenizer.Default{}, nil)
}

func (a *app) searchService() *searcher.Service {
	embeddings := cache.New(a.backends.Store, a.embedder, nil)
	return searcher.New(
		executor.NewKeyword(a.backends.Store, a.cfg.Search.MaxResults),
		executor.NewVector(embeddings, a.backends.Vectors, a.cfg.Vector.DistanceThreshold, a.cfg.Vector.QueryTimeout),
		assembler.New(a.backends.Store),
		a.cfg.Search,
		false,
		nil,
	)
}

func (a *app) Close() {
	if err := a.backends.Close(); err != nil {
		slog.Warn("closing storage", "error", err)
	}
}
