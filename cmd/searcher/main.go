package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aerospike-examples/hybrid-search/internal/embedding"
	"github.com/aerospike-examples/hybrid-search/internal/searcher"
	"github.com/aerospike-examples/hybrid-search/internal/searcher/assembler"
	"github.com/aerospike-examples/hybrid-search/internal/searcher/cache"
	"github.com/aerospike-examples/hybrid-search/internal/searcher/executor"
	"github.com/aerospike-examples/hybrid-search/internal/searcher/handler"
	"github.com/aerospike-examples/hybrid-search/internal/storage/backend"
	"github.com/aerospike-examples/hybrid-search/pkg/config"
	"github.com/aerospike-examples/hybrid-search/pkg/health"
	"github.com/aerospike-examples/hybrid-search/pkg/logger"
	"github.com/aerospike-examples/hybrid-search/pkg/metrics"
	"github.com/aerospike-examples/hybrid-search/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup("searcher", cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port)

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	backends, err := backend.Open(cfg)
	if err != nil {
		slog.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer backends.Close()

	embedder, err := embedding.New(cfg.Embedding, cfg.Vector.Dimensions, m)
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}

	embeddings := cache.New(backends.Store, embedder, m)
	svc := searcher.New(
		executor.NewKeyword(backends.Store, cfg.Search.MaxResults),
		executor.NewVector(embeddings, backends.Vectors, cfg.Vector.DistanceThreshold, cfg.Vector.QueryTimeout),
		assembler.New(backends.Store),
		cfg.Search,
		cfg.Tracing.Enabled,
		m,
	)
	h := handler.New(svc, embeddings, cfg.Search)

	checker := health.NewChecker()
	backends.RegisterHealth(checker)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/v1/search/", h.Search)
	mux.HandleFunc("GET /search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Search.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Search.RateLimit, time.Minute)
		defer limiter.Stop()
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.CORS(middleware.SearchCORSConfig())(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
