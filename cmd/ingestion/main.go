// Command ingestion starts the crawler ingress HTTP service.
//
// The crawler posts pages to POST /api/v1/pages (or batches to
// POST /api/v1/pages/batch) and signals the end of a crawl with
// POST /api/v1/crawls/complete. Pages are validated and published to Kafka
// for the indexer.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
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

	"github.com/aerospike-examples/hybrid-search/internal/ingestion/handler"
	"github.com/aerospike-examples/hybrid-search/internal/ingestion/publisher"
	"github.com/aerospike-examples/hybrid-search/pkg/config"
	"github.com/aerospike-examples/hybrid-search/pkg/health"
	"github.com/aerospike-examples/hybrid-search/pkg/kafka"
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
	logger.Setup("ingestion", cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion service", "port", cfg.Ingestion.Port)

	m := metrics.New(nil)

	pages := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.PageCrawled)
	defer pages.Close()
	complete := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CrawlComplete)
	defer complete.Close()
	slog.Info("kafka producers initialized",
		"pages_topic", cfg.Kafka.Topics.PageCrawled,
		"complete_topic", cfg.Kafka.Topics.CrawlComplete,
	)

	h := handler.New(publisher.New(pages, complete))
	checker := health.NewChecker()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/pages", h.Page)
	mux.HandleFunc("POST /api/v1/pages/batch", h.PageBatch)
	mux.HandleFunc("POST /api/v1/crawls/complete", h.CrawlComplete)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Ingestion.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Ingestion.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Ingestion.ReadTimeout,
		WriteTimeout: cfg.Ingestion.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Ingestion.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
