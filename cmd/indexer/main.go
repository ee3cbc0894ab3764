package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aerospike-examples/hybrid-search/internal/embedding"
	"github.com/aerospike-examples/hybrid-search/internal/indexer"
	"github.com/aerospike-examples/hybrid-search/internal/indexer/consumer"
	"github.com/aerospike-examples/hybrid-search/internal/indexer/tokenizer"
	"github.com/aerospike-examples/hybrid-search/internal/storage/backend"
	"github.com/aerospike-examples/hybrid-search/pkg/config"
	"github.com/aerospike-examples/hybrid-search/pkg/kafka"
	"github.com/aerospike-examples/hybrid-search/pkg/logger"
	"github.com/aerospike-examples/hybrid-search/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup("indexer", cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer service", "workers", cfg.Indexer.Workers)

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := backends.Vectors.CreateIndex(ctx); err != nil {
		slog.Error("failed to create vector index", "error", err)
		os.Exit(1)
	}

	embedder, err := embedding.New(cfg.Embedding, cfg.Vector.Dimensions, m)
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}

	lifecycle := indexer.NewManager(backends.Store, backends.Vectors, m)
	engine, err := indexer.NewEngine(cfg.Indexer, lifecycle, backends.Store, backends.Vectors, embedder, tokenizer.Default{}, m)
	if err != nil {
		slog.Error("failed to create indexing engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	// Crawl-complete events wait for pages to drain, so they get their own
	// group and reader instead of blocking the page stream.
	completeCfg := cfg.Kafka
	completeCfg.ConsumerGroup = cfg.Kafka.ConsumerGroup + "-complete"

	pages := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.PageCrawled, consumer.HandlePage(engine)))
	completions := consumer.New(kafka.NewConsumer(completeCfg, cfg.Kafka.Topics.CrawlComplete,
		consumer.HandleCrawlComplete(engine, cfg.Indexer.SweepWait)))

	slog.Info("indexer service ready, consuming from kafka",
		"pages_topic", cfg.Kafka.Topics.PageCrawled,
		"complete_topic", cfg.Kafka.Topics.CrawlComplete,
		"group", cfg.Kafka.ConsumerGroup,
	)

	var wg sync.WaitGroup
	for _, c := range []*consumer.IndexConsumer{pages, completions} {
		wg.Add(1)
		go func(c *consumer.IndexConsumer) {
			defer wg.Done()
			if err := c.Start(ctx); err != nil {
				slog.Error("consumer error", "error", err)
			}
		}(c)
	}
	wg.Wait()

	slog.Info("indexer service stopped")
}
