// Package consumer drives the indexer from Kafka: page-crawled events are
// indexed one at a time and crawl-complete events trigger the sweep.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aerospike-examples/hybrid-search/internal/indexer"
	"github.com/aerospike-examples/hybrid-search/internal/ingestion"
	apperrors "github.com/aerospike-examples/hybrid-search/pkg/errors"
	"github.com/aerospike-examples/hybrid-search/pkg/kafka"
)

// Indexer is the part of indexer.Engine the handlers need.
type Indexer interface {
	IndexDocument(ctx context.Context, page indexer.Page) (indexer.IndexResult, error)
	FinishCrawl(ctx context.Context, crawlID string, expected int, wait time.Duration) (indexer.SweepReport, error)
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandlePage returns a MessageHandler indexing page-crawled events.
// Undecodable events are logged and dropped. Indexing failures are returned
// so the message is left uncommitted.
func HandlePage(engine Indexer) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.PageEvent](value)
		if err != nil {
			logger.Error("failed to decode page event", "error", err, "key", string(key))
			return nil
		}
		res, err := engine.IndexDocument(ctx, indexer.Page{
			URL:            event.URL,
			Title:          event.Title,
			Description:    event.Description,
			Body:           event.Body,
			GeneratedIndex: event.GeneratedIndex,
			CrawlID:        event.CrawlID,
		})
		if err != nil {
			return err
		}
		logger.Debug("page processed", "url", res.URL, "outcome", res.Outcome, "chunks", res.Chunks)
		return nil
	}
}

// HandleCrawlComplete returns a MessageHandler that sweeps once every page of
// the crawl has been processed. A crawl that cannot be swept in time is
// logged and skipped; sweeping later would race the next crawl.
func HandleCrawlComplete(engine Indexer, wait time.Duration) kafka.MessageHandler {
	logger := slog.Default().With("component", "crawl-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.CrawlCompleteEvent](value)
		if err != nil {
			logger.Error("failed to decode crawl-complete event", "error", err, "key", string(key))
			return nil
		}
		logger.Info("crawl complete, waiting for pages", "crawl_id", event.CrawlID, "pages", event.Pages)
		report, err := engine.FinishCrawl(ctx, event.CrawlID, event.Pages, wait)
		if err != nil {
			if errors.Is(err, apperrors.ErrSweepInFlight) {
				logger.Warn("crawl not swept", "crawl_id", event.CrawlID, "error", err)
				return nil
			}
			return err
		}
		logger.Info("crawl swept",
			"crawl_id", event.CrawlID,
			"removed", report.Removed,
			"reset", report.Reset,
			"chunks_deleted", report.ChunksDeleted,
		)
		return nil
	}
}
