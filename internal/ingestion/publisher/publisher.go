// Package publisher publishes crawled pages and crawl-complete notifications
// to Kafka and counts the pages published per crawl.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aerospike-examples/hybrid-search/internal/ingestion"
	apperrors "github.com/aerospike-examples/hybrid-search/pkg/errors"
	"github.com/aerospike-examples/hybrid-search/pkg/kafka"
)

// EventSink is the producer side of one topic.
type EventSink interface {
	Publish(ctx context.Context, event kafka.Event) error
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Publisher sends page events keyed by URL and crawl-complete events keyed
// by crawl id.
type Publisher struct {
	pages    EventSink
	complete EventSink
	logger   *slog.Logger

	mu     sync.Mutex
	counts map[string]int
}

// New creates a Publisher writing pages and crawl-complete events to the
// given sinks.
func New(pages, complete EventSink) *Publisher {
	return &Publisher{
		pages:    pages,
		complete: complete,
		logger:   slog.Default().With("component", "publisher"),
		counts:   make(map[string]int),
	}
}

func pageEvent(req *ingestion.PageRequest, now time.Time) kafka.Event {
	return kafka.Event{
		Key: req.URL,
		Value: ingestion.PageEvent{
			URL:            req.URL,
			Title:          req.Title,
			Description:    req.Description,
			Body:           req.Body,
			GeneratedIndex: req.GeneratedIndex,
			CrawlID:        req.CrawlID,
			CrawledAt:      now,
		},
	}
}

// PublishPage queues one page for indexing.
func (p *Publisher) PublishPage(ctx context.Context, req *ingestion.PageRequest) (*ingestion.PageResponse, error) {
	if err := p.pages.Publish(ctx, pageEvent(req, time.Now().UTC())); err != nil {
		p.logger.Error("failed to publish page", "url", req.URL, "crawl_id", req.CrawlID, "error", err)
		return nil, apperrors.Unavailable("kafka", err)
	}
	p.count(req.CrawlID, 1)
	return &ingestion.PageResponse{
		URL:     req.URL,
		CrawlID: req.CrawlID,
		Status:  "QUEUED",
	}, nil
}

// PublishPages queues several pages in one write. Either all of them are
// published or none is counted.
func (p *Publisher) PublishPages(ctx context.Context, reqs []ingestion.PageRequest) ([]ingestion.PageResponse, error) {
	now := time.Now().UTC()
	events := make([]kafka.Event, len(reqs))
	for i := range reqs {
		events[i] = pageEvent(&reqs[i], now)
	}
	if err := p.pages.PublishBatch(ctx, events); err != nil {
		p.logger.Error("failed to publish page batch", "count", len(reqs), "error", err)
		return nil, apperrors.Unavailable("kafka", err)
	}
	resps := make([]ingestion.PageResponse, len(reqs))
	for i, req := range reqs {
		p.count(req.CrawlID, 1)
		resps[i] = ingestion.PageResponse{URL: req.URL, CrawlID: req.CrawlID, Status: "QUEUED"}
	}
	return resps, nil
}

func (p *Publisher) count(crawlID string, n int) {
	if crawlID == "" {
		return
	}
	p.mu.Lock()
	p.counts[crawlID] += n
	p.mu.Unlock()
}

// CompleteCrawl announces the end of a crawl together with the number of
// pages this instance published for it.
func (p *Publisher) CompleteCrawl(ctx context.Context, req *ingestion.CrawlCompleteRequest) (*ingestion.CrawlCompleteEvent, error) {
	p.mu.Lock()
	pages := p.counts[req.CrawlID]
	p.mu.Unlock()

	event := ingestion.CrawlCompleteEvent{
		CrawlID:     req.CrawlID,
		Pages:       pages,
		CompletedAt: time.Now().UTC(),
	}
	if err := p.complete.Publish(ctx, kafka.Event{Key: req.CrawlID, Value: event}); err != nil {
		p.logger.Error("failed to publish crawl completion", "crawl_id", req.CrawlID, "error", err)
		return nil, apperrors.Unavailable("kafka", err)
	}

	p.mu.Lock()
	delete(p.counts, req.CrawlID)
	p.mu.Unlock()
	p.logger.Info("crawl completed", "crawl_id", req.CrawlID, "pages", pages)
	return &event, nil
}

// Pending returns the pages published so far for crawlID.
func (p *Publisher) Pending(crawlID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[crawlID]
}

var _ EventSink = (*kafka.Producer)(nil)
