package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aerospike-examples/hybrid-search/internal/ingestion"
	apperrors "github.com/aerospike-examples/hybrid-search/pkg/errors"
	"github.com/aerospike-examples/hybrid-search/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
}

func (r *recordingSink) Publish(ctx context.Context, event kafka.Event) error {
	return r.PublishBatch(ctx, []kafka.Event{event})
}

func (r *recordingSink) PublishBatch(ctx context.Context, events []kafka.Event) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	r.events = append(r.events, events...)
	r.mu.Unlock()
	return nil
}

func TestPublishPage_KeyedByURL(t *testing.T) {
	pages, complete := &recordingSink{}, &recordingSink{}
	p := New(pages, complete)

	resp, err := p.PublishPage(context.Background(), &ingestion.PageRequest{
		URL: "https://aerospike.com/docs/a", Title: "A", Body: "body", CrawlID: "c1",
	})

	require.NoError(t, err)
	assert.Equal(t, "QUEUED", resp.Status)
	require.Len(t, pages.events, 1)
	assert.Equal(t, "https://aerospike.com/docs/a", pages.events[0].Key)
	event := pages.events[0].Value.(ingestion.PageEvent)
	assert.Equal(t, "A", event.Title)
	assert.Equal(t, "c1", event.CrawlID)
	assert.False(t, event.CrawledAt.IsZero())
	assert.Equal(t, 1, p.Pending("c1"))
}

func TestCompleteCrawl_ReportsPageCount(t *testing.T) {
	pages, complete := &recordingSink{}, &recordingSink{}
	p := New(pages, complete)
	ctx := context.Background()

	_, err := p.PublishPages(ctx, []ingestion.PageRequest{
		{URL: "https://aerospike.com/a", CrawlID: "c1"},
		{URL: "https://aerospike.com/b", CrawlID: "c1"},
		{URL: "https://aerospike.com/c", CrawlID: "c2"},
	})
	require.NoError(t, err)
	_, err = p.PublishPage(ctx, &ingestion.PageRequest{URL: "https://aerospike.com/d", CrawlID: "c1"})
	require.NoError(t, err)

	event, err := p.CompleteCrawl(ctx, &ingestion.CrawlCompleteRequest{CrawlID: "c1"})

	require.NoError(t, err)
	assert.Equal(t, 3, event.Pages)
	require.Len(t, complete.events, 1)
	assert.Equal(t, "c1", complete.events[0].Key)
	assert.Zero(t, p.Pending("c1"))
	assert.Equal(t, 1, p.Pending("c2"))
}

func TestPublishPages_FailureCountsNothing(t *testing.T) {
	pages := &recordingSink{err: errors.New("broker down")}
	p := New(pages, &recordingSink{})

	_, err := p.PublishPages(context.Background(), []ingestion.PageRequest{{URL: "https://aerospike.com/a", CrawlID: "c1"}})

	assert.ErrorIs(t, err, apperrors.ErrBackendUnavailable)
	assert.Zero(t, p.Pending("c1"))
}

func TestCompleteCrawl_FailureKeepsCount(t *testing.T) {
	complete := &recordingSink{err: errors.New("broker down")}
	p := New(&recordingSink{}, complete)
	ctx := context.Background()
	_, err := p.PublishPage(ctx, &ingestion.PageRequest{URL: "https://aerospike.com/a", CrawlID: "c1"})
	require.NoError(t, err)

	_, err = p.CompleteCrawl(ctx, &ingestion.CrawlCompleteRequest{CrawlID: "c1"})

	assert.ErrorIs(t, err, apperrors.ErrBackendUnavailable)
	assert.Equal(t, 1, p.Pending("c1"))
}
