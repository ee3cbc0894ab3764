// Package cache memoises query embeddings in the key-value store. Entries are
// keyed by the literal query string and never expire; the embedding of a
// string does not change while the model stays the same.
package cache

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/aerospike-examples/hybrid-search/internal/embedding"
	"github.com/aerospike-examples/hybrid-search/internal/storage"
	"github.com/aerospike-examples/hybrid-search/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// EmbeddingCache returns query embeddings, computing and storing them on a
// miss. Concurrent misses for the same query in one process share a single
// embedding call; separate processes may both compute and the last write
// wins, which is harmless since both wrote the same vector.
type EmbeddingCache struct {
	store    storage.EmbeddingCache
	embedder embedding.Embedder
	group    singleflight.Group
	metrics  *metrics.Metrics
	logger   *slog.Logger
	hits     atomic.Int64
	misses   atomic.Int64
}

// New builds the cache. m may be nil.
func New(store storage.EmbeddingCache, embedder embedding.Embedder, m *metrics.Metrics) *EmbeddingCache {
	return &EmbeddingCache{
		store:    store,
		embedder: embedder,
		metrics:  m,
		logger:   slog.Default().With("component", "embedding-cache"),
	}
}

// Get returns the cached embedding of query, if any. Store errors count as a
// miss.
func (c *EmbeddingCache) Get(ctx context.Context, query string) ([]float32, bool) {
	vec, ok, err := c.store.GetEmbedding(ctx, query)
	if err != nil {
		c.logger.Error("cache get failed", "query", query, "error", err)
		return nil, false
	}
	return vec, ok
}

// GetOrCompute returns the embedding of query and whether it came from the
// cache.
func (c *EmbeddingCache) GetOrCompute(ctx context.Context, query string) ([]float32, bool, error) {
	if vec, ok := c.Get(ctx, query); ok {
		c.recordHit()
		return vec, true, nil
	}
	val, err, _ := c.group.Do(query, func() (interface{}, error) {
		vec, err := c.embedder.EmbedQuery(ctx, query)
		if err != nil {
			return nil, err
		}
		if err := c.store.PutEmbedding(ctx, query, vec); err != nil {
			c.logger.Error("cache set failed", "query", query, "error", err)
		}
		return vec, nil
	})
	c.recordMiss()
	if err != nil {
		return nil, false, err
	}
	return val.([]float32), false, nil
}

// Stats returns the hit and miss counts since start.
func (c *EmbeddingCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *EmbeddingCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.EmbeddingCacheHits.Inc()
	}
}

func (c *EmbeddingCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.EmbeddingCacheMisses.Inc()
	}
}
