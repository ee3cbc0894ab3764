package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/aerospike-examples/hybrid-search/internal/searcher/ranker"
	"github.com/aerospike-examples/hybrid-search/internal/storage"
	apperrors "github.com/aerospike-examples/hybrid-search/pkg/errors"
	"github.com/aerospike-examples/hybrid-search/pkg/resilience"
)

// DefaultDistanceThreshold is the cosine distance at or above which a
// neighbour is not considered relevant.
const DefaultDistanceThreshold = 0.4

// QueryEmbedder returns the embedding of a query string, typically through
// the embedding cache.
type QueryEmbedder interface {
	GetOrCompute(ctx context.Context, query string) (vec []float32, cached bool, err error)
}

// Vector runs nearest-neighbour queries.
type Vector struct {
	embedder  QueryEmbedder
	index     storage.VectorIndex
	threshold float64
	timeout   time.Duration
	logger    *slog.Logger
}

// NewVector builds the vector path. A threshold <= 0 uses
// DefaultDistanceThreshold; a timeout <= 0 disables the query deadline.
func NewVector(embedder QueryEmbedder, idx storage.VectorIndex, threshold float64, timeout time.Duration) *Vector {
	if threshold <= 0 {
		threshold = DefaultDistanceThreshold
	}
	return &Vector{
		embedder:  embedder,
		index:     idx,
		threshold: threshold,
		timeout:   timeout,
		logger:    slog.Default().With("component", "vector-executor"),
	}
}

// Search embeds query, asks the index for limit neighbours and keeps those
// closer than the threshold, in index order.
func (v *Vector) Search(ctx context.Context, query string, limit int) ([]ranker.Result, error) {
	vec, cached, err := v.embedder.GetOrCompute(ctx, query)
	if err != nil {
		return nil, err
	}

	var neighbors []storage.Neighbor
	err = resilience.WithTimeout(ctx, v.timeout, "vector query", func(ctx context.Context) error {
		var qerr error
		neighbors, qerr = v.index.Query(ctx, vec, limit)
		return qerr
	})
	if err != nil {
		return nil, apperrors.Unavailable("vector index", err)
	}

	results := FilterNeighbors(neighbors, v.threshold)
	v.logger.Debug("vector query executed",
		"query", query,
		"cached_embedding", cached,
		"neighbors", len(neighbors),
		"results", len(results),
	)
	return results, nil
}

// FilterNeighbors keeps neighbours with distance strictly below threshold.
func FilterNeighbors(neighbors []storage.Neighbor, threshold float64) []ranker.Result {
	results := make([]ranker.Result, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Distance < threshold {
			results = append(results, ranker.Result{ID: n.ID})
		}
	}
	return results
}
