// Package executor runs the two retrieval paths of a search: BM25 over the
// inverted index and nearest-neighbour lookup in the vector index.
package executor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aerospike-examples/hybrid-search/internal/indexer/index"
	"github.com/aerospike-examples/hybrid-search/internal/searcher/parser"
	"github.com/aerospike-examples/hybrid-search/internal/searcher/ranker"
	"github.com/aerospike-examples/hybrid-search/internal/storage"
	apperrors "github.com/aerospike-examples/hybrid-search/pkg/errors"
)

// KeywordSource is the part of the key-value store the keyword path reads.
type KeywordSource interface {
	GetTotals(ctx context.Context) (storage.Totals, error)
	GetPostings(ctx context.Context, terms []string) (index.TermPostings, error)
}

// Keyword ranks chunks containing every query term.
type Keyword struct {
	source     KeywordSource
	maxResults int
	logger     *slog.Logger
}

func NewKeyword(source KeywordSource, maxResults int) *Keyword {
	if maxResults <= 0 {
		maxResults = ranker.DefaultLimit
	}
	return &Keyword{
		source:     source,
		maxResults: maxResults,
		logger:     slog.Default().With("component", "keyword-executor"),
	}
}

// Search returns ranked chunk ids for plan. Terms whose postings could not be
// read are treated as absent; any other store failure is returned.
func (k *Keyword) Search(ctx context.Context, plan *parser.QueryPlan) ([]ranker.Result, error) {
	if plan.Empty() {
		return []ranker.Result{}, nil
	}
	totals, err := k.source.GetTotals(ctx)
	if err != nil {
		return nil, apperrors.Unavailable("key-value store", err)
	}
	postings, err := k.source.GetPostings(ctx, plan.Terms)
	if err != nil {
		if !errors.Is(err, storage.ErrPartialBatch) {
			return nil, apperrors.Unavailable("key-value store", err)
		}
		k.logger.Warn("some postings could not be read, ranking without them",
			"query", plan.Text,
			"error", err,
		)
	}

	results := ranker.Rank(postings, totals.Docs, totals.Tokens, k.maxResults)
	k.logger.Debug("keyword query executed",
		"query", plan.Text,
		"terms", plan.Terms,
		"terms_found", len(postings),
		"results", len(results),
	)
	return results, nil
}
