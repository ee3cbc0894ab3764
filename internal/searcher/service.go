// Package searcher answers hybrid queries: it runs the keyword and vector
// paths concurrently, fuses their rankings and assembles a page of documents.
package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aerospike-examples/hybrid-search/internal/searcher/assembler"
	"github.com/aerospike-examples/hybrid-search/internal/searcher/merger"
	"github.com/aerospike-examples/hybrid-search/internal/searcher/parser"
	"github.com/aerospike-examples/hybrid-search/internal/searcher/ranker"
	"github.com/aerospike-examples/hybrid-search/pkg/config"
	apperrors "github.com/aerospike-examples/hybrid-search/pkg/errors"
	"github.com/aerospike-examples/hybrid-search/pkg/logger"
	"github.com/aerospike-examples/hybrid-search/pkg/metrics"
	"github.com/aerospike-examples/hybrid-search/pkg/tracing"
	"golang.org/x/sync/errgroup"
)

// SearchType selects which retrieval paths run.
type SearchType string

const (
	TypeHybrid  SearchType = "hybrid"
	TypeVector  SearchType = "vector"
	TypeKeyword SearchType = "keyword"
)

// ParseSearchType validates a search_type parameter; "" means hybrid.
func ParseSearchType(s string) (SearchType, error) {
	switch SearchType(s) {
	case "", TypeHybrid:
		return TypeHybrid, nil
	case TypeVector, TypeKeyword:
		return SearchType(s), nil
	}
	return "", apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unknown search_type %q", s)
}

// KeywordSearcher is the BM25 path.
type KeywordSearcher interface {
	Search(ctx context.Context, plan *parser.QueryPlan) ([]ranker.Result, error)
}

// VectorSearcher is the nearest-neighbour path.
type VectorSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]ranker.Result, error)
}

// Request is one query. Count is accepted for compatibility and reported
// back unchanged; it does not limit the results.
type Request struct {
	Query    string
	Count    int
	Type     SearchType
	Page     int
	PageSize int
	Filters  []string
}

// Response is the query endpoint's body. Time holds milliseconds per path
// that ran plus "total".
type Response struct {
	Time map[string]float64 `json:"time"`
	assembler.Result
}

// Service runs queries.
type Service struct {
	keyword   KeywordSearcher
	vector    VectorSearcher
	assembler *assembler.Assembler
	cfg       config.SearchConfig
	tracing   bool
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New wires the service. m may be nil.
func New(keyword KeywordSearcher, vector VectorSearcher, asm *assembler.Assembler,
	cfg config.SearchConfig, traceSpans bool, m *metrics.Metrics) *Service {
	return &Service{
		keyword:   keyword,
		vector:    vector,
		assembler: asm,
		cfg:       cfg,
		tracing:   traceSpans,
		metrics:   m,
		logger:    slog.Default().With("component", "search-service"),
	}
}

// Search runs req. A query without searchable terms skips the keyword path;
// the vector path still embeds the raw query.
// Backend failures are returned; they never turn into an empty result.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	ctx, root := tracing.StartSpan(ctx, "search", logger.RequestID(ctx))
	root.SetAttr("search_type", string(req.Type))
	log := logger.FromContext(ctx)

	resp := &Response{Time: make(map[string]float64)}
	plan := parser.Parse(req.Query, nil)
	runVector := req.Type == TypeHybrid || req.Type == TypeVector
	runKeyword := (req.Type == TypeHybrid || req.Type == TypeKeyword) && !plan.Empty()
	if !runVector && !runKeyword {
		root.End()
		resp.Result = assembler.Result{Categories: []string{}, Page: req.Page, Results: []assembler.Item{}}
		resp.Time["total"] = root.Millis()
		s.observe(req.Type, "zero_result", resp)
		return resp, nil
	}

	var vectorResults, keywordResults []ranker.Result
	var vectorSpan, keywordSpan *tracing.Span
	g, gctx := errgroup.WithContext(ctx)
	if runVector {
		g.Go(func() error {
			var spanCtx context.Context
			spanCtx, vectorSpan = tracing.StartChildSpan(gctx, "vector")
			defer vectorSpan.End()
			res, err := s.vector.Search(spanCtx, req.Query, s.cfg.VectorCandidates)
			if err != nil {
				return fmt.Errorf("vector search: %w", err)
			}
			vectorResults = res
			return nil
		})
	}
	if runKeyword {
		g.Go(func() error {
			var spanCtx context.Context
			spanCtx, keywordSpan = tracing.StartChildSpan(gctx, "keyword")
			defer keywordSpan.End()
			res, err := s.keyword.Search(spanCtx, plan)
			if err != nil {
				return fmt.Errorf("keyword search: %w", err)
			}
			keywordResults = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		root.End()
		s.observe(req.Type, "error", nil)
		log.Error("search failed", "query", req.Query, "search_type", req.Type, "error", err)
		return nil, err
	}

	var ranked []ranker.Result
	switch req.Type {
	case TypeHybrid:
		ranked = merger.Fuse(vectorResults, keywordResults, s.cfg.RRFK)
	case TypeVector:
		ranked = vectorResults
	default:
		ranked = keywordResults
	}

	asmCtx, asmSpan := tracing.StartChildSpan(ctx, "assemble")
	page, err := s.assembler.Assemble(asmCtx, ranked, assembler.Request{
		Page:     req.Page,
		PageSize: req.PageSize,
		Filters:  req.Filters,
	})
	asmSpan.End()
	root.End()
	if err != nil {
		s.observe(req.Type, "error", nil)
		log.Error("assembling results failed", "query", req.Query, "error", err)
		return nil, err
	}
	resp.Result = *page

	if vectorSpan != nil {
		resp.Time["vector"] = vectorSpan.Millis()
	}
	if keywordSpan != nil {
		resp.Time["keyword"] = keywordSpan.Millis()
	}
	resp.Time["total"] = root.Millis()
	if s.tracing {
		root.Log(log)
	}

	outcome := "ok"
	if resp.Count == 0 {
		outcome = "zero_result"
	}
	s.observe(req.Type, outcome, resp)
	log.Info("search completed",
		"query", req.Query,
		"search_type", req.Type,
		"vector_hits", len(vectorResults),
		"keyword_hits", len(keywordResults),
		"count", resp.Count,
		"returned", len(resp.Results),
		"latency_ms", resp.Time["total"],
	)
	return resp, nil
}

func (s *Service) observe(t SearchType, outcome string, resp *Response) {
	if s.metrics == nil {
		return
	}
	s.metrics.SearchQueriesTotal.WithLabelValues(string(t), outcome).Inc()
	if resp == nil {
		return
	}
	for stage, ms := range resp.Time {
		s.metrics.SearchLatency.WithLabelValues(stage).Observe(ms / float64(time.Second/time.Millisecond))
	}
	s.metrics.SearchResultsCount.Observe(float64(resp.Count))
}
