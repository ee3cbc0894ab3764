// Package handler exposes the search service over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aerospike-examples/hybrid-search/internal/searcher"
	"github.com/aerospike-examples/hybrid-search/internal/searcher/assembler"
	"github.com/aerospike-examples/hybrid-search/internal/searcher/cache"
	"github.com/aerospike-examples/hybrid-search/pkg/config"
	apperrors "github.com/aerospike-examples/hybrid-search/pkg/errors"
	"github.com/aerospike-examples/hybrid-search/pkg/logger"
)

// Searcher runs a parsed search request.
type Searcher interface {
	Search(ctx context.Context, req searcher.Request) (*searcher.Response, error)
}

type Handler struct {
	searcher Searcher
	cache    *cache.EmbeddingCache
	cfg      config.SearchConfig
	logger   *slog.Logger
}

// New builds the handler. embeddings may be nil, which disables CacheStats.
func New(s Searcher, embeddings *cache.EmbeddingCache, cfg config.SearchConfig) *Handler {
	return &Handler{
		searcher: s,
		cache:    embeddings,
		cfg:      cfg,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Search serves GET /rest/v1/search/ and GET /search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	params := r.URL.Query()

	query := params.Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	searchType, err := searcher.ParseSearchType(params.Get("search_type"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "search_type must be one of hybrid, vector, keyword")
		return
	}
	count, ok := intParam(params.Get("count"), h.cfg.DefaultCount, 0)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "count must be a non-negative integer")
		return
	}
	page, ok := intParam(params.Get("page"), 0, 0)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "page must be a non-negative integer")
		return
	}
	pageSize, ok := intParam(params.Get("pageSize"), h.cfg.DefaultPageSize, 1)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "pageSize must be a positive integer")
		return
	}
	if h.cfg.MaxPageSize > 0 && pageSize > h.cfg.MaxPageSize {
		pageSize = h.cfg.MaxPageSize
	}

	resp, err := h.searcher.Search(r.Context(), searcher.Request{
		Query:    query,
		Count:    count,
		Type:     searchType,
		Page:     page,
		PageSize: pageSize,
		Filters:  assembler.ParseFilters(params.Get("filters")),
	})
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("search request failed", "query", query, "status", status, "error", err)
		h.writeError(w, status, http.StatusText(status))
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// CacheStats reports embedding cache hits and misses for this process.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": hitRate,
	})
}

// intParam parses an optional integer parameter no smaller than min.
func intParam(raw string, def, min int) (int, bool) {
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min {
		return 0, false
	}
	return v, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
