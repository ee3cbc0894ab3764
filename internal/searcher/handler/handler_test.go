package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aerospike-examples/hybrid-search/internal/searcher"
	"github.com/aerospike-examples/hybrid-search/internal/searcher/assembler"
	"github.com/aerospike-examples/hybrid-search/pkg/config"
	apperrors "github.com/aerospike-examples/hybrid-search/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	last searcher.Request
	resp *searcher.Response
	err  error
}

func (f *fakeSearcher) Search(ctx context.Context, req searcher.Request) (*searcher.Response, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &searcher.Response{
		Time: map[string]float64{"total": 1.5},
		Result: assembler.Result{
			Count:      1,
			Categories: []string{"server"},
			NPages:     1,
			Results:    []assembler.Item{{Title: "Batch reads", URL: "https://aerospike.com/server/batch", Category: "server"}},
		},
	}, nil
}

func newHandler(s *fakeSearcher) *Handler {
	return New(s, nil, config.SearchConfig{DefaultCount: 5, DefaultPageSize: 10, MaxPageSize: 50})
}

func get(h *Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestSearch_Defaults(t *testing.T) {
	s := &fakeSearcher{}
	rec := get(newHandler(s), "/rest/v1/search/?q=batch+read")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, searcher.Request{Query: "batch read", Count: 5, Type: searcher.TypeHybrid, Page: 0, PageSize: 10}, s.last)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, float64(1), body["nPages"])
	assert.Contains(t, body, "time")
	results := body["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "server", results[0].(map[string]any)["cat"])
}

func TestSearch_Params(t *testing.T) {
	s := &fakeSearcher{}
	rec := get(newHandler(s), "/search?q=xdr&search_type=keyword&page=2&pageSize=500&count=3&filters=server,+tools,")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, searcher.TypeKeyword, s.last.Type)
	assert.Equal(t, 2, s.last.Page)
	assert.Equal(t, 50, s.last.PageSize)
	assert.Equal(t, 3, s.last.Count)
	assert.Equal(t, []string{"server", "tools"}, s.last.Filters)
}

func TestSearch_BadRequests(t *testing.T) {
	for name, target := range map[string]string{
		"missing query":    "/search",
		"bad search type":  "/search?q=x&search_type=semantic",
		"negative page":    "/search?q=x&page=-1",
		"zero page size":   "/search?q=x&pageSize=0",
		"non-numeric page": "/search?q=x&page=two",
	} {
		t.Run(name, func(t *testing.T) {
			rec := get(newHandler(&fakeSearcher{}), target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestSearch_BackendFailure(t *testing.T) {
	s := &fakeSearcher{err: apperrors.Unavailable("key-value store", errors.New("connection refused"))}
	rec := get(newHandler(s), "/search?q=batch")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestSearch_Timeout(t *testing.T) {
	s := &fakeSearcher{err: context.DeadlineExceeded}
	rec := get(newHandler(s), "/search?q=batch")

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestCacheStats_Disabled(t *testing.T) {
	rec := httptest.NewRecorder()
	newHandler(&fakeSearcher{}).CacheStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"disabled"}`, rec.Body.String())
}
