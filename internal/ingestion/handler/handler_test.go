package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aerospike-examples/hybrid-search/internal/ingestion"
	apperrors "github.com/aerospike-examples/hybrid-search/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type fakePublisher struct {
	pages []ingestion.PageRequest
	err   error
}

func (f *fakePublisher) PublishPage(ctx context.Context, req *ingestion.PageRequest) (*ingestion.PageResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.pages = append(f.pages, *req)
	return &ingestion.PageResponse{URL: req.URL, CrawlID: req.CrawlID, Status: "QUEUED"}, nil
}

func (f *fakePublisher) PublishPages(ctx context.Context, reqs []ingestion.PageRequest) ([]ingestion.PageResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]ingestion.PageResponse, len(reqs))
	for i, r := range reqs {
		f.pages = append(f.pages, r)
		out[i] = ingestion.PageResponse{URL: r.URL, Status: "QUEUED"}
	}
	return out, nil
}

func (f *fakePublisher) CompleteCrawl(ctx context.Context, req *ingestion.CrawlCompleteRequest) (*ingestion.CrawlCompleteEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ingestion.CrawlCompleteEvent{CrawlID: req.CrawlID, Pages: len(f.pages)}, nil
}

func post(fn http.HandlerFunc, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	fn(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	return rec
}

func TestPage_Accepted(t *testing.T) {
	pub := &fakePublisher{}
	h := New(pub)

	rec := post(h.Page, `{"url":"https://aerospike.com/docs/a","title":"A","body":"b","crawl_id":"c1"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"url":"https://aerospike.com/docs/a","crawl_id":"c1","status":"QUEUED"}`, rec.Body.String())
	assert.Len(t, pub.pages, 1)
}

func TestPage_Rejected(t *testing.T) {
	h := New(&fakePublisher{})

	rec := post(h.Page, `{"url":"not a url"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"url"`)

	rec = post(h.Page, `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPage_BrokerDown(t *testing.T) {
	h := New(&fakePublisher{err: apperrors.Unavailable("kafka", errors.New("dial tcp"))})

	rec := post(h.Page, `{"url":"https://aerospike.com/docs/a"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPageBatch(t *testing.T) {
	pub := &fakePublisher{}
	h := New(pub)

	rec := post(h.PageBatch, `[{"url":"https://aerospike.com/a"},{"url":"https://aerospike.com/b"}]`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, pub.pages, 2)

	rec = post(h.PageBatch, `[]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(h.PageBatch, `[{"url":"https://aerospike.com/a"},{"url":""}]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, pub.pages, 2)
}

func TestCrawlComplete(t *testing.T) {
	h := New(&fakePublisher{})

	rec := post(h.CrawlComplete, `{"crawl_id":"c1"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"crawl_id":"c1"`)

	rec = post(h.CrawlComplete, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
