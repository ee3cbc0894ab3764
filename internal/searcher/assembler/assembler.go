// Package assembler turns a ranked list of chunk ids into a page of
// document-level results.
package assembler

import (
	"context"
	"strings"

	"github.com/aerospike-examples/hybrid-search/internal/category"
	"github.com/aerospike-examples/hybrid-search/internal/indexer/index"
	"github.com/aerospike-examples/hybrid-search/internal/searcher/ranker"
	"github.com/aerospike-examples/hybrid-search/internal/storage"
	apperrors "github.com/aerospike-examples/hybrid-search/pkg/errors"
)

// ClientSeparator marks a client-specific variant of a document URL.
const ClientSeparator = "?client="

// ChunkReader fetches display fields for the chunks on a page.
type ChunkReader interface {
	GetChunks(ctx context.Context, ids []string) (map[string]storage.Chunk, error)
}

// Request selects the page and the optional category allow-list.
type Request struct {
	Page     int
	PageSize int
	Filters  []string
}

// Item is one document in the response.
type Item struct {
	Title       string   `json:"title"`
	Description string   `json:"desc"`
	URL         string   `json:"url"`
	Category    string   `json:"cat"`
	Clients     []string `json:"clients,omitempty"`
}

// Result is an assembled page. Count is the number of documents that passed
// the filters, Categories lists every category seen before filtering.
type Result struct {
	Count      int      `json:"count"`
	Categories []string `json:"categories"`
	NPages     int      `json:"nPages"`
	Page       int      `json:"page"`
	Results    []Item   `json:"results"`
}

type document struct {
	chunkID  string
	category string
	clients  []string
}

// Assembler builds result pages.
type Assembler struct {
	chunks ChunkReader
}

func New(chunks ChunkReader) *Assembler {
	return &Assembler{chunks: chunks}
}

// Assemble groups ranked chunks by document, keeping the best-ranked chunk of
// each, and returns the requested page. Documents whose chunk record cannot
// be found are left out of the page but still counted.
func (a *Assembler) Assemble(ctx context.Context, ranked []ranker.Result, req Request) (*Result, error) {
	if req.PageSize <= 0 {
		req.PageSize = 10
	}
	if req.Page < 0 {
		req.Page = 0
	}

	docs, categories := group(ranked)
	docs = filter(docs, req.Filters)

	out := &Result{
		Count:      len(docs),
		Categories: categories,
		NPages:     (len(docs) + req.PageSize - 1) / req.PageSize,
		Page:       req.Page,
		Results:    []Item{},
	}
	start := req.Page * req.PageSize
	if start >= len(docs) {
		return out, nil
	}
	end := start + req.PageSize
	if end > len(docs) {
		end = len(docs)
	}
	page := docs[start:end]

	ids := make([]string, len(page))
	for i, d := range page {
		ids[i] = d.chunkID
	}
	records, err := a.chunks.GetChunks(ctx, ids)
	if err != nil {
		return nil, apperrors.Unavailable("key-value store", err)
	}
	for _, d := range page {
		rec, ok := records[d.chunkID]
		if !ok {
			continue
		}
		base, _ := splitClient(rec.URL)
		out.Results = append(out.Results, Item{
			Title:       rec.Title,
			Description: rec.Description,
			URL:         base,
			Category:    rec.Category,
			Clients:     d.clients,
		})
	}
	return out, nil
}

// group reduces chunk ids to one entry per base URL in rank order and
// collects the client variants and categories seen.
func group(ranked []ranker.Result) ([]*document, []string) {
	byURL := make(map[string]*document)
	docs := make([]*document, 0)
	categories := make([]string, 0)
	seenCat := make(map[string]struct{})
	for _, r := range ranked {
		base, client := splitClient(index.DocumentURL(r.ID))
		cat := category.FromURL(base)
		if _, ok := seenCat[cat]; !ok {
			seenCat[cat] = struct{}{}
			categories = append(categories, cat)
		}
		doc, ok := byURL[base]
		if !ok {
			doc = &document{chunkID: r.ID, category: cat}
			byURL[base] = doc
			docs = append(docs, doc)
		}
		if client != "" && !contains(doc.clients, client) {
			doc.clients = append(doc.clients, client)
		}
	}
	return docs, categories
}

func filter(docs []*document, allowed []string) []*document {
	if len(allowed) == 0 {
		return docs
	}
	set := make(map[string]struct{}, len(allowed))
	for _, c := range allowed {
		set[c] = struct{}{}
	}
	kept := make([]*document, 0, len(docs))
	for _, d := range docs {
		if _, ok := set[d.category]; ok {
			kept = append(kept, d)
		}
	}
	return kept
}

// ParseFilters splits a comma-separated category list, dropping blanks.
func ParseFilters(raw string) []string {
	var out []string
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func splitClient(url string) (base, client string) {
	base, client, _ = strings.Cut(url, ClientSeparator)
	return base, client
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
