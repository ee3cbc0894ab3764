// Package indexer turns crawled pages into chunk records, postings and
// vectors, and keeps those three stores consistent across crawls.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aerospike-examples/hybrid-search/internal/category"
	"github.com/aerospike-examples/hybrid-search/internal/embedding"
	"github.com/aerospike-examples/hybrid-search/internal/indexer/chunker"
	"github.com/aerospike-examples/hybrid-search/internal/indexer/index"
	"github.com/aerospike-examples/hybrid-search/internal/indexer/tokenizer"
	"github.com/aerospike-examples/hybrid-search/internal/storage"
	"github.com/aerospike-examples/hybrid-search/pkg/config"
	apperrors "github.com/aerospike-examples/hybrid-search/pkg/errors"
	"github.com/aerospike-examples/hybrid-search/pkg/metrics"
	"github.com/panjf2000/ants/v2"
)

// Outcomes reported in IndexResult.
const (
	OutcomeIndexed   = "indexed"
	OutcomeUnchanged = "unchanged"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
)

// Page is one crawled document.
type Page struct {
	URL            string `json:"url"`
	Title          string `json:"title"`
	Description    string `json:"desc"`
	Body           string `json:"body"`
	GeneratedIndex bool   `json:"generated_index,omitempty"`
	CrawlID        string `json:"crawl_id,omitempty"`
}

// IndexResult describes what happened to one page.
type IndexResult struct {
	URL     string `json:"url"`
	Outcome string `json:"outcome"`
	Chunks  int    `json:"chunks"`
	Error   string `json:"error,omitempty"`
}

// BatchResult aggregates IndexBatch outcomes.
type BatchResult struct {
	Indexed   int `json:"indexed"`
	Unchanged int `json:"unchanged"`
	Ignored   int `json:"ignored"`
	Failed    int `json:"failed"`
}

// Engine runs the indexing pipeline for pages. Different documents may be
// indexed concurrently; the same document must not be.
type Engine struct {
	lifecycle *Manager
	store     storage.Store
	vectors   storage.VectorIndex
	embedder  embedding.Embedder
	tokenizer tokenizer.Tokenizer
	chunker   *chunker.Chunker
	pool      *ants.Pool
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// Document jobs hold sweepMu for reading; a sweep needs it exclusively.
	sweepMu  sync.RWMutex
	inFlight atomic.Int64

	crawlMu sync.Mutex
	crawls  map[string]int
}

// NewEngine builds an Engine with a worker pool of cfg.Workers goroutines.
func NewEngine(cfg config.IndexerConfig, lifecycle *Manager, store storage.Store, vectors storage.VectorIndex,
	embedder embedding.Embedder, tok tokenizer.Tokenizer, m *metrics.Metrics) (*Engine, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("creating indexing pool: %w", err)
	}
	return &Engine{
		lifecycle: lifecycle,
		store:     store,
		vectors:   vectors,
		embedder:  embedder,
		tokenizer: tok,
		chunker:   chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
		pool:      pool,
		metrics:   m,
		logger:    slog.Default().With("component", "indexer"),
		crawls:    make(map[string]int),
	}, nil
}

// IndexDocument runs one page through change detection and, when its content
// changed, rewrites its chunks, postings and vectors. A failure after the
// change check clears the stored hash so the next attempt reindexes.
func (e *Engine) IndexDocument(ctx context.Context, page Page) (IndexResult, error) {
	e.sweepMu.RLock()
	e.inFlight.Add(1)
	defer func() {
		e.inFlight.Add(-1)
		e.sweepMu.RUnlock()
		e.markProcessed(page.CrawlID)
	}()

	result := IndexResult{URL: page.URL}
	if page.GeneratedIndex {
		e.logger.Debug("ignoring generated index page", "url", page.URL)
		result.Outcome = OutcomeIgnored
		e.countDoc(OutcomeIgnored)
		return result, nil
	}

	shouldIndex, previous, err := e.lifecycle.ProcessDocument(ctx, page.URL, page.Title, page.Description, page.Body)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
		return result, err
	}
	if !shouldIndex {
		result.Outcome = OutcomeUnchanged
		result.Chunks = previous
		return result, nil
	}

	chunks, err := e.writeDocument(ctx, page)
	if err != nil {
		e.forget(page.URL)
		e.countDoc(OutcomeFailed)
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
		return result, fmt.Errorf("indexing %s: %w", page.URL, err)
	}
	if previous > chunks {
		e.lifecycle.CleanupExcessChunks(ctx, page.URL, previous, chunks)
	}

	e.countDoc(OutcomeIndexed)
	if e.metrics != nil {
		e.metrics.ChunksIndexedTotal.Add(float64(chunks))
	}
	e.logger.Info("document indexed", "url", page.URL, "chunks", chunks, "previous_chunks", previous)
	result.Outcome = OutcomeIndexed
	result.Chunks = chunks
	return result, nil
}

func (e *Engine) writeDocument(ctx context.Context, page Page) (int, error) {
	parts, err := e.chunker.Split(page.Body)
	if err != nil {
		return 0, err
	}
	titleTokens := e.tokenizer.Tokenize(page.Title)
	descTokens := e.tokenizer.Tokenize(page.Description)
	chunkTokens := make([][]string, len(parts))
	for i, part := range parts {
		chunkTokens[i] = e.tokenizer.Tokenize(part)
	}

	builder := index.NewBuilder()
	for i, tokens := range chunkTokens {
		builder.AddChunk(index.ChunkID(page.URL, i), tokens, titleTokens, descTokens)
	}
	entries := builder.Snapshot()
	for _, entry := range entries {
		if err := e.store.MergePostings(ctx, entry.Term, entry.Postings); err != nil {
			return 0, err
		}
	}
	e.logger.Debug("postings flushed", "url", page.URL, "terms", len(entries), "approx_bytes", builder.Size())

	cat := category.FromURL(page.URL)
	records := make([]storage.Chunk, len(parts))
	for i, part := range parts {
		records[i] = storage.Chunk{
			ID:          index.ChunkID(page.URL, i),
			URL:         page.URL,
			Title:       page.Title,
			Description: page.Description,
			Content:     part,
			Category:    cat,
			NumTokens:   len(chunkTokens[i]),
		}
	}
	if err := e.store.PutChunks(ctx, records); err != nil {
		return 0, err
	}

	for _, rec := range records {
		vec, err := e.embedder.EmbedDocument(ctx, embedding.DocumentText(rec.Title, rec.Description, rec.Content))
		if err != nil {
			return 0, err
		}
		if err := e.vectors.Upsert(ctx, rec.ID, vec); err != nil {
			return 0, apperrors.Unavailable("vector index", err)
		}
	}

	if err := e.store.SetChunkCount(ctx, page.URL, len(records)); err != nil {
		return 0, err
	}
	return len(records), nil
}

// forget clears the stored content hash of url so its next crawl is treated
// as a change.
func (e *Engine) forget(url string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := e.store.MarkSeen(ctx, url, ""); err != nil {
		e.logger.Error("clearing content hash after failed index", "url", url, "error", err)
	}
}

// IndexBatch indexes pages on the worker pool and waits for all of them.
// Pages sharing a URL are reduced to the last one so a document is never
// processed twice at once.
func (e *Engine) IndexBatch(ctx context.Context, pages []Page) (BatchResult, []IndexResult) {
	byURL := make(map[string]int, len(pages))
	unique := make([]Page, 0, len(pages))
	for _, p := range pages {
		if i, dup := byURL[p.URL]; dup {
			e.logger.Warn("duplicate page in batch, keeping the last", "url", p.URL)
			unique[i] = p
			continue
		}
		byURL[p.URL] = len(unique)
		unique = append(unique, p)
	}

	results := make([]IndexResult, len(unique))
	var wg sync.WaitGroup
	for i, p := range unique {
		wg.Add(1)
		i, p := i, p
		task := func() {
			defer wg.Done()
			res, err := e.IndexDocument(ctx, p)
			if err != nil {
				e.logger.Error("indexing failed", "url", p.URL, "error", err)
			}
			results[i] = res
		}
		if err := e.pool.Submit(task); err != nil {
			wg.Done()
			results[i] = IndexResult{URL: p.URL, Outcome: OutcomeFailed, Error: err.Error()}
		}
	}
	wg.Wait()

	var summary BatchResult
	for _, r := range results {
		switch r.Outcome {
		case OutcomeIndexed:
			summary.Indexed++
		case OutcomeUnchanged:
			summary.Unchanged++
		case OutcomeIgnored:
			summary.Ignored++
		default:
			summary.Failed++
		}
	}
	return summary, results
}

// Sweep runs the lifecycle sweep. It fails with ErrSweepInFlight instead of
// waiting when documents are being indexed.
func (e *Engine) Sweep(ctx context.Context) (SweepReport, error) {
	if !e.sweepMu.TryLock() {
		return SweepReport{}, apperrors.ErrSweepInFlight
	}
	defer e.sweepMu.Unlock()
	return e.lifecycle.Sweep(ctx)
}

// FinishCrawl waits until expected pages of crawlID have been processed and
// no document is in flight, then sweeps and recomputes the corpus totals.
// If that does not happen within wait the sweep is abandoned, since sweeping
// early would remove documents that are still on their way.
func (e *Engine) FinishCrawl(ctx context.Context, crawlID string, expected int, wait time.Duration) (SweepReport, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		processed := e.processed(crawlID)
		if processed >= expected && e.inFlight.Load() == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return SweepReport{}, ctx.Err()
		case <-deadline.C:
			return SweepReport{}, fmt.Errorf("crawl %s: %d of %d pages processed after %v, not sweeping: %w",
				crawlID, processed, expected, wait, apperrors.ErrSweepInFlight)
		case <-ticker.C:
		}
	}

	report, err := e.Sweep(ctx)
	if errors.Is(err, apperrors.ErrSweepInFlight) {
		return report, fmt.Errorf("crawl %s: %w", crawlID, err)
	}
	if err != nil {
		return report, err
	}
	e.crawlMu.Lock()
	delete(e.crawls, crawlID)
	e.crawlMu.Unlock()

	if _, err := e.lifecycle.RecomputeTotals(ctx); err != nil {
		return report, fmt.Errorf("recomputing totals after crawl %s: %w", crawlID, err)
	}
	return report, nil
}

func (e *Engine) markProcessed(crawlID string) {
	if crawlID == "" {
		return
	}
	e.crawlMu.Lock()
	e.crawls[crawlID]++
	e.crawlMu.Unlock()
}

func (e *Engine) processed(crawlID string) int {
	e.crawlMu.Lock()
	defer e.crawlMu.Unlock()
	return e.crawls[crawlID]
}

func (e *Engine) countDoc(outcome string) {
	if e.metrics != nil {
		e.metrics.DocsProcessedTotal.WithLabelValues(outcome).Inc()
	}
}

// Close releases the worker pool.
func (e *Engine) Close() error {
	e.pool.Release()
	return nil
}
