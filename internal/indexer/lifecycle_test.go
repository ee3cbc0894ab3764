package indexer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aerospike-examples/hybrid-search/internal/embedding"
	"github.com/aerospike-examples/hybrid-search/internal/indexer/index"
	"github.com/aerospike-examples/hybrid-search/internal/indexer/tokenizer"
	"github.com/aerospike-examples/hybrid-search/internal/storage"
	"github.com/aerospike-examples/hybrid-search/internal/storage/badgerstore"
	badgerdb "github.com/aerospike-examples/hybrid-search/pkg/badger"
	"github.com/aerospike-examples/hybrid-search/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 16

type fixture struct {
	store   *badgerstore.Store
	vectors *badgerstore.VectorIndex
	manager *Manager
	engine  *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend, err := badgerdb.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	cfg := config.Default()
	store := badgerstore.New(backend, cfg.Storage)
	vectors := badgerstore.NewVectorIndex(backend, cfg.Storage.Namespace, "vectors", testDims)
	embedder := embedding.NewClient(embedding.NewHashProvider(testDims), config.EmbeddingConfig{
		MaxAttempts:      1,
		FailureThreshold: 5,
		ResetTimeout:     time.Second,
	}, testDims, nil)

	manager := NewManager(store, vectors, nil)
	engine, err := NewEngine(config.IndexerConfig{ChunkSize: 8, ChunkOverlap: 0, Workers: 4},
		manager, store, vectors, embedder, tokenizer.Default{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	return &fixture{store: store, vectors: vectors, manager: manager, engine: engine}
}

func docURL(name string) string {
	return "https://aerospike.com/docs/server/" + name
}

func page(name, body string) Page {
	return Page{URL: docURL(name), Title: "Guide " + name, Description: "About " + name, Body: body}
}

func (f *fixture) meta(t *testing.T) map[string]storage.DocumentMeta {
	t.Helper()
	out := make(map[string]storage.DocumentMeta)
	require.NoError(t, f.store.ScanMeta(context.Background(), func(m storage.DocumentMeta) error {
		out[m.URL] = m
		return nil
	}))
	return out
}

func (f *fixture) postingIDs(t *testing.T) map[string]bool {
	t.Helper()
	ids := make(map[string]bool)
	require.NoError(t, f.store.ScanTerms(context.Background(), func(term string, postings map[string]index.Posting) error {
		for id := range postings {
			ids[id] = true
		}
		return nil
	}))
	return ids
}

func (f *fixture) vectorIDs(t *testing.T) map[string]bool {
	t.Helper()
	probe := make([]float32, testDims)
	probe[0] = 1
	hits, err := f.vectors.Query(context.Background(), probe, 1000)
	require.NoError(t, err)
	ids := make(map[string]bool, len(hits))
	for _, h := range hits {
		ids[h.ID] = true
	}
	return ids
}

func TestProcessDocument_NewThenUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	url := docURL("a")

	shouldIndex, prev, err := f.manager.ProcessDocument(ctx, url, "t", "d", "body")
	require.NoError(t, err)
	assert.True(t, shouldIndex)
	assert.Zero(t, prev)

	require.NoError(t, f.store.SetChunkCount(ctx, url, 2))

	shouldIndex, prev, err = f.manager.ProcessDocument(ctx, url, "t", "d", "body")
	require.NoError(t, err)
	assert.False(t, shouldIndex)
	assert.Equal(t, 2, prev)

	shouldIndex, prev, err = f.manager.ProcessDocument(ctx, url, "t", "d", "new body")
	require.NoError(t, err)
	assert.True(t, shouldIndex)
	assert.Equal(t, 2, prev)
	assert.True(t, f.meta(t)[url].Active)
}

func TestContentHash_CoversEveryField(t *testing.T) {
	base := ContentHash("u", "t", "d", "b")
	assert.Equal(t, base, ContentHash("u", "t", "d", "b"))
	assert.NotEqual(t, base, ContentHash("u", "t2", "d", "b"))
	assert.NotEqual(t, base, ContentHash("u", "t", "d2", "b"))
	assert.NotEqual(t, base, ContentHash("u", "t", "d", "b2"))
}

func TestSweep_RemovesDocumentsNotSeen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	summary, _ := f.engine.IndexBatch(ctx, []Page{
		page("keep", "Secondary indexes speed up queries on bins."),
		page("drop", "Cross datacenter replication ships records between clusters."),
	})
	require.Equal(t, 2, summary.Indexed)
	report, err := f.manager.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Reset)
	assert.Zero(t, report.Removed)

	summary, _ = f.engine.IndexBatch(ctx, []Page{
		page("keep", "Secondary indexes speed up queries on bins."),
	})
	require.Equal(t, 1, summary.Unchanged)

	report, err = f.manager.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Reset)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, 1, report.ChunksDeleted)
	assert.Zero(t, report.Failures)

	meta := f.meta(t)
	assert.Contains(t, meta, docURL("keep"))
	assert.NotContains(t, meta, docURL("drop"))

	dropped := index.ChunkID(docURL("drop"), 0)
	records, err := f.store.GetChunks(ctx, []string{dropped})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.False(t, f.postingIDs(t)[dropped])
	assert.False(t, f.vectorIDs(t)[dropped])

	kept := index.ChunkID(docURL("keep"), 0)
	assert.True(t, f.postingIDs(t)[kept])
	assert.True(t, f.vectorIDs(t)[kept])
}

func TestSweep_BackToBackIsHarmless(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.engine.IndexBatch(ctx, []Page{page("a", "Namespaces hold sets of records.")})
	_, err := f.manager.Sweep(ctx)
	require.NoError(t, err)

	report, err := f.manager.Sweep(ctx)
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Zero(t, report.Removed)
	assert.Contains(t, f.meta(t), docURL("a"))
}

func TestSweep_EmptyStore(t *testing.T) {
	f := newFixture(t)

	report, err := f.manager.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, report)
}

func TestCleanupExcessChunks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	url := docURL("a")

	long := strings.Join([]string{
		"Batch reads fetch many records in one call.",
		"Batch writes apply operations to many records.",
		"Batch deletes remove records by key quickly.",
	}, "\n\n")
	res, err := f.engine.IndexDocument(ctx, Page{URL: url, Title: "Batch", Body: long})
	require.NoError(t, err)
	require.Greater(t, res.Chunks, 1)
	before := res.Chunks

	res, err = f.engine.IndexDocument(ctx, Page{URL: url, Title: "Batch", Body: "Batch reads fetch records."})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIndexed, res.Outcome)
	assert.Equal(t, 1, res.Chunks)

	stale := index.ChunkIDs(url, 1, before)
	records, err := f.store.GetChunks(ctx, stale)
	require.NoError(t, err)
	assert.Empty(t, records)
	postings := f.postingIDs(t)
	vectors := f.vectorIDs(t)
	for _, id := range stale {
		assert.False(t, postings[id], id)
		assert.False(t, vectors[id], id)
	}
	assert.Equal(t, 1, f.meta(t)[url].ChunkCount)
}

func TestCleanupExcessChunks_NoShrink(t *testing.T) {
	f := newFixture(t)

	assert.Zero(t, f.manager.CleanupExcessChunks(context.Background(), docURL("a"), 2, 2))
	assert.Zero(t, f.manager.CleanupExcessChunks(context.Background(), docURL("a"), 1, 3))
}

func TestRecomputeTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.engine.IndexBatch(ctx, []Page{
		page("a", "Records live in namespaces."),
		page("b", "Bins hold typed values."),
	})
	totals, err := f.manager.RecomputeTotals(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), totals.Docs)
	assert.Positive(t, totals.Tokens)
	stored, err := f.store.GetTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, totals, stored)
}

func TestSyncMeta_RebuildsCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.engine.IndexBatch(ctx, []Page{page("a", "Records live in namespaces.")})
	require.NoError(t, f.store.DeleteMeta(ctx, docURL("a")))

	n, err := f.manager.SyncMeta(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	meta := f.meta(t)[docURL("a")]
	assert.Equal(t, 1, meta.ChunkCount)
	assert.False(t, meta.Active)
}

func TestSyncKeywords_RemovesOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.engine.IndexBatch(ctx, []Page{page("a", "Records live in namespaces.")})
	orphan := index.ChunkID(docURL("gone"), 0)
	require.NoError(t, f.store.MergePostings(ctx, "ghost", map[string]index.Posting{
		orphan: {Positions: []int{0}, Frequency: 1, NumTokens: 1},
	}))
	shared := tokenizer.Tokenize("records")[0]
	require.NoError(t, f.store.MergePostings(ctx, shared, map[string]index.Posting{
		orphan: {Positions: []int{0}, Frequency: 1, NumTokens: 1},
	}))

	report, err := f.manager.SyncKeywords(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.OrphanChunks)
	assert.Equal(t, 2, report.PostingsRemoved)
	assert.Equal(t, 1, report.TermsDeleted)
	assert.False(t, f.postingIDs(t)[orphan])
	assert.True(t, f.postingIDs(t)[index.ChunkID(docURL("a"), 0)])
}
