// Package storagetest holds the behaviour every storage.Store backend must
// share. Backend packages run it from their own tests.
package storagetest

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/aerospike-examples/hybrid-search/internal/indexer/index"
	"github.com/aerospike-examples/hybrid-search/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const url = "https://aerospike.com/docs/server/guide"

// Run exercises newStore against the storage.Store contract. newStore must
// return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("MarkSeen", func(t *testing.T) { testMarkSeen(t, newStore(t)) })
	t.Run("MetaLifecycle", func(t *testing.T) { testMetaLifecycle(t, newStore(t)) })
	t.Run("ResetMeta", func(t *testing.T) { testResetMeta(t, newStore(t)) })
	t.Run("Chunks", func(t *testing.T) { testChunks(t, newStore(t)) })
	t.Run("Postings", func(t *testing.T) { testPostings(t, newStore(t)) })
	t.Run("ConcurrentMerge", func(t *testing.T) { testConcurrentMerge(t, newStore(t)) })
	t.Run("RemovePostings", func(t *testing.T) { testRemovePostings(t, newStore(t)) })
	t.Run("Totals", func(t *testing.T) { testTotals(t, newStore(t)) })
	t.Run("EmbeddingCache", func(t *testing.T) { testEmbeddingCache(t, newStore(t)) })
}

func metas(t *testing.T, s storage.Store) map[string]storage.DocumentMeta {
	t.Helper()
	out := make(map[string]storage.DocumentMeta)
	require.NoError(t, s.ScanMeta(context.Background(), func(m storage.DocumentMeta) error {
		out[m.URL] = m
		return nil
	}))
	return out
}

func testMarkSeen(t *testing.T, s storage.Store) {
	ctx := context.Background()

	res, err := s.MarkSeen(ctx, url, "h1")
	require.NoError(t, err)
	assert.Equal(t, storage.MarkResult{}, res)

	require.NoError(t, s.SetChunkCount(ctx, url, 3))
	res, err = s.MarkSeen(ctx, url, "h1")
	require.NoError(t, err)
	assert.Equal(t, storage.MarkResult{Unchanged: true, PreviousChunkCount: 3}, res)

	res, err = s.MarkSeen(ctx, url, "h2")
	require.NoError(t, err)
	assert.Equal(t, storage.MarkResult{Unchanged: false, PreviousChunkCount: 3}, res)

	meta := metas(t, s)[url]
	assert.Equal(t, "h2", meta.ContentHash)
	assert.True(t, meta.Active)
	assert.Equal(t, 3, meta.ChunkCount)
}

func testMetaLifecycle(t *testing.T, s storage.Store) {
	ctx := context.Background()
	other := url + "/other"

	_, err := s.MarkSeen(ctx, url, "h1")
	require.NoError(t, err)
	_, err = s.MarkSeen(ctx, other, "h2")
	require.NoError(t, err)

	require.NoError(t, s.SetInactive(ctx, url))
	all := metas(t, s)
	require.Len(t, all, 2)
	assert.False(t, all[url].Active)
	assert.True(t, all[other].Active)

	require.NoError(t, s.DeleteMeta(ctx, other))
	all = metas(t, s)
	assert.Len(t, all, 1)
	assert.NotContains(t, all, other)
}

func testResetMeta(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, err := s.MarkSeen(ctx, url, "h1")
	require.NoError(t, err)
	require.NoError(t, s.ResetMeta(ctx, map[string]int{url: 4, url + "/new": 1}))

	all := metas(t, s)
	require.Len(t, all, 2)
	assert.Equal(t, 4, all[url].ChunkCount)
	assert.False(t, all[url].Active)
	assert.Equal(t, "h1", all[url].ContentHash)
	assert.Equal(t, 1, all[url+"/new"].ChunkCount)
}

func testChunks(t *testing.T, s storage.Store) {
	ctx := context.Background()
	chunks := []storage.Chunk{
		{ID: index.ChunkID(url, 0), URL: url, Title: "Guide", Description: "d", Content: "first", Category: "docs", NumTokens: 12},
		{ID: index.ChunkID(url, 1), URL: url, Title: "Guide", Description: "d", Content: "second", Category: "docs", NumTokens: 7},
	}
	require.NoError(t, s.PutChunks(ctx, chunks))

	missing := index.ChunkID(url, 9)
	got, err := s.GetChunks(ctx, []string{chunks[1].ID, missing})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, chunks[1], got[chunks[1].ID])

	exist, err := s.ChunksExist(ctx, []string{chunks[0].ID, missing})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{chunks[0].ID: true, missing: false}, exist)

	var ids []string
	var tokens int
	require.NoError(t, s.ScanChunks(ctx, false, func(c storage.Chunk) error {
		ids = append(ids, c.ID)
		tokens += c.NumTokens
		return nil
	}))
	sort.Strings(ids)
	assert.Equal(t, []string{chunks[0].ID, chunks[1].ID}, ids)
	assert.Equal(t, 19, tokens)

	ids = nil
	require.NoError(t, s.ScanChunks(ctx, true, func(c storage.Chunk) error {
		ids = append(ids, c.ID)
		return nil
	}))
	assert.Len(t, ids, 2)

	require.NoError(t, s.DeleteChunks(ctx, []string{chunks[0].ID}))
	got, err = s.GetChunks(ctx, []string{chunks[0].ID, chunks[1].ID})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, chunks[1].ID)
}

func posting(positions ...int) index.Posting {
	return index.Posting{
		Positions:   positions,
		Frequency:   len(positions),
		TitleTokens: []string{"guide"},
		DescTokens:  []string{},
		NumTokens:   20,
	}
}

// Writers indexing different chunks of the same term must not drop each
// other's postings.
func testConcurrentMerge(t *testing.T, s storage.Store) {
	ctx := context.Background()
	const writers = 32

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.MergePostings(ctx, "replic", map[string]index.Posting{
				index.ChunkID(url, i): {Positions: []int{i}, Frequency: 1, NumTokens: i + 1},
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.GetPostings(ctx, []string{"replic"})
	require.NoError(t, err)
	require.Len(t, got["replic"], writers)
	for i := 0; i < writers; i++ {
		p, ok := got["replic"][index.ChunkID(url, i)]
		require.True(t, ok, "chunk %d", i)
		assert.Equal(t, []int{i}, p.Positions)
		assert.Equal(t, i+1, p.NumTokens)
	}
}

func testPostings(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a, b := index.ChunkID(url, 0), index.ChunkID(url+"/b", 0)

	require.NoError(t, s.MergePostings(ctx, "batch", map[string]index.Posting{a: posting(1, 4)}))
	require.NoError(t, s.MergePostings(ctx, "batch", map[string]index.Posting{b: posting(2)}))
	require.NoError(t, s.MergePostings(ctx, "read", map[string]index.Posting{a: posting(2)}))

	got, err := s.GetPostings(ctx, []string{"batch", "read", "absent"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.NotContains(t, got, "absent")
	assert.Len(t, got["batch"], 2)
	assert.Equal(t, []int{1, 4}, got["batch"][a].Positions)
	assert.Equal(t, 2, got["batch"][a].Frequency)
	assert.Equal(t, []string{"guide"}, got["batch"][a].TitleTokens)

	require.NoError(t, s.MergePostings(ctx, "batch", map[string]index.Posting{a: posting(7)}))
	got, err = s.GetPostings(ctx, []string{"batch"})
	require.NoError(t, err)
	assert.Equal(t, []int{7}, got["batch"][a].Positions)
	assert.Contains(t, got["batch"], b)

	terms := make(map[string]int)
	require.NoError(t, s.ScanTerms(ctx, func(term string, postings map[string]index.Posting) error {
		terms[term] = len(postings)
		return nil
	}))
	assert.Equal(t, map[string]int{"batch": 2, "read": 1}, terms)

	require.NoError(t, s.DeleteTerm(ctx, "read"))
	got, err = s.GetPostings(ctx, []string{"read"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testRemovePostings(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a, b := index.ChunkID(url, 0), index.ChunkID(url, 1)

	require.NoError(t, s.MergePostings(ctx, "batch", map[string]index.Posting{a: posting(1), b: posting(3)}))
	require.NoError(t, s.MergePostings(ctx, "read", map[string]index.Posting{a: posting(2)}))

	removed, err := s.RemovePostings(ctx, []string{a})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	got, err := s.GetPostings(ctx, []string{"batch", "read"})
	require.NoError(t, err)
	assert.NotContains(t, got, "read")
	require.Contains(t, got, "batch")
	assert.NotContains(t, got["batch"], a)
	assert.Contains(t, got["batch"], b)

	removed, err = s.RemovePostings(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func testTotals(t *testing.T, s storage.Store) {
	ctx := context.Background()

	totals, err := s.GetTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.Totals{}, totals)

	require.NoError(t, s.PutTotals(ctx, storage.Totals{Docs: 42, Tokens: 9001}))
	totals, err = s.GetTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.Totals{Docs: 42, Tokens: 9001}, totals)
}

func testEmbeddingCache(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, ok, err := s.GetEmbedding(ctx, "what is xdr")
	require.NoError(t, err)
	assert.False(t, ok)

	vec := []float32{0.25, -0.5, 1}
	require.NoError(t, s.PutEmbedding(ctx, "what is xdr", vec))
	got, ok, err := s.GetEmbedding(ctx, "what is xdr")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, vec, got)

	_, ok, err = s.GetEmbedding(ctx, "What is XDR")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Ping(ctx))
}
