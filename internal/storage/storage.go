// Package storage declares the logical operations the search core needs from
// its key-value store and vector-similarity service. Backends live in the
// redisstore, badgerstore and pgvector subpackages.
package storage

import (
	"context"
	"errors"

	"github.com/aerospike-examples/hybrid-search/internal/indexer/index"
)

// ErrPartialBatch reports that some keys of a batch operation failed while
// others succeeded. Callers treat the failed keys as absent.
var ErrPartialBatch = errors.New("partial batch failure")

// DocumentMeta is the lifecycle record kept once per document URL.
type DocumentMeta struct {
	URL         string
	ContentHash string
	Active      bool
	ChunkCount  int
}

// Chunk is the document-store record of one chunk.
type Chunk struct {
	ID          string `json:"-"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"desc"`
	Content     string `json:"content"`
	Category    string `json:"cat"`
	NumTokens   int    `json:"num_tokens"`
}

// Totals is the corpus aggregate used by BM25.
type Totals struct {
	Docs   int64 `json:"docs"`
	Tokens int64 `json:"tokens"`
}

// MarkResult is the outcome of the atomic mark-seen write.
type MarkResult struct {
	Unchanged          bool
	PreviousChunkCount int
}

// MetaStore holds DocumentMeta records.
type MetaStore interface {
	// MarkSeen atomically sets active=1 and the new hash, reporting whether
	// the stored hash already equalled it and the previous chunk count.
	MarkSeen(ctx context.Context, url, contentHash string) (MarkResult, error)
	SetChunkCount(ctx context.Context, url string, count int) error
	SetInactive(ctx context.Context, url string) error
	DeleteMeta(ctx context.Context, url string) error
	// ScanMeta visits every record. fn may mutate the visited record.
	ScanMeta(ctx context.Context, fn func(meta DocumentMeta) error) error
	// ResetMeta overwrites chunk counts and clears the active flag in bulk.
	ResetMeta(ctx context.Context, chunkCounts map[string]int) error
}

// ChunkStore holds chunk records.
type ChunkStore interface {
	PutChunks(ctx context.Context, chunks []Chunk) error
	// GetChunks returns the records found; missing ids are left out.
	GetChunks(ctx context.Context, ids []string) (map[string]Chunk, error)
	DeleteChunks(ctx context.Context, ids []string) error
	ChunksExist(ctx context.Context, ids []string) (map[string]bool, error)
	// ScanChunks visits every chunk. With keysOnly only Chunk.ID is set.
	ScanChunks(ctx context.Context, keysOnly bool, fn func(chunk Chunk) error) error
}

// PostingStore holds the inverted index.
type PostingStore interface {
	// MergePostings upserts the given chunk entries into the term's mapping
	// without touching entries for other chunk ids.
	MergePostings(ctx context.Context, term string, postings map[string]index.Posting) error
	// GetPostings batch-reads the given terms. Terms with no entry are left
	// out. When only some terms fail the rest are returned together with an
	// error wrapping ErrPartialBatch.
	GetPostings(ctx context.Context, terms []string) (index.TermPostings, error)
	// RemovePostings deletes the chunk ids from every term mapping and drops
	// mappings left empty. It returns the number of postings removed.
	RemovePostings(ctx context.Context, chunkIDs []string) (int, error)
	// ScanTerms visits every term with its current mapping.
	ScanTerms(ctx context.Context, fn func(term string, postings map[string]index.Posting) error) error
	DeleteTerm(ctx context.Context, term string) error
}

// TotalsStore holds the single corpus aggregate record.
type TotalsStore interface {
	GetTotals(ctx context.Context) (Totals, error)
	PutTotals(ctx context.Context, totals Totals) error
}

// EmbeddingCache maps literal query strings to their embeddings.
type EmbeddingCache interface {
	// GetEmbedding reports ok=false on a miss.
	GetEmbedding(ctx context.Context, query string) (vec []float32, ok bool, err error)
	PutEmbedding(ctx context.Context, query string, vec []float32) error
}

// Store is a key-value backend providing every collection.
type Store interface {
	MetaStore
	ChunkStore
	PostingStore
	TotalsStore
	EmbeddingCache
	Ping(ctx context.Context) error
	Close() error
}

// Neighbor is one similarity-search hit.
type Neighbor struct {
	ID       string
	Distance float64
}

// VectorIndex is the vector-similarity collaborator.
type VectorIndex interface {
	// CreateIndex is a no-op when the index already exists.
	CreateIndex(ctx context.Context) error
	Upsert(ctx context.Context, id string, vec []float32) error
	Delete(ctx context.Context, ids []string) error
	// Query returns up to limit neighbours by ascending cosine distance.
	Query(ctx context.Context, vec []float32, limit int) ([]Neighbor, error)
	Ping(ctx context.Context) error
	Close() error
}
