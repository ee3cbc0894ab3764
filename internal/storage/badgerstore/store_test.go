package badgerstore

import (
	"context"
	"testing"

	"github.com/aerospike-examples/hybrid-search/internal/storage"
	"github.com/aerospike-examples/hybrid-search/internal/storage/storagetest"
	badgerdb "github.com/aerospike-examples/hybrid-search/pkg/badger"
	"github.com/aerospike-examples/hybrid-search/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T) *badgerdb.Backend {
	t.Helper()
	backend, err := badgerdb.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return backend
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return New(newBackend(t), config.Default().Storage)
	})
}

func TestMarkSeen_EmptyHashNeverUnchanged(t *testing.T) {
	s := New(newBackend(t), config.Default().Storage)
	ctx := context.Background()

	_, err := s.MarkSeen(ctx, "u", "")
	require.NoError(t, err)
	res, err := s.MarkSeen(ctx, "u", "")
	require.NoError(t, err)

	assert.False(t, res.Unchanged)
}

func TestScanChunks_Pages(t *testing.T) {
	s := New(newBackend(t), config.Default().Storage)
	ctx := context.Background()

	chunks := make([]storage.Chunk, scanPage+5)
	for i := range chunks {
		chunks[i] = storage.Chunk{ID: "doc___" + string(rune('a'+i%26)) + string(rune('a'+i/26%26)) + string(rune('a'+i/676)), NumTokens: 1}
	}
	require.NoError(t, s.PutChunks(ctx, chunks))

	seen := make(map[string]bool)
	require.NoError(t, s.ScanChunks(ctx, true, func(c storage.Chunk) error {
		seen[c.ID] = true
		return nil
	}))
	assert.Len(t, seen, len(chunks))
}
