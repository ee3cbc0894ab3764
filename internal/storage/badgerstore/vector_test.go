package badgerstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorIndex_QueryOrdersByDistance(t *testing.T) {
	idx := NewVectorIndex(newBackend(t), "search", "vectors", 3)
	ctx := context.Background()
	require.NoError(t, idx.CreateIndex(ctx))

	require.NoError(t, idx.Upsert(ctx, "same", []float32{1, 0, 0}))
	require.NoError(t, idx.Upsert(ctx, "close", []float32{0.9, 0.1, 0}))
	require.NoError(t, idx.Upsert(ctx, "orthogonal", []float32{0, 1, 0}))
	require.NoError(t, idx.Upsert(ctx, "opposite", []float32{-1, 0, 0}))

	hits, err := idx.Query(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "same", hits[0].ID)
	assert.InDelta(t, 0, hits[0].Distance, 1e-6)
	assert.Equal(t, "close", hits[1].ID)
	assert.Equal(t, "orthogonal", hits[2].ID)
	assert.InDelta(t, 1, hits[2].Distance, 1e-6)
}

func TestVectorIndex_UpsertReplacesAndDeleteRemoves(t *testing.T) {
	idx := NewVectorIndex(newBackend(t), "search", "vectors", 2)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", []float32{0, 1}))
	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0}))
	require.NoError(t, idx.Upsert(ctx, "b", []float32{0, 1}))

	hits, err := idx.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)

	require.NoError(t, idx.Delete(ctx, []string{"a", "missing"}))
	hits, err = idx.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)
}

func TestVectorIndex_RejectsWrongDimensions(t *testing.T) {
	idx := NewVectorIndex(newBackend(t), "search", "vectors", 3)

	assert.Error(t, idx.Upsert(context.Background(), "a", []float32{1, 0}))
}

func TestVectorIndex_ZeroLimit(t *testing.T) {
	idx := NewVectorIndex(newBackend(t), "search", "vectors", 2)

	hits, err := idx.Query(context.Background(), []float32{1, 0}, 0)

	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, CosineDistance([]float32{2, 0}, []float32{5, 0}), 1e-9)
	assert.InDelta(t, 2, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 2.0, CosineDistance([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 2.0, CosineDistance([]float32{1}, []float32{1, 0}))
}

func TestVectorCodec(t *testing.T) {
	vec := []float32{0.5, -1.25, 3}

	got, ok := decodeVector(encodeVector(vec))

	require.True(t, ok)
	assert.Equal(t, vec, got)
	_, ok = decodeVector([]byte{1, 2, 3})
	assert.False(t, ok)
}
