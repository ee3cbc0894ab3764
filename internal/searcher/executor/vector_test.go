package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aerospike-examples/hybrid-search/internal/storage"
	apperrors "github.com/aerospike-examples/hybrid-search/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) GetOrCompute(ctx context.Context, query string) ([]float32, bool, error) {
	f.calls++
	return f.vec, false, f.err
}

type fakeIndex struct {
	storage.VectorIndex
	neighbors []storage.Neighbor
	err       error
	limit     int
	delay     time.Duration
}

func (f *fakeIndex) Query(ctx context.Context, vec []float32, limit int) ([]storage.Neighbor, error) {
	f.limit = limit
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.neighbors, f.err
}

func TestVectorSearch_DropsDistantNeighbors(t *testing.T) {
	idx := &fakeIndex{neighbors: []storage.Neighbor{
		{ID: "a___0", Distance: 0.1},
		{ID: "b___0", Distance: 0.39},
		{ID: "c___0", Distance: 0.42},
	}}
	v := NewVector(&fakeEmbedder{vec: []float32{1, 0}}, idx, 0.4, 0)

	results, err := v.Search(context.Background(), "replication", 100)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a___0", results[0].ID)
	assert.Equal(t, "b___0", results[1].ID)
	assert.Equal(t, 100, idx.limit)
}

func TestFilterNeighbors_ThresholdIsExclusive(t *testing.T) {
	got := FilterNeighbors([]storage.Neighbor{{ID: "x", Distance: 0.4}, {ID: "y", Distance: 0.3999}}, 0.4)

	require.Len(t, got, 1)
	assert.Equal(t, "y", got[0].ID)
}

func TestVectorSearch_IndexFailureIsUnavailable(t *testing.T) {
	v := NewVector(&fakeEmbedder{vec: []float32{1}}, &fakeIndex{err: errors.New("connection refused")}, 0, 0)

	_, err := v.Search(context.Background(), "q", 10)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBackendUnavailable)
}

func TestVectorSearch_EmbeddingFailure(t *testing.T) {
	idx := &fakeIndex{}
	v := NewVector(&fakeEmbedder{err: apperrors.ErrEmbedding}, idx, 0, 0)

	_, err := v.Search(context.Background(), "q", 10)

	assert.ErrorIs(t, err, apperrors.ErrEmbedding)
	assert.Zero(t, idx.limit)
}

func TestVectorSearch_Timeout(t *testing.T) {
	idx := &fakeIndex{delay: time.Second}
	v := NewVector(&fakeEmbedder{vec: []float32{1}}, idx, 0, 10*time.Millisecond)

	_, err := v.Search(context.Background(), "q", 10)

	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}
