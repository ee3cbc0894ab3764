package badgerstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/aerospike-examples/hybrid-search/internal/storage"
	badgerdb "github.com/aerospike-examples/hybrid-search/pkg/badger"
	"github.com/dgraph-io/badger/v4"
)

// VectorIndex is a brute-force cosine index over vectors kept in Badger. It
// suits single-node deployments and tests; larger corpora use pgvector.
type VectorIndex struct {
	backend    *badgerdb.Backend
	prefix     []byte
	dimensions int
	logger     *slog.Logger
}

var _ storage.VectorIndex = (*VectorIndex)(nil)

func NewVectorIndex(backend *badgerdb.Backend, namespace, name string, dimensions int) *VectorIndex {
	return &VectorIndex{
		backend:    backend,
		prefix:     []byte(namespace + "/" + name + "/"),
		dimensions: dimensions,
		logger:     slog.Default().With("component", "badger-vectors"),
	}
}

// CreateIndex has nothing to prepare; vectors live under a key prefix.
func (v *VectorIndex) CreateIndex(ctx context.Context) error {
	return nil
}

func (v *VectorIndex) Upsert(ctx context.Context, id string, vec []float32) error {
	if len(vec) != v.dimensions {
		return fmt.Errorf("vector for %s has %d dimensions, want %d", id, len(vec), v.dimensions)
	}
	err := v.backend.Update(ctx, func(txn *badger.Txn) error {
		return txn.Set(append(append([]byte{}, v.prefix...), id...), encodeVector(vec))
	})
	if err != nil {
		return fmt.Errorf("upserting vector %s: %w", id, err)
	}
	return nil
}

func (v *VectorIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	wb := v.backend.DB().NewWriteBatch()
	defer wb.Cancel()
	for _, id := range ids {
		if err := wb.Delete(append(append([]byte{}, v.prefix...), id...)); err != nil {
			return fmt.Errorf("deleting vector %s: %w", id, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("deleting %d vectors: %w", len(ids), err)
	}
	return nil
}

func (v *VectorIndex) Query(ctx context.Context, vec []float32, limit int) ([]storage.Neighbor, error) {
	if limit <= 0 {
		return nil, nil
	}
	var hits []storage.Neighbor
	err := v.backend.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: v.prefix, PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()
		for it.Seek(v.prefix); it.ValidForPrefix(v.prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id := string(item.Key()[len(v.prefix):])
			err := item.Value(func(val []byte) error {
				stored, ok := decodeVector(val)
				if !ok {
					v.logger.Warn("skipping corrupt vector", "id", id)
					return nil
				}
				hits = append(hits, storage.Neighbor{ID: id, Distance: CosineDistance(vec, stored)})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (v *VectorIndex) Ping(ctx context.Context) error {
	return v.backend.Ping(ctx)
}

func (v *VectorIndex) Close() error {
	return nil
}

// CosineDistance returns 1 - cos(a, b). Zero vectors and mismatched lengths
// are maximally distant.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, bool) {
	if len(buf)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, true
}
