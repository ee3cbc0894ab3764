package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// HashProvider derives a unit vector from an FNV hash of the text. Equal
// texts embed identically, which is all development setups and tests need.
type HashProvider struct {
	dimensions int
}

func NewHashProvider(dimensions int) *HashProvider {
	return &HashProvider{dimensions: dimensions}
}

func (h *HashProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = hashVector(text, h.dimensions)
	}
	return out, nil
}

func hashVector(text string, dim int) []float32 {
	f := fnv.New32a()
	f.Write([]byte(text))
	seed := f.Sum32()

	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%2000)/1000 - 1
		norm += float64(vec[i]) * float64(vec[i])
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
