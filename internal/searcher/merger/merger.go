// Package merger combines the keyword and vector result lists with
// reciprocal rank fusion.
package merger

import (
	"sort"

	"github.com/aerospike-examples/hybrid-search/internal/searcher/ranker"
)

// DefaultK damps the weight of top ranks.
const DefaultK = 60

type fused struct {
	result ranker.Result
	score  float64
}

// Fuse scores every id by the sum of 1/(rank+1+k) over the lists it appears
// in, rank being its 0-based position, and returns the ids by descending
// score. Ties keep the order in which ids were first seen, a before b. A
// k < 0 uses DefaultK.
func Fuse(a, b []ranker.Result, k int) []ranker.Result {
	if k < 0 {
		k = DefaultK
	}
	byID := make(map[string]int, len(a)+len(b))
	entries := make([]fused, 0, len(a)+len(b))
	for _, list := range [][]ranker.Result{a, b} {
		for rank, r := range list {
			score := 1 / float64(rank+1+k)
			if i, ok := byID[r.ID]; ok {
				entries[i].score += score
				continue
			}
			byID[r.ID] = len(entries)
			entries = append(entries, fused{result: r, score: score})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].score > entries[j].score
	})
	out := make([]ranker.Result, len(entries))
	for i, e := range entries {
		out[i] = e.result
	}
	return out
}
