// Package ranker scores keyword candidates with BM25 plus title, description
// and term-proximity boosts.
package ranker

import (
	"math"
	"sort"

	"github.com/aerospike-examples/hybrid-search/internal/indexer/index"
)

const (
	k1 = 1.5
	b  = 0.75

	// DefaultLimit caps the keyword result list.
	DefaultLimit = 200

	titleWeight   = 10.0
	descWeight    = 5.0
	contentWeight = 1.0
)

// Result is one ranked chunk.
type Result struct {
	ID string `json:"id"`
}

type scoredChunk struct {
	id    string
	score float64
}

// Rank scores the chunks that contain every query term and returns at most
// limit chunk ids, best first. Terms without postings are ignored; if none
// is left, or no chunk contains all remaining terms, the result is empty.
// Ties keep chunk id order.
func Rank(termPostings index.TermPostings, totalDocs, totalTokens int64, limit int) []Result {
	postings := Intersect(termPostings)
	if len(postings) == 0 {
		return []Result{}
	}
	terms := postings.Terms()

	avgLen := 1.0
	if totalDocs > 0 && totalTokens > 0 {
		avgLen = float64(totalTokens) / float64(totalDocs)
	}

	scores := make(map[string]float64)
	for _, term := range terms {
		chunks := postings[term]
		idf := computeIDF(totalDocs, int64(len(chunks)))
		for chunkID, p := range chunks {
			content := idf * computeTFNorm(float64(p.Frequency), float64(p.NumTokens), avgLen)
			base := content + fieldBoost(p.TitleTokens, term, titleWeight) + fieldBoost(p.DescTokens, term, descWeight)
			scores[chunkID] += base + proximityBoost(postings, terms, term, chunkID, p)
		}
	}

	ranked := make([]scoredChunk, 0, len(scores))
	for id, score := range scores {
		ranked = append(ranked, scoredChunk{id: id, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	results := make([]Result, len(ranked))
	for i, c := range ranked {
		results[i] = Result{ID: c.id}
	}
	return results
}

// Intersect drops terms without postings and restricts the others to the
// chunk ids present under every remaining term. It returns nil when nothing
// survives. termPostings is not modified.
func Intersect(termPostings index.TermPostings) index.TermPostings {
	var terms []string
	for _, term := range termPostings.Terms() {
		if len(termPostings[term]) > 0 {
			terms = append(terms, term)
		}
	}
	if len(terms) == 0 {
		return nil
	}
	if len(terms) == 1 {
		return index.TermPostings{terms[0]: termPostings[terms[0]]}
	}

	smallest := terms[0]
	for _, term := range terms[1:] {
		if len(termPostings[term]) < len(termPostings[smallest]) {
			smallest = term
		}
	}
	common := make(map[string]struct{}, len(termPostings[smallest]))
	for id := range termPostings[smallest] {
		inAll := true
		for _, term := range terms {
			if _, ok := termPostings[term][id]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			common[id] = struct{}{}
		}
	}
	if len(common) == 0 {
		return nil
	}

	out := make(index.TermPostings, len(terms))
	for _, term := range terms {
		m := make(map[string]index.Posting, len(common))
		for id := range common {
			m[id] = termPostings[term][id]
		}
		out[term] = m
	}
	return out
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}

// fieldBoost rewards occurrences of term in a short field more than in a long
// one.
func fieldBoost(tokens []string, term string, weight float64) float64 {
	n := len(tokens)
	if n == 0 {
		n = 1
	}
	return float64(count(tokens, term)) * weight / float64(n)
}

// proximityBoost adds 1/d for every other query term in the chunk, where d is
// the smallest positive distance between the two terms, measured separately
// in the content, the title and the description. The pairwise scan is
// quadratic in the number of query terms.
func proximityBoost(postings index.TermPostings, terms []string, term, chunkID string, p index.Posting) float64 {
	var content, title, desc float64
	titlePos := positionsOf(p.TitleTokens, term)
	descPos := positionsOf(p.DescTokens, term)
	for _, other := range terms {
		if other == term {
			continue
		}
		op, ok := postings[other][chunkID]
		if !ok {
			continue
		}
		content += inverseDistance(p.Positions, op.Positions)
		title += inverseDistance(titlePos, positionsOf(p.TitleTokens, other))
		desc += inverseDistance(descPos, positionsOf(p.DescTokens, other))
	}
	return content*contentWeight + title*titleWeight + desc*descWeight
}

// inverseDistance returns 1/min|a_i-b_j|, or 0 when either side is empty or
// the minimum is 0.
func inverseDistance(a, b []int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	best := math.MaxInt
	for _, x := range a {
		for _, y := range b {
			d := x - y
			if d < 0 {
				d = -d
			}
			if d < best {
				best = d
			}
		}
	}
	if best == 0 {
		return 0
	}
	return 1 / float64(best)
}

func positionsOf(tokens []string, term string) []int {
	var pos []int
	for i, t := range tokens {
		if t == term {
			pos = append(pos, i)
		}
	}
	return pos
}

func count(tokens []string, term string) int {
	n := 0
	for _, t := range tokens {
		if t == term {
			n++
		}
	}
	return n
}
