package index

import (
	"sort"
	"strconv"
	"strings"
)

// ChunkSeparator joins a document URL and a chunk index into a chunk id.
const ChunkSeparator = "___"

// ChunkID builds the id of chunk idx of the document at url.
func ChunkID(url string, idx int) string {
	return url + ChunkSeparator + strconv.Itoa(idx)
}

// ChunkIDs returns the ids of chunks [from, to) of url.
func ChunkIDs(url string, from, to int) []string {
	if from < 0 {
		from = 0
	}
	if to <= from {
		return nil
	}
	ids := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		ids = append(ids, ChunkID(url, i))
	}
	return ids
}

// DocumentURL strips the chunk suffix from a chunk id. Ids without a suffix
// are returned unchanged.
func DocumentURL(chunkID string) string {
	if i := strings.Index(chunkID, ChunkSeparator); i >= 0 {
		return chunkID[:i]
	}
	return chunkID
}

// Posting records where a term occurs inside one chunk. Positions and
// Frequency are local to the chunk content; the token lists and NumTokens
// describe the chunk and are repeated on every posting of that chunk so the
// ranker never needs a second lookup.
type Posting struct {
	Positions   []int    `json:"positions"`
	Frequency   int      `json:"frequency"`
	TitleTokens []string `json:"title_tokens"`
	DescTokens  []string `json:"desc_tokens"`
	NumTokens   int      `json:"num_tokens"`
}

// TermPostings maps term -> chunk id -> posting.
type TermPostings map[string]map[string]Posting

// TermEntry is one term with its chunk postings, the unit of a flush.
type TermEntry struct {
	Term     string
	Postings map[string]Posting
}

// Terms returns the terms in lexical order.
func (tp TermPostings) Terms() []string {
	terms := make([]string, 0, len(tp))
	for term := range tp {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// Clone returns a copy whose mappings can be pruned without touching tp.
func (tp TermPostings) Clone() TermPostings {
	out := make(TermPostings, len(tp))
	for term, docs := range tp {
		m := make(map[string]Posting, len(docs))
		for id, p := range docs {
			m[id] = p
		}
		out[term] = m
	}
	return out
}
