package index

// Builder accumulates the postings of one document's chunks in memory so
// they can be flushed as a single merge-write per term.
type Builder struct {
	index map[string]map[string]*Posting
	size  int64
}

func NewBuilder() *Builder {
	return &Builder{
		index: make(map[string]map[string]*Posting),
	}
}

// AddChunk records every token of a chunk at its position in tokens. Chunk
// metadata is attached by the first token that creates a posting and never
// overwritten afterwards.
func (b *Builder) AddChunk(chunkID string, tokens []string, titleTokens []string, descTokens []string) {
	for position, term := range tokens {
		docs, exists := b.index[term]
		if !exists {
			docs = make(map[string]*Posting)
			b.index[term] = docs
		}
		p, exists := docs[chunkID]
		if !exists {
			p = &Posting{
				Positions: make([]int, 0, 4),
			}
			docs[chunkID] = p
			b.size += int64(len(term) + len(chunkID) + 64)
		}
		p.Frequency++
		p.Positions = append(p.Positions, position)
		if len(p.TitleTokens) == 0 {
			p.TitleTokens = titleTokens
		}
		if len(p.DescTokens) == 0 {
			p.DescTokens = descTokens
		}
		if p.NumTokens == 0 {
			p.NumTokens = len(tokens)
		}
		b.size += 8
	}
}

// Postings returns the accumulated postings by term.
func (b *Builder) Postings() TermPostings {
	out := make(TermPostings, len(b.index))
	for term, docs := range b.index {
		m := make(map[string]Posting, len(docs))
		for chunkID, p := range docs {
			m[chunkID] = *p
		}
		out[term] = m
	}
	return out
}

// Snapshot returns one entry per term, sorted by term, ready to flush.
func (b *Builder) Snapshot() []TermEntry {
	postings := b.Postings()
	entries := make([]TermEntry, 0, len(postings))
	for _, term := range postings.Terms() {
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: postings[term],
		})
	}
	return entries
}

// Size estimates the builder's memory footprint in bytes.
func (b *Builder) Size() int64 {
	return b.size
}

// BuildPostings builds the postings of a document whose chunk i has the
// tokens chunkTokens[i]. Chunk ids are url + "___" + i.
func BuildPostings(url string, chunkTokens [][]string, titleTokens []string, descTokens []string) TermPostings {
	b := NewBuilder()
	for i, tokens := range chunkTokens {
		b.AddChunk(ChunkID(url, i), tokens, titleTokens, descTokens)
	}
	return b.Postings()
}
