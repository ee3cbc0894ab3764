package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const docURL = "https://aerospike.com/docs/server/xdr"

func TestBuildPostings(t *testing.T) {
	title := []string{"xdr"}
	desc := []string{"cross", "datacent"}
	chunks := [][]string{
		{"xdr", "ship", "record", "xdr"},
		{"record", "chang"},
	}

	tp := BuildPostings(docURL, chunks, title, desc)

	require.Contains(t, tp, "xdr")
	xdr := tp["xdr"][ChunkID(docURL, 0)]
	assert.Equal(t, []int{0, 3}, xdr.Positions)
	assert.Equal(t, 2, xdr.Frequency)
	assert.Equal(t, 4, xdr.NumTokens)
	assert.Equal(t, title, xdr.TitleTokens)
	assert.Equal(t, desc, xdr.DescTokens)

	record := tp["record"]
	require.Len(t, record, 2)
	assert.Equal(t, []int{2}, record[ChunkID(docURL, 0)].Positions)
	assert.Equal(t, []int{0}, record[ChunkID(docURL, 1)].Positions)
	assert.Equal(t, 2, record[ChunkID(docURL, 1)].NumTokens)

	assert.NotContains(t, tp["chang"], ChunkID(docURL, 0))
}

func TestBuildPostings_Empty(t *testing.T) {
	assert.Empty(t, BuildPostings(docURL, nil, nil, nil))
	assert.Empty(t, BuildPostings(docURL, [][]string{{}}, []string{"t"}, nil))
}

func TestBuilder_FirstWriterWins(t *testing.T) {
	b := NewBuilder()
	id := ChunkID(docURL, 0)
	b.AddChunk(id, []string{"a", "b"}, []string{"first"}, []string{"one"})
	b.AddChunk(id, []string{"a"}, []string{"second"}, []string{"two"})

	p := b.Postings()["a"][id]
	assert.Equal(t, []string{"first"}, p.TitleTokens)
	assert.Equal(t, []string{"one"}, p.DescTokens)
	assert.Equal(t, 2, p.NumTokens)
	assert.Equal(t, 2, p.Frequency)
	assert.Positive(t, b.Size())
}

func TestBuilder_SnapshotSortedByTerm(t *testing.T) {
	b := NewBuilder()
	b.AddChunk(ChunkID(docURL, 0), []string{"zone", "alpha", "mid"}, nil, nil)

	entries := b.Snapshot()

	require.Len(t, entries, 3)
	assert.Equal(t, "alpha", entries[0].Term)
	assert.Equal(t, "mid", entries[1].Term)
	assert.Equal(t, "zone", entries[2].Term)
	assert.Contains(t, entries[0].Postings, ChunkID(docURL, 0))
}

func TestChunkIDs(t *testing.T) {
	assert.Equal(t, docURL+"___3", ChunkID(docURL, 3))
	assert.Equal(t, []string{docURL + "___1", docURL + "___2"}, ChunkIDs(docURL, 1, 3))
	assert.Nil(t, ChunkIDs(docURL, 3, 3))
	assert.Nil(t, ChunkIDs(docURL, 4, 2))
	assert.Len(t, ChunkIDs(docURL, -2, 2), 2)
}

func TestDocumentURL(t *testing.T) {
	assert.Equal(t, docURL, DocumentURL(ChunkID(docURL, 12)))
	assert.Equal(t, docURL+"?client=java", DocumentURL(docURL+"?client=java___0"))
	assert.Equal(t, docURL, DocumentURL(docURL))
}

func TestClone(t *testing.T) {
	tp := TermPostings{"a": {"x___0": {Frequency: 1}, "y___0": {Frequency: 2}}}

	c := tp.Clone()
	delete(c["a"], "x___0")

	assert.Len(t, tp["a"], 2)
	assert.Len(t, c["a"], 1)
	assert.Equal(t, []string{"a"}, tp.Terms())
}
