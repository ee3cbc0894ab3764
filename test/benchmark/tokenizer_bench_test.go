package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/aerospike-examples/hybrid-search/internal/indexer/tokenizer"
)

var sampleTexts = map[string]string{
	"short": "How do I configure a secondary index on a namespace?",
	"medium": `A secondary index lets queries find records by bin value instead of by
        primary key. Indexes are built in memory on every node and cover one bin
        of one set in a namespace. Creating an index starts a background scan
        that populates it; queries issued before the scan finishes return the
        records indexed so far. Drop the index when the bin is no longer queried
        to reclaim the memory it uses.`,
	"long": strings.Repeat(`Cross datacenter replication ships record changes from a source
        cluster to one or more destinations. Shipping is asynchronous and ordered
        per partition, and the digest log records which partitions still have
        work pending. Rewinding a namespace replays every record, which is how a
        new destination catches up. Filtering expressions restrict what is shipped
        and bin projections trim what each record carries. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				tokens := tokenizer.Tokenize(text)
				_ = tokens
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			tokens := tokenizer.Tokenize(text)
			_ = tokens
		}
	})
}

func BenchmarkStemming(b *testing.B) {
	words := []string{
		"replicating", "namespaces", "queries", "indexing",
		"configuration", "partitions", "expressions",
		"clusters", "destinations", "records",
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		for _, w := range words {
			tokens := tokenizer.Tokenize(w)
			_ = tokens
		}
	}
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	sizes := []int{10, 100, 500, 1000, 5000}
	baseWord := "hybrid search keyword vector indexing "
	for _, size := range sizes {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				tokens := tokenizer.Tokenize(text)
				_ = tokens
			}
		})
	}
}
