package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/aerospike-examples/hybrid-search/internal/indexer"
	"github.com/aerospike-examples/hybrid-search/internal/indexer/index"
	"github.com/aerospike-examples/hybrid-search/internal/indexer/tokenizer"
	"github.com/aerospike-examples/hybrid-search/internal/searcher/executor"
	"github.com/aerospike-examples/hybrid-search/internal/searcher/merger"
	"github.com/aerospike-examples/hybrid-search/internal/searcher/parser"
	"github.com/aerospike-examples/hybrid-search/internal/searcher/ranker"
)

// BenchmarkQueryParse measures query parsing for various query shapes.
func BenchmarkQueryParse(b *testing.B) {
	queries := []string{
		"namespace",
		"configure secondary index",
		"how do I rewind a namespace for cross datacenter replication",
		"the and of",
	}
	for _, q := range queries {
		b.Run(q, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				plan := parser.Parse(q, tokenizer.Default{})
				_ = plan
			}
		})
	}
}

// syntheticPostings builds postings for terms over n chunks, every chunk
// containing every term so nothing is lost to the intersection.
func syntheticPostings(terms []string, n int) index.TermPostings {
	chunks := make([][]string, n)
	for i := range chunks {
		tokens := make([]string, 0, 60)
		for j := 0; j < 60; j++ {
			tokens = append(tokens, terms[(i+j)%len(terms)])
		}
		chunks[i] = tokens
	}
	return index.BuildPostings("https://aerospike.com/docs/server/bench", chunks,
		[]string{terms[0]}, []string{terms[len(terms)-1]})
}

// BenchmarkBM25Ranking measures ranking throughput for a single term.
func BenchmarkBM25Ranking(b *testing.B) {
	for _, n := range []int{100, 1000, 10000} {
		postings := syntheticPostings([]string{"namespac"}, n)
		b.Run(fmt.Sprintf("chunks_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				results := ranker.Rank(postings, int64(n), int64(n*60), ranker.DefaultLimit)
				_ = results
			}
		})
	}
}

// BenchmarkBM25MultiTerm measures ranking with intersection and the
// proximity boost over several terms.
func BenchmarkBM25MultiTerm(b *testing.B) {
	terms := []string{"rewind", "namespac", "replic", "destin"}
	for _, n := range []int{100, 1000} {
		postings := syntheticPostings(terms, n)
		b.Run(fmt.Sprintf("chunks_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				results := ranker.Rank(postings, int64(n), int64(n*60), ranker.DefaultLimit)
				_ = results
			}
		})
	}
}

// BenchmarkFuse measures reciprocal rank fusion of two full result lists.
func BenchmarkFuse(b *testing.B) {
	vector := make([]ranker.Result, 100)
	keyword := make([]ranker.Result, 200)
	for i := range vector {
		vector[i] = ranker.Result{ID: index.ChunkID(benchURL(i*2), 0)}
	}
	for i := range keyword {
		keyword[i] = ranker.Result{ID: index.ChunkID(benchURL(i), 0)}
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fused := merger.Fuse(vector, keyword, 60)
		_ = fused
	}
}

// BenchmarkKeywordSearch measures the keyword path end to end against the
// embedded store: postings lookup, totals, ranking.
func BenchmarkKeywordSearch(b *testing.B) {
	engine, store := newBenchEngine(b)
	ctx := context.Background()
	pages := make([]indexer.Page, 500)
	for i := range pages {
		pages[i] = indexer.Page{URL: benchURL(i), Title: topics[i%len(topics)] + " guide", Body: benchBody(i)}
	}
	engine.IndexBatch(ctx, pages)
	if _, err := indexer.NewManager(store, nil, nil).RecomputeTotals(ctx); err != nil {
		b.Fatal(err)
	}

	kw := executor.NewKeyword(store, ranker.DefaultLimit)
	plan := parser.Parse("replication configuration", tokenizer.Default{})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		results, err := kw.Search(ctx, plan)
		if err != nil {
			b.Fatal(err)
		}
		_ = results
	}
}

// BenchmarkKeywordSearchParallel measures concurrent keyword queries.
func BenchmarkKeywordSearchParallel(b *testing.B) {
	engine, store := newBenchEngine(b)
	ctx := context.Background()
	pages := make([]indexer.Page, 500)
	for i := range pages {
		pages[i] = indexer.Page{URL: benchURL(i), Title: "guide", Body: benchBody(i)}
	}
	engine.IndexBatch(ctx, pages)
	if _, err := indexer.NewManager(store, nil, nil).RecomputeTotals(ctx); err != nil {
		b.Fatal(err)
	}
	kw := executor.NewKeyword(store, ranker.DefaultLimit)
	plan := parser.Parse("cluster partition", tokenizer.Default{})

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := kw.Search(ctx, plan); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
