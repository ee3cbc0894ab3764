// Package parser turns a raw query string into the plan the search paths run.
package parser

import (
	"strings"

	"github.com/aerospike-examples/hybrid-search/internal/indexer/tokenizer"
)

// QueryPlan is a parsed query. Terms are the distinct keyword terms in query
// order; the vector path embeds Text unchanged.
type QueryPlan struct {
	Text  string
	Terms []string
}

// Empty reports whether the query has no keyword terms, e.g. when it is made
// of stopwords only.
func (p *QueryPlan) Empty() bool {
	return len(p.Terms) == 0
}

// Parse tokenizes query with tok. A nil tok uses the default tokenizer.
func Parse(query string, tok tokenizer.Tokenizer) *QueryPlan {
	if tok == nil {
		tok = tokenizer.Default{}
	}
	plan := &QueryPlan{
		Text:  query,
		Terms: make([]string, 0),
	}
	if strings.TrimSpace(query) == "" {
		return plan
	}
	seen := make(map[string]struct{})
	for _, term := range tok.Tokenize(query) {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		plan.Terms = append(plan.Terms, term)
	}
	return plan
}
