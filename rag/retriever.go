package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/search"
)

// Retriever returns up to k documents for query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Document, error)
}

// RetrieverFunc adapts a function to Retriever.
type RetrieverFunc func(ctx context.Context, query string, k int) ([]Document, error)

func (f RetrieverFunc) Retrieve(ctx context.Context, query string, k int) ([]Document, error) {
	return f(ctx, query, k)
}

// SearchRetriever retrieves from a web search client.
type SearchRetriever struct {
	client   search.Client
	category search.Category
	days     int
	logger   *zap.Logger
}

// NewSearchRetriever wraps client. category may be empty for general search.
func NewSearchRetriever(client search.Client, category search.Category, days int, logger *zap.Logger) *SearchRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if category == "" {
		category = search.CategoryGeneral
	}
	return &SearchRetriever{
		client:   client,
		category: category,
		days:     days,
		logger:   logger.With(zap.String("component", "search_retriever")),
	}
}

func (r *SearchRetriever) Retrieve(ctx context.Context, query string, k int) ([]Document, error) {
	responses, err := r.client.Search(ctx, search.Request{
		Queries:    []string{query},
		Category:   r.category,
		Days:       r.days,
		MaxResults: k,
	})
	if err != nil {
		return nil, fmt.Errorf("search retrieval: %w", err)
	}

	results := search.Dedupe(responses)
	if len(results) > k {
		results = results[:k]
	}
	docs := make([]Document, 0, len(results))
	for _, res := range results {
		docs = append(docs, Document{
			ID:      res.URL,
			Title:   res.Title,
			URL:     res.URL,
			Content: res.Content,
			Score:   res.Score,
		})
	}
	r.logger.Debug("retrieved", zap.String("query", query), zap.Int("documents", len(docs)))
	return docs, nil
}

// StaticRetriever ranks a fixed corpus by keyword overlap with the query.
// Documents sharing no term with the query are never returned.
type StaticRetriever struct {
	docs  []Document
	terms []map[string]bool
}

func NewStaticRetriever(docs ...Document) *StaticRetriever {
	r := &StaticRetriever{docs: docs, terms: make([]map[string]bool, len(docs))}
	for i, d := range docs {
		r.terms[i] = termSet(d.Title + " " + d.Content)
	}
	return r
}

func (r *StaticRetriever) Retrieve(ctx context.Context, query string, k int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := termSet(query)
	if len(q) == 0 || k <= 0 {
		return nil, nil
	}

	type scored struct {
		idx   int
		score float64
	}
	var hits []scored
	for i, terms := range r.terms {
		overlap := 0
		for t := range q {
			if terms[t] {
				overlap++
			}
		}
		if overlap > 0 {
			hits = append(hits, scored{idx: i, score: float64(overlap) / float64(len(q))})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if len(hits) > k {
		hits = hits[:k]
	}

	out := make([]Document, 0, len(hits))
	for _, h := range hits {
		d := r.docs[h.idx]
		d.Score = h.score
		out = append(out, d)
	}
	return out, nil
}

func termSet(text string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		if len(w) > 2 {
			set[w] = true
		}
	}
	return set
}
