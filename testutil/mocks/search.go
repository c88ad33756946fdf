package mocks

import (
	"context"
	"sync"

	"github.com/bgunyel/ragnar/search"
)

// StaticSearch is a search.Client answering from a fixed table.
type StaticSearch struct {
	mu       sync.Mutex
	results  map[string][]search.Result
	fallback []search.Result
	err      error
	requests []search.Request
}

func NewStaticSearch() *StaticSearch {
	return &StaticSearch{results: make(map[string][]search.Result)}
}

// WithResults answers query with results.
func (s *StaticSearch) WithResults(query string, results ...search.Result) *StaticSearch {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[query] = results
	return s
}

// WithFallback answers every query without its own results.
func (s *StaticSearch) WithFallback(results ...search.Result) *StaticSearch {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = results
	return s
}

func (s *StaticSearch) WithError(err error) *StaticSearch {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

func (s *StaticSearch) Search(ctx context.Context, req search.Request) ([]search.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}

	out := make([]search.Response, 0, len(req.Queries))
	for _, q := range req.Queries {
		results, ok := s.results[q]
		if !ok {
			results = s.fallback
		}
		if req.MaxResults > 0 && len(results) > req.MaxResults {
			results = results[:req.MaxResults]
		}
		out = append(out, search.Response{Query: q, Results: append([]search.Result(nil), results...)})
	}
	return out, nil
}

// Requests returns the recorded requests.
func (s *StaticSearch) Requests() []search.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]search.Request(nil), s.requests...)
}
