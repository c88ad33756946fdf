// Package search is the web search collaborator: a Client interface, a
// Tavily implementation and the source formatting used to feed search
// results to a model.
package search

import "context"

// Category selects the search index.
type Category string

const (
	CategoryGeneral Category = "general"
	CategoryNews    Category = "news"
)

// Request describes one batch of queries.
type Request struct {
	Queries           []string
	Category          Category
	Days              int // news only
	MaxResults        int
	IncludeRawContent bool
}

// Result is one hit.
type Result struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	RawContent string  `json:"raw_content,omitempty"`
	Score      float64 `json:"score"`
}

// Response holds the results of one query.
type Response struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
}

// Client runs a batch of queries. Responses are returned in query order.
type Client interface {
	Search(ctx context.Context, req Request) ([]Response, error)
}
