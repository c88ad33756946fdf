package research

import (
	"github.com/bgunyel/ragnar/llm/tokenizer"
	"github.com/bgunyel/ragnar/search"
	"github.com/bgunyel/ragnar/workflow"
)

// RunConfig keys read by the research nodes and router.
const (
	KeyNumberOfQueries    = "number_of_queries"
	KeyMaxResultsPerQuery = "max_results_per_query"
	KeyMaxTokensPerSource = "max_tokens_per_source"
	KeyMaxIterations      = "max_iterations"
	KeyCategory           = "search_category"
	KeyDaysBack           = "number_of_days_back"
	KeyIncludeRawContent  = "include_raw_content"
	KeyWordLimit          = "word_limit"
)

const (
	DefaultNumberOfQueries    = 3
	DefaultMaxResultsPerQuery = 4
	DefaultMaxTokensPerSource = 10000
	DefaultMaxIterations      = 3
	DefaultWordLimit          = 1000
)

// Options configures a Researcher.
type Options struct {
	// LanguageModel writes the summary; ReasoningModel writes queries and
	// reviews. Either falls back to the other when empty.
	LanguageModel  string
	ReasoningModel string
	Temperature    float64

	NumberOfQueries    int
	MaxResultsPerQuery int
	MaxTokensPerSource int
	MaxIterations      int
	Category           search.Category
	DaysBack           int
	IncludeRawContent  bool
	WordLimit          int

	// Tokenizer cuts raw source content; tokenizer.GetOrDefault of the
	// language model when nil.
	Tokenizer tokenizer.Tokenizer
}

func DefaultOptions() Options {
	return Options{
		NumberOfQueries:    DefaultNumberOfQueries,
		MaxResultsPerQuery: DefaultMaxResultsPerQuery,
		MaxTokensPerSource: DefaultMaxTokensPerSource,
		MaxIterations:      DefaultMaxIterations,
		Category:           search.CategoryGeneral,
		WordLimit:          DefaultWordLimit,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.NumberOfQueries <= 0 {
		o.NumberOfQueries = d.NumberOfQueries
	}
	if o.MaxResultsPerQuery <= 0 {
		o.MaxResultsPerQuery = d.MaxResultsPerQuery
	}
	if o.MaxTokensPerSource <= 0 {
		o.MaxTokensPerSource = d.MaxTokensPerSource
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.Category == "" {
		o.Category = d.Category
	}
	if o.WordLimit <= 0 {
		o.WordLimit = d.WordLimit
	}
	if o.LanguageModel == "" {
		o.LanguageModel = o.ReasoningModel
	}
	if o.ReasoningModel == "" {
		o.ReasoningModel = o.LanguageModel
	}
	if o.Tokenizer == nil {
		o.Tokenizer = tokenizer.GetOrDefault(o.LanguageModel)
	}
	return o
}

// RunConfig exposes the per-run tunables.
func (o Options) RunConfig() workflow.RunConfig {
	o = o.withDefaults()
	return workflow.NewRunConfig(map[string]any{
		KeyNumberOfQueries:    o.NumberOfQueries,
		KeyMaxResultsPerQuery: o.MaxResultsPerQuery,
		KeyMaxTokensPerSource: o.MaxTokensPerSource,
		KeyMaxIterations:      o.MaxIterations,
		KeyCategory:           string(o.Category),
		KeyDaysBack:           o.DaysBack,
		KeyIncludeRawContent:  o.IncludeRawContent,
		KeyWordLimit:          o.WordLimit,
	})
}
