package research

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bgunyel/ragnar/llm"
	"github.com/bgunyel/ragnar/search"
	"github.com/bgunyel/ragnar/workflow"
)

// maxParallelQueries bounds the fan-out of one web_search pass.
const maxParallelQueries = 4

type nodes struct {
	provider llm.Provider
	client   search.Client
	opts     Options
	logger   *zap.Logger
}

type queryList struct {
	Queries []struct {
		Query string `json:"query"`
	} `json:"queries"`
}

func (q queryList) list(limit int) []string {
	out := make([]string, 0, len(q.Queries))
	seen := make(map[string]bool, len(q.Queries))
	for _, item := range q.Queries {
		text := strings.TrimSpace(item.Query)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		out = append(out, text)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (n *nodes) complete(ctx context.Context, s *State, model string, jsonMode bool, msgs ...llm.Message) (string, error) {
	resp, err := n.provider.Completion(ctx, &llm.ChatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: float32(n.opts.Temperature),
		JSONMode:    jsonMode,
	})
	if err != nil {
		return "", err
	}
	s.addUsage(resp)
	return strings.TrimSpace(resp.Message().Content), nil
}

func (n *nodes) queryWriter(ctx context.Context, s *State, cfg workflow.RunConfig) (*State, error) {
	count := cfg.Int(KeyNumberOfQueries, DefaultNumberOfQueries)
	prompt := fmt.Sprintf(queryWriterPrompt, s.Subject.Topic(), queryFocus[s.Subject.Type], count)

	content, err := n.complete(ctx, s, n.opts.ReasoningModel, true,
		llm.SystemMessage(prompt),
		llm.UserMessage(queryWriterUserPrompt))
	if err != nil {
		return s, err
	}
	var out queryList
	if err := llm.DecodeJSON(content, &out); err != nil {
		return s, fmt.Errorf("query writer reply: %w", err)
	}

	s.SearchQueries = out.list(count)
	if len(s.SearchQueries) == 0 {
		s.SearchQueries = []string{s.Subject.Topic()}
	}
	s.step(NodeQueryWriter)
	return s, nil
}

// webSearch runs every pending query concurrently. Responses keep the query
// order so the formatted sources do not depend on completion order.
func (n *nodes) webSearch(ctx context.Context, s *State, cfg workflow.RunConfig) (*State, error) {
	if len(s.SearchQueries) == 0 {
		return s, workflow.StateError("web search reached without queries")
	}

	req := search.Request{
		Category:          search.Category(cfg.String(KeyCategory, string(search.CategoryGeneral))),
		Days:              cfg.Int(KeyDaysBack, 0),
		MaxResults:        cfg.Int(KeyMaxResultsPerQuery, DefaultMaxResultsPerQuery),
		IncludeRawContent: cfg.Bool(KeyIncludeRawContent, false),
	}

	results := make([][]search.Response, len(s.SearchQueries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelQueries)
	for i, q := range s.SearchQueries {
		g.Go(func() error {
			r := req
			r.Queries = []string{q}
			resp, err := n.client.Search(gctx, r)
			if err != nil {
				return fmt.Errorf("search %q: %w", q, err)
			}
			results[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return s, err
	}

	var responses []search.Response
	for _, r := range results {
		responses = append(responses, r...)
	}
	sources, err := search.FormatSources(responses, cfg.Int(KeyMaxTokensPerSource, DefaultMaxTokensPerSource),
		req.IncludeRawContent, n.opts.Tokenizer)
	if err != nil {
		return s, err
	}

	s.Sources = sources
	s.SourceCount = len(search.Dedupe(responses))
	s.Queries = append(s.Queries, s.SearchQueries...)
	s.step(NodeWebSearch)
	n.logger.Debug("web search done",
		zap.Int("queries", len(s.SearchQueries)),
		zap.Int("sources", s.SourceCount),
		zap.Int("iteration", s.Iteration),
	)
	return s, nil
}

func (n *nodes) summaryWriter(ctx context.Context, s *State, cfg workflow.RunConfig) (*State, error) {
	content, err := n.complete(ctx, s, n.opts.LanguageModel, false,
		llm.SystemMessage(writerPrompt(s, cfg.Int(KeyWordLimit, DefaultWordLimit))),
		llm.UserMessage(summaryWriterUserPrompt))
	if err != nil {
		return s, err
	}
	s.Content = content
	s.step(NodeSummaryWriter)
	return s, nil
}

// summaryReviewer counts one research iteration. Follow-up queries mean
// another search pass; none means the summary is done.
func (n *nodes) summaryReviewer(ctx context.Context, s *State, cfg workflow.RunConfig) (*State, error) {
	count := cfg.Int(KeyNumberOfQueries, DefaultNumberOfQueries)
	content, err := n.complete(ctx, s, n.opts.ReasoningModel, true,
		llm.SystemMessage(fmt.Sprintf(reviewerPrompt, s.Subject.Topic(), s.Content, count)))
	if err != nil {
		return s, err
	}
	var out struct {
		queryList
		KnowledgeGap string `json:"knowledge_gap"`
	}
	if err := llm.DecodeJSON(content, &out); err != nil {
		return s, fmt.Errorf("summary reviewer reply: %w", err)
	}

	s.Iteration++
	s.KnowledgeGap = out.KnowledgeGap
	s.SearchQueries = out.list(count)
	if len(s.SearchQueries) == 0 {
		s.Review = ReviewDone
	} else {
		s.Review = ReviewRevise
	}
	s.step(NodeSummaryReviewer)
	return s, nil
}

func reviewRouter() workflow.Router[*State] {
	return workflow.Router[*State]{
		Name:   "review",
		Labels: []workflow.Label{LabelRevise, LabelDone},
		Decide: func(_ context.Context, s *State, _ workflow.RunConfig) (workflow.Label, error) {
			switch s.Review {
			case ReviewRevise:
				return LabelRevise, nil
			case ReviewDone:
				return LabelDone, nil
			case ReviewUnset:
				return "", workflow.StateError("review not set")
			default:
				return "", workflow.StateError("unknown review %q", s.Review)
			}
		},
		Guards: []workflow.IterationGuard[*State]{{
			Name:    "max_iterations",
			Count:   func(s *State) int { return s.Iteration },
			Ceiling: workflow.CeilingFrom(KeyMaxIterations, DefaultMaxIterations),
			Label:   LabelDone,
		}},
		Exits: []workflow.Label{LabelDone},
	}
}

// Route labels.
const (
	LabelRevise workflow.Label = "revise"
	LabelDone   workflow.Label = "done"
)
