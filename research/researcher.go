package research

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/llm"
	"github.com/bgunyel/ragnar/search"
	"github.com/bgunyel/ragnar/workflow"
)

// Report is the outcome of one research run.
type Report struct {
	RunID      string    `json:"run_id"`
	Subject    Subject   `json:"subject"`
	Content    string    `json:"content"`
	Queries    []string  `json:"queries"`
	Iterations int       `json:"iterations"`
	Steps      []string  `json:"steps"`
	Usage      llm.Usage `json:"usage"`
}

// Researcher runs the research graph. It is safe for concurrent use; every
// run has its own state.
type Researcher struct {
	opts   Options
	engine *workflow.Engine[*State]
	logger *zap.Logger
}

// New compiles the research graph.
func New(provider llm.Provider, client search.Client, opts Options, logger *zap.Logger, engineOpts ...workflow.Option) (*Researcher, error) {
	if provider == nil {
		return nil, errors.New("research: provider is required")
	}
	if client == nil {
		return nil, errors.New("research: search client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	logger = logger.With(zap.String("component", "research"))

	n := &nodes{provider: provider, client: client, opts: opts, logger: logger}
	graph, err := workflow.NewBuilder[*State]("research").WithLogger(logger).
		AddNode(NodeQueryWriter, n.queryWriter).
		AddNode(NodeWebSearch, n.webSearch).
		AddNode(NodeSummaryWriter, n.summaryWriter).
		AddNode(NodeSummaryReviewer, n.summaryReviewer).
		AddEdge(workflow.Start, NodeQueryWriter).
		AddEdge(NodeQueryWriter, NodeWebSearch).
		AddEdge(NodeWebSearch, NodeSummaryWriter).
		AddEdge(NodeSummaryWriter, NodeSummaryReviewer).
		AddConditionalEdge(NodeSummaryReviewer, reviewRouter(), map[workflow.Label]string{
			LabelRevise: NodeWebSearch,
			LabelDone:   workflow.End,
		}).
		Compile()
	if err != nil {
		return nil, err
	}

	engineOpts = append([]workflow.Option{workflow.WithLogger(logger)}, engineOpts...)
	return &Researcher{
		opts:   opts,
		engine: workflow.NewEngine(graph, engineOpts...),
		logger: logger,
	}, nil
}

// Graph returns the compiled graph.
func (r *Researcher) Graph() *workflow.Graph[*State] { return r.engine.Graph() }

// Run researches a free-form topic.
func (r *Researcher) Run(ctx context.Context, runID, topic string) (*Report, error) {
	return r.Research(ctx, runID, Subject{Type: SearchTypeTopic, Name: topic})
}

// Research runs the graph for subject. An empty runID gets a generated one.
func (r *Researcher) Research(ctx context.Context, runID string, subject Subject) (*Report, error) {
	if subject.Type == "" {
		subject.Type = SearchTypeTopic
	}
	if err := subject.validate(); err != nil {
		return nil, err
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	state, err := r.engine.Invoke(ctx, runID, NewState(subject), r.opts.RunConfig())
	if err != nil {
		r.logger.Warn("research run failed",
			zap.String("run_id", runID),
			zap.String("subject", subject.Topic()),
			zap.Error(err),
		)
		return nil, err
	}
	return &Report{
		RunID:      runID,
		Subject:    subject,
		Content:    state.Content,
		Queries:    state.Queries,
		Iterations: state.Iteration,
		Steps:      state.Steps,
		Usage:      state.Usage,
	}, nil
}
