package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/llm"
	"github.com/bgunyel/ragnar/workflow"
)

// Answer is the outcome of one pipeline run.
type Answer struct {
	RunID      string     `json:"run_id"`
	Generation string     `json:"generation"`
	Steps      []string   `json:"steps"`
	Documents  []Document `json:"documents"`
	Usage      llm.Usage  `json:"usage"`
}

// Pipeline runs one RAG variant.
type Pipeline struct {
	opts   Options
	engine *workflow.Engine[*State]
	logger *zap.Logger
}

// New compiles the graph for opts.Variant. engineOpts configure the engine
// (checkpoint store, observer, tracer, step limit).
func New(provider llm.Provider, retriever Retriever, opts Options, logger *zap.Logger, engineOpts ...workflow.Option) (*Pipeline, error) {
	if provider == nil {
		return nil, errors.New("rag: provider is required")
	}
	if retriever == nil {
		return nil, errors.New("rag: retriever is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	logger = logger.With(zap.String("component", "rag"), zap.String("variant", string(opts.Variant)))

	n := &nodes{provider: provider, retriever: retriever, opts: opts, logger: logger}
	graph, err := buildGraph(opts.Variant, n, logger)
	if err != nil {
		return nil, err
	}

	engineOpts = append([]workflow.Option{workflow.WithLogger(logger)}, engineOpts...)
	return &Pipeline{
		opts:   opts,
		engine: workflow.NewEngine(graph, engineOpts...),
		logger: logger,
	}, nil
}

func buildGraph(variant Variant, n *nodes, logger *zap.Logger) (*workflow.Graph[*State], error) {
	b := workflow.NewBuilder[*State]("rag_" + string(variant)).WithLogger(logger)

	switch variant {
	case VariantBasic:
		n.answerContext = func(s *State) []Document { return s.Documents }
		b.AddNode(NodeRetrieve, n.retrieve).
			AddNode(NodeGenerate, n.generate).
			AddEdge(workflow.Start, NodeRetrieve).
			AddEdge(NodeRetrieve, NodeGenerate).
			AddEdge(NodeGenerate, workflow.End)

	case VariantFeedback:
		n.answerContext = func(s *State) []Document { return s.GoodDocuments }
		b.AddNode(NodeRetrieve, n.retrieve).
			AddNode(NodeGradeDocuments, n.gradeDocuments).
			AddNode(NodeRewriteQuestion, n.rewriteQuestion).
			AddNode(NodeGenerate, n.generate).
			AddEdge(workflow.Start, NodeRetrieve).
			AddEdge(NodeRetrieve, NodeGradeDocuments).
			AddConditionalEdge(NodeGradeDocuments, documentsRouter(), map[workflow.Label]string{
				LabelRelevant:     NodeGenerate,
				LabelNotRelevant:  NodeRewriteQuestion,
				LabelMaxIteration: NodeGenerate,
			}).
			AddEdge(NodeRewriteQuestion, NodeRetrieve).
			AddEdge(NodeGenerate, workflow.End)

	case VariantSelfRAG:
		n.answerContext = func(s *State) []Document { return s.GoodDocuments }
		b.AddNode(NodeRouteQuestion, n.routeQuestion).
			AddNode(NodeInternalAnswer, n.internalAnswer).
			AddNode(NodeRetrieve, n.retrieve).
			AddNode(NodeGradeDocuments, n.gradeDocuments).
			AddNode(NodeRewriteQuestion, n.rewriteQuestion).
			AddNode(NodeGenerate, n.generate).
			AddNode(NodeGradeHallucination, n.gradeHallucination).
			AddNode(NodeGradeAnswer, n.gradeAnswer).
			AddNode(NodeReset, reset).
			AddEdge(workflow.Start, NodeRouteQuestion).
			AddConditionalEdge(NodeRouteQuestion, questionRouter(), map[workflow.Label]string{
				LabelVectorstore: NodeRetrieve,
				LabelInternal:    NodeInternalAnswer,
			}).
			AddEdge(NodeInternalAnswer, workflow.End).
			AddEdge(NodeRetrieve, NodeGradeDocuments).
			AddConditionalEdge(NodeGradeDocuments, documentsRouter(), map[workflow.Label]string{
				LabelRelevant:     NodeGenerate,
				LabelNotRelevant:  NodeRewriteQuestion,
				LabelMaxIteration: NodeGenerate,
			}).
			AddEdge(NodeRewriteQuestion, NodeRetrieve).
			AddEdge(NodeGenerate, NodeGradeHallucination).
			AddConditionalEdge(NodeGradeHallucination, hallucinationRouter(), map[workflow.Label]string{
				LabelGrounded:     NodeGradeAnswer,
				LabelNotGrounded:  NodeGenerate,
				LabelMaxIteration: NodeGradeAnswer,
			}).
			AddConditionalEdge(NodeGradeAnswer, usefulnessRouter(), map[workflow.Label]string{
				LabelUseful:       workflow.End,
				LabelNotUseful:    NodeRewriteQuestion,
				LabelMaxIteration: NodeReset,
			}).
			AddEdge(NodeReset, workflow.End)

	default:
		return nil, fmt.Errorf("unknown rag variant %q", variant)
	}
	return b.Compile()
}

// Variant returns the pipeline's variant.
func (p *Pipeline) Variant() Variant { return p.opts.Variant }

// Graph returns the compiled graph.
func (p *Pipeline) Graph() *workflow.Graph[*State] { return p.engine.Graph() }

// Answer runs the pipeline for question. An empty runID gets a generated
// one. On failure the error is a *workflow.RunError.
func (p *Pipeline) Answer(ctx context.Context, runID, question string) (*Answer, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	state, err := p.engine.Invoke(ctx, runID, NewState(question), p.opts.RunConfig())
	if err != nil {
		p.logger.Warn("rag run failed", zap.String("run_id", runID), zap.Error(err))
		return nil, err
	}
	return newAnswer(runID, state), nil
}

// Resume continues runID from its latest checkpoint.
func (p *Pipeline) Resume(ctx context.Context, runID string) (*Answer, error) {
	state, err := p.engine.Resume(ctx, runID, p.opts.RunConfig())
	if err != nil {
		return nil, err
	}
	return newAnswer(runID, state), nil
}

// Checkpoints returns the run's checkpoint history.
func (p *Pipeline) Checkpoints(ctx context.Context, runID string) ([]*workflow.Checkpoint, error) {
	return p.engine.Checkpoints(ctx, runID)
}

func newAnswer(runID string, s *State) *Answer {
	docs := s.GoodDocuments
	if len(docs) == 0 {
		docs = s.Documents
	}
	return &Answer{
		RunID:      runID,
		Generation: s.Generation,
		Steps:      s.Steps,
		Documents:  docs,
		Usage:      s.Usage,
	}
}
