package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/llm"
	"github.com/bgunyel/ragnar/workflow"
)

// Route labels of should_continue.
const (
	LabelContinue workflow.Label = "continue"
	LabelEnd      workflow.Label = "end"
)

// Loop is the llm_call / tools_call graph.
type Loop struct {
	provider llm.Provider
	toolbox  *Toolbox
	opts     Options
	logger   *zap.Logger
	engine   *workflow.Engine[*State]
}

// NewLoop compiles the loop graph for toolbox.
func NewLoop(provider llm.Provider, toolbox *Toolbox, opts Options, logger *zap.Logger, engineOpts ...workflow.Option) (*Loop, error) {
	if provider == nil {
		return nil, errors.New("agent: provider is required")
	}
	if toolbox == nil {
		toolbox = NewToolbox()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		provider: provider,
		toolbox:  toolbox,
		opts:     opts.withDefaults(),
		logger:   logger.With(zap.String("component", "agent_loop")),
	}

	graph, err := workflow.NewBuilder[*State]("agent").WithLogger(l.logger).
		AddNode(NodeLLMCall, l.llmCall).
		AddNode(NodeToolsCall, l.toolsCall).
		AddEdge(workflow.Start, NodeLLMCall).
		AddConditionalEdge(NodeLLMCall, shouldContinue(), map[workflow.Label]string{
			LabelContinue: NodeToolsCall,
			LabelEnd:      workflow.End,
		}).
		AddEdge(NodeToolsCall, NodeLLMCall).
		Compile()
	if err != nil {
		return nil, err
	}
	engineOpts = append([]workflow.Option{workflow.WithLogger(l.logger)}, engineOpts...)
	l.engine = workflow.NewEngine(graph, engineOpts...)
	return l, nil
}

// Toolbox returns the loop's tools.
func (l *Loop) Toolbox() *Toolbox { return l.toolbox }

// Graph returns the compiled graph.
func (l *Loop) Graph() *workflow.Graph[*State] { return l.engine.Graph() }

// Invoke runs the loop from state.
func (l *Loop) Invoke(ctx context.Context, runID string, state *State) (*State, error) {
	return l.engine.Invoke(ctx, runID, state, l.opts.RunConfig())
}

// Checkpoints returns the run's checkpoint history.
func (l *Loop) Checkpoints(ctx context.Context, runID string) ([]*workflow.Checkpoint, error) {
	return l.engine.Checkpoints(ctx, runID)
}

func (l *Loop) llmCall(ctx context.Context, s *State, _ workflow.RunConfig) (*State, error) {
	resp, err := l.provider.Completion(ctx, &llm.ChatRequest{
		Model:       l.opts.Model,
		Messages:    s.Messages,
		MaxTokens:   l.opts.MaxTokens,
		Temperature: float32(l.opts.Temperature),
		Tools:       l.toolbox.Schemas(),
	})
	if err != nil {
		return s, err
	}
	msg := resp.Message()
	msg.Role = llm.RoleAssistant
	s.Messages = append(s.Messages, msg)
	s.Usage = s.Usage.Merge(resp.ModelUsage())
	s.Turns++
	return s, nil
}

// toolsCall answers every pending tool call, in order, with one tool
// message each.
func (l *Loop) toolsCall(ctx context.Context, s *State, _ workflow.RunConfig) (*State, error) {
	for _, call := range s.PendingToolCalls() {
		content, usage, err := l.dispatch(ctx, call, s)
		if err != nil {
			return s, err
		}
		s.Usage = s.Usage.Merge(usage)
		s.Messages = append(s.Messages, llm.ToolMessage(call, content))
	}
	return s, nil
}

func (l *Loop) dispatch(ctx context.Context, call llm.ToolCall, s *State) (string, llm.Usage, error) {
	tool, ok := l.toolbox.Get(call.Name)
	if !ok {
		l.logger.Warn("unknown tool call", zap.String("tool", call.Name))
		return fmt.Sprintf("Unknown tool call: %s", call.Name), nil, nil
	}

	if tool.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tool.Timeout)
		defer cancel()
	}
	result, err := tool.Handler(ctx, call, s)
	if errors.Is(err, ErrInvalidArguments) {
		l.logger.Warn("invalid tool arguments", zap.String("tool", call.Name), zap.Error(err))
		msg := strings.TrimPrefix(err.Error(), ErrInvalidArguments.Error()+": ")
		return fmt.Sprintf("invalid arguments for %s: %s", call.Name, msg), nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("tool %s: %w", call.Name, err)
	}
	l.logger.Debug("tool call done", zap.String("tool", call.Name), zap.Int("result_bytes", len(result.Content)))
	return result.Content, result.Usage, nil
}

func shouldContinue() workflow.Router[*State] {
	return workflow.Router[*State]{
		Name:   "should_continue",
		Labels: []workflow.Label{LabelContinue, LabelEnd},
		Decide: func(_ context.Context, s *State, _ workflow.RunConfig) (workflow.Label, error) {
			last, ok := s.Last()
			if !ok || last.Role != llm.RoleAssistant {
				return "", workflow.StateError("latest message is not an assistant message")
			}
			if len(last.ToolCalls) == 0 {
				return LabelEnd, nil
			}
			return LabelContinue, nil
		},
		Guards: []workflow.IterationGuard[*State]{{
			Name:    "max_turns",
			Count:   func(s *State) int { return s.Turns },
			Ceiling: workflow.CeilingFrom(KeyMaxIterations, DefaultMaxIterations),
			Label:   LabelEnd,
		}},
		Exits: []workflow.Label{LabelEnd},
	}
}
