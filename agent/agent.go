package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/llm"
	"github.com/bgunyel/ragnar/workflow"
)

// Result is the outcome of one agent turn.
type Result struct {
	// RunID names the conversation; TurnID is the workflow run of this turn.
	RunID      string          `json:"run_id"`
	TurnID     string          `json:"turn_id"`
	Content    string          `json:"content"`
	TokenUsage llm.Usage       `json:"token_usage"`
	CostList   []llm.ModelCost `json:"cost_list"`
	TotalCost  float64         `json:"total_cost"`
	Todos      []Todo          `json:"todos,omitempty"`
}

type conversation struct {
	mu       sync.Mutex
	messages []llm.Message
	todos    []Todo
	turns    int
}

// Agent keeps one conversation per run ID and answers each query with a
// fresh loop run over the conversation so far.
type Agent struct {
	loop   *Loop
	opts   Options
	prices llm.PriceTable
	logger *zap.Logger

	mu            sync.Mutex
	conversations map[string]*conversation
}

// New builds an agent with the given tools. Deep-agent mode adds the todo
// tools.
func New(provider llm.Provider, toolbox *Toolbox, opts Options, prices llm.PriceTable, logger *zap.Logger, engineOpts ...workflow.Option) (*Agent, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if toolbox == nil {
		toolbox = NewToolbox()
	}
	opts = opts.withDefaults()
	if opts.DeepAgent {
		if err := toolbox.Register(TodoTools()...); err != nil {
			return nil, err
		}
	}
	loop, err := NewLoop(provider, toolbox, opts, logger, engineOpts...)
	if err != nil {
		return nil, err
	}
	return &Agent{
		loop:          loop,
		opts:          opts,
		prices:        prices,
		logger:        logger.With(zap.String("component", "agent")),
		conversations: make(map[string]*conversation),
	}, nil
}

// NewBusinessIntelligence builds the business intelligence agent: research
// tools backed by researcher and storage tools backed by store. Either may
// be nil to leave its tools out.
func NewBusinessIntelligence(provider llm.Provider, researcher Researcher, store EntityStore, opts Options, prices llm.PriceTable, logger *zap.Logger, engineOpts ...workflow.Option) (*Agent, error) {
	toolbox := NewToolbox()
	if researcher != nil {
		if err := toolbox.Register(ResearchTools(researcher)...); err != nil {
			return nil, err
		}
	}
	if store != nil {
		if err := toolbox.Register(StorageTools(store)...); err != nil {
			return nil, err
		}
	}
	return New(provider, toolbox, opts, prices, logger, engineOpts...)
}

// IterationLimitContent answers a turn that hit the iteration limit while
// the model was still calling tools.
const IterationLimitContent = "I could not finish: iteration limit reached."

// Loop returns the underlying loop.
func (a *Agent) Loop() *Loop { return a.loop }

// Run answers query in the conversation runID. An empty runID starts a new
// conversation. Turns of one conversation are serialized.
func (a *Agent) Run(ctx context.Context, runID, query string) (*Result, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	conv := a.conversation(runID)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	history := conv.messages
	if len(history) == 0 {
		history = []llm.Message{llm.SystemMessage(a.opts.SystemPrompt())}
	}
	state := NewState(append(history, llm.UserMessage(query)))
	state.Todos = conv.todos
	turnID := fmt.Sprintf("%s:%d", runID, conv.turns+1)

	out, err := a.loop.Invoke(ctx, turnID, state)
	if err != nil {
		a.logger.Warn("agent run failed", zap.String("run_id", runID), zap.String("turn_id", turnID), zap.Error(err))
		return nil, err
	}

	// Only messages appended by this turn may answer it.
	turn := out.Messages[len(history)+1:]
	content := lastAssistantContent(turn)
	if pending := out.PendingToolCalls(); len(pending) > 0 {
		a.logger.Warn("iteration limit reached with pending tool calls",
			zap.String("run_id", runID),
			zap.Int("pending", len(pending)),
		)
		if last, _ := out.Last(); last.Content != "" {
			content = last.Content
		} else {
			content = IterationLimitContent
		}
		for _, call := range pending {
			out.Messages = append(out.Messages, llm.ToolMessage(call, "Tool call skipped: iteration limit reached."))
		}
	}

	conv.messages = out.Messages
	conv.todos = out.Todos
	conv.turns++

	costs, total := a.prices.Cost(out.Usage)
	return &Result{
		RunID:      runID,
		TurnID:     turnID,
		Content:    content,
		TokenUsage: out.Usage,
		CostList:   costs,
		TotalCost:  total,
		Todos:      out.Todos,
	}, nil
}

// History returns a copy of the conversation messages.
func (a *Agent) History(runID string) []llm.Message {
	a.mu.Lock()
	conv, ok := a.conversations[runID]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return append([]llm.Message(nil), conv.messages...)
}

// Forget drops a conversation.
func (a *Agent) Forget(runID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.conversations, runID)
}

func (a *Agent) conversation(runID string) *conversation {
	a.mu.Lock()
	defer a.mu.Unlock()
	conv, ok := a.conversations[runID]
	if !ok {
		conv = &conversation{}
		a.conversations[runID] = conv
	}
	return conv
}

func lastAssistantContent(msgs []llm.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleAssistant && msgs[i].Content != "" {
			return msgs[i].Content
		}
	}
	return ""
}
