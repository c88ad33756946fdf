package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bgunyel/ragnar/llm"
)

// ErrInvalidArguments marks a tool call whose arguments could not be used.
// The loop reports it to the model instead of failing the run.
var ErrInvalidArguments = errors.New("invalid tool arguments")

// ToolResult is what a handler returns to the model.
type ToolResult struct {
	Content string
	// Usage of any nested model work done by the tool.
	Usage llm.Usage
}

// ToolHandler executes one tool call. It may change state (e.g. todos).
type ToolHandler func(ctx context.Context, call llm.ToolCall, state *State) (ToolResult, error)

// Tool is a registered tool.
type Tool struct {
	Schema  llm.ToolSchema
	Handler ToolHandler
	// Timeout bounds one call; zero means no limit beyond the run context.
	Timeout time.Duration
}

// Toolbox maps tool names to handlers.
type Toolbox struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewToolbox() *Toolbox {
	return &Toolbox{tools: make(map[string]Tool)}
}

// Register adds tools. Names must be unique.
func (b *Toolbox) Register(tools ...Tool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range tools {
		if t.Schema.Name == "" {
			return errors.New("tool name is required")
		}
		if t.Handler == nil {
			return fmt.Errorf("tool %s has no handler", t.Schema.Name)
		}
		if _, exists := b.tools[t.Schema.Name]; exists {
			return fmt.Errorf("tool %s already registered", t.Schema.Name)
		}
		b.tools[t.Schema.Name] = t
	}
	return nil
}

// MustRegister is Register for static tool sets.
func (b *Toolbox) MustRegister(tools ...Tool) *Toolbox {
	if err := b.Register(tools...); err != nil {
		panic(err)
	}
	return b
}

func (b *Toolbox) Get(name string) (Tool, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tools[name]
	return t, ok
}

// Schemas lists the registered tools sorted by name.
func (b *Toolbox) Schemas() []llm.ToolSchema {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]llm.ToolSchema, 0, len(b.tools))
	for _, t := range b.tools {
		out = append(out, t.Schema)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (b *Toolbox) Names() []string {
	schemas := b.Schemas()
	names := make([]string, len(schemas))
	for i, s := range schemas {
		names[i] = s.Name
	}
	return names
}

// DecodeArgs unmarshals call arguments into T. Failures wrap
// ErrInvalidArguments.
func DecodeArgs[T any](call llm.ToolCall) (T, error) {
	var args T
	raw := call.Arguments
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return args, nil
}

func invalidArgs(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArguments, fmt.Sprintf(format, args...))
}

// TextResult is a ToolResult without usage.
func TextResult(content string) ToolResult {
	return ToolResult{Content: content}
}

// JSONResult renders v as the tool result.
func JSONResult(v any) (ToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return ToolResult{}, err
	}
	return ToolResult{Content: string(data)}, nil
}
