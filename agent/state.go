package agent

import "github.com/bgunyel/ragnar/llm"

// TodoStatus is the progress of a Todo.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
)

func (s TodoStatus) valid() bool {
	switch s {
	case TodoPending, TodoInProgress, TodoCompleted:
		return true
	}
	return false
}

// Todo is one deep-agent task.
type Todo struct {
	ID      string     `json:"id"`
	Content string     `json:"content"`
	Status  TodoStatus `json:"status"`
}

// State flows through the agent loop.
type State struct {
	Messages []llm.Message `json:"messages"`
	Usage    llm.Usage     `json:"usage"`
	Todos    []Todo        `json:"todos,omitempty"`
	// Turns counts completed llm_call invocations.
	Turns int `json:"turns"`
}

// NewState starts a run from the conversation so far.
func NewState(messages []llm.Message) *State {
	return &State{
		Messages: append([]llm.Message(nil), messages...),
		Usage:    llm.Usage{},
	}
}

// Last returns the latest message.
func (s *State) Last() (llm.Message, bool) {
	if len(s.Messages) == 0 {
		return llm.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// PendingToolCalls returns the tool calls of the latest assistant message.
func (s *State) PendingToolCalls() []llm.ToolCall {
	last, ok := s.Last()
	if !ok || last.Role != llm.RoleAssistant {
		return nil
	}
	return last.ToolCalls
}

// Node names.
const (
	NodeLLMCall   = "llm_call"
	NodeToolsCall = "tools_call"
)
