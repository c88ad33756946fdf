package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bgunyel/ragnar/llm"
)

const (
	ToolWriteTodos = "write_todos"
	ToolReadTodos  = "read_todos"
)

// TodoTools returns the deep-agent planning tools.
func TodoTools() []Tool {
	return []Tool{
		{
			Schema: llm.ToolSchema{
				Name: ToolWriteTodos,
				Description: "Create or replace the TODO list for a multi-step task. " +
					"Always send the complete updated list. Status is pending, in_progress or completed; " +
					"keep at most one task in_progress.",
				Parameters: llm.MustSchema(map[string]any{
					"type": "object",
					"properties": map[string]any{
						"todos": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"id":      map[string]any{"type": "string"},
									"content": map[string]any{"type": "string"},
									"status": map[string]any{
										"type": "string",
										"enum": []string{string(TodoPending), string(TodoInProgress), string(TodoCompleted)},
									},
								},
								"required": []string{"content", "status"},
							},
						},
					},
					"required": []string{"todos"},
				}),
			},
			Handler: writeTodos,
		},
		{
			Schema: llm.ToolSchema{
				Name:        ToolReadTodos,
				Description: "Return the current TODO list.",
				Parameters:  llm.MustSchema(map[string]any{"type": "object", "properties": map[string]any{}}),
			},
			Handler: readTodos,
		},
	}
}

func writeTodos(_ context.Context, call llm.ToolCall, s *State) (ToolResult, error) {
	args, err := DecodeArgs[struct {
		Todos []Todo `json:"todos"`
	}](call)
	if err != nil {
		return ToolResult{}, err
	}
	for i := range args.Todos {
		t := &args.Todos[i]
		if strings.TrimSpace(t.Content) == "" {
			return ToolResult{}, invalidArgs("todo %d has no content", i+1)
		}
		if t.Status == "" {
			t.Status = TodoPending
		}
		if !t.Status.valid() {
			return ToolResult{}, invalidArgs("todo %d has unknown status %q", i+1, t.Status)
		}
		if t.ID == "" {
			t.ID = fmt.Sprintf("%d", i+1)
		}
	}
	s.Todos = args.Todos
	return TextResult("Updated TODO List: \n\n " + renderTodos(s.Todos)), nil
}

func readTodos(_ context.Context, _ llm.ToolCall, s *State) (ToolResult, error) {
	if len(s.Todos) == 0 {
		return TextResult("The TODO list is empty."), nil
	}
	return TextResult(renderTodos(s.Todos)), nil
}

func renderTodos(todos []Todo) string {
	data, err := json.Marshal(todos)
	if err != nil {
		return fmt.Sprint(todos)
	}
	return string(data)
}
