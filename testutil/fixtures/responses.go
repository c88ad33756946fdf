// Package fixtures builds canned completions, tool calls and search
// results for tests.
package fixtures

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bgunyel/ragnar/llm"
	"github.com/bgunyel/ragnar/search"
)

// DefaultModel is the model name stamped on canned responses.
const DefaultModel = "mock-model"

// SimpleResponse is a text completion with small usage.
func SimpleResponse(content string) *llm.ChatResponse {
	return ResponseWithUsage(content, 10, 5)
}

func ResponseWithUsage(content string, promptTokens, completionTokens int) *llm.ChatResponse {
	return &llm.ChatResponse{
		ID:       "resp-fixture",
		Provider: "mock",
		Model:    DefaultModel,
		Choices: []llm.ChatChoice{{
			FinishReason: "stop",
			Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// ResponseWithToolCalls is an assistant turn requesting tools.
func ResponseWithToolCalls(calls ...llm.ToolCall) *llm.ChatResponse {
	resp := SimpleResponse("")
	resp.Choices[0].FinishReason = "tool_calls"
	resp.Choices[0].Message.ToolCalls = calls
	return resp
}

// ToolCall builds a call with JSON-encoded args.
func ToolCall(id, name string, args any) llm.ToolCall {
	data, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return llm.ToolCall{ID: id, Name: name, Arguments: data}
}

// SearchResults builds n results for query with distinct URLs.
func SearchResults(query string, n int) search.Response {
	resp := search.Response{Query: query}
	for i := 1; i <= n; i++ {
		resp.Results = append(resp.Results, search.Result{
			Title:   fmt.Sprintf("%s result %d", query, i),
			URL:     fmt.Sprintf("https://example.com/%d?q=%s", i, query),
			Content: fmt.Sprintf("snippet %d about %s", i, query),
			Score:   1 / float64(i),
		})
	}
	return resp
}
