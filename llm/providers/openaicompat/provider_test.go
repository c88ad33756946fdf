package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/llm"
	"github.com/bgunyel/ragnar/types"
)

// ---------------------------------------------------------------------------
// New() constructor
// ---------------------------------------------------------------------------

func TestNew_Defaults(t *testing.T) {
	p := New(Config{}, nil)
	assert.Equal(t, "/v1/chat/completions", p.cfg.EndpointPath)
	assert.Equal(t, "/v1/models", p.cfg.ModelsEndpoint)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, 60*time.Second, p.client.Timeout)

	p = New(Config{ProviderName: "groq", Timeout: 10 * time.Second, EndpointPath: "/api/chat"}, zap.NewNop())
	assert.Equal(t, "groq", p.Name())
	assert.Equal(t, "/api/chat", p.cfg.EndpointPath)
	assert.Equal(t, 10*time.Second, p.client.Timeout)
}

// ---------------------------------------------------------------------------
// Completion
// ---------------------------------------------------------------------------

func TestProvider_Completion_Success(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "resp-1",
			"model": "llama-3.3-70b-versatile",
			"created": 1700000000,
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "Hello!"}}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7}
		}`)
	}))
	t.Cleanup(server.Close)

	p := New(Config{
		ProviderName: "groq",
		APIKey:       "test-key",
		BaseURL:      server.URL + "/",
		DefaultModel: "llama-3.3-70b-versatile",
	}, zap.NewNop())

	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.SystemMessage("be brief"), llm.UserMessage("Hi")},
		JSONMode: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "llama-3.3-70b-versatile", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)

	assert.Equal(t, "resp-1", resp.ID)
	assert.Equal(t, "groq", resp.Provider)
	assert.Equal(t, "Hello!", resp.Message().Content)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
	assert.Equal(t, llm.Usage{"llama-3.3-70b-versatile": {InputTokens: 5, OutputTokens: 2}}, resp.ModelUsage())
	assert.False(t, resp.CreatedAt.IsZero())
}

func TestProvider_Completion_ToolCalls(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "resp-2",
			"model": "m",
			"choices": [{"index": 0, "finish_reason": "tool_calls",
				"message": {"role": "assistant", "content": "",
					"tool_calls": [{"id": "call_1", "type": "function",
						"function": {"name": "research_company", "arguments": "{\"company_name\":\"Acme\"}"}}]}}]
		}`)
	}))
	t.Cleanup(server.Close)

	p := New(Config{BaseURL: server.URL}, nil)
	history := []llm.Message{
		llm.UserMessage("who is acme?"),
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "old", Name: "read_todos"}}},
		llm.ToolMessage(llm.ToolCall{ID: "old", Name: "read_todos"}, "[]"),
	}
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Model:    "m",
		Messages: history,
		Tools: []llm.ToolSchema{{
			Name:        "research_company",
			Description: "Research a company",
			Parameters:  json.RawMessage(`{"type":"object"}`),
		}},
	})
	require.NoError(t, err)

	require.Len(t, got.Tools, 1)
	assert.Equal(t, "function", got.Tools[0].Type)
	assert.Equal(t, "research_company", got.Tools[0].Function.Name)
	assert.JSONEq(t, `{"type":"object"}`, string(got.Tools[0].Function.Parameters))
	require.Len(t, got.Messages[1].ToolCalls, 1)
	assert.Equal(t, "{}", got.Messages[1].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "old", got.Messages[2].ToolCallID)
	assert.Equal(t, "tool", got.Messages[2].Role)
	assert.Equal(t, "Research a company", got.Tools[0].Function.Description)

	calls := resp.Message().ToolCalls
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "research_company", calls[0].Name)
	assert.JSONEq(t, `{"company_name":"Acme"}`, string(calls[0].Arguments))
}

func TestProvider_Completion_HTTPError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantCode   types.ErrorCode
	}{
		{
			name:       "401 unauthorized",
			statusCode: http.StatusUnauthorized,
			body:       `{"error":{"message":"invalid key","type":"auth"}}`,
			wantCode:   types.ErrUnauthorized,
		},
		{
			name:       "429 rate limited",
			statusCode: http.StatusTooManyRequests,
			body:       `{"error":{"message":"slow down"}}`,
			wantCode:   types.ErrRateLimit,
		},
		{
			name:       "500 server error",
			statusCode: http.StatusInternalServerError,
			body:       `{"error":{"message":"oops"}}`,
			wantCode:   types.ErrUpstreamError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				fmt.Fprint(w, tt.body)
			}))
			t.Cleanup(server.Close)

			p := New(Config{ProviderName: "test", APIKey: "key", BaseURL: server.URL}, zap.NewNop())
			_, err := p.Completion(context.Background(), &llm.ChatRequest{
				Messages: []llm.Message{llm.UserMessage("Hi")},
			})
			require.Error(t, err)
			var typed *types.Error
			require.ErrorAs(t, err, &typed)
			assert.Equal(t, tt.wantCode, typed.Code)
			assert.Equal(t, "test", typed.Provider)
		})
	}
}

func TestProvider_Completion_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "not json")
	}))
	t.Cleanup(server.Close)

	p := New(Config{ProviderName: "test", BaseURL: server.URL}, zap.NewNop())
	_, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.UserMessage("Hi")},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestProvider_Completion_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(Config{BaseURL: server.URL}, nil)
	_, err := p.Completion(ctx, &llm.ChatRequest{Messages: []llm.Message{llm.UserMessage("Hi")}})
	assert.ErrorIs(t, err, context.Canceled)
}

// ---------------------------------------------------------------------------
// HealthCheck
// ---------------------------------------------------------------------------

func TestProvider_HealthCheck(t *testing.T) {
	var unhealthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/models", r.URL.Path)
		if unhealthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"message":"maintenance"}}`)
			return
		}
		fmt.Fprint(w, `{"object":"list","data":[]}`)
	}))
	t.Cleanup(server.Close)

	p := New(Config{BaseURL: server.URL}, nil)
	require.NoError(t, p.HealthCheck(context.Background()))

	unhealthy.Store(true)
	err := p.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.ErrServiceUnavailable, types.GetErrorCode(err))
}
