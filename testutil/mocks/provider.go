// Package mocks provides scripted collaborators for tests.
package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/bgunyel/ragnar/llm"
	"github.com/bgunyel/ragnar/testutil/fixtures"
)

// Reply is one scripted completion. Err takes precedence over content.
type Reply struct {
	Content   string
	ToolCalls []llm.ToolCall
	Err       error
}

type rule struct {
	substring string
	replies   []Reply
	next      int
}

// MockProvider is a scripted llm.Provider.
//
// Completion picks its answer in this order: the completion func, the
// first rule whose substring appears in any request message, the next
// scripted reply, then the default response. A rule replays its replies in
// order and then repeats the last one.
type MockProvider struct {
	mu sync.Mutex

	name             string
	response         string
	err              error
	promptTokens     int
	completionTokens int

	rules          []*rule
	script         []Reply
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	calls []MockProviderCall
}

// MockProviderCall records one Completion call.
type MockProviderCall struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		name:             "mock",
		response:         "Mock response",
		promptTokens:     10,
		completionTokens: 5,
	}
}

func (m *MockProvider) WithName(name string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// WithResponse sets the default reply.
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithError makes every unmatched call fail.
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *MockProvider) WithTokenUsage(prompt, completion int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens = prompt
	m.completionTokens = completion
	return m
}

// On answers requests whose messages contain substring.
func (m *MockProvider) On(substring string, replies ...Reply) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, &rule{substring: substring, replies: replies})
	return m
}

// WithScript queues replies for calls no rule matched.
func (m *MockProvider) WithScript(replies ...Reply) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, replies...)
	return m
}

func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

func (m *MockProvider) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	fn := m.completionFunc
	m.mu.Unlock()
	if fn != nil {
		resp, err := fn(ctx, req)
		m.record(req, resp, err)
		return resp, err
	}

	m.mu.Lock()
	reply, ok := m.match(req)
	if !ok && len(m.script) > 0 {
		reply, m.script, ok = m.script[0], m.script[1:], true
	}
	if !ok {
		reply = Reply{Content: m.response, Err: m.err}
	}
	prompt, completion := m.promptTokens, m.completionTokens
	m.mu.Unlock()

	if reply.Err != nil {
		m.record(req, nil, reply.Err)
		return nil, reply.Err
	}

	var resp *llm.ChatResponse
	if len(reply.ToolCalls) > 0 {
		resp = fixtures.ResponseWithToolCalls(reply.ToolCalls...)
		resp.Choices[0].Message.Content = reply.Content
	} else {
		resp = fixtures.SimpleResponse(reply.Content)
	}
	resp.Usage = llm.ChatUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
	if req.Model != "" {
		resp.Model = req.Model
	}
	m.record(req, resp, nil)
	return resp, nil
}

// match must be called with mu held.
func (m *MockProvider) match(req *llm.ChatRequest) (Reply, bool) {
	for _, r := range m.rules {
		if len(r.replies) == 0 || !requestContains(req, r.substring) {
			continue
		}
		reply := r.replies[r.next]
		if r.next < len(r.replies)-1 {
			r.next++
		}
		return reply, true
	}
	return Reply{}, false
}

func requestContains(req *llm.ChatRequest, substring string) bool {
	for _, msg := range req.Messages {
		if strings.Contains(msg.Content, substring) {
			return true
		}
	}
	return false
}

func (m *MockProvider) record(req *llm.ChatRequest, resp *llm.ChatResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockProviderCall{Request: req, Response: resp, Error: err})
}

// GetCalls returns a copy of the recorded calls.
func (m *MockProvider) GetCalls() []MockProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockProviderCall(nil), m.calls...)
}

func (m *MockProvider) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// CallsContaining counts calls whose messages contain substring.
func (m *MockProvider) CallsContaining(substring string) []MockProviderCall {
	var out []MockProviderCall
	for _, c := range m.GetCalls() {
		if requestContains(c.Request, substring) {
			out = append(out, c)
		}
	}
	return out
}

// GetLastCall returns the most recent call, or nil.
func (m *MockProvider) GetLastCall() *MockProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	c := m.calls[len(m.calls)-1]
	return &c
}

func NewSuccessProvider(response string) *MockProvider {
	return NewMockProvider().WithResponse(response)
}

func NewErrorProvider(err error) *MockProvider {
	return NewMockProvider().WithError(err)
}
