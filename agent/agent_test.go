package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/internal/database"
	"github.com/bgunyel/ragnar/llm"
	"github.com/bgunyel/ragnar/research"
	"github.com/bgunyel/ragnar/storage"
	"github.com/bgunyel/ragnar/testutil/fixtures"
	"github.com/bgunyel/ragnar/testutil/mocks"
)

type fakeResearcher struct {
	mu       sync.Mutex
	subjects []research.Subject
	err      error
}

func (f *fakeResearcher) Research(_ context.Context, _ string, subject research.Subject) (*research.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	if f.err != nil {
		return nil, f.err
	}
	return &research.Report{
		Content: "report on " + subject.Topic(),
		Usage:   llm.Usage{}.Add("research-model", 100, 50),
	}, nil
}

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	pool, err := database.Open("sqlite", ":memory:", database.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	s := storage.New(pool, zap.NewNop())
	require.NoError(t, s.AutoMigrate(context.Background()))
	return s
}

func TestAgent_RunCostsAndMemory(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().WithTokenUsage(1000, 500).WithScript(
		mocks.Reply{Content: "first answer"},
		mocks.Reply{Content: "second answer"},
	)
	prices := llm.PriceTable{"gpt-4o": {InputPerMillion: 2.5, OutputPerMillion: 10}}
	a, err := New(provider, nil, Options{Model: "gpt-4o", Instructions: "be brief"}, prices, zap.NewNop())
	require.NoError(t, err)

	res, err := a.Run(context.Background(), "conv-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "first answer", res.Content)
	assert.Equal(t, "conv-1", res.RunID)
	assert.Equal(t, "conv-1:1", res.TurnID)
	assert.Equal(t, llm.ModelUsage{InputTokens: 1000, OutputTokens: 500}, res.TokenUsage["gpt-4o"])
	require.Len(t, res.CostList, 1)
	assert.InDelta(t, 0.0025+0.005, res.TotalCost, 1e-12)

	res, err = a.Run(context.Background(), "conv-1", "and again")
	require.NoError(t, err)
	assert.Equal(t, "second answer", res.Content)
	assert.Equal(t, "conv-1:2", res.TurnID)

	req := provider.GetLastCall().Request
	require.Len(t, req.Messages, 4)
	assert.Equal(t, llm.SystemMessage("be brief"), req.Messages[0])
	assert.Equal(t, "first answer", req.Messages[2].Content)
	assert.Equal(t, "and again", req.Messages[3].Content)

	assert.Len(t, a.History("conv-1"), 5)
	a.Forget("conv-1")
	assert.Nil(t, a.History("conv-1"))
}

func TestAgent_IterationLimitDoesNotRepeatEarlierAnswer(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().
		WithScript(mocks.Reply{Content: "turn one answer"}).
		On("dig deeper", mocks.Reply{ToolCalls: []llm.ToolCall{
			fixtures.ToolCall("c", "echo", map[string]string{"text": "more"}),
		}})
	a, err := New(provider, NewToolbox().MustRegister(echoTool("echo")), Options{MaxIterations: 2}, nil, zap.NewNop())
	require.NoError(t, err)

	first, err := a.Run(context.Background(), "conv-limit", "hello")
	require.NoError(t, err)
	assert.Equal(t, "turn one answer", first.Content)

	second, err := a.Run(context.Background(), "conv-limit", "dig deeper")
	require.NoError(t, err)
	assert.Equal(t, IterationLimitContent, second.Content)
	assert.Equal(t, 3, provider.GetCallCount())

	history := a.History("conv-limit")
	last := history[len(history)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Contains(t, last.Content, "iteration limit reached")
}

func TestAgent_NewConversationGetsRunID(t *testing.T) {
	t.Parallel()

	a, err := New(mocks.NewSuccessProvider("hi"), nil, Options{}, nil, nil)
	require.NoError(t, err)

	res, err := a.Run(context.Background(), "", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Zero(t, res.TotalCost)
	assert.Equal(t, DefaultInstructions, a.History(res.RunID)[0].Content)
}

func TestAgent_DeepAgentTodos(t *testing.T) {
	t.Parallel()

	todos := []Todo{
		{Content: "research Acme", Status: TodoInProgress},
		{Content: "save Acme"},
	}
	provider := mocks.NewMockProvider().WithScript(
		mocks.Reply{ToolCalls: []llm.ToolCall{fixtures.ToolCall("t1", ToolWriteTodos, map[string]any{"todos": todos})}},
		mocks.Reply{ToolCalls: []llm.ToolCall{fixtures.ToolCall("t2", ToolReadTodos, map[string]any{})}},
		mocks.Reply{Content: "planned"},
		mocks.Reply{ToolCalls: []llm.ToolCall{fixtures.ToolCall("t3", ToolReadTodos, map[string]any{})}},
		mocks.Reply{Content: "still planned"},
	)
	a, err := New(provider, nil, Options{DeepAgent: true}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{ToolReadTodos, ToolWriteTodos}, a.Loop().Toolbox().Names())

	res, err := a.Run(context.Background(), "deep", "plan Acme")
	require.NoError(t, err)
	assert.Equal(t, "planned", res.Content)
	require.Len(t, res.Todos, 2)
	assert.Equal(t, "1", res.Todos[0].ID)
	assert.Equal(t, TodoPending, res.Todos[1].Status)

	history := a.History("deep")
	assert.Contains(t, history[0].Content, "write_todos")
	tools := toolMessages(history)
	require.Len(t, tools, 2)
	assert.Contains(t, tools[0].Content, "Updated TODO List: \n\n ")
	assert.Contains(t, tools[1].Content, "research Acme")

	res, err = a.Run(context.Background(), "deep", "status?")
	require.NoError(t, err)
	assert.Len(t, res.Todos, 2, "todos persist across turns of a conversation")
	assert.Contains(t, toolMessages(a.History("deep"))[2].Content, "save Acme")
}

func TestWriteTodos_RejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	s := NewState(nil)
	_, err := writeTodos(context.Background(),
		fixtures.ToolCall("t", ToolWriteTodos, map[string]any{"todos": []map[string]string{{"content": "x", "status": "blocked"}}}), s)
	assert.ErrorIs(t, err, ErrInvalidArguments)
	assert.Empty(t, s.Todos)

	res, err := readTodos(context.Background(), llm.ToolCall{}, s)
	require.NoError(t, err)
	assert.Equal(t, "The TODO list is empty.", res.Content)
}

func TestBusinessIntelligence_ResearchAndSave(t *testing.T) {
	t.Parallel()

	researcher := &fakeResearcher{}
	store := newStore(t)
	provider := mocks.NewMockProvider().WithScript(
		mocks.Reply{ToolCalls: []llm.ToolCall{
			fixtures.ToolCall("r1", ToolResearchCompany, map[string]string{"company_name": "Acme"}),
			fixtures.ToolCall("r2", ToolResearchPerson, map[string]string{"name": "Jane Doe", "company": "Acme"}),
		}},
		mocks.Reply{ToolCalls: []llm.ToolCall{
			fixtures.ToolCall("s1", ToolSaveCompany, map[string]string{"name": "Acme", "industry": "Anvils"}),
		}},
		mocks.Reply{ToolCalls: []llm.ToolCall{
			fixtures.ToolCall("s2", ToolSavePerson, map[string]any{"name": "Jane Doe", "company_id": 1, "title": "CEO"}),
			fixtures.ToolCall("f1", ToolFindCompany, map[string]string{"name": "Acme"}),
			fixtures.ToolCall("f2", ToolFindPerson, map[string]any{"id": 99}),
			fixtures.ToolCall("l1", ToolListCompanies, map[string]any{}),
		}},
		mocks.Reply{Content: "Acme is an anvil maker led by Jane Doe."},
	)
	a, err := NewBusinessIntelligence(provider, researcher, store, Options{Model: "planner"}, nil, zap.NewNop())
	require.NoError(t, err)

	res, err := a.Run(context.Background(), "bi", "Research Acme and its CEO Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, "Acme is an anvil maker led by Jane Doe.", res.Content)

	require.Len(t, researcher.subjects, 2)
	assert.Equal(t, research.Subject{Type: research.SearchTypeCompany, Name: "Acme"}, researcher.subjects[0])
	assert.Equal(t, research.Subject{Type: research.SearchTypePerson, Name: "Jane Doe", Company: "Acme"}, researcher.subjects[1])
	assert.Equal(t, 200, res.TokenUsage["research-model"].InputTokens, "nested research usage is merged")

	tools := toolMessages(a.History("bi"))
	require.Len(t, tools, 7)
	assert.Equal(t, "report on the company Acme", tools[0].Content)
	assert.Equal(t, "report on Jane Doe of Acme", tools[1].Content)

	var saved storage.Company
	require.NoError(t, json.Unmarshal([]byte(tools[2].Content), &saved))
	assert.Equal(t, uint(1), saved.ID)

	persons, err := store.PersonsByName(context.Background(), "Jane Doe")
	require.NoError(t, err)
	require.Len(t, persons, 1)
	require.NotNil(t, persons[0].CompanyID)
	assert.Equal(t, saved.ID, *persons[0].CompanyID)

	assert.Contains(t, tools[4].Content, `"industry":"Anvils"`)
	assert.Contains(t, tools[5].Content, "NOT_FOUND", "missing records are reported, not fatal")
	assert.Contains(t, tools[6].Content, `"name":"Acme"`)
}

func TestBusinessIntelligence_ToolArgumentErrors(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().WithScript(
		mocks.Reply{ToolCalls: []llm.ToolCall{
			fixtures.ToolCall("r1", ToolResearchCompany, map[string]string{"company_name": " "}),
			fixtures.ToolCall("f1", ToolFindCompany, map[string]any{}),
			fixtures.ToolCall("s1", ToolSaveCompany, map[string]string{"name": ""}),
		}},
		mocks.Reply{Content: "ok"},
	)
	a, err := NewBusinessIntelligence(provider, &fakeResearcher{}, newStore(t), Options{}, nil, nil)
	require.NoError(t, err)

	_, err = a.Run(context.Background(), "args", "q")
	require.NoError(t, err)

	tools := toolMessages(a.History("args"))
	require.Len(t, tools, 3)
	assert.Equal(t, "invalid arguments for research_company: company_name is required", tools[0].Content)
	assert.Equal(t, "invalid arguments for find_company: id or name is required", tools[1].Content)
	assert.Contains(t, tools[2].Content, "invalid arguments for save_company")
}

func TestBusinessIntelligence_ResearchFailureAborts(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().WithScript(
		mocks.Reply{ToolCalls: []llm.ToolCall{fixtures.ToolCall("r1", ToolResearchCompany, map[string]string{"company_name": "Acme"})}},
	)
	a, err := NewBusinessIntelligence(provider, &fakeResearcher{err: errors.New("search quota")}, nil, Options{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{ToolResearchCompany, ToolResearchPerson}, a.Loop().Toolbox().Names())

	_, err = a.Run(context.Background(), "fail", "q")
	assert.ErrorContains(t, err, "search quota")
	assert.Empty(t, a.History("fail"), "a failed turn leaves the conversation untouched")
}
