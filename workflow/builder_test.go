package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Test state and helpers shared by the package tests
// ---------------------------------------------------------------------------

type testState struct {
	Visits []string `json:"visits"`
	Loops  int      `json:"loops"`
	Grade  string   `json:"grade"`
}

func visit(name string) NodeFunc[*testState] {
	return func(_ context.Context, s *testState, _ RunConfig) (*testState, error) {
		s.Visits = append(s.Visits, name)
		return s, nil
	}
}

func loopNode(name string) NodeFunc[*testState] {
	return func(_ context.Context, s *testState, _ RunConfig) (*testState, error) {
		s.Visits = append(s.Visits, name)
		s.Loops++
		return s, nil
	}
}

func always(l Label) RouteFunc[*testState] {
	return func(context.Context, *testState, RunConfig) (Label, error) { return l, nil }
}

func loopGuard(ceiling int) IterationGuard[*testState] {
	return IterationGuard[*testState]{
		Name:    "max_loops",
		Count:   func(s *testState) int { return s.Loops },
		Ceiling: CeilingFrom("max_loops", ceiling),
		Label:   "stop",
	}
}

// loopGraph: work -> check -(again)-> work, check -(stop)-> End.
func loopGraph(t *testing.T, ceiling int) *Graph[*testState] {
	t.Helper()
	g, err := NewBuilder[*testState]("loop").
		AddNode("work", loopNode("work")).
		AddEdge(Start, "work").
		AddConditionalEdge("work", Router[*testState]{
			Name:   "check",
			Labels: []Label{"again", "stop"},
			Decide: always("again"),
			Guards: []IterationGuard[*testState]{loopGuard(ceiling)},
		}, map[Label]string{"again": "work", "stop": End}).
		Compile()
	require.NoError(t, err)
	return g
}

// ---------------------------------------------------------------------------
// Compile validation
// ---------------------------------------------------------------------------

func TestBuilder_CompileLinear(t *testing.T) {
	t.Parallel()

	g, err := NewBuilder[*testState]("linear").
		WithLogger(zap.NewNop()).
		AddNode("a", visit("a")).
		AddNode("b", visit("b")).
		AddEdge(Start, "a").
		AddEdge("a", "b").
		AddEdge("b", End).
		Compile()
	require.NoError(t, err)

	assert.Equal(t, "linear", g.Name())
	assert.Equal(t, "a", g.Entry())
	assert.Equal(t, []string{"a", "b"}, g.Nodes())
	e, ok := g.Edge("a")
	require.True(t, ok)
	assert.Equal(t, Direct{To: "b"}, e)
}

func TestBuilder_CompileErrors(t *testing.T) {
	t.Parallel()

	router := Router[*testState]{
		Name:   "r",
		Labels: []Label{"yes", "no"},
		Decide: always("yes"),
	}

	tests := []struct {
		name  string
		build func() *Builder[*testState]
		want  error
	}{
		{
			name: "no start edge",
			build: func() *Builder[*testState] {
				return NewBuilder[*testState]("g").AddNode("a", visit("a")).AddEdge("a", End)
			},
			want: ErrNoStartEdge,
		},
		{
			name: "two start edges",
			build: func() *Builder[*testState] {
				return NewBuilder[*testState]("g").
					AddNode("a", visit("a")).AddNode("b", visit("b")).
					AddEdge(Start, "a").AddEdge(Start, "b").
					AddEdge("a", End).AddEdge("b", End)
			},
			want: ErrMultipleStartEdges,
		},
		{
			name: "duplicate node",
			build: func() *Builder[*testState] {
				return NewBuilder[*testState]("g").
					AddNode("a", visit("a")).AddNode("a", visit("a")).
					AddEdge(Start, "a").AddEdge("a", End)
			},
			want: ErrDuplicateNode,
		},
		{
			name: "reserved name",
			build: func() *Builder[*testState] {
				return NewBuilder[*testState]("g").
					AddNode(End, visit("x")).
					AddNode("a", visit("a")).
					AddEdge(Start, "a").AddEdge("a", End)
			},
			want: ErrReservedNodeName,
		},
		{
			name: "missing edge",
			build: func() *Builder[*testState] {
				return NewBuilder[*testState]("g").
					AddNode("a", visit("a")).AddNode("b", visit("b")).
					AddEdge(Start, "a").AddEdge("a", End)
			},
			want: ErrMissingEdge,
		},
		{
			name: "two outgoing edges",
			build: func() *Builder[*testState] {
				return NewBuilder[*testState]("g").
					AddNode("a", visit("a")).
					AddEdge(Start, "a").AddEdge("a", End).AddEdge("a", End)
			},
			want: ErrMultipleEdges,
		},
		{
			name: "unknown target",
			build: func() *Builder[*testState] {
				return NewBuilder[*testState]("g").
					AddNode("a", visit("a")).
					AddEdge(Start, "a").AddEdge("a", "ghost")
			},
			want: ErrUnknownTarget,
		},
		{
			name: "unmapped router label",
			build: func() *Builder[*testState] {
				return NewBuilder[*testState]("g").
					AddNode("a", visit("a")).
					AddEdge(Start, "a").
					AddConditionalEdge("a", router, map[Label]string{"yes": End})
			},
			want: ErrUnmappedLabel,
		},
		{
			name: "route for undeclared label",
			build: func() *Builder[*testState] {
				return NewBuilder[*testState]("g").
					AddNode("a", visit("a")).
					AddEdge(Start, "a").
					AddConditionalEdge("a", router, map[Label]string{"yes": End, "no": End, "maybe": End})
			},
			want: ErrUnknownLabel,
		},
		{
			name: "dead end",
			build: func() *Builder[*testState] {
				return NewBuilder[*testState]("g").
					AddNode("a", visit("a")).AddNode("b", visit("b")).
					AddEdge(Start, "a").
					AddConditionalEdge("a", Router[*testState]{
						Name:   "r",
						Labels: []Label{"yes", "no"},
						Decide: always("yes"),
						Guards: []IterationGuard[*testState]{{
							Name: "g", Count: func(*testState) int { return 0 },
							Ceiling: CeilingFrom("x", 1), Label: "yes",
						}},
					}, map[Label]string{"yes": End, "no": "b"}).
					AddEdge("b", "b")
			},
			want: ErrNoPathToEnd,
		},
		{
			name: "unguarded cycle",
			build: func() *Builder[*testState] {
				return NewBuilder[*testState]("g").
					AddNode("a", visit("a")).AddNode("b", visit("b")).
					AddEdge(Start, "a").
					AddConditionalEdge("a", router, map[Label]string{"yes": "b", "no": End}).
					AddEdge("b", "a")
			},
			want: ErrUnguardedCycle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Compile()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidGraph)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBuilder_GuardedCycleCompiles(t *testing.T) {
	t.Parallel()

	// retrieve -> grade -(rewrite)-> rewrite -> retrieve, guarded at grade.
	_, err := NewBuilder[*testState]("corrective").
		AddNode("retrieve", loopNode("retrieve")).
		AddNode("grade", visit("grade")).
		AddNode("rewrite", visit("rewrite")).
		AddNode("generate", visit("generate")).
		AddEdge(Start, "retrieve").
		AddEdge("retrieve", "grade").
		AddConditionalEdge("grade", Router[*testState]{
			Name:   "documents",
			Labels: []Label{"relevant", "not relevant", "stop"},
			Decide: always("not relevant"),
			Guards: []IterationGuard[*testState]{loopGuard(3)},
		}, map[Label]string{"relevant": "generate", "not relevant": "rewrite", "stop": "generate"}).
		AddEdge("rewrite", "retrieve").
		AddEdge("generate", End).
		Compile()
	require.NoError(t, err)
}

func TestBuilder_GuardLabelMustBeDeclared(t *testing.T) {
	t.Parallel()

	guard := loopGuard(1)
	guard.Label = "elsewhere"
	_, err := NewBuilder[*testState]("g").
		AddNode("a", loopNode("a")).
		AddEdge(Start, "a").
		AddConditionalEdge("a", Router[*testState]{
			Name:   "r",
			Labels: []Label{"again", "stop"},
			Decide: always("again"),
			Guards: []IterationGuard[*testState]{guard},
		}, map[Label]string{"again": "a", "stop": End}).
		Compile()
	assert.ErrorIs(t, err, ErrUnknownLabel)
}

func TestBuilder_MustCompilePanics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { NewBuilder[*testState]("empty").MustCompile() })
}

func TestGraph_Mermaid(t *testing.T) {
	t.Parallel()

	g := loopGraph(t, 2)
	assert.Equal(t,
		"flowchart TD\n"+
			"    __start__ --> work\n"+
			"    work -.->|again| work\n"+
			"    work -.->|stop| __end__\n",
		g.Mermaid())
}
