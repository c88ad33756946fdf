package workflow

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Pseudo nodes. Start only has an outgoing edge, End only incoming ones.
const (
	Start = "__start__"
	End   = "__end__"
)

// NodeFunc is a unit of work: it receives the run's state and read-only
// configuration and returns the updated state. On error it should still
// return the state as far as it got; the engine attaches it to the RunError.
// A nil state on error leaves the state the node was given.
type NodeFunc[S any] func(ctx context.Context, state S, cfg RunConfig) (S, error)

// Edge is the outgoing edge of a node: either Direct or Conditional.
type Edge[S any] interface {
	targets() []string
}

// Direct is an unconditional edge.
type Direct struct {
	To string
}

func (d Direct) targets() []string { return []string{d.To} }

// Conditional routes through Router; Routes maps every router label to a
// destination node (or End).
type Conditional[S any] struct {
	Router Router[S]
	Routes map[Label]string
}

func (c Conditional[S]) targets() []string {
	out := make([]string, 0, len(c.Routes))
	for _, l := range sortedLabels(c.Routes) {
		out = append(out, c.Routes[l])
	}
	return out
}

// Graph is a compiled, immutable graph definition.
type Graph[S any] struct {
	name  string
	entry string
	order []string
	nodes map[string]NodeFunc[S]
	edges map[string]Edge[S]
}

// Name returns the graph name.
func (g *Graph[S]) Name() string { return g.name }

// Entry returns the node the start edge points at.
func (g *Graph[S]) Entry() string { return g.entry }

// Nodes returns node names in declaration order.
func (g *Graph[S]) Nodes() []string { return slices.Clone(g.order) }

// HasNode reports whether name is a declared node.
func (g *Graph[S]) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Edge returns the outgoing edge of node.
func (g *Graph[S]) Edge(node string) (Edge[S], bool) {
	e, ok := g.edges[node]
	return e, ok
}

// next resolves the edge out of node for the current state.
func (g *Graph[S]) next(ctx context.Context, node string, state S, cfg RunConfig) (string, Decision, error) {
	switch e := g.edges[node].(type) {
	case Direct:
		return e.To, Decision{}, nil
	case Conditional[S]:
		d, err := e.Router.Route(ctx, state, cfg)
		if err != nil {
			return "", Decision{}, &RouterError{Router: e.Router.Name, Node: node, Err: err}
		}
		to, ok := e.Routes[d.Label]
		if !ok {
			return "", d, &RouterError{
				Router: e.Router.Name,
				Node:   node,
				Err:    fmt.Errorf("%w: %q", ErrUnmappedLabel, d.Label),
			}
		}
		return to, d, nil
	default:
		return "", Decision{}, fmt.Errorf("%w: %s", ErrMissingEdge, node)
	}
}

// Mermaid renders the graph as a mermaid flowchart.
func (g *Graph[S]) Mermaid() string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	fmt.Fprintf(&b, "    %s --> %s\n", Start, g.entry)
	for _, n := range g.order {
		switch e := g.edges[n].(type) {
		case Direct:
			fmt.Fprintf(&b, "    %s --> %s\n", n, e.To)
		case Conditional[S]:
			for _, l := range sortedLabels(e.Routes) {
				fmt.Fprintf(&b, "    %s -.->|%s| %s\n", n, l, e.Routes[l])
			}
		}
	}
	return b.String()
}

func sortedLabels(routes map[Label]string) []Label {
	return slices.Sorted(maps.Keys(routes))
}
