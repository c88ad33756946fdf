package workflow

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"
)

// Builder assembles a graph definition. It is not safe for concurrent use;
// Compile produces the immutable Graph that engines run.
type Builder[S any] struct {
	name   string
	logger *zap.Logger

	order []string
	nodes map[string]NodeFunc[S]
	edges map[string][]Edge[S]
	start []string
	errs  []error
}

// NewBuilder creates a builder for a graph called name.
func NewBuilder[S any](name string) *Builder[S] {
	return &Builder[S]{
		name:   name,
		logger: zap.NewNop(),
		nodes:  make(map[string]NodeFunc[S]),
		edges:  make(map[string][]Edge[S]),
	}
}

// WithLogger sets the logger used to report the compiled graph.
func (b *Builder[S]) WithLogger(logger *zap.Logger) *Builder[S] {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// AddNode declares a node.
func (b *Builder[S]) AddNode(name string, fn NodeFunc[S]) *Builder[S] {
	switch {
	case name == Start || name == End || name == "":
		b.errs = append(b.errs, fmt.Errorf("%w: %q", ErrReservedNodeName, name))
		return b
	case fn == nil:
		b.errs = append(b.errs, fmt.Errorf("node %q has no implementation", name))
		return b
	}
	if _, dup := b.nodes[name]; dup {
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrDuplicateNode, name))
		return b
	}
	b.nodes[name] = fn
	b.order = append(b.order, name)
	return b
}

// AddEdge adds an unconditional edge. from may be Start, to may be End.
func (b *Builder[S]) AddEdge(from, to string) *Builder[S] {
	if from == Start {
		b.start = append(b.start, to)
		return b
	}
	b.edges[from] = append(b.edges[from], Direct{To: to})
	return b
}

// AddConditionalEdge routes out of from through router. routes must map
// every label the router declares.
func (b *Builder[S]) AddConditionalEdge(from string, router Router[S], routes map[Label]string) *Builder[S] {
	if router.Decide == nil {
		b.errs = append(b.errs, fmt.Errorf("router %q on node %q has no decision function", router.Name, from))
		return b
	}
	b.edges[from] = append(b.edges[from], Conditional[S]{Router: router, Routes: maps.Clone(routes)})
	return b
}

// Compile validates the definition and freezes it.
func (b *Builder[S]) Compile() (*Graph[S], error) {
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidGraph, b.name, err)
	}

	g := &Graph[S]{
		name:  b.name,
		entry: b.start[0],
		order: slices.Clone(b.order),
		nodes: maps.Clone(b.nodes),
		edges: make(map[string]Edge[S], len(b.edges)),
	}
	for n, es := range b.edges {
		g.edges[n] = es[0]
	}

	b.logger.Debug("graph compiled",
		zap.String("graph", b.name),
		zap.Int("nodes", len(g.order)),
		zap.String("entry", g.entry),
	)
	return g, nil
}

// MustCompile is Compile for package-level graph definitions.
func (b *Builder[S]) MustCompile() *Graph[S] {
	g, err := b.Compile()
	if err != nil {
		panic(err)
	}
	return g
}

func (b *Builder[S]) validate() error {
	errs := slices.Clone(b.errs)

	switch len(b.start) {
	case 0:
		errs = append(errs, ErrNoStartEdge)
	case 1:
		if !b.isTarget(b.start[0]) || b.start[0] == End {
			errs = append(errs, fmt.Errorf("%w: start -> %s", ErrUnknownTarget, b.start[0]))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %v", ErrMultipleStartEdges, b.start))
	}

	for from := range b.edges {
		if _, ok := b.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("%w: edge from %s", ErrUnknownTarget, from))
		}
	}

	for _, n := range b.order {
		es := b.edges[n]
		switch {
		case len(es) == 0:
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingEdge, n))
			continue
		case len(es) > 1:
			errs = append(errs, fmt.Errorf("%w: %s", ErrMultipleEdges, n))
		}
		errs = append(errs, b.validateEdge(n, es[0])...)
	}

	// Reachability and cycle checks need a well-formed edge set.
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if err := b.checkPathsToEnd(); err != nil {
		return err
	}
	return b.checkGuardedCycles()
}

func (b *Builder[S]) validateEdge(from string, e Edge[S]) []error {
	var errs []error
	for _, to := range e.targets() {
		if !b.isTarget(to) {
			errs = append(errs, fmt.Errorf("%w: %s -> %s", ErrUnknownTarget, from, to))
		}
	}

	c, ok := e.(Conditional[S])
	if !ok {
		return errs
	}
	r := c.Router
	for _, l := range r.Labels {
		if _, mapped := c.Routes[l]; !mapped {
			errs = append(errs, fmt.Errorf("%w: router %s on %s: %q", ErrUnmappedLabel, r.Name, from, l))
		}
	}
	for _, l := range sortedLabels(c.Routes) {
		if !slices.Contains(r.Labels, l) {
			errs = append(errs, fmt.Errorf("%w: router %s on %s: %q", ErrUnknownLabel, r.Name, from, l))
		}
	}
	for _, g := range r.Guards {
		if g.Count == nil || g.Ceiling == nil {
			errs = append(errs, fmt.Errorf("guard %q on router %s is incomplete", g.Name, r.Name))
		}
		if !slices.Contains(r.Labels, g.Label) {
			errs = append(errs, fmt.Errorf("%w: guard %s forces %q", ErrUnknownLabel, g.Name, g.Label))
		}
	}
	for _, l := range r.Exits {
		if !slices.Contains(r.Labels, l) {
			errs = append(errs, fmt.Errorf("%w: exit %q on router %s", ErrUnknownLabel, l, r.Name))
		}
	}
	return errs
}

func (b *Builder[S]) isTarget(name string) bool {
	if name == End {
		return true
	}
	_, ok := b.nodes[name]
	return ok
}

// checkPathsToEnd verifies that every node reachable from start can reach End.
func (b *Builder[S]) checkPathsToEnd() error {
	reachable := map[string]bool{}
	stack := []string{b.start[0]}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachable[n] || n == End {
			continue
		}
		reachable[n] = true
		stack = append(stack, b.edges[n][0].targets()...)
	}

	reverse := map[string][]string{}
	for _, n := range b.order {
		for _, to := range b.edges[n][0].targets() {
			reverse[to] = append(reverse[to], n)
		}
	}
	reachesEnd := map[string]bool{}
	stack = []string{End}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachesEnd[n] {
			continue
		}
		reachesEnd[n] = true
		stack = append(stack, reverse[n]...)
	}

	var errs []error
	for _, n := range b.order {
		if reachable[n] && !reachesEnd[n] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNoPathToEnd, n))
		}
	}
	return errors.Join(errs...)
}

// checkGuardedCycles drops the outgoing edges of every guarded router and
// looks for a cycle in what remains. Any cycle left never passes through a
// guard.
func (b *Builder[S]) checkGuardedCycles() error {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int, len(b.order))

	var visit func(n string, path []string) []string
	visit = func(n string, path []string) []string {
		state[n] = onStack
		path = append(path, n)
		e := b.edges[n][0]
		if c, ok := e.(Conditional[S]); !ok || !c.Router.Guarded() {
			for _, to := range e.targets() {
				if to == End {
					continue
				}
				switch state[to] {
				case onStack:
					i := slices.Index(path, to)
					return append(slices.Clone(path[i:]), to)
				case unvisited:
					if cycle := visit(to, path); cycle != nil {
						return cycle
					}
				}
			}
		}
		state[n] = done
		return nil
	}

	for _, n := range b.order {
		if state[n] != unvisited {
			continue
		}
		if cycle := visit(n, nil); cycle != nil {
			return fmt.Errorf("%w: %v", ErrUnguardedCycle, cycle)
		}
	}
	return nil
}
