package workflow

import (
	"context"
	"fmt"
	"slices"
)

// Label is a discrete routing decision.
type Label string

// RouteFunc is a router's natural decision.
type RouteFunc[S any] func(ctx context.Context, state S, cfg RunConfig) (Label, error)

// IterationGuard forces Label once Count(state) reaches Ceiling(cfg).
// Count reads an iteration counter or a collected-count the nodes maintain;
// guards never mutate state.
type IterationGuard[S any] struct {
	Name    string
	Count   func(state S) int
	Ceiling func(cfg RunConfig) int
	Label   Label
}

// Reached reports whether the guard's ceiling is met or exceeded.
func (g IterationGuard[S]) Reached(state S, cfg RunConfig) bool {
	return g.Count(state) >= g.Ceiling(cfg)
}

// Router picks the next edge out of a node.
//
// Guards are evaluated first, in order. When a guard fires its label wins
// over the natural decision, unless the natural decision is one of Exits:
// exit labels mean "done" and a finished loop has nothing to force.
type Router[S any] struct {
	Name   string
	Labels []Label
	Decide RouteFunc[S]
	Guards []IterationGuard[S]
	Exits  []Label
}

// Decision is the outcome of one routing step.
type Decision struct {
	Label  Label
	Forced bool
	Guard  string
}

// Route evaluates the router against state.
func (r Router[S]) Route(ctx context.Context, state S, cfg RunConfig) (Decision, error) {
	for _, g := range r.Guards {
		if !g.Reached(state, cfg) {
			continue
		}
		if len(r.Exits) > 0 {
			natural, err := r.Decide(ctx, state, cfg)
			if err != nil {
				return Decision{}, err
			}
			if slices.Contains(r.Exits, natural) {
				return Decision{Label: natural}, nil
			}
		}
		return Decision{Label: g.Label, Forced: true, Guard: g.Name}, nil
	}

	label, err := r.Decide(ctx, state, cfg)
	if err != nil {
		return Decision{}, err
	}
	if !slices.Contains(r.Labels, label) {
		return Decision{}, fmt.Errorf("%w: %q not in %v", ErrUnmappedLabel, label, r.Labels)
	}
	return Decision{Label: label}, nil
}

// Guarded reports whether the router carries at least one iteration guard.
func (r Router[S]) Guarded() bool { return len(r.Guards) > 0 }
