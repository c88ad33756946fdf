package workflow

import (
	"errors"
	"fmt"
)

// =============================================================================
// Graph definition errors (returned by Builder.Compile)
// =============================================================================

var (
	// ErrInvalidGraph wraps every definition-time problem found by Compile.
	ErrInvalidGraph = errors.New("invalid graph definition")

	ErrNoStartEdge        = errors.New("no start edge")
	ErrMultipleStartEdges = errors.New("more than one start edge")
	ErrDuplicateNode      = errors.New("duplicate node")
	ErrReservedNodeName   = errors.New("reserved node name")
	ErrMissingEdge        = errors.New("node has no outgoing edge")
	ErrMultipleEdges      = errors.New("node has more than one outgoing edge")
	ErrUnknownTarget      = errors.New("edge targets an undeclared node")
	ErrUnknownLabel       = errors.New("route label not declared by router")
	ErrNoPathToEnd        = errors.New("node has no path to end")
	ErrUnguardedCycle     = errors.New("cycle without an iteration guard")
)

// =============================================================================
// Run errors
// =============================================================================

var (
	// ErrUnmappedLabel is returned when a router yields a label that has no
	// route. Compile rejects undeclared labels, so reaching this at run time
	// means the router broke its own label contract.
	ErrUnmappedLabel = errors.New("router returned an unmapped label")

	// ErrStateConsistency marks a router or node that observed an impossible
	// or unset value where the graph guarantees one is set.
	ErrStateConsistency = errors.New("state consistency violation")

	ErrStepLimitExceeded  = errors.New("step limit exceeded")
	ErrNoCheckpointStore  = errors.New("no checkpoint store configured")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrInvalidResumeNode  = errors.New("checkpoint points at a node the graph does not have")
	ErrGraphMismatch      = errors.New("checkpoint was written by another graph")
)

// NodeError wraps an error returned by a node.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s failed: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// RouterError wraps an error returned while routing out of a node.
type RouterError struct {
	Router string
	Node   string
	Err    error
}

func (e *RouterError) Error() string {
	return fmt.Sprintf("router %s after node %s failed: %v", e.Router, e.Node, e.Err)
}

func (e *RouterError) Unwrap() error { return e.Err }

// RunError is what Invoke and Resume return on failure. It carries enough
// context to retry or diagnose the run: the run ID, the node that was
// executing, the last node that completed and the partial state.
type RunError struct {
	RunID         string
	Node          string
	LastCompleted string
	Step          int
	State         any
	Err           error
}

func (e *RunError) Error() string {
	last := e.LastCompleted
	if last == "" {
		last = "none"
	}
	return fmt.Sprintf("run %s failed at %s (last completed: %s, step %d): %v",
		e.RunID, e.Node, last, e.Step, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// StateError builds an ErrStateConsistency error with a formatted reason.
func StateError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStateConsistency, fmt.Sprintf(format, args...))
}
