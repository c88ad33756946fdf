/*
Package workflow is the graph execution engine every ragnar pipeline runs on.

# Overview

A graph is a set of named nodes threaded by one state value. Each node has
exactly one outgoing edge: Direct (unconditional) or Conditional (a Router
picks a Label and the edge maps every label to a node). The pseudo nodes
Start and End delimit a run.

Cycles are allowed, but Compile rejects any cycle that does not pass
through a Router carrying an IterationGuard. A guard reads a counter the
nodes maintain and forces its label once the ceiling from RunConfig is met,
so a guarded cycle runs at most ceiling+1 times.

# Core types

  - NodeFunc[S]      : func(ctx, S, RunConfig) (S, error)
  - Router[S]        : named decision over a fixed label set
  - IterationGuard[S]: ceiling that overrides a router's decision
  - Builder[S]       : fluent definition, validated by Compile
  - Graph[S]         : compiled, immutable definition
  - Engine[S]        : Invoke / Resume, checkpoints, events, spans
  - RunConfig        : read-only per-run key/value configuration
  - CheckpointStore  : memory, Redis and MongoDB implementations

# Errors

Definition problems wrap ErrInvalidGraph. Run failures are *RunError values
carrying the run ID, the failing node, the last completed node and the
partial state; they wrap *NodeError, *RouterError, ErrStateConsistency or
the context error. The engine never retries a node.
*/
package workflow
