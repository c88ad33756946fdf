package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/bgunyel/ragnar/workflow"

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	store     CheckpointStore
	observer  Observer
	logger    *zap.Logger
	tracer    trace.Tracer
	stepLimit int
	newRunID  func() string
	now       func() time.Time
}

// WithCheckpointStore persists a checkpoint after every node.
func WithCheckpointStore(store CheckpointStore) Option {
	return func(o *engineOptions) { o.store = store }
}

// WithObserver receives engine events.
func WithObserver(obs Observer) Option {
	return func(o *engineOptions) { o.observer = obs }
}

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *engineOptions) { o.tracer = tracer }
}

// WithStepLimit aborts a run after n node invocations. Zero means no limit.
func WithStepLimit(n int) Option {
	return func(o *engineOptions) { o.stepLimit = n }
}

// WithRunIDGenerator replaces the uuid run ID generator.
func WithRunIDGenerator(fn func() string) Option {
	return func(o *engineOptions) { o.newRunID = fn }
}

// Engine drives a compiled graph. It keeps no per-run state, so one engine
// serves any number of concurrent runs.
type Engine[S any] struct {
	graph *Graph[S]
	opts  engineOptions
}

// NewEngine creates an engine for graph.
func NewEngine[S any](graph *Graph[S], opts ...Option) *Engine[S] {
	o := engineOptions{
		logger:   zap.NewNop(),
		newRunID: uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	o.logger = o.logger.With(
		zap.String("component", "workflow_engine"),
		zap.String("graph", graph.Name()),
	)
	return &Engine[S]{graph: graph, opts: o}
}

// Graph returns the engine's graph.
func (e *Engine[S]) Graph() *Graph[S] { return e.graph }

// Invoke runs the graph from the start edge to End. An empty runID gets a
// generated one. A run ID names one run: checkpoints left by an earlier
// invocation under the same ID are deleted before the first node runs.
// On failure the returned error is a *RunError and the returned state is
// the partial state at the failing node.
func (e *Engine[S]) Invoke(ctx context.Context, runID string, initial S, cfg RunConfig) (S, error) {
	if runID == "" {
		runID = e.opts.newRunID()
	} else if e.opts.store != nil {
		if err := e.opts.store.Delete(ctx, runID); err != nil {
			var zero S
			return zero, fmt.Errorf("failed to clear checkpoints of run %s: %w", runID, err)
		}
	}
	return e.run(ctx, runID, e.graph.Entry(), "", 0, initial, cfg)
}

// Resume continues a run from its latest checkpoint. A run that already
// reached End returns its final state.
func (e *Engine[S]) Resume(ctx context.Context, runID string, cfg RunConfig) (S, error) {
	var zero S
	if e.opts.store == nil {
		return zero, ErrNoCheckpointStore
	}
	cp, err := e.opts.store.Latest(ctx, runID)
	if err != nil {
		return zero, err
	}
	if cp.Graph != e.graph.Name() {
		return zero, fmt.Errorf("%w: run %s belongs to %q, not %q", ErrGraphMismatch, runID, cp.Graph, e.graph.Name())
	}

	var state S
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return zero, fmt.Errorf("failed to decode checkpoint %s: %w", cp.ID, err)
	}
	if cp.Terminal {
		return state, nil
	}
	if !e.graph.HasNode(cp.Next) {
		return zero, fmt.Errorf("%w: %s", ErrInvalidResumeNode, cp.Next)
	}

	e.opts.logger.Info("resuming run",
		zap.String("run_id", runID),
		zap.String("node", cp.Next),
		zap.Int("step", cp.Step),
	)
	return e.run(ctx, runID, cp.Next, cp.Node, cp.Step, state, cfg)
}

// Checkpoints returns the recorded history of a run.
func (e *Engine[S]) Checkpoints(ctx context.Context, runID string) ([]*Checkpoint, error) {
	if e.opts.store == nil {
		return nil, ErrNoCheckpointStore
	}
	return e.opts.store.History(ctx, runID)
}

func (e *Engine[S]) run(ctx context.Context, runID, current, last string, step int, state S, cfg RunConfig) (S, error) {
	logger := e.opts.logger.With(zap.String("run_id", runID))
	started := e.opts.now()
	e.emit(Event{Type: EventRunStart, RunID: runID, Node: current, Step: step})
	logger.Info("run started", zap.String("node", current), zap.Int("step", step))

	fail := func(node string, err error) (S, error) {
		runErr := &RunError{
			RunID:         runID,
			Node:          node,
			LastCompleted: last,
			Step:          step,
			State:         state,
			Err:           err,
		}
		logger.Error("run failed",
			zap.String("node", node),
			zap.String("last_completed", last),
			zap.Int("step", step),
			zap.Error(err),
		)
		e.emit(Event{Type: EventRunError, RunID: runID, Node: node, Step: step, Err: err})
		return state, runErr
	}

	for {
		if err := ctx.Err(); err != nil {
			return fail(current, err)
		}
		if e.opts.stepLimit > 0 && step >= e.opts.stepLimit {
			return fail(current, fmt.Errorf("%w: %d", ErrStepLimitExceeded, e.opts.stepLimit))
		}

		next, err := e.execNode(ctx, runID, current, step, state, cfg)
		if err != nil {
			if !isNil(next) {
				state = next
			}
			return fail(current, err)
		}
		state = next
		step++
		last = current

		target, decision, err := e.graph.next(ctx, current, state, cfg)
		if err != nil {
			return fail(current, err)
		}
		if decision.Label != "" {
			logger.Debug("routed",
				zap.String("node", current),
				zap.String("label", string(decision.Label)),
				zap.Bool("forced", decision.Forced),
				zap.String("next", target),
			)
			e.emit(Event{
				Type:   EventRoute,
				RunID:  runID,
				Node:   current,
				Step:   step,
				Label:  decision.Label,
				Forced: decision.Forced,
				Guard:  decision.Guard,
				Next:   target,
			})
		}

		if err := e.checkpoint(ctx, runID, current, target, step, state); err != nil {
			return fail(current, err)
		}

		if target == End {
			logger.Info("run completed",
				zap.Int("steps", step),
				zap.Duration("duration", e.opts.now().Sub(started)),
			)
			e.emit(Event{Type: EventRunEnd, RunID: runID, Node: current, Step: step, Duration: e.opts.now().Sub(started)})
			return state, nil
		}
		current = target
	}
}

func (e *Engine[S]) execNode(ctx context.Context, runID, node string, step int, state S, cfg RunConfig) (S, error) {
	ctx, span := e.opts.tracer.Start(ctx, "workflow.node",
		trace.WithAttributes(
			attribute.String("workflow.graph", e.graph.Name()),
			attribute.String("workflow.run_id", runID),
			attribute.String("workflow.node", node),
			attribute.Int("workflow.step", step),
		),
	)
	defer span.End()

	e.emit(Event{Type: EventNodeStart, RunID: runID, Node: node, Step: step})
	start := e.opts.now()
	next, err := e.graph.nodes[node](ctx, state, cfg)
	duration := e.opts.now().Sub(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.emit(Event{Type: EventNodeEnd, RunID: runID, Node: node, Step: step, Duration: duration, Err: err})
		return next, &NodeError{Node: node, Err: err}
	}
	span.SetStatus(codes.Ok, "")
	e.opts.logger.Debug("node completed",
		zap.String("run_id", runID),
		zap.String("node", node),
		zap.Int("step", step),
		zap.Duration("duration", duration),
	)
	e.emit(Event{Type: EventNodeEnd, RunID: runID, Node: node, Step: step, Duration: duration})
	return next, nil
}

func (e *Engine[S]) checkpoint(ctx context.Context, runID, node, next string, step int, state S) error {
	if e.opts.store == nil {
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state for checkpoint: %w", err)
	}
	cp := &Checkpoint{
		ID:        checkpointID(runID, step),
		RunID:     runID,
		Graph:     e.graph.Name(),
		Step:      step,
		Node:      node,
		Next:      next,
		State:     data,
		Terminal:  next == End,
		UpdatedAt: e.opts.now(),
	}
	if err := e.opts.store.Save(ctx, cp); err != nil {
		return fmt.Errorf("checkpoint after %s: %w", node, err)
	}
	return nil
}

func (e *Engine[S]) emit(ev Event) {
	if e.opts.observer == nil {
		return
	}
	ev.Graph = e.graph.Name()
	ev.Time = e.opts.now()
	e.opts.observer.Observe(ev)
}

// isNil reports whether v is a nil pointer, map, slice or interface. A node
// that fails without a state keeps the state it was given.
func isNil[S any](v S) bool {
	rv := reflect.ValueOf(&v).Elem()
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
