package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID   contextKey = "trace_id"
	keyRequestID contextKey = "request_id"
	keyRunID     contextKey = "run_id"
	keyActorID   contextKey = "actor_id"
	keyLLMModel  contextKey = "llm_model"
)

// DefaultActorID is stamped on stored records when the context names no actor.
const DefaultActorID uint = 1

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithRequestID adds the HTTP request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID extracts the HTTP request ID from context.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}

// WithRunID adds run ID to context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, keyRunID, runID)
}

// RunID extracts run ID from context.
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRunID).(string)
	return v, ok && v != ""
}

// WithActorID records who is acting on stored records.
func WithActorID(ctx context.Context, actorID uint) context.Context {
	return context.WithValue(ctx, keyActorID, actorID)
}

// ActorID returns the acting user, or DefaultActorID.
func ActorID(ctx context.Context) uint {
	if v, ok := ctx.Value(keyActorID).(uint); ok && v != 0 {
		return v
	}
	return DefaultActorID
}

// WithLLMModel overrides the model used by completions made under ctx.
func WithLLMModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, keyLLMModel, model)
}

// LLMModel extracts LLM model from context.
func LLMModel(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyLLMModel).(string)
	return v, ok && v != ""
}
