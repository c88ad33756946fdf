package types

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	if _, ok := RunID(ctx); ok {
		t.Fatalf("empty context should carry no run ID")
	}
	if got := ActorID(ctx); got != DefaultActorID {
		t.Fatalf("ActorID default mismatch: %v", got)
	}

	ctx = WithTraceID(ctx, "t1")
	if got, ok := TraceID(ctx); !ok || got != "t1" {
		t.Fatalf("TraceID mismatch: %v %v", got, ok)
	}

	ctx = WithRequestID(ctx, "req")
	if got, ok := RequestID(ctx); !ok || got != "req" {
		t.Fatalf("RequestID mismatch: %v %v", got, ok)
	}

	ctx = WithRunID(ctx, "run")
	if got, ok := RunID(ctx); !ok || got != "run" {
		t.Fatalf("RunID mismatch: %v %v", got, ok)
	}

	ctx = WithActorID(ctx, 42)
	if got := ActorID(ctx); got != 42 {
		t.Fatalf("ActorID mismatch: %v", got)
	}

	ctx = WithLLMModel(ctx, "llama-3.3-70b-versatile")
	if got, ok := LLMModel(ctx); !ok || got != "llama-3.3-70b-versatile" {
		t.Fatalf("LLMModel mismatch: %v %v", got, ok)
	}
}
