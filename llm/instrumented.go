package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/types"
)

// Recorder receives one observation per completion.
type Recorder interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int, cost float64)
}

// Instrumented decorates a Provider with a span, a debug log line and a
// Recorder observation per call.
type Instrumented struct {
	next     Provider
	recorder Recorder
	prices   PriceTable
	tracer   trace.Tracer
	logger   *zap.Logger
}

// Instrument wraps p. recorder may be nil.
func Instrument(p Provider, recorder Recorder, prices PriceTable, logger *zap.Logger) *Instrumented {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instrumented{
		next:     p,
		recorder: recorder,
		prices:   prices,
		tracer:   otel.Tracer("github.com/bgunyel/ragnar/llm"),
		logger:   logger.With(zap.String("component", "llm"), zap.String("provider", p.Name())),
	}
}

func (p *Instrumented) Name() string { return p.next.Name() }

func (p *Instrumented) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if model, ok := types.LLMModel(ctx); ok && req.Model == "" {
		r := *req
		r.Model = model
		req = &r
	}
	ctx, span := p.tracer.Start(ctx, "llm.completion", trace.WithAttributes(
		attribute.String("llm.provider", p.next.Name()),
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.messages", len(req.Messages)),
		attribute.Int("llm.tools", len(req.Tools)),
	))
	defer span.End()

	start := time.Now()
	resp, err := p.next.Completion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Warn("completion failed",
			zap.String("model", req.Model),
			zap.Duration("duration", duration),
			zap.String("code", string(types.GetErrorCode(err))),
			zap.Error(err),
		)
		if p.recorder != nil {
			p.recorder.RecordLLMRequest(p.next.Name(), req.Model, "error", duration, 0, 0, 0)
		}
		return nil, err
	}

	cost := p.prices.ResponseCost(resp)
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("llm.completion_tokens", resp.Usage.CompletionTokens),
	)
	span.SetStatus(codes.Ok, "")
	p.logger.Debug("completion done",
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int("tool_calls", len(resp.Message().ToolCalls)),
		zap.Duration("duration", duration),
	)
	if p.recorder != nil {
		p.recorder.RecordLLMRequest(p.next.Name(), resp.Model, "success", duration,
			resp.Usage.PromptTokens, resp.Usage.CompletionTokens, cost)
	}
	return resp, nil
}
