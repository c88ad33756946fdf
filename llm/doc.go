/*
Package llm defines the completion collaborator used by every workflow in
the module, together with token usage accounting and pricing.

# Core types

  - Provider: Completion(ctx, *ChatRequest) returning a *ChatResponse
  - Message, ToolCall, ToolSchema: the chat wire model
  - Usage: per-model token counts; Merge is commutative and associative
  - PriceTable: per-model prices, Cost turns a Usage into a cost list

Concrete providers live under llm/providers; token counting lives in
llm/tokenizer. Instrument wraps any Provider with tracing, logging and
metrics.
*/
package llm
