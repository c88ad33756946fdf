package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/agent"
	"github.com/bgunyel/ragnar/llm"
	"github.com/bgunyel/ragnar/types"
)

// Conversational is the agent surface the chat endpoints need.
type Conversational interface {
	Run(ctx context.Context, runID, query string) (*agent.Result, error)
	History(runID string) []llm.Message
	Forget(runID string)
}

// ChatHandler serves the business intelligence agent.
type ChatHandler struct {
	agent  Conversational
	logger *zap.Logger
}

// ChatRequest asks the agent one question. An empty RunID starts a new
// conversation; reusing it continues one.
type ChatRequest struct {
	RunID string `json:"run_id,omitempty"`
	Query string `json:"query"`
}

// ChatResponse is the answer to one ChatRequest.
type ChatResponse struct {
	RunID      string          `json:"run_id"`
	TurnID     string          `json:"turn_id"`
	Response   string          `json:"response"`
	TokenUsage llm.Usage       `json:"token_usage"`
	CostList   []llm.ModelCost `json:"cost_list"`
	TotalCost  float64         `json:"total_cost"`
	Todos      []agent.Todo    `json:"todos,omitempty"`
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(a Conversational, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{agent: a, logger: logger.With(zap.String("handler", "chat"))}
}

// HandleChat serves POST /api/v1/chat.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "query is required", h.logger)
		return
	}

	start := time.Now()
	res, err := h.agent.Run(r.Context(), req.RunID, req.Query)
	if err != nil {
		WriteRunError(w, r, err, h.logger)
		return
	}

	total := res.TokenUsage.Total()
	h.logger.Info("chat turn completed",
		zap.String("run_id", res.RunID),
		zap.String("turn_id", res.TurnID),
		zap.Int("input_tokens", total.InputTokens),
		zap.Int("output_tokens", total.OutputTokens),
		zap.Float64("total_cost", res.TotalCost),
		zap.Duration("duration", time.Since(start)),
	)

	WriteSuccess(w, r, newChatResponse(res))
}

func newChatResponse(res *agent.Result) ChatResponse {
	return ChatResponse{
		RunID:      res.RunID,
		TurnID:     res.TurnID,
		Response:   res.Content,
		TokenUsage: res.TokenUsage,
		CostList:   res.CostList,
		TotalCost:  res.TotalCost,
		Todos:      res.Todos,
	}
}

// HandleHistory serves GET /api/v1/chat/{id}: the conversation so far.
func (h *ChatHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	history := h.agent.History(runID)
	if history == nil {
		WriteErrorMessage(w, r, http.StatusNotFound, types.ErrNotFound, "conversation not found: "+runID, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]any{
		"run_id":   runID,
		"messages": history,
	})
}

// HandleForget serves DELETE /api/v1/chat/{id}.
func (h *ChatHandler) HandleForget(w http.ResponseWriter, r *http.Request) {
	h.agent.Forget(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}
