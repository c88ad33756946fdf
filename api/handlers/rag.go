package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/llm"
	"github.com/bgunyel/ragnar/rag"
	"github.com/bgunyel/ragnar/types"
)

// Answerer is the RAG pipeline surface.
type Answerer interface {
	Answer(ctx context.Context, runID, question string) (*rag.Answer, error)
	Resume(ctx context.Context, runID string) (*rag.Answer, error)
	Variant() rag.Variant
}

// RAGHandler serves the configured RAG pipeline.
type RAGHandler struct {
	pipeline Answerer
	logger   *zap.Logger
}

// RAGRequest asks one question. Resume continues RunID from its latest
// checkpoint instead.
type RAGRequest struct {
	RunID    string `json:"run_id,omitempty"`
	Question string `json:"question,omitempty"`
	Resume   bool   `json:"resume,omitempty"`
}

// RAGResponse is the pipeline outcome.
type RAGResponse struct {
	RunID      string         `json:"run_id"`
	Variant    rag.Variant    `json:"variant"`
	Generation string         `json:"generation"`
	Steps      []string       `json:"steps"`
	Documents  []rag.Document `json:"documents,omitempty"`
	TokenUsage llm.Usage      `json:"token_usage"`
}

// NewRAGHandler creates a RAGHandler.
func NewRAGHandler(pipeline Answerer, logger *zap.Logger) *RAGHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RAGHandler{pipeline: pipeline, logger: logger.With(zap.String("handler", "rag"))}
}

// HandleAnswer serves POST /api/v1/rag.
func (h *RAGHandler) HandleAnswer(w http.ResponseWriter, r *http.Request) {
	var req RAGRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	var (
		ans *rag.Answer
		err error
	)
	switch {
	case req.Resume:
		if req.RunID == "" {
			WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "run_id is required to resume", h.logger)
			return
		}
		ans, err = h.pipeline.Resume(r.Context(), req.RunID)
	case strings.TrimSpace(req.Question) == "":
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "question is required", h.logger)
		return
	default:
		ans, err = h.pipeline.Answer(r.Context(), req.RunID, strings.TrimSpace(req.Question))
	}
	if err != nil {
		WriteRunError(w, r, err, h.logger)
		return
	}

	WriteSuccess(w, r, RAGResponse{
		RunID:      ans.RunID,
		Variant:    h.pipeline.Variant(),
		Generation: ans.Generation,
		Steps:      ans.Steps,
		Documents:  ans.Documents,
		TokenUsage: ans.Usage,
	})
}
