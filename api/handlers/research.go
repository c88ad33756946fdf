package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/research"
	"github.com/bgunyel/ragnar/types"
)

// ResearchRunner is the research sub-workflow surface.
type ResearchRunner interface {
	Research(ctx context.Context, runID string, subject research.Subject) (*research.Report, error)
}

// ResearchHandler serves the research sub-workflow.
type ResearchHandler struct {
	researcher ResearchRunner
	logger     *zap.Logger
}

// ResearchRequest names a subject. Topic is shorthand for a topic subject.
type ResearchRequest struct {
	RunID   string            `json:"run_id,omitempty"`
	Topic   string            `json:"topic,omitempty"`
	Subject *research.Subject `json:"subject,omitempty"`
}

// NewResearchHandler creates a ResearchHandler.
func NewResearchHandler(r ResearchRunner, logger *zap.Logger) *ResearchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResearchHandler{researcher: r, logger: logger.With(zap.String("handler", "research"))}
}

// HandleResearch serves POST /api/v1/research.
func (h *ResearchHandler) HandleResearch(w http.ResponseWriter, r *http.Request) {
	var req ResearchRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	var subject research.Subject
	switch {
	case req.Subject != nil && req.Topic != "":
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "topic and subject are mutually exclusive", h.logger)
		return
	case req.Subject != nil:
		subject = *req.Subject
	default:
		subject = research.Subject{Type: research.SearchTypeTopic, Name: req.Topic}
	}

	report, err := h.researcher.Research(r.Context(), req.RunID, subject)
	if err != nil {
		WriteRunError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, report)
}
