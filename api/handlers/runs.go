package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/types"
	"github.com/bgunyel/ragnar/workflow"
)

// RunsHandler exposes stored checkpoints.
type RunsHandler struct {
	store  workflow.CheckpointStore
	logger *zap.Logger
}

// NewRunsHandler creates a RunsHandler over store.
func NewRunsHandler(store workflow.CheckpointStore, logger *zap.Logger) *RunsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunsHandler{store: store, logger: logger.With(zap.String("handler", "runs"))}
}

// HandleLatest serves GET /api/v1/runs/{id}: the latest checkpoint.
func (h *RunsHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	cp, err := h.store.Latest(r.Context(), runID)
	if err != nil {
		WriteRunError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, cp)
}

// HandleHistory serves GET /api/v1/runs/{id}/checkpoints, oldest first.
func (h *RunsHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	history, err := h.store.History(r.Context(), runID)
	if err != nil {
		WriteRunError(w, r, err, h.logger)
		return
	}
	if len(history) == 0 {
		WriteErrorMessage(w, r, http.StatusNotFound, types.ErrNotFound, "no checkpoints for run "+runID, h.logger)
		return
	}
	WriteSuccess(w, r, history)
}

// HandleDelete serves DELETE /api/v1/runs/{id}.
func (h *RunsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		WriteRunError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
