package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHealthHandler_HandleHealth(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	h.RegisterCheck(NewCheck("database", func(context.Context) error { return errors.New("down") }))

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	// Liveness ignores readiness checks.
	assert.Equal(t, http.StatusOK, w.Code)
	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "healthy", status.Status)
	assert.False(t, status.Timestamp.IsZero())
}

func TestHealthHandler_HandleReady(t *testing.T) {
	t.Run("all pass", func(t *testing.T) {
		h := NewHealthHandler(nil)
		h.RegisterCheck(NewCheck("database", func(context.Context) error { return nil }))
		h.RegisterCheck(NewCheck("redis", func(context.Context) error { return nil }))

		w := httptest.NewRecorder()
		h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var status HealthStatus
		require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
		assert.Equal(t, "healthy", status.Status)
		assert.Len(t, status.Checks, 2)
		assert.Equal(t, "pass", status.Checks["redis"].Status)
	})

	t.Run("one fails", func(t *testing.T) {
		h := NewHealthHandler(zap.NewNop())
		h.RegisterCheck(NewCheck("database", func(context.Context) error { return nil }))
		h.RegisterCheck(NewCheck("mongo", func(context.Context) error { return errors.New("connection refused") }))

		w := httptest.NewRecorder()
		h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var status HealthStatus
		require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
		assert.Equal(t, "unhealthy", status.Status)
		assert.Equal(t, "fail", status.Checks["mongo"].Status)
		assert.Equal(t, "connection refused", status.Checks["mongo"].Message)
		assert.Equal(t, "pass", status.Checks["database"].Status)
	})

	t.Run("checks see a deadline", func(t *testing.T) {
		h := NewHealthHandler(nil)
		h.RegisterCheck(NewCheck("deadline", func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				return errors.New("no deadline")
			}
			return nil
		}))

		w := httptest.NewRecorder()
		h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	h := NewHealthHandler(nil)
	info := VersionInfo{Version: "1.2.3", BuildTime: "2026-01-01", GitCommit: "abc123"}

	w := httptest.NewRecorder()
	h.HandleVersion(info)(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	var got VersionInfo
	decodeData(t, resp, &got)
	assert.Equal(t, info, got)
}
