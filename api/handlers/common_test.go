package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/types"
	"github.com/bgunyel/ragnar/workflow"
)

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

// decodeData re-decodes resp.Data into dst.
func decodeData(t *testing.T, resp Response, dst any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst))
}

func jsonRequest(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestWriteSuccess_CarriesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(types.WithRequestID(r.Context(), "req-1"))

	WriteSuccess(w, r, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Nil(t, resp.Error)
}

func TestWriteError_StatusFromCode(t *testing.T) {
	tests := []struct {
		code types.ErrorCode
		want int
	}{
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrUnauthorized, http.StatusUnauthorized},
		{types.ErrNotFound, http.StatusNotFound},
		{types.ErrRateLimit, http.StatusTooManyRequests},
		{types.ErrUpstreamTimeout, http.StatusGatewayTimeout},
		{types.ErrUpstreamError, http.StatusBadGateway},
		{types.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{types.ErrStateConsistency, http.StatusInternalServerError},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, httptest.NewRequest(http.MethodGet, "/", nil),
				types.NewError(tt.code, "boom").WithRetryable(true), zap.NewNop())

			assert.Equal(t, tt.want, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.code), resp.Error.Code)
			assert.Equal(t, "boom", resp.Error.Message)
			assert.True(t, resp.Error.Retryable)
		})
	}

	w := httptest.NewRecorder()
	WriteError(w, nil, types.NewError(types.ErrInternalError, "teapot").WithHTTPStatus(http.StatusTeapot), nil)
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestWriteRunError(t *testing.T) {
	upstream := types.NewError(types.ErrUpstreamError, "provider down").WithRetryable(true)
	tests := []struct {
		name     string
		err      error
		status   int
		code     types.ErrorCode
		runID    string
		lastNode string
	}{
		{
			name: "node failure with typed cause",
			err: &workflow.RunError{RunID: "run-1", Node: "generate", LastCompleted: "grade_documents",
				Err: &workflow.NodeError{Node: "generate", Err: upstream}},
			status: http.StatusBadGateway, code: types.ErrUpstreamError, runID: "run-1", lastNode: "grade_documents",
		},
		{
			name: "state consistency",
			err: &workflow.RunError{RunID: "run-2", Node: "grade_answer", LastCompleted: "grade_answer",
				Err: workflow.StateError("unknown grade %q", "maybe")},
			status: http.StatusInternalServerError, code: types.ErrStateConsistency, runID: "run-2", lastNode: "grade_answer",
		},
		{
			name:   "deadline",
			err:    &workflow.RunError{RunID: "run-3", Node: "retrieve", Err: context.DeadlineExceeded},
			status: http.StatusGatewayTimeout, code: types.ErrTimeout, runID: "run-3",
		},
		{
			name:   "cancelled",
			err:    fmt.Errorf("wrapped: %w", context.Canceled),
			status: statusClientClosedRequest, code: types.ErrRunCancelled,
		},
		{
			name:   "missing checkpoint",
			err:    fmt.Errorf("resume: %w", workflow.ErrCheckpointNotFound),
			status: http.StatusNotFound, code: types.ErrNotFound,
		},
		{
			name:   "checkpoint of another graph",
			err:    fmt.Errorf("resume: %w", workflow.ErrGraphMismatch),
			status: http.StatusConflict, code: types.ErrConflict,
		},
		{
			name:   "plain",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError, code: types.ErrRunFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteRunError(w, httptest.NewRequest(http.MethodPost, "/", nil), tt.err, zap.NewNop())

			assert.Equal(t, tt.status, w.Code)
			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.code), resp.Error.Code)
			assert.Equal(t, tt.runID, resp.Error.RunID)
			assert.Equal(t, tt.lastNode, resp.Error.LastNode)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Query string `json:"query"`
	}

	t.Run("valid", func(t *testing.T) {
		var dst payload
		w := httptest.NewRecorder()
		require.NoError(t, DecodeJSONBody(w, jsonRequest(http.MethodPost, "/", `{"query":"hi"}`), &dst, nil))
		assert.Equal(t, "hi", dst.Query)
	})

	t.Run("unknown field", func(t *testing.T) {
		var dst payload
		w := httptest.NewRecorder()
		require.Error(t, DecodeJSONBody(w, jsonRequest(http.MethodPost, "/", `{"question":"hi"}`), &dst, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("wrong content type", func(t *testing.T) {
		var dst payload
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"query":"hi"}`))
		r.Header.Set("Content-Type", "text/plain")
		require.Error(t, DecodeJSONBody(w, r, &dst, nil))
		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	})

	t.Run("charset parameter accepted", func(t *testing.T) {
		var dst payload
		w := httptest.NewRecorder()
		r := jsonRequest(http.MethodPost, "/", `{"query":"hi"}`)
		r.Header.Set("Content-Type", "application/json; charset=UTF-8")
		require.NoError(t, DecodeJSONBody(w, r, &dst, nil))
	})

	t.Run("too large", func(t *testing.T) {
		var dst payload
		w := httptest.NewRecorder()
		body := `{"query":"` + strings.Repeat("x", maxBodyBytes) + `"}`
		require.Error(t, DecodeJSONBody(w, jsonRequest(http.MethodPost, "/", body), &dst, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestResponseWriter_CapturesStatusAndSize(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	_, err := rw.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, rw.StatusCode)
	assert.Equal(t, int64(5), rw.Bytes)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Same(t, rec, rw.Unwrap())

	_, _, err = rw.Hijack()
	assert.Error(t, err)
}
