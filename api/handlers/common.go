package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/types"
	"github.com/bgunyel/ragnar/workflow"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// =============================================================================
// Response envelope
// =============================================================================

// Response is the envelope of every JSON API response.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo describes a failed request. RunID and LastNode are set when a
// workflow run failed.
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable,omitempty"`
	RunID      string `json:"run_id,omitempty"`
	LastNode   string `json:"last_node,omitempty"`
	HTTPStatus int    `json:"-"`
}

// WriteJSON writes data with status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess wraps data in a successful Response.
func WriteSuccess(w http.ResponseWriter, r *http.Request, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: requestID(r),
	})
}

// WriteError writes err. The status comes from err.HTTPStatus or its code.
func WriteError(w http.ResponseWriter, r *http.Request, err *types.Error, logger *zap.Logger) {
	writeErrorInfo(w, r, &ErrorInfo{
		Code:       string(err.Code),
		Message:    err.Message,
		Retryable:  err.Retryable,
		HTTPStatus: statusOf(err),
	}, err.Cause, logger)
}

// WriteErrorMessage writes a plain error.
func WriteErrorMessage(w http.ResponseWriter, r *http.Request, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, r, types.NewError(code, message).WithHTTPStatus(status), logger)
}

// WriteRunError writes the failure of a workflow run: one message plus the
// run ID and the last node that completed.
func WriteRunError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	writeErrorInfo(w, r, runErrorInfo(err), err, logger)
}

func runErrorInfo(err error) *ErrorInfo {
	info := &ErrorInfo{Message: err.Error()}

	var runErr *workflow.RunError
	if errors.As(err, &runErr) {
		info.RunID = runErr.RunID
		info.LastNode = runErr.LastCompleted
		info.Message = runErr.Err.Error()
	}

	var typed *types.Error
	switch {
	case errors.As(err, &typed):
		info.Code = string(typed.Code)
		info.Retryable = typed.Retryable
		info.HTTPStatus = statusOf(typed)
		if runErr == nil {
			info.Message = typed.Message
		}
	case errors.Is(err, context.DeadlineExceeded):
		info.Code = string(types.ErrTimeout)
		info.Retryable = true
		info.HTTPStatus = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		info.Code = string(types.ErrRunCancelled)
		info.HTTPStatus = statusClientClosedRequest
	case errors.Is(err, workflow.ErrStateConsistency):
		info.Code = string(types.ErrStateConsistency)
		info.HTTPStatus = http.StatusInternalServerError
	case errors.Is(err, workflow.ErrCheckpointNotFound):
		info.Code = string(types.ErrNotFound)
		info.HTTPStatus = http.StatusNotFound
	case errors.Is(err, workflow.ErrGraphMismatch):
		info.Code = string(types.ErrConflict)
		info.HTTPStatus = http.StatusConflict
	default:
		info.Code = string(types.ErrRunFailed)
		info.HTTPStatus = http.StatusInternalServerError
	}
	return info
}

// statusClientClosedRequest is the de facto status for a request the client
// abandoned.
const statusClientClosedRequest = 499

func writeErrorInfo(w http.ResponseWriter, r *http.Request, info *ErrorInfo, cause error, logger *zap.Logger) {
	if logger != nil {
		fields := []zap.Field{
			zap.String("code", info.Code),
			zap.String("message", info.Message),
			zap.Int("status", info.HTTPStatus),
			zap.String("request_id", requestID(r)),
		}
		if info.RunID != "" {
			fields = append(fields, zap.String("run_id", info.RunID), zap.String("last_node", info.LastNode))
		}
		if cause != nil {
			fields = append(fields, zap.Error(cause))
		}
		if info.HTTPStatus >= http.StatusInternalServerError {
			logger.Error("API error", fields...)
		} else {
			logger.Warn("API error", fields...)
		}
	}

	WriteJSON(w, info.HTTPStatus, Response{
		Success:   false,
		Error:     info,
		Timestamp: time.Now(),
		RequestID: requestID(r),
	})
}

func statusOf(err *types.Error) int {
	if err.HTTPStatus != 0 {
		return err.HTTPStatus
	}
	return mapErrorCodeToHTTPStatus(err.Code)
}

func mapErrorCodeToHTTPStatus(code types.ErrorCode) int {
	switch code {
	case types.ErrInvalidRequest, types.ErrInvalidGraph:
		return http.StatusBadRequest
	case types.ErrAuthentication, types.ErrUnauthorized:
		return http.StatusUnauthorized
	case types.ErrForbidden:
		return http.StatusForbidden
	case types.ErrNotFound, types.ErrModelNotFound:
		return http.StatusNotFound
	case types.ErrConflict:
		return http.StatusConflict
	case types.ErrRateLimit:
		return http.StatusTooManyRequests
	case types.ErrQuotaExceeded:
		return http.StatusPaymentRequired
	case types.ErrContextTooLong:
		return http.StatusRequestEntityTooLarge

	case types.ErrTimeout, types.ErrUpstreamTimeout:
		return http.StatusGatewayTimeout
	case types.ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	case types.ErrUpstreamError:
		return http.StatusBadGateway
	case types.ErrRunCancelled:
		return statusClientClosedRequest

	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// Request helpers
// =============================================================================

// DecodeJSONBody decodes a JSON body of at most 1 MB, rejecting unknown
// fields. On failure the error response is already written.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if !validateContentType(w, r, logger) {
		return errors.New("unsupported content type")
	}
	if r.Body == nil || r.Body == http.NoBody {
		err := types.NewError(types.ErrInvalidRequest, "request body is empty")
		WriteError(w, r, err, logger)
		return err
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		apiErr := types.NewError(types.ErrInvalidRequest, "invalid JSON body").
			WithCause(err).
			WithHTTPStatus(http.StatusBadRequest)
		WriteError(w, r, apiErr, logger)
		return apiErr
	}
	return nil
}

func validateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "Content-Type must be application/json").
			WithHTTPStatus(http.StatusUnsupportedMediaType), logger)
		return false
	}
	return true
}

func requestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	id, _ := types.RequestID(r.Context())
	return id
}

// =============================================================================
// Status capturing writer
// =============================================================================

// ResponseWriter records the status code and body size for middleware.
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
	Bytes      int64
}

// NewResponseWriter wraps w.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.Bytes += int64(n)
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack lets websocket upgrades pass through middleware.
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer %T does not support hijacking", rw.ResponseWriter)
	}
	rw.Written = true
	rw.StatusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}
