package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bgunyel/ragnar/types"
)

// MapHTTPError maps an upstream HTTP status to a *types.Error with the right
// retry flag.
func MapHTTPError(status int, msg string, provider string) *types.Error {
	var code types.ErrorCode
	retryable := false

	switch status {
	case http.StatusUnauthorized:
		code = types.ErrUnauthorized
	case http.StatusForbidden:
		code = types.ErrForbidden
	case http.StatusNotFound:
		code = types.ErrModelNotFound
	case http.StatusTooManyRequests:
		code, retryable = types.ErrRateLimit, true
	case http.StatusBadRequest:
		lower := strings.ToLower(msg)
		switch {
		case strings.Contains(lower, "quota"), strings.Contains(lower, "credit"):
			code = types.ErrQuotaExceeded
		case strings.Contains(lower, "context length"), strings.Contains(lower, "too long"):
			code = types.ErrContextTooLong
		default:
			code = types.ErrInvalidRequest
		}
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		code, retryable = types.ErrUpstreamTimeout, true
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		code, retryable = types.ErrServiceUnavailable, true
	default:
		code, retryable = types.ErrUpstreamError, status >= 500
	}

	return types.NewError(code, msg).
		WithHTTPStatus(status).
		WithRetryable(retryable).
		WithProvider(provider)
}

// UpstreamError wraps a transport failure.
func UpstreamError(provider string, err error) *types.Error {
	return types.NewError(types.ErrUpstreamError, err.Error()).
		WithCause(err).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true).
		WithProvider(provider)
}

// ReadErrorMessage extracts the message of an OpenAI style error body,
// falling back to the raw text.
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return strings.TrimSpace(string(data))
}
