package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/types"
)

type capturedRequests struct {
	mu   sync.Mutex
	reqs []tavilyRequest
	auth []string
}

func (c *capturedRequests) add(r tavilyRequest, auth string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, r)
	c.auth = append(c.auth, auth)
}

func newTavilyServer(t *testing.T, captured *capturedRequests) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		var req tavilyRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		captured.add(req, r.Header.Get("Authorization"))

		if req.Query == "slow" {
			time.Sleep(20 * time.Millisecond)
		}
		resp := tavilyResponse{Query: req.Query}
		for i := 0; i < req.MaxResults; i++ {
			resp.Results = append(resp.Results, Result{
				Title:      fmt.Sprintf("%s %d", req.Query, i),
				URL:        fmt.Sprintf("https://example.com/%s/%d", req.Query, i),
				Content:    "snippet",
				RawContent: "raw",
				Score:      0.5,
			})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestTavily_SearchKeepsQueryOrder(t *testing.T) {
	t.Parallel()

	captured := &capturedRequests{}
	server := newTavilyServer(t, captured)
	client := NewTavily(TavilyConfig{APIKey: "tvly-key", BaseURL: server.URL}, zap.NewNop())

	out, err := client.Search(context.Background(), Request{
		Queries:           []string{"slow", "fast", "medium"},
		MaxResults:        2,
		IncludeRawContent: true,
		Days:              7,
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "slow", out[0].Query)
	assert.Equal(t, "fast", out[1].Query)
	assert.Equal(t, "medium", out[2].Query)
	assert.Len(t, out[0].Results, 2)

	require.Len(t, captured.reqs, 3)
	for i, req := range captured.reqs {
		assert.Equal(t, "general", req.Topic)
		assert.Zero(t, req.Days, "days only applies to news")
		assert.True(t, req.IncludeRawContent)
		assert.Equal(t, "Bearer tvly-key", captured.auth[i])
	}
}

func TestTavily_NewsSendsDays(t *testing.T) {
	t.Parallel()

	captured := &capturedRequests{}
	server := newTavilyServer(t, captured)
	client := NewTavily(TavilyConfig{BaseURL: server.URL}, nil)

	_, err := client.Search(context.Background(), Request{
		Queries:  []string{"acme earnings"},
		Category: CategoryNews,
		Days:     3,
	})
	require.NoError(t, err)
	require.Len(t, captured.reqs, 1)
	assert.Equal(t, "news", captured.reqs[0].Topic)
	assert.Equal(t, 3, captured.reqs[0].Days)
	assert.Equal(t, 5, captured.reqs[0].MaxResults)
}

func TestTavily_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    int
		wantCode  types.ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, types.ErrUnauthorized, false},
		{http.StatusTooManyRequests, types.ErrRateLimit, true},
		{432, types.ErrQuotaExceeded, false},
		{http.StatusInternalServerError, types.ErrUpstreamError, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"detail":{"error":"nope"}}`)
			}))
			t.Cleanup(server.Close)

			client := NewTavily(TavilyConfig{BaseURL: server.URL}, nil)
			_, err := client.Search(context.Background(), Request{Queries: []string{"q"}})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, types.GetErrorCode(err))
			assert.Equal(t, tt.retryable, types.IsRetryable(err))
		})
	}
}

func TestTavily_RateLimitHonoursContext(t *testing.T) {
	t.Parallel()

	captured := &capturedRequests{}
	server := newTavilyServer(t, captured)
	client := NewTavily(TavilyConfig{BaseURL: server.URL, RequestsPerSecond: 0.001, Burst: 1}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Search(ctx, Request{Queries: []string{"a", "b"}})
	require.Error(t, err)
	assert.LessOrEqual(t, len(captured.reqs), 1)
}

func TestTavily_EmptyRequest(t *testing.T) {
	t.Parallel()

	client := NewTavily(TavilyConfig{BaseURL: "http://127.0.0.1:0"}, nil)
	out, err := client.Search(context.Background(), Request{})
	require.NoError(t, err)
	assert.Empty(t, out)
}
