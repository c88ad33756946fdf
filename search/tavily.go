package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bgunyel/ragnar/internal/tlsutil"
	"github.com/bgunyel/ragnar/types"
)

const defaultTavilyURL = "https://api.tavily.com"

// TavilyConfig configures the Tavily client.
type TavilyConfig struct {
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	MaxResults        int     // per query when the request leaves it at zero
	RequestsPerSecond float64 // zero disables client side limiting
	Burst             int
	MaxConcurrency    int
}

// Tavily queries the Tavily search API. Queries of one request run
// concurrently.
type Tavily struct {
	cfg     TavilyConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewTavily creates a Tavily client.
func NewTavily(cfg TavilyConfig, logger *zap.Logger) *Tavily {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTavilyURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = 5
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Tavily{
		cfg:     cfg,
		client:  tlsutil.SecureHTTPClient(cfg.Timeout),
		limiter: limiter,
		logger:  logger.With(zap.String("component", "tavily")),
	}
}

type tavilyRequest struct {
	Query             string `json:"query"`
	Topic             string `json:"topic"`
	MaxResults        int    `json:"max_results"`
	IncludeRawContent bool   `json:"include_raw_content"`
	Days              int    `json:"days,omitempty"`
}

type tavilyResponse struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
}

// Search implements Client.
func (t *Tavily) Search(ctx context.Context, req Request) ([]Response, error) {
	category := req.Category
	if category == "" {
		category = CategoryGeneral
	}
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = t.cfg.MaxResults
	}

	out := make([]Response, len(req.Queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.MaxConcurrency)

	for i, query := range req.Queries {
		body := tavilyRequest{
			Query:             query,
			Topic:             string(category),
			MaxResults:        maxResults,
			IncludeRawContent: req.IncludeRawContent,
		}
		if category == CategoryNews {
			body.Days = req.Days
		}
		g.Go(func() error {
			resp, err := t.query(gctx, body)
			if err != nil {
				return fmt.Errorf("search %q: %w", query, err)
			}
			out[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	t.logger.Debug("search completed",
		zap.Int("queries", len(req.Queries)),
		zap.String("category", string(category)),
	)
	return out, nil
}

func (t *Tavily) query(ctx context.Context, body tavilyRequest) (Response, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return Response{}, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(t.cfg.BaseURL, "/")+"/search", bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, types.NewError(types.ErrUpstreamError, err.Error()).
			WithCause(err).WithRetryable(true).WithProvider("tavily")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return Response{}, statusError(resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var decoded tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Response{}, types.NewError(types.ErrUpstreamError, "invalid search response").
			WithCause(err).WithProvider("tavily")
	}
	if decoded.Query == "" {
		decoded.Query = body.Query
	}
	return Response(decoded), nil
}

func statusError(status int, msg string) *types.Error {
	code, retryable := types.ErrUpstreamError, status >= 500
	switch status {
	case http.StatusUnauthorized:
		code = types.ErrUnauthorized
	case http.StatusForbidden:
		code = types.ErrForbidden
	case http.StatusBadRequest:
		code = types.ErrInvalidRequest
	case http.StatusTooManyRequests:
		code, retryable = types.ErrRateLimit, true
	case 432, 433: // plan or usage limit
		code = types.ErrQuotaExceeded
	}
	return types.NewError(code, msg).
		WithHTTPStatus(status).
		WithRetryable(retryable).
		WithProvider("tavily")
}
