package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/api/handlers"
	"github.com/bgunyel/ragnar/internal/server"
)

// dbStatsInterval is how often pool statistics are exported as metrics.
const dbStatsInterval = 15 * time.Second

// Server runs the API listener and the metrics listener over one app.
type Server struct {
	app    *app
	logger *zap.Logger

	// gatherer backs /metrics; nil means the default registry.
	gatherer prometheus.Gatherer

	httpManager    *server.Manager
	metricsManager *server.Manager

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a server for a.
func NewServer(a *app, logger *zap.Logger) *Server {
	return &Server{app: a, logger: logger.With(zap.String("component", "server"))}
}

// Handler builds the API routes behind the middleware chain. ctx bounds
// the rate limiter's background cleanup.
func (s *Server) Handler(ctx context.Context) http.Handler {
	a := s.app
	cfg := a.cfg.Server

	health := handlers.NewHealthHandler(s.logger)
	for _, check := range a.checks {
		health.RegisterCheck(check)
	}
	chat := handlers.NewChatHandler(a.agent, s.logger)
	ragHandler := handlers.NewRAGHandler(a.rag, s.logger)
	researchHandler := handlers.NewResearchHandler(a.researcher, s.logger)
	runs := handlers.NewRunsHandler(a.checkpoints, s.logger)
	stream := handlers.NewStreamHandler(a.hub, a.agent, cfg.AllowedOrigins, s.logger)

	status := handlers.NewStatusHandler("ragnar", Version, a.components(), []handlers.GraphInfo{
		handlers.DescribeGraph(a.rag.Graph()),
		handlers.DescribeGraph(a.researcher.Graph()),
		handlers.DescribeGraph(a.agent.Loop().Graph()),
	})
	if a.pool != nil {
		status = status.WithDatabase(a.pool.GetStats)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(handlers.VersionInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}))

	mux.HandleFunc("GET /api/v1/status", status.HandleStatus)
	mux.HandleFunc("POST /api/v1/chat", chat.HandleChat)
	mux.HandleFunc("GET /api/v1/chat/{id}", chat.HandleHistory)
	mux.HandleFunc("DELETE /api/v1/chat/{id}", chat.HandleForget)
	mux.HandleFunc("POST /api/v1/rag", ragHandler.HandleAnswer)
	mux.HandleFunc("POST /api/v1/research", researchHandler.HandleResearch)
	mux.HandleFunc("GET /api/v1/runs/{id}", runs.HandleLatest)
	mux.HandleFunc("GET /api/v1/runs/{id}/checkpoints", runs.HandleHistory)
	mux.HandleFunc("DELETE /api/v1/runs/{id}", runs.HandleDelete)
	mux.HandleFunc("GET /api/v1/agent/ws", stream.HandleWS)

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		Tracing(a.telemetry.Tracer()),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(cfg.AllowedOrigins),
	}
	if cfg.RateLimitRPS > 0 {
		middlewares = append(middlewares, RateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst, s.logger))
	}
	middlewares = append(middlewares, Auth(cfg, s.logger), Metrics(a.collector))
	return Chain(mux, middlewares...)
}

// Start starts both listeners without blocking.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	cfg := s.app.cfg.Server

	s.httpManager = server.NewManager(s.Handler(ctx), server.Config{
		Name:              "api",
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       2 * cfg.ReadTimeout,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   cfg.ShutdownTimeout,
	}, s.logger)
	if err := s.httpManager.Start(); err != nil {
		cancel()
		return err
	}

	if cfg.MetricsPort > 0 {
		mux := http.NewServeMux()
		if s.gatherer != nil {
			mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		} else {
			mux.Handle("GET /metrics", promhttp.Handler())
		}
		s.metricsManager = server.NewManager(mux, server.Config{
			Name:            "metrics",
			Addr:            fmt.Sprintf(":%d", cfg.MetricsPort),
			ReadTimeout:     cfg.ReadTimeout,
			WriteTimeout:    cfg.ReadTimeout,
			ShutdownTimeout: cfg.ShutdownTimeout,
		}, s.logger)
		if err := s.metricsManager.Start(); err != nil {
			_ = s.httpManager.Shutdown(context.Background())
			cancel()
			return err
		}
	}

	if s.app.pool != nil {
		s.wg.Add(1)
		go s.exportPoolStats(ctx)
	}

	s.logger.Info("servers started",
		zap.String("api_addr", s.httpManager.Addr()),
		zap.Int("metrics_port", cfg.MetricsPort),
	)
	return nil
}

// Run starts the server and blocks until ctx ends or a listener fails,
// then shuts down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	var metricsErrs <-chan error
	if s.metricsManager != nil {
		metricsErrs = s.metricsManager.Errors()
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown requested")
	case err := <-s.httpManager.Errors():
		runErr = fmt.Errorf("api server: %w", err)
	case err := <-metricsErrs:
		runErr = fmt.Errorf("metrics server: %w", err)
	}

	return errors.Join(runErr, s.Shutdown(context.WithoutCancel(ctx)))
}

// Shutdown stops the listeners and background work.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("starting graceful shutdown")
	if s.cancel != nil {
		s.cancel()
	}

	var errs []error
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("api server: %w", err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	s.wg.Wait()

	s.logger.Info("graceful shutdown completed")
	return errors.Join(errs...)
}

func (s *Server) exportPoolStats(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()

	driver := s.app.cfg.Database.Driver
	for {
		stats := s.app.pool.Stats()
		s.app.collector.RecordDBConnections(driver, stats.OpenConnections, stats.Idle, stats.InUse, stats.WaitCount)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
