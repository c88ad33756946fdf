package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/agent"
	"github.com/bgunyel/ragnar/api/handlers"
	"github.com/bgunyel/ragnar/config"
	"github.com/bgunyel/ragnar/internal/database"
	"github.com/bgunyel/ragnar/internal/metrics"
	"github.com/bgunyel/ragnar/internal/telemetry"
	"github.com/bgunyel/ragnar/llm"
	"github.com/bgunyel/ragnar/llm/providers/openaicompat"
	"github.com/bgunyel/ragnar/rag"
	"github.com/bgunyel/ragnar/research"
	"github.com/bgunyel/ragnar/search"
	"github.com/bgunyel/ragnar/storage"
	"github.com/bgunyel/ragnar/workflow"
)

// app holds every component built from one Config. serve and the one-shot
// commands share it.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry *telemetry.Providers
	collector *metrics.Collector
	hub       *handlers.EventHub

	checkpoints workflow.CheckpointStore
	pool        *database.PoolManager
	store       *storage.Store

	provider   llm.Provider
	search     search.Client
	rag        *rag.Pipeline
	researcher *research.Researcher
	agent      *agent.Agent

	checks  []handlers.HealthCheck
	closers []func(context.Context) error
}

type appDeps struct {
	provider llm.Provider
	search   search.Client
	registry prometheus.Registerer
}

type appOption func(*appDeps)

// withProvider replaces the configured OpenAI compatible provider.
func withProvider(p llm.Provider) appOption {
	return func(d *appDeps) { d.provider = p }
}

// withSearch replaces the Tavily client.
func withSearch(c search.Client) appOption {
	return func(d *appDeps) { d.search = c }
}

// withRegistry registers metrics on reg instead of the default registry.
func withRegistry(reg prometheus.Registerer) appOption {
	return func(d *appDeps) { d.registry = reg }
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...appOption) (a *app, err error) {
	var deps appDeps
	for _, opt := range opts {
		opt(&deps)
	}

	a = &app{cfg: cfg, logger: logger}
	defer func(built *app) {
		if err != nil {
			_ = built.close(context.WithoutCancel(ctx))
		}
	}(a)

	a.telemetry, err = telemetry.Init(ctx, cfg.Telemetry, Version, logger)
	if err != nil {
		logger.Warn("telemetry disabled", zap.Error(err))
		err = nil
	}
	a.closers = append(a.closers, a.telemetry.Shutdown)

	a.collector = metrics.NewCollector("ragnar", deps.registry, logger)
	a.hub = handlers.NewEventHub(0, logger)

	if err = a.openCheckpoints(ctx); err != nil {
		return nil, err
	}
	if err = a.openDatabase(ctx); err != nil {
		return nil, err
	}

	provider := deps.provider
	if provider == nil {
		provider = openaicompat.New(openaicompat.Config{
			ProviderName: cfg.LLM.Provider,
			APIKey:       cfg.LLM.APIKey,
			BaseURL:      cfg.LLM.BaseURL,
			DefaultModel: cfg.LLM.ReasoningModel,
			Timeout:      cfg.LLM.Timeout,
		}, logger)
	}
	a.provider = llm.Instrument(provider, a.collector, cfg.LLM.Prices, logger)

	a.search = deps.search
	if a.search == nil {
		a.search = search.NewTavily(search.TavilyConfig{
			APIKey:            cfg.Search.APIKey,
			BaseURL:           cfg.Search.BaseURL,
			Timeout:           cfg.Search.Timeout,
			MaxResults:        cfg.Search.MaxResults,
			RequestsPerSecond: cfg.Search.RequestsPerSecond,
			Burst:             cfg.Search.Burst,
			MaxConcurrency:    cfg.Search.MaxConcurrency,
		}, logger)
	}

	engineOpts := []workflow.Option{
		workflow.WithCheckpointStore(a.checkpoints),
		workflow.WithObserver(workflow.Observers{a.collector, a.hub}),
		workflow.WithTracer(a.telemetry.Tracer()),
	}

	retriever := rag.NewSearchRetriever(a.search, search.Category(cfg.Research.Category), cfg.Research.DaysBack, logger)
	if a.rag, err = rag.New(a.provider, retriever, cfg.RAGOptions(), logger, engineOpts...); err != nil {
		return nil, fmt.Errorf("rag pipeline: %w", err)
	}
	if a.researcher, err = research.New(a.provider, a.search, cfg.ResearchOptions(), logger, engineOpts...); err != nil {
		return nil, fmt.Errorf("researcher: %w", err)
	}

	var entities agent.EntityStore
	if a.store != nil {
		entities = a.store
	}
	if a.agent, err = agent.NewBusinessIntelligence(a.provider, a.researcher, entities,
		cfg.AgentOptions(), cfg.LLM.Prices, logger, engineOpts...); err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	return a, nil
}

// openCheckpoints connects the configured checkpoint backend.
func (a *app) openCheckpoints(ctx context.Context) error {
	cfg := a.cfg
	switch cfg.Checkpoint.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		a.checkpoints = workflow.NewRedisCheckpointStore(client, cfg.Checkpoint.Prefix, cfg.Checkpoint.TTL, a.logger)
		a.checks = append(a.checks, handlers.NewCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))

	case "mongo":
		timeout := cfg.Mongo.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.Mongo.URI).SetTimeout(timeout))
		if err != nil {
			return fmt.Errorf("failed to connect to mongo: %w", err)
		}
		a.closers = append(a.closers, client.Disconnect)
		if err := client.Ping(ctx, nil); err != nil {
			return fmt.Errorf("failed to ping mongo: %w", err)
		}
		store := workflow.NewMongoCheckpointStore(client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection), a.logger)
		if err := store.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("failed to create checkpoint indexes: %w", err)
		}
		a.checkpoints = store
		a.checks = append(a.checks, handlers.NewCheck("mongo", func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		}))

	default:
		a.checkpoints = workflow.NewMemoryCheckpointStore()
	}

	a.logger.Info("checkpoint store ready", zap.String("backend", a.checkpointBackend()))
	return nil
}

// openDatabase connects the entity database when a driver is configured.
// Without one the agent runs without its storage tools.
func (a *app) openDatabase(ctx context.Context) error {
	cfg := a.cfg.Database
	if cfg.Driver == "" {
		a.logger.Info("no database configured, storage tools disabled")
		return nil
	}

	pool, err := database.Open(cfg.Driver, cfg.DSN(), cfg.Pool(), a.logger)
	if err != nil {
		return err
	}
	a.pool = pool
	a.closers = append(a.closers, func(context.Context) error { return pool.Close() })

	a.store = storage.New(pool, a.logger)
	if cfg.AutoMigrate {
		if err := a.store.AutoMigrate(ctx); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}
	a.checks = append(a.checks, handlers.NewCheck("database", a.store.Ping))
	return nil
}

func (a *app) checkpointBackend() string {
	if a.cfg.Checkpoint.Backend == "" {
		return "memory"
	}
	return a.cfg.Checkpoint.Backend
}

// components describes the wiring for /api/v1/status.
func (a *app) components() map[string]string {
	db := "disabled"
	if a.pool != nil {
		db = a.cfg.Database.Driver
	}
	return map[string]string{
		"llm_provider":    a.provider.Name(),
		"reasoning_model": a.cfg.LLM.ReasoningModel,
		"language_model":  a.cfg.LLM.LanguageModel,
		"rag_variant":     string(a.rag.Variant()),
		"checkpoint":      a.checkpointBackend(),
		"database":        db,
		"telemetry":       strconv.FormatBool(a.telemetry.Enabled()),
	}
}

// close releases everything in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
