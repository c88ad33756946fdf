package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bgunyel/ragnar/agent"
	"github.com/bgunyel/ragnar/internal/database"
	"github.com/bgunyel/ragnar/llm"
	"github.com/bgunyel/ragnar/rag"
	"github.com/bgunyel/ragnar/research"
	"github.com/bgunyel/ragnar/search"
)

// DefaultEnvPrefix prefixes every environment override.
const DefaultEnvPrefix = "RAGNAR"

// Config is the complete ragnar configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" env:"SERVER"`
	Log        LogConfig        `yaml:"log" env:"LOG"`
	LLM        LLMConfig        `yaml:"llm" env:"LLM"`
	Search     SearchConfig     `yaml:"search" env:"SEARCH"`
	RAG        RAGConfig        `yaml:"rag" env:"RAG"`
	Research   ResearchConfig   `yaml:"research" env:"RESEARCH"`
	Agent      AgentConfig      `yaml:"agent" env:"AGENT"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" env:"CHECKPOINT"`
	Redis      RedisConfig      `yaml:"redis" env:"REDIS"`
	Mongo      MongoConfig      `yaml:"mongo" env:"MONGO"`
	Database   DatabaseConfig   `yaml:"database" env:"DATABASE"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// RateLimitRPS limits requests per second per client IP; zero disables it.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// JWTSecret enables bearer token auth on /api routes when set.
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	JWTIssuer string `yaml:"jwt_issuer" env:"JWT_ISSUER"`
	// APIKeys are accepted in the X-API-Key header as an alternative to JWT.
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// AllowedOrigins are the cross-origin hosts accepted by CORS and the
	// websocket stream. Empty rejects cross-origin requests.
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format           string   `yaml:"format" env:"FORMAT"` // json, console
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// LLMConfig configures the completion provider.
type LLMConfig struct {
	// Provider names the OpenAI compatible backend (openai, groq, ollama...).
	Provider string `yaml:"provider" env:"PROVIDER"`
	APIKey   string `yaml:"api_key" env:"API_KEY"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL"`
	// ReasoningModel drives graders, planners and the agent; LanguageModel
	// writes answers and summaries.
	ReasoningModel string        `yaml:"reasoning_model" env:"REASONING_MODEL"`
	LanguageModel  string        `yaml:"language_model" env:"LANGUAGE_MODEL"`
	Temperature    float64       `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens      int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Timeout        time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Prices are YAML only.
	Prices llm.PriceTable `yaml:"prices" env:"-"`
}

// SearchConfig configures the Tavily client.
type SearchConfig struct {
	APIKey            string        `yaml:"api_key" env:"API_KEY"`
	BaseURL           string        `yaml:"base_url" env:"BASE_URL"`
	MaxResults        int           `yaml:"max_results" env:"MAX_RESULTS"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int           `yaml:"burst" env:"BURST"`
	MaxConcurrency    int           `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RAGConfig configures the RAG pipelines.
type RAGConfig struct {
	Variant                 string `yaml:"variant" env:"VARIANT"` // basic, feedback, self_rag
	RetrievedDocuments      int    `yaml:"retrieved_documents" env:"RETRIEVED_DOCUMENTS"`
	MaxRetrievalIterations  int    `yaml:"max_retrieval_iterations" env:"MAX_RETRIEVAL_ITERATIONS"`
	MaxGenerationIterations int    `yaml:"max_generation_iterations" env:"MAX_GENERATION_ITERATIONS"`
}

// ResearchConfig configures the research sub-workflow.
type ResearchConfig struct {
	NumberOfQueries    int    `yaml:"number_of_queries" env:"NUMBER_OF_QUERIES"`
	MaxResultsPerQuery int    `yaml:"max_results_per_query" env:"MAX_RESULTS_PER_QUERY"`
	MaxTokensPerSource int    `yaml:"max_tokens_per_source" env:"MAX_TOKENS_PER_SOURCE"`
	MaxIterations      int    `yaml:"max_iterations" env:"MAX_ITERATIONS"`
	Category           string `yaml:"category" env:"CATEGORY"` // general, news
	DaysBack           int    `yaml:"days_back" env:"DAYS_BACK"`
	IncludeRawContent  bool   `yaml:"include_raw_content" env:"INCLUDE_RAW_CONTENT"`
	WordLimit          int    `yaml:"word_limit" env:"WORD_LIMIT"`
}

// AgentConfig configures the business intelligence agent.
type AgentConfig struct {
	MaxIterations int    `yaml:"max_iterations" env:"MAX_ITERATIONS"`
	Instructions  string `yaml:"instructions" env:"INSTRUCTIONS"`
	DeepAgent     bool   `yaml:"deep_agent" env:"DEEP_AGENT"`
}

// CheckpointConfig selects where run checkpoints live.
type CheckpointConfig struct {
	Backend string        `yaml:"backend" env:"BACKEND"` // memory, redis, mongo
	TTL     time.Duration `yaml:"ttl" env:"TTL"`
	Prefix  string        `yaml:"prefix" env:"PREFIX"`
}

// RedisConfig configures the redis client.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// MongoConfig configures the mongo client.
type MongoConfig struct {
	URI        string        `yaml:"uri" env:"URI"`
	Database   string        `yaml:"database" env:"DATABASE"`
	Collection string        `yaml:"collection" env:"COLLECTION"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// DatabaseConfig configures the entity database.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DRIVER"` // postgres, mysql, sqlite
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"` // file path for sqlite
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`
	AutoMigrate     bool          `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader loads a Config.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the RAGNAR env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: DefaultEnvPrefix}
}

// WithConfigPath sets the YAML file. A missing file is not an error.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix replaces the env prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validator run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Path returns the configured file path.
func (l *Loader) Path() string { return l.configPath }

// Load applies defaults, the YAML file, env overrides and validators, in
// that order.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks nested structs; the env key is the prefix joined
// with each level's env tag.
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// comma separated
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads path and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads defaults plus env overrides.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		add("invalid HTTP port %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		add("invalid metrics port %d", c.Server.MetricsPort)
	}
	if c.Server.RateLimitRPS < 0 {
		add("rate_limit_rps must not be negative")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		add("unknown log level %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		add("unknown log format %q", c.Log.Format)
	}

	if c.LLM.ReasoningModel == "" || c.LLM.LanguageModel == "" {
		add("llm reasoning_model and language_model are required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		add("llm temperature must be between 0 and 2")
	}
	for model, p := range c.LLM.Prices {
		if p.InputPerMillion < 0 || p.OutputPerMillion < 0 {
			add("negative price for model %q", model)
		}
	}

	if _, err := rag.ParseVariant(c.RAG.Variant); err != nil {
		errs = append(errs, err)
	}
	if c.RAG.RetrievedDocuments <= 0 {
		add("rag retrieved_documents must be positive")
	}
	if c.RAG.MaxRetrievalIterations <= 0 || c.RAG.MaxGenerationIterations <= 0 {
		add("rag iteration ceilings must be positive")
	}

	if c.Research.NumberOfQueries <= 0 || c.Research.MaxIterations <= 0 {
		add("research number_of_queries and max_iterations must be positive")
	}
	if c.Research.Category != string(search.CategoryGeneral) && c.Research.Category != string(search.CategoryNews) {
		add("unknown research category %q", c.Research.Category)
	}

	if c.Agent.MaxIterations <= 0 {
		add("agent max_iterations must be positive")
	}

	switch c.Checkpoint.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			add("redis addr is required for the redis checkpoint backend")
		}
	case "mongo":
		if c.Mongo.URI == "" {
			add("mongo uri is required for the mongo checkpoint backend")
		}
	default:
		add("unknown checkpoint backend %q", c.Checkpoint.Backend)
	}

	if c.Database.Driver != "" {
		if _, err := database.Dialector(c.Database.Driver, c.Database.DSN()); err != nil {
			errs = append(errs, err)
		}
		if err := c.Database.Pool().Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %w", errors.Join(errs...))
	}
	return nil
}

// DSN returns the driver specific connection string.
func (d DatabaseConfig) DSN() string {
	switch strings.ToLower(d.Driver) {
	case "postgres", "postgresql", "pg":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql", "mariadb":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite", "sqlite3":
		return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", d.Name)
	default:
		return ""
	}
}

// Pool converts the pool fields, keeping database defaults for zeros.
func (d DatabaseConfig) Pool() database.PoolConfig {
	p := database.DefaultPoolConfig()
	if d.MaxOpenConns > 0 {
		p.MaxOpenConns = d.MaxOpenConns
	}
	if d.MaxIdleConns > 0 {
		p.MaxIdleConns = d.MaxIdleConns
	}
	if d.ConnMaxLifetime > 0 {
		p.ConnMaxLifetime = d.ConnMaxLifetime
	}
	if d.ConnMaxIdleTime > 0 {
		p.ConnMaxIdleTime = d.ConnMaxIdleTime
	}
	return p
}

// RAGOptions derives the RAG pipeline options. An invalid variant is
// caught by Validate.
func (c *Config) RAGOptions() rag.Options {
	variant, _ := rag.ParseVariant(c.RAG.Variant)
	return rag.Options{
		Variant:                 variant,
		LanguageModel:           c.LLM.LanguageModel,
		ReasoningModel:          c.LLM.ReasoningModel,
		Temperature:             c.LLM.Temperature,
		RetrievedDocuments:      c.RAG.RetrievedDocuments,
		MaxRetrievalIterations:  c.RAG.MaxRetrievalIterations,
		MaxGenerationIterations: c.RAG.MaxGenerationIterations,
	}
}

// ResearchOptions derives the research sub-workflow options.
func (c *Config) ResearchOptions() research.Options {
	return research.Options{
		LanguageModel:      c.LLM.LanguageModel,
		ReasoningModel:     c.LLM.ReasoningModel,
		Temperature:        c.LLM.Temperature,
		NumberOfQueries:    c.Research.NumberOfQueries,
		MaxResultsPerQuery: c.Research.MaxResultsPerQuery,
		MaxTokensPerSource: c.Research.MaxTokensPerSource,
		MaxIterations:      c.Research.MaxIterations,
		Category:           search.Category(c.Research.Category),
		DaysBack:           c.Research.DaysBack,
		IncludeRawContent:  c.Research.IncludeRawContent,
		WordLimit:          c.Research.WordLimit,
	}
}

// AgentOptions derives the agent options.
func (c *Config) AgentOptions() agent.Options {
	return agent.Options{
		Model:         c.LLM.ReasoningModel,
		Temperature:   c.LLM.Temperature,
		MaxTokens:     c.LLM.MaxTokens,
		MaxIterations: c.Agent.MaxIterations,
		Instructions:  c.Agent.Instructions,
		DeepAgent:     c.Agent.DeepAgent,
	}
}
