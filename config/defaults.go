package config

import (
	"time"

	"github.com/bgunyel/ragnar/llm"
)

// DefaultConfig returns a config that runs locally against an OpenAI
// compatible endpoint with in-memory checkpoints and a sqlite database.
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Log:        DefaultLogConfig(),
		LLM:        DefaultLLMConfig(),
		Search:     DefaultSearchConfig(),
		RAG:        DefaultRAGConfig(),
		Research:   DefaultResearchConfig(),
		Agent:      DefaultAgentConfig(),
		Checkpoint: DefaultCheckpointConfig(),
		Redis:      DefaultRedisConfig(),
		Mongo:      DefaultMongoConfig(),
		Database:   DefaultDatabaseConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
		JWTIssuer:       "ragnar",
	}
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:       "openai",
		BaseURL:        "https://api.openai.com",
		ReasoningModel: "gpt-4o",
		LanguageModel:  "gpt-4o-mini",
		Temperature:    0,
		MaxTokens:      4096,
		Timeout:        2 * time.Minute,
		Prices: llm.PriceTable{
			"gpt-4o":      {InputPerMillion: 2.5, OutputPerMillion: 10},
			"gpt-4o-mini": {InputPerMillion: 0.15, OutputPerMillion: 0.6},
		},
	}
}

func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		BaseURL:           "https://api.tavily.com",
		MaxResults:        5,
		RequestsPerSecond: 5,
		Burst:             5,
		MaxConcurrency:    8,
		Timeout:           30 * time.Second,
	}
}

func DefaultRAGConfig() RAGConfig {
	return RAGConfig{
		Variant:                 "self_rag",
		RetrievedDocuments:      3,
		MaxRetrievalIterations:  2,
		MaxGenerationIterations: 2,
	}
}

func DefaultResearchConfig() ResearchConfig {
	return ResearchConfig{
		NumberOfQueries:    3,
		MaxResultsPerQuery: 4,
		MaxTokensPerSource: 10000,
		MaxIterations:      3,
		Category:           "general",
		DaysBack:           7,
		IncludeRawContent:  false,
		WordLimit:          1000,
	}
}

func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MaxIterations: 15,
		DeepAgent:     false,
	}
}

func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		Backend: "memory",
		TTL:     24 * time.Hour,
		Prefix:  "ragnar",
	}
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "ragnar",
		Collection: "checkpoints",
		Timeout:    10 * time.Second,
	}
}

func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Name:            "ragnar.db",
		SSLMode:         "disable",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		AutoMigrate:     true,
	}
}

func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "ragnar",
		SampleRate:   0.1,
	}
}
