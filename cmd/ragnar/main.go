// Command ragnar serves and runs the ragnar workflows.
//
// Usage:
//
//	ragnar serve                          # start the HTTP API
//	ragnar serve --config config.yaml     # with a config file (hot reloaded)
//	ragnar ask "Who founded Acme?"        # one business intelligence turn
//	ragnar rag "What is corrective RAG?"  # answer with the configured RAG variant
//	ragnar rag --resume --run-id <id>     # continue a run from its checkpoint
//	ragnar research --type company Acme   # research a topic, company or person
//	ragnar migrate up                     # apply database migrations
//	ragnar health                         # probe a running server
//	ragnar version
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bgunyel/ragnar/config"
)

// Set with -ldflags at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "ask":
		err = runAsk(os.Args[2:])
	case "rag":
		err = runRAG(os.Args[2:])
	case "research":
		err = runResearch(os.Args[2:])
	case "migrate":
		err = runMigrate(os.Args[2:])
	case "health":
		err = runHealthCheck(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ragnar %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration. An empty path uses
// defaults and RAGNAR_* environment overrides only.
func loadConfig(path string) (*config.Loader, *config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return loader, cfg, nil
}

// =============================================================================
// health
// =============================================================================

func runHealthCheck(args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	ready := fs.Bool("ready", false, "Probe /ready instead of /health")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := "/health"
	if *ready {
		path = "/ready"
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + path)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	fmt.Println("OK")
	return nil
}

// =============================================================================
// version and usage
// =============================================================================

func printVersion() {
	fmt.Printf("ragnar %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`ragnar - graph workflows for RAG, research and business intelligence

Usage:
  ragnar <command> [options]

Commands:
  serve     Start the HTTP API and the metrics listener
  ask       Run one business intelligence agent turn
  rag       Answer a question with the configured RAG variant
  research  Research a topic, company or person
  migrate   Database migration commands
  health    Check server health
  version   Show version information
  help      Show this help message

Common options:
  --config <path>   Path to configuration file (YAML)
  --run-id <id>     Run or conversation ID (generated when empty)
  --json            Print the result as JSON (ask, rag, research)

Examples:
  ragnar serve --config /etc/ragnar/config.yaml
  ragnar ask --run-id acme "Research Acme Corp and save it"
  ragnar rag --variant self_rag "What is self-reflective RAG?"
  ragnar rag --resume --run-id 4b7f...
  ragnar research --type person --company Acme "Jane Doe"
  ragnar migrate up
  ragnar health --addr http://localhost:8080`)
}

// =============================================================================
// logging
// =============================================================================

// initLogger builds the process logger. The returned level can be changed
// at runtime.
func initLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel) {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             level,
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger, level
}

func parseLevel(s string) zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return level
}
