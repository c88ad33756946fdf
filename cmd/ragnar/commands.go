package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/config"
	"github.com/bgunyel/ragnar/rag"
	"github.com/bgunyel/ragnar/research"
)

// =============================================================================
// serve
// =============================================================================

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loader, cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger, level := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting ragnar",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(context.Background()); err != nil {
			logger.Warn("failed to release resources", zap.Error(err))
		}
	}()

	if *configPath != "" {
		reloader, err := config.NewReloader(loader, cfg, logger)
		if err != nil {
			return err
		}
		reloader.OnReload(func(prev, next *config.Config) {
			if prev.Log.Level != next.Log.Level {
				level.SetLevel(parseLevel(next.Log.Level))
				logger.Info("log level changed", zap.String("from", prev.Log.Level), zap.String("to", next.Log.Level))
			}
		})
		if err := reloader.Start(ctx); err != nil {
			return err
		}
		defer reloader.Stop()
	}

	if err := NewServer(a, logger).Run(ctx); err != nil {
		return err
	}
	logger.Info("ragnar stopped")
	return nil
}

// =============================================================================
// one-shot commands
// =============================================================================

type runFlags struct {
	configPath string
	runID      string
	asJSON     bool
}

func (f *runFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Path to config file")
	fs.StringVar(&f.runID, "run-id", "", "Run or conversation ID")
	fs.BoolVar(&f.asJSON, "json", false, "Print the result as JSON")
}

// withApp loads the config, lets adjust override it, and runs fn over a
// fresh app. Interrupts cancel the run.
func withApp(configPath string, adjust func(*config.Config) error, fn func(ctx context.Context, a *app) error) error {
	_, cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if adjust != nil {
		if err := adjust(cfg); err != nil {
			return err
		}
	}
	logger, _ := initLogger(cfg.Log)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.Background())
	return fn(ctx, a)
}

func runAsk(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	var f runFlags
	f.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		return errors.New("a query is required")
	}

	return withApp(f.configPath, nil, func(ctx context.Context, a *app) error {
		res, err := a.agent.Run(ctx, f.runID, query)
		if err != nil {
			return err
		}
		if f.asJSON {
			return printJSON(os.Stdout, res)
		}
		fmt.Println(res.Content)
		fmt.Fprintf(os.Stderr, "\nrun %s  cost $%.6f\n", res.TurnID, res.TotalCost)
		return nil
	})
}

func runRAG(args []string) error {
	fs := flag.NewFlagSet("rag", flag.ExitOnError)
	var f runFlags
	f.register(fs)
	variant := fs.String("variant", "", "RAG variant: basic, feedback or self_rag (default: from config)")
	resume := fs.Bool("resume", false, "Continue --run-id from its latest checkpoint")
	if err := fs.Parse(args); err != nil {
		return err
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	switch {
	case *resume && f.runID == "":
		return errors.New("--resume requires --run-id")
	case !*resume && question == "":
		return errors.New("a question is required")
	}

	adjust := func(cfg *config.Config) error {
		if *variant == "" {
			return nil
		}
		v, err := rag.ParseVariant(*variant)
		if err != nil {
			return err
		}
		cfg.RAG.Variant = string(v)
		return nil
	}

	return withApp(f.configPath, adjust, func(ctx context.Context, a *app) error {
		var (
			answer *rag.Answer
			err    error
		)
		if *resume {
			answer, err = a.rag.Resume(ctx, f.runID)
		} else {
			answer, err = a.rag.Answer(ctx, f.runID, question)
		}
		if err != nil {
			return err
		}
		if f.asJSON {
			return printJSON(os.Stdout, answer)
		}
		fmt.Println(answer.Generation)
		fmt.Fprintf(os.Stderr, "\nrun %s  steps %s\n", answer.RunID, strings.Join(answer.Steps, " > "))
		return nil
	})
}

func runResearch(args []string) error {
	fs := flag.NewFlagSet("research", flag.ExitOnError)
	var f runFlags
	f.register(fs)
	searchType := fs.String("type", string(research.SearchTypeTopic), "Subject type: topic, company or person")
	company := fs.String("company", "", "Company of the person (type person)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	subject := research.Subject{
		Type:    research.SearchType(*searchType),
		Name:    strings.TrimSpace(strings.Join(fs.Args(), " ")),
		Company: *company,
	}

	return withApp(f.configPath, nil, func(ctx context.Context, a *app) error {
		report, err := a.researcher.Research(ctx, f.runID, subject)
		if err != nil {
			return err
		}
		if f.asJSON {
			return printJSON(os.Stdout, report)
		}
		fmt.Println(report.Content)
		fmt.Fprintf(os.Stderr, "\nrun %s  iterations %d  queries %d\n", report.RunID, report.Iterations, len(report.Queries))
		return nil
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
