package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/bgunyel/ragnar/config"
	"github.com/bgunyel/ragnar/internal/migration"
)

// runMigrate dispatches the migrate subcommands.
func runMigrate(args []string) error {
	if len(args) < 1 {
		printMigrateUsage()
		return errors.New("a migrate subcommand is required")
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "up":
		return withMigrator("migrate up", rest, (*migration.CLI).RunUp)
	case "down":
		return withMigrator("migrate down", rest, (*migration.CLI).RunDown)
	case "status":
		return withMigrator("migrate status", rest, (*migration.CLI).RunStatus)
	case "version":
		return withMigrator("migrate version", rest, (*migration.CLI).RunVersion)
	case "info":
		return withMigrator("migrate info", rest, (*migration.CLI).RunInfo)
	case "force":
		if len(rest) < 1 {
			return errors.New("usage: ragnar migrate force <version>")
		}
		version, err := strconv.Atoi(rest[0])
		if err != nil {
			return fmt.Errorf("invalid version number %q", rest[0])
		}
		return withMigrator("migrate force", rest[1:], func(c *migration.CLI, ctx context.Context) error {
			return c.RunForce(ctx, version)
		})
	case "help", "-h", "--help":
		printMigrateUsage()
		return nil
	default:
		printMigrateUsage()
		return fmt.Errorf("unknown migrate subcommand: %s", sub)
	}
}

// withMigrator builds a migrator from --config (and an optional --db-driver
// override) and runs fn against it.
func withMigrator(name string, args []string, fn func(*migration.CLI, context.Context) error) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	driver := fs.String("db-driver", "", "Database driver: postgres, mysql, sqlite (default: from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *driver != "" {
		cfg.Database.Driver = *driver
	}

	migrator, err := migration.NewMigratorFromDatabaseConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	cli.SetOutput(os.Stdout)
	return fn(cli, context.Background())
}

func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  ragnar migrate <subcommand> [options]

Subcommands:
  up               Apply all pending migrations
  down             Roll back the last migration
  status           Show the status of every migration
  version          Show the current migration version
  info             Show database, version and pending count
  force <version>  Force the recorded version (clears the dirty flag)

Options:
  --config <path>      Path to configuration file (YAML)
  --db-driver <name>   postgres, mysql or sqlite (default: from config)

Examples:
  ragnar migrate up --config /etc/ragnar/config.yaml
  ragnar migrate status
  ragnar migrate force 1`)
}
