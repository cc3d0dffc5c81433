package main

import (
	"context"
	"fmt"
	"os"

	"github.com/runlens/runlens/internal/adapter/postgres"
	"github.com/runlens/runlens/internal/config"
)

// runMigrate dispatches archive migration subcommands (up, down, version).
func runMigrate(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printMigrateHelp()
		return nil
	}

	sub := args[0]
	flags, err := config.ParseFlags(args[1:])
	if err != nil {
		return err
	}
	cfg, _, err := config.LoadWithCLI(flags)
	if err != nil {
		return err
	}
	if cfg.Postgres.DSN == "" {
		return fmt.Errorf("an archive DSN is required, set --dsn or postgres.dsn")
	}

	ctx := context.Background()
	switch sub {
	case "up":
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		fmt.Fprintln(os.Stderr, "migrations applied")
		return nil
	case "down":
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, 1); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		fmt.Fprintln(os.Stderr, "last migration rolled back")
		return nil
	case "version":
		v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("migrate version: %w", err)
		}
		fmt.Printf("migration version: %d\n", v)
		return nil
	default:
		printMigrateHelp()
		return fmt.Errorf("unknown migrate command: %s", sub)
	}
}

func printMigrateHelp() {
	fmt.Fprintf(os.Stderr, `Usage: runlens migrate <command> [options]

Commands:
  up        Apply all pending archive migrations
  down      Roll back the most recent migration
  version   Print the current migration version
  help      Show this help message

Examples:
  runlens migrate up --dsn postgres://localhost:5432/runlens
  runlens migrate version
`)
}
