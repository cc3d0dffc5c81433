package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/runlens/runlens/internal/adapter/mcp"
	rlnats "github.com/runlens/runlens/internal/adapter/nats"
	"github.com/runlens/runlens/internal/adapter/postgres"
	"github.com/runlens/runlens/internal/adapter/timer"
	"github.com/runlens/runlens/internal/config"
	"github.com/runlens/runlens/internal/domain/preview"
	"github.com/runlens/runlens/internal/resilience"
	"github.com/runlens/runlens/internal/service"
)

// runMCPStdio serves run inspection tools over MCP stdio. It consumes the
// same feed as the server, so a local assistant can watch runs without
// going through the REST API.
func runMCPStdio(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, _, err := config.LoadWithCLI(flags)
	if err != nil {
		return err
	}
	if cfg.NATS.URL == "" {
		return errors.New("a nats url is required, the stdio server observes the feed directly")
	}

	// The stdio transport owns stdout, so logs go to stderr.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	descSvc := service.NewDescriptorService()
	if cfg.Workflows.Dir != "" {
		if _, err := descSvc.LoadDirectory(cfg.Workflows.Dir); err != nil {
			return fmt.Errorf("workflow descriptors: %w", err)
		}
	}

	runSvc := service.NewRunService(
		descSvc,
		nopBroadcaster{},
		timer.New(cfg.Preview.FlushInterval),
		preview.Config{
			MaxRetainedItems:  cfg.Preview.MaxRetainedItems,
			MaxPreviewItems:   cfg.Preview.MaxPreviewItems,
			MaxToolInputChars: cfg.Preview.MaxToolInputChars,
			MaxTextChars:      cfg.Preview.MaxTextChars,
		},
		&cfg.Runs,
	)

	queue, err := rlnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	runSvc.SetQueue(queue)
	cancels, err := runSvc.StartSubscribers(ctx)
	if err != nil {
		return fmt.Errorf("feed subscribers: %w", err)
	}
	for _, cancel := range cancels {
		defer cancel()
	}

	if cfg.Postgres.DSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		runSvc.SetArchive(postgres.NewStore(pool), resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	}

	srv := mcp.NewServer(
		mcp.ServerConfig{Name: "runlens", Version: version},
		mcp.ServerDeps{Runs: runSvc},
	)
	return srv.ServeStdio(ctx)
}

// nopBroadcaster discards events; the stdio server has no websocket clients.
type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastEvent(context.Context, string, any)            {}
func (nopBroadcaster) BroadcastRunEvent(context.Context, string, string, any) {}
