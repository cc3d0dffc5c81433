package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	rlhttp "github.com/runlens/runlens/internal/adapter/http"
	"github.com/runlens/runlens/internal/adapter/mcp"
	rlnats "github.com/runlens/runlens/internal/adapter/nats"
	"github.com/runlens/runlens/internal/adapter/natskv"
	rlotel "github.com/runlens/runlens/internal/adapter/otel"
	"github.com/runlens/runlens/internal/adapter/postgres"
	"github.com/runlens/runlens/internal/adapter/ristretto"
	"github.com/runlens/runlens/internal/adapter/tiered"
	"github.com/runlens/runlens/internal/adapter/timer"
	"github.com/runlens/runlens/internal/adapter/ws"
	"github.com/runlens/runlens/internal/config"
	"github.com/runlens/runlens/internal/domain/preview"
	"github.com/runlens/runlens/internal/logger"
	"github.com/runlens/runlens/internal/middleware"
	"github.com/runlens/runlens/internal/port/archive"
	"github.com/runlens/runlens/internal/port/cache"
	"github.com/runlens/runlens/internal/resilience"
	"github.com/runlens/runlens/internal/service"
)

const version = "0.1.0"

func main() {
	// Bootstrap logger until the configured one takes over in serve.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	args := os.Args[1:]
	var err error
	if len(args) > 0 {
		switch args[0] {
		case "serve":
			err = runServe(args[1:])
		case "replay":
			err = runReplay(args[1:])
		case "migrate":
			err = runMigrate(args[1:])
		case "mcp":
			err = runMCPStdio(args[1:])
		case "version", "--version":
			fmt.Println("runlens " + version)
			return
		case "help", "-h", "--help":
			printUsage()
			return
		default:
			// bare flags mean serve
			err = runServe(args)
		}
	} else {
		err = runServe(nil)
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: runlens <command> [options]

Commands:
  serve     Start the API server (default)
  replay    Render a transcript from a recorded event log
  migrate   Manage archive database migrations
  mcp       Serve run inspection tools over MCP stdio
  version   Print the version
  help      Show this help message

Examples:
  runlens serve --config runlens.yaml
  runlens serve --port 8080 --nats-url nats://localhost:4222
  runlens replay --format markdown events.ndjson
  runlens replay --descriptor review.yaml capture.ndjson
  runlens migrate up --dsn postgres://localhost/runlens
`)
}

func runServe(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return err
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"nats_url", cfg.NATS.URL,
		"archive", cfg.Postgres.DSN != "",
	)

	// SIGHUP reloads the config. Settings read per request (health
	// reporting) pick up the new values; connection-level settings such
	// as the NATS URL or archive DSN require a restart.
	holder := config.NewHolder(cfg, func() (*config.Config, error) {
		c, _, err := config.LoadWithCLI(flags)
		return c, err
	})
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := holder.Reload(); err != nil {
				slog.Error("config reload failed", "error", err)
				continue
			}
			slog.Info("config reloaded", "path", cfgPath)
		}
	}()

	ctx := context.Background()

	// --- Telemetry ---
	if cfg.Otel.Enabled {
		shutdown, err := rlotel.Setup(ctx, cfg.Otel, cfg.Logging.Service)
		if err != nil {
			return fmt.Errorf("otel: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}
	metrics, err := rlotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Services ---
	hub := ws.NewHub()
	descSvc := service.NewDescriptorService()
	if cfg.Workflows.Dir != "" {
		n, err := descSvc.LoadDirectory(cfg.Workflows.Dir)
		if err != nil {
			return fmt.Errorf("workflow descriptors: %w", err)
		}
		slog.Info("workflow descriptors loaded", "dir", cfg.Workflows.Dir, "count", n)
	}

	runSvc := service.NewRunService(
		descSvc,
		hub,
		timer.New(cfg.Preview.FlushInterval),
		preview.Config{
			MaxRetainedItems:  cfg.Preview.MaxRetainedItems,
			MaxPreviewItems:   cfg.Preview.MaxPreviewItems,
			MaxToolInputChars: cfg.Preview.MaxToolInputChars,
			MaxTextChars:      cfg.Preview.MaxTextChars,
		},
		&cfg.Runs,
	)
	runSvc.SetMetrics(metrics)

	// --- Event feed ---
	var queue *rlnats.Queue
	if cfg.NATS.URL != "" {
		queue, err = rlnats.Connect(ctx, cfg.NATS.URL)
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
	} else {
		slog.Warn("no nats url configured, ingesting over http only")
	}

	// --- Transcript cache ---
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer l1.Close()
	var transcriptCache cache.Cache = l1
	if queue != nil && cfg.Cache.L2Bucket != "" {
		kv, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			return fmt.Errorf("cache bucket: %w", err)
		}
		transcriptCache = tiered.New(l1, natskv.New(kv), cfg.Cache.L2TTL)
	}
	runSvc.SetCache(transcriptCache)

	// --- Run archive ---
	var archiveStore archive.Store
	var archiveBreaker *resilience.Breaker
	if cfg.Postgres.DSN != "" {
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		store := postgres.NewStore(pool)
		archiveBreaker = resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
		runSvc.SetArchive(store, archiveBreaker)
		archiveStore = store
		slog.Info("run archive enabled")
	}

	// --- Idle run sweeper ---
	sweepQuit := make(chan struct{})
	defer close(sweepQuit)
	if cfg.Runs.SweepInterval > 0 {
		go func() {
			t := time.NewTicker(cfg.Runs.SweepInterval)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					if n := runSvc.Sweep(); n > 0 {
						slog.Info("idle runs swept", "count", n)
					}
				case <-sweepQuit:
					return
				}
			}
		}()
	}

	// --- MCP ---
	mcpSrv := mcp.NewServer(
		mcp.ServerConfig{
			Addr:    cfg.MCP.SSEAddr,
			Token:   cfg.MCP.Token,
			Name:    "runlens",
			Version: version,
		},
		mcp.ServerDeps{Runs: runSvc},
	)
	if err := mcpSrv.Start(); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}

	// --- HTTP ---
	handlers := &rlhttp.Handlers{
		Runs:      runSvc,
		Workflows: descSvc,
		Archive:   archiveStore,
	}

	r := chi.NewRouter()
	r.Use(rlhttp.SecurityHeaders)
	r.Use(rlhttp.CORS(cfg.Server.CORSOrigin))
	// RequestID runs before Logger so the logged context carries the ID.
	r.Use(middleware.RequestID)
	r.Use(rlhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Otel.Enabled {
		r.Use(rlotel.HTTPMiddleware(cfg.Logging.Service))
	}

	// Health endpoint with service status
	r.Get("/health", healthHandler(holder, queue, hub, archiveBreaker))

	// WebSocket endpoint stays outside the timeout group; connections
	// are long-lived
	r.Get("/ws", hub.HandleWS)

	// API routes
	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		rlhttp.MountRoutes(r, handlers)
	})

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mcpSrv.Stop(shutdownCtx); err != nil {
		slog.Warn("mcp shutdown failed", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}

// healthHandler returns an http.HandlerFunc that reports service health.
func healthHandler(holder *config.Holder, queue *rlnats.Queue, hub *ws.Hub, breaker *resilience.Breaker) http.HandlerFunc {
	type healthStatus struct {
		Status         string `json:"status"`
		NATS           string `json:"nats"`
		Archive        string `json:"archive"`
		ArchiveBreaker string `json:"archive_breaker,omitempty"`
		WSConnections  int    `json:"ws_connections"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		cfg := holder.Get()
		status := healthStatus{
			Status:        "ok",
			NATS:          "disabled",
			Archive:       "disabled",
			WSConnections: hub.ConnectionCount(),
		}
		if queue != nil {
			status.NATS = "disconnected"
			if queue.IsConnected() {
				status.NATS = "connected"
			}
		}
		if cfg.Postgres.DSN != "" {
			status.Archive = "enabled"
		}
		if breaker != nil {
			status.ArchiveBreaker = breaker.State()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
