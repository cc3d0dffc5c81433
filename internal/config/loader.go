package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "runlens.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "RUNLENS_PORT")
	setString(&cfg.Server.CORSOrigin, "RUNLENS_CORS_ORIGIN")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "RUNLENS_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "RUNLENS_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "RUNLENS_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "RUNLENS_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "RUNLENS_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")

	setInt64(&cfg.Cache.L1MaxSizeMB, "RUNLENS_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "RUNLENS_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "RUNLENS_CACHE_L2_TTL")

	setString(&cfg.Logging.Level, "RUNLENS_LOG_LEVEL")
	setString(&cfg.Logging.Service, "RUNLENS_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "RUNLENS_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "RUNLENS_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "RUNLENS_BREAKER_TIMEOUT")

	setInt(&cfg.Preview.MaxRetainedItems, "RUNLENS_PREVIEW_MAX_RETAINED")
	setInt(&cfg.Preview.MaxPreviewItems, "RUNLENS_PREVIEW_MAX_ITEMS")
	setInt(&cfg.Preview.MaxToolInputChars, "RUNLENS_PREVIEW_MAX_INPUT_CHARS")
	setInt(&cfg.Preview.MaxTextChars, "RUNLENS_PREVIEW_MAX_TEXT_CHARS")
	setDuration(&cfg.Preview.FlushInterval, "RUNLENS_PREVIEW_FLUSH_INTERVAL")

	setDuration(&cfg.Runs.IdleRetention, "RUNLENS_RUNS_IDLE_RETENTION")
	setDuration(&cfg.Runs.SweepInterval, "RUNLENS_RUNS_SWEEP_INTERVAL")
	setInt64(&cfg.Runs.ArchiveConcurrency, "RUNLENS_RUNS_ARCHIVE_CONCURRENCY")
	setDuration(&cfg.Runs.TranscriptTTL, "RUNLENS_RUNS_TRANSCRIPT_TTL")

	setString(&cfg.Workflows.Dir, "RUNLENS_WORKFLOWS_DIR")

	setString(&cfg.MCP.SSEAddr, "RUNLENS_MCP_SSE_ADDR")
	setString(&cfg.MCP.Token, "RUNLENS_MCP_TOKEN")

	setBool(&cfg.Otel.Enabled, "RUNLENS_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "RUNLENS_OTEL_ENDPOINT")
	setBool(&cfg.Otel.Insecure, "RUNLENS_OTEL_INSECURE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN != "" && cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Runs.ArchiveConcurrency < 1 {
		return errors.New("runs.archive_concurrency must be >= 1")
	}
	if cfg.Preview.MaxPreviewItems < 1 {
		return errors.New("preview.max_preview_items must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
