// Package config provides hierarchical configuration loading for RunLens.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the RunLens service.
type Config struct {
	Server    Server    `yaml:"server"`
	Postgres  Postgres  `yaml:"postgres"`
	NATS      NATS      `yaml:"nats"`
	Cache     Cache     `yaml:"cache"`
	Logging   Logging   `yaml:"logging"`
	Breaker   Breaker   `yaml:"breaker"`
	Preview   Preview   `yaml:"preview"`
	Runs      Runs      `yaml:"runs"`
	Workflows Workflows `yaml:"workflows"`
	MCP       MCP       `yaml:"mcp"`
	Otel      Otel      `yaml:"otel"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Postgres holds PostgreSQL connection configuration for the run archive.
// An empty DSN disables archiving entirely.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// NATS holds NATS JetStream configuration for the event feed.
// An empty URL disables the feed; events then arrive over HTTP only.
type NATS struct {
	URL string `yaml:"url"`
}

// Cache holds tiered cache configuration. L1 is in-process (ristretto),
// L2 is a shared NATS KV bucket.
type Cache struct {
	L1MaxSizeMB int64         `yaml:"l1_max_size_mb"`
	L2Bucket    string        `yaml:"l2_bucket"`
	L2TTL       time.Duration `yaml:"l2_ttl"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration for archive writes.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Preview bounds the per-node live previews and their flush cadence.
type Preview struct {
	MaxRetainedItems  int           `yaml:"max_retained_items"`
	MaxPreviewItems   int           `yaml:"max_preview_items"`
	MaxToolInputChars int           `yaml:"max_tool_input_chars"`
	MaxTextChars      int           `yaml:"max_text_chars"`
	FlushInterval     time.Duration `yaml:"flush_interval"`
}

// Runs holds run registry lifecycle configuration.
type Runs struct {
	IdleRetention      time.Duration `yaml:"idle_retention"`      // how long finished runs stay in memory
	SweepInterval      time.Duration `yaml:"sweep_interval"`      // cadence of the idle-run sweeper
	ArchiveConcurrency int64         `yaml:"archive_concurrency"` // max concurrent archive writes
	TranscriptTTL      time.Duration `yaml:"transcript_ttl"`      // cache TTL for built transcripts
}

// Workflows holds workflow descriptor configuration.
type Workflows struct {
	Dir string `yaml:"dir"` // directory of descriptor YAML files preloaded at startup
}

// MCP holds Model Context Protocol server configuration.
type MCP struct {
	SSEAddr string `yaml:"sse_addr"` // listen address for the SSE transport; empty disables it
	Token   string `yaml:"token"`    // bearer token for SSE clients; empty disables auth
}

// Otel holds OpenTelemetry export configuration.
type Otel struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // OTLP gRPC endpoint, host:port
	Insecure bool   `yaml:"insecure"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		Postgres: Postgres{
			DSN:             "",
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
		},
		NATS: NATS{
			URL: "nats://localhost:4222",
		},
		Cache: Cache{
			L1MaxSizeMB: 64,
			L2Bucket:    "runlens-transcripts",
			L2TTL:       10 * time.Minute,
		},
		Logging: Logging{
			Level:   "info",
			Service: "runlens",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Preview: Preview{
			MaxRetainedItems:  32,
			MaxPreviewItems:   6,
			MaxToolInputChars: 160,
			MaxTextChars:      600,
			FlushInterval:     40 * time.Millisecond,
		},
		Runs: Runs{
			IdleRetention:      30 * time.Minute,
			SweepInterval:      time.Minute,
			ArchiveConcurrency: 4,
			TranscriptTTL:      5 * time.Minute,
		},
		Workflows: Workflows{
			Dir: "",
		},
		MCP: MCP{
			SSEAddr: "",
		},
		Otel: Otel{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Insecure: true,
		},
	}
}
