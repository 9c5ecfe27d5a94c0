// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

// Package config provides centralized configuration for all Logflux
// components, loaded in three layers with koanf v2:
//
//  1. Defaults: built-in values for every optional setting
//  2. Config file: optional YAML file (config.yaml) for persistent settings
//  3. Environment variables: highest priority, flat names (DATABASE_URL,
//     REDIS_HOST, LOG_BASE_PATH, ...)
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Tailer   TailerConfig   `koanf:"tailer"`
	Ingest   IngestConfig   `koanf:"ingest"`
	Cache    CacheConfig    `koanf:"cache"`
	Query    QueryConfig    `koanf:"query"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// DatabaseConfig holds cold-tier (PostgreSQL) settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (DATABASE_URL). Required.
	URL string `koanf:"url"`

	// MaxConns bounds the pgx pool. The pool pre-pings connections on
	// acquire, so a stale connection is never handed to a query.
	MaxConns int32 `koanf:"max_conns"`
	MinConns int32 `koanf:"min_conns"`

	// RetentionDays is the cold horizon enforced by the daily sweeper.
	RetentionDays int `koanf:"retention_days"`
}

// RedisConfig holds hot-tier settings (REDIS_* environment variables).
type RedisConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// Addr returns host:port for the go-redis client.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// TailerConfig holds file-tailing settings.
type TailerConfig struct {
	// BasePath is the root scanned recursively for *.log and *.txt files
	// (LOG_BASE_PATH). Required.
	BasePath string `koanf:"base_path"`

	// PollInterval is the periodic scan cadence. fsnotify events only wake
	// the scanner early; the poll remains the source of truth.
	PollInterval time.Duration `koanf:"poll_interval"`

	// MaxWorkers bounds cross-file parallelism (MAX_WORKERS). The effective
	// parallelism is min(MaxWorkers, files).
	MaxWorkers int `koanf:"max_workers"`

	// MaxFrameBytes drops frames larger than this to bound buffering.
	MaxFrameBytes int `koanf:"max_frame_bytes"`

	// SnapshotInterval is the cadence at which file positions are persisted
	// to the cold store. Positions are also persisted on graceful shutdown.
	SnapshotInterval time.Duration `koanf:"snapshot_interval"`
}

// IngestConfig holds pipeline batching settings.
type IngestConfig struct {
	// BatchSize is the cold-store upsert batch size (LOG_BATCH_SIZE).
	BatchSize int `koanf:"batch_size"`

	// FlushInterval flushes a partial batch after this long.
	FlushInterval time.Duration `koanf:"flush_interval"`

	// MemoryCap is the maximum number of records held in memory while the
	// cold store is failing; beyond it, batches spill to disk.
	MemoryCap int `koanf:"memory_cap"`

	// SpillDir is the badger directory for spilled batches.
	SpillDir string `koanf:"spill_dir"`
}

// CacheConfig holds hot-tier retention and query-result cache settings.
type CacheConfig struct {
	// RetentionDays is the hot retention window (LOG_FILE_RETENTION_DAYS).
	// Records older than this are only answered by the cold tier.
	RetentionDays int `koanf:"retention_days"`

	// QueryTTL is the query-result cache TTL in seconds (CACHE_TTL).
	QueryTTL time.Duration `koanf:"query_ttl"`

	// EnumerationCap bounds a single hot-store enumeration.
	EnumerationCap int `koanf:"enumeration_cap"`
}

// QueryConfig holds router planning knobs.
type QueryConfig struct {
	// NoRangeBoth makes a query without a time range consult both tiers
	// (general search) instead of the hot tier only (live dashboards).
	NoRangeBoth bool `koanf:"no_range_both"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// CORSOrigins is the allow-list for browser clients (CORS_ORIGINS).
	CORSOrigins []string `koanf:"cors_origins"`

	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`

	// Caller annotates every entry with file:line (LOG_CALLER).
	Caller bool `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied. Required fields
// (database URL, log base path) are intentionally empty.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL:           "",
			MaxConns:      10,
			MinConns:      2,
			RetentionDays: 90,
		},
		Redis: RedisConfig{
			Host: "127.0.0.1",
			Port: 6379,
			DB:   0,
		},
		Tailer: TailerConfig{
			BasePath:         "",
			PollInterval:     3 * time.Second,
			MaxWorkers:       4,
			MaxFrameBytes:    8 << 20, // 8 MiB
			SnapshotInterval: 30 * time.Second,
		},
		Ingest: IngestConfig{
			BatchSize:     100,
			FlushInterval: 1 * time.Second,
			MemoryCap:     10000,
			SpillDir:      "/data/logflux/spill",
		},
		Cache: CacheConfig{
			RetentionDays:  2,
			QueryTTL:       300 * time.Second,
			EnumerationCap: 10000,
		},
		Query: QueryConfig{
			NoRangeBoth: false,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: 1 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Tailer.BasePath == "" {
		return fmt.Errorf("LOG_BASE_PATH is required")
	}
	if c.Tailer.MaxWorkers < 1 {
		return fmt.Errorf("MAX_WORKERS must be at least 1, got %d", c.Tailer.MaxWorkers)
	}
	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("LOG_BATCH_SIZE must be at least 1, got %d", c.Ingest.BatchSize)
	}
	if c.Cache.RetentionDays < 1 {
		return fmt.Errorf("LOG_FILE_RETENTION_DAYS must be at least 1, got %d", c.Cache.RetentionDays)
	}
	if c.Database.RetentionDays < c.Cache.RetentionDays {
		return fmt.Errorf("cold retention (%d days) must not be shorter than hot retention (%d days)",
			c.Database.RetentionDays, c.Cache.RetentionDays)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

// HotCutoff returns the boundary between the hot and cold tiers relative to
// now: records at or after the cutoff are expected in Redis.
func (c *Config) HotCutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -c.Cache.RetentionDays)
}
