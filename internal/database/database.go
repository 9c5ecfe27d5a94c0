// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

// Package database implements the cold storage tier on PostgreSQL.
//
// Everything durable lives in two tables: log_entries (one row per
// correlation id, indexed attributes as single columns plus the opaque JSON
// blobs) and file_positions (the tailer's persisted read offsets). Writes are
// idempotent upserts keyed on correlation id with last-write-wins on
// ingested_at, so replays after a crash or an at-least-once redelivery
// converge to a single row.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/logflux/internal/config"
	"github.com/tomtom215/logflux/internal/logging"
)

// DB wraps the pgx connection pool and provides data access methods.
type DB struct {
	pool *pgxpool.Pool
	cfg  config.DatabaseConfig
}

// New opens the pool, verifies connectivity, and ensures the schema exists.
func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	db := &DB{pool: pool, cfg: cfg}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logging.Info().
		Int32("max_conns", cfg.MaxConns).
		Int("retention_days", cfg.RetentionDays).
		Msg("cold store ready")
	return db, nil
}

// Ping checks pool health, for /health.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close drains and closes the pool.
func (db *DB) Close() {
	db.pool.Close()
}
