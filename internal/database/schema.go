// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package database

import (
	"context"
	"fmt"
)

// schemaStatements run in order at startup; every statement is idempotent so
// a restart against an existing database is a no-op.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS log_entries (
		correlation_id TEXT PRIMARY KEY,
		timestamp      TIMESTAMPTZ NOT NULL,
		timestamp_raw  TEXT NOT NULL DEFAULT '',
		api_name       TEXT NOT NULL,
		service_name   TEXT NOT NULL,
		log_level      TEXT NOT NULL,
		session_id     TEXT NOT NULL DEFAULT '',
		party_id       TEXT NOT NULL DEFAULT '',
		type           TEXT NOT NULL DEFAULT '',
		has_error      TEXT,
		duration_ms    BIGINT,
		url            TEXT NOT NULL DEFAULT '',
		request        JSONB,
		response       JSONB,
		header_log     JSONB,
		error_message  TEXT NOT NULL DEFAULT '',
		error_trace    TEXT NOT NULL DEFAULT '',
		log_time       TEXT NOT NULL DEFAULT '',
		source_file    TEXT NOT NULL DEFAULT '',
		ingested_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_log_entries_timestamp ON log_entries (timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_log_entries_api_name ON log_entries (api_name)`,
	`CREATE INDEX IF NOT EXISTS idx_log_entries_service_name ON log_entries (service_name)`,
	`CREATE INDEX IF NOT EXISTS idx_log_entries_log_level ON log_entries (log_level)`,
	`CREATE INDEX IF NOT EXISTS idx_log_entries_session_id ON log_entries (session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_log_entries_has_error ON log_entries (has_error)`,

	`CREATE TABLE IF NOT EXISTS file_positions (
		position_key TEXT PRIMARY KEY,
		path         TEXT NOT NULL,
		byte_offset  BIGINT NOT NULL,
		inode        BIGINT NOT NULL DEFAULT 0,
		device       BIGINT NOT NULL DEFAULT 0,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// migrate applies the schema statements in order.
func (db *DB) migrate(ctx context.Context) error {
	for i, stmt := range schemaStatements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
