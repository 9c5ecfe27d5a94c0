// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package database

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// FilePosition is one persisted tailer offset.
type FilePosition struct {
	Path   string
	Offset int64
	Inode  uint64
	Device uint64
}

// positionKey is the primary key for a path's offset row. Hashing keeps the
// key fixed-width regardless of path length and matches the key shape used
// by earlier deployments.
func positionKey(path string) string {
	sum := sha1.Sum([]byte(path))
	return "position:" + hex.EncodeToString(sum[:])
}

const savePositionSQL = `INSERT INTO file_positions
	(position_key, path, byte_offset, inode, device, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (position_key) DO UPDATE SET
	path = EXCLUDED.path,
	byte_offset = EXCLUDED.byte_offset,
	inode = EXCLUDED.inode,
	device = EXCLUDED.device,
	updated_at = now()`

// SavePositions persists a snapshot of tailer offsets. Called by the
// snapshotter on its cadence and once more on graceful shutdown.
func (db *DB) SavePositions(ctx context.Context, positions []FilePosition) error {
	if len(positions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range positions {
		batch.Queue(savePositionSQL, positionKey(p.Path), p.Path,
			p.Offset, int64(p.Inode), int64(p.Device))
	}
	results := db.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for i := range positions {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("save position %s: %w", positions[i].Path, err)
		}
	}
	return nil
}

// LoadPositions restores all persisted offsets, keyed by path. An empty table
// means every file starts from offset 0.
func (db *DB) LoadPositions(ctx context.Context) (map[string]FilePosition, error) {
	rows, err := db.pool.Query(ctx,
		"SELECT path, byte_offset, inode, device FROM file_positions")
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	defer rows.Close()

	positions := make(map[string]FilePosition)
	for rows.Next() {
		var p FilePosition
		var inode, device int64
		if err := rows.Scan(&p.Path, &p.Offset, &inode, &device); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.Inode, p.Device = uint64(inode), uint64(device)
		positions[p.Path] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return positions, nil
}
