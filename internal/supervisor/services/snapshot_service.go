// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package services

import (
	"context"
	"time"

	"github.com/tomtom215/logflux/internal/database"
	"github.com/tomtom215/logflux/internal/logging"
	"github.com/tomtom215/logflux/internal/tailer"
)

// defaultSnapshotInterval bounds the replay window after a crash.
const defaultSnapshotInterval = 30 * time.Second

// PositionSaver persists tailer positions to the cold store.
type PositionSaver interface {
	SavePositions(ctx context.Context, positions []database.FilePosition) error
}

// SnapshotService periodically flushes the tailer's in-memory read positions
// to the cold store so a restart resumes instead of replaying whole files.
type SnapshotService struct {
	positions *tailer.PositionStore
	saver     PositionSaver
	interval  time.Duration
}

// NewSnapshotService wires the position store to its persistence.
func NewSnapshotService(positions *tailer.PositionStore, saver PositionSaver, interval time.Duration) *SnapshotService {
	if interval <= 0 {
		interval = defaultSnapshotInterval
	}
	return &SnapshotService{positions: positions, saver: saver, interval: interval}
}

// Serve implements suture.Service. A final flush runs on shutdown so the
// last partial interval is not lost.
func (s *SnapshotService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.flush(flushCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

// flush persists the current snapshot; a nil snapshot means nothing changed.
// A failed save only widens the replay window after a crash, and the ingest
// upsert is idempotent, so failures are logged rather than fatal.
func (s *SnapshotService) flush(ctx context.Context) {
	snapshot := s.positions.Snapshot()
	if snapshot == nil {
		return
	}
	batch := make([]database.FilePosition, 0, len(snapshot))
	for path, pos := range snapshot {
		batch = append(batch, database.FilePosition{
			Path:   path,
			Offset: pos.Offset,
			Inode:  pos.Inode,
			Device: pos.Device,
		})
	}
	if err := s.saver.SavePositions(ctx, batch); err != nil {
		logging.Warn().Err(err).Int("files", len(batch)).Msg("position snapshot failed")
		return
	}
	logging.Debug().Int("files", len(batch)).Msg("positions persisted")
}

// String implements fmt.Stringer for supervisor logs.
func (s *SnapshotService) String() string { return "position-snapshotter" }
