// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package tailer

import (
	"sync"

	"github.com/tomtom215/logflux/internal/logging"
	"github.com/tomtom215/logflux/internal/metrics"
)

// Position records how far into a file the pipeline has safely advanced,
// together with the identity of the file that offset belongs to. Every byte
// before Offset has been parsed or explicitly discarded; no byte at or past
// Offset has been delivered downstream.
type Position struct {
	Offset int64  `json:"offset"`
	Inode  uint64 `json:"inode"`
	Device uint64 `json:"device"`
}

// PositionStore is the in-memory (file path -> Position) map. It has a
// single writer per file (the tailer worker processing that file) and
// concurrent readers (the periodic snapshotter), so a RWMutex suffices.
//
// Durability is delegated: Snapshot() hands a read-consistent copy to the
// cold store, Restore() seeds the map on startup. An unknown file starts at
// offset 0, which yields a full replay; the ingest pipeline's idempotent
// upsert makes the replay harmless.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[string]Position
	dirty     bool
}

// NewPositionStore returns an empty store.
func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[string]Position)}
}

// Get returns the stored position for path, or the zero Position.
func (s *PositionStore) Get(path string) Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positions[path]
}

// Advance moves path's offset forward and records the file identity.
// Offsets are monotonically non-decreasing except through Reset.
func (s *PositionStore) Advance(path string, offset int64, inode, device uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.positions[path]
	if offset < cur.Offset {
		// Never move backwards outside an explicit rotation reset.
		offset = cur.Offset
	}
	s.positions[path] = Position{Offset: offset, Inode: inode, Device: device}
	s.dirty = true
}

// Reset returns path to offset 0 after a detected rotation, adopting the
// new file identity.
func (s *PositionStore) Reset(path string, inode, device uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[path] = Position{Offset: 0, Inode: inode, Device: device}
	s.dirty = true
}

// DetectRotation reports whether the observed file state contradicts the
// stored position: a shrunken file, or a changed inode/device pair. Either
// means the path now names a different byte stream and the position must
// restart at zero.
func (s *PositionStore) DetectRotation(path string, size int64, inode, device uint64) bool {
	s.mu.RLock()
	cur, ok := s.positions[path]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if size < cur.Offset {
		return true
	}
	if inode != 0 && cur.Inode != 0 && (inode != cur.Inode || device != cur.Device) {
		return true
	}
	return false
}

// Snapshot returns a copy of the current positions and clears the dirty
// flag. Returns nil when nothing changed since the last snapshot, letting
// the snapshotter skip a cold-store round trip.
func (s *PositionStore) Snapshot() map[string]Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	out := make(map[string]Position, len(s.positions))
	for path, pos := range s.positions {
		out[path] = pos
	}
	s.dirty = false
	return out
}

// Restore seeds the store from a persisted snapshot. Called once on startup
// before the first scan.
func (s *PositionStore) Restore(persisted map[string]Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, pos := range persisted {
		s.positions[path] = pos
	}
	logging.Info().Int("files", len(persisted)).Msg("restored file positions")
	metrics.FilesWatched.Set(float64(len(s.positions)))
}

// Len returns the number of tracked files.
func (s *PositionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}
