// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package ingest

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/logflux/internal/logging"
	"github.com/tomtom215/logflux/internal/models"
)

// Spill is the on-disk overflow for record batches that cannot reach the
// cold store. Batches are stored in BadgerDB with fsync, keyed in arrival
// order, and replayed oldest-first once the cold store recovers. Upserts are
// idempotent so a batch replayed twice converges to the same rows.
type Spill struct {
	db  *badger.DB
	seq atomic.Uint64
}

// OpenSpill opens (or creates) the spill store at dir.
func OpenSpill(dir string) (*Spill, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create spill directory %s: %w", dir, err)
	}

	opts := badger.DefaultOptions(dir)
	opts.SyncWrites = true
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open spill store: %w", err)
	}

	logging.Info().Str("path", dir).Msg("spill store opened")
	return &Spill{db: db}, nil
}

// Close shuts the store down.
func (s *Spill) Close() error { return s.db.Close() }

// spillKey orders batches by write time; the sequence breaks same-nanosecond
// ties within a process.
func (s *Spill) spillKey() []byte {
	return []byte(fmt.Sprintf("batch:%020d:%012d", time.Now().UnixNano(), s.seq.Add(1)))
}

// Append durably stores one batch.
func (s *Spill) Append(batch []models.Record) error {
	if len(batch) == 0 {
		return nil
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode spill batch: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.spillKey(), data)
	})
	if err != nil {
		return fmt.Errorf("write spill batch: %w", err)
	}
	return nil
}

// ReplayOne feeds the oldest batch to fn and deletes it when fn succeeds.
// It reports whether a batch was processed; (false, nil) means the store is
// empty. A batch that fails to decode is dropped so it cannot wedge replay.
func (s *Spill) ReplayOne(fn func([]models.Record) error) (bool, error) {
	var key []byte
	var batch []models.Record
	var corrupt bool

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		it.Rewind()
		if !it.Valid() {
			return nil
		}
		item := it.Item()
		key = item.KeyCopy(nil)
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &batch); err != nil {
				corrupt = true
				logging.Error().Err(err).Str("key", string(key)).
					Msg("dropping undecodable spill batch")
			}
			return nil
		})
	})
	if err != nil {
		return false, fmt.Errorf("read spill batch: %w", err)
	}
	if key == nil {
		return false, nil
	}

	if !corrupt {
		if err := fn(batch); err != nil {
			return false, err
		}
	}
	err = s.db.Update(func(txn *badger.Txn) error { return txn.Delete(key) })
	if err != nil {
		return false, fmt.Errorf("delete spill batch: %w", err)
	}
	return !corrupt, nil
}

// Pending counts batches waiting for replay.
func (s *Spill) Pending() int {
	var n int
	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n
}
