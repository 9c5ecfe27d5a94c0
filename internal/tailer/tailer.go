// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

// Package tailer discovers log files under a base path, reads them
// incrementally, and hands safe byte ranges to the frame parser.
//
// The design keeps one source of truth: the per-file byte position. The
// periodic scan and the fsnotify watcher both converge on it - notification
// events only wake the scanner early, they never carry state. Positions
// advance by the parser's consumed bytes (not by bytes read), so an
// incomplete trailing frame is retried on the next pass and delivery is
// at-least-once per frame.
package tailer

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tomtom215/logflux/internal/config"
	"github.com/tomtom215/logflux/internal/logging"
	"github.com/tomtom215/logflux/internal/metrics"
	"github.com/tomtom215/logflux/internal/models"
	"github.com/tomtom215/logflux/internal/parser"
)

// Sink receives parsed records in file-offset order (per file).
// Implemented by the ingest pipeline.
type Sink interface {
	Ingest(ctx context.Context, records []models.Record) error
}

// Tailer owns the scan loop and the per-file workers.
type Tailer struct {
	cfg       config.TailerConfig
	parser    *parser.Parser
	positions *PositionStore
	sink      Sink

	// wake is poked by fsnotify events to trigger an early scan.
	wake chan struct{}

	// scanMu serializes whole scans so per-file processing stays strictly
	// serial even if a poll tick fires while a slow scan is running.
	scanMu sync.Mutex

	// lastScan is the completion time of the latest pass, unix nanos; /health
	// reads it through Alive.
	lastScan atomic.Int64
}

// New constructs a Tailer. The position store should be restored from the
// cold store before the first scan.
func New(cfg config.TailerConfig, positions *PositionStore, sink Sink) *Tailer {
	return &Tailer{
		cfg:       cfg,
		parser:    parser.New(cfg.MaxFrameBytes),
		positions: positions,
		sink:      sink,
		wake:      make(chan struct{}, 1),
	}
}

// Positions exposes the store for the snapshotter service.
func (t *Tailer) Positions() *PositionStore { return t.positions }

// Alive reports whether a scan pass completed recently. The threshold is
// three poll intervals so one slow pass does not flap /health; before the
// first pass finishes the tailer counts as alive.
func (t *Tailer) Alive() bool {
	last := t.lastScan.Load()
	if last == 0 {
		return true
	}
	return time.Since(time.Unix(0, last)) < 3*t.cfg.PollInterval
}

// Serve implements suture.Service: poll on a ticker, wake early on watcher
// events, exit when the context cancels.
func (t *Tailer) Serve(ctx context.Context) error {
	watcher := t.startWatcher(ctx)
	if watcher != nil {
		defer func() { _ = watcher.Close() }()
	}

	logging.Info().
		Str("base_path", t.cfg.BasePath).
		Dur("poll_interval", t.cfg.PollInterval).
		Msg("tailer started")

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	// Initial scan picks up existing backlog immediately.
	t.ScanOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("tailer stopped")
			return ctx.Err()
		case <-ticker.C:
			t.ScanOnce(ctx)
		case <-t.wake:
			t.ScanOnce(ctx)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (t *Tailer) String() string { return "file-tailer" }

// ScanOnce runs a single scan-and-process pass over the base path.
// Exported so tests and the force-rescan path can drive it directly.
func (t *Tailer) ScanOnce(ctx context.Context) {
	t.scanMu.Lock()
	defer t.scanMu.Unlock()
	defer func() { t.lastScan.Store(time.Now().UnixNano()) }()

	files, err := t.discover()
	if err != nil {
		logging.Error().Err(err).Str("base_path", t.cfg.BasePath).Msg("log file discovery failed")
		return
	}
	metrics.FilesWatched.Set(float64(len(files)))
	if len(files) == 0 {
		return
	}

	// Bounded parallelism across files; strictly serial within a file
	// because each path is handled by exactly one worker per scan.
	workers := t.cfg.MaxWorkers
	if workers > len(files) {
		workers = len(files)
	}
	if workers < 1 {
		workers = 1
	}

	paths := make(chan string)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for path := range paths {
				if ctx.Err() != nil {
					continue
				}
				t.processFile(ctx, path)
			}
		}()
	}
	for _, path := range files {
		select {
		case paths <- path:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(paths)
	wg.Wait()
}

// discover walks the base path for *.log and *.txt files, sorted for
// deterministic scan order.
func (t *Tailer) discover() ([]string, error) {
	var files []string
	err := filepath.WalkDir(t.cfg.BasePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A vanished directory mid-walk is routine under rotation.
			logging.Debug().Err(err).Str("path", path).Msg("skipping unreadable path")
			return nil
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".log", ".txt":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// processFile reads [position, EOF) of one file, parses complete frames,
// and advances the position by the parser's consumed bytes.
func (t *Tailer) processFile(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		logging.Debug().Err(err).Str("file", path).Msg("stat failed, skipping")
		return
	}
	inode, device := fileID(info)
	size := info.Size()

	if t.positions.DetectRotation(path, size, inode, device) {
		logging.Info().
			Str("file", path).
			Int64("size", size).
			Int64("stored_offset", t.positions.Get(path).Offset).
			Msg("file rotated, resetting position")
		metrics.FilesRotated.Inc()
		t.positions.Reset(path, inode, device)
	}

	pos := t.positions.Get(path)
	if size == pos.Offset {
		return
	}

	data, err := readFrom(path, pos.Offset)
	if err != nil {
		logging.Error().Err(err).Str("file", path).Msg("failed to read log file")
		return
	}
	if len(data) == 0 {
		return
	}
	metrics.BytesTailed.Add(float64(len(data)))

	records, consumed, stats := t.parser.Parse(data, filepath.Base(path))
	bumpParseCounters(stats)
	if consumed == 0 {
		// Trailing incomplete frame: leave the position alone and retry on
		// the next pass.
		return
	}

	if len(records) > 0 {
		if err := t.sink.Ingest(ctx, records); err != nil {
			// Do not advance past undelivered records; the next pass
			// re-parses and re-delivers (at-least-once).
			logging.Error().Err(err).Str("file", path).Msg("ingest failed, will retry range")
			return
		}
	}

	t.positions.Advance(path, pos.Offset+int64(consumed), inode, device)
	logging.Debug().
		Str("file", path).
		Int("records", len(records)).
		Int64("offset", pos.Offset+int64(consumed)).
		Msg("advanced file position")
}

// readFrom returns the bytes of path from offset to EOF.
func readFrom(path string, offset int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, err
		}
	}
	return io.ReadAll(f)
}

// bumpParseCounters feeds a parse pass's outcomes into Prometheus.
func bumpParseCounters(stats parser.Stats) {
	if stats.Parsed > 0 {
		metrics.FramesParsed.Add(float64(stats.Parsed))
	}
	if stats.Rejected > 0 {
		metrics.FramesRejected.Add(float64(stats.Rejected))
	}
	if stats.MissingField > 0 {
		metrics.RequiredFieldMissing.Add(float64(stats.MissingField))
	}
	if stats.CidMismatches > 0 {
		metrics.CidMismatch.Add(float64(stats.CidMismatches))
	}
	if stats.Oversized > 0 {
		metrics.FramesOversized.Add(float64(stats.Oversized))
	}
}

// startWatcher wires fsnotify as an edge trigger over the poll loop. Any
// write/create/rename under the base path pokes the wake channel. Watcher
// failure is non-fatal: the poll loop alone is sufficient.
func (t *Tailer) startWatcher(ctx context.Context) *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn().Err(err).Msg("fsnotify unavailable, relying on poll loop only")
		return nil
	}

	// Watch the base path and all nested directories. Directories created
	// later are added as their create events arrive.
	addAll := func() {
		_ = filepath.WalkDir(t.cfg.BasePath, func(path string, d fs.DirEntry, err error) error {
			if err == nil && d.IsDir() {
				_ = watcher.Add(path)
			}
			return nil
		})
	}
	addAll()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						_ = watcher.Add(event.Name)
					}
				}
				select {
				case t.wake <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Debug().Err(err).Msg("fsnotify error")
			}
		}
	}()
	return watcher
}
