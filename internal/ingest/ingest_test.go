// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/logflux/internal/config"
	"github.com/tomtom215/logflux/internal/models"
)

type fakeCold struct {
	mu      sync.Mutex
	batches [][]models.Record
	fail    bool
}

func (c *fakeCold) UpsertBatch(_ context.Context, records []models.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("cold store down")
	}
	batch := make([]models.Record, len(records))
	copy(batch, records)
	c.batches = append(c.batches, batch)
	return nil
}

func (c *fakeCold) setFail(fail bool) {
	c.mu.Lock()
	c.fail = fail
	c.mu.Unlock()
}

func (c *fakeCold) batchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

type fakeHot struct {
	mu   sync.Mutex
	cids []string
	fail bool
}

func (h *fakeHot) Put(_ context.Context, rec *models.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail {
		return errors.New("redis down")
	}
	h.cids = append(h.cids, rec.CorrelationID)
	return nil
}

type fakeHub struct {
	mu        sync.Mutex
	published []models.Record
}

func (h *fakeHub) Publish(rec models.Record) {
	h.mu.Lock()
	h.published = append(h.published, rec)
	h.mu.Unlock()
}

func testRecord(cid string) models.Record {
	return models.Record{
		CorrelationID: cid,
		Timestamp:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		APIName:       "GetAccount",
		ServiceName:   "accounts",
		LogLevel:      models.LevelInfo,
	}
}

func testIngestConfig() config.IngestConfig {
	return config.IngestConfig{
		BatchSize:     3,
		FlushInterval: 10 * time.Millisecond,
		MemoryCap:     100,
	}
}

func TestPipelineStampsAndFansOut(t *testing.T) {
	hot := &fakeHot{}
	hub := &fakeHub{}
	p := NewPipeline(testIngestConfig(), hot, hub, nil)

	if err := p.Ingest(context.Background(), []models.Record{testRecord("cid-1")}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if len(hot.cids) != 1 || hot.cids[0] != "cid-1" {
		t.Errorf("hot writes = %v", hot.cids)
	}
	if len(hub.published) != 1 {
		t.Fatalf("published = %d", len(hub.published))
	}
	if hub.published[0].IngestedAt.IsZero() {
		t.Error("IngestedAt not stamped before publish")
	}

	select {
	case rec := <-p.Queue():
		if rec.IngestedAt.IsZero() {
			t.Error("IngestedAt not stamped before queueing")
		}
	default:
		t.Fatal("record not queued for cold store")
	}
}

func TestPipelineHotFailureIsNonFatal(t *testing.T) {
	hot := &fakeHot{fail: true}
	p := NewPipeline(testIngestConfig(), hot, &fakeHub{}, nil)

	if err := p.Ingest(context.Background(), []models.Record{testRecord("cid-1")}); err != nil {
		t.Fatalf("hot failure must not fail ingest: %v", err)
	}
	if len(p.Queue()) != 1 {
		t.Error("record must still reach the cold path")
	}
}

func TestPipelineDropsInvalidRecords(t *testing.T) {
	p := NewPipeline(testIngestConfig(), nil, nil, nil)

	bad := testRecord("cid-1")
	bad.APIName = ""
	if err := p.Ingest(context.Background(), []models.Record{bad}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(p.Queue()) != 0 {
		t.Error("invalid record was queued")
	}
}

func TestPipelineSpillsWhenQueueFull(t *testing.T) {
	spill, err := OpenSpill(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = spill.Close() }()

	cfg := testIngestConfig()
	cfg.MemoryCap = 2
	cfg.BatchSize = 1
	p := NewPipeline(cfg, nil, nil, spill)

	records := make([]models.Record, 5)
	for i := range records {
		records[i] = testRecord(fmt.Sprintf("cid-%d", i))
	}
	if err := p.Ingest(context.Background(), records); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if len(p.Queue()) != 2 {
		t.Errorf("queued = %d, want 2", len(p.Queue()))
	}
	if spill.Pending() != 1 {
		t.Errorf("spilled batches = %d, want 1", spill.Pending())
	}
}

func TestPipelineQueueFullWithoutSpillErrors(t *testing.T) {
	cfg := testIngestConfig()
	cfg.MemoryCap = 1
	cfg.BatchSize = 1
	p := NewPipeline(cfg, nil, nil, nil)

	records := []models.Record{testRecord("cid-1"), testRecord("cid-2")}
	if err := p.Ingest(context.Background(), records); !errors.Is(err, ErrQueueFull) {
		t.Errorf("err = %v, want ErrQueueFull", err)
	}
}

func TestSpillReplaysOldestFirst(t *testing.T) {
	spill, err := OpenSpill(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = spill.Close() }()

	if err := spill.Append([]models.Record{testRecord("cid-1")}); err != nil {
		t.Fatal(err)
	}
	if err := spill.Append([]models.Record{testRecord("cid-2")}); err != nil {
		t.Fatal(err)
	}
	if spill.Pending() != 2 {
		t.Fatalf("pending = %d", spill.Pending())
	}

	var order []string
	for {
		processed, err := spill.ReplayOne(func(batch []models.Record) error {
			order = append(order, batch[0].CorrelationID)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if !processed {
			break
		}
	}
	if len(order) != 2 || order[0] != "cid-1" || order[1] != "cid-2" {
		t.Errorf("replay order = %v", order)
	}
	if spill.Pending() != 0 {
		t.Errorf("pending after drain = %d", spill.Pending())
	}
}

func TestSpillKeepsBatchOnReplayFailure(t *testing.T) {
	spill, err := OpenSpill(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = spill.Close() }()

	if err := spill.Append([]models.Record{testRecord("cid-1")}); err != nil {
		t.Fatal(err)
	}
	_, err = spill.ReplayOne(func([]models.Record) error {
		return errors.New("still down")
	})
	if err == nil {
		t.Fatal("expected replay error")
	}
	if spill.Pending() != 1 {
		t.Errorf("failed batch must stay pending, got %d", spill.Pending())
	}
}

func TestReplayerDrainStopsWhileColdDown(t *testing.T) {
	spill, err := OpenSpill(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = spill.Close() }()

	if err := spill.Append([]models.Record{testRecord("cid-1")}); err != nil {
		t.Fatal(err)
	}

	cold := &fakeCold{fail: true}
	r := NewReplayer(cold, spill)
	r.drain(context.Background())
	if spill.Pending() != 1 {
		t.Errorf("pending = %d, want 1 while cold store down", spill.Pending())
	}

	cold.setFail(false)
	r.drain(context.Background())
	if spill.Pending() != 0 {
		t.Errorf("pending = %d after recovery", spill.Pending())
	}
	if cold.batchCount() != 1 {
		t.Errorf("cold batches = %d", cold.batchCount())
	}
}

func TestBatchWriterFlushesOnSize(t *testing.T) {
	cold := &fakeCold{}
	cfg := testIngestConfig()
	cfg.FlushInterval = time.Hour // only the size trigger may fire
	p := NewPipeline(cfg, nil, nil, nil)
	w := NewBatchWriter(cfg, cold, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Serve(ctx)
		close(done)
	}()

	records := make([]models.Record, cfg.BatchSize)
	for i := range records {
		records[i] = testRecord(fmt.Sprintf("cid-%d", i))
	}
	if err := p.Ingest(ctx, records); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for cold.batchCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("batch never flushed on size")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	cold.mu.Lock()
	defer cold.mu.Unlock()
	if len(cold.batches[0]) != cfg.BatchSize {
		t.Errorf("flushed %d records, want %d", len(cold.batches[0]), cfg.BatchSize)
	}
}

func TestBatchWriterFlushesOnInterval(t *testing.T) {
	cold := &fakeCold{}
	cfg := testIngestConfig()
	p := NewPipeline(cfg, nil, nil, nil)
	w := NewBatchWriter(cfg, cold, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Serve(ctx)
		close(done)
	}()

	// One record, below the size trigger.
	if err := p.Ingest(ctx, []models.Record{testRecord("cid-1")}); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for cold.batchCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("partial batch never flushed on interval")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestBatchWriterSpillsOnShutdownWhileColdDown(t *testing.T) {
	spill, err := OpenSpill(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = spill.Close() }()

	cold := &fakeCold{fail: true}
	cfg := testIngestConfig()
	cfg.FlushInterval = time.Hour
	p := NewPipeline(cfg, nil, nil, spill)
	w := NewBatchWriter(cfg, cold, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Serve(ctx)
		close(done)
	}()

	if err := p.Ingest(ctx, []models.Record{testRecord("cid-1")}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if spill.Pending() != 1 {
		t.Errorf("pending = %d, want the in-flight batch spilled", spill.Pending())
	}
}
