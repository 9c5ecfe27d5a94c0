// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package websocket

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/logflux/internal/models"
)

func testRecord(cid, service string) models.Record {
	return models.Record{
		CorrelationID: cid,
		Timestamp:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		APIName:       "GetAccount",
		ServiceName:   service,
		LogLevel:      models.LevelInfo,
	}
}

// startHub runs the hub loop and stops it at test cleanup.
func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func recv(t *testing.T, c *Client) models.Message {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return models.Message{}
	}
}

func expectNone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected message %q", msg.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDeliversOnlyMatchingRecords(t *testing.T) {
	hub := startHub(t)

	client := NewClient(hub, nil, true)
	client.SetFilter(&models.Filter{ServiceName: "payments"})
	hub.Register <- client

	hub.Publish(testRecord("cid-1", "accounts"))
	hub.Publish(testRecord("cid-2", "payments"))

	msg := recv(t, client)
	if msg.Type != models.MessageTypeNewLog {
		t.Fatalf("type = %s", msg.Type)
	}
	rec, ok := msg.Data.(models.Record)
	if !ok {
		t.Fatalf("data type %T", msg.Data)
	}
	if rec.CorrelationID != "cid-2" {
		t.Errorf("delivered %s, want the matching record only", rec.CorrelationID)
	}
	expectNone(t, client)
}

func TestHubUnfilteredClientSeesEverything(t *testing.T) {
	hub := startHub(t)

	client := NewClient(hub, nil, true)
	hub.Register <- client

	hub.Publish(testRecord("cid-1", "accounts"))
	hub.Publish(testRecord("cid-2", "payments"))

	first := recv(t, client)
	second := recv(t, client)
	a, _ := first.Data.(models.Record)
	b, _ := second.Data.(models.Record)
	if a.CorrelationID != "cid-1" || b.CorrelationID != "cid-2" {
		t.Errorf("delivery order = %s, %s", a.CorrelationID, b.CorrelationID)
	}
}

func TestHubStatsReachStatsOnlyClients(t *testing.T) {
	hub := startHub(t)

	logs := NewClient(hub, nil, true)
	statsOnly := NewClient(hub, nil, false)
	hub.Register <- logs
	hub.Register <- statsOnly

	hub.PublishStats(models.StatsSnapshot{TotalLogs: 10, SuccessLogs: 9, ErrorLogs: 1, SuccessRate: 90})

	for _, c := range []*Client{logs, statsOnly} {
		msg := recv(t, c)
		if msg.Type != models.MessageTypeStatsUpdate {
			t.Fatalf("type = %s", msg.Type)
		}
		if msg.Stats == nil || msg.Stats.TotalLogs != 10 {
			t.Errorf("stats payload = %+v", msg.Stats)
		}
	}

	// Records must not reach the stats-only client.
	hub.Publish(testRecord("cid-1", "accounts"))
	recv(t, logs)
	expectNone(t, statsOnly)
}

func TestHubReplaysInitialStatsOnConnect(t *testing.T) {
	hub := startHub(t)

	hub.PublishStats(models.StatsSnapshot{TotalLogs: 5})

	client := NewClient(hub, nil, true)
	hub.Register <- client

	msg := recv(t, client)
	if msg.Type != models.MessageTypeInitialStats {
		t.Fatalf("type = %s, want initial_stats", msg.Type)
	}
	if msg.Stats == nil || msg.Stats.TotalLogs != 5 {
		t.Errorf("stats = %+v", msg.Stats)
	}
}

func TestDeliverShedsOldestWhenBufferFull(t *testing.T) {
	hub := NewHub()
	client := NewClient(hub, nil, true)
	hub.clients[client] = true

	for i := 0; i < sendBufferSize; i++ {
		client.send <- models.Message{Type: models.MessageTypeNewLog, Data: testRecord("old", "x")}
	}

	hub.deliver(client, models.Message{Type: models.MessageTypeStatsUpdate})

	if len(client.send) != sendBufferSize {
		t.Fatalf("buffer length = %d", len(client.send))
	}
	if client.failures != 0 {
		t.Errorf("successful shed-and-send must reset failures, got %d", client.failures)
	}
	// Drain: the last message must be the new one.
	var last models.Message
	for len(client.send) > 0 {
		last = <-client.send
	}
	if last.Type != models.MessageTypeStatsUpdate {
		t.Errorf("newest message lost, tail = %s", last.Type)
	}
}

func TestDeliverRemovesClientAfterConsecutiveFailures(t *testing.T) {
	hub := NewHub()
	// An unbuffered channel with no reader fails even after the shed attempt.
	client := &Client{id: 1, hub: hub, send: make(chan models.Message), wantRecords: true}
	hub.clients[client] = true

	hub.deliver(client, models.Message{Type: models.MessageTypeNewLog})
	if client.failures != 1 {
		t.Fatalf("failures = %d after first miss", client.failures)
	}
	if _, ok := hub.clients[client]; !ok {
		t.Fatal("client removed too early")
	}

	hub.deliver(client, models.Message{Type: models.MessageTypeNewLog})
	if _, ok := hub.clients[client]; ok {
		t.Error("client not removed after consecutive failures")
	}
}

func TestHandleControlActions(t *testing.T) {
	hub := NewHub()
	client := NewClient(hub, nil, true)

	client.handleControl(models.ControlMessage{
		Action:  models.ActionSubscribe,
		Filters: &models.Filter{ServiceName: "payments"},
	})
	if f := client.filter.Load(); f == nil || f.ServiceName != "payments" {
		t.Errorf("filter after subscribe = %+v", client.filter.Load())
	}

	client.handleControl(models.ControlMessage{Action: models.ActionUnsubscribe})
	if client.filter.Load() != nil {
		t.Error("filter not cleared on unsubscribe")
	}

	client.handleControl(models.ControlMessage{Action: models.ActionPing})
	msg := recv(t, client)
	if msg.Type != models.MessageTypePong {
		t.Errorf("ping reply = %s", msg.Type)
	}

	// Legacy clients send the action in the type field.
	client.handleControl(models.ControlMessage{Type: models.ActionPing})
	if msg := recv(t, client); msg.Type != models.MessageTypePong {
		t.Errorf("legacy ping reply = %s", msg.Type)
	}

	hub.PublishStats(models.StatsSnapshot{TotalLogs: 3})
	client.handleControl(models.ControlMessage{Action: models.ActionRequestStats})
	msg = recv(t, client)
	if msg.Type != models.MessageTypeStatsUpdate || msg.Stats == nil || msg.Stats.TotalLogs != 3 {
		t.Errorf("request_stats reply = %+v", msg)
	}
}

func TestTrySendAfterRemovalDoesNotPanic(t *testing.T) {
	hub := NewHub()
	client := NewClient(hub, nil, true)
	hub.clients[client] = true

	hub.removeClient(client)

	// A control reply racing the removal must be a silent no-op, not a send
	// on a closed channel.
	client.trySend(models.Message{Type: models.MessageTypePong})
	client.closeSend() // second close is a no-op too

	if _, ok := <-client.send; ok {
		t.Error("send channel not closed after removal")
	}
}

func TestPublishAdvancesRollingCounters(t *testing.T) {
	hub := NewHub()

	hub.Publish(testRecord("cid-1", "accounts"))
	errRec := testRecord("cid-2", "accounts")
	errRec.LogLevel = models.LevelError
	hub.Publish(errRec)

	s := hub.Counters().Snapshot(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	if s.TotalLogs != 2 || s.SuccessLogs != 1 || s.ErrorLogs != 1 {
		t.Errorf("snapshot = %+v", s)
	}
	if s.SuccessRate != 50 {
		t.Errorf("success rate = %v", s.SuccessRate)
	}
}

func TestCountersSeedFoldsInOnce(t *testing.T) {
	var c Counters
	rec := testRecord("cid-1", "accounts")
	c.Observe(&rec) // published before the seed arrived

	c.Seed(10, 2)
	c.Seed(100, 50) // later seeds are ignored

	s := c.Snapshot(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	if s.TotalLogs != 11 || s.ErrorLogs != 2 || s.SuccessLogs != 9 {
		t.Errorf("snapshot = %+v", s)
	}
	if s.SuccessRate != 81.82 {
		t.Errorf("success rate = %v", s.SuccessRate)
	}
}

type fakeSeed struct {
	snap  models.StatsSnapshot
	calls atomic.Int32
}

func (f *fakeSeed) Stats(context.Context) (*models.StatsSnapshot, error) {
	f.calls.Add(1)
	s := f.snap
	return &s, nil
}

func TestHeartbeatPublishesRollingCounters(t *testing.T) {
	hub := startHub(t)
	client := NewClient(hub, nil, false)
	hub.Register <- client

	seed := &fakeSeed{snap: models.StatsSnapshot{TotalLogs: 5, ErrorLogs: 1}}
	hb := NewHeartbeat(hub, seed)
	hb.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hb.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	msg := recv(t, client)
	if msg.Type != models.MessageTypeStatsUpdate {
		t.Fatalf("type = %s", msg.Type)
	}
	if msg.Stats.TotalLogs != 5 || msg.Stats.ErrorLogs != 1 {
		t.Errorf("seeded snapshot = %+v", msg.Stats)
	}

	errRec := testRecord("cid-err", "accounts")
	errRec.LogLevel = models.LevelError
	hub.Publish(errRec)

	deadline := time.After(2 * time.Second)
	for {
		msg := recv(t, client)
		if msg.Stats != nil && msg.Stats.TotalLogs == 6 {
			if msg.Stats.ErrorLogs != 2 {
				t.Errorf("errors = %d after error publish", msg.Stats.ErrorLogs)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("counters never advanced past the seed")
		default:
		}
	}

	if n := seed.calls.Load(); n != 1 {
		t.Errorf("cold store seeded %d times, want exactly once", n)
	}
}
