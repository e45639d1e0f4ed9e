package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/watt-watcher/internal/config"
	"github.com/sweeney/watt-watcher/internal/logic"
	"github.com/sweeney/watt-watcher/internal/watcher"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		Store:     "mqtt",
		Broker:    "tcp://localhost:1883",
		Namespace: "watt-watcher.0",
		HTTPAddr:  ":8080",
		Watcher: config.WatcherConfig{
			Name:                "washer",
			PowerStateID:        "shelly.0.power",
			SwitchStateID:       "shelly.0.switch",
			IntervalSeconds:     10,
			StartThresholdWatt:  30,
			StopThresholdWatt:   5,
			StartCounterLimit:   2,
			StopCounterLimit:    2,
			AutoOffCounterLimit: 2,
		},
	}
}

func TestNewTracker(t *testing.T) {
	tr := NewTracker(start, testConfig())

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Phase != logic.PhaseIdle {
		t.Errorf("Phase: got %q, want idle", snap.Phase)
	}
	if snap.Config.Watcher.Name != "washer" {
		t.Errorf("Config.Watcher.Name: got %q", snap.Config.Watcher.Name)
	}
	if snap.StoreConnected {
		t.Error("expected StoreConnected=false initially")
	}
	if snap.Ticks != 0 {
		t.Errorf("expected no ticks, got %d", snap.Ticks)
	}
}

func TestObserve(t *testing.T) {
	tr := NewTracker(start, testConfig())

	startedAt := start.Add(time.Minute)
	tr.Observe(watcher.Report{
		Time:     startedAt,
		Power:    42,
		PlugOn:   true,
		Phase:    logic.PhaseRunning,
		Counters: logic.Counters{AboveStart: 2},
		Counts:   logic.EventCounts{Started: 1},
		Events:   []logic.Event{{Timestamp: startedAt, Type: logic.EventStarted, From: logic.PhaseIdle, To: logic.PhaseRunning}},
	})

	endedAt := start.Add(time.Hour)
	tr.Observe(watcher.Report{
		Time:     endedAt,
		Power:    1,
		PlugOn:   true,
		Phase:    logic.PhaseFinished,
		Counters: logic.Counters{BelowStop: 2},
		Counts:   logic.EventCounts{Started: 1, Finished: 1},
		Events:   []logic.Event{{Timestamp: endedAt, Type: logic.EventFinished, From: logic.PhaseRunning, To: logic.PhaseFinished}},
	})

	snap := tr.Snapshot()
	if snap.Phase != logic.PhaseFinished {
		t.Errorf("Phase: got %q, want finished", snap.Phase)
	}
	if snap.Power != 1 || !snap.PlugOn {
		t.Errorf("unexpected reading power=%v plug=%v", snap.Power, snap.PlugOn)
	}
	if snap.Ticks != 2 {
		t.Errorf("Ticks: got %d, want 2", snap.Ticks)
	}
	if !snap.LastStart.Equal(startedAt) {
		t.Errorf("LastStart: got %v, want %v", snap.LastStart, startedAt)
	}
	if !snap.LastEnd.Equal(endedAt) {
		t.Errorf("LastEnd: got %v, want %v", snap.LastEnd, endedAt)
	}
	if snap.Counters.BelowStop != 2 {
		t.Errorf("Counters.BelowStop: got %d, want 2", snap.Counters.BelowStop)
	}
	if snap.Counts.Finished != 1 {
		t.Errorf("Counts.Finished: got %d, want 1", snap.Counts.Finished)
	}
}

func TestSetStoreConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetStoreConnected(true)
	if !tr.Snapshot().StoreConnected {
		t.Error("expected StoreConnected=true")
	}

	tr.SetStoreConnected(false)
	if tr.Snapshot().StoreConnected {
		t.Error("expected StoreConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(start, Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Observe(watcher.Report{Phase: logic.PhaseRunning})

	snap1 := tr.Snapshot()

	tr.Observe(watcher.Report{Phase: logic.PhaseFinished})

	if snap1.Phase != logic.PhaseRunning {
		t.Error("snapshot should be a copy; Phase was modified")
	}
}

func TestFormatJSON(t *testing.T) {
	snap := Snapshot{
		Phase:          logic.PhaseRunning,
		Power:          812.5,
		PlugOn:         true,
		Counters:       logic.Counters{AboveStart: 3},
		Counts:         logic.EventCounts{Started: 5, Finished: 4, Reset: 2, AutoOff: 1},
		Ticks:          90,
		LastStart:      start.Add(10 * time.Minute),
		StartTime:      start,
		Now:            start.Add(15 * time.Minute),
		StoreConnected: true,
		Config:         testConfig(),
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if s.Name != "washer" {
		t.Errorf("Name: got %q, want washer", s.Name)
	}
	if s.Phase != "running" {
		t.Errorf("Phase: got %q, want running", s.Phase)
	}
	if s.PowerWatt != 812.5 {
		t.Errorf("PowerWatt: got %v", s.PowerWatt)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.Store.Connected || s.Store.Kind != "mqtt" {
		t.Errorf("unexpected store status %+v", s.Store)
	}
	if s.Counts.Started != 5 || s.Counts.AutoOff != 1 {
		t.Errorf("unexpected counts %+v", s.Counts)
	}
	if s.LastStart != "2026-01-01T00:10:00Z" {
		t.Errorf("LastStart: got %q", s.LastStart)
	}
	if s.LastEnd != "" {
		t.Errorf("LastEnd: expected empty, got %q", s.LastEnd)
	}
	if s.Config.StartThresholdWatt != 30 || s.Config.IntervalSeconds != 10 {
		t.Errorf("unexpected config %+v", s.Config)
	}
	// Event and Reason should be omitted
	if s.Event != "" || s.Reason != "" {
		t.Errorf("expected empty event/reason for web format, got %q/%q", s.Event, s.Reason)
	}
}

func TestFormatJSONUnknownPhase(t *testing.T) {
	snap := Snapshot{StartTime: start, Now: start.Add(time.Second)}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Phase != "unknown" {
		t.Errorf("Phase: got %q, want unknown", parsed.Status.Phase)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	snap := Snapshot{
		Phase:     logic.PhaseIdle,
		StartTime: start,
		Now:       start.Add(30 * time.Minute),
		Config:    testConfig(),
	}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
	if parsed.Status.UptimeSeconds != 1800 {
		t.Errorf("UptimeSeconds: got %d, want 1800", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{StartTime: start, Now: start.Add(time.Second)}

	data := FormatStatusEvent(snap, "STARTUP", "")

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Observe(watcher.Report{Power: float64(i), Counts: logic.EventCounts{Started: i}})
			tr.SetStoreConnected(i%2 == 0)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
		}
	}()

	wg.Wait()
}
