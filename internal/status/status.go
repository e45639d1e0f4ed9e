// Package status provides a thread-safe status tracker for the watt-watcher
// daemon. It is read by the HTTP handlers and the shutdown event.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/watt-watcher/internal/config"
	"github.com/sweeney/watt-watcher/internal/logic"
	"github.com/sweeney/watt-watcher/internal/watcher"
)

// Config contains daemon configuration for display.
type Config struct {
	Store     string
	Broker    string
	Namespace string
	HTTPAddr  string
	Watcher   config.WatcherConfig
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Phase          logic.Phase
	Power          float64
	PlugOn         bool
	Counters       logic.Counters
	Counts         logic.EventCounts
	Ticks          int64
	LastTick       time.Time
	LastStart      time.Time
	LastEnd        time.Time
	StartTime      time.Time
	Now            time.Time
	StoreConnected bool
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Phase:     logic.PhaseIdle,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Observe records a completed decision cycle. It satisfies watcher.Observer.
func (t *Tracker) Observe(r watcher.Report) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.Phase = r.Phase
	t.snap.Power = r.Power
	t.snap.PlugOn = r.PlugOn
	t.snap.Counters = r.Counters
	t.snap.Counts = r.Counts
	t.snap.Ticks++
	t.snap.LastTick = r.Time

	for _, e := range r.Events {
		switch e.Type {
		case logic.EventStarted:
			t.snap.LastStart = e.Timestamp
		case logic.EventFinished:
			t.snap.LastEnd = e.Timestamp
		}
	}
}

// SetStoreConnected sets the signal store connection status.
func (t *Tracker) SetStoreConnected(connected bool) {
	t.mu.Lock()
	t.snap.StoreConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
