// Package watcher runs the lifecycle detection for one appliance against a
// datapoint store on a fixed interval.
package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/watt-watcher/internal/config"
	"github.com/sweeney/watt-watcher/internal/datapoint"
	"github.com/sweeney/watt-watcher/internal/logic"
)

// Output datapoint names, relative to the watcher namespace.
const (
	OutputStatus       = "status"
	OutputCurrentPower = "currentPower"
	OutputLastStart    = "lastStart"
	OutputLastEnd      = "lastEnd"
)

// Report describes one completed decision cycle.
type Report struct {
	Time     time.Time
	Power    float64
	PlugOn   bool
	Phase    logic.Phase
	Counters logic.Counters
	Counts   logic.EventCounts
	Events   []logic.Event
	AutoOff  bool
}

// Observer is notified after every completed decision cycle.
type Observer interface {
	Observe(Report)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(Report)

// Observe calls f(r).
func (f ObserverFunc) Observe(r Report) { f(r) }

// Option configures a Watcher.
type Option func(*Watcher)

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) { w.now = now }
}

// WithNamespace prefixes output datapoints, e.g. "watt-watcher.0" makes the
// status output "watt-watcher.0.status".
func WithNamespace(ns string) Option {
	return func(w *Watcher) { w.namespace = ns }
}

// WithObserver registers an observer for decision cycles.
func WithObserver(o Observer) Option {
	return func(w *Watcher) { w.observers = append(w.observers, o) }
}

// Watcher owns the lifecycle state of one appliance.
type Watcher struct {
	cfg       config.WatcherConfig
	store     datapoint.Store
	sched     Scheduler
	log       *logrus.Entry
	now       func() time.Time
	namespace string
	observers []Observer

	mu     sync.Mutex
	handle Handle

	// tickMu serializes decision cycles and guards lc.
	tickMu sync.Mutex
	lc     *logic.Lifecycle
}

// New creates a watcher in the idle phase. The configuration must already
// have been validated.
func New(cfg config.WatcherConfig, store datapoint.Store, sched Scheduler, log *logrus.Entry, opts ...Option) *Watcher {
	w := &Watcher{
		cfg:   cfg,
		store: store,
		sched: sched,
		log:   log.WithField("watcher", cfg.Name),
		now:   time.Now,
		lc: logic.NewLifecycle(logic.Params{
			StartThresholdWatt:     cfg.StartThresholdWatt,
			StopThresholdWatt:      cfg.StopThresholdWatt,
			StartCounterLimit:      cfg.StartCounterLimit,
			StopCounterLimit:       cfg.StopCounterLimit,
			AutoOffCounterLimit:    cfg.AutoOffCounterLimit,
			SwitchOffAfterFinished: cfg.SwitchOffAfterFinished,
			HasSwitch:              cfg.HasSwitch(),
		}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Start arms the periodic decision cycle, replacing any earlier schedule,
// and writes the idle status.
func (w *Watcher) Start() {
	interval := w.cfg.Interval()

	w.mu.Lock()
	if w.handle != nil {
		w.handle.Cancel()
	}
	w.handle = w.sched.Schedule(interval, w.Tick)
	w.mu.Unlock()

	w.log.Infof("%q started (interval %v secs)", w.cfg.Name, interval.Seconds())
	w.writeStatus(context.Background(), logic.PhaseIdle)
}

// Stop disarms the periodic decision cycle. A cycle in progress completes.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.handle == nil {
		return
	}
	w.handle.Cancel()
	w.handle = nil
	w.log.Infof("%q stopped", w.cfg.Name)
}

// Dispose releases the schedule. It is safe to call at any time.
func (w *Watcher) Dispose() {
	w.Stop()
}

// Running reports whether a schedule is armed.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handle != nil
}

// Phase returns the current lifecycle phase.
func (w *Watcher) Phase() logic.Phase {
	w.tickMu.Lock()
	defer w.tickMu.Unlock()
	return w.lc.Phase()
}

// Counters returns the current hysteresis counters.
func (w *Watcher) Counters() logic.Counters {
	w.tickMu.Lock()
	defer w.tickMu.Unlock()
	return w.lc.Counters()
}

// Tick runs one decision cycle. Read and write failures are logged and do
// not abort the cycle; any other failure abandons the cycle and is logged.
// Concurrent calls are serialized.
func (w *Watcher) Tick() {
	w.tickMu.Lock()
	defer w.tickMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			tickFailuresTotal.WithLabelValues(w.cfg.Name).Inc()
			w.log.Errorf("%s: error in loop: %v", w.cfg.Name, r)
		}
	}()

	ctx := context.Background()
	now := w.now()

	power := w.readPower(ctx)
	plugOn := w.readPlug(ctx)

	res := w.lc.Process(logic.Input{Power: power, PlugOn: plugOn, Time: now})

	for _, e := range res.Events {
		w.apply(ctx, e)
	}

	if res.AutoOff {
		w.switchOff(ctx)
	}

	w.writeOutput(ctx, OutputCurrentPower, power)

	w.report(Report{
		Time:     now,
		Power:    power,
		PlugOn:   plugOn,
		Phase:    w.lc.Phase(),
		Counters: w.lc.Counters(),
		Counts:   w.lc.EventCountsSnapshot(),
		Events:   res.Events,
		AutoOff:  res.AutoOff,
	})
}

func (w *Watcher) apply(ctx context.Context, e logic.Event) {
	transitionsTotal.WithLabelValues(w.cfg.Name, string(e.To)).Inc()

	switch e.Type {
	case logic.EventStarted:
		w.log.Infof("%s started", w.cfg.Name)
		w.writeStatus(ctx, logic.PhaseRunning)
		w.writeTimestamp(ctx, OutputLastStart, e.Timestamp)
	case logic.EventFinished:
		w.log.Infof("%s finished", w.cfg.Name)
		w.writeStatus(ctx, logic.PhaseFinished)
		w.writeTimestamp(ctx, OutputLastEnd, e.Timestamp)
	case logic.EventReset:
		w.writeStatus(ctx, logic.PhaseIdle)
	}
}

func (w *Watcher) switchOff(ctx context.Context) {
	id := w.cfg.SwitchStateID
	w.log.Infof("%s: auto-off triggered, switching off %s", w.cfg.Name, id)

	// A command, not a confirmed value
	if err := w.store.Write(ctx, id, false, false); err != nil {
		ioErrorsTotal.WithLabelValues(w.cfg.Name, "command").Inc()
		w.log.Warnf("%s: failed to auto-off: %v", w.cfg.Name, err)
		return
	}

	w.lc.AutoOffIssued()
	autoOffTotal.WithLabelValues(w.cfg.Name).Inc()
}

func (w *Watcher) readPower(ctx context.Context) float64 {
	v, ok := w.read(ctx, w.cfg.PowerStateID)
	if !ok {
		return 0
	}
	return datapoint.Number(v.Val)
}

func (w *Watcher) readPlug(ctx context.Context) bool {
	if !w.cfg.HasSwitch() {
		return false
	}

	v, ok := w.read(ctx, w.cfg.SwitchStateID)
	if !ok {
		return false
	}
	return datapoint.PlugOn(v.Val)
}

func (w *Watcher) read(ctx context.Context, id string) (datapoint.Value, bool) {
	if id == "" {
		return datapoint.Value{}, false
	}

	v, err := w.store.Read(ctx, id)
	switch {
	case errors.Is(err, datapoint.ErrNotFound):
		w.log.Debugf("%s: %s has no value", w.cfg.Name, id)
		return v, false
	case err != nil:
		ioErrorsTotal.WithLabelValues(w.cfg.Name, "read").Inc()
		w.log.Warnf("%s: could not read %s: %v", w.cfg.Name, id, err)
		return v, false
	}

	return v, true
}

func (w *Watcher) writeStatus(ctx context.Context, p logic.Phase) {
	w.log.Infof("%s: update status to %s", w.cfg.Name, p)
	w.writeOutput(ctx, OutputStatus, string(p))
}

func (w *Watcher) writeTimestamp(ctx context.Context, name string, ts time.Time) {
	w.writeOutput(ctx, name, ts.UnixMilli())
}

func (w *Watcher) writeOutput(ctx context.Context, name string, val any) {
	if err := w.store.Write(ctx, w.OutputID(name), val, true); err != nil {
		ioErrorsTotal.WithLabelValues(w.cfg.Name, "write").Inc()
		w.log.Warnf("%s: could not update %s: %v", w.cfg.Name, name, err)
	}
}

// OutputID returns the datapoint id of an output in this watcher's namespace.
func (w *Watcher) OutputID(name string) string {
	if w.namespace == "" {
		return name
	}
	return w.namespace + "." + name
}

func (w *Watcher) report(r Report) {
	ticksTotal.WithLabelValues(w.cfg.Name).Inc()
	phaseGauge.WithLabelValues(w.cfg.Name).Set(phaseValue(r.Phase))
	powerGauge.WithLabelValues(w.cfg.Name).Set(r.Power)
	counterGauge.WithLabelValues(w.cfg.Name, "above_start").Set(float64(r.Counters.AboveStart))
	counterGauge.WithLabelValues(w.cfg.Name, "below_stop").Set(float64(r.Counters.BelowStop))

	for _, o := range w.observers {
		o.Observe(r)
	}
}
