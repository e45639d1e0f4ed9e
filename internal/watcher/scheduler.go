package watcher

import (
	"sync"
	"time"
)

// Handle cancels a scheduled callback.
type Handle interface {
	Cancel()
}

// Scheduler runs a callback periodically.
type Scheduler interface {
	// Schedule calls fn every interval until the returned handle is
	// cancelled. Calls made through one handle never overlap.
	Schedule(interval time.Duration, fn func()) Handle
}

// TickerScheduler schedules callbacks on a time.Ticker goroutine.
type TickerScheduler struct{}

type tickerHandle struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// Schedule starts a goroutine that calls fn on every tick.
func (TickerScheduler) Schedule(interval time.Duration, fn func()) Handle {
	h := &tickerHandle{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-h.done:
				return
			case <-h.ticker.C:
				fn()
			}
		}
	}()

	return h
}

// Cancel stops the ticker. It is safe to call more than once.
func (h *tickerHandle) Cancel() {
	h.once.Do(func() {
		h.ticker.Stop()
		close(h.done)
	})
}

// FakeScheduler records scheduled callbacks and fires them on demand.
type FakeScheduler struct {
	mu      sync.Mutex
	handles []*FakeHandle
}

// FakeHandle is a callback registered with a FakeScheduler.
type FakeHandle struct {
	Interval  time.Duration
	fn        func()
	cancelled bool
	mu        *sync.Mutex
}

// NewFakeScheduler creates a FakeScheduler.
func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{}
}

// Schedule records the callback.
func (f *FakeScheduler) Schedule(interval time.Duration, fn func()) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()

	h := &FakeHandle{Interval: interval, fn: fn, mu: &f.mu}
	f.handles = append(f.handles, h)
	return h
}

// Cancel marks the handle cancelled.
func (h *FakeHandle) Cancel() {
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
}

// Cancelled reports whether Cancel was called.
func (h *FakeHandle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// Active returns the handles that have not been cancelled.
func (f *FakeScheduler) Active() []*FakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*FakeHandle
	for _, h := range f.handles {
		if !h.cancelled {
			out = append(out, h)
		}
	}
	return out
}

// Scheduled returns every handle ever scheduled.
func (f *FakeScheduler) Scheduled() []*FakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeHandle(nil), f.handles...)
}

// Fire calls every active callback once, as if one interval had elapsed.
func (f *FakeScheduler) Fire() {
	for _, h := range f.Active() {
		h.fn()
	}
}
