package datapoint

import (
	"context"
	"sync"
	"time"
)

// Write is a recorded write for test assertions.
type Write struct {
	ID  string
	Val any
	Ack bool
}

// Memory is an in-process store. It records every write and can be told to
// fail reads or writes for individual datapoints.
type Memory struct {
	mu        sync.Mutex
	values    map[string]Value
	writes    []Write
	readErrs  map[string]error
	writeErrs map[string]error
	now       func() time.Time
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		values:    make(map[string]Value),
		readErrs:  make(map[string]error),
		writeErrs: make(map[string]error),
		now:       time.Now,
	}
}

// Set seeds an acknowledged value without recording a write.
func (m *Memory) Set(id string, val any) {
	m.mu.Lock()
	m.values[id] = Value{Val: val, Ack: true, TS: m.now()}
	m.mu.Unlock()
}

// Delete removes a value.
func (m *Memory) Delete(id string) {
	m.mu.Lock()
	delete(m.values, id)
	m.mu.Unlock()
}

// FailRead makes reads of id return err. A nil err clears the failure.
func (m *Memory) FailRead(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.readErrs, id)
		return
	}
	m.readErrs[id] = err
}

// FailWrite makes writes to id return err. A nil err clears the failure.
func (m *Memory) FailWrite(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.writeErrs, id)
		return
	}
	m.writeErrs[id] = err
}

// Read returns the stored value of id.
func (m *Memory) Read(_ context.Context, id string) (Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.readErrs[id]; err != nil {
		return Value{}, err
	}

	v, ok := m.values[id]
	if !ok {
		return Value{}, ErrNotFound
	}
	return v, nil
}

// Write stores the value and records the write. Failed writes are not
// recorded.
func (m *Memory) Write(_ context.Context, id string, val any, ack bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writeErrs[id]; err != nil {
		return err
	}

	m.values[id] = Value{Val: val, Ack: ack, TS: m.now()}
	m.writes = append(m.writes, Write{ID: id, Val: val, Ack: ack})
	return nil
}

// Writes returns a copy of all recorded writes in order.
func (m *Memory) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Write(nil), m.writes...)
}

// WritesTo returns the recorded writes to a single datapoint.
func (m *Memory) WritesTo(id string) []Write {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Write
	for _, w := range m.writes {
		if w.ID == id {
			out = append(out, w)
		}
	}
	return out
}

// Reset clears recorded writes. Stored values and failures are kept.
func (m *Memory) Reset() {
	m.mu.Lock()
	m.writes = nil
	m.mu.Unlock()
}
