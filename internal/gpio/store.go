package gpio

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sweeney/watt-watcher/internal/datapoint"
)

// Opener opens the switch for a line offset.
type Opener func(offset int) (Switch, error)

// Store exposes relay lines as datapoints whose ids are line offsets, for
// example "17". It is normally mounted on a datapoint.Mux under "gpio".
type Store struct {
	mu       sync.Mutex
	open     Opener
	switches map[int]Switch
	now      func() time.Time
}

// NewStore creates a Store that opens lines lazily on first use.
func NewStore(open Opener) *Store {
	return &Store{
		open:     open,
		switches: make(map[int]Switch),
		now:      time.Now,
	}
}

// RealOpener opens lines on the given chip.
func RealOpener(chip string, activeLow bool) Opener {
	return func(offset int) (Switch, error) {
		return NewRealSwitch(chip, offset, activeLow)
	}
}

func (s *Store) get(id string) (Switch, error) {
	offset, err := strconv.Atoi(id)
	if err != nil || offset < 0 {
		return nil, fmt.Errorf("gpio: invalid line offset %q", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sw, ok := s.switches[offset]; ok {
		return sw, nil
	}

	sw, err := s.open(offset)
	if err != nil {
		return nil, err
	}
	s.switches[offset] = sw
	return sw, nil
}

// Read returns the relay state as a boolean value.
func (s *Store) Read(_ context.Context, id string) (datapoint.Value, error) {
	sw, err := s.get(id)
	if err != nil {
		return datapoint.Value{}, err
	}

	on, err := sw.Read()
	if err != nil {
		return datapoint.Value{}, err
	}
	return datapoint.Value{Val: on, Ack: true, TS: s.now()}, nil
}

// Write drives the relay. The value is interpreted like a switch reading.
func (s *Store) Write(_ context.Context, id string, val any, _ bool) error {
	sw, err := s.get(id)
	if err != nil {
		return err
	}
	return sw.Set(datapoint.PlugOn(val))
}

// Close releases all opened lines.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for offset, sw := range s.switches {
		if err := sw.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.switches, offset)
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
