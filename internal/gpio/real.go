//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// RealSwitch drives a relay line using the Linux GPIO character device.
type RealSwitch struct {
	mu     sync.Mutex
	chip   *gpiocdev.Chip
	line   *gpiocdev.Line
	output bool
}

// NewRealSwitch requests the line without changing its direction, so
// opening the switch never toggles the relay.
func NewRealSwitch(chipName string, offset int, activeLow bool) (*RealSwitch, error) {
	if chipName == "" {
		chipName = DefaultChip
	}

	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsIs}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := chip.RequestLine(offset, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request relay line %d: %w", offset, err)
	}

	return &RealSwitch{chip: chip, line: line}, nil
}

// Read returns the logical state of the relay line.
func (r *RealSwitch) Read() (bool, error) {
	v, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read relay line: %w", err)
	}
	return v == 1, nil
}

// Set drives the relay line. The first call switches the line to output.
func (r *RealSwitch) Set(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := 0
	if on {
		v = 1
	}

	if !r.output {
		if err := r.line.Reconfigure(gpiocdev.AsOutput(v)); err != nil {
			return fmt.Errorf("configure relay line as output: %w", err)
		}
		r.output = true
		return nil
	}

	if err := r.line.SetValue(v); err != nil {
		return fmt.Errorf("set relay line: %w", err)
	}
	return nil
}

// Close releases GPIO resources. The line keeps its last driven value.
func (r *RealSwitch) Close() error {
	var errs []error

	if r.line != nil {
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay line: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
