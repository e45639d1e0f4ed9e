// Package datapoint defines the external value store the watcher reads its
// inputs from and writes its outputs to, with abstraction for testing.
package datapoint

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned by Read when the datapoint has no value.
var ErrNotFound = errors.New("datapoint not found")

// Value is a datapoint value with its acknowledge flag.
type Value struct {
	Val any
	// Ack is true for confirmed values and false for commands requesting
	// a change.
	Ack bool
	TS  time.Time
}

// Reader reads datapoint values.
type Reader interface {
	// Read returns the current value of id, or ErrNotFound.
	Read(ctx context.Context, id string) (Value, error)
}

// Writer writes datapoint values.
type Writer interface {
	// Write sets id to val. ack=false marks the write as a command.
	Write(ctx context.Context, id string, val any, ack bool) error
}

// Store reads and writes datapoints.
type Store interface {
	Reader
	Writer
}

// Number coerces a datapoint value to a float64. Values that have no
// numeric meaning, NaN and infinities yield 0.
func Number(v any) float64 {
	f := number(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// PlugOn reports whether a switch value means "on". Only boolean true, the
// string "true" and the number 1 count; any other value is off.
func PlugOn(v any) bool {
	switch s := v.(type) {
	case bool:
		return s
	case string:
		return s == "true"
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Number(s) == 1
	default:
		return false
	}
}
