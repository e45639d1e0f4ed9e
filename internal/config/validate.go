package config

import (
	"fmt"
	"math"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Problem is a single configuration diagnostic.
type Problem struct {
	Field   string
	Message string
}

func (p Problem) String() string {
	return p.Message
}

type rangeCheck struct {
	key      string
	min, max float64
}

var numberChecks = []rangeCheck{
	{"intervalSeconds", 1, 3600},
	{"startThresholdWatt", 0, math.Inf(1)},
	{"stopThresholdWatt", 0, math.Inf(1)},
	{"startCounterLimit", 1, math.Inf(1)},
	{"stopCounterLimit", 1, math.Inf(1)},
	{"autoOffCounterLimit", 0, math.Inf(1)},
	{"resetDelayMinutes", 0, 1440},
}

// Check returns every problem found in the record. A nil record yields a
// single problem.
func Check(rec Record) []Problem {
	if rec == nil {
		return []Problem{{Message: "Config object is missing entirely."}}
	}

	var problems []Problem
	add := func(field, format string, args ...any) {
		problems = append(problems, Problem{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if s, ok := rec["name"].(string); !ok || s == "" {
		add("name", "name is required and must be a string.")
	}

	if s, ok := rec["powerStateId"].(string); !ok || s == "" {
		add("powerStateId", "powerStateId is required and must be a datapoint ID string.")
	}

	if v, present := rec["switchStateId"]; present && v != nil {
		if _, ok := v.(string); !ok {
			add("switchStateId", "switchStateId must be a string if provided.")
		}
	}

	for _, c := range numberChecks {
		n, ok := number(rec[c.key])
		switch {
		case !ok:
			add(c.key, "%s must be a number.", c.key)
		case n < c.min || n > c.max:
			add(c.key, "%s must be between %s and %s.", c.key, formatBound(c.min), formatBound(c.max))
		}
	}

	if _, ok := rec["switchOffAfterFinished"].(bool); !ok {
		add("switchOffAfterFinished", "switchOffAfterFinished must be true or false.")
	}

	start, startOK := number(rec["startThresholdWatt"])
	stop, stopOK := number(rec["stopThresholdWatt"])
	if startOK && stopOK && start <= stop {
		add("startThresholdWatt", "startThresholdWatt should be greater than stopThresholdWatt.")
	}

	return problems
}

// Validate logs every problem in the record at error level and reports
// whether the record is usable.
func Validate(rec Record, log *logrus.Entry) bool {
	problems := Check(rec)
	for _, p := range problems {
		if p.Field == "" {
			log.Error(p.Message)
			continue
		}
		log.WithField("field", p.Field).Errorf("Config error: %s", p.Message)
	}
	return len(problems) == 0
}

// number reports the value as a finite float64.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func formatBound(f float64) string {
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
