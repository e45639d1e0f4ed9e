// Package logic contains the pure lifecycle logic for one watched appliance.
// This package does no I/O (no datapoint store, MQTT, GPIO or time.Sleep).
// Time is always injectable via time.Time fields.
package logic

import "time"

// Phase is the inferred operational state of the appliance.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseRunning  Phase = "running"
	PhaseFinished Phase = "finished"
)

// EventType represents a lifecycle transition.
type EventType string

const (
	EventStarted  EventType = "STARTED"
	EventFinished EventType = "FINISHED"
	EventReset    EventType = "RESET"
)

// Event represents a phase transition to be written out.
type Event struct {
	Timestamp time.Time
	Type      EventType
	From      Phase
	To        Phase
}

// Params are the thresholds and limits the lifecycle is evaluated against.
type Params struct {
	StartThresholdWatt float64
	StopThresholdWatt  float64

	// Limits are compared against the consecutive sample counters.
	StartCounterLimit   float64
	StopCounterLimit    float64
	AutoOffCounterLimit float64

	SwitchOffAfterFinished bool
	// HasSwitch is true when a switch datapoint is configured.
	HasSwitch bool
}

// Input represents a single sample.
type Input struct {
	Power  float64
	PlugOn bool
	Time   time.Time
}

// Result is the outcome of processing one sample.
type Result struct {
	Events []Event
	// AutoOff is set when the switch should be commanded off. The caller
	// reports a successful command with AutoOffIssued.
	AutoOff bool
}

// Counters holds the consecutive sample counters. At most one is non-zero.
type Counters struct {
	AboveStart int
	BelowStop  int
}

// EventCounts tracks the number of each transition since startup.
type EventCounts struct {
	Started  int
	Finished int
	Reset    int
	AutoOff  int
}
