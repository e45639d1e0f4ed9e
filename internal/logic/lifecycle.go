package logic

import (
	"context"

	"github.com/looplab/fsm"
)

const (
	transitionStart  = "start"
	transitionFinish = "finish"
	transitionReset  = "reset"
)

// Lifecycle tracks the hysteresis counters and infers the appliance phase.
// It is not safe for concurrent use; the watcher serializes calls.
type Lifecycle struct {
	params   Params
	fsm      *fsm.FSM
	counters Counters
	counts   EventCounts
}

// NewLifecycle creates a lifecycle in the idle phase with zeroed counters.
func NewLifecycle(params Params) *Lifecycle {
	return &Lifecycle{
		params: params,
		fsm: fsm.NewFSM(
			string(PhaseIdle),
			fsm.Events{
				{Name: transitionStart, Src: []string{string(PhaseIdle), string(PhaseFinished)}, Dst: string(PhaseRunning)},
				{Name: transitionFinish, Src: []string{string(PhaseRunning)}, Dst: string(PhaseFinished)},
				{Name: transitionReset, Src: []string{string(PhaseFinished)}, Dst: string(PhaseIdle)},
			},
			fsm.Callbacks{},
		),
	}
}

// Process takes a new sample and returns the transitions it caused and
// whether the switch should be commanded off.
func (l *Lifecycle) Process(in Input) Result {
	var res Result

	// Between the thresholds, or plug off at moderate load, the counters
	// are left alone.
	switch {
	case in.Power > l.params.StartThresholdWatt:
		l.counters.AboveStart++
		l.counters.BelowStop = 0
	case in.Power < l.params.StopThresholdWatt && in.PlugOn:
		l.counters.BelowStop++
		l.counters.AboveStart = 0
	}

	if l.Phase() != PhaseRunning && float64(l.counters.AboveStart) >= l.params.StartCounterLimit {
		if e, ok := l.transition(transitionStart, in); ok {
			l.counts.Started++
			res.Events = append(res.Events, e)
		}
	}

	if l.Phase() == PhaseRunning && float64(l.counters.BelowStop) >= l.params.StopCounterLimit {
		if e, ok := l.transition(transitionFinish, in); ok {
			l.counts.Finished++
			res.Events = append(res.Events, e)
		}
	}

	if in.PlugOn &&
		l.Phase() == PhaseFinished &&
		l.params.SwitchOffAfterFinished &&
		float64(l.counters.BelowStop) >= l.params.AutoOffCounterLimit &&
		l.params.HasSwitch {
		res.AutoOff = true
	}

	// Plug off: a finished appliance goes back to idle immediately. A running
	// appliance is never reset here.
	if !in.PlugOn && l.Phase() != PhaseRunning {
		if l.Phase() == PhaseFinished {
			if e, ok := l.transition(transitionReset, in); ok {
				l.counts.Reset++
				res.Events = append(res.Events, e)
			}
		}
		l.counters = Counters{}
	}

	return res
}

// AutoOffIssued records a successful switch-off command and clears the
// below-stop counter so the command is not repeated on the next sample.
func (l *Lifecycle) AutoOffIssued() {
	l.counters.BelowStop = 0
	l.counts.AutoOff++
}

func (l *Lifecycle) transition(name string, in Input) (Event, bool) {
	if !l.fsm.Can(name) {
		return Event{}, false
	}

	from := l.Phase()
	if err := l.fsm.Event(context.Background(), name); err != nil {
		return Event{}, false
	}

	return Event{
		Timestamp: in.Time,
		Type:      eventTypeFor(name),
		From:      from,
		To:        l.Phase(),
	}, true
}

func eventTypeFor(transition string) EventType {
	switch transition {
	case transitionStart:
		return EventStarted
	case transitionFinish:
		return EventFinished
	default:
		return EventReset
	}
}

// Phase returns the current phase.
func (l *Lifecycle) Phase() Phase {
	return Phase(l.fsm.Current())
}

// Counters returns the current counter values.
func (l *Lifecycle) Counters() Counters {
	return l.counters
}

// EventCountsSnapshot returns a copy of the transition counts.
func (l *Lifecycle) EventCountsSnapshot() EventCounts {
	return l.counts
}

// Params returns the parameters the lifecycle was created with.
func (l *Lifecycle) Params() Params {
	return l.params
}

// Graph returns a graphviz description of the phase machine.
func (l *Lifecycle) Graph() string {
	return fsm.Visualize(l.fsm)
}
