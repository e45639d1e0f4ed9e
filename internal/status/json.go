package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string      `json:"event,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	Name          string      `json:"name"`
	Phase         string      `json:"phase"`
	PowerWatt     float64     `json:"power_watt"`
	PlugOn        bool        `json:"plug_on"`
	Counters      CounterJSON `json:"counters"`
	Ticks         int64       `json:"ticks"`
	LastTick      string      `json:"last_tick,omitempty"`
	LastStart     string      `json:"last_start,omitempty"`
	LastEnd       string      `json:"last_end,omitempty"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	Store         StoreStatus `json:"store"`
	Counts        CountsJSON  `json:"event_counts"`
	Config        ConfigJSON  `json:"config"`
}

// CounterJSON is the JSON representation of the hysteresis counters.
type CounterJSON struct {
	AboveStart int `json:"above_start"`
	BelowStop  int `json:"below_stop"`
}

// StoreStatus reports the signal store connection state.
type StoreStatus struct {
	Kind      string `json:"kind"`
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Started  int `json:"started"`
	Finished int `json:"finished"`
	Reset    int `json:"reset"`
	AutoOff  int `json:"auto_off"`
}

// ConfigJSON is the JSON representation of the watcher and daemon config.
type ConfigJSON struct {
	PowerStateID           string  `json:"power_state_id"`
	SwitchStateID          string  `json:"switch_state_id,omitempty"`
	IntervalSeconds        float64 `json:"interval_seconds"`
	StartThresholdWatt     float64 `json:"start_threshold_watt"`
	StopThresholdWatt      float64 `json:"stop_threshold_watt"`
	StartCounterLimit      float64 `json:"start_counter_limit"`
	StopCounterLimit       float64 `json:"stop_counter_limit"`
	AutoOffCounterLimit    float64 `json:"auto_off_counter_limit"`
	SwitchOffAfterFinished bool    `json:"switch_off_after_finished"`
	Namespace              string  `json:"namespace"`
	HTTPAddr               string  `json:"http_addr"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	phase := string(snap.Phase)
	if phase == "" {
		phase = "unknown"
	}
	wc := snap.Config.Watcher

	return StatusInner{
		Name:          wc.Name,
		Phase:         phase,
		PowerWatt:     snap.Power,
		PlugOn:        snap.PlugOn,
		Counters:      CounterJSON{AboveStart: snap.Counters.AboveStart, BelowStop: snap.Counters.BelowStop},
		Ticks:         snap.Ticks,
		LastTick:      formatTime(snap.LastTick),
		LastStart:     formatTime(snap.LastStart),
		LastEnd:       formatTime(snap.LastEnd),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     formatTime(snap.StartTime),
		Timestamp:     formatTime(snap.Now),
		Store:         StoreStatus{Kind: snap.Config.Store, Connected: snap.StoreConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Started:  snap.Counts.Started,
			Finished: snap.Counts.Finished,
			Reset:    snap.Counts.Reset,
			AutoOff:  snap.Counts.AutoOff,
		},
		Config: ConfigJSON{
			PowerStateID:           wc.PowerStateID,
			SwitchStateID:          wc.SwitchStateID,
			IntervalSeconds:        wc.Interval().Seconds(),
			StartThresholdWatt:     wc.StartThresholdWatt,
			StopThresholdWatt:      wc.StopThresholdWatt,
			StartCounterLimit:      wc.StartCounterLimit,
			StopCounterLimit:       wc.StopCounterLimit,
			AutoOffCounterLimit:    wc.AutoOffCounterLimit,
			SwitchOffAfterFinished: wc.SwitchOffAfterFinished,
			Namespace:              snap.Config.Namespace,
			HTTPAddr:               snap.Config.HTTPAddr,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
