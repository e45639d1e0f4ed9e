// Package config loads and validates the watcher configuration record.
//
// The record is kept as a raw map until it has been validated so that type
// problems (a threshold given as a string, a missing name) can be reported
// individually instead of failing on the first decode error.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultInterval is used when intervalSeconds is unset or zero.
const DefaultInterval = 10 * time.Second

// WatcherConfig is the decoded, immutable configuration of one watcher.
type WatcherConfig struct {
	Name                   string  `mapstructure:"name" json:"name"`
	PowerStateID           string  `mapstructure:"powerStateId" json:"powerStateId"`
	SwitchStateID          string  `mapstructure:"switchStateId" json:"switchStateId,omitempty"`
	IntervalSeconds        float64 `mapstructure:"intervalSeconds" json:"intervalSeconds"`
	StartThresholdWatt     float64 `mapstructure:"startThresholdWatt" json:"startThresholdWatt"`
	StopThresholdWatt      float64 `mapstructure:"stopThresholdWatt" json:"stopThresholdWatt"`
	StartCounterLimit      float64 `mapstructure:"startCounterLimit" json:"startCounterLimit"`
	StopCounterLimit       float64 `mapstructure:"stopCounterLimit" json:"stopCounterLimit"`
	AutoOffCounterLimit    float64 `mapstructure:"autoOffCounterLimit" json:"autoOffCounterLimit"`
	SwitchOffAfterFinished bool    `mapstructure:"switchOffAfterFinished" json:"switchOffAfterFinished"`
	ResetDelayMinutes      float64 `mapstructure:"resetDelayMinutes" json:"resetDelayMinutes"`
}

// Interval returns the sampling interval, floored at one second.
func (c WatcherConfig) Interval() time.Duration {
	if c.IntervalSeconds == 0 {
		return DefaultInterval
	}

	d := time.Duration(c.IntervalSeconds * float64(time.Second))
	if d < time.Second {
		return time.Second
	}
	return d
}

// HasSwitch reports whether a switch datapoint is configured.
func (c WatcherConfig) HasSwitch() bool {
	return c.SwitchStateID != ""
}

// Record is a raw configuration record as decoded from YAML or JSON.
type Record map[string]any

// LoadError describes a failure to read or parse a configuration file.
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.File, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Parse parses a YAML (or JSON) document into a raw record. An empty
// document yields a nil record, which fails validation as missing.
func Parse(data []byte) (Record, error) {
	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	return rec, nil
}

// Load reads and parses a configuration file.
func Load(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}

	rec, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
			return nil, le
		}
		return nil, err
	}
	return rec, nil
}

// Decode converts a validated record into a WatcherConfig.
func Decode(rec Record) (WatcherConfig, error) {
	var cfg WatcherConfig

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &cfg,
		TagName: "mapstructure",
	})
	if err != nil {
		return cfg, fmt.Errorf("create decoder: %w", err)
	}

	if err := dec.Decode(map[string]any(rec)); err != nil {
		return cfg, fmt.Errorf("decode watcher config: %w", err)
	}

	return cfg, nil
}
