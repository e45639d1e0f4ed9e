package datapoint

import (
	"bytes"
	"encoding/json"
	"time"
)

// Envelope is the wire representation of a value written by the watcher.
type Envelope struct {
	Val any   `json:"val"`
	Ack bool  `json:"ack"`
	TS  int64 `json:"ts"`
}

// Encode creates the JSON envelope for a value.
func Encode(val any, ack bool, ts time.Time) ([]byte, error) {
	return json.Marshal(Envelope{Val: val, Ack: ack, TS: ts.UnixMilli()})
}

// Decode parses a payload into a value. Payloads may be a JSON envelope, a
// bare JSON scalar (as published by most plug firmwares) or plain text.
// Bare payloads are treated as acknowledged.
func Decode(payload []byte) Value {
	trimmed := bytes.TrimSpace(payload)

	var parsed any
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return Value{Val: string(payload), Ack: true}
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		return Value{Val: parsed, Ack: true}
	}

	val, ok := obj["val"]
	if !ok {
		return Value{Val: parsed, Ack: true}
	}

	v := Value{Val: val}
	v.Ack, _ = obj["ack"].(bool)
	if ts, ok := obj["ts"].(float64); ok && ts > 0 {
		v.TS = time.UnixMilli(int64(ts))
	}
	return v
}
