// Package natskv provides a datapoint store backed by a NATS JetStream
// key-value bucket.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/sweeney/watt-watcher/internal/datapoint"
)

// Store keeps datapoints as keys in a KV bucket. Values are stored as
// datapoint envelopes; keys written by other tools as plain scalars are
// read as acknowledged values.
type Store struct {
	kv  jetstream.KeyValue
	nc  *nats.Conn
	now func() time.Time
}

// New wraps an existing bucket.
func New(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv, now: time.Now}
}

// Connect connects to url and opens bucket, creating it if needed.
func Connect(ctx context.Context, url, bucket string) (*Store, error) {
	nc, err := nats.Connect(url, nats.Name("watt-watcher"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "watt-watcher datapoints",
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open bucket %s: %w", bucket, err)
	}

	s := New(kv)
	s.nc = nc
	return s, nil
}

// Read returns the current value of the key id.
func (s *Store) Read(ctx context.Context, id string) (datapoint.Value, error) {
	entry, err := s.kv.Get(ctx, id)
	switch {
	case errors.Is(err, jetstream.ErrKeyNotFound), errors.Is(err, jetstream.ErrKeyDeleted):
		return datapoint.Value{}, datapoint.ErrNotFound
	case err != nil:
		return datapoint.Value{}, fmt.Errorf("get %s: %w", id, err)
	}

	v := datapoint.Decode(entry.Value())
	if v.TS.IsZero() {
		v.TS = entry.Created()
	}
	return v, nil
}

// Write puts the value as an envelope under the key id.
func (s *Store) Write(ctx context.Context, id string, val any, ack bool) error {
	payload, err := datapoint.Encode(val, ack, s.now())
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}

	if _, err := s.kv.Put(ctx, id, payload); err != nil {
		return fmt.Errorf("put %s: %w", id, err)
	}
	return nil
}

// IsConnected reports whether the NATS connection is up.
func (s *Store) IsConnected() bool {
	return s.nc != nil && s.nc.IsConnected()
}

// Close closes the NATS connection if the store owns it.
func (s *Store) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}
