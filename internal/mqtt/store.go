package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/watt-watcher/internal/datapoint"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	defaultBuffer  = 100
)

var errTimeout = errors.New("timeout")

// Options configures a Store.
type Options struct {
	Broker string
	// ClientID defaults to "watt-watcher-<random>".
	ClientID string
	// Namespace is the datapoint prefix of this instance, used for the
	// system topic and last will.
	Namespace string
	// Subscribe lists datapoint ids to subscribe to when connecting, so
	// their retained values are cached before the first read.
	Subscribe []string
	// Buffer is the number of writes queued while disconnected.
	Buffer int
	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration
	Log            *logrus.Entry
}

// Store is a datapoint store backed by an MQTT broker. Reads are served
// from retained messages received on subscribed topics. Acknowledged writes
// are published retained to the datapoint topic, commands are published to
// the topic with SetSuffix.
type Store struct {
	client      paho.Client
	log         *logrus.Entry
	systemTopic string
	now         func() time.Time

	mu     sync.Mutex
	values map[string]datapoint.Value // keyed by topic
	topics map[string]bool
	buf    *ringBuffer
}

// NewStore creates a store and starts connecting to the broker. If the
// broker is not reachable within the connect timeout the store is still
// returned; writes are buffered until the connection comes up.
func NewStore(opts Options) (*Store, error) {
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.ClientID == "" {
		opts.ClientID = "watt-watcher-" + uuid.NewString()[:8]
	}
	if opts.Buffer == 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = connectTimeout
	}

	s := &Store{
		log:         opts.Log.WithField("component", "mqtt"),
		systemTopic: SystemTopic(opts.Namespace),
		now:         time.Now,
		values:      make(map[string]datapoint.Value),
		topics:      make(map[string]bool),
	}
	s.buf = newRingBuffer(opts.Buffer, s.log)

	for _, id := range opts.Subscribe {
		if id != "" {
			s.topics[Topic(id)] = true
		}
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: s.now(), Event: "OFFLINE", Reason: "connection lost"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(s.systemTopic, string(will), 1, true).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			s.log.Warnf("connection lost: %v", err)
		})

	s.client = paho.NewClient(clientOpts)
	token := s.client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		s.log.Warnf("broker %s not reachable yet, buffering writes", opts.Broker)
		return s, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return s, nil
}

// onConnect subscribes all known topics and replays buffered writes. It runs
// on every (re)connect.
func (s *Store) onConnect(c paho.Client) {
	s.mu.Lock()
	topics := make([]string, 0, len(s.topics))
	for t := range s.topics {
		topics = append(topics, t)
	}
	pending := s.buf.drainAll()
	s.mu.Unlock()

	s.log.Infof("connected, subscribing %d datapoints", len(topics))

	for _, t := range topics {
		s.subscribe(c, t)
	}

	if len(pending) > 0 {
		s.log.Infof("replaying %d buffered writes", len(pending))
	}
	for _, m := range pending {
		token := c.Publish(m.topic, m.qos, m.retained, m.payload)
		if !token.WaitTimeout(publishTimeout) {
			s.log.Warnf("replay to %s timed out", m.topic)
			continue
		}
		if err := token.Error(); err != nil {
			s.log.Warnf("replay to %s failed: %v", m.topic, err)
		}
	}
}

func (s *Store) subscribe(c paho.Client, topic string) {
	token := c.Subscribe(topic, 1, s.onMessage)
	if !token.WaitTimeout(publishTimeout) {
		s.log.Warnf("subscribe to %s timed out", topic)
		return
	}
	if err := token.Error(); err != nil {
		s.log.Warnf("subscribe to %s failed: %v", topic, err)
	}
}

func (s *Store) onMessage(_ paho.Client, msg paho.Message) {
	s.handle(msg.Topic(), msg.Payload())
}

// handle caches a received payload. An empty payload clears the value.
func (s *Store) handle(topic string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(payload) == 0 {
		delete(s.values, topic)
		return
	}

	v := datapoint.Decode(payload)
	if v.TS.IsZero() {
		v.TS = s.now()
	}
	s.values[topic] = v
}

// Read returns the last value received for id. The first read of an id that
// was not subscribed up front subscribes it and returns ErrNotFound.
func (s *Store) Read(_ context.Context, id string) (datapoint.Value, error) {
	topic := Topic(id)

	s.mu.Lock()
	v, ok := s.values[topic]
	known := s.topics[topic]
	if !known {
		s.topics[topic] = true
	}
	s.mu.Unlock()

	if !known && s.client.IsConnectionOpen() {
		s.subscribe(s.client, topic)
	}

	if !ok {
		return datapoint.Value{}, datapoint.ErrNotFound
	}
	return v, nil
}

// Write publishes a value. While disconnected the write is queued and nil
// is returned.
func (s *Store) Write(ctx context.Context, id string, val any, ack bool) error {
	payload, err := datapoint.Encode(val, ack, s.now())
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}

	topic := Topic(id)
	if !ack {
		topic += SetSuffix
	}

	return s.publish(ctx, bufferedMsg{topic: topic, payload: payload, qos: 1, retained: ack})
}

// PublishSystem sends a system lifecycle event to the broker.
func (s *Store) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	err = s.publish(context.Background(), bufferedMsg{topic: s.systemTopic, payload: payload, qos: 1, retained: event.Retained})
	if err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

func (s *Store) publish(ctx context.Context, m bufferedMsg) error {
	if !s.client.IsConnectionOpen() {
		s.mu.Lock()
		s.buf.push(m)
		s.mu.Unlock()
		return nil
	}

	token := s.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if err := wait(ctx, token, publishTimeout); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errTimeout
	}
}

// Buffered returns the number of writes waiting for a connection.
func (s *Store) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.len()
}

// IsConnected reports whether the broker connection is up.
func (s *Store) IsConnected() bool {
	return s.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (s *Store) Close() error {
	s.client.Disconnect(1000) // 1 second timeout
	return nil
}
