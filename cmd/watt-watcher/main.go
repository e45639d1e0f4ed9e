// Command watt-watcher follows the power draw of an appliance and reports
// when a cycle starts and finishes, optionally switching the plug off.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/choria-io/fisk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/watt-watcher/internal/config"
	"github.com/sweeney/watt-watcher/internal/datapoint"
	"github.com/sweeney/watt-watcher/internal/gpio"
	"github.com/sweeney/watt-watcher/internal/logic"
	"github.com/sweeney/watt-watcher/internal/mqtt"
	"github.com/sweeney/watt-watcher/internal/natskv"
	"github.com/sweeney/watt-watcher/internal/status"
	"github.com/sweeney/watt-watcher/internal/watcher"
	"github.com/sweeney/watt-watcher/internal/web"
)

// Version is set at build time.
var Version = "development"

type options struct {
	configFile    string
	store         string
	broker        string
	natsURL       string
	bucket        string
	namespace     string
	httpAddr      string
	heartbeat     time.Duration
	gpioChip      string
	gpioActiveLow bool
	debug         bool
	logJSON       bool
	printState    bool
	graph         bool
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}

	app := fisk.New("watt-watcher", "Appliance power lifecycle watcher")
	app.Version(Version)
	app.Flag("config", "Watcher configuration file (YAML or JSON)").Short('c').Required().StringVar(&opts.configFile)
	app.Flag("store", "Signal store to use").Default("mqtt").EnumVar(&opts.store, "memory", "mqtt", "nats")
	app.Flag("broker", "MQTT broker address").Envar("WATT_WATCHER_BROKER").Default("tcp://127.0.0.1:1883").StringVar(&opts.broker)
	app.Flag("nats", "NATS server URL").Envar("WATT_WATCHER_NATS").Default("nats://127.0.0.1:4222").StringVar(&opts.natsURL)
	app.Flag("bucket", "JetStream key-value bucket").Default("WATT_WATCHER").StringVar(&opts.bucket)
	app.Flag("namespace", "Prefix of the output datapoints").Default("watt-watcher.0").StringVar(&opts.namespace)
	app.Flag("http", "HTTP status address (empty to disable)").Default(":8080").StringVar(&opts.httpAddr)
	app.Flag("heartbeat", "Heartbeat interval (0 to disable)").Default("15m").DurationVar(&opts.heartbeat)
	app.Flag("gpio-chip", "GPIO chip for gpio: datapoints").Default(gpio.DefaultChip).StringVar(&opts.gpioChip)
	app.Flag("gpio-active-low", "Relay lines are active low").BoolVar(&opts.gpioActiveLow)
	app.Flag("debug", "Enable debug logging").BoolVar(&opts.debug)
	app.Flag("log-json", "Log in JSON format").BoolVar(&opts.logJSON)
	app.Flag("print-state", "Print the current power and switch readings and exit").BoolVar(&opts.printState)
	app.Flag("graph", "Print the lifecycle phase graph in Graphviz format and exit").BoolVar(&opts.graph)

	if _, err := app.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func newLogger(opts *options, out io.Writer) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(out)

	if opts.logJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if opts.debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	return logrus.NewEntry(logger).WithField("component", "watt-watcher")
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "watt-watcher: %v, try --help\n", err)
		os.Exit(1)
	}

	log := newLogger(opts, os.Stderr)
	if err := run(opts, log); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func loadConfig(path string, log *logrus.Entry) (config.WatcherConfig, error) {
	rec, err := config.Load(path)
	if err != nil {
		return config.WatcherConfig{}, err
	}

	if !config.Validate(rec, log) {
		return config.WatcherConfig{}, errors.New("invalid configuration, see errors above")
	}

	return config.Decode(rec)
}

func run(opts *options, log *logrus.Entry) error {
	if opts.graph {
		fmt.Println(logic.NewLifecycle(logic.Params{}).Graph())
		return nil
	}

	cfg, err := loadConfig(opts.configFile, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	bk, err := openStore(ctx, opts, cfg, log)
	cancel()
	if err != nil {
		return err
	}
	defer bk.Close()

	relays := gpio.NewStore(gpio.RealOpener(opts.gpioChip, opts.gpioActiveLow))
	defer relays.Close()

	mux := datapoint.NewMux(bk.store)
	mux.Handle("gpio", relays)

	// Print state mode
	if opts.printState {
		// Retained values arrive shortly after subscribing
		time.Sleep(bk.settle)
		return printState(context.Background(), os.Stdout, mux, cfg)
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		Store:     opts.store,
		Broker:    brokerFor(opts),
		Namespace: opts.namespace,
		HTTPAddr:  opts.httpAddr,
		Watcher:   cfg,
	})
	tracker.SetStoreConnected(bk.conn.IsConnected())

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := bk.publisher.PublishSystem(startupEvent); err != nil {
		log.Warnf("failed to publish startup event: %v", err)
	} else {
		log.Infof("published startup event")
	}

	// Start HTTP status server
	if opts.httpAddr != "" {
		srv := web.New(opts.httpAddr, tracker, prometheus.DefaultGatherer)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infof("http status server listening on %s", opts.httpAddr)
	}

	w := watcher.New(cfg, mux, watcher.TickerScheduler{}, log,
		watcher.WithNamespace(opts.namespace),
		watcher.WithObserver(tracker),
	)
	w.Start()
	defer w.Dispose()

	var heartbeat <-chan time.Time
	if opts.heartbeat > 0 {
		ticker := time.NewTicker(opts.heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(w, bk.publisher, bk.conn, tracker, time.Now, heartbeat, sigCh, log)
}

// lifecycle is the part of the watcher the run loop drives.
type lifecycle interface {
	Running() bool
	Stop()
}

// runLoop waits for a shutdown signal, publishing a heartbeat status on
// every tick of heartbeat.
func runLoop(w lifecycle, publisher mqtt.Publisher, conn mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, heartbeat <-chan time.Time, sig <-chan os.Signal, log *logrus.Entry) error {
	for {
		select {
		case s := <-sig:
			log.Infof("received %v, shutting down", s)
			w.Stop()

			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if conn != nil {
					tracker.SetStoreConnected(conn.IsConnected())
				}
				event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Warnf("failed to publish shutdown event: %v", err)
			} else {
				log.Infof("published shutdown event")
			}
			return nil

		case <-heartbeat:
			if !w.Running() {
				log.Warn("watcher schedule is not armed")
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "HEARTBEAT",
			}
			if tracker != nil {
				if conn != nil {
					tracker.SetStoreConnected(conn.IsConnected())
				}
				snap := tracker.Snapshot()
				log.Debugf("heartbeat: phase=%s ticks=%d started=%d finished=%d", snap.Phase, snap.Ticks, snap.Counts.Started, snap.Counts.Finished)
				event.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Warnf("heartbeat publish error: %v", err)
			}
		}
	}
}

// backend is an opened signal store with its system event sink.
type backend struct {
	store     datapoint.Store
	publisher mqtt.Publisher
	conn      mqtt.ConnectionStatus
	close     func() error
	settle    time.Duration
}

func (b *backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

func openStore(ctx context.Context, opts *options, cfg config.WatcherConfig, log *logrus.Entry) (*backend, error) {
	switch opts.store {
	case "memory":
		mem := datapoint.NewMemory()
		return &backend{
			store:     mem,
			publisher: newStorePublisher(mem, opts.namespace),
			conn:      connected{},
		}, nil

	case "nats":
		kv, err := natskv.Connect(ctx, opts.natsURL, opts.bucket)
		if err != nil {
			return nil, fmt.Errorf("open nats store: %w", err)
		}
		log.Infof("using JetStream bucket %s on %s", opts.bucket, opts.natsURL)
		return &backend{
			store:     kv,
			publisher: newStorePublisher(kv, opts.namespace),
			conn:      kv,
			close:     kv.Close,
		}, nil

	case "mqtt":
		s, err := mqtt.NewStore(mqtt.Options{
			Broker:    opts.broker,
			Namespace: opts.namespace,
			Subscribe: brokerInputs(cfg),
			Log:       log,
		})
		if err != nil {
			return nil, fmt.Errorf("open mqtt store: %w", err)
		}
		log.Infof("using MQTT broker %s", opts.broker)
		return &backend{
			store:     s,
			publisher: s,
			conn:      s,
			close:     s.Close,
			settle:    time.Second,
		}, nil
	}

	return nil, fmt.Errorf("unknown store %q", opts.store)
}

// brokerInputs returns the input datapoints served by the broker, leaving
// out ids routed to another store such as "gpio:17".
func brokerInputs(cfg config.WatcherConfig) []string {
	var ids []string
	for _, id := range []string{cfg.PowerStateID, cfg.SwitchStateID} {
		if id != "" && !strings.Contains(id, ":") {
			ids = append(ids, id)
		}
	}
	return ids
}

func brokerFor(opts *options) string {
	switch opts.store {
	case "mqtt":
		return opts.broker
	case "nats":
		return opts.natsURL
	}
	return ""
}

type connected struct{}

func (connected) IsConnected() bool { return true }

// storePublisher records system events as the "<namespace>.system"
// datapoint, for stores without a native system topic.
type storePublisher struct {
	store datapoint.Writer
	id    string
}

func newStorePublisher(w datapoint.Writer, namespace string) *storePublisher {
	return &storePublisher{store: w, id: namespace + ".system"}
}

func (p *storePublisher) PublishSystem(event mqtt.SystemEvent) error {
	payload, err := mqtt.FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.store.Write(context.Background(), p.id, string(payload), true)
}

func (p *storePublisher) Close() error { return nil }

// printState reads the configured inputs once and writes them to out.
func printState(ctx context.Context, out io.Writer, r datapoint.Reader, cfg config.WatcherConfig) error {
	power := "n/a"
	v, err := r.Read(ctx, cfg.PowerStateID)
	switch {
	case err == nil:
		power = fmt.Sprintf("%g W", datapoint.Number(v.Val))
	case !errors.Is(err, datapoint.ErrNotFound):
		return fmt.Errorf("read %s: %w", cfg.PowerStateID, err)
	}

	plug := "none"
	if cfg.HasSwitch() {
		plug = "n/a"
		v, err := r.Read(ctx, cfg.SwitchStateID)
		switch {
		case err == nil:
			plug = stateString(datapoint.PlugOn(v.Val))
		case !errors.Is(err, datapoint.ErrNotFound):
			return fmt.Errorf("read %s: %w", cfg.SwitchStateID, err)
		}
	}

	fmt.Fprintf(out, "%s: power %s, switch %s\n", cfg.Name, power, plug)
	return nil
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
