package watcher

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/watt-watcher/internal/logic"
)

var phaseGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "watt_watcher_phase",
	Help: "Current lifecycle phase (0 idle, 1 running, 2 finished)",
}, []string{"watcher"})

var powerGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "watt_watcher_power_watts",
	Help: "Last power reading",
}, []string{"watcher"})

var counterGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "watt_watcher_hysteresis_counter",
	Help: "Consecutive samples counted towards a transition",
}, []string{"watcher", "counter"})

var ticksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "watt_watcher_ticks_total",
	Help: "Number of completed decision cycles",
}, []string{"watcher"})

var tickFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "watt_watcher_tick_failures_total",
	Help: "Number of decision cycles abandoned due to an unexpected error",
}, []string{"watcher"})

var transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "watt_watcher_transitions_total",
	Help: "Number of phase transitions by destination phase",
}, []string{"watcher", "phase"})

var autoOffTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "watt_watcher_auto_off_total",
	Help: "Number of successful auto-off commands",
}, []string{"watcher"})

var ioErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "watt_watcher_io_errors_total",
	Help: "Number of failed datapoint reads and writes",
}, []string{"watcher", "op"})

func init() {
	prometheus.MustRegister(phaseGauge)
	prometheus.MustRegister(powerGauge)
	prometheus.MustRegister(counterGauge)
	prometheus.MustRegister(ticksTotal)
	prometheus.MustRegister(tickFailuresTotal)
	prometheus.MustRegister(transitionsTotal)
	prometheus.MustRegister(autoOffTotal)
	prometheus.MustRegister(ioErrorsTotal)
}

func phaseValue(p logic.Phase) float64 {
	switch p {
	case logic.PhaseRunning:
		return 1
	case logic.PhaseFinished:
		return 2
	default:
		return 0
	}
}
