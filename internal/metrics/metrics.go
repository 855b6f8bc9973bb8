// Package metrics defines the Prometheus collectors for the nesting
// lifecycle and the remote console client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the process registers. A nil *Metrics is
// valid everywhere and records nothing.
type Metrics struct {
	ConsoleCommands *prometheus.CounterVec
	LifecycleOps    *prometheus.CounterVec
	NestsExpired    prometheus.Counter
	SweepDuration   prometheus.Histogram
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConsoleCommands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nestcore",
			Name:      "console_commands_total",
			Help:      "Remote console commands issued, by command verb and outcome.",
		}, []string{"command", "outcome"}),
		LifecycleOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nestcore",
			Name:      "lifecycle_operations_total",
			Help:      "Nest lifecycle operations, by operation and outcome.",
		}, []string{"op", "outcome"}),
		NestsExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nestcore",
			Name:      "nests_expired_total",
			Help:      "Nests flipped to expired by the sweeper.",
		}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nestcore",
			Name:      "expiry_sweep_duration_seconds",
			Help:      "Wall time of one expiry sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ObserveConsole records one console command outcome. Safe on nil receiver.
func (m *Metrics) ObserveConsole(command string, err error) {
	if m == nil {
		return
	}
	m.ConsoleCommands.WithLabelValues(command, outcome(err)).Inc()
}

// ObserveOp records one lifecycle operation outcome. Safe on nil receiver.
func (m *Metrics) ObserveOp(op string, err error) {
	if m == nil {
		return
	}
	m.LifecycleOps.WithLabelValues(op, outcome(err)).Inc()
}

// AddExpired records expired-nest counts from a sweep. Safe on nil receiver.
func (m *Metrics) AddExpired(n int) {
	if m == nil || n == 0 {
		return
	}
	m.NestsExpired.Add(float64(n))
}

// ObserveSweep records one sweep duration in seconds. Safe on nil receiver.
func (m *Metrics) ObserveSweep(seconds float64) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(seconds)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
