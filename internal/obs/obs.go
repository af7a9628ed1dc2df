// Package obs wires the scheduler's ambient observability stack: a
// zap-backed logr.Logger and the Prometheus counters/gauges the scheduler
// loop updates every iteration, grounded on the teacher's zap/zapr logger
// construction (cli/internal/commands/check/experiment.go) and its
// prometheus/client_golang dependency, previously unwired.
package obs

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/benchtune/benchtune/internal/status"
)

// NewLogger builds the scheduler's structured logger: JSON in production,
// a readable console encoder when dev is true.
func NewLogger(dev bool) logr.Logger {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.LowercaseColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	z, err := cfg.Build()
	if err != nil {
		z = zap.NewNop()
	}
	return zapr.NewLogger(z)
}

// Metrics are the counters/gauges the scheduler updates once per loop
// iteration (spec.md §4.6 "Scheduler"); registered against a private
// registry rather than the global default so multiple schedulers in one
// process (as in tests) don't collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	TrialsCreated   prometheus.Counter
	TrialsSucceeded prometheus.Counter
	TrialsFailed    prometheus.Counter
	TrialsTimedOut  prometheus.Counter
	LoopIterations  prometheus.Counter
	PendingTrials   prometheus.Gauge
}

// NewMetrics constructs and registers a fresh Metrics set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		TrialsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "benchtune", Subsystem: "scheduler", Name: "trials_created_total",
			Help: "Total number of trials created.",
		}),
		TrialsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "benchtune", Subsystem: "scheduler", Name: "trials_succeeded_total",
			Help: "Total number of trials that reached status Succeeded.",
		}),
		TrialsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "benchtune", Subsystem: "scheduler", Name: "trials_failed_total",
			Help: "Total number of trials that reached status Failed.",
		}),
		TrialsTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "benchtune", Subsystem: "scheduler", Name: "trials_timed_out_total",
			Help: "Total number of trials that reached status TimedOut.",
		}),
		LoopIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "benchtune", Subsystem: "scheduler", Name: "loop_iterations_total",
			Help: "Total number of scheduler loop iterations.",
		}),
		PendingTrials: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "benchtune", Subsystem: "scheduler", Name: "pending_trials",
			Help: "Number of trials currently pending dispatch.",
		}),
	}
	reg.MustRegister(m.TrialsCreated, m.TrialsSucceeded, m.TrialsFailed, m.TrialsTimedOut, m.LoopIterations, m.PendingTrials)
	return m
}

// Registry exposes the underlying Prometheus registry, e.g. for an
// /metrics HTTP handler in cmd/benchtune.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveTerminal increments the counter matching a trial's terminal
// status, a no-op for any non-terminal status.
func (m *Metrics) ObserveTerminal(s status.Status) {
	switch s {
	case status.Succeeded:
		m.TrialsSucceeded.Inc()
	case status.Failed:
		m.TrialsFailed.Inc()
	case status.TimedOut:
		m.TrialsTimedOut.Inc()
	}
}
