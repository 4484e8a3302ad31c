// Package telemetry exposes investigation metrics to prometheus and installs
// the OpenTelemetry tracer provider.
package telemetry

import (
	"errors"
	"time"

	"github.com/mohammad-safakhou/osinthunter/internal/agent/core"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors fed by the orchestrator.
type Metrics struct {
	Runs              *prometheus.CounterVec
	RunIterations     prometheus.Histogram
	CollectorRuns     *prometheus.CounterVec
	CollectorDuration *prometheus.HistogramVec
	EvidenceAdded     prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. Registering
// twice on the same registerer reuses the existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "osinthunter_runs_total",
			Help: "Completed investigations by stop reason.",
		}, []string{"stop_reason"}),
		RunIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "osinthunter_run_iterations",
			Help:    "Loop iterations per completed investigation.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10, 15, 20},
		}),
		CollectorRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "osinthunter_collector_runs_total",
			Help: "Collector invocations by outcome.",
		}, []string{"collector", "outcome"}),
		CollectorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "osinthunter_collector_duration_seconds",
			Help:    "Wall time of a single collector invocation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"collector"}),
		EvidenceAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "osinthunter_evidence_added_total",
			Help: "Evidence items stored after deduplication.",
		}),
	}

	if err := register(reg, &m.Runs); err != nil {
		return nil, err
	}
	if err := register(reg, &m.RunIterations); err != nil {
		return nil, err
	}
	if err := register(reg, &m.CollectorRuns); err != nil {
		return nil, err
	}
	if err := register(reg, &m.CollectorDuration); err != nil {
		return nil, err
	}
	if err := register(reg, &m.EvidenceAdded); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c *C) error {
	if err := reg.Register(*c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				*c = existing
				return nil
			}
		}
		return err
	}
	return nil
}

// Hooks adapts the collectors to the orchestrator's callback set.
func (m *Metrics) Hooks() core.Metrics {
	if m == nil {
		return core.Metrics{}
	}
	return core.Metrics{
		CollectorDone: func(collector string, outcome core.Outcome, d time.Duration) {
			m.CollectorRuns.WithLabelValues(collector, string(outcome)).Inc()
			m.CollectorDuration.WithLabelValues(collector).Observe(d.Seconds())
		},
		EvidenceAdded: func(n int) {
			m.EvidenceAdded.Add(float64(n))
		},
		RunDone: func(reason core.StopReason, iterations int) {
			m.Runs.WithLabelValues(string(reason)).Inc()
			m.RunIterations.Observe(float64(iterations))
		},
	}
}
