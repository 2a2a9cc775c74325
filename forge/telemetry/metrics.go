// Package telemetry exposes prometheus collectors for conversations and packaging.
// A nil *Metrics is valid and records nothing.
package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ZanzyTHEbar/agentforge/forge/artifact"
)

const namespace = "agentforge"

// Turn outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

type Metrics struct {
	turns        *prometheus.CounterVec
	fallbacks    *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec
	accepted     prometheus.Counter
	rejected     *prometheus.CounterVec
	archives     *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Agent turns committed, by team and outcome.",
		}, []string{"team", "outcome"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selection_fallbacks_total",
			Help:      "Speaker selections that fell back to declaration order.",
		}, []string{"team"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a single agent turn.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"team"}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_accepted_total",
			Help:      "Candidates that passed validation.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_rejected_total",
			Help:      "Candidates dropped by validation, by reason.",
		}, []string{"reason"}),
		archives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archives_built_total",
			Help:      "Archive builds, by result.",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{m.turns, m.fallbacks, m.turnDuration, m.accepted, m.rejected, m.archives} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

// ObserveTurn counts a finished turn and records its duration.
func (m *Metrics) ObserveTurn(team, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(team, outcome).Inc()
	m.turnDuration.WithLabelValues(team).Observe(d.Seconds())
}

// SelectionFallback counts a speaker picked without the selector.
func (m *Metrics) SelectionFallback(team string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(team).Inc()
}

// ObserveValidation adds a validation report to the artifact counters.
func (m *Metrics) ObserveValidation(report artifact.Report) {
	if m == nil {
		return
	}
	m.accepted.Add(float64(report.Accepted))
	for reason, n := range report.Rejected {
		m.rejected.WithLabelValues(string(reason)).Add(float64(n))
	}
}

// ArchiveBuilt counts an archive build by result.
func (m *Metrics) ArchiveBuilt(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.archives.WithLabelValues(result).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
