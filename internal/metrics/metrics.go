// Package metrics provides Prometheus metrics for the resolver and the
// retention job.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/alanyoungcy/predictionbot/internal/domain"
)

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Ticks                prometheus.Counter
	TicksSkipped         *prometheus.CounterVec
	PredictionsEvaluated prometheus.Counter
	PredictionsResolved  *prometheus.CounterVec
	Failures             *prometheus.CounterVec
	UnknownMarkets       prometheus.Counter
	TickDuration         prometheus.Histogram
	ActivePredictions    prometheus.Gauge
	RetentionDeleted     prometheus.Counter
	RetentionArchived    prometheus.Counter
	NotificationsSent    *prometheus.CounterVec
}

// New creates the collectors and registers them, along with the Go runtime
// and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resolver_ticks_total",
			Help: "Resolution ticks that ran to completion",
		}),
		TicksSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_ticks_skipped_total",
				Help: "Ticks skipped because a previous tick or another replica was still running",
			},
			[]string{"reason"},
		),
		PredictionsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resolver_predictions_evaluated_total",
			Help: "Predictions evaluated against a snapshot",
		}),
		PredictionsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_predictions_transitioned_total",
				Help: "Predictions moved to completed, by result",
			},
			[]string{"result"},
		),
		Failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_failures_total",
				Help: "Per-prediction failures, by reason",
			},
			[]string{"reason"},
		),
		UnknownMarkets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resolver_unknown_markets_total",
			Help: "Predictions whose label did not classify",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "resolver_tick_duration_seconds",
			Help:    "Wall time of one resolution tick",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		}),
		ActivePredictions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "resolver_active_predictions",
			Help: "Active predictions seen by the last tick",
		}),
		RetentionDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "retention_deleted_total",
			Help: "Completed predictions removed by the retention job",
		}),
		RetentionArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "retention_archived_total",
			Help: "Completed predictions archived to object storage",
		}),
		NotificationsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_sent_total",
				Help: "Notifications delivered, by channel and status",
			},
			[]string{"channel", "status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Ticks,
		m.TicksSkipped,
		m.PredictionsEvaluated,
		m.PredictionsResolved,
		m.Failures,
		m.UnknownMarkets,
		m.TickDuration,
		m.ActivePredictions,
		m.RetentionDeleted,
		m.RetentionArchived,
		m.NotificationsSent,
	)
	return m
}

// Registry returns the registry to expose over HTTP.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTick records a finished tick.
func (m *Metrics) ObserveTick(s domain.TickSummary) {
	m.Ticks.Inc()
	m.TickDuration.Observe(s.Duration.Seconds())
	m.ActivePredictions.Set(float64(s.Active))
	m.PredictionsEvaluated.Add(float64(s.Evaluated))
	m.UnknownMarkets.Add(float64(s.Unknown))
	for _, f := range s.Failures {
		m.Failures.WithLabelValues(f.Reason).Inc()
	}
}

// ObserveResolved records one completed prediction.
func (m *Metrics) ObserveResolved(result domain.PredictionResult) {
	m.PredictionsResolved.WithLabelValues(string(result)).Inc()
}

// ObserveSkipped records a tick that did not run.
func (m *Metrics) ObserveSkipped(reason string) {
	m.TicksSkipped.WithLabelValues(reason).Inc()
}

// ObserveRetention records one retention run.
func (m *Metrics) ObserveRetention(archived int, deleted int64) {
	m.RetentionArchived.Add(float64(archived))
	m.RetentionDeleted.Add(float64(deleted))
}

// ObserveNotification records a delivery attempt on channel.
func (m *Metrics) ObserveNotification(channel string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.NotificationsSent.WithLabelValues(channel, status).Inc()
}
