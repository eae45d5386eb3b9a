// Package metrics defines Prometheus metrics for the filesentry daemon.
//
// Metric naming follows Prometheus conventions:
//   - filesentry_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/freewebtopdf/filesentry/internal/domain"
)

// Metrics owns a registry and the collectors fed by the engine, compiler,
// store and dispatcher. It satisfies their observer hooks.
type Metrics struct {
	registry *prometheus.Registry

	// EventsTotal counts evaluated file events by event type.
	EventsTotal *prometheus.CounterVec
	// EvaluationSeconds is a histogram of per-event evaluation time.
	EvaluationSeconds prometheus.Histogram
	// MatchesTotal counts fired rules by rule type.
	MatchesTotal *prometheus.CounterVec
	// CompilesTotal counts compile attempts by outcome.
	CompilesTotal *prometheus.CounterVec
	// CompileSeconds is a histogram of compile time by outcome.
	CompileSeconds *prometheus.HistogramVec
	// SavesTotal counts rule store saves by status.
	SavesTotal *prometheus.CounterVec
	// SaveSeconds is a histogram of rule store save time.
	SaveSeconds prometheus.Histogram
	// DispatchPanicsTotal counts events whose processing panicked.
	DispatchPanicsTotal prometheus.Counter
	// NotifyFailuresTotal counts failed deliveries by notifier.
	NotifyFailuresTotal *prometheus.CounterVec
}

// New creates the collectors and registers them, plus the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filesentry_events_total",
				Help: "Total file events evaluated by event type.",
			},
			[]string{"event_type"},
		),
		EvaluationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "filesentry_evaluation_seconds",
				Help:    "Time spent evaluating one file event against all rules.",
				Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
		),
		MatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filesentry_matches_total",
				Help: "Total rule matches by rule type.",
			},
			[]string{"rule_type"},
		),
		CompilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filesentry_compiles_total",
				Help: "Total condition compilations by outcome.",
			},
			[]string{"outcome"},
		),
		CompileSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filesentry_compile_seconds",
				Help:    "Duration of condition compilation in seconds.",
				Buckets: []float64{0.001, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		SavesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filesentry_rule_saves_total",
				Help: "Total rule store saves by status.",
			},
			[]string{"status"},
		),
		SaveSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "filesentry_rule_save_seconds",
				Help:    "Duration of rule store saves in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		DispatchPanicsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "filesentry_dispatch_panics_total",
				Help: "Total file events whose processing panicked.",
			},
		),
		NotifyFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filesentry_notify_failures_total",
				Help: "Total failed match deliveries by notifier.",
			},
			[]string{"notifier"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.EventsTotal,
		m.EvaluationSeconds,
		m.MatchesTotal,
		m.CompilesTotal,
		m.CompileSeconds,
		m.SavesTotal,
		m.SaveSeconds,
		m.DispatchPanicsTotal,
		m.NotifyFailuresTotal,
	)
	return m
}

// Registry returns the registry holding every collector
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEvaluation records one evaluated event
func (m *Metrics) ObserveEvaluation(event domain.FileEvent, matches int, elapsed time.Duration) {
	m.EventsTotal.WithLabelValues(string(event.Type)).Inc()
	m.EvaluationSeconds.Observe(elapsed.Seconds())
}

// ObserveMatch records one fired rule
func (m *Metrics) ObserveMatch(match domain.RuleMatch) {
	m.MatchesTotal.WithLabelValues(string(match.RuleType)).Inc()
}

// ObserveCompile records one compile call
func (m *Metrics) ObserveCompile(outcome string, elapsed time.Duration) {
	m.CompilesTotal.WithLabelValues(outcome).Inc()
	m.CompileSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveSave records one rule store save; it matches the store save hook
func (m *Metrics) ObserveSave(err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SavesTotal.WithLabelValues(status).Inc()
	m.SaveSeconds.Observe(elapsed.Seconds())
}

// ObservePanic records a recovered per-event panic
func (m *Metrics) ObservePanic() {
	m.DispatchPanicsTotal.Inc()
}

// ObserveNotifyFailure records a failed delivery
func (m *Metrics) ObserveNotifyFailure(notifier string) {
	m.NotifyFailuresTotal.WithLabelValues(notifier).Inc()
}
