// Package metrics holds the prometheus collectors for render passes and
// source fetches. Every method is safe on a nil *Metrics so callers can run
// without instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"calgrid/internal/layout"
	"calgrid/internal/source"
)

const namespace = "calgrid"

// Metrics owns a private registry, so tests and multiple servers in one
// process never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	renderPasses   prometheus.Counter
	renderDuration prometheus.Histogram
	renderEvents   prometheus.Histogram
	problems       *prometheus.CounterVec

	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
}

// New builds the collectors and registers them together with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		renderPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_passes_total",
			Help:      "Number of completed render passes.",
		}),
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Time spent in one render pass, excluding the fetch.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5},
		}),
		renderEvents: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_events",
			Help:      "Events handed to a render pass.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 7),
		}),
		problems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_problems_total",
			Help:      "Per-event data-quality problems by reason.",
		}, []string{"reason", "excluded"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Event source fetches by source and outcome.",
		}, []string{"source", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Duration of event source fetches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.renderPasses,
		m.renderDuration,
		m.renderEvents,
		m.problems,
		m.fetches,
		m.fetchDuration,
	)
	return m
}

// ObserveRender records one finished pass.
func (m *Metrics) ObserveRender(res layout.RenderResult, d time.Duration) {
	if m == nil {
		return
	}
	m.renderPasses.Inc()
	m.renderDuration.Observe(d.Seconds())
	m.renderEvents.Observe(float64(len(res.Events)))
	for _, pr := range res.Problems {
		m.problems.WithLabelValues(pr.Reason, strconv.FormatBool(pr.Excluded)).Inc()
	}
}

// ObserveFetch records one fetch against a source kind ("google", "ics").
func (m *Metrics) ObserveFetch(sourceKind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(sourceKind).Observe(d.Seconds())
	m.fetches.WithLabelValues(sourceKind, outcome(err)).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if source.IsConfigError(err) {
		return "config_error"
	}
	if fe, ok := source.AsFetchError(err); ok && fe.Retryable() {
		return "retryable"
	}
	return "error"
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
