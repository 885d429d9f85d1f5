// Package metrics exposes sync counters in the Prometheus text format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry
	runs     *prometheus.CounterVec
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	records  *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fipsync_sync_runs_total",
			Help: "Sync runs by repository and result.",
		}, []string{"repo", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fipsync_sync_requests_total",
			Help: "Pull requests processed by repository and outcome.",
		}, []string{"repo", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fipsync_sync_duration_seconds",
			Help:    "Wall time of a sync run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"repo"}),
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fipsync_existing_documents",
			Help: "Proposal documents on the baseline branch at the last run.",
		}, []string{"repo"}),
	}
	m.registry.MustRegister(
		m.runs, m.requests, m.duration, m.records,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRun records a finished run. result is "ok" or "error".
func (m *Metrics) ObserveRun(repo, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(repo, result).Inc()
	m.duration.WithLabelValues(repo).Observe(elapsed.Seconds())
}

func (m *Metrics) CountRequest(repo, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(repo, outcome).Inc()
}

func (m *Metrics) SetExistingDocuments(repo string, n int) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(repo).Set(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
