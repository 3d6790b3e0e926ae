// Package observability holds the Prometheus metrics of the explorer service.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "traffic_explorer"

// Metrics holds the counters, histograms and gauges of the explorer.
type Metrics struct {
	OverlayLoads   *prometheus.CounterVec // labels: overlay, outcome={success,error}
	Queries        *prometheus.CounterVec // labels: outcome={success,error,stale}
	QueryDuration  prometheus.Histogram
	QueryResults   prometheus.Histogram
	Exports        *prometheus.CounterVec // labels: outcome={saved,empty,failed}
	SessionsActive prometheus.Gauge

	// Backend client.
	BackendRequests *prometheus.CounterVec   // labels: endpoint={overlay,studies}, code
	BackendDuration *prometheus.HistogramVec // labels: endpoint
}

// NewMetrics creates the metrics and registers them with reg. A nil reg leaves
// them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OverlayLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overlay_loads_total",
			Help:      "Overlay layer loads by overlay and outcome.",
		}, []string{"overlay", "outcome"}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Study filter queries by outcome. Stale responses are discarded.",
		}, []string{"outcome"}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Time from issuing a study query to applying or discarding its response.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		QueryResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_results",
			Help:      "Number of studies returned per successful query.",
			Buckets:   []float64{0, 1, 10, 50, 100, 500, 1000, 5000},
		}),
		Exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "CSV exports by outcome.",
		}, []string{"outcome"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Explorer sessions currently held in memory.",
		}),
		BackendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Backend reads by endpoint and status code (0 for transport failures).",
		}, []string{"endpoint", "code"}),
		BackendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Backend read latency by endpoint.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.OverlayLoads,
			m.Queries,
			m.QueryDuration,
			m.QueryResults,
			m.Exports,
			m.SessionsActive,
			m.BackendRequests,
			m.BackendDuration,
		)
	}
	return m
}

// NewRegistry returns a registry carrying the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
