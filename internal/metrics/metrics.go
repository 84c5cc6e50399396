// Package metrics provides Prometheus metrics collection for the RNC API.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version is reported by the info gauge and the status endpoint.
const Version = "1.0.0"

var (
	// atomic.Pointer keeps the nil check lock-free on the hot path.
	requestsTotal      atomic.Pointer[prometheus.CounterVec]
	requestDuration    atomic.Pointer[prometheus.HistogramVec]
	admissionsTotal    atomic.Pointer[prometheus.CounterVec]
	lookupsTotal       atomic.Pointer[prometheus.CounterVec]
	importsTotal       atomic.Pointer[prometheus.CounterVec]
	importDuration     atomic.Pointer[prometheus.Histogram]
	importRowsTotal    atomic.Pointer[prometheus.GaugeVec]
	recordsLoadedGauge atomic.Pointer[prometheus.Gauge]
)

// Init initializes all Prometheus metrics and registers them with the provided registry.
// This should be called once at application startup.
func Init(reg prometheus.Registerer) error {
	requestsTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rnc",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled",
		},
		[]string{"method", "path", "status"},
	)
	requestDurationVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rnc",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	admissionsTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rnc",
			Subsystem: "api",
			Name:      "admissions_total",
			Help:      "Admission decisions by identification path and result",
		},
		[]string{"path", "result"},
	)
	lookupsTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rnc",
			Subsystem: "api",
			Name:      "lookups_total",
			Help:      "RNC lookups by outcome and cache usage",
		},
		[]string{"status", "cache"},
	)
	importsTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rnc",
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Registry imports by terminal status",
		},
		[]string{"status"},
	)
	importDurationHist := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rnc",
			Subsystem: "import",
			Name:      "duration_seconds",
			Help:      "Registry import duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
	importRowsVec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rnc",
			Subsystem: "import",
			Name:      "rows",
			Help:      "Row counters of the current or last import",
		},
		[]string{"kind"},
	)
	recordsLoaded := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rnc",
			Subsystem: "registry",
			Name:      "records",
			Help:      "Registry records in the store after the last import",
		},
	)
	infoGaugeVec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rnc",
			Subsystem: "api",
			Name:      "info",
			Help:      "API version and build information",
		},
		[]string{"version"},
	)

	collectors := []struct {
		name string
		c    prometheus.Collector
	}{
		{"requestsTotal", requestsTotalVec},
		{"requestDuration", requestDurationVec},
		{"admissionsTotal", admissionsTotalVec},
		{"lookupsTotal", lookupsTotalVec},
		{"importsTotal", importsTotalVec},
		{"importDuration", importDurationHist},
		{"importRows", importRowsVec},
		{"recordsLoaded", recordsLoaded},
		{"infoGauge", infoGaugeVec},
	}
	for _, c := range collectors {
		if err := reg.Register(c.c); err != nil {
			return fmt.Errorf("failed to register %s: %w", c.name, err)
		}
	}
	infoGaugeVec.WithLabelValues(Version).Set(1)

	requestsTotal.Store(requestsTotalVec)
	requestDuration.Store(requestDurationVec)
	admissionsTotal.Store(admissionsTotalVec)
	lookupsTotal.Store(lookupsTotalVec)
	importsTotal.Store(importsTotalVec)
	importDuration.Store(&importDurationHist)
	importRowsTotal.Store(importRowsVec)
	recordsLoadedGauge.Store(&recordsLoaded)

	return nil
}

// RecordRequest increments the requests counter for the given method, path, and status code.
// The path should be the route pattern (e.g., "/api/validate/{rnc}").
func RecordRequest(method, path, statusCode string) {
	if counter := requestsTotal.Load(); counter != nil {
		counter.WithLabelValues(method, path, statusCode).Inc()
	}
}

// RecordRequestDuration records the latency for a request in seconds.
func RecordRequestDuration(method, path, statusCode string, durationSeconds float64) {
	if histogram := requestDuration.Load(); histogram != nil {
		histogram.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
	}
}

// RecordAdmission counts one admission decision.
// path is "token" or "anonymous"; result is "admitted" or a rejection reason.
func RecordAdmission(path, result string) {
	if counter := admissionsTotal.Load(); counter != nil {
		counter.WithLabelValues(path, result).Inc()
	}
}

// RecordLookup counts one RNC lookup; cache is "hit" or "miss".
func RecordLookup(status, cache string) {
	if counter := lookupsTotal.Load(); counter != nil {
		counter.WithLabelValues(status, cache).Inc()
	}
}

// RecordImport counts a finished import and observes its duration.
func RecordImport(status string, durationSeconds float64) {
	if counter := importsTotal.Load(); counter != nil {
		counter.WithLabelValues(status).Inc()
	}
	if h := importDuration.Load(); h != nil {
		(*h).Observe(durationSeconds)
	}
}

// SetImportProgress publishes the running row counters of an import.
func SetImportProgress(processed, total int) {
	if g := importRowsTotal.Load(); g != nil {
		g.WithLabelValues("processed").Set(float64(processed))
		g.WithLabelValues("total").Set(float64(total))
	}
}

// SetRecordsLoaded publishes the registry size.
func SetRecordsLoaded(n int64) {
	if g := recordsLoadedGauge.Load(); g != nil {
		(*g).Set(float64(n))
	}
}

// Handler returns an HTTP handler serving the metrics gathered by g.
// This handler should be registered at /metrics endpoint.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// GetMetricsText returns the Prometheus text-format output from a registry.
// This is useful for testing and debugging.
func GetMetricsText(reg prometheus.Gatherer) (string, error) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	body, err := io.ReadAll(w.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read metrics output: %w", err)
	}
	return string(body), nil
}
