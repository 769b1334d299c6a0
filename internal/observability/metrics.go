// Package observability collects Prometheus metrics for the service.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the Prometheus registry and application metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ingestDocs      *prometheus.CounterVec
	finalizeTotal   *prometheus.CounterVec
	payableRows     prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conciliador_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "conciliador_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	ingestDocs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conciliador_ingest_documents_total",
		Help: "Ingested NF-e documents by outcome.",
	}, []string{"outcome"})
	finalize := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conciliador_allocation_finalize_total",
		Help: "Allocation finalizations by result.",
	}, []string{"result"})
	payableRows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "conciliador_payable_rows_total",
		Help: "Payable ledger rows written by allocation commits.",
	})
	registry.MustRegister(requests, duration, ingestDocs, finalize, payableRows)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		ingestDocs:      ingestDocs,
		finalizeTotal:   finalize,
		payableRows:     payableRows,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveIngest records ingestion batch counters.
func (m *Metrics) ObserveIngest(accepted, duplicates, errored int) {
	if m == nil {
		return
	}
	m.ingestDocs.WithLabelValues("accepted").Add(float64(accepted))
	m.ingestDocs.WithLabelValues("duplicate").Add(float64(duplicates))
	m.ingestDocs.WithLabelValues("errored").Add(float64(errored))
}

// ObserveFinalize records one allocation finalize attempt and the payable
// rows it produced.
func (m *Metrics) ObserveFinalize(result string, rows int) {
	if m == nil {
		return
	}
	m.finalizeTotal.WithLabelValues(result).Inc()
	if rows > 0 {
		m.payableRows.Add(float64(rows))
	}
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
