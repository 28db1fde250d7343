// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pesantren"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	requestCount       *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	invoicesGenerated  *prometheus.CounterVec
	paymentsRecorded   *prometheus.CounterVec
	paymentAmount      *prometheus.CounterVec
	ledgerEntries      *prometheus.CounterVec
	rejectedOperations *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Number of HTTP requests by status, method and route.",
		}, []string{"status", "method", "route"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by status, method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status", "method", "route"}),
		invoicesGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_generated_total",
			Help:      "Invoices created by bill generation, by bill definition.",
		}, []string{"definition"}),
		paymentsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Payments recorded, by mode (full, partial) and method.",
		}, []string{"mode", "method"}),
		paymentAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_applied_amount_total",
			Help:      "Sum of amounts applied to invoices, in rupiah.",
		}, []string{"method"}),
		ledgerEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_entries_total",
			Help:      "Ledger entries written, by kind.",
		}, []string{"kind"}),
		rejectedOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_operations_total",
			Help:      "Operations refused by the billing core, by reason.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(
		m.requestCount,
		m.requestDuration,
		m.invoicesGenerated,
		m.paymentsRecorded,
		m.paymentAmount,
		m.ledgerEntries,
		m.rejectedOperations,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request count and latency. The route label is the chi
// route pattern so ids in the path do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		labels := []string{strconv.Itoa(status), r.Method, route}
		m.requestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		m.requestCount.WithLabelValues(labels...).Inc()
	})
}

// ===== Domain counters =====

func (m *Metrics) InvoicesGenerated(definition string, n int) {
	if n > 0 {
		m.invoicesGenerated.WithLabelValues(definition).Add(float64(n))
	}
}

func (m *Metrics) PaymentRecorded(mode, method string, applied float64) {
	m.paymentsRecorded.WithLabelValues(mode, method).Inc()
	if applied > 0 {
		m.paymentAmount.WithLabelValues(method).Add(applied)
	}
}

func (m *Metrics) LedgerEntryWritten(kind string) {
	m.ledgerEntries.WithLabelValues(kind).Inc()
}

// Rejected counts a refused operation, e.g. "entry_locked" or
// "duplicate_submission".
func (m *Metrics) Rejected(reason string) {
	m.rejectedOperations.WithLabelValues(reason).Inc()
}
