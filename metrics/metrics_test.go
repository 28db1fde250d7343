package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pesantren-billing/metrics"
)

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	// GIVEN: a router instrumented with the metrics middleware
	m := metrics.New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/students/{id}/invoices", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// WHEN: two different students are requested
	for _, id := range []string{"santri-001", "santri-002"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/students/"+id+"/invoices", nil))
	}

	// THEN: both land on a single series keyed by the pattern
	out := scrape(t, m)
	assert.Contains(t, out, `pesantren_http_requests_total{method="GET",route="/api/students/{id}/invoices",status="200"} 2`)
	assert.NotContains(t, out, "santri-001")
}

func TestDomainCounters(t *testing.T) {
	m := metrics.New()
	m.InvoicesGenerated("spp", 36)
	m.InvoicesGenerated("spp", 0)
	m.PaymentRecorded("partial", "tunai", 300000)
	m.LedgerEntryWritten("pemasukan")
	m.Rejected("entry_locked")

	out := scrape(t, m)
	assert.Contains(t, out, `pesantren_invoices_generated_total{definition="spp"} 36`)
	assert.Contains(t, out, `pesantren_payments_total{method="tunai",mode="partial"} 1`)
	assert.Contains(t, out, `pesantren_payment_applied_amount_total{method="tunai"} 300000`)
	assert.Contains(t, out, `pesantren_ledger_entries_total{kind="pemasukan"} 1`)
	assert.Contains(t, out, `pesantren_rejected_operations_total{reason="entry_locked"} 1`)
}

func TestNew_RegistriesAreIndependent(t *testing.T) {
	a, b := metrics.New(), metrics.New()
	a.Rejected("duplicate_submission")

	assert.Contains(t, scrape(t, a), "duplicate_submission")
	assert.NotContains(t, scrape(t, b), "duplicate_submission")
}
