package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pesantren-billing/api"
	"github.com/warp/pesantren-billing/billing"
	"github.com/warp/pesantren-billing/billing/store"
	"github.com/warp/pesantren-billing/metrics"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testServer struct {
	router  http.Handler
	store   *store.Memory
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	m := metrics.New()
	h := api.NewHandler(mem, api.Options{
		StartMonth:  billing.Juli,
		Institution: "Pondok Pesantren Al-Hikmah",
		Clock:       billing.FixedClock(billing.NewDate(2025, billing.Juli, 1)),
		IDs:         billing.NewSequenceGenerator("t"),
		Metrics:     m,
	})
	return &testServer{
		router:  api.NewRouter(h, api.RouterConfig{MetricsPath: "/metrics"}),
		store:   mem,
		metrics: m,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if str, ok := body.(string); ok {
			buf.WriteString(str)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data     json.RawMessage   `json:"data"`
	Meta     map[string]any    `json:"meta"`
	Warnings []billing.Warning `json:"warnings"`
	Error    *api.ErrorBody    `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func (s *testServer) loadDemo(t *testing.T) api.ScenarioResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/scenarios/demo", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp api.ScenarioResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &resp))
	return resp
}

func (s *testServer) unpaidSPP(t *testing.T, student billing.StudentID) []billing.Invoice {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/api/students/"+string(student)+"/invoices?status=unpaid", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []billing.Invoice
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &all))
	var spp []billing.Invoice
	for _, inv := range all {
		if inv.DefinitionID == "spp" {
			spp = append(spp, inv)
		}
	}
	return spp
}

// =============================================================================
// DEMO AND GENERATION
// =============================================================================

func TestDemoScenario(t *testing.T) {
	s := newTestServer(t)

	resp := s.loadDemo(t)

	// 6 santri x (12 SPP + 12 uang makan + 1 uang gedung)
	assert.Equal(t, 6, resp.Students)
	assert.Equal(t, 3, resp.Definitions)
	assert.Equal(t, 150, resp.Invoices)
	assert.Equal(t, 1, resp.Payments)

	// Loading again creates nothing new.
	again := s.loadDemo(t)
	assert.Equal(t, 0, again.Invoices)
	assert.Equal(t, 0, again.Payments)
}

func TestGenerate_RepeatedRequestIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	s.loadDemo(t)

	rec := s.do(t, http.MethodPost, "/api/bill-definitions/spp/generate", map[string]any{"academic_year": "2025/2026"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary billing.GenerationSummary
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &summary))
	assert.Equal(t, 0, summary.TotalInvoices)
	assert.Equal(t, 72, summary.SkippedExisting)
}

func TestCreateDefinitionThenGenerateForOneClass(t *testing.T) {
	s := newTestServer(t)
	s.loadDemo(t)

	rec := s.do(t, http.MethodPost, "/api/bill-definitions", `{
		"id": "kitab",
		"name": "Uang Kitab",
		"category": "sekali",
		"target_months": ["September"],
		"amount_type": "sama",
		"amount": 120000,
		"due_date": "2025-09-15",
		"ledger_account_id": "kas-umum"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/bill-definitions/kitab/generate", map[string]any{
		"academic_year": "2025/2026",
		"class_name":    "7A",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var summary billing.GenerationSummary
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &summary))
	assert.Equal(t, 2, summary.TotalInvoices)
	assert.True(t, summary.TotalAmount.Equal(billing.NewMoney(240000)), summary.TotalAmount.String())
}

func TestCreateDefinition_UnknownAmountType(t *testing.T) {
	s := newTestServer(t)
	s.loadDemo(t)

	rec := s.do(t, http.MethodPost, "/api/bill-definitions", `{"id":"x","name":"X","category":"recurring",
		"target_months":["Juli"],"amount_type":"per_dorm","due_day":10,"ledger_account_id":"kas-umum"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_amount_strategy", env.Error.Code)
}

func TestCreateDefinition_ExistingIDIsConflict(t *testing.T) {
	// GIVEN: the demo pesantren with its SPP definition
	s := newTestServer(t)
	s.loadDemo(t)
	before, err := s.store.GetDefinition(context.Background(), "spp")
	require.NoError(t, err)

	// WHEN: posting another definition under the same id
	rec := s.do(t, http.MethodPost, "/api/bill-definitions", `{"id":"spp","name":"SPP Baru","category":"recurring",
		"target_months":["Juli"],"amount_type":"uniform","amount":1,"due_day":1,"ledger_account_id":"kas-umum"}`)

	// THEN: 409 and the stored definition is untouched
	assert.Equal(t, http.StatusConflict, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "duplicate_definition", env.Error.Code)

	after, err := s.store.GetDefinition(context.Background(), "spp")
	require.NoError(t, err)
	assert.Equal(t, before.Name, after.Name)
	assert.Equal(t, before.LedgerAccountID, after.LedgerAccountID)
	assert.Equal(t, before.TargetMonths, after.TargetMonths)
}

func TestGenerate_InvalidAcademicYear(t *testing.T) {
	s := newTestServer(t)
	s.loadDemo(t)

	rec := s.do(t, http.MethodPost, "/api/bill-definitions/spp/generate", map[string]any{"academic_year": "2025/2030"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "validation_error", env.Error.Code)
	assert.Equal(t, 1, strings.Count(env.Error.Message, "validation failed"), env.Error.Message)
	require.Len(t, env.Error.Details, 1)
	assert.Equal(t, "academic_year", env.Error.Details[0].Field)
	assert.Equal(t, `invalid academic year "2025/2030"`, env.Error.Details[0].Message)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestPayPartial_SplitAndReceipt(t *testing.T) {
	// GIVEN: santri-002 with unpaid SPP 350000 per month
	s := newTestServer(t)
	s.loadDemo(t)
	spp := s.unpaidSPP(t, "santri-002")
	require.Len(t, spp, 12)

	// WHEN: 200000 is paid toward Juli
	rec := s.do(t, http.MethodPost, "/api/payments/partial", map[string]any{
		"student_id":      "santri-002",
		"invoice_ids":     []string{string(spp[0].ID)},
		"tendered":        200000,
		"method":          "tunai",
		"received_by":     "Bendahara",
		"idempotency_key": "kasir-1",
	})

	// THEN: the invoice is split and a receipt can be printed
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result billing.PaymentResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &result))
	require.Len(t, result.Splits, 1)
	assert.True(t, result.Splits[0].Residual.Amount.Equal(billing.NewMoney(150000)))
	require.Len(t, result.Entries, 1)
	assert.Equal(t, billing.AccountID("kas-spp"), result.Entries[0].AccountID)

	rec = s.do(t, http.MethodGet, "/api/payments/"+string(result.Payment.ID)+"/receipt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "kwitansi-")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	// AND: the same submission again is a conflict
	rec = s.do(t, http.MethodPost, "/api/payments/partial", map[string]any{
		"student_id":      "santri-002",
		"invoice_ids":     []string{string(spp[1].ID)},
		"tendered":        200000,
		"method":          "tunai",
		"received_by":     "Bendahara",
		"idempotency_key": "kasir-1",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_submission", decodeEnvelope(t, rec).Error.Code)
}

func TestPay_ValidationErrors(t *testing.T) {
	s := newTestServer(t)
	s.loadDemo(t)

	// GIVEN: a request without invoices and with an unknown method
	rec := s.do(t, http.MethodPost, "/api/payments/full", map[string]any{
		"student_id":      "santri-002",
		"invoice_ids":     []string{},
		"method":          "cek",
		"received_by":     "Bendahara",
		"idempotency_key": "k",
	})

	// THEN: 400 with one detail per field, named as in JSON
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "validation_error", env.Error.Code)
	fields := map[string]bool{}
	for _, d := range env.Error.Details {
		fields[d.Field] = true
	}
	assert.True(t, fields["invoice_ids"])
	assert.True(t, fields["method"])

	rec = s.do(t, http.MethodPost, "/api/payments/full", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_body", decodeEnvelope(t, rec).Error.Code)

	rec = s.do(t, http.MethodPost, "/api/payments/partial", `{"student_id":"santri-002","invoice_ids":["x"],
		"tendered":"12.5","method":"tunai","received_by":"B","idempotency_key":"k"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPay_NegativeTender(t *testing.T) {
	s := newTestServer(t)
	s.loadDemo(t)
	spp := s.unpaidSPP(t, "santri-003")

	rec := s.do(t, http.MethodPost, "/api/payments/partial", map[string]any{
		"student_id":      "santri-003",
		"invoice_ids":     []string{string(spp[0].ID)},
		"tendered":        -1,
		"method":          "transfer",
		"received_by":     "Bendahara",
		"idempotency_key": "neg",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_tender_amount", decodeEnvelope(t, rec).Error.Code)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestDeleteEntry_LockedPaymentEntry(t *testing.T) {
	// GIVEN: the demo payment posted two locked SPP entries
	s := newTestServer(t)
	s.loadDemo(t)
	rec := s.do(t, http.MethodGet, "/api/ledger/accounts/kas-spp/entries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st billing.Statement
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &st))
	require.Len(t, st.Entries, 2)
	assert.True(t, st.Balance.Equal(billing.NewMoney(700000)))

	// WHEN: deleting one of them
	rec = s.do(t, http.MethodDelete, "/api/ledger/entries/"+string(st.Entries[0].ID), nil)

	// THEN: 409 entry_locked
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "entry_locked", decodeEnvelope(t, rec).Error.Code)
}

func TestTransferAndManualEntry(t *testing.T) {
	s := newTestServer(t)
	s.loadDemo(t)

	rec := s.do(t, http.MethodPost, "/api/ledger/transfers", map[string]any{
		"source":      map[string]string{"account_id": "kas-spp", "method": "tunai"},
		"destination": map[string]string{"account_id": "rekening-bank", "method": "transfer"},
		"amount":      100000,
		"note":        "setor ke bank",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/ledger/transfers", map[string]any{
		"source":      map[string]string{"account_id": "kas-spp", "method": "tunai"},
		"destination": map[string]string{"account_id": "kas-spp", "method": "tunai"},
		"amount":      100000,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "same_account_transfer", decodeEnvelope(t, rec).Error.Code)

	rec = s.do(t, http.MethodPost, "/api/ledger/entries", map[string]any{
		"account_id": "kas-umum",
		"kind":       "pengeluaran",
		"amount":     50000,
		"method":     "tunai",
		"category":   "Belanja Dapur",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var entry billing.LedgerEntry
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &entry))

	rec = s.do(t, http.MethodDelete, "/api/ledger/entries/"+string(entry.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/ledger/accounts/rekening-bank/entries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bank billing.Statement
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &bank))
	assert.True(t, bank.Balance.Equal(billing.NewMoney(100000)))
}

// =============================================================================
// STUDENTS, NOT FOUND, HEALTH, METRICS
// =============================================================================

func TestTransferOutAndArrears(t *testing.T) {
	s := newTestServer(t)
	s.loadDemo(t)

	rec := s.do(t, http.MethodGet, "/api/students/santri-001/arrears?as_of=2025-09-15", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var arrears billing.Arrears
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &arrears))
	// SPP Juli, Agustus are paid: September SPP + uang makan Juli..September + uang gedung
	assert.True(t, arrears.Total.Equal(billing.NewMoney(350000+3*400000+1500000)), arrears.Total.String())

	rec = s.do(t, http.MethodPost, "/api/students/santri-001/transfer-out", map[string]any{"effective_date": "2025-12-31"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out api.TransferOutResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &out))
	assert.Equal(t, billing.StudentTransferredOut, out.Student.Status)
	// Januari..Juni of SPP and uang makan
	assert.Equal(t, 12, out.DeletedInvoices)
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{
		"/api/students/ghost/invoices",
		"/api/bill-definitions/ghost",
		"/api/payments/ghost/receipt",
		"/api/ledger/accounts/ghost/entries",
	} {
		rec := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "not_found", decodeEnvelope(t, rec).Error.Code, path)
	}
}

func TestListsAreNeverNull(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/students", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(decodeEnvelope(t, rec).Data))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	s.loadDemo(t)
	rec = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pesantren_http_requests_total{method="POST",route="/api/scenarios/demo",status="200"} 1`)
}
