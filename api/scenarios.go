/*
scenarios.go - Demo pesantren data

PURPOSE:

	Seeds a small pesantren so the dashboard has something to show: three
	classes, three buku kas, six santri, the usual bills for the current
	academic year, and one recorded payment.

WHAT GETS CREATED:

	Classes:     7A, 8A, 9A
	Buku kas:    kas-spp, kas-umum, rekening-bank
	Bills:       SPP (uniform 350.000, due day 10)
	             Uang Makan (per class)
	             Uang Gedung (one-off, due 1 Agustus)
	Payment:     first santri pays Juli and Agustus SPP in cash

RE-RUNNING:

	Every write is an upsert or idempotent generation, and the payment is
	guarded by its idempotency key, so loading twice changes nothing.

USAGE VIA API:

	POST /api/scenarios/demo

SEE ALSO:
  - factory/presets.go: bill definition JSON
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/pesantren-billing/billing"
	"github.com/warp/pesantren-billing/factory"
)

const demoPaymentKey = "demo-payment-1"

var demoClasses = []billing.Class{
	{Name: "7A", Level: 7},
	{Name: "8A", Level: 8},
	{Name: "9A", Level: 9},
}

var demoAccounts = []billing.LedgerAccount{
	{ID: "kas-spp", Name: "Kas SPP", Description: "Penerimaan SPP bulanan"},
	{ID: "kas-umum", Name: "Kas Umum", Description: "Operasional pondok"},
	{ID: "rekening-bank", Name: "Rekening Bank", Description: "Rekening yayasan"},
}

var demoStudents = []billing.Student{
	{ID: "santri-001", NIS: "2025001", Name: "Ahmad Fauzi", ClassName: "7A", Dormitory: "Asrama Al-Fatih"},
	{ID: "santri-002", NIS: "2025002", Name: "Muhammad Rizki", ClassName: "7A", Dormitory: "Asrama Al-Fatih"},
	{ID: "santri-003", NIS: "2024001", Name: "Abdullah Hakim", ClassName: "8A", Dormitory: "Asrama Al-Amin"},
	{ID: "santri-004", NIS: "2024002", Name: "Yusuf Maulana", ClassName: "8A", Dormitory: "Asrama Al-Amin"},
	{ID: "santri-005", NIS: "2023001", Name: "Hasan Basri", ClassName: "9A", Dormitory: "Asrama Al-Ikhlas"},
	{ID: "santri-006", NIS: "2023002", Name: "Umar Faruq", ClassName: "9A", Dormitory: "Asrama Al-Ikhlas"},
}

// LoadDemo seeds the demo pesantren.
// POST /api/scenarios/demo
func (h *Handler) LoadDemo(w http.ResponseWriter, r *http.Request) {
	resp, err := h.loadDemo(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Data: resp})
}

func (h *Handler) loadDemo(ctx context.Context) (ScenarioResponse, error) {
	var resp ScenarioResponse
	now := h.clock.Now()
	today := h.clock.Today()
	ay := billing.AcademicYearFor(today, h.startMonth)

	for _, c := range demoClasses {
		if err := h.Store.SaveClass(ctx, c); err != nil {
			return resp, fmt.Errorf("save class %s: %w", c.Name, err)
		}
	}
	for _, a := range demoAccounts {
		a.CreatedAt = now
		if err := h.Store.SaveAccount(ctx, a); err != nil {
			return resp, fmt.Errorf("save account %s: %w", a.ID, err)
		}
	}
	for _, st := range demoStudents {
		if _, err := h.Students.Create(ctx, st); err != nil {
			return resp, fmt.Errorf("create student %s: %w", st.ID, err)
		}
		resp.Students++
	}

	gedungDue := billing.NewDate(ay.YearFor(billing.Agustus), billing.Agustus, 1)
	definitions := []string{
		factory.SPPJSON("spp", "SPP Bulanan", 350000, 10, "kas-spp"),
		factory.PerClassSPPJSON("uang-makan", "Uang Makan", map[string]int64{
			"7A": 400000,
			"8A": 425000,
			"9A": 450000,
		}, 5, "kas-umum"),
		factory.OneOffJSON("uang-gedung", "Uang Gedung", 1500000, gedungDue, "kas-umum"),
	}

	students, err := h.Store.ListStudents(ctx, billing.StudentFilter{Status: billing.StudentActive})
	if err != nil {
		return resp, fmt.Errorf("list students: %w", err)
	}
	for _, data := range definitions {
		def, err := h.Factory.Parse([]byte(data))
		if err != nil {
			return resp, fmt.Errorf("parse demo definition: %w", err)
		}
		def.CreatedAt = now
		if err := h.Store.SaveDefinition(ctx, def); err != nil {
			return resp, fmt.Errorf("save definition %s: %w", def.ID, err)
		}
		resp.Definitions++

		summary, err := h.Generator.Generate(ctx, billing.GenerateInput{
			Definition:   def,
			AcademicYear: ay,
			Students:     students,
			CreatedBy:    "demo",
		})
		if err != nil {
			return resp, fmt.Errorf("generate %s: %w", def.ID, err)
		}
		resp.Invoices += summary.TotalInvoices
	}

	paid, err := h.demoPayment(ctx, ay)
	if err != nil {
		return resp, err
	}
	if paid {
		resp.Payments = 1
	}
	h.log.Info("demo scenario loaded",
		zap.String("academic_year", ay.Label()),
		zap.Int("invoices", resp.Invoices),
	)
	return resp, nil
}

// demoPayment pays the first two SPP months of santri-001 once.
func (h *Handler) demoPayment(ctx context.Context, ay billing.AcademicYear) (bool, error) {
	exists, err := h.Store.PaymentExists(ctx, demoPaymentKey)
	if err != nil || exists {
		return false, err
	}
	invoices, err := h.Store.ListInvoices(ctx, billing.InvoiceFilter{
		StudentID:    "santri-001",
		DefinitionID: "spp",
		Status:       billing.InvoiceUnpaid,
	})
	if err != nil {
		return false, fmt.Errorf("list demo invoices: %w", err)
	}
	if len(invoices) < 2 {
		return false, nil
	}
	_, err = h.Payments.PayFull(ctx, billing.PaymentRequest{
		StudentID:      "santri-001",
		InvoiceIDs:     []billing.InvoiceID{invoices[0].ID, invoices[1].ID},
		Method:         billing.MethodCash,
		ReceivedBy:     "Bendahara",
		IdempotencyKey: demoPaymentKey,
		Date:           billing.NewDate(ay.StartYear, ay.StartMonth, 10),
	})
	if err != nil {
		return false, fmt.Errorf("record demo payment: %w", err)
	}
	return true, nil
}
