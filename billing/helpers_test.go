package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/warp/pesantren-billing/billing"
	"github.com/warp/pesantren-billing/billing/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	ay2025   = billing.NewAcademicYear(2025, billing.Juli)
	juli1    = billing.NewDate(2025, billing.Juli, 1)
	fixedNow = billing.FixedClock(juli1)
)

func rp(n int64) billing.Money { return billing.NewMoney(n) }

func santri(id, class string) billing.Student {
	return billing.Student{
		ID:        billing.StudentID(id),
		NIS:       "NIS-" + id,
		Name:      "Santri " + id,
		ClassName: billing.ClassName(class),
		Status:    billing.StudentActive,
	}
}

func sppDefinition(amount int64) billing.BillDefinition {
	return billing.BillDefinition{
		ID:              "spp",
		Name:            "SPP",
		Category:        billing.CategoryRecurring,
		TargetMonths:    ay2025.Months(),
		Strategy:        billing.Uniform{Amount: rp(amount)},
		Due:             billing.DueRule{DayOfMonth: 10},
		LedgerAccountID: "kas-spp",
	}
}

func perClassDefinition(amounts map[billing.ClassName]billing.Money) billing.BillDefinition {
	def := sppDefinition(1)
	def.ID = "uang-makan"
	def.Name = "Uang Makan"
	def.Strategy = billing.PerClass{Amounts: amounts}
	def.LedgerAccountID = "kas-umum"
	return def
}

func unpaidInvoice(id string, amount int64) billing.Invoice {
	return billing.Invoice{
		ID:           billing.InvoiceID(id),
		StudentID:    "s1",
		DefinitionID: "spp",
		ClassName:    "7A",
		Month:        billing.Juli,
		Year:         2025,
		Amount:       rp(amount),
		PaidAmount:   billing.Zero,
		DueDate:      billing.NewDate(2025, billing.Juli, 10),
		Status:       billing.InvoiceUnpaid,
	}
}

// fixture is a seeded in-memory pesantren: classes 7A/8A, accounts
// kas-spp/kas-umum/bank, and the SPP definition.
type fixture struct {
	store *store.Memory
	ids   *billing.SequenceGenerator
	ctx   context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: store.NewMemory(),
		ids:   billing.NewSequenceGenerator("id"),
		ctx:   context.Background(),
	}
	for _, c := range []billing.Class{{Name: "7A", Level: 7}, {Name: "8A", Level: 8}} {
		require.NoError(t, f.store.SaveClass(f.ctx, c))
	}
	for _, id := range []billing.AccountID{"kas-spp", "kas-umum", "bank"} {
		require.NoError(t, f.store.SaveAccount(f.ctx, billing.LedgerAccount{ID: id, Name: string(id)}))
	}
	require.NoError(t, f.store.SaveDefinition(f.ctx, sppDefinition(500000)))
	return f
}

func (f *fixture) addStudents(t *testing.T, students ...billing.Student) {
	t.Helper()
	for _, s := range students {
		require.NoError(t, f.store.SaveStudent(f.ctx, s))
	}
}

// generate bills students for the SPP definition of 2025/2026.
func (f *fixture) generate(t *testing.T, students ...billing.Student) billing.GenerationSummary {
	t.Helper()
	gen := billing.NewGenerator(f.store, f.ids, fixedNow, nil)
	summary, err := gen.Generate(f.ctx, billing.GenerateInput{
		Definition:   sppDefinition(500000),
		AcademicYear: ay2025,
		Students:     students,
	})
	require.NoError(t, err)
	return summary
}

func (f *fixture) invoicesOf(t *testing.T, student billing.StudentID) []billing.Invoice {
	t.Helper()
	invoices, err := f.store.ListInvoices(f.ctx, billing.InvoiceFilter{StudentID: student})
	require.NoError(t, err)
	return invoices
}
