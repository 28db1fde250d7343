package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pesantren-billing/billing"
)

// =============================================================================
// GENERATION SCENARIOS
// =============================================================================

func TestGenerate_UniformSPP_ThreeStudentsFullYear(t *testing.T) {
	// GIVEN: SPP 500000 for Juli..Juni and three active students
	// WHEN: generating for 2025/2026
	// THEN: 3 x 12 = 36 invoices, each 500000, unpaid

	f := newFixture(t)
	students := []billing.Student{santri("s1", "7A"), santri("s2", "7A"), santri("s3", "8A")}

	summary := f.generate(t, students...)

	assert.Equal(t, 36, summary.TotalInvoices)
	assert.Equal(t, 3, summary.TotalStudents)
	assert.True(t, summary.TotalAmount.Equal(rp(18000000)))
	assert.Empty(t, summary.Warnings)

	stored, err := f.store.GetExistingInvoices(f.ctx, "spp")
	require.NoError(t, err)
	require.Len(t, stored, 36)
	for _, inv := range stored {
		assert.True(t, inv.Amount.Equal(rp(500000)))
		assert.True(t, inv.PaidAmount.IsZero())
		assert.Equal(t, billing.InvoiceUnpaid, inv.Status)
	}
}

func TestGenerate_YearMappingAndDueDates(t *testing.T) {
	// GIVEN: one student
	f := newFixture(t)

	// WHEN: generating SPP due on the 10th
	f.generate(t, santri("s1", "7A"))

	// THEN: Juli..Desember are 2025, Januari..Juni 2026, due on the 10th
	invoices := f.invoicesOf(t, "s1")
	require.Len(t, invoices, 12)
	assert.Equal(t, billing.Juli, invoices[0].Month)
	assert.Equal(t, 2025, invoices[0].Year)
	assert.Equal(t, billing.NewDate(2025, billing.Juli, 10), invoices[0].DueDate)
	assert.Equal(t, billing.Juni, invoices[11].Month)
	assert.Equal(t, 2026, invoices[11].Year)
	assert.Equal(t, billing.NewDate(2026, billing.Juni, 10), invoices[11].DueDate)
}

func TestGenerate_IdempotentRerun(t *testing.T) {
	// GIVEN: SPP already generated for two students
	f := newFixture(t)
	students := []billing.Student{santri("s1", "7A"), santri("s2", "7A")}
	first := f.generate(t, students...)
	require.Equal(t, 24, first.TotalInvoices)

	// WHEN: generating again with identical input
	second := f.generate(t, students...)

	// THEN: nothing new is created
	assert.Equal(t, 0, second.TotalInvoices)
	assert.Equal(t, 24, second.SkippedExisting)
	stored, err := f.store.GetExistingInvoices(f.ctx, "spp")
	require.NoError(t, err)
	assert.Len(t, stored, 24)
}

func TestGenerate_NewStudentAfterFirstRun(t *testing.T) {
	// GIVEN: SPP generated for s1
	f := newFixture(t)
	f.generate(t, santri("s1", "7A"))

	// WHEN: a new santri joins and generation runs for everyone
	summary := f.generate(t, santri("s1", "7A"), santri("s2", "7A"))

	// THEN: only the newcomer is billed
	assert.Equal(t, 12, summary.TotalInvoices)
	assert.Equal(t, 1, summary.TotalStudents)
	assert.Len(t, f.invoicesOf(t, "s2"), 12)
}

func TestGenerate_DuplicateStudentInInputBilledOnce(t *testing.T) {
	f := newFixture(t)
	summary := f.generate(t, santri("s1", "7A"), santri("s1", "7A"))
	assert.Equal(t, 12, summary.TotalInvoices)
}

func TestGenerate_PerClassExcludesUnpricedClasses(t *testing.T) {
	// GIVEN: Uang Makan priced for 7A only
	f := newFixture(t)
	def := perClassDefinition(map[billing.ClassName]billing.Money{"7A": rp(400000)})
	gen := billing.NewGenerator(f.store, f.ids, fixedNow, nil)

	// WHEN: generating for a 7A and an 8A student
	summary, err := gen.Generate(f.ctx, billing.GenerateInput{
		Definition:   def,
		AcademicYear: ay2025,
		Students:     []billing.Student{santri("s1", "7A"), santri("s2", "8A")},
	})

	// THEN: only the 7A student is billed; 8A is excluded, not flagged
	require.NoError(t, err)
	assert.Equal(t, 12, summary.TotalInvoices)
	assert.Equal(t, []billing.StudentID{"s2"}, summary.Excluded)
	assert.Empty(t, summary.NeedsManualInput)
	assert.Empty(t, f.invoicesOf(t, "s2"))
}

func TestGenerate_NoMatchingStudentsIsAWarning(t *testing.T) {
	// GIVEN: a per-class bill for a class nobody is in
	f := newFixture(t)
	def := perClassDefinition(map[billing.ClassName]billing.Money{"9A": rp(400000)})
	gen := billing.NewGenerator(f.store, f.ids, fixedNow, nil)

	// WHEN: generating
	summary, err := gen.Generate(f.ctx, billing.GenerateInput{
		Definition:   def,
		AcademicYear: ay2025,
		Students:     []billing.Student{santri("s1", "7A")},
	})

	// THEN: success with zero invoices and a NoMatchingStudents warning
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalInvoices)
	require.Len(t, summary.Warnings, 1)
	assert.Equal(t, billing.WarnNoMatchingStudents, summary.Warnings[0].Code)
}

func TestGenerate_PerStudentOverridesAndManualInput(t *testing.T) {
	// GIVEN: per-student bill with an amount for s1 only
	f := newFixture(t)
	def := sppDefinition(1)
	def.ID = "les"
	def.Name = "Les Tambahan"
	def.TargetMonths = []billing.Month{billing.Juli, billing.Agustus}
	def.Strategy = billing.PerStudent{Amounts: map[billing.StudentID]billing.Money{"s1": rp(100000)}}
	gen := billing.NewGenerator(f.store, f.ids, fixedNow, nil)
	in := billing.GenerateInput{
		Definition:   def,
		AcademicYear: ay2025,
		Students:     []billing.Student{santri("s1", "7A"), santri("s2", "7A"), santri("s3", "7A")},
		Overrides:    map[billing.StudentID]billing.Money{"s3": rp(75000)},
	}

	// WHEN: generating
	summary, err := gen.Generate(f.ctx, in)

	// THEN: s1 and s3 are billed, s2 needs manual input and is skipped
	require.NoError(t, err)
	assert.Equal(t, 4, summary.TotalInvoices)
	assert.Equal(t, []billing.StudentID{"s2"}, summary.NeedsManualInput)
	require.Len(t, summary.Warnings, 1)
	assert.Equal(t, billing.WarnNeedsManualInput, summary.Warnings[0].Code)
	s3 := f.invoicesOf(t, "s3")
	require.Len(t, s3, 2)
	assert.True(t, s3[0].Amount.Equal(rp(75000)))
}

func TestGenerate_RejectsNonPositiveOverride(t *testing.T) {
	f := newFixture(t)
	gen := billing.NewGenerator(f.store, f.ids, fixedNow, nil)

	_, err := gen.Generate(f.ctx, billing.GenerateInput{
		Definition:   sppDefinition(500000),
		AcademicYear: ay2025,
		Students:     []billing.Student{santri("s1", "7A")},
		Overrides:    map[billing.StudentID]billing.Money{"s1": billing.Zero},
	})
	assert.ErrorIs(t, err, billing.ErrValidation)
}

func TestGenerate_InvalidStrategyFailsBeforeWriting(t *testing.T) {
	f := newFixture(t)
	def := sppDefinition(1)
	def.Strategy = nil
	gen := billing.NewGenerator(f.store, f.ids, fixedNow, nil)

	_, err := gen.Generate(f.ctx, billing.GenerateInput{
		Definition:   def,
		AcademicYear: ay2025,
		Students:     []billing.Student{santri("s1", "7A")},
	})
	assert.ErrorIs(t, err, billing.ErrInvalidAmountStrategy)
	assert.Empty(t, f.invoicesOf(t, "s1"))
}

func TestGenerate_ClassChangeKeepsExistingAmount(t *testing.T) {
	// GIVEN: PerClass VII-A 350000, VIII-A 400000, invoices generated for a VII-A student
	// WHEN: the student moves to VIII-A
	// THEN: existing invoices keep amount 350000 and class VII-A

	f := newFixture(t)
	mem := f.store
	for _, c := range []billing.Class{{Name: "VII-A", Level: 7}, {Name: "VIII-A", Level: 8}} {
		require.NoError(t, mem.SaveClass(f.ctx, c))
	}
	st := santri("s1", "VII-A")
	f.addStudents(t, st)

	def := perClassDefinition(map[billing.ClassName]billing.Money{"VII-A": rp(350000), "VIII-A": rp(400000)})
	gen := billing.NewGenerator(mem, f.ids, fixedNow, nil)
	_, err := gen.Generate(f.ctx, billing.GenerateInput{Definition: def, AcademicYear: ay2025, Students: []billing.Student{st}})
	require.NoError(t, err)

	students := billing.NewStudentService(mem, fixedNow, nil)
	moved, err := students.ChangeClass(f.ctx, "s1", "VIII-A")
	require.NoError(t, err)
	assert.Equal(t, billing.ClassName("VIII-A"), moved.ClassName)

	// Re-running generation after the move must not recalculate either.
	summary, err := gen.Generate(f.ctx, billing.GenerateInput{Definition: def, AcademicYear: ay2025, Students: []billing.Student{moved}})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalInvoices)

	invoices := f.invoicesOf(t, "s1")
	require.Len(t, invoices, 12)
	for _, inv := range invoices {
		assert.True(t, inv.Amount.Equal(rp(350000)))
		assert.Equal(t, billing.ClassName("VII-A"), inv.ClassName)
	}
}

func TestGenerate_ConcurrentInsertSurfacesDuplicate(t *testing.T) {
	// GIVEN: an invoice for s1 Juli 2025 inserted behind the generator's back
	f := newFixture(t)
	inv := unpaidInvoice("manual-1", 500000)
	require.NoError(t, f.store.InsertInvoices(f.ctx, []billing.Invoice{inv}))

	// WHEN: inserting another root invoice for the same slot
	dup := unpaidInvoice("manual-2", 500000)
	err := f.store.InsertInvoices(f.ctx, []billing.Invoice{dup})

	// THEN: the store refuses with DuplicateInvoice
	assert.ErrorIs(t, err, billing.ErrDuplicateInvoice)
	assert.True(t, billing.IsConflict(err))
}

// =============================================================================
// PREVIEW
// =============================================================================

func TestPreview_WritesNothing(t *testing.T) {
	f := newFixture(t)
	gen := billing.NewGenerator(f.store, f.ids, fixedNow, nil)

	preview, err := gen.Preview(f.ctx, sppDefinition(500000), ay2025, []billing.Student{santri("s1", "7A"), santri("s2", "7A")})

	require.NoError(t, err)
	assert.Equal(t, 24, preview.TotalInvoices)
	assert.Equal(t, 2, preview.TotalStudents)
	assert.True(t, preview.TotalAmount.Equal(rp(12000000)))
	require.Len(t, preview.Lines, 2)
	assert.Len(t, preview.Lines[0].DueDates, 12)
	assert.Empty(t, f.invoicesOf(t, "s1"))
}

func TestPreview_ShowsExistingSlots(t *testing.T) {
	f := newFixture(t)
	f.generate(t, santri("s1", "7A"))
	gen := billing.NewGenerator(f.store, f.ids, fixedNow, nil)

	preview, err := gen.Preview(f.ctx, sppDefinition(500000), ay2025, []billing.Student{santri("s1", "7A")})

	require.NoError(t, err)
	assert.Equal(t, 0, preview.TotalInvoices)
	require.Len(t, preview.Lines, 1)
	assert.Empty(t, preview.Lines[0].Slots)
	assert.Len(t, preview.Lines[0].ExistingSlots, 12)
}
