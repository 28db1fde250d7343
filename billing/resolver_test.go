package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pesantren-billing/billing"
)

// =============================================================================
// DEFINITION VALIDATION
// =============================================================================

func TestBillDefinition_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*billing.BillDefinition)
		field  string
	}{
		{"no months", func(d *billing.BillDefinition) { d.TargetMonths = nil }, "target_months"},
		{"no account", func(d *billing.BillDefinition) { d.LedgerAccountID = "" }, "ledger_account_id"},
		{"due day out of range", func(d *billing.BillDefinition) { d.Due.DayOfMonth = 32 }, "due_day"},
		{"zero uniform amount", func(d *billing.BillDefinition) { d.Strategy = billing.Uniform{Amount: billing.Zero} }, "amount"},
		{"negative class amount", func(d *billing.BillDefinition) {
			d.Strategy = billing.PerClass{Amounts: map[billing.ClassName]billing.Money{"7A": rp(-1)}}
		}, "per_class"},
		{"zero student amount", func(d *billing.BillDefinition) {
			d.Strategy = billing.PerStudent{Amounts: map[billing.StudentID]billing.Money{"s1": billing.Zero}}
		}, "per_student"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := sppDefinition(350000)
			tt.mutate(&def)

			err := def.Validate()

			var verr *billing.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	assert.NoError(t, sppDefinition(350000).Validate())
}

func TestBillDefinition_Validate_MissingStrategy(t *testing.T) {
	def := sppDefinition(350000)
	def.Strategy = nil
	assert.ErrorIs(t, def.Validate(), billing.ErrInvalidAmountStrategy)
}

// =============================================================================
// AMOUNT RESOLVER
// =============================================================================

func TestResolve_Uniform(t *testing.T) {
	res, err := billing.AmountResolver{}.Resolve(sppDefinition(500000), santri("s1", "7A"))
	require.NoError(t, err)
	assert.True(t, res.Amount.Equal(rp(500000)))
	assert.False(t, res.NeedsManualInput)
}

func TestResolve_PerClass(t *testing.T) {
	// GIVEN: Uang Makan priced for 7A only
	def := perClassDefinition(map[billing.ClassName]billing.Money{"7A": rp(350000)})
	resolver := billing.AmountResolver{}

	// WHEN/THEN: a 7A student gets the class amount
	res, err := resolver.Resolve(def, santri("s1", "7A"))
	require.NoError(t, err)
	assert.True(t, res.Amount.Equal(rp(350000)))
	assert.True(t, resolver.Eligible(def, santri("s1", "7A")))

	// WHEN/THEN: an 8A student resolves to zero and is not eligible
	res, err = resolver.Resolve(def, santri("s2", "8A"))
	require.NoError(t, err)
	assert.True(t, res.Amount.IsZero())
	assert.True(t, res.NeedsManualInput)
	assert.False(t, resolver.Eligible(def, santri("s2", "8A")))
}

func TestResolve_PerStudent_MissingNeedsManualInput(t *testing.T) {
	def := sppDefinition(1)
	def.Strategy = billing.PerStudent{Amounts: map[billing.StudentID]billing.Money{"s1": rp(250000)}}
	resolver := billing.AmountResolver{}

	res, err := resolver.Resolve(def, santri("s1", "7A"))
	require.NoError(t, err)
	assert.True(t, res.Amount.Equal(rp(250000)))

	res, err = resolver.Resolve(def, santri("s2", "7A"))
	require.NoError(t, err)
	assert.True(t, res.Amount.IsZero())
	assert.True(t, res.NeedsManualInput)
	assert.True(t, resolver.Eligible(def, santri("s2", "7A")))
}

func TestResolve_UnknownStrategy(t *testing.T) {
	def := sppDefinition(1)
	def.Strategy = nil

	_, err := billing.AmountResolver{}.Resolve(def, santri("s1", "7A"))
	assert.ErrorIs(t, err, billing.ErrInvalidAmountStrategy)
}

func TestEligible_TransferredOutStudent(t *testing.T) {
	st := santri("s1", "7A")
	st.Status = billing.StudentTransferredOut
	assert.False(t, billing.AmountResolver{}.Eligible(sppDefinition(500000), st))
}
