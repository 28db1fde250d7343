package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pesantren-billing/billing"
	"github.com/warp/pesantren-billing/billing/store"
)

func invoice(id string, month billing.Month, year int) billing.Invoice {
	return billing.Invoice{
		ID:           billing.InvoiceID(id),
		StudentID:    "s1",
		DefinitionID: "spp",
		ClassName:    "7A",
		Month:        month,
		Year:         year,
		Amount:       billing.NewMoney(500000),
		PaidAmount:   billing.Zero,
		DueDate:      billing.NewDate(year, month, 10),
		Status:       billing.InvoiceUnpaid,
	}
}

// =============================================================================
// INVOICES
// =============================================================================

func TestMemory_RootKeyIsUnique(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.InsertInvoices(ctx, []billing.Invoice{invoice("a", billing.Juli, 2025)}))

	// GIVEN: a batch whose second invoice repeats an existing key
	err := mem.InsertInvoices(ctx, []billing.Invoice{
		invoice("b", billing.Agustus, 2025),
		invoice("c", billing.Juli, 2025),
	})

	// THEN: the batch is refused as a whole
	var dup *billing.DuplicateInvoiceError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, billing.Juli, dup.Key.Month)
	assert.ErrorIs(t, err, billing.ErrDuplicateInvoice)

	_, err = mem.GetInvoice(ctx, "b")
	assert.ErrorIs(t, err, billing.ErrInvoiceNotFound)
}

func TestMemory_SplitSiblingsShareTheKey(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.InsertInvoices(ctx, []billing.Invoice{invoice("a", billing.Juli, 2025)}))

	paid := invoice("a-1", billing.Juli, 2025)
	paid.ParentID = "a"
	residual := invoice("a-2", billing.Juli, 2025)
	residual.ParentID = "a"

	require.NoError(t, mem.DeleteInvoices(ctx, []billing.InvoiceID{"a"}))
	require.NoError(t, mem.InsertInvoices(ctx, []billing.Invoice{paid, residual}))

	existing, err := mem.GetExistingInvoices(ctx, "spp")
	require.NoError(t, err)
	assert.Len(t, existing, 2)

	// The siblings still hold the slot, so a fresh root for Juli is refused.
	err = mem.InsertInvoices(ctx, []billing.Invoice{invoice("b", billing.Juli, 2025)})
	assert.ErrorIs(t, err, billing.ErrDuplicateInvoice)
	existing, err = mem.GetExistingInvoices(ctx, "spp")
	require.NoError(t, err)
	assert.Len(t, existing, 2)
}

func TestMemory_DeletingLastInvoiceFreesTheSlot(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.InsertInvoices(ctx, []billing.Invoice{invoice("a", billing.Agustus, 2025)}))
	require.NoError(t, mem.DeleteInvoices(ctx, []billing.InvoiceID{"a"}))

	assert.NoError(t, mem.InsertInvoices(ctx, []billing.Invoice{invoice("b", billing.Agustus, 2025)}))
}

func TestMemory_ListInvoicesOrdersByDueDate(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.InsertInvoices(ctx, []billing.Invoice{
		invoice("ags", billing.Agustus, 2025),
		invoice("jul", billing.Juli, 2025),
		invoice("jan", billing.Januari, 2026),
	}))

	got, err := mem.ListInvoices(ctx, billing.InvoiceFilter{StudentID: "s1"})

	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []billing.InvoiceID{"jul", "ags", "jan"}, []billing.InvoiceID{got[0].ID, got[1].ID, got[2].ID})
}

func TestMemory_DeleteInvoicesIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.InsertInvoices(ctx, []billing.Invoice{invoice("a", billing.Juli, 2025)}))

	err := mem.DeleteInvoices(ctx, []billing.InvoiceID{"a", "ghost"})

	assert.ErrorIs(t, err, billing.ErrInvoiceNotFound)
	_, err = mem.GetInvoice(ctx, "a")
	assert.NoError(t, err)
}

// =============================================================================
// LEDGER AND PAYMENTS
// =============================================================================

func TestMemory_LockedEntryCannotBeDeleted(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveAccount(ctx, billing.LedgerAccount{ID: "kas-spp", Name: "Kas SPP"}))
	require.NoError(t, mem.InsertLedgerEntries(ctx, []billing.LedgerEntry{{
		ID:        "e1",
		AccountID: "kas-spp",
		Kind:      billing.EntryIncome,
		Amount:    billing.NewMoney(500000),
		Method:    billing.MethodCash,
		PaymentID: "p1",
	}}))

	err := mem.DeleteLedgerEntry(ctx, "e1")

	assert.ErrorIs(t, err, billing.ErrEntryLocked)
	_, err = mem.GetLedgerEntry(ctx, "e1")
	assert.NoError(t, err)
}

func TestMemory_EntryForUnknownAccountIsRefused(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	err := mem.InsertLedgerEntries(ctx, []billing.LedgerEntry{{ID: "e1", AccountID: "brankas", Kind: billing.EntryIncome}})

	assert.ErrorIs(t, err, billing.ErrAccountNotFound)
}

func TestMemory_IdempotencyKeyIsUnique(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.InsertPayment(ctx, billing.Payment{ID: "p1", IdempotencyKey: "k1"}))

	err := mem.InsertPayment(ctx, billing.Payment{ID: "p2", IdempotencyKey: "k1"})

	assert.ErrorIs(t, err, billing.ErrDuplicateSubmission)
	exists, err := mem.PaymentExists(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, exists)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestMemory_WithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	boom := errors.New("boom")

	// WHEN: a transaction writes, then fails
	err := mem.WithTx(ctx, func(tx billing.Store) error {
		require.NoError(t, tx.InsertInvoices(ctx, []billing.Invoice{invoice("a", billing.Juli, 2025)}))
		require.NoError(t, tx.InsertPayment(ctx, billing.Payment{ID: "p1", IdempotencyKey: "k1"}))
		return boom
	})

	// THEN: nothing it wrote is visible
	assert.ErrorIs(t, err, boom)
	_, err = mem.GetInvoice(ctx, "a")
	assert.ErrorIs(t, err, billing.ErrInvoiceNotFound)
	exists, err := mem.PaymentExists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemory_WithTxCommits(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	err := mem.WithTx(ctx, func(tx billing.Store) error {
		return tx.InsertInvoices(ctx, []billing.Invoice{invoice("a", billing.Juli, 2025)})
	})

	require.NoError(t, err)
	_, err = mem.GetInvoice(ctx, "a")
	assert.NoError(t, err)
}
