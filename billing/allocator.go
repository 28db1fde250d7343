/*
allocator.go - Payment allocation across selected invoices

PURPOSE:
  Decides how a payment settles the invoices a cashier selected. Nothing
  here touches storage; results describe the new invoice states and the
  caller (PaymentService) persists them atomically.

FULL PAYMENT:
  Every selected invoice is settled at its residual amount and becomes
  Paid. Invoices already Paid are skipped with a warning.

PARTIAL PAYMENT:
  Invoices are taken in the caller's order. Each one receives
  min(remaining tender, residual):

    applied == residual      -> settled in place, status Paid
    0 < applied < residual   -> SPLIT: the invoice is replaced by
                                  a Paid sibling       amount = paid + applied
                                  a PartiallyPaid one  amount = residual - applied
                                both with ParentID = original ID
    remaining tender == 0    -> later invoices are untouched

  Conservation holds for every split:
    original.Amount == paid.Amount + residual.Amount

IDENTIFIERS:
  Sibling IDs come from the injected IDGenerator, never from timestamps.

SEE ALSO:
  - payment.go: persists allocation results inside one transaction
*/
package billing

import (
	"fmt"
	"time"
)

// =============================================================================
// TYPES
// =============================================================================

// PaymentMeta is recorded on every invoice a payment settles.
type PaymentMeta struct {
	PaidAt     time.Time
	ReceivedBy string
}

// Allocation is the amount one payment applied to one invoice.
type Allocation struct {
	InvoiceID    InvoiceID    `json:"invoice_id"`
	StudentID    StudentID    `json:"student_id"`
	DefinitionID DefinitionID `json:"bill_definition_id"`
	Month        Month        `json:"month"`
	Year         int          `json:"year"`
	Applied      Money        `json:"applied"`
}

// Split replaces Original with a Paid and a PartiallyPaid sibling.
type Split struct {
	Original Invoice `json:"original"`
	Paid     Invoice `json:"paid"`
	Residual Invoice `json:"residual"`
}

type FullResult struct {
	Allocations []Allocation
	Settled     []Invoice // new states, same IDs
	Total       Money
	Warnings    []Warning
}

type PartialResult struct {
	Allocations []Allocation
	Settled     []Invoice // settled in place, same IDs
	Splits      []Split
	Applied     Money
	Unapplied   Money // tender left after every selected invoice
	Warnings    []Warning
}

// Paid returns every Paid record the allocation produced.
func (r PartialResult) Paid() []Invoice {
	paid := make([]Invoice, 0, len(r.Settled)+len(r.Splits))
	paid = append(paid, r.Settled...)
	for _, s := range r.Splits {
		paid = append(paid, s.Paid)
	}
	return paid
}

// Residual returns the PartiallyPaid records left by splits.
func (r PartialResult) Residual() []Invoice {
	residual := make([]Invoice, 0, len(r.Splits))
	for _, s := range r.Splits {
		residual = append(residual, s.Residual)
	}
	return residual
}

// =============================================================================
// ALLOCATOR
// =============================================================================

type Allocator struct {
	IDs   IDGenerator
	Clock Clock
}

func NewAllocator(ids IDGenerator, clock Clock) Allocator {
	return Allocator{IDs: idsOrDefault(ids), Clock: clock}
}

// AllocateFull settles every selected invoice at its residual amount.
func (a Allocator) AllocateFull(invoices []Invoice, meta PaymentMeta) (FullResult, error) {
	if err := checkSelection(invoices); err != nil {
		return FullResult{}, err
	}
	meta = a.fillMeta(meta)
	result := FullResult{Total: Zero}
	for _, inv := range invoices {
		residual := inv.Residual()
		if inv.IsPaid() || !residual.IsPositive() {
			result.Warnings = append(result.Warnings, alreadyPaid(inv))
			continue
		}
		result.Allocations = append(result.Allocations, allocationFor(inv, residual))
		result.Settled = append(result.Settled, settle(inv, residual, meta))
		result.Total = result.Total.Add(residual)
	}
	return result, nil
}

// AllocatePartial spends tendered across invoices in the given order,
// splitting the invoice the tender runs out on.
func (a Allocator) AllocatePartial(invoices []Invoice, tendered Money, meta PaymentMeta) (PartialResult, error) {
	if tendered.IsNegative() {
		return PartialResult{}, fmt.Errorf("%w: %s", ErrInvalidTenderAmount, tendered)
	}
	if err := checkSelection(invoices); err != nil {
		return PartialResult{}, err
	}
	meta = a.fillMeta(meta)
	ids := idsOrDefault(a.IDs)

	result := PartialResult{Applied: Zero, Unapplied: tendered}
	remaining := tendered
	for _, inv := range invoices {
		if !remaining.IsPositive() {
			break
		}
		residual := inv.Residual()
		if inv.IsPaid() || !residual.IsPositive() {
			result.Warnings = append(result.Warnings, alreadyPaid(inv))
			continue
		}

		applied := remaining.Min(residual)
		remaining = remaining.Sub(applied)
		result.Applied = result.Applied.Add(applied)
		result.Allocations = append(result.Allocations, allocationFor(inv, applied))

		if applied.Equal(residual) {
			result.Settled = append(result.Settled, settle(inv, applied, meta))
			continue
		}
		result.Splits = append(result.Splits, split(inv, applied, meta, ids))
	}
	result.Unapplied = remaining
	if remaining.IsPositive() && len(result.Allocations) > 0 {
		result.Warnings = append(result.Warnings, Warning{
			Code:    WarnUnappliedTender,
			Message: fmt.Sprintf("%s exceeds the selected invoices and was not applied", remaining.Rupiah()),
		})
	}
	return result, nil
}

func (a Allocator) fillMeta(meta PaymentMeta) PaymentMeta {
	if meta.PaidAt.IsZero() {
		meta.PaidAt = a.Clock.Now()
	}
	return meta
}

func checkSelection(invoices []Invoice) error {
	seen := make(map[InvoiceID]bool, len(invoices))
	for _, inv := range invoices {
		if seen[inv.ID] {
			return invalid("invoice_ids", "invoice %s selected twice", inv.ID)
		}
		seen[inv.ID] = true
	}
	return nil
}

func allocationFor(inv Invoice, applied Money) Allocation {
	return Allocation{
		InvoiceID:    inv.ID,
		StudentID:    inv.StudentID,
		DefinitionID: inv.DefinitionID,
		Month:        inv.Month,
		Year:         inv.Year,
		Applied:      applied,
	}
}

func alreadyPaid(inv Invoice) Warning {
	return Warning{
		Code:    WarnInvoiceAlreadyPaid,
		Message: fmt.Sprintf("invoice %s (%s %d) is already paid", inv.ID, inv.Month, inv.Year),
	}
}

func settle(inv Invoice, applied Money, meta PaymentMeta) Invoice {
	paidAt := meta.PaidAt
	inv.PaidAmount = inv.PaidAmount.Add(applied)
	inv.Status = InvoicePaid
	inv.PaidAt = &paidAt
	inv.ReceivedBy = meta.ReceivedBy
	inv.UpdatedAt = meta.PaidAt
	return inv
}

func split(inv Invoice, applied Money, meta PaymentMeta, ids IDGenerator) Split {
	paidAt := meta.PaidAt

	paid := inv
	paid.ID = InvoiceID(ids.NewID())
	paid.ParentID = inv.ID
	paid.Amount = inv.PaidAmount.Add(applied)
	paid.PaidAmount = paid.Amount
	paid.Status = InvoicePaid
	paid.PaidAt = &paidAt
	paid.ReceivedBy = meta.ReceivedBy
	paid.CreatedAt = meta.PaidAt
	paid.UpdatedAt = meta.PaidAt

	residual := inv
	residual.ID = InvoiceID(ids.NewID())
	residual.ParentID = inv.ID
	residual.Amount = inv.Residual().Sub(applied)
	residual.PaidAmount = Zero
	residual.Status = InvoicePartiallyPaid
	residual.PaidAt = nil
	residual.ReceivedBy = ""
	residual.CreatedAt = meta.PaidAt
	residual.UpdatedAt = meta.PaidAt

	return Split{Original: inv, Paid: paid, Residual: residual}
}
