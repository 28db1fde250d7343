package billing

import "time"

// =============================================================================
// INVOICE - One generated bill instance (tagihan)
// =============================================================================

type InvoiceID string

type InvoiceStatus string

const (
	InvoiceUnpaid        InvoiceStatus = "unpaid"
	InvoicePartiallyPaid InvoiceStatus = "partially_paid"
	InvoicePaid          InvoiceStatus = "paid"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceUnpaid, InvoicePartiallyPaid, InvoicePaid:
		return true
	}
	return false
}

// Invoice is a per-student, per-month bill. Amount and ClassName are fixed
// at creation; a later class change never touches them.
//
// Residual amount is always Amount - PaidAmount and never negative.
// Invoices produced by a partial-payment split carry the replaced
// invoice's ID in ParentID.
type Invoice struct {
	ID           InvoiceID     `json:"id"`
	StudentID    StudentID     `json:"student_id"`
	DefinitionID DefinitionID  `json:"bill_definition_id"`
	ClassName    ClassName     `json:"class_name"`
	Month        Month         `json:"month"`
	Year         int           `json:"year"`
	Amount       Money         `json:"amount"`
	PaidAmount   Money         `json:"paid_amount"`
	DueDate      Date          `json:"due_date"`
	Status       InvoiceStatus `json:"status"`
	ParentID     InvoiceID     `json:"parent_id,omitempty"`
	PaidAt       *time.Time    `json:"paid_at,omitempty"`
	ReceivedBy   string        `json:"received_by,omitempty"`
	CreatedBy    string        `json:"created_by,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Residual is the amount still owed.
func (inv Invoice) Residual() Money {
	r := inv.Amount.Sub(inv.PaidAmount)
	if r.IsNegative() {
		return Zero
	}
	return r
}

func (inv Invoice) IsPaid() bool { return inv.Status == InvoicePaid }

// Key is the idempotency key generation deduplicates on.
func (inv Invoice) Key() InvoiceKey {
	return InvoiceKey{
		StudentID:    inv.StudentID,
		DefinitionID: inv.DefinitionID,
		Month:        inv.Month,
		Year:         inv.Year,
	}
}

// Overdue reports whether the invoice still owes money and was due before today.
func (inv Invoice) Overdue(today Date) bool {
	return !inv.IsPaid() && inv.Residual().IsPositive() && inv.DueDate.Before(today)
}

// InvoiceKey identifies at most one root invoice.
type InvoiceKey struct {
	StudentID    StudentID
	DefinitionID DefinitionID
	Month        Month
	Year         int
}

// InvoicePatch is a partial update. Nil fields are left unchanged.
type InvoicePatch struct {
	PaidAmount *Money
	Status     *InvoiceStatus
	PaidAt     *time.Time
	ReceivedBy *string
}

// Apply returns inv with the patch applied.
func (p InvoicePatch) Apply(inv Invoice) Invoice {
	if p.PaidAmount != nil {
		inv.PaidAmount = *p.PaidAmount
	}
	if p.Status != nil {
		inv.Status = *p.Status
	}
	if p.PaidAt != nil {
		t := *p.PaidAt
		inv.PaidAt = &t
	}
	if p.ReceivedBy != nil {
		inv.ReceivedBy = *p.ReceivedBy
	}
	return inv
}

// InvoiceFilter selects invoices in ListInvoices. Zero fields match all.
type InvoiceFilter struct {
	StudentID    StudentID
	DefinitionID DefinitionID
	Status       InvoiceStatus
	DueAfter     Date
}

func (f InvoiceFilter) Matches(inv Invoice) bool {
	if f.StudentID != "" && inv.StudentID != f.StudentID {
		return false
	}
	if f.DefinitionID != "" && inv.DefinitionID != f.DefinitionID {
		return false
	}
	if f.Status != "" && inv.Status != f.Status {
		return false
	}
	if !f.DueAfter.IsZero() && !inv.DueDate.After(f.DueAfter) {
		return false
	}
	return true
}

// TotalResidual sums what is still owed on invoices.
func TotalResidual(invoices []Invoice) Money {
	total := Zero
	for _, inv := range invoices {
		total = total.Add(inv.Residual())
	}
	return total
}
