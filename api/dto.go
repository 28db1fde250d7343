/*
dto.go - Request bodies and the response envelope

PURPOSE:
  Defines the JSON structures for API communication. Request types carry
  validator/v10 tags and are checked before any billing logic runs; each
  one converts itself into the core type the services expect.

NAMING CONVENTION:
  - *Request: request body types from clients
  - Envelope: every response, success or failure

ENVELOPE:
  {"data": ..., "meta": {...}, "warnings": [...], "error": {...}}
  Exactly one of data or error is set. Warnings ride along with data
  (e.g. NoMatchingStudents on generation) and never turn a success into
  an error.

BILL DEFINITIONS:
  POST /api/bill-definitions takes the factory JSON directly; see
  factory/definition.go for the schema.

SEE ALSO:
  - handlers.go: uses these types
  - factory/definition.go: DefinitionJSON
*/
package api

import (
	"github.com/warp/pesantren-billing/billing"
)

// =============================================================================
// ENVELOPE
// =============================================================================

// Envelope wraps every response body.
type Envelope struct {
	Data     any               `json:"data,omitempty"`
	Meta     map[string]any    `json:"meta,omitempty"`
	Warnings []billing.Warning `json:"warnings,omitempty"`
	Error    *ErrorBody        `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []FieldDetail `json:"details,omitempty"`
}

// FieldDetail names one invalid request field.
type FieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// =============================================================================
// STUDENTS AND CLASSES
// =============================================================================

type CreateStudentRequest struct {
	ID        string `json:"id"`
	NIS       string `json:"nis"`
	Name      string `json:"name" validate:"required,max=200"`
	ClassName string `json:"class_name" validate:"required"`
	Dormitory string `json:"dormitory"`
}

func (r CreateStudentRequest) toStudent() billing.Student {
	return billing.Student{
		ID:        billing.StudentID(r.ID),
		NIS:       r.NIS,
		Name:      r.Name,
		ClassName: billing.ClassName(r.ClassName),
		Dormitory: r.Dormitory,
	}
}

type ChangeClassRequest struct {
	ClassName string `json:"class_name" validate:"required"`
}

type TransferOutRequest struct {
	EffectiveDate billing.Date `json:"effective_date"`
}

type CreateClassRequest struct {
	Name  string `json:"name" validate:"required,max=50"`
	Level int    `json:"level" validate:"gte=0,lte=12"`
}

// =============================================================================
// GENERATION
// =============================================================================

// GenerateRequest selects the academic year and, optionally, narrows the
// students to one class or an explicit list.
type GenerateRequest struct {
	AcademicYear string                   `json:"academic_year" validate:"required"`
	ClassName    string                   `json:"class_name"`
	StudentIDs   []string                 `json:"student_ids" validate:"omitempty,dive,required"`
	Overrides    map[string]billing.Money `json:"overrides"`
	CreatedBy    string                   `json:"created_by"`
}

func (r GenerateRequest) overrides() map[billing.StudentID]billing.Money {
	if len(r.Overrides) == 0 {
		return nil
	}
	out := make(map[billing.StudentID]billing.Money, len(r.Overrides))
	for id, amount := range r.Overrides {
		out[billing.StudentID(id)] = amount
	}
	return out
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentRequest struct {
	StudentID      string        `json:"student_id" validate:"required"`
	InvoiceIDs     []string      `json:"invoice_ids" validate:"required,min=1,dive,required"`
	Tendered       billing.Money `json:"tendered"`
	Method         string        `json:"method" validate:"required,oneof=tunai transfer"`
	AccountID      string        `json:"account_id"`
	ReceivedBy     string        `json:"received_by" validate:"required"`
	IdempotencyKey string        `json:"idempotency_key" validate:"required,max=100"`
	Date           billing.Date  `json:"date"`
}

func (r PaymentRequest) toCore() billing.PaymentRequest {
	ids := make([]billing.InvoiceID, len(r.InvoiceIDs))
	for i, id := range r.InvoiceIDs {
		ids[i] = billing.InvoiceID(id)
	}
	return billing.PaymentRequest{
		StudentID:      billing.StudentID(r.StudentID),
		InvoiceIDs:     ids,
		Tendered:       r.Tendered,
		Method:         billing.PaymentMethod(r.Method),
		AccountID:      billing.AccountID(r.AccountID),
		ReceivedBy:     r.ReceivedBy,
		IdempotencyKey: r.IdempotencyKey,
		Date:           r.Date,
	}
}

// =============================================================================
// LEDGER
// =============================================================================

type CreateAccountRequest struct {
	ID          string `json:"id" validate:"required,max=50"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description"`
}

type ManualEntryRequest struct {
	AccountID   string        `json:"account_id" validate:"required"`
	Kind        string        `json:"kind" validate:"required,oneof=pemasukan pengeluaran"`
	Amount      billing.Money `json:"amount"`
	Method      string        `json:"method" validate:"required,oneof=tunai transfer"`
	Category    string        `json:"category" validate:"required"`
	Description string        `json:"description"`
	Date        billing.Date  `json:"date"`
	CreatedBy   string        `json:"created_by"`
}

func (r ManualEntryRequest) toCore() billing.ManualEntry {
	return billing.ManualEntry{
		AccountID:   billing.AccountID(r.AccountID),
		Kind:        billing.EntryKind(r.Kind),
		Amount:      r.Amount,
		Method:      billing.PaymentMethod(r.Method),
		Category:    r.Category,
		Description: r.Description,
		Date:        r.Date,
		CreatedBy:   r.CreatedBy,
	}
}

type EndpointRequest struct {
	AccountID string `json:"account_id" validate:"required"`
	Method    string `json:"method" validate:"required,oneof=tunai transfer"`
}

type TransferRequest struct {
	Source      EndpointRequest `json:"source" validate:"required"`
	Destination EndpointRequest `json:"destination" validate:"required"`
	Amount      billing.Money   `json:"amount"`
	Note        string          `json:"note"`
	Date        billing.Date    `json:"date"`
	CreatedBy   string          `json:"created_by"`
}

func (r TransferRequest) toCore() billing.TransferRequest {
	return billing.TransferRequest{
		Source:      billing.Endpoint{AccountID: billing.AccountID(r.Source.AccountID), Method: billing.PaymentMethod(r.Source.Method)},
		Destination: billing.Endpoint{AccountID: billing.AccountID(r.Destination.AccountID), Method: billing.PaymentMethod(r.Destination.Method)},
		Amount:      r.Amount,
		Note:        r.Note,
		Date:        r.Date,
		CreatedBy:   r.CreatedBy,
	}
}

// =============================================================================
// RESPONSES
// =============================================================================

// DefinitionResponse is a definition as the dashboard edits it, plus the
// next upcoming due date.
type DefinitionResponse struct {
	Definition any           `json:"definition"`
	NextDueDate *billing.Date `json:"next_due_date,omitempty"`
}

type TransferOutResponse struct {
	Student         billing.Student `json:"student"`
	DeletedInvoices int             `json:"deleted_invoices"`
}

type ScenarioResponse struct {
	Students    int `json:"students"`
	Definitions int `json:"definitions"`
	Invoices    int `json:"invoices"`
	Payments    int `json:"payments"`
}
