/*
errors.go - Centralized error types for the billing core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Stores and the HTTP layer wrap or map these; callers test them with
  errors.Is / errors.As.

ERROR CATEGORIES:
  1. Validation errors - rejected before any generation/allocation runs
  2. Conflict errors   - locked entries, duplicates, self-transfers
  3. Lookup errors     - missing students, invoices, accounts
  4. Warnings          - NoMatchingStudents is reported, never returned

PROPAGATION:
  Storage failures are wrapped with context and passed through untouched.
  Nothing in this package retries. Generation is safe to re-run; payments
  are guarded by their idempotency key instead.

SEE ALSO:
  - api/handlers.go: maps these errors to HTTP status codes
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmountStrategy is returned when a definition carries no
	// strategy or one the resolver does not know.
	ErrInvalidAmountStrategy = errors.New("invalid amount strategy")

	// ErrInvalidTenderAmount is returned for a negative tendered amount.
	ErrInvalidTenderAmount = errors.New("invalid tender amount")

	// ErrSameAccountTransfer is returned when a transfer's source and
	// destination share both account and method.
	ErrSameAccountTransfer = errors.New("transfer source and destination are the same")

	// ErrEntryLocked is returned when deleting a ledger entry that was
	// created by a payment.
	ErrEntryLocked = errors.New("ledger entry is locked by a payment")

	// ErrDuplicateInvoice is returned by stores when an invoice for the same
	// (student, definition, month, year) already exists. Generation filters
	// existing keys first, so seeing this means a concurrent generation won.
	ErrDuplicateInvoice = errors.New("duplicate invoice")

	// ErrNoMatchingStudents marks a generation with no eligible students.
	// It is surfaced as a warning; generation still succeeds.
	ErrNoMatchingStudents = errors.New("no students matched the bill definition")

	// ErrDuplicateSubmission is returned when a payment idempotency key has
	// already been recorded.
	ErrDuplicateSubmission = errors.New("payment already submitted")

	// ErrDuplicateDefinition is returned when creating a bill definition
	// whose id is already taken.
	ErrDuplicateDefinition = errors.New("bill definition already exists")

	// ErrNothingToAllocate is returned when a payment would settle nothing.
	ErrNothingToAllocate = errors.New("nothing to allocate")

	ErrValidation      = errors.New("validation failed")
	ErrInvalidMoney    = errors.New("invalid money amount")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidDate     = errors.New("invalid date")
	ErrNoDueDate       = errors.New("no due date within the lookahead window")
	ErrUnknownCategory = errors.New("ledger category cannot be resolved")

	ErrStudentNotFound    = errors.New("student not found")
	ErrClassNotFound      = errors.New("class not found")
	ErrDefinitionNotFound = errors.New("bill definition not found")
	ErrInvoiceNotFound    = errors.New("invoice not found")
	ErrAccountNotFound    = errors.New("ledger account not found")
	ErrEntryNotFound      = errors.New("ledger entry not found")
	ErrPaymentNotFound    = errors.New("payment not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// LockedEntryError reports which payment holds the entry.
type LockedEntryError struct {
	EntryID   EntryID
	PaymentID PaymentID
}

func (e *LockedEntryError) Error() string {
	return fmt.Sprintf("ledger entry %s is locked by payment %s", e.EntryID, e.PaymentID)
}

func (e *LockedEntryError) Unwrap() error { return ErrEntryLocked }

// DuplicateInvoiceError reports the conflicting key.
type DuplicateInvoiceError struct {
	Key InvoiceKey
}

func (e *DuplicateInvoiceError) Error() string {
	return fmt.Sprintf("duplicate invoice: student %s, definition %s, %s %d",
		e.Key.StudentID, e.Key.DefinitionID, e.Key.Month, e.Key.Year)
}

func (e *DuplicateInvoiceError) Unwrap() error { return ErrDuplicateInvoice }

// =============================================================================
// WARNINGS - Non-fatal notices returned alongside results
// =============================================================================

type WarningCode string

const (
	WarnNoMatchingStudents WarningCode = "no_matching_students"
	WarnNeedsManualInput   WarningCode = "needs_manual_input"
	WarnInvoiceAlreadyPaid WarningCode = "invoice_already_paid"
	WarnUnappliedTender    WarningCode = "unapplied_tender"
)

type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidAmountStrategy) ||
		errors.Is(err, ErrInvalidTenderAmount) ||
		errors.Is(err, ErrInvalidMoney) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidMonth) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrNoDueDate) ||
		errors.Is(err, ErrUnknownCategory) ||
		errors.Is(err, ErrNothingToAllocate)
}

// IsConflict returns true if the request collides with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrEntryLocked) ||
		errors.Is(err, ErrDuplicateInvoice) ||
		errors.Is(err, ErrDuplicateSubmission) ||
		errors.Is(err, ErrDuplicateDefinition) ||
		errors.Is(err, ErrSameAccountTransfer)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStudentNotFound) ||
		errors.Is(err, ErrClassNotFound) ||
		errors.Is(err, ErrDefinitionNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}
