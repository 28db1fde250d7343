/*
store.go - Persistence interfaces for the billing core

PURPOSE:
  Defines the boundary between the billing logic and the database.
  Services only ever talk to these interfaces.

KEY INTERFACES:
  StudentStore:    students and classes
  DefinitionStore: bill definitions
  InvoiceStore:    generated invoices
  PaymentStore:    payments, guarded by idempotency key
  LedgerStore:     buku kas accounts and entries
  TxStore:         WithTx for atomic multi-table writes

IDEMPOTENCY:
  Invoices are unique per (student, definition, month, year) among root
  invoices (ParentID empty). Payments are unique per idempotency key.
  A repeated write is rejected with ErrDuplicateInvoice or
  ErrDuplicateSubmission, never silently ignored.

ATOMIC BATCHES:
  InsertInvoices and InsertLedgerEntries are all-or-nothing, whether or
  not they run inside WithTx. Both legs of a transfer are written or
  neither is.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go:    SQLite
  - billing/store/memory.go:   in-memory, for tests and the demo

SEE ALSO:
  - generator.go, payment.go, ledger_service.go: the callers
*/
package billing

import "context"

// =============================================================================
// STORES
// =============================================================================

type StudentStore interface {
	ListStudents(ctx context.Context, filter StudentFilter) ([]Student, error)
	GetStudent(ctx context.Context, id StudentID) (Student, error)
	SaveStudent(ctx context.Context, s Student) error
	ListClasses(ctx context.Context) ([]Class, error)
	SaveClass(ctx context.Context, c Class) error
}

type DefinitionStore interface {
	SaveDefinition(ctx context.Context, def BillDefinition) error
	GetDefinition(ctx context.Context, id DefinitionID) (BillDefinition, error)
	ListDefinitions(ctx context.Context) ([]BillDefinition, error)
}

type InvoiceStore interface {
	// GetExistingInvoices returns every invoice of a definition.
	GetExistingInvoices(ctx context.Context, defID DefinitionID) ([]Invoice, error)

	// InsertInvoices writes all invoices or none.
	InsertInvoices(ctx context.Context, invoices []Invoice) error

	UpdateInvoice(ctx context.Context, id InvoiceID, patch InvoicePatch) (Invoice, error)
	GetInvoice(ctx context.Context, id InvoiceID) (Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
	DeleteInvoices(ctx context.Context, ids []InvoiceID) error
}

type PaymentStore interface {
	// InsertPayment fails with ErrDuplicateSubmission when the
	// idempotency key was already recorded.
	InsertPayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id PaymentID) (Payment, error)
	PaymentExists(ctx context.Context, idempotencyKey string) (bool, error)
}

type LedgerStore interface {
	SaveAccount(ctx context.Context, a LedgerAccount) error
	GetAccount(ctx context.Context, id AccountID) (LedgerAccount, error)
	ListAccounts(ctx context.Context) ([]LedgerAccount, error)

	// InsertLedgerEntries writes all entries or none.
	InsertLedgerEntries(ctx context.Context, entries []LedgerEntry) error

	// DeleteLedgerEntry fails with a *LockedEntryError when the entry
	// carries a payment back-reference.
	DeleteLedgerEntry(ctx context.Context, id EntryID) error

	GetLedgerEntry(ctx context.Context, id EntryID) (LedgerEntry, error)
	ListLedgerEntries(ctx context.Context, account AccountID) ([]LedgerEntry, error)
}

// Store is everything the services need.
type Store interface {
	StudentStore
	DefinitionStore
	InvoiceStore
	PaymentStore
	LedgerStore
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
