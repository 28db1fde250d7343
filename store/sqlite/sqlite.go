/*
Package sqlite provides a SQLite-backed implementation of billing.TxStore.

PURPOSE:
  Persists students, bill definitions, invoices, payments and buku kas
  entries. Services reach it only through the billing store interfaces.

KEY TABLES:
  classes, students:  santri and their class context
  bill_definitions:   definitions, config kept as factory JSON
  invoices:           generated tagihan, split siblings carry parent_id
  payments:           one row per submission, unique idempotency_key
  ledger_accounts:    buku kas
  ledger_entries:     cash movements, locked when payment_id is set

INDEXES:
  - invoice_slots: PRIMARY KEY (student, definition, month, year). A
    root insert claims the slot, split siblings keep it claimed, and
    DeleteInvoices releases it once no invoice carries the key. This is
    the authoritative guard against double generation, including after
    a partial payment has replaced the root with siblings.
  - idx_invoices_root_key: at most one root invoice per slot.
  - payments.idempotency_key UNIQUE: guard against double payment.
  - trg_ledger_entries_locked: refuses DELETE of payment-linked entries
    even if a caller bypasses DeleteLedgerEntry.

ATOMICITY:
  InsertInvoices, DeleteInvoices and InsertLedgerEntries open their own
  transaction when they are not already running inside WithTx.

WAL MODE:
  SQLite is opened with WAL and foreign keys on. The pool is limited to
  one connection, which serialises writers and keeps ":memory:"
  databases shared across calls.

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - billing/store.go:        interface definitions
  - billing/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/pesantren-billing/billing"
	"github.com/warp/pesantren-billing/factory"
)

const timeLayout = time.RFC3339Nano

// Store implements billing.TxStore using SQLite.
type Store struct {
	*queries
	db *sql.DB
	mu sync.Mutex
}

var _ billing.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := NewFromDB(db)
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewFromDB wraps an already open database without migrating it.
func NewFromDB(db *sql.DB) *Store {
	return &Store{queries: &queries{q: db, db: db}, db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS classes (
		name TEXT PRIMARY KEY,
		level INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		nis TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		class_name TEXT NOT NULL,
		dormitory TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		transfer_out_date TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_students_class ON students(class_name);

	CREATE TABLE IF NOT EXISTS bill_definitions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		config_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		definition_id TEXT NOT NULL,
		class_name TEXT NOT NULL,
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		due_date TEXT NOT NULL,
		status TEXT NOT NULL,
		parent_id TEXT,
		paid_at TEXT,
		received_by TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Root invoices are unique per billing slot. Split siblings share the
	-- key of the invoice they replaced.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_root_key
		ON invoices(student_id, definition_id, month, year)
		WHERE parent_id IS NULL;

	-- A slot stays taken while any invoice carries its key, split siblings
	-- included. Rows go away only when the last such invoice is deleted.
	CREATE TABLE IF NOT EXISTS invoice_slots (
		student_id TEXT NOT NULL,
		definition_id TEXT NOT NULL,
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		PRIMARY KEY (student_id, definition_id, month, year)
	);

	INSERT OR IGNORE INTO invoice_slots (student_id, definition_id, month, year)
		SELECT DISTINCT student_id, definition_id, month, year FROM invoices;

	CREATE INDEX IF NOT EXISTS idx_invoices_definition ON invoices(definition_id);
	CREATE INDEX IF NOT EXISTS idx_invoices_student_due ON invoices(student_id, due_date);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		method TEXT NOT NULL,
		account_id TEXT NOT NULL DEFAULT '',
		tendered TEXT NOT NULL,
		applied TEXT NOT NULL,
		unapplied TEXT NOT NULL,
		received_by TEXT NOT NULL,
		idempotency_key TEXT NOT NULL UNIQUE,
		date TEXT NOT NULL,
		allocations_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger_accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES ledger_accounts(id),
		kind TEXT NOT NULL CHECK (kind IN ('pemasukan', 'pengeluaran')),
		amount TEXT NOT NULL,
		method TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		payment_id TEXT,
		transfer_id TEXT,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_account_date ON ledger_entries(account_id, date);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_payment ON ledger_entries(payment_id)
		WHERE payment_id IS NOT NULL;

	CREATE TRIGGER IF NOT EXISTS trg_ledger_entries_locked
		BEFORE DELETE ON ledger_entries
		WHEN OLD.payment_id IS NOT NULL
	BEGIN
		SELECT RAISE(ABORT, 'ledger entry is locked by a payment');
	END;
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (billing.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store billing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements billing.Store over a querier. db is set only
// outside a transaction.
type queries struct {
	q  querier
	db *sql.DB
}

// atomic runs fn in a transaction, reusing the current one if any.
func (qs *queries) atomic(ctx context.Context, fn func(querier) error) error {
	if qs.db == nil {
		return fn(qs.q)
	}
	tx, err := qs.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// STUDENTS AND CLASSES
// =============================================================================

const studentColumns = `id, nis, name, class_name, dormitory, status, transfer_out_date, created_at, updated_at`

func (qs *queries) ListStudents(ctx context.Context, filter billing.StudentFilter) ([]billing.Student, error) {
	var (
		where []string
		args  []any
	)
	if filter.ClassName != "" {
		where = append(where, "class_name = ?")
		args = append(args, filter.ClassName)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		where = append(where, "(LOWER(name) LIKE ? OR LOWER(nis) LIKE ?)")
		like := "%" + strings.ToLower(q) + "%"
		args = append(args, like, like)
	}
	query := "SELECT " + studentColumns + " FROM students"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY class_name, name"

	rows, err := qs.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()

	var students []billing.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

func (qs *queries) GetStudent(ctx context.Context, id billing.StudentID) (billing.Student, error) {
	row := qs.q.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE id = ?", id)
	st, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Student{}, fmt.Errorf("%w: %s", billing.ErrStudentNotFound, id)
	}
	return st, err
}

func (qs *queries) SaveStudent(ctx context.Context, st billing.Student) error {
	var transferOut sql.NullString
	if st.TransferOut != nil {
		transferOut = nullString(st.TransferOut.String())
	}
	_, err := qs.q.ExecContext(ctx, `
		INSERT INTO students (`+studentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			nis = excluded.nis,
			name = excluded.name,
			class_name = excluded.class_name,
			dormitory = excluded.dormitory,
			status = excluded.status,
			transfer_out_date = excluded.transfer_out_date,
			updated_at = excluded.updated_at
	`,
		st.ID, st.NIS, st.Name, st.ClassName, st.Dormitory, st.Status, transferOut,
		formatTime(st.CreatedAt), formatTime(st.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save student: %w", err)
	}
	return nil
}

func (qs *queries) ListClasses(ctx context.Context) ([]billing.Class, error) {
	rows, err := qs.q.QueryContext(ctx, "SELECT name, level FROM classes ORDER BY level, name")
	if err != nil {
		return nil, fmt.Errorf("failed to query classes: %w", err)
	}
	defer rows.Close()

	var classes []billing.Class
	for rows.Next() {
		var c billing.Class
		if err := rows.Scan(&c.Name, &c.Level); err != nil {
			return nil, fmt.Errorf("failed to scan class: %w", err)
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

func (qs *queries) SaveClass(ctx context.Context, c billing.Class) error {
	_, err := qs.q.ExecContext(ctx, `
		INSERT INTO classes (name, level) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET level = excluded.level
	`, c.Name, c.Level)
	if err != nil {
		return fmt.Errorf("failed to save class: %w", err)
	}
	return nil
}

// =============================================================================
// BILL DEFINITIONS
// =============================================================================

func (qs *queries) SaveDefinition(ctx context.Context, def billing.BillDefinition) error {
	config, err := factory.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to encode definition: %w", err)
	}
	_, err = qs.q.ExecContext(ctx, `
		INSERT INTO bill_definitions (id, name, category, config_json, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			config_json = excluded.config_json
	`, def.ID, def.Name, def.Category, string(config), formatTime(def.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save definition: %w", err)
	}
	return nil
}

func (qs *queries) GetDefinition(ctx context.Context, id billing.DefinitionID) (billing.BillDefinition, error) {
	var config string
	err := qs.q.QueryRowContext(ctx, "SELECT config_json FROM bill_definitions WHERE id = ?", id).Scan(&config)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.BillDefinition{}, fmt.Errorf("%w: %s", billing.ErrDefinitionNotFound, id)
	}
	if err != nil {
		return billing.BillDefinition{}, fmt.Errorf("failed to query definition: %w", err)
	}
	return decodeDefinition(config)
}

func (qs *queries) ListDefinitions(ctx context.Context) ([]billing.BillDefinition, error) {
	rows, err := qs.q.QueryContext(ctx, "SELECT config_json FROM bill_definitions ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query definitions: %w", err)
	}
	defer rows.Close()

	var defs []billing.BillDefinition
	for rows.Next() {
		var config string
		if err := rows.Scan(&config); err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}
		def, err := decodeDefinition(config)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// decodeDefinition keeps the stored month order.
func decodeDefinition(config string) (billing.BillDefinition, error) {
	def, err := factory.DefinitionFactory{}.Parse([]byte(config))
	if err != nil {
		return billing.BillDefinition{}, fmt.Errorf("failed to decode definition: %w", err)
	}
	return def, nil
}

// =============================================================================
// INVOICES
// =============================================================================

const invoiceColumns = `id, student_id, definition_id, class_name, month, year, amount, paid_amount,
	due_date, status, parent_id, paid_at, received_by, created_by, created_at, updated_at`

func (qs *queries) GetExistingInvoices(ctx context.Context, defID billing.DefinitionID) ([]billing.Invoice, error) {
	return qs.ListInvoices(ctx, billing.InvoiceFilter{DefinitionID: defID})
}

// InsertInvoices writes all invoices or none.
func (qs *queries) InsertInvoices(ctx context.Context, invoices []billing.Invoice) error {
	if len(invoices) == 0 {
		return nil
	}
	return qs.atomic(ctx, func(q querier) error {
		for _, inv := range invoices {
			if err := insertInvoice(ctx, q, inv); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertInvoice(ctx context.Context, q querier, inv billing.Invoice) error {
	if err := claimSlot(ctx, q, inv); err != nil {
		return err
	}
	var paidAt sql.NullString
	if inv.PaidAt != nil {
		paidAt = nullString(formatTime(*inv.PaidAt))
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.ID, inv.StudentID, inv.DefinitionID, inv.ClassName, int(inv.Month), inv.Year,
		inv.Amount.String(), inv.PaidAmount.String(), inv.DueDate.String(), inv.Status,
		nullString(string(inv.ParentID)), paidAt, inv.ReceivedBy, inv.CreatedBy,
		formatTime(inv.CreatedAt), formatTime(inv.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) && inv.ParentID == "" {
			return &billing.DuplicateInvoiceError{Key: inv.Key()}
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

// claimSlot takes the billing slot for a root invoice and refuses one
// that is already taken. Siblings re-take the slot their parent held.
func claimSlot(ctx context.Context, q querier, inv billing.Invoice) error {
	stmt := "INSERT INTO invoice_slots (student_id, definition_id, month, year) VALUES (?, ?, ?, ?)"
	if inv.ParentID != "" {
		stmt = "INSERT OR IGNORE INTO invoice_slots (student_id, definition_id, month, year) VALUES (?, ?, ?, ?)"
	}
	_, err := q.ExecContext(ctx, stmt, inv.StudentID, inv.DefinitionID, int(inv.Month), inv.Year)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &billing.DuplicateInvoiceError{Key: inv.Key()}
		}
		return fmt.Errorf("failed to claim invoice slot: %w", err)
	}
	return nil
}

// releaseSlot frees a slot once no invoice carries its key.
func releaseSlot(ctx context.Context, q querier, key billing.InvoiceKey) error {
	_, err := q.ExecContext(ctx, `
		DELETE FROM invoice_slots
		WHERE student_id = ? AND definition_id = ? AND month = ? AND year = ?
		  AND NOT EXISTS (
			SELECT 1 FROM invoices
			WHERE student_id = ? AND definition_id = ? AND month = ? AND year = ?
		  )
	`, key.StudentID, key.DefinitionID, int(key.Month), key.Year,
		key.StudentID, key.DefinitionID, int(key.Month), key.Year)
	if err != nil {
		return fmt.Errorf("failed to release invoice slot: %w", err)
	}
	return nil
}

func (qs *queries) UpdateInvoice(ctx context.Context, id billing.InvoiceID, patch billing.InvoicePatch) (billing.Invoice, error) {
	var updated billing.Invoice
	err := qs.atomic(ctx, func(q querier) error {
		inv, err := getInvoice(ctx, q, id)
		if err != nil {
			return err
		}
		updated = patch.Apply(inv)
		updated.UpdatedAt = time.Now().UTC()
		var paidAt sql.NullString
		if updated.PaidAt != nil {
			paidAt = nullString(formatTime(*updated.PaidAt))
		}
		_, err = q.ExecContext(ctx, `
			UPDATE invoices SET paid_amount = ?, status = ?, paid_at = ?, received_by = ?, updated_at = ?
			WHERE id = ?
		`, updated.PaidAmount.String(), updated.Status, paidAt, updated.ReceivedBy, formatTime(updated.UpdatedAt), id)
		if err != nil {
			return fmt.Errorf("failed to update invoice: %w", err)
		}
		return nil
	})
	if err != nil {
		return billing.Invoice{}, err
	}
	return updated, nil
}

func (qs *queries) GetInvoice(ctx context.Context, id billing.InvoiceID) (billing.Invoice, error) {
	return getInvoice(ctx, qs.q, id)
}

func getInvoice(ctx context.Context, q querier, id billing.InvoiceID) (billing.Invoice, error) {
	row := q.QueryRowContext(ctx, "SELECT "+invoiceColumns+" FROM invoices WHERE id = ?", id)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Invoice{}, fmt.Errorf("%w: %s", billing.ErrInvoiceNotFound, id)
	}
	return inv, err
}

// ListInvoices orders by due date, then insertion.
func (qs *queries) ListInvoices(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	var (
		where []string
		args  []any
	)
	if filter.StudentID != "" {
		where = append(where, "student_id = ?")
		args = append(args, filter.StudentID)
	}
	if filter.DefinitionID != "" {
		where = append(where, "definition_id = ?")
		args = append(args, filter.DefinitionID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if !filter.DueAfter.IsZero() {
		where = append(where, "due_date > ?")
		args = append(args, filter.DueAfter.String())
	}
	query := "SELECT " + invoiceColumns + " FROM invoices"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY due_date, rowid"

	rows, err := qs.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// DeleteInvoices removes all ids or none. A split deletes the original
// and inserts its siblings in one transaction, so the slot is released
// and re-taken before any other writer can see it free.
func (qs *queries) DeleteInvoices(ctx context.Context, ids []billing.InvoiceID) error {
	if len(ids) == 0 {
		return nil
	}
	return qs.atomic(ctx, func(q querier) error {
		for _, id := range ids {
			inv, err := getInvoice(ctx, q, id)
			if err != nil {
				return err
			}
			if _, err := q.ExecContext(ctx, "DELETE FROM invoices WHERE id = ?", id); err != nil {
				return fmt.Errorf("failed to delete invoice: %w", err)
			}
			if err := releaseSlot(ctx, q, inv.Key()); err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (qs *queries) InsertPayment(ctx context.Context, p billing.Payment) error {
	allocations, err := json.Marshal(p.Allocations)
	if err != nil {
		return fmt.Errorf("failed to encode allocations: %w", err)
	}
	_, err = qs.q.ExecContext(ctx, `
		INSERT INTO payments (id, student_id, method, account_id, tendered, applied, unapplied,
			received_by, idempotency_key, date, allocations_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.StudentID, p.Method, p.AccountID, p.Tendered.String(), p.Applied.String(),
		p.Unapplied.String(), p.ReceivedBy, p.IdempotencyKey, p.Date.String(),
		string(allocations), formatTime(p.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: key %s", billing.ErrDuplicateSubmission, p.IdempotencyKey)
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (qs *queries) GetPayment(ctx context.Context, id billing.PaymentID) (billing.Payment, error) {
	var (
		p                                  billing.Payment
		tendered, applied, unapplied, date string
		allocations, createdAt             string
	)
	err := qs.q.QueryRowContext(ctx, `
		SELECT id, student_id, method, account_id, tendered, applied, unapplied,
		       received_by, idempotency_key, date, allocations_json, created_at
		FROM payments WHERE id = ?
	`, id).Scan(
		&p.ID, &p.StudentID, &p.Method, &p.AccountID, &tendered, &applied, &unapplied,
		&p.ReceivedBy, &p.IdempotencyKey, &date, &allocations, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Payment{}, fmt.Errorf("%w: %s", billing.ErrPaymentNotFound, id)
	}
	if err != nil {
		return billing.Payment{}, fmt.Errorf("failed to query payment: %w", err)
	}
	var dec decoder
	p.Tendered = dec.money("tendered", tendered)
	p.Applied = dec.money("applied", applied)
	p.Unapplied = dec.money("unapplied", unapplied)
	p.Date = dec.date("date", date)
	p.CreatedAt = dec.timestamp("created_at", createdAt)
	if dec.err != nil {
		return billing.Payment{}, fmt.Errorf("payment %s: %w", p.ID, dec.err)
	}
	if err := json.Unmarshal([]byte(allocations), &p.Allocations); err != nil {
		return billing.Payment{}, fmt.Errorf("failed to decode allocations: %w", err)
	}
	return p, nil
}

func (qs *queries) PaymentExists(ctx context.Context, key string) (bool, error) {
	var count int
	err := qs.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM payments WHERE idempotency_key = ?", key,
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// LEDGER
// =============================================================================

func (qs *queries) SaveAccount(ctx context.Context, a billing.LedgerAccount) error {
	_, err := qs.q.ExecContext(ctx, `
		INSERT INTO ledger_accounts (id, name, description, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description
	`, a.ID, a.Name, a.Description, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (qs *queries) GetAccount(ctx context.Context, id billing.AccountID) (billing.LedgerAccount, error) {
	var (
		a         billing.LedgerAccount
		createdAt string
	)
	err := qs.q.QueryRowContext(ctx,
		"SELECT id, name, description, created_at FROM ledger_accounts WHERE id = ?", id,
	).Scan(&a.ID, &a.Name, &a.Description, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.LedgerAccount{}, fmt.Errorf("%w: %s", billing.ErrAccountNotFound, id)
	}
	if err != nil {
		return billing.LedgerAccount{}, fmt.Errorf("failed to query account: %w", err)
	}
	var dec decoder
	a.CreatedAt = dec.timestamp("created_at", createdAt)
	if dec.err != nil {
		return billing.LedgerAccount{}, fmt.Errorf("account %s: %w", a.ID, dec.err)
	}
	return a, nil
}

func (qs *queries) ListAccounts(ctx context.Context) ([]billing.LedgerAccount, error) {
	rows, err := qs.q.QueryContext(ctx, "SELECT id, name, description, created_at FROM ledger_accounts ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []billing.LedgerAccount
	for rows.Next() {
		var (
			a         billing.LedgerAccount
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		var dec decoder
		a.CreatedAt = dec.timestamp("created_at", createdAt)
		if dec.err != nil {
			return nil, fmt.Errorf("account %s: %w", a.ID, dec.err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

const entryColumns = `id, account_id, kind, amount, method, category, description, date,
	payment_id, transfer_id, created_by, created_at`

// InsertLedgerEntries writes all entries or none.
func (qs *queries) InsertLedgerEntries(ctx context.Context, entries []billing.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return qs.atomic(ctx, func(q querier) error {
		for _, e := range entries {
			_, err := q.ExecContext(ctx, `
				INSERT INTO ledger_entries (`+entryColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				e.ID, e.AccountID, e.Kind, e.Amount.String(), e.Method, e.Category, e.Description,
				e.Date.String(), nullString(string(e.PaymentID)), nullString(string(e.TransferID)),
				e.CreatedBy, formatTime(e.CreatedAt),
			)
			if err != nil {
				if isForeignKeyError(err) {
					return fmt.Errorf("%w: %s", billing.ErrAccountNotFound, e.AccountID)
				}
				return fmt.Errorf("failed to insert ledger entry: %w", err)
			}
		}
		return nil
	})
}

func (qs *queries) DeleteLedgerEntry(ctx context.Context, id billing.EntryID) error {
	return qs.atomic(ctx, func(q querier) error {
		var paymentID sql.NullString
		err := q.QueryRowContext(ctx, "SELECT payment_id FROM ledger_entries WHERE id = ?", id).Scan(&paymentID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", billing.ErrEntryNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to query ledger entry: %w", err)
		}
		if paymentID.Valid && paymentID.String != "" {
			return &billing.LockedEntryError{EntryID: id, PaymentID: billing.PaymentID(paymentID.String)}
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM ledger_entries WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete ledger entry: %w", err)
		}
		return nil
	})
}

func (qs *queries) GetLedgerEntry(ctx context.Context, id billing.EntryID) (billing.LedgerEntry, error) {
	row := qs.q.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM ledger_entries WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.LedgerEntry{}, fmt.Errorf("%w: %s", billing.ErrEntryNotFound, id)
	}
	return e, err
}

// ListLedgerEntries orders by date, then insertion.
func (qs *queries) ListLedgerEntries(ctx context.Context, account billing.AccountID) ([]billing.LedgerEntry, error) {
	rows, err := qs.q.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM ledger_entries WHERE account_id = ? ORDER BY date, rowid", account)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []billing.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(row scanner) (billing.Student, error) {
	var (
		st                   billing.Student
		transferOut          sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&st.ID, &st.NIS, &st.Name, &st.ClassName, &st.Dormitory, &st.Status,
		&transferOut, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return st, err
		}
		return st, fmt.Errorf("failed to scan student: %w", err)
	}
	var dec decoder
	if transferOut.Valid {
		d := dec.date("transfer_out", transferOut.String)
		st.TransferOut = &d
	}
	st.CreatedAt = dec.timestamp("created_at", createdAt)
	st.UpdatedAt = dec.timestamp("updated_at", updatedAt)
	if dec.err != nil {
		return billing.Student{}, fmt.Errorf("student %s: %w", st.ID, dec.err)
	}
	return st, nil
}

func scanInvoice(row scanner) (billing.Invoice, error) {
	var (
		inv                  billing.Invoice
		month                int
		amount, paidAmount   string
		dueDate              string
		parentID, paidAt     sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&inv.ID, &inv.StudentID, &inv.DefinitionID, &inv.ClassName, &month, &inv.Year,
		&amount, &paidAmount, &dueDate, &inv.Status, &parentID, &paidAt, &inv.ReceivedBy,
		&inv.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return inv, err
		}
		return inv, fmt.Errorf("failed to scan invoice: %w", err)
	}
	var dec decoder
	inv.Month = billing.Month(month)
	inv.Amount = dec.money("amount", amount)
	inv.PaidAmount = dec.money("paid_amount", paidAmount)
	inv.DueDate = dec.date("due_date", dueDate)
	inv.ParentID = billing.InvoiceID(parentID.String)
	if paidAt.Valid {
		t := dec.timestamp("paid_at", paidAt.String)
		inv.PaidAt = &t
	}
	inv.CreatedAt = dec.timestamp("created_at", createdAt)
	inv.UpdatedAt = dec.timestamp("updated_at", updatedAt)
	if dec.err != nil {
		return billing.Invoice{}, fmt.Errorf("invoice %s: %w", inv.ID, dec.err)
	}
	return inv, nil
}

func scanEntry(row scanner) (billing.LedgerEntry, error) {
	var (
		e                     billing.LedgerEntry
		amount, date          string
		paymentID, transferID sql.NullString
		createdAt             string
	)
	err := row.Scan(&e.ID, &e.AccountID, &e.Kind, &amount, &e.Method, &e.Category, &e.Description,
		&date, &paymentID, &transferID, &e.CreatedBy, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("failed to scan ledger entry: %w", err)
	}
	var dec decoder
	e.Amount = dec.money("amount", amount)
	e.Date = dec.date("date", date)
	e.PaymentID = billing.PaymentID(paymentID.String)
	e.TransferID = billing.TransferID(transferID.String)
	e.CreatedAt = dec.timestamp("created_at", createdAt)
	if dec.err != nil {
		return billing.LedgerEntry{}, fmt.Errorf("ledger entry %s: %w", e.ID, dec.err)
	}
	return e, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// decoder converts stored text columns and keeps the first failure, so a
// corrupt row is reported instead of read as zero.
type decoder struct {
	err error
}

func (d *decoder) fail(column string, err error) {
	if d.err == nil {
		d.err = fmt.Errorf("corrupt %s column: %w", column, err)
	}
}

func (d *decoder) timestamp(column, s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		d.fail(column, err)
	}
	return t
}

// date reads "" as the zero date, which is how Date.String writes it.
func (d *decoder) date(column, s string) billing.Date {
	if s == "" {
		return billing.Date{}
	}
	v, err := billing.ParseDate(s)
	if err != nil {
		d.fail(column, err)
	}
	return v
}

func (d *decoder) money(column, s string) billing.Money {
	m, err := billing.ParseMoney(s)
	if err != nil {
		d.fail(column, err)
		return billing.Zero
	}
	return m
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isForeignKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}
