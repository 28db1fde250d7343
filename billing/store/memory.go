// Package store provides in-memory billing.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/pesantren-billing/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a billing.TxStore backed by maps. Safe for concurrent use.
type Memory struct {
	mu sync.RWMutex
	s  *state
}

var _ billing.TxStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{s: newState()}
}

// state holds the data. Its methods assume the caller holds the lock.
type state struct {
	students    map[billing.StudentID]billing.Student
	classes     map[billing.ClassName]billing.Class
	definitions map[billing.DefinitionID]billing.BillDefinition
	invoices    map[billing.InvoiceID]billing.Invoice
	invoiceSeq  map[billing.InvoiceID]int // insertion order
	payments    map[billing.PaymentID]billing.Payment
	idempotency map[string]billing.PaymentID
	accounts    map[billing.AccountID]billing.LedgerAccount
	entries     map[billing.EntryID]billing.LedgerEntry
	entrySeq    map[billing.EntryID]int
	seq         int
}

func newState() *state {
	return &state{
		students:    make(map[billing.StudentID]billing.Student),
		classes:     make(map[billing.ClassName]billing.Class),
		definitions: make(map[billing.DefinitionID]billing.BillDefinition),
		invoices:    make(map[billing.InvoiceID]billing.Invoice),
		invoiceSeq:  make(map[billing.InvoiceID]int),
		payments:    make(map[billing.PaymentID]billing.Payment),
		idempotency: make(map[string]billing.PaymentID),
		accounts:    make(map[billing.AccountID]billing.LedgerAccount),
		entries:     make(map[billing.EntryID]billing.LedgerEntry),
		entrySeq:    make(map[billing.EntryID]int),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.students {
		c.students[k] = v
	}
	for k, v := range s.classes {
		c.classes[k] = v
	}
	for k, v := range s.definitions {
		c.definitions[k] = v
	}
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	for k, v := range s.invoiceSeq {
		c.invoiceSeq[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	for k, v := range s.entrySeq {
		c.entrySeq[k] = v
	}
	c.seq = s.seq
	return c
}

// ===== Students =====

func (s *state) ListStudents(_ context.Context, filter billing.StudentFilter) ([]billing.Student, error) {
	var result []billing.Student
	for _, st := range s.students {
		if filter.Matches(st) {
			result = append(result, st)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ClassName != result[j].ClassName {
			return result[i].ClassName < result[j].ClassName
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (s *state) GetStudent(_ context.Context, id billing.StudentID) (billing.Student, error) {
	st, ok := s.students[id]
	if !ok {
		return billing.Student{}, fmt.Errorf("%w: %s", billing.ErrStudentNotFound, id)
	}
	return st, nil
}

func (s *state) SaveStudent(_ context.Context, st billing.Student) error {
	s.students[st.ID] = st
	return nil
}

func (s *state) ListClasses(_ context.Context) ([]billing.Class, error) {
	result := make([]billing.Class, 0, len(s.classes))
	for _, c := range s.classes {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Level != result[j].Level {
			return result[i].Level < result[j].Level
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (s *state) SaveClass(_ context.Context, c billing.Class) error {
	s.classes[c.Name] = c
	return nil
}

// ===== Definitions =====

func (s *state) SaveDefinition(_ context.Context, def billing.BillDefinition) error {
	s.definitions[def.ID] = def
	return nil
}

func (s *state) GetDefinition(_ context.Context, id billing.DefinitionID) (billing.BillDefinition, error) {
	def, ok := s.definitions[id]
	if !ok {
		return billing.BillDefinition{}, fmt.Errorf("%w: %s", billing.ErrDefinitionNotFound, id)
	}
	return def, nil
}

func (s *state) ListDefinitions(_ context.Context) ([]billing.BillDefinition, error) {
	result := make([]billing.BillDefinition, 0, len(s.definitions))
	for _, def := range s.definitions {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// ===== Invoices =====

func (s *state) GetExistingInvoices(ctx context.Context, defID billing.DefinitionID) ([]billing.Invoice, error) {
	return s.ListInvoices(ctx, billing.InvoiceFilter{DefinitionID: defID})
}

// InsertInvoices checks every invoice before writing any of them. A
// root is refused while any invoice, root or split sibling, holds its
// slot.
func (s *state) InsertInvoices(_ context.Context, invoices []billing.Invoice) error {
	taken := make(map[billing.InvoiceKey]bool, len(s.invoices))
	for _, inv := range s.invoices {
		taken[inv.Key()] = true
	}
	ids := make(map[billing.InvoiceID]bool, len(invoices))
	for _, inv := range invoices {
		if _, exists := s.invoices[inv.ID]; exists || ids[inv.ID] {
			return fmt.Errorf("invoice id %s already exists", inv.ID)
		}
		ids[inv.ID] = true
		if inv.ParentID == "" && taken[inv.Key()] {
			return &billing.DuplicateInvoiceError{Key: inv.Key()}
		}
		taken[inv.Key()] = true
	}
	for _, inv := range invoices {
		s.seq++
		s.invoices[inv.ID] = inv
		s.invoiceSeq[inv.ID] = s.seq
	}
	return nil
}

func (s *state) UpdateInvoice(_ context.Context, id billing.InvoiceID, patch billing.InvoicePatch) (billing.Invoice, error) {
	inv, ok := s.invoices[id]
	if !ok {
		return billing.Invoice{}, fmt.Errorf("%w: %s", billing.ErrInvoiceNotFound, id)
	}
	inv = patch.Apply(inv)
	s.invoices[id] = inv
	return inv, nil
}

func (s *state) GetInvoice(_ context.Context, id billing.InvoiceID) (billing.Invoice, error) {
	inv, ok := s.invoices[id]
	if !ok {
		return billing.Invoice{}, fmt.Errorf("%w: %s", billing.ErrInvoiceNotFound, id)
	}
	return inv, nil
}

// ListInvoices orders by due date, then insertion.
func (s *state) ListInvoices(_ context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	var result []billing.Invoice
	for _, inv := range s.invoices {
		if filter.Matches(inv) {
			result = append(result, inv)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].DueDate.Equal(result[j].DueDate) {
			return result[i].DueDate.Before(result[j].DueDate)
		}
		return s.invoiceSeq[result[i].ID] < s.invoiceSeq[result[j].ID]
	})
	return result, nil
}

func (s *state) DeleteInvoices(_ context.Context, ids []billing.InvoiceID) error {
	for _, id := range ids {
		if _, ok := s.invoices[id]; !ok {
			return fmt.Errorf("%w: %s", billing.ErrInvoiceNotFound, id)
		}
	}
	for _, id := range ids {
		delete(s.invoices, id)
		delete(s.invoiceSeq, id)
	}
	return nil
}

// ===== Payments =====

func (s *state) InsertPayment(_ context.Context, p billing.Payment) error {
	if _, dup := s.idempotency[p.IdempotencyKey]; dup {
		return fmt.Errorf("%w: key %s", billing.ErrDuplicateSubmission, p.IdempotencyKey)
	}
	s.payments[p.ID] = p
	s.idempotency[p.IdempotencyKey] = p.ID
	return nil
}

func (s *state) GetPayment(_ context.Context, id billing.PaymentID) (billing.Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return billing.Payment{}, fmt.Errorf("%w: %s", billing.ErrPaymentNotFound, id)
	}
	return p, nil
}

func (s *state) PaymentExists(_ context.Context, key string) (bool, error) {
	_, ok := s.idempotency[key]
	return ok, nil
}

// ===== Ledger =====

func (s *state) SaveAccount(_ context.Context, a billing.LedgerAccount) error {
	s.accounts[a.ID] = a
	return nil
}

func (s *state) GetAccount(_ context.Context, id billing.AccountID) (billing.LedgerAccount, error) {
	a, ok := s.accounts[id]
	if !ok {
		return billing.LedgerAccount{}, fmt.Errorf("%w: %s", billing.ErrAccountNotFound, id)
	}
	return a, nil
}

func (s *state) ListAccounts(_ context.Context) ([]billing.LedgerAccount, error) {
	result := make([]billing.LedgerAccount, 0, len(s.accounts))
	for _, a := range s.accounts {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// InsertLedgerEntries checks every entry before writing any of them.
func (s *state) InsertLedgerEntries(_ context.Context, entries []billing.LedgerEntry) error {
	ids := make(map[billing.EntryID]bool, len(entries))
	for _, e := range entries {
		if _, exists := s.entries[e.ID]; exists || ids[e.ID] {
			return fmt.Errorf("ledger entry id %s already exists", e.ID)
		}
		if _, ok := s.accounts[e.AccountID]; !ok {
			return fmt.Errorf("%w: %s", billing.ErrAccountNotFound, e.AccountID)
		}
		ids[e.ID] = true
	}
	for _, e := range entries {
		s.seq++
		s.entries[e.ID] = e
		s.entrySeq[e.ID] = s.seq
	}
	return nil
}

func (s *state) DeleteLedgerEntry(_ context.Context, id billing.EntryID) error {
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", billing.ErrEntryNotFound, id)
	}
	if e.Locked() {
		return &billing.LockedEntryError{EntryID: id, PaymentID: e.PaymentID}
	}
	delete(s.entries, id)
	delete(s.entrySeq, id)
	return nil
}

func (s *state) GetLedgerEntry(_ context.Context, id billing.EntryID) (billing.LedgerEntry, error) {
	e, ok := s.entries[id]
	if !ok {
		return billing.LedgerEntry{}, fmt.Errorf("%w: %s", billing.ErrEntryNotFound, id)
	}
	return e, nil
}

// ListLedgerEntries orders by date, then insertion.
func (s *state) ListLedgerEntries(_ context.Context, account billing.AccountID) ([]billing.LedgerEntry, error) {
	var result []billing.LedgerEntry
	for _, e := range s.entries {
		if e.AccountID == account {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return s.entrySeq[result[i].ID] < s.entrySeq[result[j].ID]
	})
	return result, nil
}

// =============================================================================
// LOCKED WRAPPERS
// =============================================================================

func (m *Memory) ListStudents(ctx context.Context, f billing.StudentFilter) ([]billing.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListStudents(ctx, f)
}

func (m *Memory) GetStudent(ctx context.Context, id billing.StudentID) (billing.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetStudent(ctx, id)
}

func (m *Memory) SaveStudent(ctx context.Context, st billing.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveStudent(ctx, st)
}

func (m *Memory) ListClasses(ctx context.Context) ([]billing.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListClasses(ctx)
}

func (m *Memory) SaveClass(ctx context.Context, c billing.Class) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveClass(ctx, c)
}

func (m *Memory) SaveDefinition(ctx context.Context, def billing.BillDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveDefinition(ctx, def)
}

func (m *Memory) GetDefinition(ctx context.Context, id billing.DefinitionID) (billing.BillDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetDefinition(ctx, id)
}

func (m *Memory) ListDefinitions(ctx context.Context) ([]billing.BillDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListDefinitions(ctx)
}

func (m *Memory) GetExistingInvoices(ctx context.Context, id billing.DefinitionID) ([]billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetExistingInvoices(ctx, id)
}

func (m *Memory) InsertInvoices(ctx context.Context, invoices []billing.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.InsertInvoices(ctx, invoices)
}

func (m *Memory) UpdateInvoice(ctx context.Context, id billing.InvoiceID, p billing.InvoicePatch) (billing.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.UpdateInvoice(ctx, id, p)
}

func (m *Memory) GetInvoice(ctx context.Context, id billing.InvoiceID) (billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetInvoice(ctx, id)
}

func (m *Memory) ListInvoices(ctx context.Context, f billing.InvoiceFilter) ([]billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListInvoices(ctx, f)
}

// DeleteInvoices removes all ids or none.
func (m *Memory) DeleteInvoices(ctx context.Context, ids []billing.InvoiceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.DeleteInvoices(ctx, ids)
}

func (m *Memory) InsertPayment(ctx context.Context, p billing.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.InsertPayment(ctx, p)
}

func (m *Memory) GetPayment(ctx context.Context, id billing.PaymentID) (billing.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetPayment(ctx, id)
}

func (m *Memory) PaymentExists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.PaymentExists(ctx, key)
}

func (m *Memory) SaveAccount(ctx context.Context, a billing.LedgerAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveAccount(ctx, a)
}

func (m *Memory) GetAccount(ctx context.Context, id billing.AccountID) (billing.LedgerAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetAccount(ctx, id)
}

func (m *Memory) ListAccounts(ctx context.Context) ([]billing.LedgerAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListAccounts(ctx)
}

func (m *Memory) InsertLedgerEntries(ctx context.Context, entries []billing.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.InsertLedgerEntries(ctx, entries)
}

func (m *Memory) DeleteLedgerEntry(ctx context.Context, id billing.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.DeleteLedgerEntry(ctx, id)
}

func (m *Memory) GetLedgerEntry(ctx context.Context, id billing.EntryID) (billing.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetLedgerEntry(ctx, id)
}

func (m *Memory) ListLedgerEntries(ctx context.Context, id billing.AccountID) ([]billing.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListLedgerEntries(ctx, id)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction, simulated with a snapshot
// that replaces the live state only when fn succeeds.
func (m *Memory) WithTx(_ context.Context, fn func(billing.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	working := m.s.clone()
	if err := fn(working); err != nil {
		return err
	}
	m.s = working
	return nil
}
