/*
ledger.go - Buku kas entries and the entry factory

PURPOSE:
  A LedgerEntry is one cash movement on one buku kas account: either
  income (pemasukan) or expense (pengeluaran). Entries are produced from
  completed payments, from transfers between accounts, and from manual
  administrative postings.

CRITICAL INVARIANTS:
  1. LOCKED: an entry that carries a PaymentID cannot be deleted
  2. DOUBLE ENTRY: a transfer is always exactly two entries, one
     pengeluaran on the source and one pemasukan on the destination,
     with the same amount, date and TransferID
  3. ALL OR NOTHING: the factory returns either every entry or an error,
     never a partial list; stores insert the list atomically

BALANCE:
  The balance of an account is never stored. It is the sum of its
  pemasukan minus the sum of its pengeluaran.

SEE ALSO:
  - ledger_service.go: persistence of entries through the store
  - payment.go:        payments that produce locked entries
*/
package billing

import (
	"fmt"
	"time"
)

// =============================================================================
// TYPES
// =============================================================================

type EntryID string
type TransferID string

type EntryKind string

const (
	EntryIncome  EntryKind = "pemasukan"
	EntryExpense EntryKind = "pengeluaran"
)

func (k EntryKind) Valid() bool { return k == EntryIncome || k == EntryExpense }

type PaymentMethod string

const (
	MethodCash     PaymentMethod = "tunai"
	MethodTransfer PaymentMethod = "transfer"
)

func (m PaymentMethod) Valid() bool { return m == MethodCash || m == MethodTransfer }

// LedgerAccount is a buku kas.
type LedgerAccount struct {
	ID          AccountID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Endpoint is one side of a transfer. Two endpoints are the same when
// both the account and the method match.
type Endpoint struct {
	AccountID AccountID     `json:"account_id"`
	Method    PaymentMethod `json:"method"`
}

type LedgerEntry struct {
	ID          EntryID       `json:"id"`
	AccountID   AccountID     `json:"account_id"`
	Kind        EntryKind     `json:"kind"`
	Amount      Money         `json:"amount"`
	Method      PaymentMethod `json:"method"`
	Category    string        `json:"category"`
	Description string        `json:"description"`
	Date        Date          `json:"date"`
	PaymentID   PaymentID     `json:"payment_id,omitempty"`
	TransferID  TransferID    `json:"transfer_id,omitempty"`
	CreatedBy   string        `json:"created_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Locked reports whether the entry is protected from deletion.
func (e LedgerEntry) Locked() bool { return e.PaymentID != "" }

// Signed is the entry's effect on its account balance.
func (e LedgerEntry) Signed() Money {
	if e.Kind == EntryExpense {
		return e.Amount.Neg()
	}
	return e.Amount
}

// AccountBalance folds entries of one account into a balance.
func AccountBalance(entries []LedgerEntry) Money {
	total := Zero
	for _, e := range entries {
		total = total.Add(e.Signed())
	}
	return total
}

// =============================================================================
// FACTORY
// =============================================================================

// Category labels used for entries that do not come from a bill definition.
const (
	CategoryTransfer = "Transfer Antar Kas"
)

// LedgerFactory builds entries. It never persists anything.
type LedgerFactory struct {
	IDs   IDGenerator
	Clock Clock
}

func NewLedgerFactory(ids IDGenerator, clock Clock) LedgerFactory {
	return LedgerFactory{IDs: idsOrDefault(ids), Clock: clock}
}

// FromPayment produces one pemasukan per allocation, each locked to the
// payment. The account is the definition's ledger account, or the
// payment's account when the definition has none. If any allocation
// refers to an unknown definition no entries are returned.
func (f LedgerFactory) FromPayment(p Payment, allocations []Allocation, definitions map[DefinitionID]BillDefinition) ([]LedgerEntry, error) {
	if p.ID == "" {
		return nil, invalid("payment_id", "is required")
	}
	ids := idsOrDefault(f.IDs)
	now := f.Clock.Now()
	entries := make([]LedgerEntry, 0, len(allocations))
	for _, a := range allocations {
		if !a.Applied.IsPositive() {
			continue
		}
		def, ok := definitions[a.DefinitionID]
		if !ok || def.Name == "" {
			return nil, fmt.Errorf("%w: bill definition %s", ErrUnknownCategory, a.DefinitionID)
		}
		account := def.LedgerAccountID
		if account == "" {
			account = p.AccountID
		}
		if account == "" {
			return nil, fmt.Errorf("%w: no ledger account for %s", ErrUnknownCategory, def.Name)
		}
		entries = append(entries, LedgerEntry{
			ID:          EntryID(ids.NewID()),
			AccountID:   account,
			Kind:        EntryIncome,
			Amount:      a.Applied,
			Method:      p.Method,
			Category:    def.Name,
			Description: fmt.Sprintf("Pembayaran %s %s %d santri %s", def.Name, a.Month, a.Year, p.StudentID),
			Date:        p.Date,
			PaymentID:   p.ID,
			CreatedBy:   p.ReceivedBy,
			CreatedAt:   now,
		})
	}
	return entries, nil
}

// FromTransfer produces the two legs of a transfer: pengeluaran on src
// and pemasukan on dst.
func (f LedgerFactory) FromTransfer(src, dst Endpoint, amount Money, note string, date Date) ([]LedgerEntry, error) {
	if src.AccountID == "" || dst.AccountID == "" {
		return nil, invalid("account_id", "source and destination are required")
	}
	if !src.Method.Valid() || !dst.Method.Valid() {
		return nil, invalid("method", "must be %q or %q", MethodCash, MethodTransfer)
	}
	if src == dst {
		return nil, ErrSameAccountTransfer
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if date.IsZero() {
		date = f.Clock.Today()
	}
	ids := idsOrDefault(f.IDs)
	now := f.Clock.Now()
	transfer := TransferID(ids.NewID())
	leg := func(ep Endpoint, kind EntryKind) LedgerEntry {
		return LedgerEntry{
			ID:          EntryID(ids.NewID()),
			AccountID:   ep.AccountID,
			Kind:        kind,
			Amount:      amount,
			Method:      ep.Method,
			Category:    CategoryTransfer,
			Description: note,
			Date:        date,
			TransferID:  transfer,
			CreatedAt:   now,
		}
	}
	return []LedgerEntry{leg(src, EntryExpense), leg(dst, EntryIncome)}, nil
}

// Manual produces a single administrative income or expense entry.
func (f LedgerFactory) Manual(in ManualEntry) (LedgerEntry, error) {
	if in.AccountID == "" {
		return LedgerEntry{}, invalid("account_id", "is required")
	}
	if !in.Kind.Valid() {
		return LedgerEntry{}, invalid("kind", "must be %q or %q", EntryIncome, EntryExpense)
	}
	if !in.Method.Valid() {
		return LedgerEntry{}, invalid("method", "must be %q or %q", MethodCash, MethodTransfer)
	}
	if !in.Amount.IsPositive() {
		return LedgerEntry{}, ErrInvalidAmount
	}
	if in.Category == "" {
		return LedgerEntry{}, fmt.Errorf("%w: category is required", ErrUnknownCategory)
	}
	date := in.Date
	if date.IsZero() {
		date = f.Clock.Today()
	}
	return LedgerEntry{
		ID:          EntryID(idsOrDefault(f.IDs).NewID()),
		AccountID:   in.AccountID,
		Kind:        in.Kind,
		Amount:      in.Amount,
		Method:      in.Method,
		Category:    in.Category,
		Description: in.Description,
		Date:        date,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   f.Clock.Now(),
	}, nil
}

// ManualEntry is an administrative posting not tied to a payment.
type ManualEntry struct {
	AccountID   AccountID
	Kind        EntryKind
	Amount      Money
	Method      PaymentMethod
	Category    string
	Description string
	Date        Date
	CreatedBy   string
}
