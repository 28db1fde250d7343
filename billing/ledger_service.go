package billing

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// =============================================================================
// LEDGER SERVICE - Buku kas postings
// =============================================================================

type LedgerService struct {
	store   TxStore
	factory LedgerFactory
	log     *zap.Logger
}

func NewLedgerService(store TxStore, ids IDGenerator, clock Clock, log *zap.Logger) *LedgerService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LedgerService{store: store, factory: NewLedgerFactory(ids, clock), log: log}
}

// TransferRequest moves money between two buku kas endpoints.
type TransferRequest struct {
	Source      Endpoint
	Destination Endpoint
	Amount      Money
	Note        string
	Date        Date
	CreatedBy   string
}

// PostTransfer writes both legs of a transfer or neither.
func (s *LedgerService) PostTransfer(ctx context.Context, req TransferRequest) ([]LedgerEntry, error) {
	entries, err := s.factory.FromTransfer(req.Source, req.Destination, req.Amount, req.Note, req.Date)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].CreatedBy = req.CreatedBy
	}
	err = s.store.WithTx(ctx, func(tx Store) error {
		for _, id := range []AccountID{req.Source.AccountID, req.Destination.AccountID} {
			if _, err := tx.GetAccount(ctx, id); err != nil {
				return err
			}
		}
		return tx.InsertLedgerEntries(ctx, entries)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("transfer posted",
		zap.String("transfer_id", string(entries[0].TransferID)),
		zap.String("from", string(req.Source.AccountID)),
		zap.String("to", string(req.Destination.AccountID)),
		zap.String("amount", req.Amount.String()),
	)
	return entries, nil
}

// PostManual writes one administrative income or expense entry.
func (s *LedgerService) PostManual(ctx context.Context, in ManualEntry) (LedgerEntry, error) {
	entry, err := s.factory.Manual(in)
	if err != nil {
		return LedgerEntry{}, err
	}
	err = s.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetAccount(ctx, entry.AccountID); err != nil {
			return err
		}
		return tx.InsertLedgerEntries(ctx, []LedgerEntry{entry})
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

// Delete removes an entry. Entries created by a payment are locked.
func (s *LedgerService) Delete(ctx context.Context, id EntryID) error {
	if err := s.store.DeleteLedgerEntry(ctx, id); err != nil {
		var locked *LockedEntryError
		if errors.As(err, &locked) {
			s.log.Warn("refused to delete locked entry",
				zap.String("entry_id", string(id)),
				zap.String("payment_id", string(locked.PaymentID)),
			)
		}
		return err
	}
	s.log.Info("ledger entry deleted", zap.String("entry_id", string(id)))
	return nil
}

// Statement is an account with its entries and derived balance.
type Statement struct {
	Account LedgerAccount `json:"account"`
	Entries []LedgerEntry `json:"entries"`
	Income  Money         `json:"income"`
	Expense Money         `json:"expense"`
	Balance Money         `json:"balance"`
}

// Balance sums pemasukan minus pengeluaran of an account.
func (s *LedgerService) Balance(ctx context.Context, account AccountID) (Money, error) {
	st, err := s.Statement(ctx, account)
	if err != nil {
		return Money{}, err
	}
	return st.Balance, nil
}

func (s *LedgerService) Statement(ctx context.Context, account AccountID) (Statement, error) {
	acc, err := s.store.GetAccount(ctx, account)
	if err != nil {
		return Statement{}, err
	}
	entries, err := s.store.ListLedgerEntries(ctx, account)
	if err != nil {
		return Statement{}, fmt.Errorf("list entries of %s: %w", account, err)
	}
	st := Statement{Account: acc, Entries: entries, Income: Zero, Expense: Zero}
	for _, e := range entries {
		if e.Kind == EntryIncome {
			st.Income = st.Income.Add(e.Amount)
		} else {
			st.Expense = st.Expense.Add(e.Amount)
		}
	}
	st.Balance = st.Income.Sub(st.Expense)
	return st, nil
}
