/*
payment.go - Recording payments against invoices

PURPOSE:
  PaymentService is the write path behind the cashier screen. It loads
  the selected invoices, lets the Allocator decide the new states, and
  persists the payment, the invoice changes and the locked ledger
  entries inside a single transaction.

ATOMICITY:
  Everything happens inside TxStore.WithTx. If any step fails (unknown
  invoice, unknown ledger category, storage error) nothing is written:
  no payment row, no invoice change, no ledger entry.

DOUBLE SUBMISSION:
  A partial payment split is not safe to apply twice. Every request
  carries an idempotency key; the key is checked inside the transaction
  and stored on the payment row, so a repeated submission fails with
  ErrDuplicateSubmission instead of splitting again.

SEE ALSO:
  - allocator.go: allocation and split rules
  - ledger.go:    FromPayment
*/
package billing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// TYPES
// =============================================================================

type PaymentID string

type Payment struct {
	ID             PaymentID     `json:"id"`
	StudentID      StudentID     `json:"student_id"`
	Method         PaymentMethod `json:"method"`
	AccountID      AccountID     `json:"account_id"`
	Tendered       Money         `json:"tendered"`
	Applied        Money         `json:"applied"`
	Unapplied      Money         `json:"unapplied"`
	ReceivedBy     string        `json:"received_by"`
	IdempotencyKey string        `json:"idempotency_key"`
	Date           Date          `json:"date"`
	Allocations    []Allocation  `json:"allocations"`
	CreatedAt      time.Time     `json:"created_at"`
}

type PaymentRequest struct {
	StudentID      StudentID
	InvoiceIDs     []InvoiceID // allocation order
	Tendered       Money       // ignored by PayFull
	Method         PaymentMethod
	AccountID      AccountID
	ReceivedBy     string
	IdempotencyKey string
	Date           Date
}

func (r PaymentRequest) validate() error {
	if r.StudentID == "" {
		return invalid("student_id", "is required")
	}
	if len(r.InvoiceIDs) == 0 {
		return invalid("invoice_ids", "at least one invoice is required")
	}
	if !r.Method.Valid() {
		return invalid("method", "must be %q or %q", MethodCash, MethodTransfer)
	}
	if r.ReceivedBy == "" {
		return invalid("received_by", "is required")
	}
	if r.IdempotencyKey == "" {
		return invalid("idempotency_key", "is required")
	}
	return nil
}

// PaymentResult is everything a payment changed.
type PaymentResult struct {
	Payment  Payment       `json:"payment"`
	Settled  []Invoice     `json:"settled"`
	Splits   []Split       `json:"splits,omitempty"`
	Entries  []LedgerEntry `json:"ledger_entries"`
	Warnings []Warning     `json:"warnings,omitempty"`
}

// =============================================================================
// SERVICE
// =============================================================================

type PaymentService struct {
	store     TxStore
	allocator Allocator
	ledger    LedgerFactory
	ids       IDGenerator
	clock     Clock
	log       *zap.Logger
}

func NewPaymentService(store TxStore, ids IDGenerator, clock Clock, log *zap.Logger) *PaymentService {
	if log == nil {
		log = zap.NewNop()
	}
	ids = idsOrDefault(ids)
	return &PaymentService{
		store:     store,
		allocator: NewAllocator(ids, clock),
		ledger:    NewLedgerFactory(ids, clock),
		ids:       ids,
		clock:     clock,
		log:       log,
	}
}

// PayFull settles every selected invoice at its residual amount.
func (s *PaymentService) PayFull(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	return s.pay(ctx, req, func(invoices []Invoice, meta PaymentMeta) (PartialResult, error) {
		full, err := s.allocator.AllocateFull(invoices, meta)
		if err != nil {
			return PartialResult{}, err
		}
		return PartialResult{
			Allocations: full.Allocations,
			Settled:     full.Settled,
			Applied:     full.Total,
			Unapplied:   Zero,
			Warnings:    full.Warnings,
		}, nil
	}, true)
}

// PayPartial spends req.Tendered across the selected invoices in order.
func (s *PaymentService) PayPartial(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	if req.Tendered.IsNegative() {
		return PaymentResult{}, fmt.Errorf("%w: %s", ErrInvalidTenderAmount, req.Tendered)
	}
	return s.pay(ctx, req, func(invoices []Invoice, meta PaymentMeta) (PartialResult, error) {
		return s.allocator.AllocatePartial(invoices, req.Tendered, meta)
	}, false)
}

type allocateFunc func([]Invoice, PaymentMeta) (PartialResult, error)

func (s *PaymentService) pay(ctx context.Context, req PaymentRequest, allocate allocateFunc, full bool) (PaymentResult, error) {
	if err := req.validate(); err != nil {
		return PaymentResult{}, err
	}
	if req.Date.IsZero() {
		req.Date = s.clock.Today()
	}
	log := s.log.With(
		zap.String("student_id", string(req.StudentID)),
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.Bool("full", full),
	)

	var result PaymentResult
	err := s.store.WithTx(ctx, func(tx Store) error {
		exists, err := tx.PaymentExists(ctx, req.IdempotencyKey)
		if err != nil {
			return fmt.Errorf("check idempotency key: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: key %s", ErrDuplicateSubmission, req.IdempotencyKey)
		}

		invoices, defs, err := loadSelection(ctx, tx, req)
		if err != nil {
			return err
		}
		alloc, err := allocate(invoices, PaymentMeta{PaidAt: s.clock.Now(), ReceivedBy: req.ReceivedBy})
		if err != nil {
			return err
		}
		if len(alloc.Allocations) == 0 {
			return ErrNothingToAllocate
		}

		tendered := req.Tendered
		if full {
			tendered = alloc.Applied
		}
		payment := Payment{
			ID:             PaymentID(s.ids.NewID()),
			StudentID:      req.StudentID,
			Method:         req.Method,
			AccountID:      req.AccountID,
			Tendered:       tendered,
			Applied:        alloc.Applied,
			Unapplied:      alloc.Unapplied,
			ReceivedBy:     req.ReceivedBy,
			IdempotencyKey: req.IdempotencyKey,
			Date:           req.Date,
			Allocations:    alloc.Allocations,
			CreatedAt:      s.clock.Now(),
		}
		entries, err := s.ledger.FromPayment(payment, alloc.Allocations, defs)
		if err != nil {
			return err
		}

		if err := tx.InsertPayment(ctx, payment); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		if err := persistAllocation(ctx, tx, alloc); err != nil {
			return err
		}
		if err := tx.InsertLedgerEntries(ctx, entries); err != nil {
			return fmt.Errorf("insert ledger entries: %w", err)
		}

		result = PaymentResult{
			Payment:  payment,
			Settled:  alloc.Settled,
			Splits:   alloc.Splits,
			Entries:  entries,
			Warnings: alloc.Warnings,
		}
		return nil
	})
	if err != nil {
		log.Warn("payment rejected", zap.Error(err))
		return PaymentResult{}, err
	}

	for _, w := range result.Warnings {
		log.Warn("payment warning", zap.String("code", string(w.Code)), zap.String("message", w.Message))
	}
	log.Info("payment recorded",
		zap.String("payment_id", string(result.Payment.ID)),
		zap.String("applied", result.Payment.Applied.String()),
		zap.Int("settled", len(result.Settled)),
		zap.Int("splits", len(result.Splits)),
	)
	return result, nil
}

// loadSelection fetches the invoices in request order, checks they belong
// to the student, and loads their definitions.
func loadSelection(ctx context.Context, tx Store, req PaymentRequest) ([]Invoice, map[DefinitionID]BillDefinition, error) {
	invoices := make([]Invoice, 0, len(req.InvoiceIDs))
	defs := make(map[DefinitionID]BillDefinition)
	for _, id := range req.InvoiceIDs {
		inv, err := tx.GetInvoice(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if inv.StudentID != req.StudentID {
			return nil, nil, invalid("invoice_ids", "invoice %s does not belong to student %s", id, req.StudentID)
		}
		invoices = append(invoices, inv)
		if _, ok := defs[inv.DefinitionID]; ok {
			continue
		}
		def, err := tx.GetDefinition(ctx, inv.DefinitionID)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrUnknownCategory, err)
		}
		defs[def.ID] = def
	}
	return invoices, defs, nil
}

func persistAllocation(ctx context.Context, tx Store, alloc PartialResult) error {
	for _, inv := range alloc.Settled {
		status := inv.Status
		patch := InvoicePatch{
			PaidAmount: &inv.PaidAmount,
			Status:     &status,
			PaidAt:     inv.PaidAt,
			ReceivedBy: &inv.ReceivedBy,
		}
		if _, err := tx.UpdateInvoice(ctx, inv.ID, patch); err != nil {
			return fmt.Errorf("update invoice %s: %w", inv.ID, err)
		}
	}
	if len(alloc.Splits) == 0 {
		return nil
	}
	originals := make([]InvoiceID, 0, len(alloc.Splits))
	siblings := make([]Invoice, 0, 2*len(alloc.Splits))
	for _, sp := range alloc.Splits {
		originals = append(originals, sp.Original.ID)
		siblings = append(siblings, sp.Paid, sp.Residual)
	}
	if err := tx.DeleteInvoices(ctx, originals); err != nil {
		return fmt.Errorf("replace split invoices: %w", err)
	}
	if err := tx.InsertInvoices(ctx, siblings); err != nil {
		return fmt.Errorf("insert split invoices: %w", err)
	}
	return nil
}

// GetPayment returns a recorded payment.
func (s *PaymentService) GetPayment(ctx context.Context, id PaymentID) (Payment, error) {
	return s.store.GetPayment(ctx, id)
}
