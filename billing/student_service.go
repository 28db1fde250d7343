package billing

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// =============================================================================
// STUDENT SERVICE - Class changes, mutasi keluar, tunggakan
// =============================================================================

type StudentService struct {
	store TxStore
	clock Clock
	log   *zap.Logger
}

func NewStudentService(store TxStore, clock Clock, log *zap.Logger) *StudentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &StudentService{store: store, clock: clock, log: log}
}

// Create registers an active student in an existing class.
func (s *StudentService) Create(ctx context.Context, st Student) (Student, error) {
	if st.Status == "" {
		st.Status = StudentActive
	}
	now := s.clock.Now()
	st.CreatedAt, st.UpdatedAt = now, now
	if err := st.Validate(); err != nil {
		return Student{}, err
	}
	if err := s.requireClass(ctx, s.store, st.ClassName); err != nil {
		return Student{}, err
	}
	if err := s.store.SaveStudent(ctx, st); err != nil {
		return Student{}, fmt.Errorf("save student: %w", err)
	}
	return st, nil
}

// ChangeClass moves a student to another class. Existing invoices keep
// the amount and class they were generated with.
func (s *StudentService) ChangeClass(ctx context.Context, id StudentID, class ClassName) (Student, error) {
	var updated Student
	err := s.store.WithTx(ctx, func(tx Store) error {
		st, err := tx.GetStudent(ctx, id)
		if err != nil {
			return err
		}
		if err := s.requireClass(ctx, tx, class); err != nil {
			return err
		}
		st.ClassName = class
		st.UpdatedAt = s.clock.Now()
		updated = st
		return tx.SaveStudent(ctx, st)
	})
	if err != nil {
		return Student{}, err
	}
	s.log.Info("student class changed", zap.String("student_id", string(id)), zap.String("class", string(class)))
	return updated, nil
}

// TransferOut marks a student as transferred out and deletes their unpaid
// invoices due after the effective date. Paid and partially paid
// invoices are kept. Returns the number of deleted invoices.
func (s *StudentService) TransferOut(ctx context.Context, id StudentID, effective Date) (int, error) {
	if effective.IsZero() {
		effective = s.clock.Today()
	}
	deleted := 0
	err := s.store.WithTx(ctx, func(tx Store) error {
		st, err := tx.GetStudent(ctx, id)
		if err != nil {
			return err
		}
		future, err := tx.ListInvoices(ctx, InvoiceFilter{
			StudentID: id,
			Status:    InvoiceUnpaid,
			DueAfter:  effective,
		})
		if err != nil {
			return fmt.Errorf("list future invoices: %w", err)
		}
		ids := make([]InvoiceID, 0, len(future))
		for _, inv := range future {
			ids = append(ids, inv.ID)
		}
		if len(ids) > 0 {
			if err := tx.DeleteInvoices(ctx, ids); err != nil {
				return fmt.Errorf("delete future invoices: %w", err)
			}
		}
		st.Status = StudentTransferredOut
		st.TransferOut = &effective
		st.UpdatedAt = s.clock.Now()
		deleted = len(ids)
		return tx.SaveStudent(ctx, st)
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("student transferred out",
		zap.String("student_id", string(id)),
		zap.String("effective", effective.String()),
		zap.Int("deleted_invoices", deleted),
	)
	return deleted, nil
}

// Arrears is the tunggakan of a student on a given day.
type Arrears struct {
	StudentID StudentID `json:"student_id"`
	AsOf      Date      `json:"as_of"`
	Total     Money     `json:"total"`
	Invoices  []Invoice `json:"invoices"`
}

// Arrears sums the residual of every invoice due before today.
func (s *StudentService) Arrears(ctx context.Context, id StudentID, today Date) (Arrears, error) {
	if today.IsZero() {
		today = s.clock.Today()
	}
	if _, err := s.store.GetStudent(ctx, id); err != nil {
		return Arrears{}, err
	}
	invoices, err := s.store.ListInvoices(ctx, InvoiceFilter{StudentID: id})
	if err != nil {
		return Arrears{}, fmt.Errorf("list invoices: %w", err)
	}
	out := Arrears{StudentID: id, AsOf: today, Total: Zero}
	for _, inv := range invoices {
		if inv.Overdue(today) {
			out.Invoices = append(out.Invoices, inv)
			out.Total = out.Total.Add(inv.Residual())
		}
	}
	return out, nil
}

func (s *StudentService) requireClass(ctx context.Context, store Store, class ClassName) error {
	classes, err := store.ListClasses(ctx)
	if err != nil {
		return fmt.Errorf("list classes: %w", err)
	}
	for _, c := range classes {
		if c.Name == class {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrClassNotFound, class)
}
