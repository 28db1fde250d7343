/*
generator.go - Expands a bill definition into per-student invoices

PURPOSE:
  Generation turns one BillDefinition into one Invoice per eligible
  student per target month of an academic year. A preview computes the
  same lines without writing anything, so operators can fill in amounts
  the strategy could not resolve.

ALGORITHM:
  1. Validate the definition and any manual overrides
  2. Order target months academically and map them to calendar years
  3. Drop students the strategy excludes (PerClass without a class entry)
  4. Resolve each student's amount; an override always wins
  5. Skip students that still resolve to zero (needs manual input)
  6. Skip (student, month, year) keys that already have an invoice
  7. Insert everything that is left in one batch

IDEMPOTENCY:
  Step 6 makes re-running a generation harmless. A concurrent run that
  races past the check is stopped by the store's unique index and
  surfaces as ErrDuplicateInvoice.

WARNINGS:
  An empty eligible set is not an error. The summary carries a
  NoMatchingStudents warning and nothing is written.
*/
package billing

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// =============================================================================
// TYPES
// =============================================================================

type GenerateInput struct {
	Definition   BillDefinition
	AcademicYear AcademicYear
	Students     []Student
	Overrides    map[StudentID]Money // manual amounts, win over the strategy
	CreatedBy    string
}

type GenerationSummary struct {
	TotalInvoices    int         `json:"total_invoices"`
	TotalStudents    int         `json:"total_students"`
	TotalAmount      Money       `json:"total_amount"`
	SkippedExisting  int         `json:"skipped_existing"`
	Excluded         []StudentID `json:"excluded,omitempty"`
	NeedsManualInput []StudentID `json:"needs_manual_input,omitempty"`
	Warnings         []Warning   `json:"warnings,omitempty"`
	Invoices         []Invoice   `json:"-"`
}

// PreviewLine is what one student would be billed.
type PreviewLine struct {
	Student          Student     `json:"student"`
	Amount           Money       `json:"amount"`
	NeedsManualInput bool        `json:"needs_manual_input"`
	Slots            []MonthYear `json:"months"`
	ExistingSlots    []MonthYear `json:"existing_months,omitempty"`
	DueDates         []Date      `json:"due_dates"`
}

type Preview struct {
	Lines         []PreviewLine `json:"lines"`
	TotalInvoices int           `json:"total_invoices"`
	TotalStudents int           `json:"total_students"`
	TotalAmount   Money         `json:"total_amount"`
	Warnings      []Warning     `json:"warnings,omitempty"`
}

// =============================================================================
// GENERATOR
// =============================================================================

type Generator struct {
	store    InvoiceStore
	resolver AmountResolver
	ids      IDGenerator
	clock    Clock
	log      *zap.Logger
}

func NewGenerator(store InvoiceStore, ids IDGenerator, clock Clock, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{store: store, ids: idsOrDefault(ids), clock: clock, log: log}
}

// plan is the shared first half of Preview and Generate.
type plan struct {
	slots    []MonthYear
	existing map[InvoiceKey]bool
	lines    []planLine
	excluded []StudentID
}

type planLine struct {
	student  Student
	amount   Money
	manual   bool
	fresh    []MonthYear
	existing []MonthYear
}

func (g *Generator) plan(ctx context.Context, def BillDefinition, ay AcademicYear, students []Student, overrides map[StudentID]Money) (plan, error) {
	if err := def.Validate(); err != nil {
		return plan{}, err
	}
	for id, amount := range overrides {
		if !amount.IsPositive() {
			return plan{}, invalid("overrides", "amount for student %s must be positive", id)
		}
	}
	months, err := NormalizeTargetMonths(def.TargetMonths, ay.StartMonth)
	if err != nil {
		return plan{}, err
	}

	existing, err := g.store.GetExistingInvoices(ctx, def.ID)
	if err != nil {
		return plan{}, fmt.Errorf("load existing invoices: %w", err)
	}
	p := plan{
		slots:    ay.MonthYears(months),
		existing: make(map[InvoiceKey]bool, len(existing)),
	}
	for _, inv := range existing {
		p.existing[inv.Key()] = true
	}

	seen := make(map[StudentID]bool, len(students))
	for _, s := range students {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		if !g.resolver.Eligible(def, s) {
			p.excluded = append(p.excluded, s.ID)
			continue
		}
		res, err := g.resolver.Resolve(def, s)
		if err != nil {
			return plan{}, err
		}
		if amount, ok := overrides[s.ID]; ok {
			res = Resolution{Amount: amount}
		}
		line := planLine{student: s, amount: res.Amount, manual: res.NeedsManualInput || res.Amount.IsZero()}
		for _, slot := range p.slots {
			key := InvoiceKey{StudentID: s.ID, DefinitionID: def.ID, Month: slot.Month, Year: slot.Year}
			if p.existing[key] {
				line.existing = append(line.existing, slot)
			} else {
				line.fresh = append(line.fresh, slot)
			}
		}
		p.lines = append(p.lines, line)
	}
	return p, nil
}

// Preview computes what Generate would write.
func (g *Generator) Preview(ctx context.Context, def BillDefinition, ay AcademicYear, students []Student) (Preview, error) {
	p, err := g.plan(ctx, def, ay, students, nil)
	if err != nil {
		return Preview{}, err
	}
	out := Preview{TotalAmount: Zero}
	for _, line := range p.lines {
		dues := make([]Date, 0, len(line.fresh))
		for _, slot := range line.fresh {
			dues = append(dues, InvoiceDueDate(def, slot))
		}
		out.Lines = append(out.Lines, PreviewLine{
			Student:          line.student,
			Amount:           line.amount,
			NeedsManualInput: line.manual,
			Slots:            line.fresh,
			ExistingSlots:    line.existing,
			DueDates:         dues,
		})
		if line.manual || len(line.fresh) == 0 {
			continue
		}
		out.TotalStudents++
		out.TotalInvoices += len(line.fresh)
		out.TotalAmount = out.TotalAmount.Add(line.amount.Times(len(line.fresh)))
	}
	out.Warnings = planWarnings(def, p)
	return out, nil
}

// Generate writes the invoices of one definition for one academic year.
func (g *Generator) Generate(ctx context.Context, in GenerateInput) (GenerationSummary, error) {
	def := in.Definition
	p, err := g.plan(ctx, def, in.AcademicYear, in.Students, in.Overrides)
	if err != nil {
		return GenerationSummary{}, err
	}

	now := g.clock.Now()
	summary := GenerationSummary{TotalAmount: Zero, Excluded: p.excluded}
	var invoices []Invoice
	for _, line := range p.lines {
		summary.SkippedExisting += len(line.existing)
		if line.manual {
			summary.NeedsManualInput = append(summary.NeedsManualInput, line.student.ID)
			continue
		}
		if len(line.fresh) == 0 {
			continue
		}
		summary.TotalStudents++
		for _, slot := range line.fresh {
			invoices = append(invoices, Invoice{
				ID:           InvoiceID(g.ids.NewID()),
				StudentID:    line.student.ID,
				DefinitionID: def.ID,
				ClassName:    line.student.ClassName,
				Month:        slot.Month,
				Year:         slot.Year,
				Amount:       line.amount,
				PaidAmount:   Zero,
				DueDate:      InvoiceDueDate(def, slot),
				Status:       InvoiceUnpaid,
				CreatedBy:    in.CreatedBy,
				CreatedAt:    now,
				UpdatedAt:    now,
			})
			summary.TotalAmount = summary.TotalAmount.Add(line.amount)
		}
	}
	summary.Warnings = planWarnings(def, p)

	log := g.log.With(
		zap.String("definition_id", string(def.ID)),
		zap.String("academic_year", in.AcademicYear.Label()),
	)
	for _, w := range summary.Warnings {
		log.Warn("generation warning", zap.String("code", string(w.Code)), zap.String("message", w.Message))
	}

	if len(invoices) > 0 {
		if err := g.store.InsertInvoices(ctx, invoices); err != nil {
			return GenerationSummary{}, fmt.Errorf("insert invoices: %w", err)
		}
	}
	summary.TotalInvoices = len(invoices)
	summary.Invoices = invoices
	log.Info("invoices generated",
		zap.Int("invoices", summary.TotalInvoices),
		zap.Int("students", summary.TotalStudents),
		zap.Int("skipped_existing", summary.SkippedExisting),
	)
	return summary, nil
}

func planWarnings(def BillDefinition, p plan) []Warning {
	var warnings []Warning
	if len(p.lines) == 0 {
		warnings = append(warnings, Warning{
			Code:    WarnNoMatchingStudents,
			Message: fmt.Sprintf("%s: %s", ErrNoMatchingStudents, def.Name),
		})
	}
	manual := 0
	for _, line := range p.lines {
		if line.manual {
			manual++
		}
	}
	if manual > 0 {
		warnings = append(warnings, Warning{
			Code:    WarnNeedsManualInput,
			Message: fmt.Sprintf("%d students have no amount for %s and were skipped", manual, def.Name),
		})
	}
	return warnings
}
