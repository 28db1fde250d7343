/*
definition.go - Bill definitions (jenis tagihan) and amount strategies

PURPOSE:
  A BillDefinition is the template a bill is generated from: what it is
  called, which months it covers, how much each student owes, when it is
  due and which buku kas account receives the money.

AMOUNT STRATEGY:
  The strategy is a closed variant with exactly three cases:
    Uniform    - one amount for every student
    PerClass   - amount looked up by the student's class name
    PerStudent - amount entered per student
  Only this package can add cases (sealed by an unexported method), and
  every consumer switches over it exhaustively.

DUE RULE:
  Recurring bills are due on a day of month, clamped to 28 so that
  Februari never produces an invalid date. NonRecurring bills carry an
  explicit date that is used as-is.

INVARIANTS (checked by Validate):
  - TargetMonths is non-empty
  - every amount a strategy defines is positive

SEE ALSO:
  - resolver.go:  strategy resolution per student
  - duedate.go:   due-date computation
  - factory/definition.go: JSON form of a definition
*/
package billing

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type DefinitionID string
type AccountID string
type ClassName string

// =============================================================================
// CATEGORY
// =============================================================================

type Category string

const (
	CategoryRecurring    Category = "recurring"     // monthly, e.g. SPP
	CategoryNonRecurring Category = "non_recurring" // one-off, e.g. uang gedung
)

func (c Category) Valid() bool {
	return c == CategoryRecurring || c == CategoryNonRecurring
}

// =============================================================================
// AMOUNT STRATEGY - Tagged variant
// =============================================================================

type StrategyKind string

const (
	StrategyUniform    StrategyKind = "uniform"
	StrategyPerClass   StrategyKind = "per_class"
	StrategyPerStudent StrategyKind = "per_student"
)

// AmountStrategy is implemented only by Uniform, PerClass and PerStudent.
type AmountStrategy interface {
	Kind() StrategyKind
	sealed()
}

// Uniform charges every student the same amount.
type Uniform struct {
	Amount Money
}

// PerClass charges by class. Classes missing from the map need manual input.
type PerClass struct {
	Amounts map[ClassName]Money
}

// PerStudent charges an amount entered per student.
type PerStudent struct {
	Amounts map[StudentID]Money
}

func (Uniform) Kind() StrategyKind    { return StrategyUniform }
func (PerClass) Kind() StrategyKind   { return StrategyPerClass }
func (PerStudent) Kind() StrategyKind { return StrategyPerStudent }

func (Uniform) sealed()    {}
func (PerClass) sealed()   {}
func (PerStudent) sealed() {}

// =============================================================================
// DUE RULE
// =============================================================================

// DueRule holds the day of month for recurring bills, or the fixed date
// for non-recurring ones.
type DueRule struct {
	DayOfMonth int
	Date       Date
}

// ClampDay keeps a day of month inside 1..28.
func ClampDay(day int) int {
	if day < 1 {
		return 1
	}
	if day > 28 {
		return 28
	}
	return day
}

// =============================================================================
// BILL DEFINITION
// =============================================================================

type BillDefinition struct {
	ID              DefinitionID
	Name            string
	Category        Category
	TargetMonths    []Month // academic order, see NormalizeTargetMonths
	Strategy        AmountStrategy
	Due             DueRule
	LedgerAccountID AccountID
	Description     string
	CreatedAt       time.Time
}

// Validate checks every invariant of the definition.
func (d BillDefinition) Validate() error {
	if d.ID == "" {
		return invalid("id", "is required")
	}
	if d.Name == "" {
		return invalid("name", "is required")
	}
	if !d.Category.Valid() {
		return invalid("category", "unknown category %q", d.Category)
	}
	if len(d.TargetMonths) == 0 {
		return invalid("target_months", "at least one month is required")
	}
	for _, m := range d.TargetMonths {
		if !m.Valid() {
			return invalid("target_months", "invalid month %d", int(m))
		}
	}
	if d.LedgerAccountID == "" {
		return invalid("ledger_account_id", "is required")
	}
	switch d.Category {
	case CategoryRecurring:
		if d.Due.DayOfMonth < 1 || d.Due.DayOfMonth > 31 {
			return invalid("due_day", "must be between 1 and 31, got %d", d.Due.DayOfMonth)
		}
	case CategoryNonRecurring:
		if d.Due.Date.IsZero() {
			return invalid("due_date", "is required for non-recurring bills")
		}
	}
	return validateStrategy(d.Strategy)
}

func validateStrategy(s AmountStrategy) error {
	switch s := s.(type) {
	case Uniform:
		if !s.Amount.IsPositive() {
			return invalid("amount", "must be positive")
		}
	case PerClass:
		for class, amount := range s.Amounts {
			if class == "" {
				return invalid("per_class", "class name is required")
			}
			if !amount.IsPositive() {
				return invalid("per_class", "amount for class %s must be positive", class)
			}
		}
	case PerStudent:
		for id, amount := range s.Amounts {
			if !amount.IsPositive() {
				return invalid("per_student", "amount for student %s must be positive", id)
			}
		}
	default:
		return ErrInvalidAmountStrategy
	}
	return nil
}

// TargetsMonth reports whether m is one of the definition's target months.
func (d BillDefinition) TargetsMonth(m Month) bool {
	for _, t := range d.TargetMonths {
		if t == m {
			return true
		}
	}
	return false
}
