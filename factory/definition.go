/*
Package factory provides JSON to Go bill definition conversion.

PURPOSE:
  Converts JSON bill definitions (jenis tagihan) into billing.BillDefinition
  values and back. The admin dashboard posts this shape, and the SQLite
  store keeps the same JSON in bill_definitions.config_json.

JSON SCHEMA:
  {
    "id": "spp-2025",
    "name": "SPP",
    "category": "recurring",
    "target_months": ["Juli", "Agustus", ..., "Juni"],
    "amount_type": "per_class",
    "per_class": {"VII-A": 350000, "VIII-A": 400000},
    "due_day": 10,
    "ledger_account_id": "kas-utama"
  }

AMOUNT TYPES:
  uniform     (aliases: sama, fixed)         -> billing.Uniform, needs "amount"
  per_class   (aliases: per_kelas, kelas)    -> billing.PerClass, "per_class"
  per_student (aliases: per_santri, individual, perorangan)
                                             -> billing.PerStudent, "per_student"
  Anything else is billing.ErrInvalidAmountStrategy. There is no silent
  fallback to a default strategy.

KEY FEATURES:
  - Month names in Indonesian or English, or numbers 1..12
  - Target months are deduped and put in academic order
  - The result is validated with BillDefinition.Validate

USAGE:
  f := factory.NewDefinitionFactory(billing.Juli)
  def, err := f.Parse(data)

SEE ALSO:
  - billing/definition.go: BillDefinition and the strategy variants
  - presets.go:            ready-made definitions for common bills
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/pesantren-billing/billing"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// DefinitionJSON is the JSON representation of a bill definition.
type DefinitionJSON struct {
	ID              string                   `json:"id"`
	Name            string                   `json:"name"`
	Category        string                   `json:"category"`
	TargetMonths    []billing.Month          `json:"target_months"`
	AmountType      string                   `json:"amount_type"`
	Amount          *billing.Money           `json:"amount,omitempty"`
	PerClass        map[string]billing.Money `json:"per_class,omitempty"`
	PerStudent      map[string]billing.Money `json:"per_student,omitempty"`
	DueDay          int                      `json:"due_day,omitempty"`
	DueDate         billing.Date             `json:"due_date,omitempty"`
	LedgerAccountID string                   `json:"ledger_account_id"`
	Description     string                   `json:"description,omitempty"`
	CreatedAt       *time.Time               `json:"created_at,omitempty"`
}

// =============================================================================
// DEFINITION FACTORY
// =============================================================================

// DefinitionFactory converts JSON definitions to billing values.
// StartMonth drives the academic ordering of target months; the zero
// value keeps months in the order given.
type DefinitionFactory struct {
	StartMonth billing.Month
}

func NewDefinitionFactory(startMonth billing.Month) DefinitionFactory {
	return DefinitionFactory{StartMonth: startMonth}
}

// Parse decodes and converts a JSON definition.
func (f DefinitionFactory) Parse(data []byte) (billing.BillDefinition, error) {
	var dj DefinitionJSON
	if err := json.Unmarshal(data, &dj); err != nil {
		if errors.Is(err, billing.ErrInvalidMoney) || errors.Is(err, billing.ErrInvalidMonth) || errors.Is(err, billing.ErrInvalidDate) {
			return billing.BillDefinition{}, err
		}
		return billing.BillDefinition{}, &billing.ValidationError{
			Field:  "body",
			Reason: fmt.Sprintf("failed to parse bill definition JSON: %v", err),
		}
	}
	return f.FromJSON(dj)
}

// FromJSON converts DefinitionJSON to a validated billing.BillDefinition.
func (f DefinitionFactory) FromJSON(dj DefinitionJSON) (billing.BillDefinition, error) {
	category, err := parseCategory(dj.Category)
	if err != nil {
		return billing.BillDefinition{}, err
	}
	strategy, err := parseStrategy(dj)
	if err != nil {
		return billing.BillDefinition{}, err
	}

	months := dj.TargetMonths
	if f.StartMonth.Valid() {
		if months, err = billing.NormalizeTargetMonths(months, f.StartMonth); err != nil {
			return billing.BillDefinition{}, err
		}
	}

	def := billing.BillDefinition{
		ID:              billing.DefinitionID(strings.TrimSpace(dj.ID)),
		Name:            strings.TrimSpace(dj.Name),
		Category:        category,
		TargetMonths:    months,
		Strategy:        strategy,
		Due:             billing.DueRule{DayOfMonth: dj.DueDay, Date: dj.DueDate},
		LedgerAccountID: billing.AccountID(dj.LedgerAccountID),
		Description:     dj.Description,
	}
	if dj.CreatedAt != nil {
		def.CreatedAt = *dj.CreatedAt
	}
	// Non-recurring bills have a single slot; default it to the due month.
	if category == billing.CategoryNonRecurring && len(def.TargetMonths) == 0 && !dj.DueDate.IsZero() {
		def.TargetMonths = []billing.Month{dj.DueDate.Month()}
	}
	if err := def.Validate(); err != nil {
		return billing.BillDefinition{}, err
	}
	return def, nil
}

// ToJSON converts a definition to DefinitionJSON.
func ToJSON(def billing.BillDefinition) DefinitionJSON {
	dj := DefinitionJSON{
		ID:              string(def.ID),
		Name:            def.Name,
		Category:        string(def.Category),
		TargetMonths:    def.TargetMonths,
		DueDay:          def.Due.DayOfMonth,
		DueDate:         def.Due.Date,
		LedgerAccountID: string(def.LedgerAccountID),
		Description:     def.Description,
	}
	if !def.CreatedAt.IsZero() {
		t := def.CreatedAt
		dj.CreatedAt = &t
	}

	switch s := def.Strategy.(type) {
	case billing.Uniform:
		dj.AmountType = string(billing.StrategyUniform)
		amount := s.Amount
		dj.Amount = &amount
	case billing.PerClass:
		dj.AmountType = string(billing.StrategyPerClass)
		dj.PerClass = make(map[string]billing.Money, len(s.Amounts))
		for class, amount := range s.Amounts {
			dj.PerClass[string(class)] = amount
		}
	case billing.PerStudent:
		dj.AmountType = string(billing.StrategyPerStudent)
		dj.PerStudent = make(map[string]billing.Money, len(s.Amounts))
		for id, amount := range s.Amounts {
			dj.PerStudent[string(id)] = amount
		}
	}
	return dj
}

// Marshal encodes a definition as JSON.
func Marshal(def billing.BillDefinition) ([]byte, error) {
	return json.Marshal(ToJSON(def))
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseCategory(s string) (billing.Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "recurring", "bulanan", "rutin":
		return billing.CategoryRecurring, nil
	case "non_recurring", "non-recurring", "sekali", "insidental":
		return billing.CategoryNonRecurring, nil
	default:
		return "", &billing.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", s)}
	}
}

func parseStrategy(dj DefinitionJSON) (billing.AmountStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(dj.AmountType)) {
	case "uniform", "sama", "fixed":
		if dj.Amount == nil {
			return nil, &billing.ValidationError{Field: "amount", Reason: "is required for uniform bills"}
		}
		return billing.Uniform{Amount: *dj.Amount}, nil

	case "per_class", "per_kelas", "kelas":
		amounts := make(map[billing.ClassName]billing.Money, len(dj.PerClass))
		for class, amount := range dj.PerClass {
			amounts[billing.ClassName(class)] = amount
		}
		return billing.PerClass{Amounts: amounts}, nil

	case "per_student", "per_santri", "individual", "perorangan":
		amounts := make(map[billing.StudentID]billing.Money, len(dj.PerStudent))
		for id, amount := range dj.PerStudent {
			amounts[billing.StudentID(id)] = amount
		}
		return billing.PerStudent{Amounts: amounts}, nil

	default:
		return nil, fmt.Errorf("%w: %q", billing.ErrInvalidAmountStrategy, dj.AmountType)
	}
}
