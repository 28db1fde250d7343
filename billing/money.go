/*
Package billing is the billing and cash-ledger core of the pesantren
administration system.

PURPOSE:
  Turns bill templates (jenis tagihan) into per-student invoices (tagihan),
  settles those invoices from full or partial payments, and posts the
  resulting cash movements into buku kas accounts. Everything here is
  deterministic and storage-agnostic; persistence is reached through the
  interfaces in store.go.

KEY CONCEPTS IN THIS FILE (money.go):
  - Money: an exact amount in the smallest currency unit (rupiah)

DATA FLOW:
  BillDefinition -> AmountResolver -> Generator -> []Invoice
  []Invoice + tender -> Allocator -> LedgerFactory -> []LedgerEntry

DESIGN PRINCIPLES:
  1. Precision: Money is decimal-backed and always integral, never float
  2. Conservation: a split invoice always sums back to the original amount
  3. Idempotency: generation never creates a second invoice for the same
     (student, definition, month, year)
  4. Immutability: ledger entries created from a payment cannot be deleted

SEE ALSO:
  - definition.go: BillDefinition and the amount strategy variants
  - generator.go:  invoice generation
  - allocator.go:  payment allocation and splitting
  - ledger.go:     ledger entries and the entry factory
*/
package billing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// =============================================================================
// MONEY - Integral amount in rupiah
// =============================================================================

// Money is an amount in the smallest currency unit. The zero value is 0.
type Money struct {
	Value decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{Value: decimal.Zero}

func NewMoney(value int64) Money {
	return Money{Value: decimal.NewFromInt(value)}
}

// ParseMoney parses a whole-unit amount. Fractional values are rejected.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidMoney, s)
	}
	if !d.Equal(d.Truncate(0)) {
		return Money{}, fmt.Errorf("%w: %q has a fractional part", ErrInvalidMoney, s)
	}
	return Money{Value: d}, nil
}

func (m Money) Add(o Money) Money        { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money        { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Neg() Money               { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool             { return m.Value.IsZero() }
func (m Money) IsPositive() bool         { return m.Value.IsPositive() }
func (m Money) IsNegative() bool         { return m.Value.IsNegative() }
func (m Money) Equal(o Money) bool       { return m.Value.Equal(o.Value) }
func (m Money) GreaterThan(o Money) bool { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool    { return m.Value.LessThan(o.Value) }
func (m Money) Cmp(o Money) int          { return m.Value.Cmp(o.Value) }
func (m Money) Int64() int64             { return m.Value.IntPart() }
func (m Money) String() string           { return m.Value.String() }

// Times multiplies the amount by a count, e.g. months in a year.
func (m Money) Times(n int) Money {
	return Money{Value: m.Value.Mul(decimal.NewFromInt(int64(n)))}
}

func (m Money) Min(o Money) Money {
	if m.LessThan(o) {
		return m
	}
	return o
}

// Sum adds all amounts.
func Sum(amounts ...Money) Money {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

var rupiahPrinter = message.NewPrinter(language.Indonesian)

// Rupiah formats the amount the way receipts print it, e.g. "Rp 500.000".
func (m Money) Rupiah() string {
	if m.IsNegative() {
		return rupiahPrinter.Sprintf("-Rp %d", m.Value.Neg().IntPart())
	}
	return rupiahPrinter.Sprintf("Rp %d", m.Value.IntPart())
}

// MarshalJSON encodes the amount as a bare JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Value.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*m = Zero
		return nil
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
