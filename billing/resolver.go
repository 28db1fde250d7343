package billing

// =============================================================================
// AMOUNT RESOLVER
// =============================================================================

// Resolution is the amount a student owes for one billing slot.
// NeedsManualInput is set when the strategy had no amount for the student
// and an operator must enter one before generation.
type Resolution struct {
	Amount           Money
	NeedsManualInput bool
}

// AmountResolver computes per-student amounts from a definition's strategy.
type AmountResolver struct{}

// Resolve returns the amount owed by student under def.
func (AmountResolver) Resolve(def BillDefinition, student Student) (Resolution, error) {
	switch s := def.Strategy.(type) {
	case Uniform:
		return Resolution{Amount: s.Amount}, nil
	case PerClass:
		amount, ok := s.Amounts[student.ClassName]
		if !ok {
			return Resolution{Amount: Zero, NeedsManualInput: true}, nil
		}
		return Resolution{Amount: amount}, nil
	case PerStudent:
		amount, ok := s.Amounts[student.ID]
		if !ok {
			return Resolution{Amount: Zero, NeedsManualInput: true}, nil
		}
		return Resolution{Amount: amount}, nil
	default:
		return Resolution{}, ErrInvalidAmountStrategy
	}
}

// Eligible reports whether student takes part in generation for def.
// PerClass definitions exclude students of classes without an amount.
func (AmountResolver) Eligible(def BillDefinition, student Student) bool {
	if student.Status == StudentTransferredOut {
		return false
	}
	if s, ok := def.Strategy.(PerClass); ok {
		_, found := s.Amounts[student.ClassName]
		return found
	}
	return true
}
