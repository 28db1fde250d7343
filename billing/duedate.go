package billing

// =============================================================================
// DUE DATES
// =============================================================================

// DefaultDueLookahead is how many months NextDueDate searches forward.
const DefaultDueLookahead = 24

// InvoiceDueDate is the due date of the invoice a definition produces for
// one billing slot. Recurring bills fall on the clamped day of that month;
// non-recurring bills use the definition's date unmodified.
func InvoiceDueDate(def BillDefinition, slot MonthYear) Date {
	if def.Category == CategoryNonRecurring {
		return def.Due.Date
	}
	return NewDate(slot.Year, slot.Month, ClampDay(def.Due.DayOfMonth))
}

// NextDueDate returns the first due date on or after today.
//
// Recurring bills walk forward month by month from today's month, checking
// at most lookahead months with today's month counted as the first, and stop at the first target month whose clamped
// due day has not passed. Non-recurring bills return their explicit date.
// A lookahead <= 0 uses DefaultDueLookahead.
func NextDueDate(def BillDefinition, today Date, lookahead int) (Date, error) {
	if def.Category == CategoryNonRecurring {
		if def.Due.Date.IsZero() {
			return Date{}, ErrNoDueDate
		}
		return def.Due.Date, nil
	}
	if lookahead <= 0 {
		lookahead = DefaultDueLookahead
	}
	day := ClampDay(def.Due.DayOfMonth)
	cursor := today.AddMonths(0)
	for i := 0; i < lookahead; i++ {
		if def.TargetsMonth(cursor.Month()) {
			candidate := NewDate(cursor.Year(), cursor.Month(), day)
			if candidate.AfterOrEqual(today) {
				return candidate, nil
			}
		}
		cursor = cursor.AddMonths(1)
	}
	return Date{}, ErrNoDueDate
}

// DueDates lists the due date of every target month of an academic year,
// in academic order.
func DueDates(def BillDefinition, ay AcademicYear) []Date {
	slots := ay.MonthYears(def.TargetMonths)
	dates := make([]Date, 0, len(slots))
	for _, slot := range slots {
		dates = append(dates, InvoiceDueDate(def, slot))
	}
	return dates
}
