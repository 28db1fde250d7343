package billing

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// MONTH - Fixed 12-element enumeration with Indonesian names
// =============================================================================

// Month is a calendar month, 1 (Januari) through 12 (Desember).
// It converts directly to and from time.Month.
type Month int

const (
	Januari Month = iota + 1
	Februari
	Maret
	April
	Mei
	Juni
	Juli
	Agustus
	September
	Oktober
	November
	Desember
)

var monthNames = [...]string{
	"", "Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

// monthAliases maps accepted spellings (lowercase) to months.
var monthAliases = map[string]Month{
	"januari": Januari, "january": Januari, "jan": Januari,
	"februari": Februari, "february": Februari, "feb": Februari, "pebruari": Februari,
	"maret": Maret, "march": Maret, "mar": Maret,
	"april": April, "apr": April,
	"mei": Mei, "may": Mei,
	"juni": Juni, "june": Juni, "jun": Juni,
	"juli": Juli, "july": Juli, "jul": Juli,
	"agustus": Agustus, "august": Agustus, "agu": Agustus, "aug": Agustus,
	"september": September, "sep": September,
	"oktober": Oktober, "october": Oktober, "okt": Oktober, "oct": Oktober,
	"november": November, "nopember": November, "nov": November,
	"desember": Desember, "december": Desember, "des": Desember, "dec": Desember,
}

func (m Month) Valid() bool { return m >= Januari && m <= Desember }

func (m Month) String() string {
	if !m.Valid() {
		return fmt.Sprintf("Month(%d)", int(m))
	}
	return monthNames[m]
}

// ParseMonth accepts Indonesian or English names (any case) and "1".."12".
func ParseMonth(s string) (Month, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if m, ok := monthAliases[key]; ok {
		return m, nil
	}
	if n, err := strconv.Atoi(key); err == nil && Month(n).Valid() {
		return Month(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
}

func (m Month) MarshalJSON() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMonth, int(m))
	}
	return json.Marshal(m.String())
}

func (m *Month) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if !Month(n).Valid() {
			return fmt.Errorf("%w: %d", ErrInvalidMonth, n)
		}
		*m = Month(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidMonth, data)
	}
	parsed, err := ParseMonth(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MonthYear is one billing slot, e.g. Juli 2025.
type MonthYear struct {
	Month Month `json:"month"`
	Year  int   `json:"year"`
}

func (my MonthYear) String() string { return fmt.Sprintf("%s %d", my.Month, my.Year) }

func (my MonthYear) Before(o MonthYear) bool {
	if my.Year != o.Year {
		return my.Year < o.Year
	}
	return my.Month < o.Month
}

// =============================================================================
// ACADEMIC YEAR - Two-part month list that wraps Desember -> Januari
// =============================================================================

// AcademicYear is a school year such as 2025/2026 starting in Juli.
// Months from StartMonth through Desember fall in StartYear; the months
// after the wrap fall in EndYear.
type AcademicYear struct {
	StartYear  int
	StartMonth Month
}

func NewAcademicYear(startYear int, startMonth Month) AcademicYear {
	if !startMonth.Valid() {
		startMonth = Juli
	}
	return AcademicYear{StartYear: startYear, StartMonth: startMonth}
}

// AcademicYearFor returns the academic year containing d.
func AcademicYearFor(d Date, startMonth Month) AcademicYear {
	ay := NewAcademicYear(d.Year(), startMonth)
	if d.Month() < ay.StartMonth {
		ay.StartYear--
	}
	return ay
}

// ParseAcademicYear parses "2025/2026" (or a bare "2025").
func ParseAcademicYear(label string, startMonth Month) (AcademicYear, error) {
	parts := strings.Split(strings.TrimSpace(label), "/")
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || start < 1900 {
		return AcademicYear{}, &ValidationError{Field: "academic_year", Reason: fmt.Sprintf("invalid academic year %q", label)}
	}
	ay := NewAcademicYear(start, startMonth)
	if len(parts) == 2 {
		end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || end != ay.EndYear() {
			return AcademicYear{}, &ValidationError{Field: "academic_year", Reason: fmt.Sprintf("invalid academic year %q", label)}
		}
	} else if len(parts) > 2 {
		return AcademicYear{}, &ValidationError{Field: "academic_year", Reason: fmt.Sprintf("invalid academic year %q", label)}
	}
	return ay, nil
}

// EndYear is the calendar year of the months after the wrap.
// A year starting in Januari never wraps.
func (ay AcademicYear) EndYear() int {
	if ay.StartMonth == Januari {
		return ay.StartYear
	}
	return ay.StartYear + 1
}

func (ay AcademicYear) Label() string {
	if ay.EndYear() == ay.StartYear {
		return strconv.Itoa(ay.StartYear)
	}
	return fmt.Sprintf("%d/%d", ay.StartYear, ay.EndYear())
}

// YearFor maps a month of this academic year to its calendar year.
func (ay AcademicYear) YearFor(m Month) int {
	if m >= ay.StartMonth {
		return ay.StartYear
	}
	return ay.EndYear()
}

// MonthYears maps months (in academic order) to billing slots.
func (ay AcademicYear) MonthYears(months []Month) []MonthYear {
	slots := make([]MonthYear, 0, len(months))
	for _, m := range months {
		slots = append(slots, MonthYear{Month: m, Year: ay.YearFor(m)})
	}
	return slots
}

// Months returns all twelve months in academic order.
func (ay AcademicYear) Months() []Month {
	months := make([]Month, 0, 12)
	for i := 0; i < 12; i++ {
		months = append(months, Month((int(ay.StartMonth)-1+i)%12+1))
	}
	return months
}

// NormalizeTargetMonths validates, dedupes and orders months in academic
// order starting at startMonth, so Juli..Desember precede Januari..Juni.
func NormalizeTargetMonths(months []Month, startMonth Month) ([]Month, error) {
	if !startMonth.Valid() {
		startMonth = Juli
	}
	seen := make(map[Month]bool, len(months))
	result := make([]Month, 0, len(months))
	for _, m := range months {
		if !m.Valid() {
			return nil, fmt.Errorf("%w: %d", ErrInvalidMonth, int(m))
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		result = append(result, m)
	}
	offset := func(m Month) int { return (int(m) - int(startMonth) + 12) % 12 }
	sort.Slice(result, func(i, j int) bool { return offset(result[i]) < offset(result[j]) })
	return result, nil
}
