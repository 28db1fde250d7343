package factory

import (
	"encoding/json"

	"github.com/warp/pesantren-billing/billing"
)

// =============================================================================
// PRESET DEFINITIONS
// =============================================================================
//
// JSON for the bills most pesantren run every year. Parse the result with
// DefinitionFactory.Parse like any definition posted from the dashboard.

var fullYear = []string{
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
}

// SPPJSON returns JSON for a monthly SPP bill with one amount for everyone.
func SPPJSON(id, name string, amount int64, dueDay int, account string) string {
	return presetJSON(map[string]any{
		"id":                id,
		"name":              name,
		"category":          "recurring",
		"target_months":     fullYear,
		"amount_type":       "uniform",
		"amount":            amount,
		"due_day":           dueDay,
		"ledger_account_id": account,
	})
}

// PerClassSPPJSON returns JSON for a monthly bill priced by class.
func PerClassSPPJSON(id, name string, amounts map[string]int64, dueDay int, account string) string {
	return presetJSON(map[string]any{
		"id":                id,
		"name":              name,
		"category":          "recurring",
		"target_months":     fullYear,
		"amount_type":       "per_class",
		"per_class":         amounts,
		"due_day":           dueDay,
		"ledger_account_id": account,
	})
}

// OneOffJSON returns JSON for a non-recurring bill such as uang gedung.
func OneOffJSON(id, name string, amount int64, due billing.Date, account string) string {
	return presetJSON(map[string]any{
		"id":                id,
		"name":              name,
		"category":          "non_recurring",
		"target_months":     []string{due.Month().String()},
		"amount_type":       "uniform",
		"amount":            amount,
		"due_date":          due.String(),
		"ledger_account_id": account,
	})
}

func presetJSON(v map[string]any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
