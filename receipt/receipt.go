// Package receipt renders the kwitansi PDF handed to a guardian after a
// payment is recorded.
package receipt

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf/v2"

	"github.com/warp/pesantren-billing/billing"
)

// Line is one paid bill on the receipt.
type Line struct {
	Bill   string
	Period string
	Amount billing.Money
}

// Receipt is everything printed on a kwitansi.
type Receipt struct {
	Institution string
	Payment     billing.Payment
	Student     billing.Student
	Lines       []Line
}

// Build assembles a receipt from a stored payment. Allocations whose bill
// definition is unknown are printed with the definition id.
func Build(institution string, p billing.Payment, st billing.Student, defs map[billing.DefinitionID]billing.BillDefinition) Receipt {
	r := Receipt{Institution: institution, Payment: p, Student: st}
	for _, a := range p.Allocations {
		name := string(a.DefinitionID)
		if def, ok := defs[a.DefinitionID]; ok {
			name = def.Name
		}
		r.Lines = append(r.Lines, Line{
			Bill:   name,
			Period: billing.MonthYear{Month: a.Month, Year: a.Year}.String(),
			Amount: a.Applied,
		})
	}
	return r
}

// Total is the sum of the printed lines.
func (r Receipt) Total() billing.Money {
	total := billing.Zero
	for _, l := range r.Lines {
		total = total.Add(l.Amount)
	}
	return total
}

// PDF renders the receipt on an A5 landscape page.
func (r Receipt) PDF() ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A5", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetTitle(fmt.Sprintf("Kwitansi %s", r.Payment.ID), false)
	pdf.AddPage()

	// Header
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(190, 8, r.Institution, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(190, 7, "KWITANSI PEMBAYARAN", "", 1, "C", false, 0, "")
	pdf.Ln(3)

	// Payment info
	pdf.SetFont("Arial", "", 10)
	info := [][2]string{
		{"No. Kwitansi", string(r.Payment.ID)},
		{"Tanggal", r.Payment.Date.String()},
		{"Nama Santri", r.Student.Name},
		{"NIS / Kelas", fmt.Sprintf("%s / %s", r.Student.NIS, r.Student.ClassName)},
		{"Metode", string(r.Payment.Method)},
	}
	for _, row := range info {
		pdf.CellFormat(40, 6, row[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(150, 6, ": "+row[1], "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)

	// Table header
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(200, 200, 200)
	pdf.CellFormat(10, 7, "No", "1", 0, "C", true, 0, "")
	pdf.CellFormat(90, 7, "Tagihan", "1", 0, "C", true, 0, "")
	pdf.CellFormat(45, 7, "Periode", "1", 0, "C", true, 0, "")
	pdf.CellFormat(45, 7, "Nominal", "1", 1, "C", true, 0, "")

	pdf.SetFont("Arial", "", 10)
	for i, l := range r.Lines {
		pdf.CellFormat(10, 6, fmt.Sprintf("%d", i+1), "1", 0, "C", false, 0, "")
		pdf.CellFormat(90, 6, l.Bill, "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, l.Period, "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, l.Amount.Rupiah(), "1", 1, "R", false, 0, "")
	}

	// Totals
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(145, 7, "Total Dibayar", "1", 0, "R", true, 0, "")
	pdf.CellFormat(45, 7, r.Total().Rupiah(), "1", 1, "R", true, 0, "")
	if r.Payment.Unapplied.IsPositive() {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(145, 6, "Sisa uang (tidak teralokasi)", "1", 0, "R", false, 0, "")
		pdf.CellFormat(45, 6, r.Payment.Unapplied.Rupiah(), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(130, 6, "", "", 0, "L", false, 0, "")
	pdf.CellFormat(60, 6, "Penerima,", "", 1, "C", false, 0, "")
	pdf.Ln(12)
	pdf.CellFormat(130, 6, "", "", 0, "L", false, 0, "")
	pdf.CellFormat(60, 6, r.Payment.ReceivedBy, "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return buf.Bytes(), nil
}
