// =============================================================================
// NFe to XLSX Converter - Spreadsheet Writer
// =============================================================================
//
// This module renders FiscalRecords through a resolved Template into a single
// worksheet workbook.
//
// LAYOUT:
//   Row 1      : header labels (bold white on green, centered)
//   Row 2..n+1 : one row per record, in input order
//
// CELL TYPING:
//   text      -> string cell
//   currency  -> numeric cell, "R$" #,##0.00
//   number    -> numeric cell, #,##0.000 for weights, #,##0.00 otherwise
//   date      -> date cell, dd/mm/yyyy (empty values stay empty)
//   Invoice number and access key are always string cells with the "@"
//   format so spreadsheet software never turns them into numbers.
//
// =============================================================================

package xlsxwriter

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/types"
)

const (
	// SheetName is the name of the only worksheet.
	SheetName = "Notas Fiscais"

	// ContentType is the MIME type of the produced workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	MinAutoWidth = 10
	MaxAutoWidth = 50

	headerFill  = "22C55E"
	headerFont  = "FFFFFF"
	borderColor = "D1D5DB"

	currencyMask = `"R$" #,##0.00`
	weightMask   = "#,##0.000"
	numberMask   = "#,##0.00"
	dateMask     = "dd/mm/yyyy"

	// builtinText is the excelize built-in number format id for "@".
	builtinText = 49
)

// styles holds the style ids registered in one workbook.
type styles struct {
	header   int
	text     int
	forced   int
	currency int
	weight   int
	number   int
	date     int
}

// Write renders records through tpl.
//
// PARAMETERS:
//   - records: rows in output order.
//   - tpl: a resolved template; it must have at least one column.
//
// RETURNS:
//   - The workbook bytes.
//   - An error if the template is empty or excelize fails.
func Write(records []*types.FiscalRecord, tpl *types.Template) ([]byte, error) {
	if tpl == nil || len(tpl.Columns) == 0 {
		return nil, fmt.Errorf("template has no columns")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	st, err := registerStyles(f)
	if err != nil {
		return nil, err
	}

	widths := make([]int, len(tpl.Columns))

	// =========================================================================
	// HEADER ROW
	// =========================================================================

	for i, col := range tpl.Columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellStr(SheetName, cell, col.Label); err != nil {
			return nil, fmt.Errorf("failed to write header %s: %w", col.ID, err)
		}
		widths[i] = utf8.RuneCountInString(col.Label)
	}

	last, err := excelize.CoordinatesToCellName(len(tpl.Columns), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(SheetName, "A1", last, st.header); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	// =========================================================================
	// DATA ROWS
	// =========================================================================

	for r, rec := range records {
		row := r + 2
		for i, col := range tpl.Columns {
			cell, err := excelize.CoordinatesToCellName(i+1, row)
			if err != nil {
				return nil, err
			}
			value := col.Key.Value(rec)
			if err := writeCell(f, cell, col, value, st); err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", row, col.ID, err)
			}
			if n := utf8.RuneCountInString(value); n > widths[i] {
				widths[i] = n
			}
		}
	}

	// =========================================================================
	// COLUMN WIDTHS
	// =========================================================================

	for i, col := range tpl.Columns {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		width := col.Width
		if width <= 0 {
			width = AutoWidth(widths[i])
		}
		if err := f.SetColWidth(SheetName, name, name, width); err != nil {
			return nil, fmt.Errorf("failed to set width of %s: %w", col.ID, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// AutoWidth clamps the longest content length to [MinAutoWidth, MaxAutoWidth].
func AutoWidth(longest int) float64 {
	switch {
	case longest < MinAutoWidth:
		return MinAutoWidth
	case longest > MaxAutoWidth:
		return MaxAutoWidth
	}
	return float64(longest)
}

// writeCell stores one value according to the column format.
func writeCell(f *excelize.File, cell string, col types.ColumnSpec, value string, st *styles) error {
	if col.Key.IsForcedText() {
		if err := f.SetCellStr(SheetName, cell, value); err != nil {
			return err
		}
		return f.SetCellStyle(SheetName, cell, cell, st.forced)
	}

	switch col.Format {
	case types.FormatCurrency, types.FormatNumber:
		style := st.currency
		if col.Format == types.FormatNumber {
			style = st.number
			if col.Key.IsWeight() {
				style = st.weight
			}
		}
		d, err := decimal.NewFromString(value)
		if err != nil {
			// Not a number: write it as text.
			if err := f.SetCellStr(SheetName, cell, value); err != nil {
				return err
			}
			return f.SetCellStyle(SheetName, cell, cell, st.text)
		}
		if err := f.SetCellFloat(SheetName, cell, d.InexactFloat64(), -1, 64); err != nil {
			return err
		}
		return f.SetCellStyle(SheetName, cell, cell, style)

	case types.FormatDate:
		if value == "" {
			return f.SetCellStyle(SheetName, cell, cell, st.text)
		}
		t, err := time.Parse("2006-01-02", value)
		if err != nil {
			if err := f.SetCellStr(SheetName, cell, value); err != nil {
				return err
			}
			return f.SetCellStyle(SheetName, cell, cell, st.text)
		}
		if err := f.SetCellValue(SheetName, cell, t); err != nil {
			return err
		}
		return f.SetCellStyle(SheetName, cell, cell, st.date)

	default:
		if err := f.SetCellStr(SheetName, cell, value); err != nil {
			return err
		}
		return f.SetCellStyle(SheetName, cell, cell, st.text)
	}
}

// =============================================================================
// STYLES
// =============================================================================

func thinBorder() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: borderColor, Style: 1},
		{Type: "top", Color: borderColor, Style: 1},
		{Type: "right", Color: borderColor, Style: 1},
		{Type: "bottom", Color: borderColor, Style: 1},
	}
}

func registerStyles(f *excelize.File) (*styles, error) {
	mask := func(s string) *string { return &s }
	st := &styles{}

	defs := []struct {
		dst   *int
		style *excelize.Style
	}{
		{&st.header, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Color: headerFont},
			Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerFill}},
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
			Border:    thinBorder(),
		}},
		{&st.text, &excelize.Style{Border: thinBorder()}},
		{&st.forced, &excelize.Style{Border: thinBorder(), NumFmt: builtinText}},
		{&st.currency, &excelize.Style{Border: thinBorder(), CustomNumFmt: mask(currencyMask)}},
		{&st.weight, &excelize.Style{Border: thinBorder(), CustomNumFmt: mask(weightMask)}},
		{&st.number, &excelize.Style{Border: thinBorder(), CustomNumFmt: mask(numberMask)}},
		{&st.date, &excelize.Style{Border: thinBorder(), CustomNumFmt: mask(dateMask)}},
	}

	for _, d := range defs {
		id, err := f.NewStyle(d.style)
		if err != nil {
			return nil, fmt.Errorf("failed to register style: %w", err)
		}
		*d.dst = id
	}
	return st, nil
}
