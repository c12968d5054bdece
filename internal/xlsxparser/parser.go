// =============================================================================
// NFe to XLSX Converter - XLSX Template Parser
// =============================================================================
//
// This module reads XLSX files in two roles:
//   1. Template definitions: a sheet listing the columns of a named export
//      template, one column per row.
//   2. Exported workbooks: reading a produced workbook back (inspect command
//      and tests).
//
// TEMPLATE STRUCTURE (Expected Columns):
//
//   | Column A   | Column B            | Column C |
//   |------------|---------------------|----------|
//   | Column Id  | Header Label        | Width    |
//   | numeroNF   |                     |          |
//   | valorTotal | Total da Nota       | 18       |
//   | chaveNF    | Chave de Acesso     | 48       |
//
// Row 1 is a header row and is skipped. Label and width are optional.
// The template name is taken from cell E1 when present, else from the file
// name.
//
// =============================================================================

package xlsxparser

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// =============================================================================
// TEMPLATE DEFINITION STRUCTURE
// =============================================================================

// Definition is a named template read from an XLSX sheet.
type Definition struct {
	// SourceFile is the path the definition was read from.
	SourceFile string

	// ID is the file name without extension.
	ID string

	// Name is the display name.
	Name string

	// Columns in sheet order.
	Columns []ColumnDef
}

// ColumnDef is one row of a definition sheet.
type ColumnDef struct {
	ID    string
	Label string
	Width float64
}

// TemplateColumns defines which columns of the definition sheet hold which
// data. Indices are 0-based (A=0).
type TemplateColumns struct {
	IDColumn     int
	LabelColumn  int
	WidthColumn  int
	DataStartRow int
	NameCell     string
}

// DefaultTemplateColumns returns the default layout.
func DefaultTemplateColumns() TemplateColumns {
	return TemplateColumns{
		IDColumn:     0, // Column A
		LabelColumn:  1, // Column B
		WidthColumn:  2, // Column C
		DataStartRow: 1, // Row 2
		NameCell:     "E1",
	}
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// ParseTemplate reads a template definition file.
//
// PARAMETERS:
//   - templatePath: The path to the XLSX definition file.
//
// RETURNS:
//   - The parsed definition.
//   - An error if the file cannot be opened or a width is not a number.
func ParseTemplate(templatePath string) (*Definition, error) {
	return ParseTemplateWithConfig(templatePath, DefaultTemplateColumns())
}

// ParseTemplateWithConfig reads a template definition using a custom layout.
func ParseTemplateWithConfig(templatePath string, columns TemplateColumns) (*Definition, error) {
	f, err := excelize.OpenFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open template file: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("template file has no sheets")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	id := strings.TrimSuffix(filepath.Base(templatePath), filepath.Ext(templatePath))
	def := &Definition{SourceFile: templatePath, ID: id, Name: id}

	if columns.NameCell != "" {
		name, err := f.GetCellValue(sheetName, columns.NameCell)
		if err == nil && strings.TrimSpace(name) != "" {
			def.Name = strings.TrimSpace(name)
		}
	}

	for i := columns.DataStartRow; i < len(rows); i++ {
		row := rows[i]
		if isRowEmpty(row) {
			continue
		}

		colDef, err := parseRow(row, columns)
		if err != nil {
			return nil, fmt.Errorf("error parsing row %d: %w", i+1, err)
		}
		if colDef.ID == "" {
			continue
		}
		def.Columns = append(def.Columns, colDef)
	}

	return def, nil
}

// parseRow extracts a ColumnDef from a single row.
func parseRow(row []string, columns TemplateColumns) (ColumnDef, error) {
	def := ColumnDef{
		ID:    getCell(row, columns.IDColumn),
		Label: getCell(row, columns.LabelColumn),
	}

	if w := getCell(row, columns.WidthColumn); w != "" {
		width, err := strconv.ParseFloat(strings.Replace(w, ",", ".", 1), 64)
		if err != nil {
			return def, fmt.Errorf("invalid width %q: %w", w, err)
		}
		def.Width = width
	}

	return def, nil
}

// =============================================================================
// WORKBOOK READ-BACK
// =============================================================================

// Sheet is the content of one worksheet as displayed text.
type Sheet struct {
	Name string
	Rows [][]string
}

// ReadWorkbook reads every sheet of a workbook.
func ReadWorkbook(r io.Reader) ([]Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var sheets []Sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", name, err)
		}
		sheets = append(sheets, Sheet{Name: name, Rows: rows})
	}
	return sheets, nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// getCell safely gets a trimmed cell value from a row.
func getCell(row []string, index int) string {
	if index < 0 || index >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[index])
}

// isRowEmpty checks if all cells in a row are empty.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
