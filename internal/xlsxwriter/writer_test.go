package xlsxwriter

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/template"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/types"
)

var stringCellTypes = []excelize.CellType{excelize.CellTypeSharedString, excelize.CellTypeInlineString}

func sampleRecord() *types.FiscalRecord {
	return &types.FiscalRecord{
		NumeroNF:          "000123",
		ChaveNF:           "35200114200166000119550010000123451234567892",
		CFOP:              "5102",
		ValorTotal:        "1234.50",
		PesoLiquido:       "10.500",
		DataEmissao:       "2020-01-15",
		NomeEmitente:      "Empresa Emitente LTDA",
		Observacoes:       strings.Repeat("x", 80),
		MunicipioEmitente: "São Paulo",
	}
}

func openWorkbook(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func cellStyle(t *testing.T, f *excelize.File, cell string) *excelize.Style {
	t.Helper()
	id, err := f.GetCellStyle(SheetName, cell)
	require.NoError(t, err)
	st, err := f.GetStyle(id)
	require.NoError(t, err)
	return st
}

func rawValue(t *testing.T, f *excelize.File, cell string) string {
	t.Helper()
	v, err := f.GetCellValue(SheetName, cell, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	return v
}

func TestWrite(t *testing.T) {
	tpl, _, err := template.Resolve(template.StandardCatalog(), template.Request{Columns: []template.ColumnRequest{
		{ID: "numeroNF"},
		{ID: "chaveNF"},
		{ID: "valorTotal"},
		{ID: "pesoLiquido"},
		{ID: "dataEmissao"},
		{ID: "dataVencimento"},
		{ID: "observacoes"},
		{ID: "nomeEmitente", Width: 30},
	}}, template.UnknownDrop)
	require.NoError(t, err)

	data, err := Write([]*types.FiscalRecord{sampleRecord(), {NumeroNF: "2", ValorTotal: "0.00"}}, tpl)
	require.NoError(t, err)
	f := openWorkbook(t, data)

	t.Run("should produce exactly one named sheet", func(t *testing.T) {
		assert.Equal(t, []string{SheetName}, f.GetSheetList())
	})

	t.Run("should write header labels in template order", func(t *testing.T) {
		rows, err := f.GetRows(SheetName)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, []string{
			"Número NF", "Chave NF", "Valor Total", "Peso Líquido",
			"Data Emissão", "Data Vencimento", "Observações", "Nome Emitente",
		}, rows[0])

		st := cellStyle(t, f, "A1")
		require.NotNil(t, st.Font)
		assert.True(t, st.Font.Bold)
	})

	t.Run("should keep invoice number and access key as text", func(t *testing.T) {
		for _, cell := range []string{"A2", "B2"} {
			ct, err := f.GetCellType(SheetName, cell)
			require.NoError(t, err)
			assert.Contains(t, stringCellTypes, ct, cell)
			assert.Equal(t, builtinText, cellStyle(t, f, cell).NumFmt, cell)
		}
		assert.Equal(t, "000123", rawValue(t, f, "A2"))
		assert.Equal(t, "35200114200166000119550010000123451234567892", rawValue(t, f, "B2"))
	})

	t.Run("should write currency and weights as numbers with masks", func(t *testing.T) {
		ct, err := f.GetCellType(SheetName, "C2")
		require.NoError(t, err)
		assert.NotContains(t, stringCellTypes, ct)

		v, err := strconv.ParseFloat(rawValue(t, f, "C2"), 64)
		require.NoError(t, err)
		assert.Equal(t, 1234.5, v)
		require.NotNil(t, cellStyle(t, f, "C2").CustomNumFmt)
		assert.Equal(t, currencyMask, *cellStyle(t, f, "C2").CustomNumFmt)

		w, err := strconv.ParseFloat(rawValue(t, f, "D2"), 64)
		require.NoError(t, err)
		assert.Equal(t, 10.5, w)
		require.NotNil(t, cellStyle(t, f, "D2").CustomNumFmt)
		assert.Equal(t, weightMask, *cellStyle(t, f, "D2").CustomNumFmt)
	})

	t.Run("should mask only non-empty dates", func(t *testing.T) {
		assert.NotEmpty(t, rawValue(t, f, "E2"))
		require.NotNil(t, cellStyle(t, f, "E2").CustomNumFmt)
		assert.Equal(t, dateMask, *cellStyle(t, f, "E2").CustomNumFmt)

		assert.Empty(t, rawValue(t, f, "F2"))
		assert.Nil(t, cellStyle(t, f, "F2").CustomNumFmt)
	})

	t.Run("should size columns from content and honor explicit widths", func(t *testing.T) {
		cases := map[string]float64{
			"A": MinAutoWidth,
			"B": 44,
			"G": MaxAutoWidth,
			"H": 30,
		}
		for col, want := range cases {
			got, err := f.GetColWidth(SheetName, col)
			require.NoError(t, err)
			assert.Equal(t, want, got, col)
		}
	})
}

func TestWriteWithDefaultTemplate(t *testing.T) {
	tpl := template.StandardCatalog().Default()
	data, err := Write([]*types.FiscalRecord{sampleRecord()}, tpl)
	require.NoError(t, err)

	f := openWorkbook(t, data)
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], template.DefaultColumnCount)
}

func TestWriteRejectsEmptyTemplate(t *testing.T) {
	_, err := Write(nil, &types.Template{})
	assert.Error(t, err)

	_, err = Write(nil, nil)
	assert.Error(t, err)
}

func TestAutoWidth(t *testing.T) {
	assert.Equal(t, 10.0, AutoWidth(0))
	assert.Equal(t, 25.0, AutoWidth(25))
	assert.Equal(t, 50.0, AutoWidth(51))
}
