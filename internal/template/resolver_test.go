package template

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/logging"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/types"
)

func ids(t *types.Template) []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.ID
	}
	return out
}

func cols(idList ...string) []ColumnRequest {
	out := make([]ColumnRequest, len(idList))
	for i, id := range idList {
		out[i] = ColumnRequest{ID: id}
	}
	return out
}

func TestStandardCatalog(t *testing.T) {
	c := StandardCatalog()
	assert.Len(t, c.Columns(), 45)

	def := c.Default()
	assert.Equal(t, DefaultTemplateID, def.ID)
	assert.Equal(t, DefaultTemplateName, def.Name)
	require.Len(t, def.Columns, DefaultColumnCount)
	assert.Equal(t, "numeroNF", def.Columns[0].ID)
	assert.Equal(t, "ieEmitente", def.Columns[18].ID)

	for _, spec := range c.Columns() {
		assert.Equal(t, spec.ID, spec.Key.String(), "column id and record key agree")
		assert.Equal(t, spec.ID == "numeroNF" || spec.ID == "chaveNF", spec.Required)
	}
}

func TestNewCatalog(t *testing.T) {
	spec := types.ColumnSpec{ID: "a", Label: "A", Key: types.KeyCFOP, Format: types.FormatText}

	_, err := NewCatalog([]types.ColumnSpec{spec, spec}, 1)
	var ite *InvalidTemplateError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, []string{"a"}, ite.IDs)

	_, err = NewCatalog([]types.ColumnSpec{spec}, 2)
	assert.Error(t, err)

	bad := spec
	bad.Format = "percent"
	_, err = NewCatalog([]types.ColumnSpec{bad}, 1)
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	catalog := StandardCatalog()

	t.Run("should return the default template for an empty request", func(t *testing.T) {
		tpl, dropped, err := Resolve(catalog, Request{Name: "ignored"}, UnknownDrop)
		require.NoError(t, err)
		assert.Empty(t, dropped)
		assert.Equal(t, catalog.Default(), tpl)
	})

	t.Run("should append missing required columns in catalog order", func(t *testing.T) {
		tpl, _, err := Resolve(catalog, Request{Columns: cols("valorTotal", "cfop")}, UnknownDrop)
		require.NoError(t, err)
		assert.Equal(t, []string{"valorTotal", "cfop", "numeroNF", "chaveNF"}, ids(tpl))
		assert.Equal(t, CustomTemplateID, tpl.ID)
		assert.Equal(t, CustomTemplateName, tpl.Name)
	})

	t.Run("should keep the first occurrence of repeated ids", func(t *testing.T) {
		tpl, _, err := Resolve(catalog, Request{Columns: []ColumnRequest{
			{ID: "chaveNF", Label: "Chave"},
			{ID: "numeroNF"},
			{ID: "chaveNF", Label: "Outra"},
		}}, UnknownDrop)
		require.NoError(t, err)
		assert.Equal(t, []string{"chaveNF", "numeroNF"}, ids(tpl))
		assert.Equal(t, "Chave", tpl.Columns[0].Label)
	})

	t.Run("should drop unknown ids and suggest the closest one", func(t *testing.T) {
		tpl, dropped, err := Resolve(catalog, Request{Columns: cols("valorTotl", "zzzzzzzzzzzz", "cfop")}, UnknownDrop)
		require.NoError(t, err)
		assert.Equal(t, []string{"cfop", "numeroNF", "chaveNF"}, ids(tpl))
		require.Len(t, dropped, 2)
		assert.Equal(t, Dropped{ID: "valorTotl", Suggestion: "valorTotal"}, dropped[0])
		assert.Equal(t, Dropped{ID: "zzzzzzzzzzzz"}, dropped[1])
	})

	t.Run("should fall back to the default template when no id resolves", func(t *testing.T) {
		tpl, dropped, err := Resolve(catalog, Request{Name: "Vazio", Columns: cols("x", "y")}, UnknownDrop)
		require.NoError(t, err)
		assert.Equal(t, catalog.Default(), tpl)
		assert.Len(t, tpl.Columns, DefaultColumnCount)
		assert.Len(t, dropped, 2)
	})

	t.Run("should return the same default on every unresolvable request", func(t *testing.T) {
		first, _, err := Resolve(catalog, Request{Columns: cols("x", "y")}, UnknownDrop)
		require.NoError(t, err)
		second, _, err := Resolve(catalog, Request{Columns: cols("x", "y")}, UnknownDrop)
		require.NoError(t, err)
		assert.Equal(t, catalog.Default(), first)
		assert.Equal(t, first, second)
	})

	t.Run("should still reject unresolvable requests under the reject policy", func(t *testing.T) {
		_, _, err := Resolve(catalog, Request{Columns: cols("x", "y")}, UnknownReject)
		var ite *InvalidTemplateError
		require.True(t, errors.As(err, &ite))
		assert.Equal(t, []string{"x", "y"}, ite.IDs)
	})

	t.Run("should reject unknown ids under the reject policy", func(t *testing.T) {
		_, _, err := Resolve(catalog, Request{Columns: cols("cfop", "nope")}, UnknownReject)
		var ite *InvalidTemplateError
		require.True(t, errors.As(err, &ite))
		assert.Equal(t, []string{"nope"}, ite.IDs)
	})

	t.Run("should apply label and width overrides", func(t *testing.T) {
		tpl, _, err := Resolve(catalog, Request{ID: "t1", Name: "Fiscal", Columns: []ColumnRequest{
			{ID: "valorTotal", Label: " Total ", Width: 22},
		}}, UnknownDrop)
		require.NoError(t, err)
		assert.Equal(t, "t1", tpl.ID)
		assert.Equal(t, "Fiscal", tpl.Name)
		assert.Equal(t, "Total", tpl.Columns[0].Label)
		assert.Equal(t, 22.0, tpl.Columns[0].Width)
		assert.Equal(t, types.FormatCurrency, tpl.Columns[0].Format)
	})

	t.Run("should reject an out of range width", func(t *testing.T) {
		_, _, err := Resolve(catalog, Request{Columns: []ColumnRequest{{ID: "cfop", Width: 300}}}, UnknownDrop)
		var ite *InvalidTemplateError
		assert.True(t, errors.As(err, &ite))

		_, _, err = Resolve(catalog, Request{Columns: []ColumnRequest{{ID: "cfop", Width: -1}}}, UnknownDrop)
		assert.True(t, errors.As(err, &ite))
	})

	t.Run("should be idempotent", func(t *testing.T) {
		reqs := []Request{
			{},
			{Columns: cols("valorTotal", "unknown", "cfop", "valorTotal")},
			{Name: "X", Columns: []ColumnRequest{{ID: "serie", Label: "S", Width: 12}}},
		}
		for _, req := range reqs {
			first, _, err := Resolve(catalog, req, UnknownDrop)
			require.NoError(t, err)
			second, dropped, err := Resolve(catalog, RequestFrom(first), UnknownDrop)
			require.NoError(t, err)
			assert.Empty(t, dropped)
			assert.Equal(t, first, second)
		}
	})
}

func TestParseUnknownPolicy(t *testing.T) {
	p, err := ParseUnknownPolicy("")
	require.NoError(t, err)
	assert.Equal(t, UnknownDrop, p)

	p, err = ParseUnknownPolicy("REJECT")
	require.NoError(t, err)
	assert.Equal(t, UnknownReject, p)

	_, err = ParseUnknownPolicy("ignore")
	assert.Error(t, err)
}

func TestResolverLogsDroppedColumns(t *testing.T) {
	var buf bytes.Buffer
	r := NewResolver(StandardCatalog(), UnknownDrop, logging.New(&buf, logging.LevelDebug))

	_, err := r.Resolve(Request{Columns: cols("cfopp")})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), `did you mean \"cfop\"?`)
}
