// =============================================================================
// NFe to XLSX Converter - Column Catalog
// =============================================================================
//
// The catalog is the closed, ordered list of columns an export can contain.
// Templates only ever select from it; a column id outside the catalog cannot
// reach the spreadsheet writer.
//
// DEFAULT TEMPLATE:
//   The first DefaultColumnCount catalog columns, id "default", name "Padrão".
//
// =============================================================================

package template

import (
	"fmt"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/types"
)

const (
	// DefaultColumnCount is how many leading catalog columns the default
	// template holds.
	DefaultColumnCount = 19

	DefaultTemplateID   = "default"
	DefaultTemplateName = "Padrão"
)

// Catalog is an immutable ordered set of columns.
type Catalog struct {
	columns      []types.ColumnSpec
	byID         map[string]int
	defaultCount int
}

// NewCatalog validates columns and builds a catalog.
//
// RETURNS:
//   - An *InvalidTemplateError when ids repeat, a key or format is invalid,
//     or defaultCount is out of range.
func NewCatalog(columns []types.ColumnSpec, defaultCount int) (*Catalog, error) {
	if len(columns) == 0 {
		return nil, &InvalidTemplateError{Reason: "catalog has no columns"}
	}
	if defaultCount <= 0 || defaultCount > len(columns) {
		return nil, &InvalidTemplateError{Reason: fmt.Sprintf("default column count %d out of range", defaultCount)}
	}

	c := &Catalog{
		columns:      make([]types.ColumnSpec, len(columns)),
		byID:         make(map[string]int, len(columns)),
		defaultCount: defaultCount,
	}
	copy(c.columns, columns)

	for i, col := range c.columns {
		if col.ID == "" {
			return nil, &InvalidTemplateError{Reason: fmt.Sprintf("catalog column %d has no id", i)}
		}
		if _, dup := c.byID[col.ID]; dup {
			return nil, &InvalidTemplateError{Reason: "duplicate catalog column", IDs: []string{col.ID}}
		}
		if !col.Key.Valid() || !col.Format.Valid() {
			return nil, &InvalidTemplateError{Reason: "invalid key or format", IDs: []string{col.ID}}
		}
		c.byID[col.ID] = i
	}

	return c, nil
}

// Columns returns a copy of the catalog in order.
func (c *Catalog) Columns() []types.ColumnSpec {
	out := make([]types.ColumnSpec, len(c.columns))
	copy(out, c.columns)
	return out
}

// Lookup returns the catalog column with the given id.
func (c *Catalog) Lookup(id string) (types.ColumnSpec, bool) {
	i, ok := c.byID[id]
	if !ok {
		return types.ColumnSpec{}, false
	}
	return c.columns[i], true
}

// IDs returns every column id in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.columns))
	for i, col := range c.columns {
		ids[i] = col.ID
	}
	return ids
}

// Default returns a fresh copy of the default template.
func (c *Catalog) Default() *types.Template {
	cols := make([]types.ColumnSpec, c.defaultCount)
	copy(cols, c.columns[:c.defaultCount])
	return &types.Template{
		ID:      DefaultTemplateID,
		Name:    DefaultTemplateName,
		Columns: cols,
	}
}

// =============================================================================
// STANDARD CATALOG
// =============================================================================

func col(id, label string, key types.ColumnKey, format types.ColumnFormat) types.ColumnSpec {
	return types.ColumnSpec{ID: id, Label: label, Key: key, Format: format}
}

// standardColumns is the NF-e catalog. Order matters: the first 19 form the
// default template.
var standardColumns = []types.ColumnSpec{
	{ID: "numeroNF", Label: "Número NF", Key: types.KeyNumeroNF, Format: types.FormatText, Required: true},
	{ID: "chaveNF", Label: "Chave NF", Key: types.KeyChaveNF, Format: types.FormatText, Required: true},
	col("cfop", "CFOP", types.KeyCFOP, types.FormatText),
	col("cst", "CST", types.KeyCST, types.FormatText),
	col("nomeEmitente", "Nome Emitente", types.KeyNomeEmitente, types.FormatText),
	col("cnpjCpfEmitente", "CNPJ/CPF Emitente", types.KeyCNPJCPFEmitente, types.FormatText),
	col("nomeDestinatario", "Nome Destinatário", types.KeyNomeDestinatario, types.FormatText),
	col("cnpjCpfDestinatario", "CNPJ/CPF Destinatário", types.KeyCNPJCPFDestinatario, types.FormatText),
	col("valorTotal", "Valor Total", types.KeyValorTotal, types.FormatCurrency),
	col("valorICMS", "Valor ICMS", types.KeyValorICMS, types.FormatCurrency),
	col("valorPIS", "Valor PIS", types.KeyValorPIS, types.FormatCurrency),
	col("valorCOFINS", "Valor COFINS", types.KeyValorCOFINS, types.FormatCurrency),
	col("valorIPI", "Valor IPI", types.KeyValorIPI, types.FormatCurrency),
	col("pesoLiquido", "Peso Líquido", types.KeyPesoLiquido, types.FormatNumber),
	col("pesoBruto", "Peso Bruto", types.KeyPesoBruto, types.FormatNumber),
	col("transportadora", "Transportadora", types.KeyTransportadora, types.FormatText),
	col("placaVeiculo", "Placa Veículo", types.KeyPlacaVeiculo, types.FormatText),
	col("ieEmissor", "IE Emissor", types.KeyIEEmissor, types.FormatText),
	col("ieEmitente", "IE Emitente", types.KeyIEEmitente, types.FormatText),

	col("dataEmissao", "Data Emissão", types.KeyDataEmissao, types.FormatDate),
	col("dataVencimento", "Data Vencimento", types.KeyDataVencimento, types.FormatDate),
	col("naturezaOperacao", "Natureza Operação", types.KeyNaturezaOperacao, types.FormatText),
	col("modelo", "Modelo", types.KeyModelo, types.FormatText),
	col("serie", "Série", types.KeySerie, types.FormatText),
	col("finalidadeEmissao", "Finalidade Emissão", types.KeyFinalidadeEmissao, types.FormatText),
	col("consumidorFinal", "Consumidor Final", types.KeyConsumidorFinal, types.FormatText),
	col("presencaComprador", "Presença Comprador", types.KeyPresencaComprador, types.FormatText),
	col("municipioEmitente", "Município Emitente", types.KeyMunicipioEmitente, types.FormatText),
	col("ufEmitente", "UF Emitente", types.KeyUFEmitente, types.FormatText),
	col("cepEmitente", "CEP Emitente", types.KeyCEPEmitente, types.FormatText),
	col("enderecoEmitente", "Endereço Emitente", types.KeyEnderecoEmitente, types.FormatText),
	col("municipioDestinatario", "Município Destinatário", types.KeyMunicipioDestinatario, types.FormatText),
	col("ufDestinatario", "UF Destinatário", types.KeyUFDestinatario, types.FormatText),
	col("cepDestinatario", "CEP Destinatário", types.KeyCEPDestinatario, types.FormatText),
	col("enderecoDestinatario", "Endereço Destinatário", types.KeyEnderecoDestinatario, types.FormatText),
	col("valorFrete", "Valor Frete", types.KeyValorFrete, types.FormatCurrency),
	col("valorSeguro", "Valor Seguro", types.KeyValorSeguro, types.FormatCurrency),
	col("valorDesconto", "Valor Desconto", types.KeyValorDesconto, types.FormatCurrency),
	col("valorOutrasDespesas", "Valor Outras Despesas", types.KeyValorOutrasDespesas, types.FormatCurrency),
	col("baseCalculoICMS", "Base Cálculo ICMS", types.KeyBaseCalculoICMS, types.FormatCurrency),
	col("baseCalculoICMSST", "Base Cálculo ICMS ST", types.KeyBaseCalculoICMSST, types.FormatCurrency),
	col("valorICMSST", "Valor ICMS ST", types.KeyValorICMSST, types.FormatCurrency),
	col("valorProdutos", "Valor Produtos", types.KeyValorProdutos, types.FormatCurrency),
	col("observacoes", "Observações", types.KeyObservacoes, types.FormatText),
	col("informacoesAdicionais", "Informações Adicionais", types.KeyInformacoesAdicionais, types.FormatText),
}

var standardCatalog = func() *Catalog {
	c, err := NewCatalog(standardColumns, DefaultColumnCount)
	if err != nil {
		panic(err)
	}
	return c
}()

// StandardCatalog returns the NF-e column catalog.
func StandardCatalog() *Catalog {
	return standardCatalog
}
