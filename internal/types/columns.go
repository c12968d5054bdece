package types

import "fmt"

// =============================================================================
// COLUMN KEYS
// =============================================================================

// ColumnKey identifies one FiscalRecord field. The set is closed: a key can
// only be obtained from the constants below or from ParseColumnKey.
type ColumnKey int

const (
	KeyNumeroNF ColumnKey = iota
	KeyChaveNF
	KeyCFOP
	KeyCST
	KeyNomeEmitente
	KeyCNPJCPFEmitente
	KeyNomeDestinatario
	KeyCNPJCPFDestinatario
	KeyValorTotal
	KeyValorICMS
	KeyValorPIS
	KeyValorCOFINS
	KeyValorIPI
	KeyPesoLiquido
	KeyPesoBruto
	KeyTransportadora
	KeyPlacaVeiculo
	KeyIEEmissor
	KeyIEEmitente
	KeyDataEmissao
	KeyDataVencimento
	KeyNaturezaOperacao
	KeyModelo
	KeySerie
	KeyFinalidadeEmissao
	KeyConsumidorFinal
	KeyPresencaComprador
	KeyMunicipioEmitente
	KeyUFEmitente
	KeyCEPEmitente
	KeyEnderecoEmitente
	KeyMunicipioDestinatario
	KeyUFDestinatario
	KeyCEPDestinatario
	KeyEnderecoDestinatario
	KeyValorFrete
	KeyValorSeguro
	KeyValorDesconto
	KeyValorOutrasDespesas
	KeyBaseCalculoICMS
	KeyBaseCalculoICMSST
	KeyValorICMSST
	KeyValorProdutos
	KeyObservacoes
	KeyInformacoesAdicionais

	numColumnKeys
)

type keyEntry struct {
	name string
	get  func(*FiscalRecord) string
}

// keyTable maps every key to its field name and accessor. Indexed by ColumnKey.
var keyTable = [numColumnKeys]keyEntry{
	KeyNumeroNF:              {"numeroNF", func(r *FiscalRecord) string { return r.NumeroNF }},
	KeyChaveNF:               {"chaveNF", func(r *FiscalRecord) string { return r.ChaveNF }},
	KeyCFOP:                  {"cfop", func(r *FiscalRecord) string { return r.CFOP }},
	KeyCST:                   {"cst", func(r *FiscalRecord) string { return r.CST }},
	KeyNomeEmitente:          {"nomeEmitente", func(r *FiscalRecord) string { return r.NomeEmitente }},
	KeyCNPJCPFEmitente:       {"cnpjCpfEmitente", func(r *FiscalRecord) string { return r.CNPJCPFEmitente }},
	KeyNomeDestinatario:      {"nomeDestinatario", func(r *FiscalRecord) string { return r.NomeDestinatario }},
	KeyCNPJCPFDestinatario:   {"cnpjCpfDestinatario", func(r *FiscalRecord) string { return r.CNPJCPFDestinatario }},
	KeyValorTotal:            {"valorTotal", func(r *FiscalRecord) string { return r.ValorTotal }},
	KeyValorICMS:             {"valorICMS", func(r *FiscalRecord) string { return r.ValorICMS }},
	KeyValorPIS:              {"valorPIS", func(r *FiscalRecord) string { return r.ValorPIS }},
	KeyValorCOFINS:           {"valorCOFINS", func(r *FiscalRecord) string { return r.ValorCOFINS }},
	KeyValorIPI:              {"valorIPI", func(r *FiscalRecord) string { return r.ValorIPI }},
	KeyPesoLiquido:           {"pesoLiquido", func(r *FiscalRecord) string { return r.PesoLiquido }},
	KeyPesoBruto:             {"pesoBruto", func(r *FiscalRecord) string { return r.PesoBruto }},
	KeyTransportadora:        {"transportadora", func(r *FiscalRecord) string { return r.Transportadora }},
	KeyPlacaVeiculo:          {"placaVeiculo", func(r *FiscalRecord) string { return r.PlacaVeiculo }},
	KeyIEEmissor:             {"ieEmissor", func(r *FiscalRecord) string { return r.IEEmissor }},
	KeyIEEmitente:            {"ieEmitente", func(r *FiscalRecord) string { return r.IEEmitente }},
	KeyDataEmissao:           {"dataEmissao", func(r *FiscalRecord) string { return r.DataEmissao }},
	KeyDataVencimento:        {"dataVencimento", func(r *FiscalRecord) string { return r.DataVencimento }},
	KeyNaturezaOperacao:      {"naturezaOperacao", func(r *FiscalRecord) string { return r.NaturezaOperacao }},
	KeyModelo:                {"modelo", func(r *FiscalRecord) string { return r.Modelo }},
	KeySerie:                 {"serie", func(r *FiscalRecord) string { return r.Serie }},
	KeyFinalidadeEmissao:     {"finalidadeEmissao", func(r *FiscalRecord) string { return r.FinalidadeEmissao }},
	KeyConsumidorFinal:       {"consumidorFinal", func(r *FiscalRecord) string { return r.ConsumidorFinal }},
	KeyPresencaComprador:     {"presencaComprador", func(r *FiscalRecord) string { return r.PresencaComprador }},
	KeyMunicipioEmitente:     {"municipioEmitente", func(r *FiscalRecord) string { return r.MunicipioEmitente }},
	KeyUFEmitente:            {"ufEmitente", func(r *FiscalRecord) string { return r.UFEmitente }},
	KeyCEPEmitente:           {"cepEmitente", func(r *FiscalRecord) string { return r.CEPEmitente }},
	KeyEnderecoEmitente:      {"enderecoEmitente", func(r *FiscalRecord) string { return r.EnderecoEmitente }},
	KeyMunicipioDestinatario: {"municipioDestinatario", func(r *FiscalRecord) string { return r.MunicipioDestinatario }},
	KeyUFDestinatario:        {"ufDestinatario", func(r *FiscalRecord) string { return r.UFDestinatario }},
	KeyCEPDestinatario:       {"cepDestinatario", func(r *FiscalRecord) string { return r.CEPDestinatario }},
	KeyEnderecoDestinatario:  {"enderecoDestinatario", func(r *FiscalRecord) string { return r.EnderecoDestinatario }},
	KeyValorFrete:            {"valorFrete", func(r *FiscalRecord) string { return r.ValorFrete }},
	KeyValorSeguro:           {"valorSeguro", func(r *FiscalRecord) string { return r.ValorSeguro }},
	KeyValorDesconto:         {"valorDesconto", func(r *FiscalRecord) string { return r.ValorDesconto }},
	KeyValorOutrasDespesas:   {"valorOutrasDespesas", func(r *FiscalRecord) string { return r.ValorOutrasDespesas }},
	KeyBaseCalculoICMS:       {"baseCalculoICMS", func(r *FiscalRecord) string { return r.BaseCalculoICMS }},
	KeyBaseCalculoICMSST:     {"baseCalculoICMSST", func(r *FiscalRecord) string { return r.BaseCalculoICMSST }},
	KeyValorICMSST:           {"valorICMSST", func(r *FiscalRecord) string { return r.ValorICMSST }},
	KeyValorProdutos:         {"valorProdutos", func(r *FiscalRecord) string { return r.ValorProdutos }},
	KeyObservacoes:           {"observacoes", func(r *FiscalRecord) string { return r.Observacoes }},
	KeyInformacoesAdicionais: {"informacoesAdicionais", func(r *FiscalRecord) string { return r.InformacoesAdicionais }},
}

var keysByName = func() map[string]ColumnKey {
	m := make(map[string]ColumnKey, numColumnKeys)
	for k := ColumnKey(0); k < numColumnKeys; k++ {
		m[keyTable[k].name] = k
	}
	return m
}()

// AllColumnKeys returns every key in declaration order.
func AllColumnKeys() []ColumnKey {
	keys := make([]ColumnKey, numColumnKeys)
	for i := range keys {
		keys[i] = ColumnKey(i)
	}
	return keys
}

// ParseColumnKey returns the key whose field name is name.
func ParseColumnKey(name string) (ColumnKey, bool) {
	k, ok := keysByName[name]
	return k, ok
}

// Valid reports whether k is one of the declared keys.
func (k ColumnKey) Valid() bool {
	return k >= 0 && k < numColumnKeys
}

func (k ColumnKey) String() string {
	if !k.Valid() {
		return fmt.Sprintf("ColumnKey(%d)", int(k))
	}
	return keyTable[k].name
}

// Value reads the field for k from r. Invalid keys and nil records yield "".
func (k ColumnKey) Value(r *FiscalRecord) string {
	if r == nil || !k.Valid() {
		return ""
	}
	return keyTable[k].get(r)
}

// IsWeight reports whether the field is a weight (three fractional digits).
func (k ColumnKey) IsWeight() bool {
	return k == KeyPesoLiquido || k == KeyPesoBruto
}

// IsForcedText reports whether the field must always be written as text,
// whatever format a template assigns to it.
func (k ColumnKey) IsForcedText() bool {
	return k == KeyNumeroNF || k == KeyChaveNF
}

func (k ColumnKey) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid column key %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *ColumnKey) UnmarshalText(b []byte) error {
	parsed, ok := ParseColumnKey(string(b))
	if !ok {
		return fmt.Errorf("unknown column key %q", string(b))
	}
	*k = parsed
	return nil
}

// =============================================================================
// COLUMN SPEC AND TEMPLATE
// =============================================================================

// ColumnFormat selects how a column's values are rendered.
type ColumnFormat string

const (
	FormatText     ColumnFormat = "text"
	FormatCurrency ColumnFormat = "currency"
	FormatNumber   ColumnFormat = "number"
	FormatDate     ColumnFormat = "date"
)

// Valid reports whether f is a known format.
func (f ColumnFormat) Valid() bool {
	switch f {
	case FormatText, FormatCurrency, FormatNumber, FormatDate:
		return true
	}
	return false
}

// ColumnSpec describes one output column.
type ColumnSpec struct {
	ID       string       `json:"id" yaml:"id"`
	Label    string       `json:"label" yaml:"label"`
	Key      ColumnKey    `json:"key" yaml:"-"`
	Width    float64      `json:"width,omitempty" yaml:"width,omitempty"`
	Format   ColumnFormat `json:"format" yaml:"-"`
	Required bool         `json:"required,omitempty" yaml:"-"`
}

// Template is an ordered set of columns with a display name.
type Template struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Columns []ColumnSpec `json:"columns"`
}
