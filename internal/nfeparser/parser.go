// =============================================================================
// NFe to XLSX Converter - NF-e Extractor
// =============================================================================
//
// This module turns one NF-e XML document into a flat FiscalRecord.
//
// DOCUMENT SHAPE:
//   <nfeProc>                 (optional authorization wrapper)
//     <NFe>
//       <infNFe Id="NFe<44-digit access key>">
//         <ide> <emit> <dest> <det>... <total> <transp> <cobr> <infAdic>
//
// Tag and attribute names are matched case-insensitively. Missing optional
// elements produce empty text; missing amounts produce zero.
//
// =============================================================================

package nfeparser

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/types"
)

const (
	moneyPlaces  = 2
	weightPlaces = 3
)

// icmsGroups lists the ICMS tax-scenario groups an item can carry. Only one is
// present per item.
var icmsGroups = map[string]bool{
	"icms00": true, "icms02": true, "icms10": true, "icms15": true,
	"icms20": true, "icms30": true, "icms40": true, "icms51": true,
	"icms53": true, "icms60": true, "icms61": true, "icms70": true,
	"icms90": true, "icmspart": true, "icmsst": true,
	"icmssn101": true, "icmssn102": true, "icmssn201": true,
	"icmssn202": true, "icmssn500": true, "icmssn900": true,
}

// =============================================================================
// EXTRACTOR
// =============================================================================

// Extractor extracts records with an optional per-document deadline.
type Extractor struct {
	// Timeout bounds the time spent on one document. Zero disables it.
	Timeout time.Duration
}

// NewExtractor creates an Extractor with the given per-document timeout.
func NewExtractor(timeout time.Duration) *Extractor {
	return &Extractor{Timeout: timeout}
}

// Extract runs Extract on file under the extractor's deadline.
func (e *Extractor) Extract(ctx context.Context, file types.SourceFile) (*types.FiscalRecord, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	return Extract(ctx, file.Data, file.Name)
}

// Extract parses one NF-e document.
//
// PARAMETERS:
//   - ctx: cancels tokenizing when done.
//   - data: the raw XML bytes.
//   - fileName: carried in returned errors.
//
// RETURNS:
//   - The extracted record.
//   - *MalformedStructureError when <NFe> or <infNFe> is missing.
//   - *ExtractionError for any other failure.
func Extract(ctx context.Context, data []byte, fileName string) (*types.FiscalRecord, error) {
	doc, err := parseTree(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, &ExtractionError{FileName: fileName, Err: err}
	}

	nfe := doc.Path("nfeProc", "NFe")
	if nfe == nil {
		nfe = doc.Child("NFe")
	}
	if nfe == nil {
		return nil, &MalformedStructureError{FileName: fileName, Tag: "NFe"}
	}

	inf := nfe.Child("infNFe")
	if inf == nil {
		return nil, &MalformedStructureError{FileName: fileName, Tag: "infNFe"}
	}

	return buildRecord(inf, fileName)
}

// =============================================================================
// FIELD MAPPING
// =============================================================================

func buildRecord(inf *Node, fileName string) (*types.FiscalRecord, error) {
	ide := inf.Child("ide")
	emit := inf.Child("emit")
	dest := inf.Child("dest")
	det := inf.Child("det")
	enderEmit := emit.Child("enderEmit")
	enderDest := dest.Child("enderDest")
	transp := inf.Child("transp")
	infAdic := inf.Child("infAdic")

	dhEmi := ide.Value("dhEmi")
	if dhEmi == "" {
		dhEmi = ide.Value("dEmi")
	}

	rec := &types.FiscalRecord{
		NumeroNF:            ide.Value("nNF"),
		ChaveNF:             strings.TrimPrefix(inf.Attr("Id"), "NFe"),
		CFOP:                det.Value("prod", "CFOP"),
		CST:                 icmsCode(det.Path("imposto", "ICMS")),
		NomeEmitente:        emit.Value("xNome"),
		CNPJCPFEmitente:     firstNonEmpty(emit.Value("CNPJ"), emit.Value("CPF")),
		NomeDestinatario:    dest.Value("xNome"),
		CNPJCPFDestinatario: firstNonEmpty(dest.Value("CNPJ"), dest.Value("CPF")),
		Transportadora:      transp.Value("transporta", "xNome"),
		PlacaVeiculo:        transp.Value("veicTransp", "placa"),
		IEEmissor:           emit.Value("IE"),
		IEEmitente:          emit.Value("IE"),

		DataEmissao:       isoDate(dhEmi),
		DataVencimento:    isoDate(inf.Value("cobr", "dup", "dVenc")),
		NaturezaOperacao:  ide.Value("natOp"),
		Modelo:            ide.Value("mod"),
		Serie:             ide.Value("serie"),
		FinalidadeEmissao: ide.Value("finNFe"),
		ConsumidorFinal:   ide.Value("indFinal"),
		PresencaComprador: ide.Value("indPres"),

		MunicipioEmitente:     enderEmit.Value("xMun"),
		UFEmitente:            enderEmit.Value("UF"),
		CEPEmitente:           enderEmit.Value("CEP"),
		EnderecoEmitente:      address(enderEmit),
		MunicipioDestinatario: enderDest.Value("xMun"),
		UFDestinatario:        enderDest.Value("UF"),
		CEPDestinatario:       enderDest.Value("CEP"),
		EnderecoDestinatario:  address(enderDest),

		Observacoes:           infAdic.Value("infCpl"),
		InformacoesAdicionais: infAdic.Value("infAdFisco"),
	}

	tot := inf.Path("total", "ICMSTot")
	vol := transp.Child("vol")

	amounts := []struct {
		dst    *string
		node   *Node
		tag    string
		places int32
	}{
		{&rec.ValorTotal, tot, "vNF", moneyPlaces},
		{&rec.ValorICMS, tot, "vICMS", moneyPlaces},
		{&rec.ValorPIS, tot, "vPIS", moneyPlaces},
		{&rec.ValorCOFINS, tot, "vCOFINS", moneyPlaces},
		{&rec.ValorIPI, tot, "vIPI", moneyPlaces},
		{&rec.ValorFrete, tot, "vFrete", moneyPlaces},
		{&rec.ValorSeguro, tot, "vSeg", moneyPlaces},
		{&rec.ValorDesconto, tot, "vDesc", moneyPlaces},
		{&rec.ValorOutrasDespesas, tot, "vOutro", moneyPlaces},
		{&rec.BaseCalculoICMS, tot, "vBC", moneyPlaces},
		{&rec.BaseCalculoICMSST, tot, "vBCST", moneyPlaces},
		{&rec.ValorICMSST, tot, "vST", moneyPlaces},
		{&rec.ValorProdutos, tot, "vProd", moneyPlaces},
		{&rec.PesoLiquido, vol, "pesoL", weightPlaces},
		{&rec.PesoBruto, vol, "pesoB", weightPlaces},
	}
	for _, a := range amounts {
		v, err := normalizeAmount(a.node.Value(a.tag), a.places)
		if err != nil {
			return nil, &ExtractionError{FileName: fileName, Field: a.tag, Err: err}
		}
		*a.dst = v
	}

	return rec, nil
}

// icmsCode returns the CST of the item's ICMS group, falling back to CSOSN
// for Simples Nacional groups.
func icmsCode(icms *Node) string {
	if icms == nil {
		return ""
	}
	var group *Node
	for _, c := range icms.Children {
		if icmsGroups[c.Name] {
			group = c
			break
		}
	}
	if group == nil && len(icms.Children) > 0 {
		group = icms.Children[0]
	}
	return firstNonEmpty(group.Value("CST"), group.Value("CSOSN"))
}

// address joins street, number and district with single spaces.
func address(ender *Node) string {
	var parts []string
	for _, tag := range []string{"xLgr", "nro", "xBairro"} {
		if v := ender.Value(tag); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// normalizeAmount renders raw with exactly places fractional digits. Empty
// input is zero. A decimal comma is accepted when no dot is present.
func normalizeAmount(raw string, places int32) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "0"
	}
	if strings.Contains(raw, ",") && !strings.Contains(raw, ".") {
		raw = strings.Replace(raw, ",", ".", 1)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return "", err
	}
	return d.StringFixed(places), nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// isoDate reduces an NF-e timestamp to its calendar date in the document's own
// offset. Unrecognized text is kept as is.
func isoDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return raw
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
