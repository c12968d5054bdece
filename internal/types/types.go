// =============================================================================
// NFe to XLSX Converter - Shared Types
// =============================================================================
//
// This package contains shared types used across multiple modules to avoid
// import cycles. Types defined here are used by:
//   - nfeparser   (produces FiscalRecord)
//   - tracker     (stores Batch and ProcessingOutcome)
//   - template    (resolves ColumnSpec lists into a Template)
//   - xlsxwriter  (renders FiscalRecord rows through a Template)
//
// =============================================================================

package types

import "time"

// =============================================================================
// FISCAL RECORD
// =============================================================================

// FiscalRecord is the flat set of fields extracted from one NF-e document.
//
// Every value is text. Monetary fields carry a decimal string with exactly two
// fractional digits, weights carry three. Dates use ISO "YYYY-MM-DD" and are
// empty when the document does not carry them.
type FiscalRecord struct {
	NumeroNF            string `json:"numeroNF"`
	ChaveNF             string `json:"chaveNF"`
	CFOP                string `json:"cfop"`
	CST                 string `json:"cst"`
	NomeEmitente        string `json:"nomeEmitente"`
	CNPJCPFEmitente     string `json:"cnpjCpfEmitente"`
	NomeDestinatario    string `json:"nomeDestinatario"`
	CNPJCPFDestinatario string `json:"cnpjCpfDestinatario"`
	ValorTotal          string `json:"valorTotal"`
	ValorICMS           string `json:"valorICMS"`
	ValorPIS            string `json:"valorPIS"`
	ValorCOFINS         string `json:"valorCOFINS"`
	ValorIPI            string `json:"valorIPI"`
	PesoLiquido         string `json:"pesoLiquido"`
	PesoBruto           string `json:"pesoBruto"`
	Transportadora      string `json:"transportadora"`
	PlacaVeiculo        string `json:"placaVeiculo"`
	IEEmissor           string `json:"ieEmissor"`
	IEEmitente          string `json:"ieEmitente"`

	DataEmissao       string `json:"dataEmissao"`
	DataVencimento    string `json:"dataVencimento"`
	NaturezaOperacao  string `json:"naturezaOperacao"`
	Modelo            string `json:"modelo"`
	Serie             string `json:"serie"`
	FinalidadeEmissao string `json:"finalidadeEmissao"`
	ConsumidorFinal   string `json:"consumidorFinal"`
	PresencaComprador string `json:"presencaComprador"`

	MunicipioEmitente     string `json:"municipioEmitente"`
	UFEmitente            string `json:"ufEmitente"`
	CEPEmitente           string `json:"cepEmitente"`
	EnderecoEmitente      string `json:"enderecoEmitente"`
	MunicipioDestinatario string `json:"municipioDestinatario"`
	UFDestinatario        string `json:"ufDestinatario"`
	CEPDestinatario       string `json:"cepDestinatario"`
	EnderecoDestinatario  string `json:"enderecoDestinatario"`

	ValorFrete          string `json:"valorFrete"`
	ValorSeguro         string `json:"valorSeguro"`
	ValorDesconto       string `json:"valorDesconto"`
	ValorOutrasDespesas string `json:"valorOutrasDespesas"`
	BaseCalculoICMS     string `json:"baseCalculoICMS"`
	BaseCalculoICMSST   string `json:"baseCalculoICMSST"`
	ValorICMSST         string `json:"valorICMSST"`
	ValorProdutos       string `json:"valorProdutos"`

	Observacoes           string `json:"observacoes"`
	InformacoesAdicionais string `json:"informacoesAdicionais"`
}

// =============================================================================
// PROCESSING OUTCOME
// =============================================================================

// OutcomeStatus is the result of processing one source file.
type OutcomeStatus string

const (
	StatusProcessed OutcomeStatus = "processed"
	StatusError     OutcomeStatus = "error"
)

// ProcessingOutcome is the per-file result recorded against a batch.
// A processed outcome always carries a Record and no ErrorMessage; an error
// outcome always carries an ErrorMessage and no Record.
type ProcessingOutcome struct {
	FileName     string        `json:"fileName"`
	Status       OutcomeStatus `json:"status"`
	Record       *FiscalRecord `json:"record,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`

	// Checksum is the xxhash64 of the raw file content.
	Checksum string `json:"checksum,omitempty"`

	// Warnings are non-fatal field checks (access key digit, CNPJ length...).
	Warnings []string `json:"warnings,omitempty"`

	ProcessedAt time.Time `json:"processedAt"`
}

// Processed builds a successful outcome.
func Processed(fileName string, record *FiscalRecord) *ProcessingOutcome {
	return &ProcessingOutcome{
		FileName:    fileName,
		Status:      StatusProcessed,
		Record:      record,
		ProcessedAt: time.Now().UTC(),
	}
}

// Failed builds an error outcome carrying err's message.
func Failed(fileName string, err error) *ProcessingOutcome {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &ProcessingOutcome{
		FileName:     fileName,
		Status:       StatusError,
		ErrorMessage: msg,
		ProcessedAt:  time.Now().UTC(),
	}
}

// Clone returns a deep copy so stores never hand out shared state.
func (o *ProcessingOutcome) Clone() *ProcessingOutcome {
	if o == nil {
		return nil
	}
	c := *o
	if o.Record != nil {
		rec := *o.Record
		c.Record = &rec
	}
	if o.Warnings != nil {
		c.Warnings = append([]string(nil), o.Warnings...)
	}
	return &c
}

// =============================================================================
// BATCH
// =============================================================================

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
)

// Batch tracks the progress of one submission.
//
// Counters only grow, ProcessedFiles+ErrorFiles never exceeds TotalFiles, and
// the status is completed exactly when every file has an outcome.
type Batch struct {
	ID             string      `json:"id"`
	TotalFiles     int         `json:"totalFiles"`
	ProcessedFiles int         `json:"processedFiles"`
	ErrorFiles     int         `json:"errorFiles"`
	Status         BatchStatus `json:"status"`
	CreatedAt      time.Time   `json:"createdAt"`
	CompletedAt    *time.Time  `json:"completedAt,omitempty"`
}

// Done reports how many files already have an outcome.
func (b *Batch) Done() int {
	return b.ProcessedFiles + b.ErrorFiles
}

// Clone returns a copy of the batch.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	c := *b
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// =============================================================================
// SOURCE FILE
// =============================================================================

// SourceFile is one uploaded document awaiting extraction.
type SourceFile struct {
	Name string
	Data []byte
}
