// =============================================================================
// NFe to XLSX Converter - Google Sheets Publisher
// =============================================================================
//
// Appends the processed records of a batch to a Google spreadsheet, one row
// per record, using the same template as the workbook export.
//
// CREDENTIALS:
//   A service account JSON key. The spreadsheet must be shared with the
//   service account's e-mail.
//
// =============================================================================

package sheets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/types"
)

// Config selects the target spreadsheet.
type Config struct {
	CredentialsFile string
	SpreadsheetID   string
	SheetName       string

	// IncludeHeader writes the template labels before the rows.
	IncludeHeader bool
}

// Client appends rows to one sheet.
type Client struct {
	srv *sheets.Service
	cfg Config
}

// NewClient authenticates with the service account key in cfg.CredentialsFile.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	jwt, err := google.JWTConfigFromJSON(b, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials file: %w", err)
	}

	return NewClientWithOptions(ctx, cfg, option.WithHTTPClient(jwt.Client(ctx)))
}

// NewClientWithOptions builds a client from explicit API options.
func NewClientWithOptions(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "Notas Fiscais"
	}

	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets client: %w", err)
	}
	return &Client{srv: srv, cfg: cfg}, nil
}

// Publish appends records rendered through tpl and returns how many record
// rows were written.
func (c *Client) Publish(ctx context.Context, tpl *types.Template, records []*types.FiscalRecord) (int, error) {
	values := BuildValues(tpl, records, c.cfg.IncludeHeader)
	if len(records) == 0 {
		return 0, nil
	}

	rng := quoteSheet(c.cfg.SheetName) + "!A1"
	_, err := c.srv.Spreadsheets.Values.
		Append(c.cfg.SpreadsheetID, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("unable to append rows: %w", err)
	}
	return len(records), nil
}

// BuildValues renders records as sheet rows. Amounts become numbers, dates
// dd/mm/yyyy strings, everything else text.
func BuildValues(tpl *types.Template, records []*types.FiscalRecord, header bool) [][]interface{} {
	values := make([][]interface{}, 0, len(records)+1)

	if header {
		row := make([]interface{}, len(tpl.Columns))
		for i, col := range tpl.Columns {
			row[i] = col.Label
		}
		values = append(values, row)
	}

	for _, rec := range records {
		row := make([]interface{}, len(tpl.Columns))
		for i, col := range tpl.Columns {
			row[i] = cellValue(col, col.Key.Value(rec))
		}
		values = append(values, row)
	}
	return values
}

func cellValue(col types.ColumnSpec, value string) interface{} {
	if col.Key.IsForcedText() || value == "" {
		return value
	}
	switch col.Format {
	case types.FormatCurrency, types.FormatNumber:
		if d, err := decimal.NewFromString(value); err == nil {
			return d.InexactFloat64()
		}
	case types.FormatDate:
		if t, err := time.Parse("2006-01-02", value); err == nil {
			return t.Format("02/01/2006")
		}
	}
	return value
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
