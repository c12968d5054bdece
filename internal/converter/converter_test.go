package converter

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/template"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/tracker"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/types"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/xlsxwriter"
)

// =============================================================================
// FIXTURES
// =============================================================================

func fixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "nfeparser", "testdata", "nfe_proc.xml"))
	require.NoError(t, err)
	return data
}

func newService(store tracker.Store, reg *template.Registry) *Service {
	resolver := template.NewResolver(template.StandardCatalog(), template.UnknownDrop, nil)
	return NewService(store, resolver, reg, nil, Options{})
}

// mockStore is a testify mock of tracker.Store.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateBatch(ctx context.Context, b *types.Batch) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockStore) GetBatch(ctx context.Context, id string) (*types.Batch, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*types.Batch)
	return b, args.Error(1)
}

func (m *mockStore) UpdateBatch(ctx context.Context, id string, fn func(*types.Batch) error) (*types.Batch, error) {
	args := m.Called(ctx, id, fn)
	b, _ := args.Get(0).(*types.Batch)
	return b, args.Error(1)
}

func (m *mockStore) AppendOutcome(ctx context.Context, id string, o *types.ProcessingOutcome, fn func(*types.Batch) error) (*types.Batch, error) {
	args := m.Called(ctx, id, o, fn)
	b, _ := args.Get(0).(*types.Batch)
	return b, args.Error(1)
}

func (m *mockStore) ListOutcomes(ctx context.Context, id string) ([]*types.ProcessingOutcome, error) {
	args := m.Called(ctx, id)
	o, _ := args.Get(0).([]*types.ProcessingOutcome)
	return o, args.Error(1)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

type fakePublisher struct {
	tpl     *types.Template
	records []*types.FiscalRecord
	err     error
}

func (p *fakePublisher) Publish(_ context.Context, tpl *types.Template, records []*types.FiscalRecord) (int, error) {
	p.tpl, p.records = tpl, records
	return len(records), p.err
}

// =============================================================================
// SUBMISSION
// =============================================================================

func TestValidate(t *testing.T) {
	store := new(mockStore)
	svc := newService(store, nil)
	ctx := context.Background()

	t.Run("should reject an empty submission", func(t *testing.T) {
		_, err := svc.Submit(ctx, nil)
		assert.ErrorIs(t, err, ErrEmptyInput)
	})

	t.Run("should reject more than the file limit", func(t *testing.T) {
		files := make([]types.SourceFile, DefaultMaxFiles+1)
		for i := range files {
			files[i] = types.SourceFile{Name: "a.xml"}
		}
		_, err := svc.Submit(ctx, files)
		assert.ErrorIs(t, err, ErrTooManyFiles)
	})

	t.Run("should list every non-XML file", func(t *testing.T) {
		_, err := svc.Submit(ctx, []types.SourceFile{{Name: "a.xml"}, {Name: "b.pdf"}, {Name: "c.XML"}, {Name: "d"}})
		var invalid *InvalidFilesError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, []string{"b.pdf", "d"}, invalid.Names)
	})

	t.Run("should reject oversized files", func(t *testing.T) {
		_, err := svc.Submit(ctx, []types.SourceFile{{Name: "big.xml", Data: make([]byte, DefaultMaxFileSize+1)}})
		var tooLarge *FileTooLargeError
		require.ErrorAs(t, err, &tooLarge)
		assert.Equal(t, "big.xml", tooLarge.Name)
	})

	store.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
}

func TestSubmitProcessesInBackground(t *testing.T) {
	ctx := context.Background()
	svc := newService(tracker.NewMemoryStore(), nil)
	data := fixture(t)

	batch, err := svc.Submit(ctx, []types.SourceFile{
		{Name: "a.xml", Data: data},
		{Name: "broken.xml", Data: []byte("<root><unclosed></root>")},
		{Name: "copy.xml", Data: data},
		{Name: "other.xml", Data: []byte("<root/>")},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, batch.TotalFiles)
	assert.Equal(t, types.BatchProcessing, batch.Status)

	svc.Wait()

	got, err := svc.Status(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BatchCompleted, got.Status)
	assert.Equal(t, 2, got.ProcessedFiles)
	assert.Equal(t, 2, got.ErrorFiles)

	outcomes, err := svc.Outcomes(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 4)

	t.Run("should keep input order", func(t *testing.T) {
		names := make([]string, len(outcomes))
		for i, o := range outcomes {
			names[i] = o.FileName
		}
		assert.Equal(t, []string{"a.xml", "broken.xml", "copy.xml", "other.xml"}, names)
	})

	t.Run("should describe failures", func(t *testing.T) {
		assert.Equal(t, types.StatusError, outcomes[1].Status)
		assert.Contains(t, outcomes[1].ErrorMessage, "failed to process XML")
		assert.Equal(t, types.StatusError, outcomes[3].Status)
		assert.Equal(t, "invalid XML structure: <NFe> tag not found", outcomes[3].ErrorMessage)
	})

	t.Run("should flag duplicate content", func(t *testing.T) {
		assert.Equal(t, outcomes[0].Checksum, outcomes[2].Checksum)
		assert.Contains(t, outcomes[2].Warnings, "same content as a.xml")
		assert.NotContains(t, outcomes[0].Warnings, "same content as a.xml")
	})
}

func TestRunStopsOnStoreFailure(t *testing.T) {
	store := new(mockStore)
	store.On("CreateBatch", mock.Anything, mock.AnythingOfType("*types.Batch")).Return(nil)
	store.On("AppendOutcome", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("disk full")).Once()

	svc := newService(store, nil)
	_, err := svc.Run(context.Background(), []types.SourceFile{{Name: "a.xml", Data: fixture(t)}, {Name: "b.xml"}})
	assert.ErrorContains(t, err, "disk full")
	store.AssertNumberOfCalls(t, "AppendOutcome", 1)
}

// =============================================================================
// EXPORT
// =============================================================================

func TestExport(t *testing.T) {
	ctx := context.Background()
	reg := template.NewRegistry(template.Request{
		ID:      "fiscal",
		Name:    "Fiscal Básico",
		Columns: []template.ColumnRequest{{ID: "numeroNF"}, {ID: "valorTotal", Label: "Total"}, {ID: "bogus"}},
	})
	svc := newService(tracker.NewMemoryStore(), reg)

	batch, err := svc.Run(ctx, []types.SourceFile{
		{Name: "a.xml", Data: fixture(t)},
		{Name: "bad.xml", Data: []byte("<x/>")},
	})
	require.NoError(t, err)
	assert.Equal(t, types.BatchCompleted, batch.Status)

	t.Run("should export with the default template", func(t *testing.T) {
		exp, err := svc.ExportNamed(ctx, batch.ID, "")
		require.NoError(t, err)
		assert.Equal(t, "notas_fiscais_"+batch.ID+"_Padr_o.xlsx", exp.FileName)
		assert.Equal(t, xlsxwriter.ContentType, exp.ContentType)
		assert.Equal(t, 1, exp.Rows)

		f, err := excelize.OpenReader(bytes.NewReader(exp.Data))
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows(xlsxwriter.SheetName)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Len(t, rows[0], template.DefaultColumnCount)
		assert.Equal(t, "12345", rows[1][0])
	})

	t.Run("should export with a named template", func(t *testing.T) {
		exp, err := svc.ExportNamed(ctx, batch.ID, "fiscal")
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(exp.FileName, "_Fiscal_B_sico.xlsx"))

		f, err := excelize.OpenReader(bytes.NewReader(exp.Data))
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows(xlsxwriter.SheetName)
		require.NoError(t, err)
		assert.Equal(t, []string{"Número NF", "Total", "Chave NF"}, rows[0])
	})

	t.Run("should export with a caller template", func(t *testing.T) {
		exp, err := svc.ExportRequest(ctx, batch.ID, template.Request{
			Name:    "Minha",
			Columns: []template.ColumnRequest{{ID: "chaveNF"}},
		})
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(exp.FileName, "_Minha.xlsx"))
	})

	t.Run("should refuse an invalid caller template", func(t *testing.T) {
		_, err := svc.ExportRequest(ctx, batch.ID, template.Request{Columns: []template.ColumnRequest{{ID: "cfop", Width: 300}}})
		var invalid *template.InvalidTemplateError
		assert.ErrorAs(t, err, &invalid)
	})

	t.Run("should report unknown templates and batches", func(t *testing.T) {
		_, err := svc.ExportNamed(ctx, batch.ID, "missing")
		assert.ErrorIs(t, err, ErrUnknownTemplate)

		_, err = svc.ExportNamed(ctx, "missing", "")
		assert.ErrorIs(t, err, tracker.ErrNotFound)
	})

	t.Run("should publish through the configured publisher", func(t *testing.T) {
		_, err := svc.Publish(ctx, batch.ID, "")
		assert.ErrorIs(t, err, ErrPublisherDisabled)

		pub := &fakePublisher{}
		svc.SetPublisher(pub)
		n, err := svc.Publish(ctx, batch.ID, "fiscal")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Len(t, pub.tpl.Columns, 3)
		assert.Equal(t, "12345", pub.records[0].NumeroNF)
	})
}

func TestExportWithoutProcessedRecords(t *testing.T) {
	ctx := context.Background()
	svc := newService(tracker.NewMemoryStore(), nil)

	batch, err := svc.Run(ctx, []types.SourceFile{{Name: "bad.xml", Data: []byte("<x/>")}})
	require.NoError(t, err)
	assert.Equal(t, 1, batch.ErrorFiles)

	_, err = svc.ExportNamed(ctx, batch.ID, template.DefaultTemplateID)
	assert.ErrorIs(t, err, ErrNoProcessedRecords)
}

func TestExportFileName(t *testing.T) {
	assert.Equal(t, "notas_fiscais_b1_Padr_o.xlsx", ExportFileName("b1", "Padrão"))
	assert.Equal(t, "notas_fiscais_b1_a_b_c.xlsx", ExportFileName("b1", "a b/c"))
}
