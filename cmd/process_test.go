package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/converter"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/logging"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/template"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/tracker"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/xlsxparser"
	"github.com/ginjaninja78/nfe-xlsx-converter/pkg/utils"
)

func fixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "internal", "nfeparser", "testdata", "nfe_proc.xml"))
	require.NoError(t, err)
	return data
}

func newProcessEnv(t *testing.T, files map[string][]byte) (*utils.FileManager, afero.Fs, *converter.Service) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, data := range files {
		require.NoError(t, afero.WriteFile(fs, filepath.Join("/in", name), data, 0644))
	}
	fm := utils.NewFileManager(fs, "/in", "/out", "/in_archive", "/out_archive")

	reg := template.NewRegistry(template.Request{
		ID:      "fiscal",
		Name:    "Fiscal",
		Columns: []template.ColumnRequest{{ID: "numeroNF"}, {ID: "valorTotal"}},
	})
	resolver := template.NewResolver(template.StandardCatalog(), template.UnknownDrop, nil)
	svc := converter.NewService(tracker.NewMemoryStore(), resolver, reg, nil, converter.Options{})
	return fm, fs, svc
}

func readRows(t *testing.T, fs afero.Fs, path string) [][]string {
	t.Helper()
	f, err := fs.Open(path)
	require.NoError(t, err)
	defer f.Close()
	sheets, err := xlsxparser.ReadWorkbook(f)
	require.NoError(t, err)
	require.Len(t, sheets, 1)
	return sheets[0].Rows
}

func TestRunProcess(t *testing.T) {
	ctx := context.Background()
	data := fixture(t)

	t.Run("should write a workbook and archive processed inputs", func(t *testing.T) {
		fm, fs, svc := newProcessEnv(t, map[string][]byte{
			"a.xml":      data,
			"b.xml":      data,
			"broken.xml": []byte("<root/>"),
			"notes.txt":  []byte("ignored"),
		})
		var out bytes.Buffer

		summaries, err := runProcess(ctx, fm, svc, logging.Discard(), processOptions{}, &out)
		require.NoError(t, err)
		require.Len(t, summaries, 1)

		s := summaries[0]
		assert.Equal(t, 3, s.TotalFiles)
		assert.Equal(t, 2, s.SuccessfulFiles)
		assert.Equal(t, 1, s.FailedFiles)
		assert.Equal(t, "Padrão", s.TemplateName)
		assert.Equal(t, filepath.Join("/out", converter.ExportFileName(s.BatchID, "Padrão")), s.OutputFile)

		rows := readRows(t, fs, s.OutputFile)
		assert.Len(t, rows, 3)
		assert.Equal(t, "Número NF", rows[0][0])
		assert.Equal(t, "12345", rows[1][0])

		assert.True(t, fm.FileExists(filepath.Join("/in_archive", "a.xml")))
		assert.True(t, fm.FileExists(filepath.Join("/in_archive", "b.xml")))
		assert.True(t, fm.FileExists(filepath.Join("/in", "broken.xml")))
		assert.True(t, fm.FileExists(filepath.Join("/in", "notes.txt")))
		assert.True(t, fm.FileExists(filepath.Join("/out_archive", filepath.Base(s.OutputFile))))

		require.NotEmpty(t, s.ErrorLog)
		log, err := afero.ReadFile(fs, s.ErrorLog)
		require.NoError(t, err)
		assert.Contains(t, string(log), "broken.xml")
		assert.Contains(t, string(log), "invalid XML structure: <NFe> tag not found")

		assert.Contains(t, out.String(), "✓ a.xml (NF 12345)")
		assert.Contains(t, out.String(), "✗ broken.xml")
	})

	t.Run("should split large directories into batches", func(t *testing.T) {
		fm, _, svc := newProcessEnv(t, map[string][]byte{
			"a.xml": data,
			"b.xml": data,
			"c.xml": data,
		})

		summaries, err := runProcess(ctx, fm, svc, logging.Discard(), processOptions{MaxFiles: 2}, &bytes.Buffer{})
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		assert.Equal(t, 2, summaries[0].TotalFiles)
		assert.Equal(t, 1, summaries[1].TotalFiles)
		assert.NotEqual(t, summaries[0].BatchID, summaries[1].BatchID)
		assert.NotEqual(t, summaries[0].OutputFile, summaries[1].OutputFile)
	})

	t.Run("should report oversized files without extracting them", func(t *testing.T) {
		fm, _, svc := newProcessEnv(t, map[string][]byte{
			"a.xml":   data,
			"big.xml": bytes.Repeat([]byte("x"), len(data)+2048),
		})

		summaries, err := runProcess(ctx, fm, svc, logging.Discard(), processOptions{MaxFileSize: 1024 + int64(len(data))}, &bytes.Buffer{})
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, 1, summaries[0].SuccessfulFiles)
		require.Len(t, summaries[0].FailedFilesList, 1)
		assert.Equal(t, "big.xml", summaries[0].FailedFilesList[0].InputFile)
	})

	t.Run("should use a named template", func(t *testing.T) {
		fm, fs, svc := newProcessEnv(t, map[string][]byte{"a.xml": data})

		summaries, err := runProcess(ctx, fm, svc, logging.Discard(), processOptions{TemplateID: "fiscal"}, &bytes.Buffer{})
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.True(t, strings.HasSuffix(summaries[0].OutputFile, "_Fiscal.xlsx"))

		rows := readRows(t, fs, summaries[0].OutputFile)
		assert.Equal(t, []string{"Número NF", "Valor Total", "Chave NF"}, rows[0])
	})

	t.Run("should reject an unknown template before reading files", func(t *testing.T) {
		fm, _, svc := newProcessEnv(t, map[string][]byte{"a.xml": data})

		_, err := runProcess(ctx, fm, svc, logging.Discard(), processOptions{TemplateID: "nope"}, &bytes.Buffer{})
		assert.ErrorIs(t, err, converter.ErrUnknownTemplate)
		assert.True(t, fm.FileExists(filepath.Join("/in", "a.xml")))
	})

	t.Run("should leave everything in place on a dry run", func(t *testing.T) {
		fm, fs, svc := newProcessEnv(t, map[string][]byte{"a.xml": data})
		require.NoError(t, fm.EnsureDirectories())

		summaries, err := runProcess(ctx, fm, svc, logging.Discard(), processOptions{DryRun: true}, &bytes.Buffer{})
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, 1, summaries[0].SuccessfulFiles)
		assert.Empty(t, summaries[0].OutputFile)
		assert.True(t, fm.FileExists(filepath.Join("/in", "a.xml")))

		entries, err := afero.ReadDir(fs, "/out")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("should process a single file", func(t *testing.T) {
		fm, _, svc := newProcessEnv(t, map[string][]byte{"a.xml": data, "b.xml": data})

		summaries, err := runProcess(ctx, fm, svc, logging.Discard(), processOptions{File: "/in/b.xml"}, &bytes.Buffer{})
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, 1, summaries[0].TotalFiles)
		assert.True(t, fm.FileExists(filepath.Join("/in", "a.xml")))

		_, err = runProcess(ctx, fm, svc, logging.Discard(), processOptions{File: "/in/missing.xml"}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "file not found")
	})

	t.Run("should say when there is nothing to do", func(t *testing.T) {
		fm, _, svc := newProcessEnv(t, nil)
		var out bytes.Buffer

		summaries, err := runProcess(ctx, fm, svc, logging.Discard(), processOptions{}, &out)
		require.NoError(t, err)
		assert.Empty(t, summaries)
		assert.Contains(t, out.String(), "No XML files found")
	})
}
