package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/converter"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/logging"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/template"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/tracker"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/types"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/xlsxwriter"
)

type upload struct {
	name string
	data []byte
}

func newTestServer(t *testing.T) (*httptest.Server, *converter.Service) {
	t.Helper()
	resolver := template.NewResolver(template.StandardCatalog(), template.UnknownDrop, nil)
	reg := template.NewRegistry(template.Request{
		ID:      "resumo",
		Name:    "Resumo",
		Columns: []template.ColumnRequest{{ID: "numeroNF"}, {ID: "valorTotal"}},
	})
	svc := converter.NewService(tracker.NewMemoryStore(), resolver, reg, nil, converter.Options{})
	ts := httptest.NewServer(New(svc, nil, Config{AllowedOrigins: []string{"http://localhost:5173"}}).Handler())
	t.Cleanup(ts.Close)
	return ts, svc
}

func fixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "nfeparser", "testdata", "nfe_proc.xml"))
	require.NoError(t, err)
	return data
}

func postFiles(t *testing.T, url string, files ...upload) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(url+"/api/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUploadAndExport(t *testing.T) {
	ts, svc := newTestServer(t)

	resp := postFiles(t, ts.URL,
		upload{"a.xml", fixture(t)},
		upload{"b.xml", []byte("<nothing/>")},
	)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var up uploadResponse
	decode(t, resp, &up)
	require.NotEmpty(t, up.BatchID)

	svc.Wait()

	t.Run("should report batch progress", func(t *testing.T) {
		resp := get(t, ts.URL+"/api/batches/"+up.BatchID)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var b types.Batch
		decode(t, resp, &b)
		assert.Equal(t, 2, b.TotalFiles)
		assert.Equal(t, 1, b.ProcessedFiles)
		assert.Equal(t, 1, b.ErrorFiles)
		assert.Equal(t, types.BatchCompleted, b.Status)
	})

	t.Run("should list outcomes", func(t *testing.T) {
		resp := get(t, ts.URL+"/api/invoices/batch/"+up.BatchID)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var outcomes []types.ProcessingOutcome
		decode(t, resp, &outcomes)
		require.Len(t, outcomes, 2)
		assert.Equal(t, "12345", outcomes[0].Record.NumeroNF)
		assert.Equal(t, "invalid XML structure: <NFe> tag not found", outcomes[1].ErrorMessage)
	})

	t.Run("should download the default workbook", func(t *testing.T) {
		resp := get(t, ts.URL+"/api/invoices/batch/"+up.BatchID+"/excel")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, xlsxwriter.ContentType, resp.Header.Get("Content-Type"))
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "notas_fiscais_"+up.BatchID+"_Padr_o.xlsx")
	})

	t.Run("should download with a named template", func(t *testing.T) {
		resp := get(t, ts.URL+"/api/invoices/batch/"+up.BatchID+"/excel?template=resumo")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "_Resumo.xlsx")

		resp = get(t, ts.URL+"/api/invoices/batch/"+up.BatchID+"/excel?template=nope")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("should download with a posted template", func(t *testing.T) {
		body := `{"name":"Meu Modelo","columns":[{"id":"cfop","label":"Código"},{"id":"unknown"}]}`
		resp, err := http.Post(ts.URL+"/api/invoices/batch/"+up.BatchID+"/excel", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "_Meu_Modelo.xlsx")

		bad, err := http.Post(ts.URL+"/api/invoices/batch/"+up.BatchID+"/excel", "application/json", strings.NewReader(`{"columns":[{"id":"cfop","width":999}]}`))
		require.NoError(t, err)
		defer bad.Body.Close()
		assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
	})

	t.Run("should answer 503 when sheets are not configured", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/invoices/batch/"+up.BatchID+"/sheets", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestUploadErrors(t *testing.T) {
	ts, _ := newTestServer(t)

	t.Run("should reject a request without files", func(t *testing.T) {
		resp := postFiles(t, ts.URL)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var msg messageResponse
		decode(t, resp, &msg)
		assert.Equal(t, "no files uploaded", msg.Message)
	})

	t.Run("should reject a non-multipart request", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/upload", "application/json", strings.NewReader("{}"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("should list non-XML files", func(t *testing.T) {
		resp := postFiles(t, ts.URL, upload{"a.xml", []byte("<x/>")}, upload{"notes.txt", []byte("hi")})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var msg messageResponse
		decode(t, resp, &msg)
		assert.Equal(t, []string{"notes.txt"}, msg.InvalidFiles)
	})
}

func TestNotFound(t *testing.T) {
	ts, svc := newTestServer(t)

	for _, path := range []string{
		"/api/batches/missing",
		"/api/invoices/batch/missing",
		"/api/invoices/batch/missing/excel",
	} {
		resp := get(t, ts.URL+path)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		var msg messageResponse
		decode(t, resp, &msg)
		assert.NotEmpty(t, msg.Message, path)
	}

	t.Run("should answer 404 when nothing was processed", func(t *testing.T) {
		resp := postFiles(t, ts.URL, upload{"bad.xml", []byte("<x/>")})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var up uploadResponse
		decode(t, resp, &up)
		svc.Wait()

		excel := get(t, ts.URL+"/api/invoices/batch/"+up.BatchID+"/excel")
		assert.Equal(t, http.StatusNotFound, excel.StatusCode)
	})
}

func TestTemplates(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := get(t, ts.URL+"/api/templates")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Columns []struct {
			ID     string `json:"id"`
			Label  string `json:"label"`
			Format string `json:"format"`
		} `json:"columns"`
		Default   types.Template     `json:"default"`
		Templates []template.Request `json:"templates"`
	}
	decode(t, resp, &body)

	assert.Len(t, body.Columns, len(template.StandardCatalog().Columns()))
	assert.Equal(t, "numeroNF", body.Columns[0].ID)
	assert.Len(t, body.Default.Columns, template.DefaultColumnCount)
	require.Len(t, body.Templates, 1)
	assert.Equal(t, "resumo", body.Templates[0].ID)
}

func TestCORSAndHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/upload", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))

	health := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, health.StatusCode)
	assert.Empty(t, health.Header.Get("Access-Control-Allow-Origin"))
}

// brokenWriter accepts headers but fails every body write.
type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestWriteJSONLogsEncodeFailures(t *testing.T) {
	t.Run("should log a failed body write", func(t *testing.T) {
		var buf bytes.Buffer
		s := New(nil, logging.New(&buf, logging.LevelDebug), Config{})

		w := brokenWriter{httptest.NewRecorder()}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, buf.String(), "Failed to encode response")
		assert.Contains(t, buf.String(), "connection reset")
	})

	t.Run("should log a value that cannot be encoded", func(t *testing.T) {
		var buf bytes.Buffer
		s := New(nil, logging.New(&buf, logging.LevelDebug), Config{})

		rec := httptest.NewRecorder()
		s.writeJSON(rec, http.StatusOK, map[string]interface{}{"bad": make(chan int)})

		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Contains(t, buf.String(), "Failed to encode response")
	})
}
