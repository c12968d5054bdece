package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/converter"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/template"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/tracker"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/types"
)

// =============================================================================
// RESPONSES
// =============================================================================

type messageResponse struct {
	Message      string   `json:"message"`
	InvalidFiles []string `json:"invalidFiles,omitempty"`
}

type uploadResponse struct {
	BatchID string `json:"batchId"`
	Message string `json:"message"`
}

type templatesResponse struct {
	Columns   []types.ColumnSpec `json:"columns"`
	Default   *types.Template    `json:"default"`
	Templates []template.Request `json:"templates"`
}

type sheetsRequest struct {
	Template string `json:"template"`
}

type sheetsResponse struct {
	Rows    int    `json:"rows"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

// writeError maps err onto a status code and a JSON message.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		invalidFiles    *converter.InvalidFilesError
		tooLarge        *converter.FileTooLargeError
		invalidTemplate *template.InvalidTemplateError
		maxBytes        *http.MaxBytesError
	)

	switch {
	case errors.As(err, &invalidFiles):
		s.writeJSON(w, http.StatusBadRequest, messageResponse{Message: "only XML files are allowed", InvalidFiles: invalidFiles.Names})
	case errors.As(err, &tooLarge), errors.As(err, &maxBytes):
		s.writeJSON(w, http.StatusRequestEntityTooLarge, messageResponse{Message: err.Error()})
	case errors.As(err, &invalidTemplate),
		errors.Is(err, converter.ErrEmptyInput),
		errors.Is(err, converter.ErrTooManyFiles),
		errors.Is(err, converter.ErrUnknownTemplate):
		s.writeJSON(w, http.StatusBadRequest, messageResponse{Message: err.Error()})
	case errors.Is(err, tracker.ErrNotFound), errors.Is(err, converter.ErrNoProcessedRecords):
		s.writeJSON(w, http.StatusNotFound, messageResponse{Message: err.Error()})
	case errors.Is(err, converter.ErrPublisherDisabled):
		s.writeJSON(w, http.StatusServiceUnavailable, messageResponse{Message: err.Error()})
	default:
		s.logger.Error("Request failed: %v", err)
		s.writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "internal server error"})
	}
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	opts := s.svc.Options()
	limit := int64(opts.MaxFiles)*opts.MaxFileSize + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(s.maxMem); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.writeError(w, err)
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			s.writeJSON(w, http.StatusBadRequest, messageResponse{Message: "failed to parse form: " + err.Error()})
			return
		}
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File["files"]
	}
	if len(headers) == 0 {
		s.writeJSON(w, http.StatusBadRequest, messageResponse{Message: "no files uploaded"})
		return
	}

	files := make([]types.SourceFile, 0, len(headers))
	for _, h := range headers {
		data, err := readPart(h)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, messageResponse{Message: fmt.Sprintf("failed to read %s: %v", h.Filename, err)})
			return
		}
		files = append(files, types.SourceFile{Name: h.Filename, Data: data})
	}

	batch, err := s.svc.Submit(r.Context(), files)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, uploadResponse{
		BatchID: batch.ID,
		Message: fmt.Sprintf("%d file(s) uploaded, processing started", batch.TotalFiles),
	})
}

func readPart(h *multipart.FileHeader) ([]byte, error) {
	f, err := h.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := s.svc.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	outcomes, err := s.svc.Outcomes(r.Context(), r.PathValue("batchId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if outcomes == nil {
		outcomes = []*types.ProcessingOutcome{}
	}
	s.writeJSON(w, http.StatusOK, outcomes)
}

func (s *Server) handleExcelNamed(w http.ResponseWriter, r *http.Request) {
	exp, err := s.svc.ExportNamed(r.Context(), r.PathValue("batchId"), r.URL.Query().Get("template"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeWorkbook(w, exp)
}

func (s *Server) handleExcelCustom(w http.ResponseWriter, r *http.Request) {
	var req template.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid template: " + err.Error()})
		return
	}

	exp, err := s.svc.ExportRequest(r.Context(), r.PathValue("batchId"), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeWorkbook(w, exp)
}

func writeWorkbook(w http.ResponseWriter, exp *converter.Export) {
	w.Header().Set("Content-Type", exp.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exp.FileName))
	w.Header().Set("Content-Length", fmt.Sprint(len(exp.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(exp.Data)
}

func (s *Server) handleSheets(w http.ResponseWriter, r *http.Request) {
	var req sheetsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid request: " + err.Error()})
		return
	}
	if q := r.URL.Query().Get("template"); q != "" {
		req.Template = q
	}

	n, err := s.svc.Publish(r.Context(), r.PathValue("batchId"), req.Template)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sheetsResponse{Rows: n, Message: fmt.Sprintf("%d row(s) appended", n)})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	catalog := s.svc.Catalog()
	named := s.svc.NamedTemplates()
	if named == nil {
		named = []template.Request{}
	}
	s.writeJSON(w, http.StatusOK, templatesResponse{
		Columns:   catalog.Columns(),
		Default:   catalog.Default(),
		Templates: named,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
