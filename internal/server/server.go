// =============================================================================
// NFe to XLSX Converter - HTTP Server
// =============================================================================
//
// ROUTES:
//   POST /api/upload                              submit a batch (multipart "files")
//   GET  /api/batches/{id}                        batch progress
//   GET  /api/invoices/batch/{batchId}            per-file outcomes
//   GET  /api/invoices/batch/{batchId}/excel      workbook, ?template=<id>
//   POST /api/invoices/batch/{batchId}/excel      workbook, JSON template body
//   POST /api/invoices/batch/{batchId}/sheets     append rows to Google Sheets
//   GET  /api/templates                           catalog and named templates
//   GET  /healthz                                 liveness
//
// Every error is a JSON object {"message": "..."}.
//
// =============================================================================

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/converter"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/logging"
)

// Config holds the listener settings.
type Config struct {
	Addr            string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server exposes a conversion Service over HTTP.
type Server struct {
	svc    *converter.Service
	logger logging.Logger
	cfg    Config
	maxMem int64
}

// New creates a Server. A nil logger discards output.
func New(svc *converter.Service, logger logging.Logger, cfg Config) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return &Server{svc: svc, logger: logger, cfg: cfg, maxMem: 32 << 20}
}

// Handler returns the routed handler wrapped in the CORS and logging
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/batches/{id}", s.handleBatch)
	mux.HandleFunc("GET /api/invoices/batch/{batchId}", s.handleOutcomes)
	mux.HandleFunc("GET /api/invoices/batch/{batchId}/excel", s.handleExcelNamed)
	mux.HandleFunc("POST /api/invoices/batch/{batchId}/excel", s.handleExcelCustom)
	mux.HandleFunc("POST /api/invoices/batch/{batchId}/sheets", s.handleSheets)
	mux.HandleFunc("GET /api/templates", s.handleTemplates)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return s.cors(s.logRequests(mux))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// and waits for background batches.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening on %s", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down gracefully")
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown error: %w", err)
	}
	s.svc.Wait()
	s.logger.Info("Server stopped")
	return nil
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (s *Server) cors(next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(s.cfg.AllowedOrigins))
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond))
	})
}
