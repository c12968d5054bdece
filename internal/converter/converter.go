// =============================================================================
// NFe to XLSX Converter - Conversion Service
// =============================================================================
//
// This module orchestrates a batch from upload to export.
//
// BATCH PIPELINE:
//   1. Validate the submission (count, extension, size)
//   2. Create the batch in the tracker
//   3. For every file, in order:
//        a. Fingerprint the content
//        b. Extract the fiscal record
//        c. Run the field checks (warnings only)
//        d. Record exactly one outcome
//   4. The batch completes with its last outcome
//
// EXPORT:
//   Resolve the template, load the processed records and render the workbook.
//
// CONCURRENCY:
//   Submit returns as soon as the batch exists; its files are processed in a
//   background goroutine. Wait blocks until every background batch finished.
//
// =============================================================================

package converter

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/logging"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/nfeparser"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/template"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/tracker"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/types"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/validation"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/xlsxwriter"
	"github.com/ginjaninja78/nfe-xlsx-converter/pkg/checksum"
)

const (
	DefaultMaxFiles    = 50
	DefaultMaxFileSize = 10 << 20

	exportPrefix = "notas_fiscais"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options limits submissions and extraction.
type Options struct {
	// MaxFiles is the largest accepted batch.
	MaxFiles int

	// MaxFileSize is the largest accepted file, in bytes.
	MaxFileSize int64

	// ExtractTimeout bounds the extraction of one file. Zero means no limit.
	ExtractTimeout time.Duration
}

// DefaultOptions returns the limits of the upload endpoint.
func DefaultOptions() Options {
	return Options{
		MaxFiles:       DefaultMaxFiles,
		MaxFileSize:    DefaultMaxFileSize,
		ExtractTimeout: 30 * time.Second,
	}
}

// Publisher sends processed records to an external spreadsheet.
type Publisher interface {
	Publish(ctx context.Context, tpl *types.Template, records []*types.FiscalRecord) (int, error)
}

// Export is a rendered workbook.
type Export struct {
	FileName    string
	ContentType string
	Data        []byte
	Rows        int
}

// =============================================================================
// SERVICE
// =============================================================================

// Service runs batches and exports their results.
type Service struct {
	tracker   *tracker.Tracker
	extractor *nfeparser.Extractor
	resolver  *template.Resolver
	registry  *template.Registry
	publisher Publisher
	logger    logging.Logger
	opts      Options

	wg sync.WaitGroup
}

// NewService creates a Service.
//
// PARAMETERS:
//   - store: where batches and outcomes live.
//   - resolver: column template resolver.
//   - registry: named templates; nil means none.
//   - logger: nil discards output.
//   - opts: submission limits; zero fields take the defaults.
func NewService(store tracker.Store, resolver *template.Resolver, registry *template.Registry, logger logging.Logger, opts Options) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	if registry == nil {
		registry = template.NewRegistry()
	}
	def := DefaultOptions()
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = def.MaxFiles
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = def.MaxFileSize
	}
	return &Service{
		tracker:   tracker.New(store, logger),
		extractor: nfeparser.NewExtractor(opts.ExtractTimeout),
		resolver:  resolver,
		registry:  registry,
		logger:    logger,
		opts:      opts,
	}
}

// SetPublisher enables Publish.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// HasPublisher reports whether Publish is available.
func (s *Service) HasPublisher() bool {
	return s.publisher != nil
}

// Options returns the submission limits in effect.
func (s *Service) Options() Options {
	return s.opts
}

// Catalog returns the column catalog.
func (s *Service) Catalog() *template.Catalog {
	return s.resolver.Catalog()
}

// NamedTemplates returns the registered templates sorted by id.
func (s *Service) NamedTemplates() []template.Request {
	return s.registry.List()
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Validate checks a submission without creating anything.
func (s *Service) Validate(files []types.SourceFile) error {
	if len(files) == 0 {
		return ErrEmptyInput
	}
	if len(files) > s.opts.MaxFiles {
		return fmt.Errorf("%w: %d files, limit is %d", ErrTooManyFiles, len(files), s.opts.MaxFiles)
	}

	var invalid []string
	for _, f := range files {
		if !strings.EqualFold(filepath.Ext(f.Name), ".xml") {
			invalid = append(invalid, f.Name)
		}
	}
	if len(invalid) > 0 {
		return &InvalidFilesError{Names: invalid}
	}

	for _, f := range files {
		if int64(len(f.Data)) > s.opts.MaxFileSize {
			return &FileTooLargeError{Name: f.Name, Size: len(f.Data), Limit: s.opts.MaxFileSize}
		}
	}
	return nil
}

// Submit validates files, creates their batch and processes it in the
// background.
//
// RETURNS:
//   - The batch as created (status processing).
//   - A validation error or a store error.
func (s *Service) Submit(ctx context.Context, files []types.SourceFile) (*types.Batch, error) {
	if err := s.Validate(files); err != nil {
		return nil, err
	}

	batch, err := s.tracker.CreateBatch(ctx, len(files))
	if err != nil {
		return nil, err
	}

	// The request context ends with the response; the batch must not.
	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.process(bg, batch.ID, files); err != nil {
			s.logger.Error("Batch %s: %v", batch.ID, err)
		}
	}()

	return batch, nil
}

// Run validates files, creates their batch and processes it before returning.
func (s *Service) Run(ctx context.Context, files []types.SourceFile) (*types.Batch, error) {
	if err := s.Validate(files); err != nil {
		return nil, err
	}
	batch, err := s.tracker.CreateBatch(ctx, len(files))
	if err != nil {
		return nil, err
	}
	return s.process(ctx, batch.ID, files)
}

// Wait blocks until every batch started by Submit has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// =============================================================================
// PROCESSING
// =============================================================================

// process gives every file exactly one outcome. A failing file never stops the
// others; only a store failure aborts the batch.
func (s *Service) process(ctx context.Context, batchID string, files []types.SourceFile) (*types.Batch, error) {
	startTime := time.Now()
	seen := make(map[string]string, len(files))

	// Outcomes are recorded even after ctx is cancelled.
	recordCtx := context.WithoutCancel(ctx)

	var batch *types.Batch
	for _, file := range files {
		outcome := s.processFile(ctx, file, seen)

		var err error
		batch, err = s.tracker.RecordOutcome(recordCtx, batchID, outcome)
		if err != nil {
			return nil, fmt.Errorf("failed to record outcome of %s: %w", file.Name, err)
		}
	}

	s.logger.Info("Batch %s finished in %s", batchID, time.Since(startTime).Round(time.Millisecond))
	return batch, nil
}

func (s *Service) processFile(ctx context.Context, file types.SourceFile, seen map[string]string) *types.ProcessingOutcome {
	// =========================================================================
	// STEP 1: FINGERPRINT
	// =========================================================================

	sum := checksum.Sum(file.Data)
	duplicateOf, duplicate := seen[sum]
	if !duplicate {
		seen[sum] = file.Name
	}

	// =========================================================================
	// STEP 2: EXTRACT
	// =========================================================================

	s.logger.Debug("Extracting %s", file.Name)

	record, err := s.extractor.Extract(ctx, file)
	if err != nil {
		outcome := types.Failed(file.Name, err)
		outcome.Checksum = sum
		return outcome
	}

	// =========================================================================
	// STEP 3: FIELD CHECKS
	// =========================================================================

	outcome := types.Processed(file.Name, record)
	outcome.Checksum = sum
	outcome.Warnings = validation.Messages(validation.Validate(record))
	if duplicate {
		outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("same content as %s", duplicateOf))
	}
	for _, w := range outcome.Warnings {
		s.logger.Warn("%s: %s", file.Name, w)
	}
	return outcome
}

// =============================================================================
// QUERIES
// =============================================================================

// Status returns the batch snapshot.
func (s *Service) Status(ctx context.Context, batchID string) (*types.Batch, error) {
	return s.tracker.Status(ctx, batchID)
}

// Outcomes returns the batch's outcomes in completion order.
func (s *Service) Outcomes(ctx context.Context, batchID string) ([]*types.ProcessingOutcome, error) {
	return s.tracker.Outcomes(ctx, batchID)
}

// =============================================================================
// TEMPLATES AND EXPORT
// =============================================================================

// Template resolves a template by id. An empty id or the default id yields
// the default template.
func (s *Service) Template(id string) (*types.Template, error) {
	if id == "" || id == template.DefaultTemplateID {
		return s.resolver.Catalog().Default(), nil
	}
	req, ok := s.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, id)
	}
	return s.resolver.Resolve(req)
}

// ExportNamed renders the batch with a registered template.
func (s *Service) ExportNamed(ctx context.Context, batchID, templateID string) (*Export, error) {
	tpl, err := s.Template(templateID)
	if err != nil {
		return nil, err
	}
	return s.Export(ctx, batchID, tpl)
}

// ExportRequest renders the batch with a caller supplied template.
func (s *Service) ExportRequest(ctx context.Context, batchID string, req template.Request) (*Export, error) {
	tpl, err := s.resolver.Resolve(req)
	if err != nil {
		return nil, err
	}
	return s.Export(ctx, batchID, tpl)
}

// Export renders the processed records of the batch through tpl.
//
// RETURNS:
//   - The workbook and its file name.
//   - ErrNotFound, ErrNoProcessedRecords or a serializer error.
func (s *Service) Export(ctx context.Context, batchID string, tpl *types.Template) (*Export, error) {
	records, err := s.tracker.ProcessedRecords(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoProcessedRecords
	}

	data, err := xlsxwriter.Write(records, tpl)
	if err != nil {
		return nil, fmt.Errorf("failed to generate workbook: %w", err)
	}

	s.logger.Info("Exported batch %s with template %q (%d rows)", batchID, tpl.Name, len(records))
	return &Export{
		FileName:    ExportFileName(batchID, tpl.Name),
		ContentType: xlsxwriter.ContentType,
		Data:        data,
		Rows:        len(records),
	}, nil
}

// Publish appends the processed records of the batch to the configured
// spreadsheet and returns the number of rows written.
func (s *Service) Publish(ctx context.Context, batchID, templateID string) (int, error) {
	if s.publisher == nil {
		return 0, ErrPublisherDisabled
	}
	tpl, err := s.Template(templateID)
	if err != nil {
		return 0, err
	}
	records, err := s.tracker.ProcessedRecords(ctx, batchID)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, ErrNoProcessedRecords
	}
	n, err := s.publisher.Publish(ctx, tpl, records)
	if err != nil {
		return 0, fmt.Errorf("failed to publish batch %s: %w", batchID, err)
	}
	s.logger.Info("Published %d row(s) of batch %s", n, batchID)
	return n, nil
}

// ExportFileName builds notas_fiscais_<batchId>_<template>.xlsx, replacing
// every rune of the template name that is not an ASCII letter or digit.
func ExportFileName(batchID, templateName string) string {
	name := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return '_'
	}, templateName)
	return fmt.Sprintf("%s_%s_%s.xlsx", exportPrefix, batchID, name)
}
