// =============================================================================
// NFe to XLSX Converter - Process Command
// =============================================================================
//
// This file defines the 'process' command, which converts the NF-e documents
// of the input directory without going through the HTTP API.
//
// COMMAND USAGE:
//   nfexlsx process [flags]
//
// FLAGS:
//   --dry-run    : Extract and report without writing or archiving anything
//   --file       : Process a single file instead of the input directory
//   --template   : Named template used for the workbook (default: Padrão)
//   --retention  : Remove archived files older than this before processing
//
// PROCESSING PIPELINE:
//   1. Load configuration and wire the service
//   2. Discover *.xml files in the input directory
//   3. Split them into batches of at most processing.max_files documents
//   4. For each batch:
//      a. Extract every document (one outcome per file)
//      b. Render the processed records as a workbook
//      c. Archive the workbook and the processed inputs
//      d. Write an error log for the failed documents
//      e. Print a summary report
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/converter"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/logging"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/types"
	"github.com/ginjaninja78/nfe-xlsx-converter/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// dryRun extracts without writing output files.
var dryRun bool

// filePath is a single file to process instead of the input directory.
var filePath string

// templateID selects the workbook template.
var templateID string

// retention is the archive retention window. Zero keeps everything.
var retention time.Duration

// =============================================================================
// PROCESS COMMAND DEFINITION
// =============================================================================

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Convert the NF-e XML files of the input directory to XLSX",
	Long: `The process command scans the input directory for NF-e XML files, extracts
their fiscal fields and writes one styled workbook per batch to the output
directory.

A document that cannot be read never stops the others. Each batch holds at
most processing.max_files documents; larger directories produce several
batches, each with its own workbook.

On success:
  - The workbook is placed in the output directory and copied to the archive
  - Processed XML files are moved to the input archive
  - A summary report is printed

On error:
  - An error log is created in the output directory
  - The failed XML files remain in the input directory`,

	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, closer, err := loadConfig()
		if err != nil {
			return err
		}
		defer closer.Close()

		store, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		svc, err := newService(cmd.Context(), cfg, store, logger, serviceOptions(cfg))
		if err != nil {
			return err
		}

		fm := utils.NewFileManager(afero.NewOsFs(), cfg.InputDir, cfg.OutputDir, cfg.InputArchiveDir, cfg.OutputArchiveDir)
		fm.ArchiveOnSuccess = cfg.ArchiveOnSuccess
		fm.UseTimestampSubdirs = cfg.UseTimestampSubdirs

		_, err = runProcess(cmd.Context(), fm, svc, logger, processOptions{
			DryRun:      dryRun,
			File:        filePath,
			TemplateID:  templateID,
			Retention:   retention,
			MaxFiles:    cfg.Processing.MaxFiles,
			MaxFileSize: cfg.Processing.MaxFileSize(),
		}, cmd.OutOrStdout())
		return err
	},
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().BoolVar(
		&dryRun,
		"dry-run",
		false,
		"Extract and report without writing or archiving anything",
	)

	processCmd.Flags().StringVar(
		&filePath,
		"file",
		"",
		"Process a single XML file instead of the input directory",
	)

	processCmd.Flags().StringVar(
		&templateID,
		"template",
		"",
		"Named template used for the workbook (default: the standard template)",
	)

	processCmd.Flags().DurationVar(
		&retention,
		"retention",
		0,
		"Remove archived files older than this duration before processing (e.g. 720h)",
	)
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// processOptions carries the flags and limits of one run.
type processOptions struct {
	DryRun      bool
	File        string
	TemplateID  string
	Retention   time.Duration
	MaxFiles    int
	MaxFileSize int64
}

// runProcess orchestrates the directory pipeline and returns one summary per
// batch.
func runProcess(ctx context.Context, fm *utils.FileManager, svc *converter.Service, logger logging.Logger, opts processOptions, out io.Writer) ([]utils.ProcessingSummary, error) {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = converter.DefaultMaxFiles
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = converter.DefaultMaxFileSize
	}

	fmt.Fprintln(out, "=== NFe to XLSX Converter ===")

	// =========================================================================
	// STEP 1: PREPARE
	// =========================================================================
	// Fail fast on an unknown template before touching any file.

	tpl, err := svc.Template(opts.TemplateID)
	if err != nil {
		return nil, err
	}

	if !opts.DryRun {
		if err := fm.EnsureDirectories(); err != nil {
			return nil, err
		}
		if opts.Retention > 0 {
			removed, err := fm.CleanOldArchives(opts.Retention)
			if err != nil {
				return nil, err
			}
			logger.Info("Removed %d archived file(s) older than %s", removed, opts.Retention)
		}
	}

	// =========================================================================
	// STEP 2: DISCOVER INPUT FILES
	// =========================================================================

	var inputFiles []string
	if opts.File != "" {
		if !fm.FileExists(opts.File) {
			return nil, fmt.Errorf("file not found: %s", opts.File)
		}
		inputFiles = []string{opts.File}
	} else {
		inputFiles, err = fm.DiscoverInputFiles(".xml")
		if err != nil {
			return nil, fmt.Errorf("failed to discover input files: %w", err)
		}
	}

	if len(inputFiles) == 0 {
		fmt.Fprintln(out, "No XML files found in the input directory.")
		return nil, nil
	}

	fmt.Fprintf(out, "Found %d file(s) to process\n", len(inputFiles))

	// =========================================================================
	// STEP 3: PROCESS IN BATCHES
	// =========================================================================

	var summaries []utils.ProcessingSummary
	for start := 0; start < len(inputFiles); start += opts.MaxFiles {
		end := min(start+opts.MaxFiles, len(inputFiles))

		summary, err := processBatch(ctx, fm, svc, tpl, logger, opts, inputFiles[start:end], out)
		if err != nil {
			return summaries, err
		}
		summaries = append(summaries, *summary)

		fmt.Fprintln(out, "\n=== Processing Complete ===")
		if err := utils.WriteSummary(out, *summary); err != nil {
			return summaries, err
		}
	}

	return summaries, nil
}

// processBatch runs one batch and handles its outputs.
func processBatch(ctx context.Context, fm *utils.FileManager, svc *converter.Service, tpl *types.Template, logger logging.Logger, opts processOptions, paths []string, out io.Writer) (*utils.ProcessingSummary, error) {
	summary := &utils.ProcessingSummary{
		StartTime:    time.Now(),
		TotalFiles:   len(paths),
		TemplateName: tpl.Name,
	}

	// =========================================================================
	// STEP 3a: READ
	// =========================================================================
	// Unreadable and oversized files are reported without entering the batch.

	var errorEntries []utils.ErrorLogEntry
	fail := func(name, kind, msg, sum string) {
		summary.FailedFiles++
		summary.FailedFilesList = append(summary.FailedFilesList, utils.FailedFileInfo{InputFile: name, ErrorMessage: msg})
		errorEntries = append(errorEntries, utils.ErrorLogEntry{
			Timestamp:    time.Now(),
			FileName:     name,
			ErrorType:    kind,
			ErrorMessage: msg,
			Checksum:     sum,
		})
		fmt.Fprintf(out, "  ✗ %s: %s\n", name, msg)
	}

	var files []types.SourceFile
	pathByName := make(map[string]string, len(paths))
	for _, path := range paths {
		name := filepath.Base(path)
		data, err := fm.ReadFile(path)
		if err != nil {
			fail(name, "read", err.Error(), "")
			continue
		}
		if int64(len(data)) > opts.MaxFileSize {
			fail(name, "size", (&converter.FileTooLargeError{Name: name, Size: len(data), Limit: opts.MaxFileSize}).Error(), "")
			continue
		}
		files = append(files, types.SourceFile{Name: name, Data: data})
		pathByName[name] = path
	}

	// =========================================================================
	// STEP 3b: EXTRACT
	// =========================================================================

	var processedPaths []string
	if len(files) > 0 {
		batch, err := svc.Run(ctx, files)
		if err != nil {
			return nil, err
		}
		summary.BatchID = batch.ID

		outcomes, err := svc.Outcomes(ctx, batch.ID)
		if err != nil {
			return nil, err
		}
		for _, o := range outcomes {
			summary.Warnings += len(o.Warnings)
			if o.Status == types.StatusError {
				fail(o.FileName, "extraction", o.ErrorMessage, o.Checksum)
				continue
			}
			summary.SuccessfulFiles++
			processedPaths = append(processedPaths, pathByName[o.FileName])
			fmt.Fprintf(out, "  ✓ %s (NF %s)\n", o.FileName, o.Record.NumeroNF)
		}
	}

	if opts.DryRun {
		summary.EndTime = time.Now()
		return summary, nil
	}

	// =========================================================================
	// STEP 3c: WRITE AND ARCHIVE
	// =========================================================================

	if summary.SuccessfulFiles > 0 {
		export, err := svc.Export(ctx, summary.BatchID, tpl)
		if err != nil {
			return nil, err
		}
		outputPath, err := fm.WriteOutput(export.FileName, export.Data)
		if err != nil {
			return nil, err
		}
		summary.OutputFile = outputPath

		if _, err := fm.ArchiveOutputFile(outputPath); err != nil {
			logger.Warn("Failed to archive %s: %v", outputPath, err)
		}
		for _, path := range processedPaths {
			if _, err := fm.ArchiveInputFile(path); err != nil {
				logger.Warn("Failed to archive %s: %v", path, err)
			}
		}
	}

	// =========================================================================
	// STEP 3d: ERROR LOG
	// =========================================================================

	logID := summary.BatchID
	if logID == "" {
		logID = "-"
	}
	errorLog, err := fm.WriteErrorLog(logID, errorEntries)
	if err != nil {
		logger.Warn("Failed to write error log: %v", err)
	}
	summary.ErrorLog = errorLog

	summary.EndTime = time.Now()
	return summary, nil
}
