// =============================================================================
// NFe to XLSX Converter - Root Command
// =============================================================================
//
// COBRA CLI STRUCTURE:
//   rootCmd (nfexlsx)
//   ├── serveCmd     (nfexlsx serve)
//   ├── processCmd   (nfexlsx process)
//   ├── templatesCmd (nfexlsx templates [validate])
//   ├── inspectCmd   (nfexlsx inspect <file.xlsx>)
//   └── versionCmd   (nfexlsx version)
//
// The root command owns the global flags and the wiring shared by the
// subcommands: configuration, logging, the batch store and the service.
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/config"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/converter"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/logging"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/sheets"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/template"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/tracker"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "nfexlsx",
	Short: "NFe to XLSX Converter - Extract NF-e XML documents into styled spreadsheets",
	Long: `NFe to XLSX Converter reads batches of Brazilian electronic invoices (NF-e XML),
extracts a flat set of fiscal fields from each document and exports the
results as a styled XLSX workbook whose columns come from a column template.

Key Features:
  - HTTP API for upload, batch progress and workbook download
  - Directory-driven batch processing with archival and error logs
  - Named column templates (YAML or XLSX definition sheets)
  - Optional durable batch store (SQLite) and Google Sheets publishing

Example Usage:
  nfexlsx serve                        # Start the HTTP API
  nfexlsx process                      # Convert every XML in the input directory
  nfexlsx process --template fiscal    # Use a named template
  nfexlsx templates validate           # Check the named templates`,

	SilenceUsage: true,
}

// Execute runs the root command. It is called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable verbose output for debugging",
	)
}

// =============================================================================
// SHARED WIRING
// =============================================================================

// loadConfig reads the configuration and builds the logger. The closer must
// be closed when the command ends.
func loadConfig() (*config.MainConfig, logging.Logger, io.Closer, error) {
	cfg, err := config.LoadMainConfig(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load main config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	logger, closer, err := logging.NewFromConfig(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.ConfigFile != "" {
		logger.Debug("Using config file: %s", cfg.ConfigFile)
	}
	return cfg, logger, closer, nil
}

// openStore opens the configured batch store.
func openStore(cfg *config.MainConfig, logger logging.Logger) (tracker.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		logger.Info("Using SQLite batch store at %s", cfg.Store.Path)
		return tracker.NewSQLiteStore(cfg.Store.Path)
	default:
		return tracker.NewMemoryStore(), nil
	}
}

// newResolver builds the template resolver and loads the named templates.
func newResolver(cfg *config.MainConfig, logger logging.Logger) (*template.Resolver, *template.Registry, error) {
	policy, err := template.ParseUnknownPolicy(cfg.Templates.UnknownColumns)
	if err != nil {
		return nil, nil, err
	}
	registry, err := template.LoadRegistry(cfg.TemplatesDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load templates: %w", err)
	}
	logger.Debug("Loaded %d named template(s) from %s", registry.Len(), cfg.TemplatesDir)
	return template.NewResolver(template.StandardCatalog(), policy, logger), registry, nil
}

// newService wires the conversion service on top of store.
func newService(ctx context.Context, cfg *config.MainConfig, store tracker.Store, logger logging.Logger, opts converter.Options) (*converter.Service, error) {
	resolver, registry, err := newResolver(cfg, logger)
	if err != nil {
		return nil, err
	}

	svc := converter.NewService(store, resolver, registry, logger, opts)

	if cfg.Sheets.Enabled {
		client, err := sheets.NewClient(ctx, sheets.Config{
			CredentialsFile: cfg.Sheets.CredentialsFile,
			SpreadsheetID:   cfg.Sheets.SpreadsheetID,
			SheetName:       cfg.Sheets.SheetName,
			IncludeHeader:   cfg.Sheets.IncludeHeader,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure Google Sheets: %w", err)
		}
		svc.SetPublisher(client)
		logger.Info("Google Sheets publishing enabled for spreadsheet %s", cfg.Sheets.SpreadsheetID)
	}

	return svc, nil
}

// serviceOptions maps the processing section onto service options.
func serviceOptions(cfg *config.MainConfig) converter.Options {
	return converter.Options{
		MaxFiles:       cfg.Processing.MaxFiles,
		MaxFileSize:    cfg.Processing.MaxFileSize(),
		ExtractTimeout: cfg.Processing.ExtractTimeout,
	}
}
