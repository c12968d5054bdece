// =============================================================================
// NFe to XLSX Converter - Main Entry Point
// =============================================================================
//
// USAGE:
//   nfexlsx serve         - Start the HTTP API
//   nfexlsx process       - Convert every XML file in the input directory
//   nfexlsx templates     - List columns and named templates
//   nfexlsx inspect       - Print an exported workbook
//   nfexlsx version       - Display the application version
//
// ARCHITECTURE:
//   - cmd/        : CLI command definitions (Cobra)
//   - internal/   : extraction, tracking, templates, export, HTTP API
//   - pkg/        : shared utilities (file management, checksums)
//   - templates/  : named column templates (YAML or XLSX)
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/nfe-xlsx-converter/cmd"
)

func main() {
	cmd.Execute()
}
