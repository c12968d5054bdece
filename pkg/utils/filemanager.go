// =============================================================================
// NFe to XLSX Converter - File Manager Utility
// =============================================================================
//
// This module provides the directory side of the process command:
//   - Input discovery
//   - Archival (moving processed inputs, copying workbooks)
//   - Output, error log and summary writing
//   - Archive retention
//
// Every operation goes through an afero.Fs so the same code runs against the
// OS filesystem and an in-memory one.
//
// ARCHIVAL STRATEGY:
//   - Input files are moved to input_archive after the run
//   - Workbooks are copied to output_archive for long-term storage
//   - Error logs stay in the output directory
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations for the process command.
type FileManager struct {
	fs afero.Fs

	// InputDir is scanned for XML documents.
	InputDir string

	// OutputDir receives workbooks and logs.
	OutputDir string

	// InputArchiveDir is the directory for archived input files.
	InputArchiveDir string

	// OutputArchiveDir is the directory for archived workbooks.
	OutputArchiveDir string

	// UseTimestampSubdirs creates date-based subdirectories in archives.
	// Example: input_archive/2024/01/15/nota.xml
	UseTimestampSubdirs bool

	// ArchiveOnSuccess determines whether inputs are archived after a run.
	ArchiveOnSuccess bool

	now func() time.Time
}

// NewFileManager creates a FileManager over fs.
func NewFileManager(fs afero.Fs, inputDir, outputDir, inputArchiveDir, outputArchiveDir string) *FileManager {
	return &FileManager{
		fs:               fs,
		InputDir:         inputDir,
		OutputDir:        outputDir,
		InputArchiveDir:  inputArchiveDir,
		OutputArchiveDir: outputArchiveDir,
		ArchiveOnSuccess: true,
		now:              time.Now,
	}
}

// =============================================================================
// DIRECTORY MANAGEMENT
// =============================================================================

// EnsureDirectories creates all required directories if they don't exist.
func (fm *FileManager) EnsureDirectories() error {
	dirs := []string{
		fm.InputDir,
		fm.OutputDir,
		fm.InputArchiveDir,
		fm.OutputArchiveDir,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := fm.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverInputFiles lists the files of the input directory whose extension
// matches extension (case-insensitive), sorted by name.
//
// RETURNS:
//   - A slice of file paths.
//   - An error if the directory cannot be read.
func (fm *FileManager) DiscoverInputFiles(extension string) ([]string, error) {
	entries, err := afero.ReadDir(fm.fs, fm.InputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan input directory: %w", err)
	}

	var result []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if extension == "" || strings.EqualFold(filepath.Ext(e.Name()), extension) {
			result = append(result, filepath.Join(fm.InputDir, e.Name()))
		}
	}
	sort.Strings(result)

	return result, nil
}

// ReadFile returns the content of path.
func (fm *FileManager) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(fm.fs, path)
}

// FileExists checks if a file exists.
func (fm *FileManager) FileExists(path string) bool {
	ok, err := afero.Exists(fm.fs, path)
	return err == nil && ok
}

// =============================================================================
// OUTPUT
// =============================================================================

// WriteOutput stores data as name inside the output directory.
func (fm *FileManager) WriteOutput(name string, data []byte) (string, error) {
	path := filepath.Join(fm.OutputDir, name)
	if err := afero.WriteFile(fm.fs, path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// =============================================================================
// FILE ARCHIVAL
// =============================================================================

// ArchiveInputFile moves an input file to the archive directory.
//
// RETURNS:
//   - The path to the archived file.
//   - An error if archival fails.
func (fm *FileManager) ArchiveInputFile(filePath string) (string, error) {
	if !fm.ArchiveOnSuccess {
		return filePath, nil
	}

	archivePath := fm.getArchivePath(fm.InputArchiveDir, filePath)
	if err := fm.fs.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := fm.fs.Rename(filePath, archivePath); err != nil {
		// Rename fails across devices; fall back to copy and delete.
		if err := fm.copyFile(filePath, archivePath); err != nil {
			return "", fmt.Errorf("failed to copy file to archive: %w", err)
		}
		if err := fm.fs.Remove(filePath); err != nil {
			return "", fmt.Errorf("failed to remove original file: %w", err)
		}
	}

	return archivePath, nil
}

// ArchiveOutputFile copies an output file to the archive directory.
//
// NOTE: Output files are copied, not moved, so they remain in the output directory.
func (fm *FileManager) ArchiveOutputFile(filePath string) (string, error) {
	if !fm.ArchiveOnSuccess {
		return filePath, nil
	}

	archivePath := fm.getArchivePath(fm.OutputArchiveDir, filePath)
	if err := fm.fs.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := fm.copyFile(filePath, archivePath); err != nil {
		return "", fmt.Errorf("failed to copy file to archive: %w", err)
	}

	return archivePath, nil
}

func (fm *FileManager) getArchivePath(archiveDir, filePath string) string {
	fileName := filepath.Base(filePath)

	if fm.UseTimestampSubdirs {
		now := fm.now()
		return filepath.Join(
			archiveDir,
			fmt.Sprintf("%d", now.Year()),
			fmt.Sprintf("%02d", now.Month()),
			fmt.Sprintf("%02d", now.Day()),
			fileName,
		)
	}

	return filepath.Join(archiveDir, fileName)
}

// CleanOldArchives removes archived files older than maxAge from both
// archive directories.
//
// RETURNS:
//   - The number of files removed.
//   - An error if cleaning fails.
func (fm *FileManager) CleanOldArchives(maxAge time.Duration) (int, error) {
	cutoff := fm.now().Add(-maxAge)
	removed := 0

	for _, dir := range []string{fm.InputArchiveDir, fm.OutputArchiveDir} {
		if ok, _ := afero.DirExists(fm.fs, dir); !ok {
			continue
		}
		err := afero.Walk(fm.fs, dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || !info.ModTime().Before(cutoff) {
				return nil
			}
			if err := fm.fs.Remove(path); err != nil {
				return err
			}
			removed++
			return nil
		})
		if err != nil {
			return removed, fmt.Errorf("failed to clean archives: %w", err)
		}
	}

	return removed, nil
}

// =============================================================================
// ERROR LOG GENERATION
// =============================================================================

// ErrorLogEntry represents a single failed document.
type ErrorLogEntry struct {
	Timestamp    time.Time
	FileName     string
	ErrorType    string
	ErrorMessage string
	Checksum     string
}

// WriteErrorLog writes entries to a new file in the output directory.
//
// RETURNS:
//   - The path to the error log file, empty when there is nothing to log.
//   - An error if writing fails.
func (fm *FileManager) WriteErrorLog(batchID string, entries []ErrorLogEntry) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	now := fm.now()
	logFileName := fmt.Sprintf("error_log_%s_%s.txt", now.Format("20060102_150405"), uuid.NewString()[:8])
	logPath := filepath.Join(fm.OutputDir, logFileName)

	file, err := fm.fs.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to create error log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	fmt.Fprintf(writer, "NFe to XLSX Converter - Error Log\n"+
		"Batch: %s\n"+
		"Generated: %s\n"+
		"Total Errors: %d\n"+
		"================================================================================\n\n",
		batchID,
		now.Format("2006-01-02 15:04:05"),
		len(entries))

	for i, entry := range entries {
		fmt.Fprintf(writer, "Error #%d\n"+
			"  Timestamp:  %s\n"+
			"  File:       %s\n"+
			"  Error Type: %s\n"+
			"  Message:    %s\n",
			i+1,
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.FileName,
			entry.ErrorType,
			entry.ErrorMessage)
		if entry.Checksum != "" {
			fmt.Fprintf(writer, "  Checksum:   %s\n", entry.Checksum)
		}
		writer.WriteString("\n")
	}

	writer.WriteString("================================================================================\n" +
		"End of Error Log\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush error log: %w", err)
	}

	return logPath, nil
}

// =============================================================================
// PROCESSING SUMMARY
// =============================================================================

// ProcessingSummary contains summary information about a processing run.
type ProcessingSummary struct {
	BatchID         string
	StartTime       time.Time
	EndTime         time.Time
	TotalFiles      int
	SuccessfulFiles int
	FailedFiles     int
	Warnings        int
	TemplateName    string
	OutputFile      string
	ErrorLog        string
	FailedFilesList []FailedFileInfo
}

// FailedFileInfo contains information about a failed file.
type FailedFileInfo struct {
	InputFile    string
	ErrorMessage string
}

// WriteSummary renders summary as plain text.
func WriteSummary(w io.Writer, summary ProcessingSummary) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "Run Information:\n"+
		"  Batch:          %s\n"+
		"  Start Time:     %s\n"+
		"  Duration:       %s\n\n"+
		"Statistics:\n"+
		"  Total Files:    %d\n"+
		"  Successful:     %d\n"+
		"  Failed:         %d\n"+
		"  Warnings:       %d\n\n",
		summary.BatchID,
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Sub(summary.StartTime).Round(time.Millisecond),
		summary.TotalFiles,
		summary.SuccessfulFiles,
		summary.FailedFiles,
		summary.Warnings)

	if summary.OutputFile != "" {
		fmt.Fprintf(bw, "Workbook (%s): %s\n", summary.TemplateName, summary.OutputFile)
	}
	if summary.ErrorLog != "" {
		fmt.Fprintf(bw, "Error log: %s\n", summary.ErrorLog)
	}

	if len(summary.FailedFilesList) > 0 {
		bw.WriteString("\nFailed Files:\n")
		bw.WriteString("--------------------------------------------------------------------------------\n")
		for _, ff := range summary.FailedFilesList {
			fmt.Fprintf(bw, "  File:  %s\n", ff.InputFile)
			fmt.Fprintf(bw, "  Error: %s\n\n", ff.ErrorMessage)
		}
	}

	return bw.Flush()
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

func (fm *FileManager) copyFile(src, dst string) error {
	sourceFile, err := fm.fs.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := fm.fs.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return destFile.Sync()
}
