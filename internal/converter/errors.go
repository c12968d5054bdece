package converter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/tracker"
)

var (
	ErrEmptyInput         = tracker.ErrEmptyInput
	ErrTooManyFiles       = errors.New("too many files")
	ErrNoProcessedRecords = errors.New("no processed invoices found for this batch")
	ErrUnknownTemplate    = errors.New("unknown template")
	ErrPublisherDisabled  = errors.New("spreadsheet publishing is not configured")
)

// InvalidFilesError lists uploaded files that are not XML documents.
type InvalidFilesError struct {
	Names []string
}

func (e *InvalidFilesError) Error() string {
	return fmt.Sprintf("only XML files are allowed: %s", strings.Join(e.Names, ", "))
}

// FileTooLargeError reports a file above the size limit.
type FileTooLargeError struct {
	Name  string
	Size  int
	Limit int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file %s is %d bytes, limit is %d", e.Name, e.Size, e.Limit)
}
