package nfeparser

import "fmt"

// MalformedStructureError means the document parsed as XML but lacks an
// element every NF-e must carry.
type MalformedStructureError struct {
	FileName string
	Tag      string
}

func (e *MalformedStructureError) Error() string {
	return fmt.Sprintf("invalid XML structure: <%s> tag not found", e.Tag)
}

// ExtractionError wraps any other failure while reading a document: invalid
// XML, an unreadable amount, or an exceeded deadline.
type ExtractionError struct {
	FileName string
	Field    string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("failed to process XML: invalid value in <%s>: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("failed to process XML: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
