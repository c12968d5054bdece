package template

import (
	"fmt"
	"strings"
)

// InvalidTemplateError reports a template request or catalog that cannot be
// resolved.
type InvalidTemplateError struct {
	Reason string
	IDs    []string
}

func (e *InvalidTemplateError) Error() string {
	if len(e.IDs) == 0 {
		return fmt.Sprintf("invalid template: %s", e.Reason)
	}
	return fmt.Sprintf("invalid template: %s: %s", e.Reason, strings.Join(e.IDs, ", "))
}
