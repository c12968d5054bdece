// =============================================================================
// NFe to XLSX Converter - Template Resolver
// =============================================================================
//
// Resolve turns a caller-supplied column selection into a validated Template.
//
// RESOLUTION RULES (applied in order):
//   1. No columns requested        -> the default template
//   2. Unknown ids                 -> dropped (or rejected, see UnknownPolicy)
//   3. Repeated ids                -> first occurrence kept
//   4. Nothing resolvable          -> the default template
//   5. Required catalog columns    -> appended in catalog order when missing
//
// Resolution is deterministic, and resolving an already resolved template
// returns it unchanged.
//
// =============================================================================

package template

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/logging"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/types"
)

const (
	// MaxColumnWidth is the widest column a spreadsheet accepts.
	MaxColumnWidth = 255

	CustomTemplateID   = "custom"
	CustomTemplateName = "Personalizado"

	// maxSuggestionDistance bounds the edit distance of "did you mean" hints.
	maxSuggestionDistance = 3
)

// UnknownPolicy selects what happens to column ids outside the catalog.
type UnknownPolicy string

const (
	UnknownDrop   UnknownPolicy = "drop"
	UnknownReject UnknownPolicy = "reject"
)

// ParseUnknownPolicy converts a config value. Empty means drop.
func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch UnknownPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", UnknownDrop:
		return UnknownDrop, nil
	case UnknownReject:
		return UnknownReject, nil
	}
	return "", fmt.Errorf("unknown column policy %q (want drop or reject)", s)
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ColumnRequest selects one catalog column, optionally overriding its header
// label and width. Other fields sent by clients are ignored.
type ColumnRequest struct {
	ID    string  `json:"id" yaml:"id"`
	Label string  `json:"label,omitempty" yaml:"label,omitempty"`
	Width float64 `json:"width,omitempty" yaml:"width,omitempty"`
}

// Request is an unresolved template.
type Request struct {
	ID      string          `json:"id,omitempty" yaml:"id,omitempty"`
	Name    string          `json:"name,omitempty" yaml:"name"`
	Columns []ColumnRequest `json:"columns" yaml:"columns"`
}

// RequestFrom converts a resolved template back into a request.
func RequestFrom(t *types.Template) Request {
	req := Request{ID: t.ID, Name: t.Name, Columns: make([]ColumnRequest, len(t.Columns))}
	for i, c := range t.Columns {
		req.Columns[i] = ColumnRequest{ID: c.ID, Label: c.Label, Width: c.Width}
	}
	return req
}

// Dropped describes an unknown column id left out of a template.
type Dropped struct {
	ID         string
	Suggestion string
}

// =============================================================================
// RESOLUTION
// =============================================================================

// Resolve resolves req against catalog.
//
// RETURNS:
//   - The resolved template.
//   - The ids dropped under UnknownDrop, with a closest-id suggestion.
//   - An *InvalidTemplateError for invalid overrides, or for unknown ids under
//     UnknownReject.
func Resolve(catalog *Catalog, req Request, policy UnknownPolicy) (*types.Template, []Dropped, error) {
	if len(req.Columns) == 0 {
		return catalog.Default(), nil, nil
	}

	tpl := &types.Template{
		ID:   strings.TrimSpace(req.ID),
		Name: strings.TrimSpace(req.Name),
	}
	if tpl.ID == "" {
		tpl.ID = CustomTemplateID
	}
	if tpl.Name == "" {
		tpl.Name = CustomTemplateName
	}

	var dropped []Dropped
	seen := make(map[string]bool, len(req.Columns))

	for _, rc := range req.Columns {
		id := strings.TrimSpace(rc.ID)
		spec, ok := catalog.Lookup(id)
		if !ok {
			dropped = append(dropped, Dropped{ID: id, Suggestion: suggest(catalog, id)})
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		if rc.Width < 0 || rc.Width > MaxColumnWidth {
			return nil, nil, &InvalidTemplateError{
				Reason: fmt.Sprintf("column width must be between 0 and %d", MaxColumnWidth),
				IDs:    []string{id},
			}
		}
		if label := strings.TrimSpace(rc.Label); label != "" {
			spec.Label = label
		}
		if rc.Width > 0 {
			spec.Width = rc.Width
		}
		tpl.Columns = append(tpl.Columns, spec)
	}

	if len(dropped) > 0 && policy == UnknownReject {
		ids := make([]string, len(dropped))
		for i, d := range dropped {
			ids[i] = d.ID
		}
		return nil, nil, &InvalidTemplateError{Reason: "unknown column ids", IDs: ids}
	}

	if len(tpl.Columns) == 0 {
		return catalog.Default(), dropped, nil
	}

	for _, spec := range catalog.columns {
		if spec.Required && !seen[spec.ID] {
			tpl.Columns = append(tpl.Columns, spec)
			seen[spec.ID] = true
		}
	}

	return tpl, dropped, nil
}

// suggest returns the catalog id closest to id, or "" when nothing is close.
func suggest(catalog *Catalog, id string) string {
	best, bestDist := "", maxSuggestionDistance+1
	lower := strings.ToLower(id)
	for _, candidate := range catalog.IDs() {
		d := levenshtein.ComputeDistance(lower, strings.ToLower(candidate))
		if d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver binds a catalog, a policy and a logger.
type Resolver struct {
	catalog *Catalog
	policy  UnknownPolicy
	logger  logging.Logger
}

// NewResolver creates a Resolver. A nil logger discards output.
func NewResolver(catalog *Catalog, policy UnknownPolicy, logger logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Resolver{catalog: catalog, policy: policy, logger: logger}
}

// Catalog returns the resolver's catalog.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Policy returns the unknown column policy.
func (r *Resolver) Policy() UnknownPolicy {
	return r.policy
}

// Resolve resolves req and logs every dropped id.
func (r *Resolver) Resolve(req Request) (*types.Template, error) {
	tpl, dropped, err := Resolve(r.catalog, req, r.policy)
	if err != nil {
		return nil, err
	}
	for _, d := range dropped {
		if d.Suggestion != "" {
			r.logger.Warn("Dropping unknown column %q (did you mean %q?)", d.ID, d.Suggestion)
		} else {
			r.logger.Warn("Dropping unknown column %q", d.ID)
		}
	}
	return tpl, nil
}
