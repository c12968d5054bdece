package template

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/xlsxparser"
)

// Registry holds named template requests loaded from a directory.
type Registry struct {
	requests map[string]Request
}

// NewRegistry creates a registry holding reqs keyed by id.
func NewRegistry(reqs ...Request) *Registry {
	r := &Registry{requests: make(map[string]Request, len(reqs))}
	for _, req := range reqs {
		r.requests[req.ID] = req
	}
	return r
}

// LoadRegistry loads every template file in dir.
//
// Supported files:
//   - *.yaml, *.yml : a Request document (id, name, columns)
//   - *.xlsx        : a definition sheet, see xlsxparser.ParseTemplate
//
// A missing directory yields an empty registry. A file without an id uses its
// base name.
func LoadRegistry(dir string) (*Registry, error) {
	reg := NewRegistry()
	if dir == "" {
		return reg, nil
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return reg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		var req Request
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml":
			req, err = loadYAML(path)
		case ".xlsx":
			req, err = loadXLSX(path)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}

		if req.ID == "" {
			req.ID = strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		}
		if req.ID == DefaultTemplateID {
			return nil, fmt.Errorf("template %s: id %q is reserved", path, DefaultTemplateID)
		}
		if _, dup := reg.requests[req.ID]; dup {
			return nil, fmt.Errorf("template %s: duplicate id %q", path, req.ID)
		}
		reg.requests[req.ID] = req
	}

	return reg, nil
}

func loadYAML(path string) (Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Request{}, fmt.Errorf("failed to read file: %w", err)
	}
	var req Request
	if err := yaml.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("failed to parse file: %w", err)
	}
	return req, nil
}

func loadXLSX(path string) (Request, error) {
	def, err := xlsxparser.ParseTemplate(path)
	if err != nil {
		return Request{}, err
	}
	req := Request{ID: def.ID, Name: def.Name, Columns: make([]ColumnRequest, len(def.Columns))}
	for i, c := range def.Columns {
		req.Columns[i] = ColumnRequest{ID: c.ID, Label: c.Label, Width: c.Width}
	}
	return req, nil
}

// Get returns the named request.
func (r *Registry) Get(id string) (Request, bool) {
	req, ok := r.requests[id]
	return req, ok
}

// List returns every request ordered by id.
func (r *Registry) List() []Request {
	out := make([]Request, 0, len(r.requests))
	for _, req := range r.requests {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of named templates.
func (r *Registry) Len() int {
	return len(r.requests)
}
