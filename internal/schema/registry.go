package schema

import (
	"fmt"
	"sync"
)

// Registry serves schema templates in registration order.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	templates []SchemaTemplate
	byID      map[string]int
}

// NewRegistry builds a registry from templates.
// Returns an error if any template is malformed, two templates share an ID,
// or a field references a template that is not part of the registry.
func NewRegistry(templates ...SchemaTemplate) (*Registry, error) {
	r := &Registry{
		templates: make([]SchemaTemplate, 0, len(templates)),
		byID:      make(map[string]int, len(templates)),
	}
	for _, t := range templates {
		if err := t.validate(); err != nil {
			return nil, err
		}
		if _, exists := r.byID[t.ID]; exists {
			return nil, fmt.Errorf("template already registered: %s", t.ID)
		}
		r.byID[t.ID] = len(r.templates)
		r.templates = append(r.templates, t)
	}
	for _, t := range r.templates {
		for _, f := range t.Fields {
			if f.References == "" {
				continue
			}
			if _, ok := r.byID[f.References]; !ok {
				return nil, fmt.Errorf("template %s: field %s references unknown template %s", t.ID, f.Name, f.References)
			}
		}
	}
	return r, nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry of built-in templates.
func Default() *Registry {
	defaultOnce.Do(func() {
		reg, err := NewRegistry(BuiltinTemplates()...)
		if err != nil {
			panic(fmt.Sprintf("built-in schema catalog: %v", err))
		}
		defaultRegistry = reg
	})
	return defaultRegistry
}

// WithCatalog returns a registry holding the built-in templates followed by extra.
func WithCatalog(extra []SchemaTemplate) (*Registry, error) {
	all := append(BuiltinTemplates(), extra...)
	return NewRegistry(all...)
}

// List returns all templates in registration order.
func (r *Registry) List() []SchemaTemplate {
	out := make([]SchemaTemplate, len(r.templates))
	copy(out, r.templates)
	return out
}

// Find returns the template with the given ID.
// Not-found is reported through the boolean, never as an error.
func (r *Registry) Find(id string) (SchemaTemplate, bool) {
	i, ok := r.byID[id]
	if !ok {
		return SchemaTemplate{}, false
	}
	return r.templates[i], true
}

// Len returns the number of registered templates.
func (r *Registry) Len() int {
	return len(r.templates)
}
