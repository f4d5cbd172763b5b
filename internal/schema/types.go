// Package schema defines canonical schema templates and the registry that
// serves them. A template names the columns a platform expects; users map
// their own file columns onto those canonical fields before a run.
package schema

import (
	"fmt"
	"regexp"
)

// FieldType is the declared value type of a canonical field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldInteger FieldType = "integer"
	FieldFloat   FieldType = "float"
	FieldDate    FieldType = "date"
	FieldBoolean FieldType = "boolean"
)

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldInteger, FieldFloat, FieldDate, FieldBoolean:
		return true
	}
	return false
}

// CanonicalField is a named, typed column required by a target schema.
//
// Min, Max, Pattern, Enum, Unique and References are row-level constraints.
// They are only checked by the run backend, which reads full file content.
// References names a template; every value of the field must also appear in
// the same field of a file using that template, when such a file is present.
type CanonicalField struct {
	Name        string    `json:"name" yaml:"name"`
	Type        FieldType `json:"type" yaml:"type"`
	Required    bool      `json:"required" yaml:"required"`
	Description string    `json:"description" yaml:"description"`
	Example     string    `json:"example,omitempty" yaml:"example,omitempty"`

	Min        *int64   `json:"min,omitempty" yaml:"min,omitempty"`
	Max        *int64   `json:"max,omitempty" yaml:"max,omitempty"`
	Pattern    string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Enum       []string `json:"enum,omitempty" yaml:"enum,omitempty"`
	Unique     bool     `json:"unique,omitempty" yaml:"unique,omitempty"`
	References string   `json:"references,omitempty" yaml:"references,omitempty"`
}

// SchemaTemplate is an immutable target schema looked up by ID.
type SchemaTemplate struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name" yaml:"name"`
	Version     string           `json:"version" yaml:"version"`
	Platform    string           `json:"platform" yaml:"platform"`
	Description string           `json:"description" yaml:"description"`
	Fields      []CanonicalField `json:"fields" yaml:"fields"`
}

// Field returns the canonical field with the given name.
func (t SchemaTemplate) Field(name string) (CanonicalField, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return CanonicalField{}, false
}

// RequiredFields returns the required fields in template order.
func (t SchemaTemplate) RequiredFields() []CanonicalField {
	var out []CanonicalField
	for _, f := range t.Fields {
		if f.Required {
			out = append(out, f)
		}
	}
	return out
}

// FieldNames returns all field names in template order.
func (t SchemaTemplate) FieldNames() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}

// validate checks the template is well formed.
func (t SchemaTemplate) validate() error {
	if t.ID == "" {
		return fmt.Errorf("template %q: empty id", t.Name)
	}
	seen := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if f.Name == "" {
			return fmt.Errorf("template %s: field with empty name", t.ID)
		}
		if seen[f.Name] {
			return fmt.Errorf("template %s: duplicate field %s", t.ID, f.Name)
		}
		seen[f.Name] = true
		if !f.Type.Valid() {
			return fmt.Errorf("template %s: field %s: unknown type %q", t.ID, f.Name, f.Type)
		}
		if f.Pattern != "" {
			if _, err := regexp.Compile(f.Pattern); err != nil {
				return fmt.Errorf("template %s: field %s: invalid pattern: %w", t.ID, f.Name, err)
			}
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return fmt.Errorf("template %s: field %s: min %d exceeds max %d", t.ID, f.Name, *f.Min, *f.Max)
		}
	}
	return nil
}

func bound(v int64) *int64 { return &v }
