package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk layout of a template catalog.
//
//	templates:
//	  - id: custom-v1
//	    name: Custom
//	    fields:
//	      - {name: Sample_ID, type: string, required: true}
type catalogFile struct {
	Templates []SchemaTemplate `yaml:"templates"`
}

// LoadCatalog decodes templates from YAML. Unknown keys are rejected so that
// typos in constraint names do not silently disable a check.
func LoadCatalog(r io.Reader) ([]SchemaTemplate, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cat catalogFile
	if err := dec.Decode(&cat); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	for i := range cat.Templates {
		for j := range cat.Templates[i].Fields {
			if cat.Templates[i].Fields[j].Type == "" {
				cat.Templates[i].Fields[j].Type = FieldString
			}
		}
		if err := cat.Templates[i].validate(); err != nil {
			return nil, err
		}
	}
	return cat.Templates, nil
}

// LoadCatalogFile reads a YAML catalog from path.
func LoadCatalogFile(path string) ([]SchemaTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return LoadCatalog(bytes.NewReader(data))
}

// Load returns the built-in registry, extended with the catalog at path when
// path is non-empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	extra, err := LoadCatalogFile(path)
	if err != nil {
		return nil, err
	}
	return WithCatalog(extra)
}
