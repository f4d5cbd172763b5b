// Package mapping owns the per-run collection of uploaded files and the
// association from each file's columns onto a schema template's canonical
// fields.
package mapping

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Mapping associates a canonical field name with a source column name.
type Mapping map[string]string

// Clone returns an independent copy of m. A nil mapping clones to an empty one.
func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// File is an opaque handle to uploaded content.
// The content is only reachable through Open.
type File struct {
	Name string
	Size int64

	open func() (io.ReadCloser, error)
}

// NewFile wraps in-memory content.
func NewFile(name string, data []byte) File {
	return File{
		Name: name,
		Size: int64(len(data)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// OpenFile returns a handle to a file on disk, named by its base name.
// The file is opened lazily on each call to Open.
func OpenFile(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}
	return File{
		Name: filepath.Base(path),
		Size: info.Size(),
		open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// Open returns a reader over the file content. The caller must close it.
func (f File) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return nil, fmt.Errorf("file %s has no content", f.Name)
	}
	return f.open()
}

// FileMapping is one file's mapping state within a run.
type FileMapping struct {
	File       File
	TemplateID string
	Columns    []string
	Mapping    Mapping
}

// FileName returns the name of the mapped file.
func (fm FileMapping) FileName() string {
	return fm.File.Name
}

func (fm FileMapping) clone() FileMapping {
	out := fm
	if fm.Columns != nil {
		out.Columns = append([]string(nil), fm.Columns...)
	}
	out.Mapping = fm.Mapping.Clone()
	return out
}

// Update is a partial change to a FileMapping. Nil fields are left
// untouched; a non-nil Mapping replaces the current one.
type Update struct {
	TemplateID *string
	Mapping    Mapping
}
