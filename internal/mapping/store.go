package mapping

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/JonMunkholm/mdo/internal/csvio"
)

type entry struct {
	fm         FileMapping
	discovered bool
}

// Store is the ordered collection of FileMappings for one run, keyed by file
// name. Operations on unknown names are no-ops. Reads return copies, so
// callers never alias store state. Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries []*entry

	hooksMu sync.Mutex
	onAdd   []func()
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// OnAdd registers fn to run whenever AddFiles is about to append at least one
// new file. Hooks run without the store lock held.
func (s *Store) OnAdd(fn func()) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onAdd = append(s.onAdd, fn)
}

// AddFiles appends an entry for every file whose name is not yet present.
// Duplicates, within the call or against existing entries, are dropped.
// Returns the number of entries added.
func (s *Store) AddFiles(files ...File) int {
	if !s.hasNew(files) {
		return 0
	}

	s.hooksMu.Lock()
	hooks := slices.Clone(s.onAdd)
	s.hooksMu.Unlock()
	for _, fn := range hooks {
		fn()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, f := range files {
		if s.indexLocked(f.Name) >= 0 {
			slog.Debug("mapping: duplicate file dropped", "file", f.Name)
			continue
		}
		s.entries = append(s.entries, &entry{fm: FileMapping{File: f, Mapping: Mapping{}}})
		added++
	}
	return added
}

func (s *Store) hasNew(files []File) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range files {
		if s.indexLocked(f.Name) < 0 {
			return true
		}
	}
	return false
}

// RemoveFile removes the named entry.
func (s *Store) RemoveFile(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexLocked(name); i >= 0 {
		s.entries = slices.Delete(s.entries, i, i+1)
	}
}

// SetFileColumns records the discovered header columns for a file.
func (s *Store) SetFileColumns(name string, columns []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.entryLocked(name); e != nil {
		e.fm.Columns = append([]string(nil), columns...)
		e.discovered = true
	}
}

// UpdateFileMapping applies the supplied fields to an entry. A non-nil
// mapping replaces the existing one wholesale, so a template change that
// should start from scratch passes both fields: {TemplateID, Mapping{}}.
// Changing only the template leaves the mapping as it is.
func (s *Store) UpdateFileMapping(name string, u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(name)
	if e == nil {
		return
	}
	if u.TemplateID != nil {
		e.fm.TemplateID = *u.TemplateID
	}
	if u.Mapping != nil {
		m := make(Mapping, len(u.Mapping))
		for field, column := range u.Mapping {
			if column != "" {
				m[field] = column
			}
		}
		e.fm.Mapping = m
	}
}

// SetTemplate assigns a template to a file. When the template changes the
// existing mapping is cleared in the same step, since a mapping is only
// meaningful relative to one template.
func (s *Store) SetTemplate(name, templateID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(name)
	if e == nil || e.fm.TemplateID == templateID {
		return
	}
	e.fm.TemplateID = templateID
	e.fm.Mapping = Mapping{}
}

// MapField maps a canonical field to a source column, leaving the other
// fields alone. An empty column unmaps.
func (s *Store) MapField(name, field, column string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(name)
	if e == nil {
		return
	}
	if column == "" {
		delete(e.fm.Mapping, field)
		return
	}
	e.fm.Mapping[field] = column
}

// UnmapField removes field from the mapping of the named file.
func (s *Store) UnmapField(name, field string) {
	s.MapField(name, field, "")
}

// Files returns the file handles in insertion order.
func (s *Store) Files() []File {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]File, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.fm.File
	}
	return out
}

// FileMappings returns a deep copy of all entries in insertion order.
func (s *Store) FileMappings() []FileMapping {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]FileMapping, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.fm.clone()
	}
	return out
}

// Get returns a copy of the named entry.
func (s *Store) Get(name string) (FileMapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e := s.entryLocked(name); e != nil {
		return e.fm.clone(), true
	}
	return FileMapping{}, false
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Reset removes every entry. Hooks stay registered.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// DiscoverColumns samples the header row of the named file once and records
// the columns. Later calls return the recorded columns without reading the
// file again. A file that cannot be parsed is recorded with zero columns and
// the parse error is returned for reporting only.
func (s *Store) DiscoverColumns(name string) ([]string, error) {
	s.mu.RLock()
	e := s.entryLocked(name)
	if e == nil {
		s.mu.RUnlock()
		return nil, nil
	}
	if e.discovered {
		cols := append([]string(nil), e.fm.Columns...)
		s.mu.RUnlock()
		return cols, nil
	}
	file := e.fm.File
	s.mu.RUnlock()

	cols, err := SampleColumns(file)
	if err != nil {
		slog.Warn("mapping: header sampling failed", "file", name, "error", err)
		cols = []string{}
	}
	s.SetFileColumns(name, cols)
	return cols, err
}

// SampleColumns reads only the header row of f.
func SampleColumns(f File) ([]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return csvio.ReadHeader(rc)
}

func (s *Store) indexLocked(name string) int {
	for i, e := range s.entries {
		if e.fm.File.Name == name {
			return i
		}
	}
	return -1
}

func (s *Store) entryLocked(name string) *entry {
	if i := s.indexLocked(name); i >= 0 {
		return s.entries[i]
	}
	return nil
}
