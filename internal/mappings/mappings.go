// Package mappings persists named mapping configurations so a user can
// reapply the template choice and column mapping of earlier runs.
package mappings

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/JonMunkholm/mdo/internal/mapping"
)

var (
	// ErrNotFound is returned when no configuration has the requested id.
	ErrNotFound = errors.New("mapping configuration not found")

	// ErrEmptyName is returned when saving a configuration without a name.
	ErrEmptyName = errors.New("mapping configuration name is required")
)

// Entry is the saved state of one file.
type Entry struct {
	FileName   string          `json:"fileName,omitempty"`
	TemplateID string          `json:"templateId,omitempty"`
	Mapping    mapping.Mapping `json:"mapping"`
}

// Config is a named, saved set of entries.
type Config struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Mappings  []Entry   `json:"mappings"`
	CreatedAt time.Time `json:"createdAt"`
}

// Repository stores configurations. List returns them oldest first.
type Repository interface {
	Save(ctx context.Context, name string, entries []Entry) (Config, error)
	List(ctx context.Context) ([]Config, error)
	Delete(ctx context.Context, id string) error
}

// Lookup finds a configuration by id, or by case-insensitive name. When
// several share a name the newest wins.
func Lookup(ctx context.Context, repo Repository, key string) (Config, error) {
	all, err := repo.List(ctx)
	if err != nil {
		return Config{}, err
	}
	var found *Config
	for i := range all {
		if all[i].ID == key {
			return all[i], nil
		}
		if strings.EqualFold(all[i].Name, key) {
			found = &all[i]
		}
	}
	if found == nil {
		return Config{}, ErrNotFound
	}
	return *found, nil
}

// EntriesFrom captures the template and mapping of every file.
func EntriesFrom(fms []mapping.FileMapping) []Entry {
	entries := make([]Entry, 0, len(fms))
	for _, fm := range fms {
		entries = append(entries, Entry{
			FileName:   fm.FileName(),
			TemplateID: fm.TemplateID,
			Mapping:    fm.Mapping.Clone(),
		})
	}
	return entries
}

// Apply copies saved entries onto the files in store. A file takes the entry
// with its own name; failing that, the first entry for the template already
// selected on the file. It returns the names of the files that changed.
func Apply(store *mapping.Store, cfg Config) []string {
	byName := make(map[string]Entry)
	byTemplate := make(map[string]Entry)
	for _, e := range cfg.Mappings {
		if e.FileName != "" {
			byName[e.FileName] = e
		}
		if _, ok := byTemplate[e.TemplateID]; !ok && e.TemplateID != "" {
			byTemplate[e.TemplateID] = e
		}
	}

	var applied []string
	for _, fm := range store.FileMappings() {
		e, ok := byName[fm.FileName()]
		if !ok {
			e, ok = byTemplate[fm.TemplateID]
		}
		if !ok {
			continue
		}
		if e.TemplateID != "" {
			store.SetTemplate(fm.FileName(), e.TemplateID)
		}
		store.UpdateFileMapping(fm.FileName(), mapping.Update{Mapping: e.Mapping.Clone()})
		applied = append(applied, fm.FileName())
	}
	return applied
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	return name, nil
}
