package mappings

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps configurations in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	configs []Config
	now     func() time.Time
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{now: time.Now}
}

func (r *MemoryRepository) Save(_ context.Context, name string, entries []Entry) (Config, error) {
	name, err := validName(name)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		ID:        uuid.NewString(),
		Name:      name,
		Mappings:  cloneEntries(entries),
		CreatedAt: r.now().UTC(),
	}

	r.mu.Lock()
	r.configs = append(r.configs, cfg)
	r.mu.Unlock()

	cfg.Mappings = cloneEntries(cfg.Mappings)
	return cfg, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Config, len(r.configs))
	for i, c := range r.configs {
		c.Mappings = cloneEntries(c.Mappings)
		out[i] = c
	}
	return out, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := slices.IndexFunc(r.configs, func(c Config) bool { return c.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	r.configs = slices.Delete(r.configs, i, i+1)
	return nil
}

func cloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		e.Mapping = e.Mapping.Clone()
		out[i] = e
	}
	return out
}
