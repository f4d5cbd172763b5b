package backend

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/mdo/internal/runapi"
)

// MemoryRepository keeps runs in process memory. The server uses it when no
// database is configured.
type MemoryRepository struct {
	mu   sync.RWMutex
	runs map[string]Record
	now  func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{runs: make(map[string]Record), now: time.Now}
}

func (m *MemoryRepository) Create(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now()
	}
	m.runs[rec.ID] = rec.clone()
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.runs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.clone(), nil
}

func (m *MemoryRepository) List(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	out := make([]Record, 0, len(m.runs))
	for _, rec := range m.runs {
		out = append(out, rec.clone())
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b Record) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) SetStatus(_ context.Context, id string, status runapi.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	m.runs[id] = rec
	return nil
}

func (m *MemoryRepository) Finish(_ context.Context, id string, res Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = res.Status
	rec.Issues = append(rec.Issues[:0:0], res.Issues...)
	rec.Error = res.Error
	rec.CompletedAt = m.now()
	m.runs[id] = rec
	return nil
}

func (m *MemoryRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.runs {
		if rec.Status.Terminal() && rec.CreatedAt.Before(cutoff) {
			delete(m.runs, id)
			n++
		}
	}
	return n, nil
}
