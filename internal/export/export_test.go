package export

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/mdo/internal/config"
	"github.com/JonMunkholm/mdo/internal/runapi"
	"github.com/JonMunkholm/mdo/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
	err     error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string]string{}, types: map[string]string{}}
}

func (m *memStore) Put(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.err != nil {
		return m.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = string(data)
	m.types[key] = contentType
	return nil
}

func readyBundle() Bundle {
	return Bundle{
		RunID: "run-1",
		Files: []runapi.FileSpec{
			{FileName: "b.csv", TemplateID: "tmpl-b", Mapping: map[string]string{"X": "x"}},
			{FileName: "a.csv", TemplateID: "tmpl-a", Mapping: map[string]string{"Y": "y"}},
			{FileName: "c.csv", TemplateID: "tmpl-a", Mapping: map[string]string{}},
		},
		Issues: []validation.Issue{
			{ID: "issue-1", Severity: validation.Warning, FileName: "a.csv", RuleID: validation.RulePattern, RowIndex: validation.Row(2), Description: "odd"},
		},
	}
}

func TestExporter_Export(t *testing.T) {
	store := newMemStore()
	e := NewExporter(store, "runs")
	e.now = func() time.Time { return time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC) }

	res, err := e.Export(context.Background(), readyBundle())
	require.NoError(t, err)
	assert.Equal(t, "runs/run-1/report.csv", res.ReportKey)
	assert.Equal(t, "runs/run-1/manifest.json", res.ManifestKey)

	report := store.objects[res.ReportKey]
	assert.True(t, strings.HasPrefix(report, "id,severity,fileName,rowIndex,columnName,ruleId,description\n"))
	assert.Contains(t, report, "issue-1,Warning,a.csv,2,,VAL-106,odd")
	assert.Equal(t, "text/csv; charset=utf-8", store.types[res.ReportKey])

	var m Manifest
	require.NoError(t, json.Unmarshal([]byte(store.objects[res.ManifestKey]), &m))
	assert.Equal(t, "run-1", m.RunID)
	assert.Equal(t, []string{"tmpl-a", "tmpl-b"}, m.Templates)
	assert.Len(t, m.Files, 3)
	assert.Equal(t, validation.Summary{Warnings: 1, Total: 1}, m.Summary)
	assert.Equal(t, "report.csv", m.Report)
	assert.True(t, m.ExportedAt.Equal(time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)))
}

func TestExporter_RefusesBlockers(t *testing.T) {
	store := newMemStore()
	e := NewExporter(store, "runs")

	b := readyBundle()
	b.Issues = append(b.Issues, validation.Issue{ID: "issue-2", Severity: validation.Blocker, FileName: "a.csv", RuleID: validation.RuleRequiredEmpty})

	_, err := e.Export(context.Background(), b)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Empty(t, store.objects)
}

func TestExporter_Errors(t *testing.T) {
	t.Run("missing run id", func(t *testing.T) {
		_, err := NewExporter(newMemStore(), "").Export(context.Background(), Bundle{})
		assert.Error(t, err)
	})

	t.Run("store failure", func(t *testing.T) {
		store := newMemStore()
		store.err = errors.New("connection refused")
		_, err := NewExporter(store, "runs").Export(context.Background(), readyBundle())
		assert.ErrorContains(t, err, "put runs/run-1/report.csv")
	})

	t.Run("no prefix", func(t *testing.T) {
		res, err := NewExporter(newMemStore(), "").Export(context.Background(), readyBundle())
		require.NoError(t, err)
		assert.Equal(t, "run-1/report.csv", res.ReportKey)
	})
}

func TestNewMinioStore_Config(t *testing.T) {
	_, err := NewMinioStore(context.Background(), config.ExportConfig{})
	assert.ErrorContains(t, err, "endpoint is not configured")

	_, err = NewMinioStore(context.Background(), config.ExportConfig{Endpoint: "localhost:9000"})
	assert.ErrorContains(t, err, "bucket is required")
}
