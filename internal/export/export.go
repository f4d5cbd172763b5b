// Package export publishes the result of a ready run to object storage: the
// issue report as CSV and a JSON manifest describing the files and mappings
// that passed validation.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"time"

	"github.com/JonMunkholm/mdo/internal/report"
	"github.com/JonMunkholm/mdo/internal/runapi"
	"github.com/JonMunkholm/mdo/internal/validation"
)

// ErrNotReady is returned when a run still has Blocker issues.
var ErrNotReady = errors.New("run not ready for export: blocking issues remain")

// ObjectStore stores objects under keys.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// Bundle is what gets exported for one run.
type Bundle struct {
	RunID  string
	Files  []runapi.FileSpec
	Issues []validation.Issue
}

// Manifest is the JSON document written next to the report.
type Manifest struct {
	RunID      string             `json:"run_id"`
	ExportedAt time.Time          `json:"exported_at"`
	Files      []runapi.FileSpec  `json:"files"`
	Templates  []string           `json:"templates"`
	Summary    validation.Summary `json:"summary"`
	Report     string             `json:"report"`
}

// Result names the objects written by Export.
type Result struct {
	ReportKey   string `json:"report_key"`
	ManifestKey string `json:"manifest_key"`
}

// Exporter writes bundles under a key prefix.
type Exporter struct {
	store  ObjectStore
	prefix string
	now    func() time.Time
}

func NewExporter(store ObjectStore, prefix string) *Exporter {
	return &Exporter{store: store, prefix: prefix, now: time.Now}
}

// Export writes <prefix>/<runID>/report.csv and manifest.json. It refuses
// with ErrNotReady while any Blocker exists and writes nothing.
func (e *Exporter) Export(ctx context.Context, b Bundle) (Result, error) {
	if b.RunID == "" {
		return Result{}, errors.New("export: run id is required")
	}
	if validation.HasBlockers(b.Issues) {
		return Result{}, ErrNotReady
	}

	dir := path.Join(e.prefix, b.RunID)
	res := Result{
		ReportKey:   path.Join(dir, "report.csv"),
		ManifestKey: path.Join(dir, "manifest.json"),
	}

	var csvBuf bytes.Buffer
	if err := report.WriteCSV(&csvBuf, b.Issues); err != nil {
		return Result{}, fmt.Errorf("render report: %w", err)
	}
	if err := e.put(ctx, res.ReportKey, csvBuf.Bytes(), report.ContentType); err != nil {
		return Result{}, err
	}

	manifest := Manifest{
		RunID:      b.RunID,
		ExportedAt: e.now().UTC(),
		Files:      b.Files,
		Templates:  templateIDs(b.Files),
		Summary:    validation.Summarize(b.Issues),
		Report:     path.Base(res.ReportKey),
	}
	if manifest.Files == nil {
		manifest.Files = []runapi.FileSpec{}
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("encode manifest: %w", err)
	}
	if err := e.put(ctx, res.ManifestKey, data, "application/json"); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (e *Exporter) put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := e.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func templateIDs(files []runapi.FileSpec) []string {
	seen := make(map[string]bool)
	ids := []string{}
	for _, f := range files {
		if f.TemplateID != "" && !seen[f.TemplateID] {
			seen[f.TemplateID] = true
			ids = append(ids, f.TemplateID)
		}
	}
	sort.Strings(ids)
	return ids
}
