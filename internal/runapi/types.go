// Package runapi is the wire contract of the run backend and an HTTP client
// for it. Both the server and the remote validator speak these types.
package runapi

import (
	"fmt"
	"strconv"
	"time"

	"github.com/JonMunkholm/mdo/internal/mapping"
	"github.com/JonMunkholm/mdo/internal/validation"
)

// Status is the state of a run as reported by the backend.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Terminal reports whether no further status change will happen.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// FileSpec is the per-file mapping entry sent with a run.
type FileSpec struct {
	FileName   string            `json:"fileName"`
	TemplateID string            `json:"templateId,omitempty"`
	Mapping    map[string]string `json:"mapping"`
}

// SpecsFrom builds the mapping payload for a snapshot of the store.
func SpecsFrom(fms []mapping.FileMapping) []FileSpec {
	specs := make([]FileSpec, 0, len(fms))
	for _, fm := range fms {
		specs = append(specs, FileSpec{
			FileName:   fm.FileName(),
			TemplateID: fm.TemplateID,
			Mapping:    fm.Mapping.Clone(),
		})
	}
	return specs
}

// Issue is the wire form of a validation issue. The severity travels under
// the "type" key; "severity" is read as a fallback from older backends.
type Issue struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Severity    string `json:"severity,omitempty"`
	FileName    string `json:"fileName"`
	RowIndex    *int   `json:"rowIndex"`
	ColumnName  string `json:"columnName,omitempty"`
	RuleID      string `json:"ruleId,omitempty"`
	Description string `json:"description"`
}

// FromIssues converts issues to their wire form.
func FromIssues(issues []validation.Issue) []Issue {
	out := make([]Issue, len(issues))
	for i, is := range issues {
		out[i] = Issue{
			ID:          is.ID,
			Type:        string(is.Severity),
			FileName:    is.FileName,
			RowIndex:    is.RowIndex,
			ColumnName:  is.ColumnName,
			RuleID:      is.RuleID,
			Description: is.Description,
		}
	}
	return out
}

// ToIssues converts wire issues back, in order. Issues without an id are
// numbered by position. An unknown severity is an error.
func ToIssues(wire []Issue) ([]validation.Issue, error) {
	out := make([]validation.Issue, len(wire))
	for i, w := range wire {
		key := w.Type
		if key == "" {
			key = w.Severity
		}
		sev, err := validation.ParseSeverity(key)
		if err != nil {
			return nil, fmt.Errorf("issue %d: %w", i, err)
		}
		id := w.ID
		if id == "" {
			id = "issue-" + strconv.Itoa(i+1)
		}
		var row *int
		if w.RowIndex != nil {
			row = validation.Row(*w.RowIndex)
		}
		out[i] = validation.Issue{
			ID:          id,
			Severity:    sev,
			FileName:    w.FileName,
			RowIndex:    row,
			ColumnName:  w.ColumnName,
			RuleID:      w.RuleID,
			Description: w.Description,
		}
	}
	return out, nil
}

// Run is the full state of one run.
type Run struct {
	ID               string     `json:"id"`
	Status           Status     `json:"status"`
	Files            []string   `json:"files,omitempty"`
	Mapping          []FileSpec `json:"mapping,omitempty"`
	ValidationIssues []Issue    `json:"validation_issues,omitempty"`
	Error            string     `json:"error,omitempty"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// RunSummary is one entry of the run list.
type RunSummary struct {
	ID                string             `json:"id"`
	Status            Status             `json:"status"`
	Files             []string           `json:"files"`
	CreatedAt         *time.Time         `json:"created_at,omitempty"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
	ValidationSummary validation.Summary `json:"validation_summary"`
}

// StartResponse is returned when a run is accepted.
type StartResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id"`
}

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code,omitempty"`
}
