package backend

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/mdo/internal/runapi"
	"github.com/JonMunkholm/mdo/internal/validation"
)

// ErrNotFound is returned when no run has the requested id.
var ErrNotFound = errors.New("run not found")

// Record is the stored state of one run.
type Record struct {
	ID          string
	Status      runapi.Status
	Files       []string
	Mapping     []runapi.FileSpec
	Issues      []validation.Issue
	Error       string
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Result is the outcome written when processing ends.
type Result struct {
	Status runapi.Status
	Issues []validation.Issue
	Error  string
}

// Repository stores runs. List returns the newest runs first.
type Repository interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, limit int) ([]Record, error)
	SetStatus(ctx context.Context, id string, status runapi.Status) error
	Finish(ctx context.Context, id string, res Result) error
	// DeleteOlderThan removes finished runs created before cutoff and
	// returns how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Wire converts the record to its API form.
func (r Record) Wire() runapi.Run {
	run := runapi.Run{
		ID:      r.ID,
		Status:  r.Status,
		Files:   r.Files,
		Mapping: r.Mapping,
		Error:   r.Error,
	}
	if len(r.Issues) > 0 {
		run.ValidationIssues = runapi.FromIssues(r.Issues)
	}
	run.CreatedAt = timePtr(r.CreatedAt)
	run.CompletedAt = timePtr(r.CompletedAt)
	return run
}

// Summary converts the record to a run list entry.
func (r Record) Summary() runapi.RunSummary {
	files := r.Files
	if files == nil {
		files = []string{}
	}
	return runapi.RunSummary{
		ID:                r.ID,
		Status:            r.Status,
		Files:             files,
		CreatedAt:         timePtr(r.CreatedAt),
		CompletedAt:       timePtr(r.CompletedAt),
		ValidationSummary: validation.Summarize(r.Issues),
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (r Record) clone() Record {
	out := r
	out.Files = append([]string(nil), r.Files...)
	out.Mapping = append([]runapi.FileSpec(nil), r.Mapping...)
	out.Issues = append([]validation.Issue(nil), r.Issues...)
	return out
}
