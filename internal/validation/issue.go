// Package validation evaluates file mappings against schema templates and
// produces ordered, typed issues. Only Blocker issues gate export readiness.
package validation

import (
	"fmt"
	"strings"
)

// Severity classifies an issue.
type Severity string

const (
	Blocker Severity = "Blocker"
	Warning Severity = "Warning"
	Info    Severity = "Info"
)

// ParseSeverity accepts any casing of a known severity.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "blocker":
		return Blocker, nil
	case "warning":
		return Warning, nil
	case "info":
		return Info, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// SystemFileName is the file name carried by issues not tied to a file.
const SystemFileName = "System"

// Rule identifiers.
const (
	RuleClean            = "VAL-000"
	RuleTemplateMissing  = "VAL-001"
	RuleRequiredUnmapped = "VAL-002"
	RuleColumnNotFound   = "VAL-003"
	RuleColumnReused     = "VAL-004"
	RuleUnknownField     = "VAL-005"
	RuleDuplicateFile    = "VAL-006"

	RuleUnreadable     = "VAL-100"
	RuleEnum           = "VAL-101"
	RuleRequiredEmpty  = "VAL-102"
	RuleType           = "VAL-103"
	RuleBelowMin       = "VAL-104"
	RuleAboveMax       = "VAL-105"
	RulePattern        = "VAL-106"
	RuleDuplicateValue = "VAL-107"
	RuleMissingColumn  = "VAL-108"
	RuleSuppressed     = "VAL-109"

	RuleReference = "VAL-201"
)

// Issue is a single validation finding. Issues are never mutated after an
// evaluation returns them.
type Issue struct {
	ID          string   `json:"id"`
	Severity    Severity `json:"severity"`
	FileName    string   `json:"fileName"`
	RowIndex    *int     `json:"rowIndex,omitempty"`
	ColumnName  string   `json:"columnName,omitempty"`
	RuleID      string   `json:"ruleId"`
	Description string   `json:"description"`
}

// Row returns a pointer suitable for Issue.RowIndex.
func Row(n int) *int { return &n }

// Summary counts issues per severity.
type Summary struct {
	Blockers int `json:"blockers"`
	Warnings int `json:"warnings"`
	Infos    int `json:"infos"`
	Total    int `json:"total"`
}

// Ready reports whether the summarized issues allow export.
func (s Summary) Ready() bool { return s.Blockers == 0 }

// Summarize counts issues by severity.
func Summarize(issues []Issue) Summary {
	var s Summary
	for _, is := range issues {
		switch is.Severity {
		case Blocker:
			s.Blockers++
		case Warning:
			s.Warnings++
		case Info:
			s.Infos++
		}
	}
	s.Total = len(issues)
	return s
}

// HasBlockers reports whether any issue is a Blocker.
func HasBlockers(issues []Issue) bool {
	for _, is := range issues {
		if is.Severity == Blocker {
			return true
		}
	}
	return false
}

// Blocking returns the Blocker issues in order.
func Blocking(issues []Issue) []Issue {
	var out []Issue
	for _, is := range issues {
		if is.Severity == Blocker {
			out = append(out, is)
		}
	}
	return out
}

// Number assigns sequential IDs ("issue-1", "issue-2", ...) in list order.
func Number(issues []Issue) []Issue {
	for i := range issues {
		issues[i].ID = fmt.Sprintf("issue-%d", i+1)
	}
	return issues
}

// Clean returns the synthetic issue that marks a run without findings.
func Clean() Issue {
	return Issue{
		Severity:    Info,
		FileName:    SystemFileName,
		RuleID:      RuleClean,
		Description: "Validation successful. No blockers or warnings found.",
	}
}
