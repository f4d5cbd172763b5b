package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/JonMunkholm/mdo/internal/mapping"
)

func templateMissing(fm mapping.FileMapping) Issue {
	desc := "No schema template selected for this file."
	if fm.TemplateID != "" {
		desc = fmt.Sprintf("Unknown schema template '%s'.", fm.TemplateID)
	}
	return Issue{
		Severity:    Blocker,
		FileName:    fm.FileName(),
		RuleID:      RuleTemplateMissing,
		Description: desc,
	}
}

// requiredCoverage emits one Blocker per required field with no mapped column.
func requiredCoverage(r Resolved) []Issue {
	var issues []Issue
	for _, f := range r.Template.Fields {
		if !f.Required || strings.TrimSpace(r.Mapping[f.Name]) != "" {
			continue
		}
		issues = append(issues, Issue{
			Severity:    Blocker,
			FileName:    r.FileName(),
			ColumnName:  f.Name,
			RuleID:      RuleRequiredUnmapped,
			Description: fmt.Sprintf("Required field '%s' is not mapped.", f.Name),
		})
	}
	return issues
}

// mappedColumnsExist flags mappings that point at a column the file header
// does not have. Files without discovered columns are skipped.
func mappedColumnsExist(r Resolved) []Issue {
	if len(r.Columns) == 0 {
		return nil
	}
	have := make(map[string]bool, len(r.Columns))
	for _, c := range r.Columns {
		have[c] = true
	}

	var issues []Issue
	for _, f := range r.Template.Fields {
		col := r.Mapping[f.Name]
		if col == "" || have[col] {
			continue
		}
		issues = append(issues, Issue{
			Severity:    Blocker,
			FileName:    r.FileName(),
			ColumnName:  f.Name,
			RuleID:      RuleColumnNotFound,
			Description: fmt.Sprintf("Mapped column '%s' for field '%s' is not in the file header.", col, f.Name),
		})
	}
	return issues
}

// columnReuse warns when one source column feeds several fields.
func columnReuse(r Resolved) []Issue {
	byColumn := make(map[string][]string)
	var order []string
	for _, f := range r.Template.Fields {
		col := r.Mapping[f.Name]
		if col == "" {
			continue
		}
		if _, seen := byColumn[col]; !seen {
			order = append(order, col)
		}
		byColumn[col] = append(byColumn[col], f.Name)
	}

	var issues []Issue
	for _, col := range order {
		fields := byColumn[col]
		if len(fields) < 2 {
			continue
		}
		issues = append(issues, Issue{
			Severity:    Warning,
			FileName:    r.FileName(),
			ColumnName:  fields[1],
			RuleID:      RuleColumnReused,
			Description: fmt.Sprintf("Column '%s' is mapped to multiple fields: %s.", col, strings.Join(fields, ", ")),
		})
	}
	return issues
}

// unknownFields warns about mapping keys the template does not define, which
// happens when a mapping outlives a template change.
func unknownFields(r Resolved) []Issue {
	var stale []string
	for field, col := range r.Mapping {
		if col == "" {
			continue
		}
		if _, ok := r.Template.Field(field); !ok {
			stale = append(stale, field)
		}
	}
	sort.Strings(stale)

	issues := make([]Issue, 0, len(stale))
	for _, field := range stale {
		issues = append(issues, Issue{
			Severity:    Warning,
			FileName:    r.FileName(),
			ColumnName:  field,
			RuleID:      RuleUnknownField,
			Description: fmt.Sprintf("Field '%s' is not part of template '%s' and will be ignored.", field, r.Template.ID),
		})
	}
	return issues
}

// duplicateFileNames warns when two resolved files differ only by case,
// which most downstream file systems treat as the same file.
func duplicateFileNames(files []Resolved) []Issue {
	first := make(map[string]string, len(files))
	var issues []Issue
	for _, r := range files {
		key := strings.ToLower(r.FileName())
		prev, seen := first[key]
		if !seen {
			first[key] = r.FileName()
			continue
		}
		issues = append(issues, Issue{
			Severity:    Warning,
			FileName:    r.FileName(),
			RuleID:      RuleDuplicateFile,
			Description: fmt.Sprintf("File name differs from '%s' only by letter case.", prev),
		})
	}
	return issues
}
