package validation

import (
	"fmt"
	"sort"

	"github.com/JonMunkholm/mdo/internal/schema"
)

// CheckReferences reports values of referencing fields that have no match in
// any file of the referenced template. A reference is only checked when the
// run contains at least one file of the referenced template.
func CheckReferences(reports []FileReport, templates TemplateFinder) []Issue {
	byTemplate := make(map[string][]FileReport)
	for _, rep := range reports {
		byTemplate[rep.TemplateID] = append(byTemplate[rep.TemplateID], rep)
	}

	var issues []Issue
	for _, rep := range reports {
		tmpl, ok := templates.Find(rep.TemplateID)
		if !ok {
			continue
		}
		for _, f := range tmpl.Fields {
			targets := byTemplate[f.References]
			if f.References == "" || len(targets) == 0 {
				continue
			}
			values, mapped := rep.Values[f.Name]
			if !mapped {
				continue
			}
			issues = append(issues, missingReferences(rep.FileName, f, values, targets, templates)...)
		}
	}
	return issues
}

func missingReferences(fileName string, f schema.CanonicalField, values map[string]int, targets []FileReport, templates TemplateFinder) []Issue {
	known := make(map[string]bool)
	for _, t := range targets {
		for v := range t.Values[f.Name] {
			known[v] = true
		}
	}

	type miss struct {
		value string
		row   int
	}
	var missing []miss
	for v, row := range values {
		if !known[v] {
			missing = append(missing, miss{v, row})
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].row < missing[j].row })

	target := f.References
	if tmpl, ok := templates.Find(f.References); ok {
		target = tmpl.Name
	}

	issues := make([]Issue, 0, len(missing))
	for _, m := range missing {
		issues = append(issues, Issue{
			Severity:    Blocker,
			FileName:    fileName,
			RowIndex:    Row(m.row),
			ColumnName:  f.Name,
			RuleID:      RuleReference,
			Description: fmt.Sprintf("%s '%s' does not have a corresponding entry in the %s metadata.", f.Name, m.value, target),
		})
	}
	return issues
}
