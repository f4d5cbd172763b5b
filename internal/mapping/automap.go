package mapping

import (
	"strings"

	"github.com/JonMunkholm/mdo/internal/schema"
)

// TemplateMatchThreshold is the minimum share of a template's fields that a
// header must cover for SuggestTemplate to pick it.
const TemplateMatchThreshold = 0.7

// matchKey folds case and separators so "Run ID", "run_id" and "RunId" compare equal.
func matchKey(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '.':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(s)))
}

// AutoMap proposes a mapping from template fields to columns by name.
// An exact column name wins over a folded match. Each column is used at most once.
func AutoMap(tmpl schema.SchemaTemplate, columns []string) Mapping {
	exact := make(map[string]string, len(columns))
	folded := make(map[string]string, len(columns))
	for _, c := range columns {
		if _, ok := exact[c]; !ok {
			exact[c] = c
		}
		k := matchKey(c)
		if _, ok := folded[k]; !ok && k != "" {
			folded[k] = c
		}
	}

	used := make(map[string]bool)
	m := Mapping{}
	for _, f := range tmpl.Fields {
		if c, ok := exact[f.Name]; ok && !used[c] {
			m[f.Name] = c
			used[c] = true
		}
	}
	for _, f := range tmpl.Fields {
		if _, done := m[f.Name]; done {
			continue
		}
		if c, ok := folded[matchKey(f.Name)]; ok && !used[c] {
			m[f.Name] = c
			used[c] = true
		}
	}
	return m
}

// MatchScore returns the share of template fields that have a matching column.
func MatchScore(tmpl schema.SchemaTemplate, columns []string) float64 {
	if len(tmpl.Fields) == 0 {
		return 0
	}
	return float64(len(AutoMap(tmpl, columns))) / float64(len(tmpl.Fields))
}

// SuggestTemplate returns the best scoring template whose score reaches
// TemplateMatchThreshold. Ties go to the earlier template.
func SuggestTemplate(templates []schema.SchemaTemplate, columns []string) (schema.SchemaTemplate, bool) {
	var (
		best      schema.SchemaTemplate
		bestScore float64
	)
	for _, t := range templates {
		if score := MatchScore(t, columns); score > bestScore {
			best, bestScore = t, score
		}
	}
	if bestScore < TemplateMatchThreshold {
		return schema.SchemaTemplate{}, false
	}
	return best, true
}
