package validation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"

	"github.com/JonMunkholm/mdo/internal/csvio"
	"github.com/JonMunkholm/mdo/internal/mapping"
	"github.com/JonMunkholm/mdo/internal/schema"
)

// DefaultMaxIssuesPerField bounds row issues reported for one field of one file.
const DefaultMaxIssuesPerField = 100

// ctxCheckEvery is how many rows are read between cancellation checks.
const ctxCheckEvery = 1000

// FileReport is the outcome of row checks on one file.
type FileReport struct {
	FileName   string
	TemplateID string
	Issues     []Issue

	// Values holds, per canonical field, each distinct non-empty value and
	// the row it first appeared in.
	Values map[string]map[string]int
}

// RowChecker validates every data row of a file against the field
// constraints of its template. Row numbers are file line numbers, so the
// first data row below the header is row 2.
type RowChecker struct {
	// MaxIssuesPerField caps issues per field; zero means unlimited.
	MaxIssuesPerField int
}

// fieldCheck carries per-field state while scanning rows.
type fieldCheck struct {
	field    schema.CanonicalField
	column   string
	pattern  *regexp.Regexp
	issues   []Issue
	dropped  int
	firstRow map[string]int
}

// Check reads the file content from r and validates the mapped fields.
// Unmapped fields are skipped; structural rules report them. A file that
// cannot be read as CSV yields a single Blocker rather than an error. The
// only error returned is context cancellation.
func (c RowChecker) Check(ctx context.Context, fileName string, r io.Reader, tmpl schema.SchemaTemplate, m map[string]string) (FileReport, error) {
	report := FileReport{FileName: fileName, TemplateID: tmpl.ID, Values: map[string]map[string]int{}}

	cr := csvio.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = csvio.ErrNoHeader
		}
		report.Issues = []Issue{unreadable(fileName, err)}
		return report, nil
	}
	idx := csvio.MakeHeaderIndex(header)

	var checks []*fieldCheck
	for _, f := range tmpl.Fields {
		col := m[f.Name]
		if col == "" {
			continue
		}
		if !idx.Has(csvio.NormalizeHeader(col)) {
			report.Issues = append(report.Issues, Issue{
				Severity:    Blocker,
				FileName:    fileName,
				ColumnName:  f.Name,
				RuleID:      RuleMissingColumn,
				Description: fmt.Sprintf("Mapped column '%s' not found in CSV file", col),
			})
			continue
		}
		fc := &fieldCheck{field: f, column: csvio.NormalizeHeader(col), firstRow: map[string]int{}}
		if f.Pattern != "" {
			// Patterns were compiled when the registry was built.
			fc.pattern = regexp.MustCompile(f.Pattern)
		}
		checks = append(checks, fc)
	}

	for n := 1; ; n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return report, err
			}
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			report.Issues = append(report.Issues, unreadable(fileName, err))
			break
		}
		if csvio.IsEmptyRow(row) {
			continue
		}
		line, _ := cr.FieldPos(0)
		for _, fc := range checks {
			c.checkCell(fc, fileName, line, idx.Value(row, fc.column))
		}
	}

	for _, fc := range checks {
		report.Issues = append(report.Issues, fc.issues...)
		if fc.dropped > 0 {
			report.Issues = append(report.Issues, Issue{
				Severity:    Warning,
				FileName:    fileName,
				ColumnName:  fc.field.Name,
				RuleID:      RuleSuppressed,
				Description: fmt.Sprintf("%d further issues for field '%s' were not reported", fc.dropped, fc.field.Name),
			})
		}
		report.Values[fc.field.Name] = fc.firstRow
	}
	return report, nil
}

// CheckFile opens f and checks its content. A file that cannot be opened
// yields a single Blocker, like unreadable content.
func (c RowChecker) CheckFile(ctx context.Context, f mapping.File, tmpl schema.SchemaTemplate, m map[string]string) (FileReport, error) {
	rc, err := f.Open()
	if err != nil {
		return FileReport{
			FileName:   f.Name,
			TemplateID: tmpl.ID,
			Issues:     []Issue{unreadable(f.Name, err)},
			Values:     map[string]map[string]int{},
		}, nil
	}
	defer rc.Close()
	return c.Check(ctx, f.Name, rc, tmpl, m)
}

func (c RowChecker) checkCell(fc *fieldCheck, fileName string, line int, value string) {
	f := fc.field
	emit := func(sev Severity, rule, desc string) {
		if c.MaxIssuesPerField > 0 && len(fc.issues) >= c.MaxIssuesPerField {
			fc.dropped++
			return
		}
		fc.issues = append(fc.issues, Issue{
			Severity:    sev,
			FileName:    fileName,
			RowIndex:    Row(line),
			ColumnName:  f.Name,
			RuleID:      rule,
			Description: desc,
		})
	}

	if value == "" {
		if f.Required {
			emit(Blocker, RuleRequiredEmpty, fmt.Sprintf("Required field '%s' is empty", f.Name))
		}
		return
	}

	switch f.Type {
	case schema.FieldInteger:
		n, ok := csvio.ParseInteger(value)
		if !ok {
			emit(Blocker, RuleType, fmt.Sprintf("Expected integer, got '%s'", value))
			break
		}
		checkRange(f, float64(n), fmt.Sprint(n), emit)
	case schema.FieldFloat:
		n, ok := csvio.ParseNumber(value)
		if !ok {
			emit(Blocker, RuleType, fmt.Sprintf("Expected number, got '%s'", value))
			break
		}
		checkRange(f, n, fmt.Sprint(n), emit)
	case schema.FieldDate:
		if _, ok := csvio.ParseDate(value); !ok {
			emit(Blocker, RuleType, fmt.Sprintf("Expected date, got '%s'", value))
		}
	case schema.FieldBoolean:
		if _, ok := csvio.ParseBool(value); !ok {
			emit(Blocker, RuleType, fmt.Sprintf("Expected boolean, got '%s'", value))
		}
	}

	if fc.pattern != nil && !fc.pattern.MatchString(value) {
		emit(Warning, RulePattern, fmt.Sprintf("Value '%s' doesn't match expected format", value))
	}

	if len(f.Enum) > 0 && !slices.ContainsFunc(f.Enum, func(v string) bool { return strings.EqualFold(v, value) }) {
		emit(Warning, RuleEnum, fmt.Sprintf("Value '%s' is not a recognized %s", value, f.Name))
	}

	if first, seen := fc.firstRow[value]; seen {
		if f.Unique {
			emit(Warning, RuleDuplicateValue, fmt.Sprintf("Duplicate value '%s' (first seen in row %d)", value, first))
		}
	} else {
		fc.firstRow[value] = line
	}
}

func checkRange(f schema.CanonicalField, n float64, shown string, emit func(Severity, string, string)) {
	if f.Min != nil && n < float64(*f.Min) {
		emit(Blocker, RuleBelowMin, fmt.Sprintf("Value %s is below minimum %d", shown, *f.Min))
	}
	if f.Max != nil && n > float64(*f.Max) {
		emit(Blocker, RuleAboveMax, fmt.Sprintf("Value %s exceeds maximum %d", shown, *f.Max))
	}
}

func unreadable(fileName string, err error) Issue {
	return Issue{
		Severity:    Blocker,
		FileName:    fileName,
		RuleID:      RuleUnreadable,
		Description: fmt.Sprintf("Failed to parse CSV: %v", err),
	}
}
