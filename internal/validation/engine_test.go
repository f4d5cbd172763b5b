package validation

import (
	"testing"

	"github.com/JonMunkholm/mdo/internal/mapping"
	"github.com/JonMunkholm/mdo/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileMapping(name, templateID string, m mapping.Mapping, columns ...string) mapping.FileMapping {
	return mapping.FileMapping{
		File:       mapping.NewFile(name, nil),
		TemplateID: templateID,
		Columns:    columns,
		Mapping:    m,
	}
}

func illuminaComplete() mapping.Mapping {
	return mapping.Mapping{
		"Run_ID":     "run",
		"Sample_ID":  "sample",
		"Library_ID": "library",
		"Lane":       "lane",
		"Index_I1":   "i7",
	}
}

func ruleIDs(issues []Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.RuleID
	}
	return out
}

func TestEvaluate_MixedTemplatePresence(t *testing.T) {
	files := []mapping.FileMapping{
		fileMapping("a.csv", schema.IlluminaNGSRunID, illuminaComplete()),
		fileMapping("b.csv", "", mapping.Mapping{}),
	}

	issues := Evaluate(files, schema.Default())
	require.Len(t, issues, 1)
	assert.Equal(t, RuleTemplateMissing, issues[0].RuleID)
	assert.Equal(t, "b.csv", issues[0].FileName)
	assert.Equal(t, Blocker, issues[0].Severity)
	assert.Equal(t, "issue-1", issues[0].ID)
}

func TestEvaluate_UnknownTemplateSkipsOtherRules(t *testing.T) {
	files := []mapping.FileMapping{
		fileMapping("x.csv", "does-not-exist", mapping.Mapping{"Lane": "c", "Other": "c"}, "only"),
	}

	issues := Evaluate(files, schema.Default())
	require.Len(t, issues, 1)
	assert.Equal(t, RuleTemplateMissing, issues[0].RuleID)
	assert.Contains(t, issues[0].Description, "does-not-exist")
}

func TestEvaluate_RequiredFieldCardinality(t *testing.T) {
	tests := []struct {
		name      string
		template  string
		mapping   mapping.Mapping
		wantCount int
	}{
		{"illumina nothing mapped", schema.IlluminaNGSRunID, mapping.Mapping{}, 5},
		{"illumina two mapped", schema.IlluminaNGSRunID, mapping.Mapping{"Run_ID": "r", "Lane": "l"}, 3},
		{"illumina whitespace is unmapped", schema.IlluminaNGSRunID, mapping.Mapping{"Run_ID": "  "}, 5},
		{"illumina complete", schema.IlluminaNGSRunID, illuminaComplete(), 0},
		{"10x optional unmapped", schema.TenxSingleCellID, mapping.Mapping{"Library_ID": "l", "Sample_ID": "s", "Chemistry": "c"}, 0},
		{"10x chemistry missing", schema.TenxSingleCellID, mapping.Mapping{"Library_ID": "l", "Sample_ID": "s", "Expected_Cells": "n"}, 1},
		{"visium nothing mapped", schema.VisiumSpatialID, nil, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := Evaluate([]mapping.FileMapping{fileMapping("f.csv", tt.template, tt.mapping)}, schema.Default())

			count := 0
			for _, is := range issues {
				if is.RuleID == RuleRequiredUnmapped {
					count++
					assert.Equal(t, Blocker, is.Severity)
				}
			}
			assert.Equal(t, tt.wantCount, count)
			if tt.wantCount == 0 {
				assert.Equal(t, []string{RuleClean}, ruleIDs(issues))
			}
		})
	}
}

func TestEvaluate_RequiredFieldsInTemplateOrder(t *testing.T) {
	issues := Evaluate([]mapping.FileMapping{fileMapping("f.csv", schema.VisiumSpatialID, mapping.Mapping{"Capture_Area": "ca"})}, schema.Default())

	var fields []string
	for _, is := range issues {
		fields = append(fields, is.ColumnName)
	}
	assert.Equal(t, []string{"Slide_ID", "Library_ID", "Block_ID"}, fields)
}

func TestEvaluate_CleanFallback(t *testing.T) {
	issues := Evaluate([]mapping.FileMapping{fileMapping("a.csv", schema.IlluminaNGSRunID, illuminaComplete())}, schema.Default())
	require.Len(t, issues, 1)
	assert.Equal(t, RuleClean, issues[0].RuleID)
	assert.Equal(t, Info, issues[0].Severity)
	assert.Equal(t, SystemFileName, issues[0].FileName)

	issues = Evaluate(nil, schema.Default())
	assert.Equal(t, []string{RuleClean}, ruleIDs(issues), "an empty run is clean")
}

func TestEvaluate_Idempotent(t *testing.T) {
	files := []mapping.FileMapping{
		fileMapping("a.csv", schema.IlluminaNGSRunID, mapping.Mapping{"Run_ID": "x", "Sample_ID": "x", "Stale": "y"}, "x"),
		fileMapping("b.csv", "nope", nil),
		fileMapping("A.csv", schema.TenxSingleCellID, nil),
	}

	first := Evaluate(files, schema.Default())
	second := Evaluate(files, schema.Default())
	assert.Equal(t, first, second)
}

func TestEvaluate_StructuralStages(t *testing.T) {
	m := illuminaComplete()
	m["Sample_ID"] = "run" // reused column
	m["Lane"] = "lane_no"  // not in header
	m["Legacy"] = "run"    // not a template field

	files := []mapping.FileMapping{
		fileMapping("a.csv", schema.IlluminaNGSRunID, m, "run", "library", "lane", "i7"),
	}

	issues := Evaluate(files, schema.Default())
	assert.Equal(t, []string{RuleColumnNotFound, RuleColumnReused, RuleUnknownField}, ruleIDs(issues))
	assert.Equal(t, "Lane", issues[0].ColumnName)
	assert.Equal(t, Blocker, issues[0].Severity)
	assert.Equal(t, Warning, issues[1].Severity)
	assert.Contains(t, issues[1].Description, "Run_ID, Sample_ID")
	assert.Equal(t, "Legacy", issues[2].ColumnName)
	assert.Equal(t, Warning, issues[2].Severity)
}

func TestEvaluate_ColumnsNotDiscoveredSkipsHeaderCheck(t *testing.T) {
	issues := Evaluate([]mapping.FileMapping{fileMapping("a.csv", schema.IlluminaNGSRunID, illuminaComplete())}, schema.Default())
	assert.Equal(t, []string{RuleClean}, ruleIDs(issues))
}

func TestEvaluate_DuplicateFileNamesByCase(t *testing.T) {
	files := []mapping.FileMapping{
		fileMapping("Run.csv", schema.IlluminaNGSRunID, illuminaComplete()),
		fileMapping("run.csv", schema.IlluminaNGSRunID, illuminaComplete()),
	}

	issues := Evaluate(files, schema.Default())
	require.Len(t, issues, 1)
	assert.Equal(t, RuleDuplicateFile, issues[0].RuleID)
	assert.Equal(t, "run.csv", issues[0].FileName)
}

func TestEvaluate_FileOrderPreserved(t *testing.T) {
	files := []mapping.FileMapping{
		fileMapping("z.csv", "", nil),
		fileMapping("a.csv", schema.VisiumSpatialID, mapping.Mapping{"Slide_ID": "s", "Capture_Area": "c", "Library_ID": "l"}),
		fileMapping("m.csv", "", nil),
	}

	issues := Evaluate(files, schema.Default())
	var order []string
	for _, is := range issues {
		order = append(order, is.FileName+":"+is.RuleID)
	}
	assert.Equal(t, []string{"z.csv:VAL-001", "a.csv:VAL-002", "m.csv:VAL-001"}, order)
	assert.Equal(t, []string{"issue-1", "issue-2", "issue-3"}, []string{issues[0].ID, issues[1].ID, issues[2].ID})
}

func TestEngine_AppendedStagesRunAfterBuiltins(t *testing.T) {
	extra := func(r Resolved) []Issue {
		return []Issue{{Severity: Info, FileName: r.FileName(), RuleID: "VAL-900", Description: "extra"}}
	}
	cross := func(files []Resolved) []Issue {
		return []Issue{{Severity: Warning, FileName: SystemFileName, RuleID: "VAL-901", Description: "cross"}}
	}

	e := NewEngine(schema.Default(), WithFileStage(extra), WithCrossStage(cross))
	issues := e.Evaluate([]mapping.FileMapping{fileMapping("a.csv", schema.TenxSingleCellID, nil)})

	assert.Equal(t, []string{"VAL-002", "VAL-002", "VAL-002", "VAL-900", "VAL-901"}, ruleIDs(issues))
}

func TestEngine_StructuralHasNoFallback(t *testing.T) {
	e := NewEngine(schema.Default())
	issues, resolved := e.Structural([]mapping.FileMapping{
		fileMapping("a.csv", schema.IlluminaNGSRunID, illuminaComplete()),
		fileMapping("b.csv", "", nil),
	})
	assert.Equal(t, []string{RuleTemplateMissing}, ruleIDs(issues))
	require.Len(t, resolved, 1)
	assert.Equal(t, "a.csv", resolved[0].FileName())
	assert.Equal(t, schema.IlluminaNGSRunID, resolved[0].Template.ID)

	assert.Empty(t, e.CrossFile(resolved))
}

func TestSummarize(t *testing.T) {
	issues := []Issue{
		{Severity: Blocker}, {Severity: Warning}, {Severity: Warning}, {Severity: Info},
	}
	s := Summarize(issues)
	assert.Equal(t, Summary{Blockers: 1, Warnings: 2, Infos: 1, Total: 4}, s)
	assert.False(t, s.Ready())
	assert.True(t, HasBlockers(issues))
	assert.Len(t, Blocking(issues), 1)

	assert.True(t, Summarize([]Issue{Clean()}).Ready())
	assert.False(t, HasBlockers(nil))
}

func TestParseSeverity(t *testing.T) {
	for in, want := range map[string]Severity{"Blocker": Blocker, "warning": Warning, " INFO ": Info} {
		got, err := ParseSeverity(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseSeverity("fatal")
	assert.Error(t, err)
}
