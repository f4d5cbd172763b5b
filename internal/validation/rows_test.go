package validation

import (
	"context"
	"strings"
	"testing"

	"github.com/JonMunkholm/mdo/internal/mapping"
	"github.com/JonMunkholm/mdo/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTemplate(t *testing.T, id string) schema.SchemaTemplate {
	t.Helper()
	tmpl, ok := schema.Default().Find(id)
	require.True(t, ok, "template %s", id)
	return tmpl
}

var illuminaColumns = map[string]string{
	"Run_ID":     "run",
	"Sample_ID":  "sample",
	"Library_ID": "library",
	"Lane":       "lane",
	"Index_I1":   "i7",
	"Index_I2":   "i5",
}

func TestRowChecker_CleanFile(t *testing.T) {
	csv := "run,sample,library,lane,i7,i5\n" +
		"R1,S1,L1,1,ACGT,\n" +
		"R2,S2,L2,8,ACGTN,TTGA\n"

	rep, err := RowChecker{}.Check(context.Background(), "a.csv", strings.NewReader(csv), mustTemplate(t, schema.IlluminaNGSRunID), illuminaColumns)
	require.NoError(t, err)
	assert.Empty(t, rep.Issues)
	assert.Equal(t, map[string]int{"L1": 2, "L2": 3}, rep.Values["Library_ID"])
}

func TestRowChecker_RowIssues(t *testing.T) {
	csv := "run,sample,library,lane,i7,i5\n" +
		"R1,S1,L1,0,ACGT,\n" + // row 2: below min
		"R2,,L2,9,acgt,\n" + // row 3: empty required, above max, pattern
		"R3,S3,L1,two,ACGT,XYZ\n" // row 4: duplicate library, type, pattern on optional

	rep, err := RowChecker{}.Check(context.Background(), "a.csv", strings.NewReader(csv), mustTemplate(t, schema.IlluminaNGSRunID), illuminaColumns)
	require.NoError(t, err)

	type got struct {
		rule  string
		field string
		row   int
		sev   Severity
	}
	var gots []got
	for _, is := range rep.Issues {
		require.NotNil(t, is.RowIndex)
		gots = append(gots, got{is.RuleID, is.ColumnName, *is.RowIndex, is.Severity})
	}

	// Issues are grouped per field in template order.
	assert.Equal(t, []got{
		{RuleRequiredEmpty, "Sample_ID", 3, Blocker},
		{RuleDuplicateValue, "Library_ID", 4, Warning},
		{RuleBelowMin, "Lane", 2, Blocker},
		{RuleAboveMax, "Lane", 3, Blocker},
		{RuleType, "Lane", 4, Blocker},
		{RulePattern, "Index_I1", 3, Warning},
		{RulePattern, "Index_I2", 4, Warning},
	}, gots)

	assert.Contains(t, rep.Issues[1].Description, "first seen in row 2")
	assert.Equal(t, "Value 0 is below minimum 1", rep.Issues[2].Description)
	assert.Equal(t, "Expected integer, got 'two'", rep.Issues[4].Description)
}

func TestRowChecker_MissingColumnAndUnmapped(t *testing.T) {
	csv := "run,sample\nR1,S1\n"
	m := map[string]string{"Run_ID": "run", "Sample_ID": "sample", "Lane": "lane"}

	rep, err := RowChecker{}.Check(context.Background(), "a.csv", strings.NewReader(csv), mustTemplate(t, schema.IlluminaNGSRunID), m)
	require.NoError(t, err)
	require.Len(t, rep.Issues, 1)
	assert.Equal(t, RuleMissingColumn, rep.Issues[0].RuleID)
	assert.Equal(t, "Lane", rep.Issues[0].ColumnName)
	assert.Nil(t, rep.Issues[0].RowIndex)
}

func TestRowChecker_EmptyFile(t *testing.T) {
	rep, err := RowChecker{}.Check(context.Background(), "empty.csv", strings.NewReader(""), mustTemplate(t, schema.IlluminaNGSRunID), illuminaColumns)
	require.NoError(t, err)
	require.Len(t, rep.Issues, 1)
	assert.Equal(t, RuleUnreadable, rep.Issues[0].RuleID)
	assert.Equal(t, Blocker, rep.Issues[0].Severity)
}

func TestRowChecker_SkipsBlankRowsKeepsLineNumbers(t *testing.T) {
	csv := "lib,sample,chem\n" +
		"L1,S1,SC3Pv3\n" +
		",,\n" +
		"L2,S2,v2.1\n"
	m := map[string]string{"Library_ID": "lib", "Sample_ID": "sample", "Chemistry": "chem"}

	rep, err := RowChecker{}.Check(context.Background(), "tenx.csv", strings.NewReader(csv), mustTemplate(t, schema.TenxSingleCellID), m)
	require.NoError(t, err)
	require.Len(t, rep.Issues, 1)
	assert.Equal(t, RuleEnum, rep.Issues[0].RuleID)
	assert.Equal(t, 4, *rep.Issues[0].RowIndex)
	assert.Equal(t, Warning, rep.Issues[0].Severity)
}

func TestRowChecker_EnumIsCaseInsensitive(t *testing.T) {
	csv := "lib,sample,chem\nL1,S1,sc3pv3\n"
	m := map[string]string{"Library_ID": "lib", "Sample_ID": "sample", "Chemistry": "chem"}

	rep, err := RowChecker{}.Check(context.Background(), "tenx.csv", strings.NewReader(csv), mustTemplate(t, schema.TenxSingleCellID), m)
	require.NoError(t, err)
	assert.Empty(t, rep.Issues)
}

func TestRowChecker_OtherTypes(t *testing.T) {
	tmpl := schema.SchemaTemplate{ID: "t", Fields: []schema.CanonicalField{
		{Name: "When", Type: schema.FieldDate},
		{Name: "Ok", Type: schema.FieldBoolean},
		{Name: "Conc", Type: schema.FieldFloat},
	}}
	csv := "when,ok,conc\n2024-01-15,yes,1.5\nsoon,maybe,lots\n"
	m := map[string]string{"When": "when", "Ok": "ok", "Conc": "conc"}

	rep, err := RowChecker{}.Check(context.Background(), "t.csv", strings.NewReader(csv), tmpl, m)
	require.NoError(t, err)
	require.Len(t, rep.Issues, 3)
	for _, is := range rep.Issues {
		assert.Equal(t, RuleType, is.RuleID)
		assert.Equal(t, 3, *is.RowIndex)
	}
}

func TestRowChecker_CapsIssuesPerField(t *testing.T) {
	var b strings.Builder
	b.WriteString("run,sample,library,lane,i7\n")
	for i := 0; i < 10; i++ {
		b.WriteString("R,S,L,99,ACGT\n")
	}
	m := map[string]string{"Lane": "lane"}

	rep, err := RowChecker{MaxIssuesPerField: 3}.Check(context.Background(), "a.csv", strings.NewReader(b.String()), mustTemplate(t, schema.IlluminaNGSRunID), m)
	require.NoError(t, err)
	require.Len(t, rep.Issues, 4)
	last := rep.Issues[3]
	assert.Equal(t, RuleSuppressed, last.RuleID)
	assert.Contains(t, last.Description, "7 further issues")
}

func TestRowChecker_Cancelled(t *testing.T) {
	var b strings.Builder
	b.WriteString("lane\n")
	for i := 0; i < 2*ctxCheckEvery; i++ {
		b.WriteString("1\n")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RowChecker{}.Check(ctx, "a.csv", strings.NewReader(b.String()), mustTemplate(t, schema.IlluminaNGSRunID), map[string]string{"Lane": "lane"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRowChecker_CheckFile(t *testing.T) {
	f := mapping.NewFile("run.csv", []byte("lane\n9\n"))
	rep, err := RowChecker{}.CheckFile(context.Background(), f, mustTemplate(t, schema.IlluminaNGSRunID), map[string]string{"Lane": "lane"})
	require.NoError(t, err)
	require.Len(t, rep.Issues, 1)
	assert.Equal(t, RuleAboveMax, rep.Issues[0].RuleID)

	rep, err = RowChecker{}.CheckFile(context.Background(), mapping.File{Name: "gone.csv"}, mustTemplate(t, schema.IlluminaNGSRunID), nil)
	require.NoError(t, err)
	require.Len(t, rep.Issues, 1)
	assert.Equal(t, RuleUnreadable, rep.Issues[0].RuleID)
	assert.Equal(t, "gone.csv", rep.Issues[0].FileName)
}
