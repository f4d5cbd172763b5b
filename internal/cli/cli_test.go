package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/mdo/internal/config"
	"github.com/JonMunkholm/mdo/internal/mappings"
	"github.com/JonMunkholm/mdo/internal/run"
	"github.com/JonMunkholm/mdo/internal/runapi"
	"github.com/JonMunkholm/mdo/internal/schema"
)

const sampleSheet = "Run_ID,Sample_ID,Library_ID,Lane,Index_I1,Index_I2\n" +
	"R1,S1,L1,1,ACGT,TTGA\n" +
	"R2,S2,L2,2,ACGG,TTGC\n"

func testOptions(t *testing.T, format string) *RootOptions {
	t.Helper()
	return &RootOptions{
		Format: format,
		Config: &config.Config{
			Run: config.RunConfig{
				PollInterval:   10 * time.Millisecond,
				PollTimeout:    5 * time.Second,
				PollMaxBackoff: 50 * time.Millisecond,
				MaxFileSize:    1 << 20,
				MaxConcurrent:  2,
				MaxWaitTime:    time.Second,
				ProcessTimeout: time.Minute,
			},
			Database: config.DatabaseConfig{LocalPath: filepath.Join(t.TempDir(), "mdo.db")},
			Export:   config.ExportConfig{Prefix: "runs"},
		},
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// decode unwraps the JSON envelope into data.
func decode(t *testing.T, out string, data any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, data))
}

// =============================================================================
// Flags and exit codes
// =============================================================================

func TestParseTemplateFlags(t *testing.T) {
	got, err := parseTemplateFlags([]string{"a.csv=illumina", " b.csv = tenx "})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.csv": "illumina", "b.csv": "tenx"}, got)

	for _, bad := range []string{"a.csv", "=tenx", "a.csv="} {
		_, err := parseTemplateFlags([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestParseMapFlags(t *testing.T) {
	got, err := parseMapFlags([]string{"a.csv:Run_ID=run", `c:\in.csv:Lane=lane no`})
	require.NoError(t, err)
	assert.Equal(t, []fieldAssignment{
		{File: "a.csv", Field: "Run_ID", Column: "run"},
		{File: `c:\in.csv`, Field: "Lane", Column: "lane no"},
	}, got)

	for _, bad := range []string{"a.csv=run", ":Run_ID=run", "a.csv:=run", "a.csv:Run_ID="} {
		_, err := parseMapFlags([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(io.EOF))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad", io.EOF)))
	assert.ErrorIs(t, WrapExitError(ExitFailure, "wrapped", io.EOF), io.EOF)
	assert.Equal(t, "wrapped: EOF", WrapExitError(ExitFailure, "wrapped", io.EOF).Error())
}

func TestRootCommand_RejectsFormat(t *testing.T) {
	cmd := NewRootCommand()
	_, err := execute(cmd, "templates", "--format", "yaml", "--env-file", "")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

// =============================================================================
// templates
// =============================================================================

func TestTemplates(t *testing.T) {
	out, err := execute(NewTemplatesCommand(testOptions(t, "json")))
	require.NoError(t, err)

	var templates []schema.SchemaTemplate
	decode(t, out, &templates)
	require.Len(t, templates, 3)
	assert.Equal(t, schema.IlluminaNGSRunID, templates[0].ID)

	out, err = execute(NewTemplatesCommand(testOptions(t, "text")))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], schema.IlluminaNGSRunID)
}

// =============================================================================
// validate
// =============================================================================

func TestValidate_InProcessAutoMap(t *testing.T) {
	path := writeFile(t, "sheet.csv", sampleSheet)

	out, err := execute(NewValidateCommand(testOptions(t, "json")), path, "--auto-map")
	require.NoError(t, err)

	var res ValidationResult
	decode(t, out, &res)
	assert.Equal(t, run.StatusComplete, res.Status)
	assert.True(t, res.Ready)
	assert.Zero(t, res.Summary.Blockers)
	assert.Empty(t, res.RunID)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "sheet.csv", res.Files[0].FileName)
	assert.Equal(t, schema.IlluminaNGSRunID, res.Files[0].TemplateID)
	assert.Equal(t, "Lane", res.Files[0].Mapping["Lane"])
}

func TestValidate_GateClosed(t *testing.T) {
	path := writeFile(t, "notes.csv", "foo,bar\n1,2\n")

	out, err := execute(NewValidateCommand(testOptions(t, "text")), path, "--auto-map")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "VAL-001")
	assert.Contains(t, out, "BLOCKER")
	assert.Contains(t, out, "Not ready")
}

func TestValidate_QuickExplicitMappingWithReport(t *testing.T) {
	path := writeFile(t, "run.csv", "run,sample,library,lane,i7,i5\nR1,S1,L1,1,ACGT,\n")
	reportPath := filepath.Join(t.TempDir(), "report.csv")

	out, err := execute(NewValidateCommand(testOptions(t, "text")), path,
		"--quick",
		"-t", "run.csv="+schema.IlluminaNGSRunID,
		"-m", "run.csv:Run_ID=run",
		"-m", "run.csv:Sample_ID=sample",
		"-m", "run.csv:Library_ID=library",
		"-m", "run.csv:Lane=lane",
		"-m", "run.csv:Index_I1=i7",
		"-m", "run.csv:Index_I2=i5",
		"--report", reportPath,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Ready for export")
	assert.Contains(t, out, "Report written to "+reportPath)

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "id,severity,fileName,rowIndex,columnName,ruleId,description\n"))
}

func TestValidate_BadInput(t *testing.T) {
	path := writeFile(t, "run.csv", sampleSheet)

	tests := []struct {
		name string
		args []string
	}{
		{"missing file", []string{filepath.Join(t.TempDir(), "absent.csv")}},
		{"bad template flag", []string{path, "-t", "run.csv"}},
		{"template for unknown file", []string{path, "-t", "other.csv=x"}},
		{"map for unknown file", []string{path, "-m", "other.csv:Lane=lane"}},
		{"unknown saved mapping", []string{path, "--saved", "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(NewValidateCommand(testOptions(t, "text")), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

// fakeBackend answers one run that completes with a single Warning.
type fakeBackend struct {
	mu     sync.Mutex
	apiKey string
	specs  string
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.apiKey = r.Header.Get("X-API-Key")
		b.specs = r.FormValue("mapping")
		b.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, `{"status":"run started","run_id":"run-1"}`)
	})
	mux.HandleFunc("GET /api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"id":"run-1","status":"complete","files":["sheet.csv"],"validation_summary":{"blockers":0,"warnings":1,"infos":0,"total":1}}]`)
	})
	mux.HandleFunc("GET /api/v1/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "run-1" {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":"Not Found","message":"run not found","code":"RUN001"}`)
			return
		}
		io.WriteString(w, `{"id":"run-1","status":"complete","files":["sheet.csv"],"validation_issues":[`+
			`{"id":"issue-1","type":"Warning","fileName":"sheet.csv","rowIndex":2,"columnName":"Lane","ruleId":"VAL-107","description":"Duplicate value."}]}`)
	})
	return mux
}

func newFakeBackend(t *testing.T) (*fakeBackend, string) {
	t.Helper()
	b := &fakeBackend{}
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)
	return b, srv.URL
}

func TestValidate_Remote(t *testing.T) {
	backend, url := newFakeBackend(t)
	path := writeFile(t, "sheet.csv", sampleSheet)

	out, err := execute(NewValidateCommand(testOptions(t, "json")), path,
		"--auto-map", "--remote", url, "--api-key", "k1")
	require.NoError(t, err)

	var res ValidationResult
	decode(t, out, &res)
	assert.Equal(t, "run-1", res.RunID)
	assert.True(t, res.Ready)
	assert.Equal(t, 1, res.Summary.Warnings)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "VAL-107", res.Issues[0].RuleID)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, "k1", backend.apiKey)
	var specs []runapi.FileSpec
	require.NoError(t, json.Unmarshal([]byte(backend.specs), &specs))
	require.Len(t, specs, 1)
	assert.Equal(t, schema.IlluminaNGSRunID, specs[0].TemplateID)
}

// =============================================================================
// runs
// =============================================================================

func TestRuns_RequireRemote(t *testing.T) {
	_, err := execute(NewRunsCommand(testOptions(t, "text")), "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRuns_ListAndGet(t *testing.T) {
	_, url := newFakeBackend(t)

	out, err := execute(NewRunsCommand(testOptions(t, "text")), "list", "--remote", url)
	require.NoError(t, err)
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "complete")

	reportPath := filepath.Join(t.TempDir(), "report.csv")
	out, err = execute(NewRunsCommand(testOptions(t, "text")), "get", "run-1", "--remote", url, "--report", reportPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Run run-1: complete")
	assert.Contains(t, out, "VAL-107")
	assert.FileExists(t, reportPath)

	_, err = execute(NewRunsCommand(testOptions(t, "text")), "get", "missing", "--remote", url)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

// =============================================================================
// mappings
// =============================================================================

func TestMappings_SaveApplyDelete(t *testing.T) {
	opts := testOptions(t, "text")
	path := writeFile(t, "sheet.csv", sampleSheet)

	out, err := execute(NewMappingsCommand(opts), "save", "weekly", path, "--auto-map")
	require.NoError(t, err)
	assert.Contains(t, out, `Saved "weekly"`)

	opts.Format = "json"
	out, err = execute(NewMappingsCommand(opts), "list")
	require.NoError(t, err)
	var configs []mappings.Config
	decode(t, out, &configs)
	require.Len(t, configs, 1)
	assert.Equal(t, "weekly", configs[0].Name)
	require.Len(t, configs[0].Mappings, 1)
	assert.Equal(t, schema.IlluminaNGSRunID, configs[0].Mappings[0].TemplateID)

	out, err = execute(NewValidateCommand(opts), path, "--saved", "WEEKLY")
	require.NoError(t, err)
	var res ValidationResult
	decode(t, out, &res)
	assert.True(t, res.Ready)
	assert.Equal(t, schema.IlluminaNGSRunID, res.Files[0].TemplateID)

	opts.Format = "text"
	out, err = execute(NewMappingsCommand(opts), "delete", "weekly")
	require.NoError(t, err)
	assert.Contains(t, out, `Deleted "weekly"`)

	_, err = execute(NewMappingsCommand(opts), "delete", "weekly")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
