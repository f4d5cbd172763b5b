package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/mdo/internal/backend"
	"github.com/JonMunkholm/mdo/internal/config"
	"github.com/JonMunkholm/mdo/internal/export"
	"github.com/JonMunkholm/mdo/internal/mapping"
	"github.com/JonMunkholm/mdo/internal/mappings"
	"github.com/JonMunkholm/mdo/internal/report"
	"github.com/JonMunkholm/mdo/internal/run"
	"github.com/JonMunkholm/mdo/internal/runapi"
	"github.com/JonMunkholm/mdo/internal/schema"
	"github.com/JonMunkholm/mdo/internal/validation"
)

// ValidationResult is the outcome of one validate invocation.
type ValidationResult struct {
	RunID   string             `json:"run_id,omitempty"`
	Status  run.Status         `json:"status"`
	Ready   bool               `json:"ready"`
	Summary validation.Summary `json:"summary"`
	Files   []runapi.FileSpec  `json:"files"`
	Issues  []validation.Issue `json:"issues"`
	Report  string             `json:"report,omitempty"`
	Export  *export.Result     `json:"export,omitempty"`
}

type validateOptions struct {
	mappingFlags
	remote  string
	apiKey  string
	report  string
	export  bool
	quick   bool
	timeout time.Duration
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Map files onto templates and run validation",
		Long: `Load CSV files, select templates and map columns, then run a validation
pass. Without --remote the full rule set runs in process; --quick limits it
to the mapping checks. The command exits with status 1 when blocking issues
remain.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, rootOpts, opts, args)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&opts.remote, "remote", "", "run backend base URL (default $MDO_REMOTE_URL)")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "API key for the run backend (default $MDO_API_KEY)")
	cmd.Flags().StringVar(&opts.report, "report", "", "write the issue report as CSV to this path")
	cmd.Flags().BoolVar(&opts.export, "export", false, "export the run to object storage when it is ready")
	cmd.Flags().BoolVar(&opts.quick, "quick", false, "check mappings only, without reading rows")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "give up after this long (0 waits for the run)")

	return cmd
}

func runValidate(cmd *cobra.Command, rootOpts *RootOptions, opts *validateOptions, paths []string) error {
	out := rootOpts.formatter(cmd)
	cfg, err := rootOpts.config()
	if err != nil {
		return err
	}
	if opts.remote == "" {
		opts.remote = cfg.Remote.URL
	}
	if opts.apiKey == "" {
		opts.apiKey = cfg.Remote.APIKey
	}

	ctx := cmd.Context()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	reg, err := schema.Load(cfg.Schema.CatalogPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load schema catalog", err)
	}
	client, err := remoteClient(opts.remote, opts.apiKey)
	if err != nil {
		return err
	}

	var saved mappings.Repository
	if opts.saved != "" {
		repo, closeRepo, err := openMappings(cfg, client)
		if err != nil {
			return err
		}
		defer closeRepo()
		saved = repo
	}

	store, err := buildStore(ctx, paths, reg, opts.mappingFlags, saved, out)
	if err != nil {
		return err
	}

	validator, cleanup := newValidator(cfg, reg, client, opts.quick)
	defer cleanup()

	ctrl, err := run.NewController(store, validator, run.WithLogger(slog.Default()))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create run controller", err)
	}
	defer ctrl.Close()

	if err := ctrl.RunValidation(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to start validation run", err)
	}
	out.VerboseLog("validating %d file(s)", store.Len())

	snap, err := ctrl.Wait(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "validation run did not finish", err)
	}
	if snap.Status == run.StatusFailed {
		return WrapExitError(ExitFailure, "validation run failed", snap.Err)
	}

	result := ValidationResult{
		RunID:   snap.RunID,
		Status:  snap.Status,
		Ready:   snap.Ready(),
		Summary: validation.Summarize(snap.Issues),
		Files:   runapi.SpecsFrom(snap.FileMappings),
		Issues:  snap.Issues,
	}

	if opts.report != "" {
		if err := writeReportFile(opts.report, snap.Issues); err != nil {
			return err
		}
		result.Report = opts.report
	}

	if opts.export && result.Ready {
		res, err := exportRun(ctx, cfg, result)
		if err != nil {
			return err
		}
		result.Export = &res
	}

	if err := printValidation(out, result); err != nil {
		return err
	}
	if !result.Ready {
		return NewExitError(ExitFailure,
			fmt.Sprintf("not ready for export: %d blocking issue(s)", result.Summary.Blockers))
	}
	return nil
}

// newValidator picks the run executor: the remote backend, the mapping-only
// local evaluator, or the full rule set in process.
func newValidator(cfg *config.Config, reg *schema.Registry, client *runapi.Client, quick bool) (run.Validator, func()) {
	switch {
	case client != nil:
		return run.NewRemoteValidator(client,
			run.WithPollInterval(cfg.Run.PollInterval),
			run.WithPollTimeout(cfg.Run.PollTimeout),
			run.WithPollMaxBackoff(cfg.Run.PollMaxBackoff),
			run.WithPollLogger(slog.Default()),
		), func() {}
	case quick:
		return run.NewLocalValidator(validation.NewEngine(reg), cfg.Run.LocalDelay), func() {}
	default:
		svc := backend.NewService(backend.NewMemoryRepository(), reg, cfg.Run,
			backend.WithServiceLogger(slog.Default()))
		return inProcessValidator{svc: svc}, svc.Close
	}
}

// inProcessValidator evaluates a run with the backend's rule set without
// going through HTTP.
type inProcessValidator struct {
	svc *backend.Service
}

func (v inProcessValidator) Start(ctx context.Context, _ []mapping.FileMapping) (string, error) {
	return "", ctx.Err()
}

func (v inProcessValidator) Await(ctx context.Context, _ string, files []mapping.FileMapping) ([]validation.Issue, error) {
	uploads := make([]mapping.File, len(files))
	for i, fm := range files {
		uploads[i] = fm.File
	}
	return v.svc.Evaluate(ctx, uploads, runapi.SpecsFrom(files))
}

func writeReportFile(path string, issues []validation.Issue) error {
	f, err := os.Create(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot create report", err)
	}
	if err := report.WriteCSV(f, issues); err != nil {
		f.Close()
		return WrapExitError(ExitCommandError, "failed to write report", err)
	}
	if err := f.Close(); err != nil {
		return WrapExitError(ExitCommandError, "failed to write report", err)
	}
	return nil
}

func exportRun(ctx context.Context, cfg *config.Config, result ValidationResult) (export.Result, error) {
	if !cfg.Export.Enabled() {
		return export.Result{}, NewExitError(ExitCommandError, "export is not configured: set EXPORT_ENDPOINT")
	}
	store, err := export.NewMinioStore(ctx, cfg.Export)
	if err != nil {
		return export.Result{}, WrapExitError(ExitCommandError, "cannot reach object storage", err)
	}

	// Local runs have no backend id.
	runID := result.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	res, err := export.NewExporter(store, cfg.Export.Prefix).Export(ctx, export.Bundle{
		RunID:  runID,
		Files:  result.Files,
		Issues: result.Issues,
	})
	if err != nil {
		return export.Result{}, WrapExitError(ExitCommandError, "export failed", err)
	}
	return res, nil
}

func printValidation(out *OutputFormatter, r ValidationResult) error {
	if out.JSON() {
		return out.Success(r)
	}

	if err := printIssues(out, r.Issues); err != nil {
		return err
	}

	label := "Local run"
	if r.RunID != "" {
		label = "Run " + r.RunID
	}
	fmt.Fprintf(out.Writer, "\n%s: %d blocker(s), %d warning(s), %d info\n",
		label, r.Summary.Blockers, r.Summary.Warnings, r.Summary.Infos)
	if r.Report != "" {
		fmt.Fprintf(out.Writer, "Report written to %s\n", r.Report)
	}
	if r.Export != nil {
		fmt.Fprintf(out.Writer, "Exported %s and %s\n", r.Export.ReportKey, r.Export.ManifestKey)
	}
	if r.Ready {
		fmt.Fprintln(out.Writer, "✓ Ready for export")
	} else {
		fmt.Fprintln(out.Writer, "✗ Not ready: resolve blocking issues first")
	}
	return nil
}

func printIssues(out *OutputFormatter, issues []validation.Issue) error {
	tw := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEVERITY\tFILE\tROW\tCOLUMN\tRULE\tDESCRIPTION")
	for _, is := range issues {
		row := "-"
		if is.RowIndex != nil {
			row = fmt.Sprint(*is.RowIndex)
		}
		col := is.ColumnName
		if col == "" {
			col = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			strings.ToUpper(string(is.Severity)), is.FileName, row, col, is.RuleID, is.Description)
	}
	return tw.Flush()
}
