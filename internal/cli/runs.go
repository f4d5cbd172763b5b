package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/mdo/internal/runapi"
)

// remoteOptions are the backend flags shared by a command group.
type remoteOptions struct {
	remote string
	apiKey string
}

// client resolves the backend from flags, falling back to the configuration.
func (o *remoteOptions) client(rootOpts *RootOptions) (*runapi.Client, error) {
	cfg, err := rootOpts.config()
	if err != nil {
		return nil, err
	}
	url, key := o.remote, o.apiKey
	if url == "" {
		url = cfg.Remote.URL
	}
	if key == "" {
		key = cfg.Remote.APIKey
	}
	return requireRemote(url, key)
}

// NewRunsCommand creates the runs command group.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &remoteOptions{}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect runs on a run backend",
	}
	cmd.PersistentFlags().StringVar(&opts.remote, "remote", "", "run backend base URL (default $MDO_REMOTE_URL)")
	cmd.PersistentFlags().StringVar(&opts.apiKey, "api-key", "", "API key for the run backend (default $MDO_API_KEY)")

	cmd.AddCommand(newRunsListCommand(rootOpts, opts))
	cmd.AddCommand(newRunsGetCommand(rootOpts, opts))
	return cmd
}

func newRunsListCommand(rootOpts *RootOptions, opts *remoteOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List the most recent runs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(rootOpts)
			if err != nil {
				return err
			}
			runs, err := client.ListRuns(cmd.Context(), limit)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list runs", err)
			}

			out := rootOpts.formatter(cmd)
			if out.JSON() {
				return out.Success(runs)
			}
			tw := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tFILES\tBLOCKERS\tWARNINGS\tCREATED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", r.ID, r.Status, len(r.Files),
					r.ValidationSummary.Blockers, r.ValidationSummary.Warnings, formatTime(r.CreatedAt))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of runs (0 uses the backend default)")
	return cmd
}

func newRunsGetCommand(rootOpts *RootOptions, opts *remoteOptions) *cobra.Command {
	var reportPath string

	cmd := &cobra.Command{
		Use:           "get RUN_ID",
		Short:         "Show the status and issues of one run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(rootOpts)
			if err != nil {
				return err
			}
			r, err := client.GetRun(cmd.Context(), args[0])
			if err != nil {
				if runapi.IsNotFound(err) {
					return WrapExitError(ExitFailure, fmt.Sprintf("run %s not found", args[0]), err)
				}
				return WrapExitError(ExitCommandError, "failed to fetch run", err)
			}
			issues, err := runapi.ToIssues(r.ValidationIssues)
			if err != nil {
				return WrapExitError(ExitCommandError, "backend returned malformed issues", err)
			}

			if reportPath != "" {
				if !r.Status.Terminal() {
					return NewExitError(ExitFailure, fmt.Sprintf("run %s is still %s", r.ID, r.Status))
				}
				if err := writeReportFile(reportPath, issues); err != nil {
					return err
				}
			}

			out := rootOpts.formatter(cmd)
			if out.JSON() {
				return out.Success(r)
			}
			fmt.Fprintf(out.Writer, "Run %s: %s (created %s)\n", r.ID, r.Status, formatTime(r.CreatedAt))
			if r.Error != "" {
				fmt.Fprintf(out.Writer, "Error: %s\n", r.Error)
			}
			if len(issues) > 0 {
				fmt.Fprintln(out.Writer)
				return printIssues(out, issues)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reportPath, "report", "", "write the issue report as CSV to this path")
	return cmd
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
