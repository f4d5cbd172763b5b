package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/mdo/internal/mappings"
	"github.com/JonMunkholm/mdo/internal/schema"
)

// NewMappingsCommand creates the mappings command group. Configurations
// live in the local SQLite file unless --remote names a backend.
func NewMappingsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &remoteOptions{}

	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Manage saved mapping configurations",
	}
	cmd.PersistentFlags().StringVar(&opts.remote, "remote", "", "use the run backend's store instead of the local one")
	cmd.PersistentFlags().StringVar(&opts.apiKey, "api-key", "", "API key for the run backend")

	cmd.AddCommand(newMappingsListCommand(rootOpts, opts))
	cmd.AddCommand(newMappingsSaveCommand(rootOpts, opts))
	cmd.AddCommand(newMappingsDeleteCommand(rootOpts, opts))
	return cmd
}

// repository opens the store named by the flags. The returned func closes it.
func (o *remoteOptions) repository(rootOpts *RootOptions) (mappings.Repository, func(), error) {
	cfg, err := rootOpts.config()
	if err != nil {
		return nil, nil, err
	}
	client, err := remoteClient(o.remote, o.apiKey)
	if err != nil {
		return nil, nil, err
	}
	return openMappings(cfg, client)
}

func newMappingsListCommand(rootOpts *RootOptions, opts *remoteOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List saved mapping configurations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeRepo, err := opts.repository(rootOpts)
			if err != nil {
				return err
			}
			defer closeRepo()

			configs, err := repo.List(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list mappings", err)
			}
			if configs == nil {
				configs = []mappings.Config{}
			}

			out := rootOpts.formatter(cmd)
			if out.JSON() {
				return out.Success(configs)
			}
			tw := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tFILES\tCREATED")
			for _, c := range configs {
				files := make([]string, 0, len(c.Mappings))
				for _, e := range c.Mappings {
					files = append(files, e.FileName)
				}
				created := c.CreatedAt
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Name, strings.Join(files, ","), formatTime(&created))
			}
			return tw.Flush()
		},
	}
}

func newMappingsSaveCommand(rootOpts *RootOptions, opts *remoteOptions) *cobra.Command {
	flags := mappingFlags{}

	cmd := &cobra.Command{
		Use:   "save NAME FILE...",
		Short: "Save the template and column mapping of files under a name",
		Long: `Build mappings the same way validate does and store them under NAME so a
later run can reuse them with --saved NAME.`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.config()
			if err != nil {
				return err
			}
			reg, err := schema.Load(cfg.Schema.CatalogPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load schema catalog", err)
			}
			repo, closeRepo, err := opts.repository(rootOpts)
			if err != nil {
				return err
			}
			defer closeRepo()

			out := rootOpts.formatter(cmd)
			store, err := buildStore(cmd.Context(), args[1:], reg, flags, repo, out)
			if err != nil {
				return err
			}
			saved, err := repo.Save(cmd.Context(), args[0], mappings.EntriesFrom(store.FileMappings()))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to save mapping", err)
			}

			if out.JSON() {
				return out.Success(saved)
			}
			fmt.Fprintf(out.Writer, "Saved %q (%s) with %d file(s)\n", saved.Name, saved.ID, len(saved.Mappings))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newMappingsDeleteCommand(rootOpts *RootOptions, opts *remoteOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete ID|NAME",
		Short:         "Delete a saved mapping configuration",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeRepo, err := opts.repository(rootOpts)
			if err != nil {
				return err
			}
			defer closeRepo()

			cfg, err := mappings.Lookup(cmd.Context(), repo, args[0])
			if err != nil {
				if errors.Is(err, mappings.ErrNotFound) {
					return WrapExitError(ExitFailure, fmt.Sprintf("no saved mapping %q", args[0]), err)
				}
				return WrapExitError(ExitCommandError, "failed to look up mapping", err)
			}
			if err := repo.Delete(cmd.Context(), cfg.ID); err != nil {
				return WrapExitError(ExitCommandError, "failed to delete mapping", err)
			}

			out := rootOpts.formatter(cmd)
			if out.JSON() {
				return out.Success(map[string]string{"id": cfg.ID, "name": cfg.Name})
			}
			fmt.Fprintf(out.Writer, "Deleted %q (%s)\n", cfg.Name, cfg.ID)
			return nil
		},
	}
}
