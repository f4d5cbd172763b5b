package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/mdo/internal/schema"
)

// NewTemplatesCommand creates the templates command.
func NewTemplatesCommand(rootOpts *RootOptions) *cobra.Command {
	var remote, apiKey string

	cmd := &cobra.Command{
		Use:           "templates",
		Short:         "List the schema templates files can be mapped to",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.config()
			if err != nil {
				return err
			}
			if remote == "" {
				remote = cfg.Remote.URL
			}
			if apiKey == "" {
				apiKey = cfg.Remote.APIKey
			}

			var templates []schema.SchemaTemplate
			client, err := remoteClient(remote, apiKey)
			if err != nil {
				return err
			}
			if client != nil {
				templates, err = client.ListTemplates(cmd.Context())
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list templates", err)
				}
			} else {
				reg, err := schema.Load(cfg.Schema.CatalogPath)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to load schema catalog", err)
				}
				templates = reg.List()
			}
			return printTemplates(rootOpts.formatter(cmd), templates)
		},
	}

	cmd.Flags().StringVar(&remote, "remote", "", "list the templates of a run backend instead of the local catalog")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key for the run backend")

	return cmd
}

func printTemplates(f *OutputFormatter, templates []schema.SchemaTemplate) error {
	if f.JSON() {
		return f.Success(templates)
	}

	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVERSION\tPLATFORM\tFIELDS\tREQUIRED")
	for _, t := range templates {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
			t.ID, t.Name, t.Version, t.Platform, len(t.Fields), len(t.RequiredFields()))
	}
	return tw.Flush()
}
