// Package cli implements the mdo command line front end. It drives the same
// mapping store and run controller as the page UI and prints results as
// text or JSON.
package cli

import (
	"fmt"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/mdo/internal/config"
	"github.com/JonMunkholm/mdo/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	EnvFile string

	// Config is loaded on first use unless set beforehand.
	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the mdo CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "mdo",
		Short: "mdo - metadata upload orchestrator",
		Long: `Map sequencing metadata files onto schema templates, validate them
locally or against a run backend, and export runs that pass the readiness gate.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			level := cfg.Logging.Level
			if opts.Verbose {
				level = "debug"
			}
			logging.SetupWriter(cmd.ErrOrStderr(), level, cfg.Logging.Format)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	cmd.AddCommand(NewTemplatesCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewMappingsCommand(opts))

	return cmd
}

// config loads the configuration once. A missing env file is not an error.
func (o *RootOptions) config() (*config.Config, error) {
	if o.Config != nil {
		return o.Config, nil
	}
	if o.EnvFile != "" {
		if err := godotenv.Load(o.EnvFile); err != nil && !os.IsNotExist(err) {
			return nil, WrapExitError(ExitCommandError, "failed to read env file", err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	o.Config = cfg
	return cfg, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
