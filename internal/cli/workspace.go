package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/mdo/internal/config"
	"github.com/JonMunkholm/mdo/internal/mapping"
	"github.com/JonMunkholm/mdo/internal/mappings"
	"github.com/JonMunkholm/mdo/internal/runapi"
	"github.com/JonMunkholm/mdo/internal/schema"
)

// mappingFlags are the flags that shape a store before it is validated or saved.
type mappingFlags struct {
	templates []string
	maps      []string
	autoMap   bool
	saved     string
}

func (m *mappingFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&m.templates, "template", "t", nil, "select a template for a file (file=template-id, repeatable)")
	cmd.Flags().StringArrayVarP(&m.maps, "map", "m", nil, "map a column onto a field (file:field=column, repeatable)")
	cmd.Flags().BoolVar(&m.autoMap, "auto-map", false, "suggest templates and map columns by name")
	cmd.Flags().StringVar(&m.saved, "saved", "", "apply a saved mapping configuration by id or name")
}

// buildStore loads files into a new store and applies, in order, the saved
// configuration, explicit templates, auto-mapping and explicit field maps.
// Later steps win over earlier ones.
func buildStore(ctx context.Context, paths []string, reg *schema.Registry, flags mappingFlags, saved mappings.Repository, out *OutputFormatter) (*mapping.Store, error) {
	templates, err := parseTemplateFlags(flags.templates)
	if err != nil {
		return nil, NewExitError(ExitCommandError, err.Error())
	}
	fields, err := parseMapFlags(flags.maps)
	if err != nil {
		return nil, NewExitError(ExitCommandError, err.Error())
	}

	store := mapping.NewStore()
	for _, p := range paths {
		f, err := mapping.OpenFile(p)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "cannot read input", err)
		}
		if store.AddFiles(f) == 0 {
			out.VerboseLog("skipping %s: a file named %s was already added", p, f.Name)
		}
	}
	for _, f := range store.Files() {
		cols, err := store.DiscoverColumns(f.Name)
		if err != nil {
			out.VerboseLog("%s: header unreadable: %v", f.Name, err)
			continue
		}
		out.VerboseLog("%s: %d column(s)", f.Name, len(cols))
	}

	if flags.saved != "" {
		if saved == nil {
			return nil, NewExitError(ExitCommandError, "no mapping store available for --saved")
		}
		cfg, err := mappings.Lookup(ctx, saved, flags.saved)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("cannot load saved mapping %q", flags.saved), err)
		}
		applied := mappings.Apply(store, cfg)
		out.VerboseLog("applied %q to %d file(s)", cfg.Name, len(applied))
	}

	for name, id := range templates {
		if _, ok := store.Get(name); !ok {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("--template names unknown file %q", name))
		}
		store.SetTemplate(name, id)
	}

	if flags.autoMap {
		autoMap(store, reg, out)
	}

	for _, a := range fields {
		if _, ok := store.Get(a.File); !ok {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("--map names unknown file %q", a.File))
		}
		store.MapField(a.File, a.Field, a.Column)
	}
	return store, nil
}

// autoMap picks a template for files without one and fills fields that are
// still unmapped.
func autoMap(store *mapping.Store, reg *schema.Registry, out *OutputFormatter) {
	for _, fm := range store.FileMappings() {
		name := fm.FileName()
		if fm.TemplateID == "" {
			tmpl, ok := mapping.SuggestTemplate(reg.List(), fm.Columns)
			if !ok {
				out.VerboseLog("%s: no template matches its header", name)
				continue
			}
			store.SetTemplate(name, tmpl.ID)
			out.VerboseLog("%s: suggested template %s", name, tmpl.ID)
			fm, _ = store.Get(name)
		}

		tmpl, ok := reg.Find(fm.TemplateID)
		if !ok {
			continue
		}
		merged := fm.Mapping.Clone()
		added := 0
		for field, column := range mapping.AutoMap(tmpl, fm.Columns) {
			if merged[field] == "" {
				merged[field] = column
				added++
			}
		}
		if added > 0 {
			store.UpdateFileMapping(name, mapping.Update{Mapping: merged})
		}
	}
}

// openMappings returns the saved-mapping repository: the backend's when a
// client is given, otherwise the local SQLite file.
func openMappings(cfg *config.Config, client *runapi.Client) (mappings.Repository, func(), error) {
	if client != nil {
		return client.Mappings(), func() {}, nil
	}
	repo, err := mappings.OpenSQLite(cfg.Database.LocalPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "cannot open local mapping store", err)
	}
	return repo, func() {
		if err := repo.Close(); err != nil {
			slog.Warn("failed to close mapping store", "error", err)
		}
	}, nil
}
