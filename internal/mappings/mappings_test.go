package mappings

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/mdo/internal/mapping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repositories(t *testing.T) map[string]Repository {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "mdo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Repository{
		"memory": NewMemoryRepository(),
		"sqlite": sqlite,
	}
}

func TestRepository_SaveListDelete(t *testing.T) {
	ctx := context.Background()
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			entries := []Entry{
				{FileName: "run.csv", TemplateID: "illumina-ngs-run-v1.2", Mapping: mapping.Mapping{"Run_ID": "run"}},
				{TemplateID: "10x-single-cell-v2.0", Mapping: mapping.Mapping{}},
			}

			first, err := repo.Save(ctx, "  weekly  ", entries)
			require.NoError(t, err)
			assert.NotEmpty(t, first.ID)
			assert.Equal(t, "weekly", first.Name)
			assert.False(t, first.CreatedAt.IsZero())

			second, err := repo.Save(ctx, "adhoc", nil)
			require.NoError(t, err)

			all, err := repo.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, first.ID, all[0].ID)
			assert.Equal(t, entries, all[0].Mappings)
			assert.Empty(t, all[1].Mappings)

			require.NoError(t, repo.Delete(ctx, second.ID))
			assert.ErrorIs(t, repo.Delete(ctx, second.ID), ErrNotFound)

			all, err = repo.List(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestRepository_RejectsEmptyName(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.Save(context.Background(), " ", nil)
			assert.ErrorIs(t, err, ErrEmptyName)
		})
	}
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	saved, err := repo.Save(ctx, "x", []Entry{{Mapping: mapping.Mapping{"A": "a"}}})
	require.NoError(t, err)

	saved.Mappings[0].Mapping["A"] = "changed"
	all, _ := repo.List(ctx)
	assert.Equal(t, "a", all[0].Mappings[0].Mapping["A"])
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	old, _ := repo.Save(ctx, "Weekly", nil)
	newer, _ := repo.Save(ctx, "weekly", nil)

	got, err := Lookup(ctx, repo, "WEEKLY")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)

	got, err = Lookup(ctx, repo, old.ID)
	require.NoError(t, err)
	assert.Equal(t, old.ID, got.ID)

	_, err = Lookup(ctx, repo, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEntriesFromAndApply(t *testing.T) {
	src := mapping.NewStore()
	src.AddFiles(mapping.NewFile("run.csv", nil), mapping.NewFile("cells.csv", nil))
	src.SetTemplate("run.csv", "illumina-ngs-run-v1.2")
	src.MapField("run.csv", "Run_ID", "run")
	src.SetTemplate("cells.csv", "10x-single-cell-v2.0")
	src.MapField("cells.csv", "Library_ID", "lib")

	cfg := Config{Name: "saved", Mappings: EntriesFrom(src.FileMappings())}

	dst := mapping.NewStore()
	dst.AddFiles(
		mapping.NewFile("run.csv", nil),
		mapping.NewFile("other.csv", nil),
		mapping.NewFile("unrelated.csv", nil),
	)
	dst.SetTemplate("other.csv", "10x-single-cell-v2.0")

	applied := Apply(dst, cfg)
	assert.Equal(t, []string{"run.csv", "other.csv"}, applied)

	fm, _ := dst.Get("run.csv")
	assert.Equal(t, "illumina-ngs-run-v1.2", fm.TemplateID)
	assert.Equal(t, mapping.Mapping{"Run_ID": "run"}, fm.Mapping)

	fm, _ = dst.Get("other.csv")
	assert.Equal(t, mapping.Mapping{"Library_ID": "lib"}, fm.Mapping)

	fm, _ = dst.Get("unrelated.csv")
	assert.Empty(t, fm.TemplateID)
	assert.Empty(t, fm.Mapping)
}

func TestApply_ReplacesExistingMapping(t *testing.T) {
	store := mapping.NewStore()
	store.AddFiles(mapping.NewFile("run.csv", nil))
	store.SetTemplate("run.csv", "illumina-ngs-run-v1.2")
	store.MapField("run.csv", "Lane", "old_lane")

	cfg := Config{Name: "saved", Mappings: []Entry{
		{FileName: "run.csv", TemplateID: "illumina-ngs-run-v1.2", Mapping: mapping.Mapping{"Run_ID": "run"}},
	}}
	Apply(store, cfg)

	fm, _ := store.Get("run.csv")
	assert.Equal(t, mapping.Mapping{"Run_ID": "run"}, fm.Mapping)
}
