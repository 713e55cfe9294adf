package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freewebtopdf/logfilters/internal/conflict"
	"github.com/freewebtopdf/logfilters/internal/domain"
	"github.com/freewebtopdf/logfilters/internal/loader"
	"github.com/freewebtopdf/logfilters/internal/settings"
)

func rule(pattern, bg string) domain.Rule {
	return domain.NewStyledRule(pattern, false, "black", bg)
}

func writeSource(t *testing.T, path string, rules ...domain.Rule) {
	t.Helper()
	require.NoError(t, loader.WriteFilterFile(path, rules))
}

func patterns(src *Source) []string {
	var out []string
	for _, r := range src.Rules.Rules() {
		out = append(out, r.Pattern)
	}
	return out
}

func failDecider(t *testing.T) conflict.Decider {
	return conflict.DeciderFunc(func(c conflict.ExternalChange) bool {
		t.Fatalf("unexpected reload question for %s", c.Filename)
		return false
	})
}

func TestRegistry_AutoDirectoryScenario(t *testing.T) {
	autoDir := t.TempDir()
	team := filepath.Join(autoDir, "team.conf")
	writeSource(t, team, rule("ERROR", "red"))

	r := New(autoDir)
	s := settings.NewMemory()
	require.NoError(t, r.Retrieve(context.Background(), s, failDecider(t)))

	require.Equal(t, 1, r.Len())
	src := r.Source(0)
	assert.Equal(t, team, src.Name)
	assert.False(t, src.Missing)
	assert.True(t, src.Auto)
	assert.Equal(t, 1, src.Rules.Len())

	r.Save(s)
	assert.Equal(t, 1, s.Int("LoadedFilterSets/version", 0))
	assert.Equal(t, 0, s.Int("LoadedFilterSets/sets/size", -1))
	assert.False(t, s.Contains("LoadedFilterSets/sets/1/filename"))
}

func TestRegistry_SaveAndRetrieve(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.conf")
	b := filepath.Join(dir, "b.conf")
	writeSource(t, a, rule("ERROR", "red"), rule("WARN", "yellow"))
	writeSource(t, b, rule("DEBUG", "grey"))

	r := New(filepath.Join(dir, "auto"))
	idA, err := r.Import(a)
	require.NoError(t, err)
	idB, err := r.Import(b)
	require.NoError(t, err)
	assert.Equal(t, 0, idA)
	assert.Equal(t, 1, idB)

	s := settings.NewMemory()
	r.Save(s)
	assert.Equal(t, a, s.String("LoadedFilterSets/sets/1/filename", ""))
	assert.Equal(t, "WARN", s.String("LoadedFilterSets/sets/1/FilterSet/filters/2/regexp", ""))

	reloaded := New(filepath.Join(dir, "auto"))
	require.NoError(t, reloaded.Retrieve(context.Background(), s, failDecider(t)))
	require.Equal(t, 2, reloaded.Len())
	assert.Equal(t, []string{"ERROR", "WARN"}, patterns(reloaded.Source(0)))
	assert.Equal(t, []string{"DEBUG"}, patterns(reloaded.Source(1)))

	id, ok := reloaded.Find(b)
	assert.True(t, ok)
	assert.Equal(t, 1, id)
}

func TestRegistry_ExternalChange(t *testing.T) {
	tests := []struct {
		name   string
		accept bool
		want   []string
	}{
		{"accept reloads from disk", true, []string{"ERROR", "FATAL"}},
		{"decline keeps saved copy", false, []string{"ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "team.conf")
			writeSource(t, path, rule("ERROR", "red"))

			r := New("")
			_, err := r.Import(path)
			require.NoError(t, err)
			s := settings.NewMemory()
			r.Save(s)

			writeSource(t, path, rule("ERROR", "red"), rule("FATAL", "red"))

			var asked []conflict.ExternalChange
			decider := conflict.DeciderFunc(func(c conflict.ExternalChange) bool {
				asked = append(asked, c)
				return tt.accept
			})

			reloaded := New("")
			require.NoError(t, reloaded.Retrieve(context.Background(), s, decider))
			require.Len(t, asked, 1)
			assert.Equal(t, path, asked[0].Filename)
			assert.Contains(t, asked[0].Diff, `+"FATAL"`)
			assert.Equal(t, tt.want, patterns(reloaded.Source(0)))
			assert.False(t, reloaded.Source(0).Dirty())
		})
	}
}

func TestRegistry_MissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.conf")
	writeSource(t, path, rule("ERROR", "red"))

	r := New("")
	_, err := r.Import(path)
	require.NoError(t, err)
	s := settings.NewMemory()
	r.Save(s)
	require.NoError(t, os.Remove(path))

	reloaded := New("")
	require.NoError(t, reloaded.Retrieve(context.Background(), s, failDecider(t)))
	require.Equal(t, 1, reloaded.Len())
	assert.True(t, reloaded.Source(0).Missing)
	assert.Equal(t, 0, reloaded.Source(0).Rules.Len())
	assert.Empty(t, reloaded.LoadErrors())
}

func TestRegistry_UnreadableFileIsLoadError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "team.conf")
	writeSource(t, path, rule("ERROR", "red"))

	r := New("")
	_, err := r.Import(path)
	require.NoError(t, err)
	s := settings.NewMemory()
	r.Save(s)
	require.NoError(t, os.WriteFile(path, []byte("version = 3\n"), 0644))

	reloaded := New("")
	require.NoError(t, reloaded.Retrieve(context.Background(), s, failDecider(t)))
	require.Equal(t, 1, reloaded.Len())
	assert.True(t, reloaded.Source(0).Missing)

	loadErrors := reloaded.LoadErrors()
	require.Len(t, loadErrors, 1)
	assert.Equal(t, path, loadErrors[0].FilePath)

	// A new Retrieve starts from a clean slate
	require.NoError(t, reloaded.Retrieve(context.Background(), settings.NewMemory(), nil))
	assert.Empty(t, reloaded.LoadErrors())
}

func TestRegistry_UnknownVersionIsSkipped(t *testing.T) {
	s := settings.NewMemory()
	s.SetValue("LoadedFilterSets/version", 2)
	s.SetValue("LoadedFilterSets/sets/1/filename", "/x.conf")
	s.SetValue("LoadedFilterSets/sets/size", 1)

	r := New("")
	require.NoError(t, r.Retrieve(context.Background(), s, failDecider(t)))
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, "", s.Group())
	assert.True(t, r.UnknownVersion())

	// Saving leaves the stored group as it was
	r.Save(s)
	assert.Equal(t, 2, s.Int("LoadedFilterSets/version", 0))
	assert.Equal(t, "/x.conf", s.String("LoadedFilterSets/sets/1/filename", ""))
}

func TestRegistry_DuplicateEntriesSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.conf")
	writeSource(t, path, rule("ERROR", "red"))

	s := settings.NewMemory()
	s.SetValue("LoadedFilterSets/version", 1)
	s.SetValue("LoadedFilterSets/sets/1/filename", path)
	s.SetValue("LoadedFilterSets/sets/2/filename", path)
	s.SetValue("LoadedFilterSets/sets/size", 2)

	r := New("")
	require.NoError(t, r.Retrieve(context.Background(), s, failDecider(t)))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Cancelled(t *testing.T) {
	s := settings.NewMemory()
	s.SetValue("LoadedFilterSets/version", 1)
	s.SetValue("LoadedFilterSets/sets/1/filename", "/x.conf")
	s.SetValue("LoadedFilterSets/sets/size", 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New("").Retrieve(ctx, s, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "", s.Group())
}

func TestRegistry_Import(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.conf")
	writeSource(t, path, rule("ERROR", "red"))

	r := New("")
	id, err := r.Import(path)
	require.NoError(t, err)

	again, err := r.Import(path)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, r.Len())

	_, err = r.Import(filepath.Join(dir, "none.conf"))
	require.Error(t, err)
	assert.True(t, loader.IsMissing(err))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Resolve(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.conf")
	writeSource(t, present, rule("ERROR", "red"))

	r := New("")
	id := r.Resolve(present)
	assert.Equal(t, 0, id)
	assert.False(t, r.Source(id).Missing)
	assert.Equal(t, 1, r.Source(id).Rules.Len())
	assert.Equal(t, id, r.Resolve(present))

	missing := r.Resolve(filepath.Join(dir, "missing.conf"))
	assert.Equal(t, 1, missing)
	assert.True(t, r.Source(missing).Missing)
}

func TestRegistry_Remove(t *testing.T) {
	r := New("")
	r.add(NewMissingSource("/a.conf"))
	r.add(NewMissingSource("/b.conf"))
	r.add(NewMissingSource("/c.conf"))

	require.True(t, r.Remove(1))
	assert.False(t, r.Remove(5))
	assert.Equal(t, 2, r.Len())

	id, ok := r.Find("/c.conf")
	assert.True(t, ok)
	assert.Equal(t, 1, id)
	_, ok = r.Find("/b.conf")
	assert.False(t, ok)
	assert.Nil(t, r.Source(2))
}

func TestRegistry_WriteDirty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.conf")
	writeSource(t, path, rule("ERROR", "red"))

	r := New("")
	id, err := r.Import(path)
	require.NoError(t, err)
	missing := r.Resolve(filepath.Join(dir, "missing.conf"))

	src := r.Source(id)
	src.Rules.At(0).Pattern = "FATAL"
	src.MarkDirty()
	r.Source(missing).Rules.Append(rule("orphan", "red"))
	r.Source(missing).MarkDirty()

	require.NoError(t, r.WriteDirty(context.Background()))
	assert.False(t, src.Dirty())

	rules, err := loader.ReadFilterFile(path)
	require.NoError(t, err)
	assert.Equal(t, "FATAL", rules[0].Pattern)

	_, err = os.Stat(filepath.Join(dir, "missing.conf"))
	assert.True(t, os.IsNotExist(err))
}

func TestRegistry_Summaries(t *testing.T) {
	autoDir := t.TempDir()
	writeSource(t, filepath.Join(autoDir, "team.conf"), rule("ERROR", "red"), rule("WARN", "yellow"))

	r := New(autoDir)
	require.NoError(t, r.Retrieve(context.Background(), settings.NewMemory(), nil))
	r.Resolve("/nowhere/x.conf")

	assert.Equal(t, []Summary{
		{ID: 0, Name: filepath.Join(autoDir, "team.conf"), RuleCount: 2, Auto: true},
		{ID: 1, Name: "/nowhere/x.conf", Missing: true},
	}, r.Summaries())
	assert.Equal(t, autoDir, r.AutoDir())
}

func TestSource_Placeholder(t *testing.T) {
	src := NewMissingSource("/x.conf")
	src.Rules.Grow(2)
	src.Rules.Append(rule("a", "red"))

	assert.True(t, src.Placeholder(0))
	assert.False(t, src.Placeholder(2))
	assert.False(t, src.Placeholder(7))
}
