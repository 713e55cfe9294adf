package workingset

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/freewebtopdf/logfilters/internal/domain"
	"github.com/freewebtopdf/logfilters/internal/loader"
	"github.com/freewebtopdf/logfilters/internal/registry"
	"github.com/freewebtopdf/logfilters/internal/settings"
)

const sourceSize = 6

// writeSourceFile creates a filter file with sourceSize rules
func writeSourceFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "team.conf")
	rules := make([]domain.Rule, sourceSize)
	for i := range rules {
		rules[i] = rule(fmt.Sprintf("S%d", i), "red")
	}
	require.NoError(t, loader.WriteFilterFile(path, rules))
	return path
}

// build creates a working set holding local rules interleaved with rules
// adopted from the source at path. Every adopted offset is used once.
func build(path string, locals []string, offsets []int) (*WorkingSet, error) {
	reg := registry.New("")
	src, err := reg.Import(path)
	if err != nil {
		return nil, err
	}
	ws := New(reg)

	seen := make(map[int]bool)
	for i := 0; i < len(locals) || i < len(offsets); i++ {
		if i < len(locals) {
			ws.Add(rule(locals[i], "white"))
		}
		if i < len(offsets) && !seen[offsets[i]] {
			seen[offsets[i]] = true
			if _, err := ws.Adopt(src, offsets[i]); err != nil {
				return nil, err
			}
		}
	}
	return ws, nil
}

func bindings(ws *WorkingSet) map[string]domain.Origin {
	out := make(map[string]domain.Origin)
	for _, e := range ws.Entries() {
		if e.Rule.Origin != nil {
			out[e.ID] = *e.Rule.Origin
		}
	}
	return out
}

func genOffsets() gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, sourceSize-1))
}

func genLocals() gopter.Gen {
	return gen.SliceOf(gen.AlphaString())
}

// sameEntries compares rules, origins and drift flags position by position
func sameEntries(before, after []Entry) bool {
	if len(before) != len(after) {
		return false
	}
	for i := range before {
		b, a := before[i].Rule, after[i].Rule
		if !b.SameContent(a) || b.IgnoreCase != a.IgnoreCase || b.HasOrigin() != a.HasOrigin() {
			return false
		}
		if b.HasOrigin() && *b.Origin != *a.Origin {
			return false
		}
		if before[i].Modified != after[i].Modified {
			return false
		}
	}
	return true
}

// Feature: logfilters, Property 9: Working set round trip
func TestProperty_WorkingSetRoundTrip(t *testing.T) {
	path := writeSourceFile(t)
	properties := gopter.NewProperties(nil)

	properties.Property("For any working set, save then retrieve reproduces its rules and origins", prop.ForAll(
		func(locals []string, offsets []int, edits []string) bool {
			ws, err := build(path, locals, offsets)
			if err != nil {
				return false
			}
			for i, p := range edits {
				if i >= ws.Len() {
					break
				}
				pattern := p
				if _, err := ws.Update(i, domain.RuleEdit{Pattern: &pattern}); err != nil {
					return false
				}
			}

			s := settings.NewMemory()
			ws.Registry().Save(s)
			ws.Save(s)

			reg := registry.New("")
			if err := reg.Retrieve(context.Background(), s, nil); err != nil {
				return false
			}
			reloaded := New(reg)
			if err := reloaded.Retrieve(s); err != nil {
				return false
			}

			return sameEntries(ws.Entries(), reloaded.Entries())
		},
		genLocals(),
		genOffsets(),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: logfilters, Property 19: Working set round trip through an INI file
func TestProperty_WorkingSetFileRoundTrip(t *testing.T) {
	path := writeSourceFile(t)
	dir := t.TempDir()
	properties := gopter.NewProperties(nil)

	patterns := gen.OneGenOf(
		gen.AnyString(),
		gen.OneConstOf(`"ERROR"`, `'quoted'`, "  padded ", "a`b", `\d+ #x; y=z`),
	)

	properties.Property("For any working set, commit to a .conf file then reopen reproduces its rules and origins", prop.ForAll(
		func(locals []string, offsets []int, edits []string) bool {
			ws, err := build(path, locals, offsets)
			if err != nil {
				return false
			}
			for i, p := range edits {
				if i >= ws.Len() {
					break
				}
				pattern := p
				if _, err := ws.Update(i, domain.RuleEdit{Pattern: &pattern}); err != nil {
					return false
				}
			}

			storePath := filepath.Join(dir, "store.conf")
			s, err := settings.Create(storePath)
			if err != nil {
				return false
			}
			ws.Registry().Save(s)
			ws.Save(s)
			if err := s.Sync(); err != nil {
				return false
			}

			reopened, err := settings.Open(storePath)
			if err != nil {
				return false
			}
			reg := registry.New("")
			if err := reg.Retrieve(context.Background(), reopened, nil); err != nil {
				return false
			}
			reloaded := New(reg)
			if err := reloaded.Retrieve(reopened); err != nil {
				return false
			}
			return sameEntries(ws.Entries(), reloaded.Entries())
		},
		gen.SliceOf(patterns),
		genOffsets(),
		gen.SliceOf(patterns),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: logfilters, Property 10: Move preserves origin
func TestProperty_MovePreservesOrigin(t *testing.T) {
	path := writeSourceFile(t)
	properties := gopter.NewProperties(nil)

	properties.Property("For any move, the moved entry keeps its origin and no binding changes", prop.ForAll(
		func(locals []string, offsets []int, from, to int) bool {
			ws, err := build(path, locals, offsets)
			if err != nil {
				return false
			}
			if ws.Len() == 0 {
				return true
			}
			from, to = from%ws.Len(), to%ws.Len()

			moved := ws.Entries()[from]
			before := bindings(ws)
			if err := ws.Move(from, to); err != nil {
				return false
			}

			now := ws.Entries()[to]
			if now.ID != moved.ID {
				return false
			}
			if moved.Rule.HasOrigin() && (now.Rule.Origin == nil || *now.Rule.Origin != *moved.Rule.Origin) {
				return false
			}

			after := bindings(ws)
			if len(after) != len(before) {
				return false
			}
			for id, o := range before {
				if after[id] != o {
					return false
				}
			}
			return true
		},
		genLocals(),
		genOffsets(),
		gen.IntRange(0, 100),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: logfilters, Property 11: Remove shifts references
func TestProperty_RemoveShiftsReferences(t *testing.T) {
	path := writeSourceFile(t)
	properties := gopter.NewProperties(nil)

	properties.Property("For any removal at k, references above k move down by one and pairs are untouched", prop.ForAll(
		func(locals []string, offsets []int, k int) bool {
			ws, err := build(path, locals, offsets)
			if err != nil {
				return false
			}
			if ws.Len() == 0 {
				return true
			}
			k %= ws.Len()

			refsBefore, err := ws.References(0)
			if err != nil {
				return false
			}
			removed := ws.Entries()[k]
			bindingsBefore := bindings(ws)

			if _, err := ws.Remove(k); err != nil {
				return false
			}

			refsAfter, err := ws.References(0)
			if err != nil {
				return false
			}
			for off := range refsBefore {
				was, now := refsBefore[off].WorkingIndex, refsAfter[off].WorkingIndex
				switch {
				case was == k:
					if now != -1 {
						return false
					}
				case was > k:
					if now != was-1 {
						return false
					}
				default:
					if now != was {
						return false
					}
				}
			}

			for id, o := range bindings(ws) {
				if id == removed.ID || bindingsBefore[id] != o {
					return false
				}
			}
			return true
		},
		genLocals(),
		genOffsets(),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: logfilters, Property 12: Drift detection
func TestProperty_DriftDetection(t *testing.T) {
	path := writeSourceFile(t)
	properties := gopter.NewProperties(nil)

	properties.Property("For any adopted entry, an edit marks drift, undo restores and save propagates", prop.ForAll(
		func(offset int, pattern string, save bool) bool {
			ws, err := build(path, nil, []int{offset})
			if err != nil {
				return false
			}
			original, _ := ws.Rule(0)

			newPattern := original.Pattern + "-" + pattern
			if _, err := ws.Update(0, domain.RuleEdit{Pattern: &newPattern}); err != nil {
				return false
			}
			if !ws.Modified(0) {
				return false
			}

			src := ws.Registry().Source(0)
			if save {
				if err := ws.SaveChange(0); err != nil {
					return false
				}
				return !ws.Modified(0) && src.Rules.At(offset).Pattern == newPattern && src.Dirty()
			}

			if err := ws.UndoChange(0); err != nil {
				return false
			}
			got, _ := ws.Rule(0)
			return !ws.Modified(0) && got.Pattern == original.Pattern && src.Rules.At(offset).Pattern == original.Pattern && !src.Dirty()
		},
		gen.IntRange(0, sourceSize-1),
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: logfilters, Property 13: Missing sources host orphaned rules
func TestProperty_MissingSourceGrowth(t *testing.T) {
	dir := t.TempDir()
	properties := gopter.NewProperties(nil)

	properties.Property("For any offset against a missing source, the source grows to hold the entry's own data", prop.ForAll(
		func(offset int, pattern string) bool {
			s := settings.NewMemory()
			origin := filepath.Join(dir, "missing.conf")
			stored := rule("P"+pattern, "red")
			loader.WriteFilterSet(s, []loader.Record{{Rule: stored, Origin: origin, Offset: offset}}, true)

			reg := registry.New("")
			ws := New(reg)
			if err := ws.Retrieve(s); err != nil {
				return false
			}

			src := reg.Source(0)
			if src == nil || !src.Missing || src.Rules.Len() != offset+1 {
				return false
			}
			got := ws.Rules()[0]
			return src.Rules.At(offset).SameContent(stored) &&
				got.Origin != nil && got.Origin.Offset == offset &&
				!ws.Modified(0)
		},
		gen.IntRange(0, 50),
		gen.AlphaString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
