// Package conflict decides what happens when a filter file was edited on disk
// since its content was last persisted alongside the working set.
package conflict

import (
	"fmt"

	"github.com/freewebtopdf/logfilters/internal/domain"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// ExternalChange describes a filter file whose on-disk rules differ from the
// copy persisted in the settings store
type ExternalChange struct {
	Filename  string        `json:"filename"`
	Persisted []domain.Rule `json:"persisted"`
	Fresh     []domain.Rule `json:"fresh"`
	Diff      string        `json:"diff"`
}

// NewExternalChange builds the change record, including a unified diff of
// the persisted rules against the on-disk ones
func NewExternalChange(filename string, persisted, fresh []domain.Rule) ExternalChange {
	return ExternalChange{
		Filename:  filename,
		Persisted: persisted,
		Fresh:     fresh,
		Diff:      Diff(filename, persisted, fresh),
	}
}

// Diff renders a unified diff between two rule lists, one rule per line
func Diff(filename string, before, after []domain.Rule) string {
	u := difflib.UnifiedDiff{
		A:        FormatRules(before),
		B:        FormatRules(after),
		FromFile: filename + " (saved)",
		ToFile:   filename + " (on disk)",
		Context:  3,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return ""
	}
	return s
}

// FormatRules returns one newline-terminated line per rule
func FormatRules(rules []domain.Rule) []string {
	lines := make([]string, len(rules))
	for i := range rules {
		flag := ""
		if rules[i].IgnoreCase {
			flag = " (?i)"
		}
		lines[i] = fmt.Sprintf("%q%s %s/%s\n", rules[i].Pattern, flag, rules[i].Foreground, rules[i].Background)
	}
	return lines
}

// Equal reports whether two rule lists hold the same patterns, case flags
// and colors in the same order
func Equal(a, b []domain.Rule) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].SameContent(b[i]) || a[i].IgnoreCase != b[i].IgnoreCase {
			return false
		}
	}
	return true
}
