// Package registry keeps the filter files known to an editing session.
// Each file is a Source addressed by its position in the registry; the
// filename is the identity that survives across sessions.
package registry

import (
	"github.com/freewebtopdf/logfilters/internal/domain"
	"github.com/freewebtopdf/logfilters/internal/matcher"
)

// Source is one file-backed rule list. A missing source could not be read
// when the session was loaded; its rules are then rebuilt from the working
// set entries that still refer to it, and it is never written back.
type Source struct {
	Name    string
	Rules   *matcher.RuleList
	Missing bool
	Auto    bool

	dirty bool
}

// NewSource creates a present source holding rules
func NewSource(name string, rules []domain.Rule) *Source {
	return &Source{Name: name, Rules: matcher.NewRuleList(rules...)}
}

// NewMissingSource creates a placeholder for a file that is not available
func NewMissingSource(name string) *Source {
	return &Source{Name: name, Rules: matcher.NewRuleList(), Missing: true}
}

// Dirty reports whether rules were changed since the file was read
func (s *Source) Dirty() bool {
	return s.dirty
}

// MarkDirty flags the source for rewriting at commit
func (s *Source) MarkDirty() {
	s.dirty = true
}

// Placeholder reports whether the rule at offset only pads a missing source
func (s *Source) Placeholder(offset int) bool {
	r := s.Rules.At(offset)
	return r != nil && r.Pattern == "" && r.Foreground == "" && r.Background == ""
}

// Summary describes a source for listings
type Summary struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	RuleCount int    `json:"rule_count"`
	Missing   bool   `json:"missing"`
	Auto      bool   `json:"auto"`
	Dirty     bool   `json:"dirty"`
}
