// Package loader reads and writes rule lists in the settings store layout:
// the FilterSet group used by the working set and by each registry entry,
// and standalone filter files that wrap that group in an outer version.
package loader

import (
	"errors"

	"github.com/freewebtopdf/logfilters/internal/domain"
	"github.com/freewebtopdf/logfilters/internal/settings"
)

const (
	// FilterSetGroup is the group holding one versioned rule list
	FilterSetGroup = "FilterSet"
	// FilterSetVersion is the only FilterSet layout this package understands
	FilterSetVersion = 1
	// FileVersion is the outer version marker of a standalone filter file
	FileVersion = 1

	filtersArray = "filters"
)

// ErrNoFilterSet is returned when no versioned FilterSet group exists at the
// current settings position
var ErrNoFilterSet = errors.New("no versioned FilterSet group")

// Record is one stored rule with its origin given by source filename
type Record struct {
	Rule   domain.Rule
	Origin string // empty when the rule has no origin
	Offset int    // -1 when absent
}

// HasFilterSet reports whether a versioned FilterSet group exists at the
// current settings position
func HasFilterSet(s *settings.Settings) bool {
	return s.Contains(FilterSetGroup + "/version")
}

// ReadFilterSet reads the FilterSet group at the current settings position
func ReadFilterSet(s *settings.Settings) ([]Record, error) {
	if !HasFilterSet(s) {
		return nil, ErrNoFilterSet
	}

	s.BeginGroup(FilterSetGroup)
	defer s.EndGroup()

	if version := s.Int("version", 0); version != FilterSetVersion {
		raw, _ := s.Value("version")
		return nil, domain.NewAppError(
			domain.ErrSchemaMismatch,
			"Unknown FilterSet version",
			422,
			map[string]any{"file": s.FileName(), "group": s.Group(), "version": raw},
		)
	}

	size := s.BeginReadArray(filtersArray)
	records := make([]Record, 0, size)
	for i := 0; i < size; i++ {
		s.SetArrayIndex(i)
		rule := domain.NewStyledRule(
			s.String("regexp", ""),
			s.Bool("ignore_case", false),
			s.String("fore_colour", domain.DefaultForeground),
			s.String("back_colour", domain.DefaultBackground),
		)
		records = append(records, Record{
			Rule:   rule,
			Origin: s.String("origin", ""),
			Offset: s.Int("loaded_offset", -1),
		})
	}
	s.EndArray()

	return records, nil
}

// WriteFilterSet replaces the FilterSet group at the current settings
// position. Origin fields are written only when withOrigin is set.
func WriteFilterSet(s *settings.Settings, records []Record, withOrigin bool) {
	s.BeginGroup(FilterSetGroup)
	defer s.EndGroup()

	// Clear stale entries left by a longer list
	s.Remove("")
	s.SetValue("version", FilterSetVersion)

	s.BeginWriteArray(filtersArray)
	for i, rec := range records {
		s.SetArrayIndex(i)
		s.SetValue("regexp", rec.Rule.Pattern)
		s.SetValue("ignore_case", rec.Rule.IgnoreCase)
		s.SetValue("fore_colour", rec.Rule.Foreground)
		s.SetValue("back_colour", rec.Rule.Background)
		if withOrigin {
			s.SetValue("origin", rec.Origin)
			s.SetValue("loaded_offset", rec.Offset)
		}
	}
	s.EndArray()
}

// Records wraps rules without origin
func Records(rules []domain.Rule) []Record {
	out := make([]Record, len(rules))
	for i := range rules {
		out[i] = Record{Rule: rules[i].WithoutOrigin(), Offset: -1}
	}
	return out
}

// Rules unwraps records, discarding their origin fields
func Rules(records []Record) []domain.Rule {
	out := make([]domain.Rule, len(records))
	for i := range records {
		out[i] = records[i].Rule.WithoutOrigin()
	}
	return out
}
