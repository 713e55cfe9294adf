// Package workingset holds the editable, ordered rule list of a session.
// Entries may be bound to a rule of a registry source by (source, offset);
// the binding is reconciled against the registry whenever the list is
// loaded, and drift between an entry and its source rule can be pushed back
// to the source or undone.
package workingset

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freewebtopdf/logfilters/internal/domain"
	"github.com/freewebtopdf/logfilters/internal/legacy"
	"github.com/freewebtopdf/logfilters/internal/loader"
	"github.com/freewebtopdf/logfilters/internal/registry"
	"github.com/freewebtopdf/logfilters/internal/settings"
)

type entry struct {
	id   string
	rule domain.Rule
}

func newEntry(rule domain.Rule) *entry {
	return &entry{id: uuid.New().String(), rule: rule}
}

// Entry is a snapshot of one working rule
type Entry struct {
	ID       string      `json:"id"`
	Index    int         `json:"index"`
	Rule     domain.Rule `json:"rule"`
	Modified bool        `json:"modified"`
}

// Reference describes one rule of a source and the working entry adopted
// from it, if any
type Reference struct {
	Offset       int         `json:"offset"`
	WorkingIndex int         `json:"working_index"` // -1 when no entry is bound
	Modified     bool        `json:"modified"`
	Rule         domain.Rule `json:"rule"`
}

// WorkingSet is the ordered list of working rules. Positions shift on
// insert, remove and move; bindings to sources travel with their entry.
type WorkingSet struct {
	entries  []*entry
	registry *registry.Registry
	logger   zerolog.Logger

	// unknownVersion is set when the stored FilterSet could not be read;
	// Save then leaves it untouched
	unknownVersion bool
}

// New creates an empty working set resolving origins against reg
func New(reg *registry.Registry) *WorkingSet {
	return &WorkingSet{
		registry: reg,
		logger:   log.With().Str("component", "workingset").Logger(),
	}
}

// Registry returns the registry the working set is bound to
func (w *WorkingSet) Registry() *registry.Registry {
	return w.registry
}

// Len returns the number of working rules
func (w *WorkingSet) Len() int {
	return len(w.entries)
}

// Rules returns a copy of the working rules in match order
func (w *WorkingSet) Rules() []domain.Rule {
	out := make([]domain.Rule, len(w.entries))
	for i, e := range w.entries {
		out[i] = e.rule.Clone()
	}
	return out
}

// Entries returns a snapshot of every entry with its drift status
func (w *WorkingSet) Entries() []Entry {
	out := make([]Entry, len(w.entries))
	for i, e := range w.entries {
		out[i] = Entry{
			ID:       e.id,
			Index:    i,
			Rule:     e.rule.Clone(),
			Modified: w.modified(e),
		}
	}
	return out
}

// Rule returns a copy of the rule at index
func (w *WorkingSet) Rule(index int) (domain.Rule, error) {
	e, err := w.at("get", index)
	if err != nil {
		return domain.Rule{}, err
	}
	return e.rule.Clone(), nil
}

// Match returns the style of the first working rule matching line
func (w *WorkingSet) Match(line string) (domain.Style, int, bool) {
	for i, e := range w.entries {
		if e.rule.Matches(line) {
			return e.rule.Style(), i, true
		}
	}
	return domain.Style{}, -1, false
}

func (w *WorkingSet) at(op string, index int) (*entry, error) {
	if index < 0 || index >= len(w.entries) {
		return nil, domain.NewAppError(
			domain.ErrNotFound,
			"Rule index out of range",
			404,
			map[string]any{"operation": op, "index": index, "size": len(w.entries)},
		)
	}
	return w.entries[index], nil
}

func (w *WorkingSet) source(op string, id int) (*registry.Source, error) {
	src := w.registry.Source(id)
	if src == nil {
		return nil, domain.NewAppError(
			domain.ErrNotFound,
			"Unknown filter source",
			404,
			map[string]any{"operation": op, "source": id, "sources": w.registry.Len()},
		)
	}
	return src, nil
}

// sourceRule returns the source rule an entry is bound to, or nil
func (w *WorkingSet) sourceRule(e *entry) (*registry.Source, *domain.Rule) {
	o := e.rule.Origin
	if o == nil {
		return nil, nil
	}
	src := w.registry.Source(o.Source)
	if src == nil {
		return nil, nil
	}
	return src, src.Rules.At(o.Offset)
}

func (w *WorkingSet) modified(e *entry) bool {
	_, sr := w.sourceRule(e)
	return sr != nil && !sr.SameContent(e.rule)
}

// activeIndex returns the position of the entry bound to (source, offset),
// or -1
func (w *WorkingSet) activeIndex(source, offset int) int {
	for i, e := range w.entries {
		if o := e.rule.Origin; o != nil && o.Source == source && o.Offset == offset {
			return i
		}
	}
	return -1
}

// Retrieve replaces the working set with the one stored in s. Origins are
// resolved by filename against the registry, which must be retrieved first.
// A store holding only the legacy blob is migrated and written back at once.
func (w *WorkingSet) Retrieve(s *settings.Settings) error {
	w.entries = nil
	w.unknownVersion = false

	if loader.HasFilterSet(s) {
		records, err := loader.ReadFilterSet(s)
		if err != nil {
			w.logger.Error().
				Err(err).
				Str("file", s.FileName()).
				Str("code", domain.ErrSchemaMismatch).
				Msg("Unknown version of FilterSet, ignoring it")
			w.unknownVersion = true
			return nil
		}
		for i, rec := range records {
			w.restore(i, rec)
		}
		w.logger.Debug().Int("rules", len(w.entries)).Msg("Filter set retrieved")
		return nil
	}

	if !s.Contains(legacy.Key) {
		return nil
	}

	w.logger.Warn().Str("file", s.FileName()).Msg("Trying to import legacy filters")
	data, ok := s.Bytes(legacy.Key)
	if !ok {
		w.logger.Error().Str("file", s.FileName()).Msg("Legacy filter set is not binary data, leaving it in place")
		return nil
	}
	rules, err := legacy.Decode(data)
	if err != nil {
		w.logger.Error().Err(err).Str("file", s.FileName()).Msg("Legacy filter set is unreadable, leaving it in place")
		return nil
	}
	for _, r := range rules {
		w.entries = append(w.entries, newEntry(r))
	}
	w.logger.Warn().Int("count", len(rules)).Msg("Imported legacy filter set")

	s.Remove(legacy.Key)
	w.Save(s)
	return s.Sync()
}

// restore appends one stored record, binding its origin when it is valid
func (w *WorkingSet) restore(index int, rec loader.Record) {
	rule := rec.Rule.WithoutOrigin()
	logEvent := func() *zerolog.Event {
		return w.logger.Warn().Int("index", index).Str("pattern", rule.Pattern)
	}

	if rec.Origin == "" {
		if rec.Offset >= 0 {
			logEvent().
				Int("loaded_offset", rec.Offset).
				Str("code", domain.ErrConflictOrigin).
				Msg("Filter has a loaded offset but no origin, dropping the offset")
		}
		w.entries = append(w.entries, newEntry(rule))
		return
	}

	id := w.registry.Resolve(rec.Origin)
	src := w.registry.Source(id)
	offset := rec.Offset

	switch {
	case offset < 0:
		logEvent().
			Str("origin", rec.Origin).
			Int("loaded_offset", offset).
			Str("code", domain.ErrOffsetOutOfRange).
			Msg("Filter has an invalid offset, dropping its origin")
		w.entries = append(w.entries, newEntry(rule))
		return
	case src.Missing && offset >= src.Rules.Len():
		// Keep the orphaned content in the placeholder source
		src.Rules.Grow(offset)
		src.Rules.Append(rule.Clone())
	case src.Missing && src.Placeholder(offset):
		src.Rules.Set(offset, rule.Clone())
	case offset >= src.Rules.Len():
		logEvent().
			Str("origin", rec.Origin).
			Int("loaded_offset", offset).
			Int("source_size", src.Rules.Len()).
			Str("code", domain.ErrOffsetOutOfRange).
			Msg("Filter has an invalid offset, dropping its origin")
		w.entries = append(w.entries, newEntry(rule))
		return
	}

	if w.activeIndex(id, offset) >= 0 {
		logEvent().
			Str("origin", rec.Origin).
			Int("loaded_offset", offset).
			Msg("Filter origin is already bound to another filter, dropping it")
		w.entries = append(w.entries, newEntry(rule))
		return
	}

	rule.Origin = &domain.Origin{Source: id, Offset: offset}
	w.entries = append(w.entries, newEntry(rule))
}

// UnknownVersion reports whether the last Retrieve skipped a stored
// FilterSet of an unknown version
func (w *WorkingSet) UnknownVersion() bool {
	return w.unknownVersion
}

// Save writes the working set to s with origins stored by filename. A
// stored FilterSet of an unknown version is kept as it is.
func (w *WorkingSet) Save(s *settings.Settings) {
	if w.unknownVersion {
		w.logger.Warn().
			Str("file", s.FileName()).
			Str("code", domain.ErrSchemaMismatch).
			Msg("Not overwriting FilterSet of an unknown version")
		return
	}
	records := make([]loader.Record, len(w.entries))
	for i, e := range w.entries {
		rec := loader.Record{Rule: e.rule.WithoutOrigin(), Offset: -1}
		if o := e.rule.Origin; o != nil {
			if src := w.registry.Source(o.Source); src != nil {
				rec.Origin = src.Name
				rec.Offset = o.Offset
			}
		}
		records[i] = rec
	}
	loader.WriteFilterSet(s, records, true)
}
