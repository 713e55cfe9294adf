package workingset

import (
	"github.com/freewebtopdf/logfilters/internal/domain"
	"github.com/freewebtopdf/logfilters/internal/loader"
)

// Adopt appends a copy of rule offset of source and binds it to that rule.
// A source rule is bound to at most one working entry.
func (w *WorkingSet) Adopt(source, offset int) (int, error) {
	src, err := w.source("adopt", source)
	if err != nil {
		return -1, err
	}
	sr := src.Rules.At(offset)
	if sr == nil {
		return -1, domain.NewAppError(
			domain.ErrOffsetOutOfRange,
			"Offset outside the filter source",
			422,
			map[string]any{"source": source, "offset": offset, "size": src.Rules.Len()},
		)
	}
	if idx := w.activeIndex(source, offset); idx >= 0 {
		return -1, domain.NewAppError(
			domain.ErrConflict,
			"Filter is already imported",
			409,
			map[string]any{"source": source, "offset": offset, "index": idx},
		)
	}

	rule := sr.Clone()
	rule.Enabled = true
	rule.Origin = &domain.Origin{Source: source, Offset: offset}
	w.entries = append(w.entries, newEntry(rule))
	return len(w.entries) - 1, nil
}

// Release removes the working entry bound to rule offset of source
func (w *WorkingSet) Release(source, offset int) error {
	if _, err := w.source("release", source); err != nil {
		return err
	}
	idx := w.activeIndex(source, offset)
	if idx < 0 {
		return domain.NewAppError(
			domain.ErrNotFound,
			"Filter is not imported",
			404,
			map[string]any{"source": source, "offset": offset},
		)
	}
	_, err := w.Remove(idx)
	return err
}

// References lists every rule of source with the working entry bound to it
func (w *WorkingSet) References(source int) ([]Reference, error) {
	src, err := w.source("references", source)
	if err != nil {
		return nil, err
	}

	bound := make(map[int]int)
	for i, e := range w.entries {
		if o := e.rule.Origin; o != nil && o.Source == source {
			bound[o.Offset] = i
		}
	}

	refs := make([]Reference, src.Rules.Len())
	for off := range refs {
		ref := Reference{Offset: off, WorkingIndex: -1, Rule: src.Rules.At(off).Clone()}
		if idx, ok := bound[off]; ok {
			ref.WorkingIndex = idx
			ref.Modified = w.modified(w.entries[idx])
		}
		refs[off] = ref
	}
	return refs, nil
}

// SourceModified reports whether any entry bound to source has drift
func (w *WorkingSet) SourceModified(source int) bool {
	for _, e := range w.entries {
		if o := e.rule.Origin; o != nil && o.Source == source && w.modified(e) {
			return true
		}
	}
	return false
}

// SaveChanges saves the drift of every entry bound to source and returns
// how many rules changed
func (w *WorkingSet) SaveChanges(source int) (int, error) {
	if _, err := w.source("save-changes", source); err != nil {
		return 0, err
	}
	n := 0
	for _, e := range w.entries {
		if o := e.rule.Origin; o != nil && o.Source == source && w.saveChange(e) {
			n++
		}
	}
	return n, nil
}

// UndoChanges reverts the drift of every entry bound to source and returns
// how many rules changed
func (w *WorkingSet) UndoChanges(source int) (int, error) {
	if _, err := w.source("undo-changes", source); err != nil {
		return 0, err
	}
	n := 0
	for _, e := range w.entries {
		if o := e.rule.Origin; o != nil && o.Source == source && w.undoChange(e) {
			n++
		}
	}
	return n, nil
}

// ImportSource registers the filter file at path and returns its source id
func (w *WorkingSet) ImportSource(path string) (int, error) {
	return w.registry.Import(path)
}

// RemoveSource drops source from the registry together with every entry
// bound to it. Entries bound to later sources are renumbered.
func (w *WorkingSet) RemoveSource(source int) error {
	src, err := w.source("remove-source", source)
	if err != nil {
		return err
	}

	kept := w.entries[:0]
	removed := 0
	for _, e := range w.entries {
		o := e.rule.Origin
		switch {
		case o == nil:
		case o.Source == source:
			removed++
			continue
		case o.Source > source:
			o.Source--
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(w.entries); i++ {
		w.entries[i] = nil
	}
	w.entries = kept

	w.registry.Remove(source)
	w.logger.Info().Str("file", src.Name).Int("removed_rules", removed).Msg("Filter source removed")
	return nil
}

// Export writes the rules at indices to a new filter file without origins.
// No indices exports every rule.
func (w *WorkingSet) Export(indices []int, path string) error {
	var rules []domain.Rule
	if len(indices) == 0 {
		rules = w.Rules()
	} else {
		rules = make([]domain.Rule, 0, len(indices))
		for _, idx := range indices {
			e, err := w.at("export", idx)
			if err != nil {
				return err
			}
			rules = append(rules, e.rule.WithoutOrigin())
		}
	}

	if err := loader.WriteFilterFile(path, rules); err != nil {
		return err
	}
	w.logger.Info().Str("file", path).Int("rules", len(rules)).Msg("Filters exported")
	return nil
}
