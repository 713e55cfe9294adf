package workingset

import "github.com/freewebtopdf/logfilters/internal/domain"

// Add appends a local rule at the lowest priority and returns its index
func (w *WorkingSet) Add(rule domain.Rule) int {
	rule = rule.WithoutOrigin()
	rule.Enabled = true
	w.entries = append(w.entries, newEntry(rule))
	return len(w.entries) - 1
}

// AddDefault appends a rule with the default pattern and colors
func (w *WorkingSet) AddDefault() int {
	return w.Add(domain.NewRule())
}

// Update applies edit to the rule at index and returns the result. Edited
// entries keep their origin; the difference shows up as drift.
func (w *WorkingSet) Update(index int, edit domain.RuleEdit) (domain.Rule, error) {
	e, err := w.at("update", index)
	if err != nil {
		return domain.Rule{}, err
	}
	edit.Apply(&e.rule)
	return e.rule.Clone(), nil
}

// Remove deletes the rule at index. Entries after it move up by one; a
// source rule bound to the removed entry becomes free to adopt again.
func (w *WorkingSet) Remove(index int) (domain.Rule, error) {
	e, err := w.at("remove", index)
	if err != nil {
		return domain.Rule{}, err
	}
	w.entries = append(w.entries[:index], w.entries[index+1:]...)
	return e.rule, nil
}

// Move relocates the rule at from so that it ends up at index to
func (w *WorkingSet) Move(from, to int) error {
	e, err := w.at("move", from)
	if err != nil {
		return err
	}
	if _, err := w.at("move", to); err != nil {
		return err
	}
	if from == to {
		return nil
	}

	if from < to {
		copy(w.entries[from:to], w.entries[from+1:to+1])
	} else {
		copy(w.entries[to+1:from+1], w.entries[to:from])
	}
	w.entries[to] = e
	return nil
}

// MoveUp swaps the rule at index with the one before it
func (w *WorkingSet) MoveUp(index int) error {
	if index == 0 && len(w.entries) > 0 {
		return domain.NewAppError(domain.ErrInvalidInput, "Rule is already first", 400, map[string]any{"index": index})
	}
	return w.Move(index, index-1)
}

// MoveDown swaps the rule at index with the one after it
func (w *WorkingSet) MoveDown(index int) error {
	if index == len(w.entries)-1 {
		return domain.NewAppError(domain.ErrInvalidInput, "Rule is already last", 400, map[string]any{"index": index})
	}
	return w.Move(index, index+1)
}

// Modified reports whether the rule at index differs from its source rule
func (w *WorkingSet) Modified(index int) bool {
	if index < 0 || index >= len(w.entries) {
		return false
	}
	return w.modified(w.entries[index])
}

// SaveChange copies the rule at index back into its source rule and marks
// the source for rewriting. Rules without drift are left alone.
func (w *WorkingSet) SaveChange(index int) error {
	e, err := w.at("save-change", index)
	if err != nil {
		return err
	}
	w.saveChange(e)
	return nil
}

// UndoChange copies the source rule back into the rule at index
func (w *WorkingSet) UndoChange(index int) error {
	e, err := w.at("undo-change", index)
	if err != nil {
		return err
	}
	w.undoChange(e)
	return nil
}

func (w *WorkingSet) saveChange(e *entry) bool {
	src, sr := w.sourceRule(e)
	if sr == nil || sr.SameContent(e.rule) {
		return false
	}
	sr.CopyContent(e.rule)
	src.MarkDirty()
	w.logger.Debug().Str("file", src.Name).Int("offset", e.rule.Origin.Offset).Msg("Filter change saved to source")
	return true
}

func (w *WorkingSet) undoChange(e *entry) bool {
	_, sr := w.sourceRule(e)
	if sr == nil || sr.SameContent(e.rule) {
		return false
	}
	e.rule.CopyContent(*sr)
	return true
}
