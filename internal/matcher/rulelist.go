package matcher

import "github.com/freewebtopdf/logfilters/internal/domain"

// RuleList is an ordered list of rules. Order is match priority: the first
// rule whose pattern matches a line decides its style.
type RuleList struct {
	rules []domain.Rule
}

// NewRuleList creates a list holding copies of rules
func NewRuleList(rules ...domain.Rule) *RuleList {
	l := &RuleList{rules: make([]domain.Rule, 0, len(rules))}
	for _, r := range rules {
		l.rules = append(l.rules, r.Clone())
	}
	return l
}

// Len returns the number of rules
func (l *RuleList) Len() int {
	return len(l.rules)
}

// At returns the rule at index i for in-place edits, or nil when out of range
func (l *RuleList) At(i int) *domain.Rule {
	if i < 0 || i >= len(l.rules) {
		return nil
	}
	return &l.rules[i]
}

// Rules returns a copy of the rules in order
func (l *RuleList) Rules() []domain.Rule {
	out := make([]domain.Rule, len(l.rules))
	for i, r := range l.rules {
		out[i] = r.Clone()
	}
	return out
}

// Append adds a rule at the lowest priority
func (l *RuleList) Append(rule domain.Rule) {
	l.rules = append(l.rules, rule)
}

// Set replaces the rule at index i
func (l *RuleList) Set(i int, rule domain.Rule) bool {
	if i < 0 || i >= len(l.rules) {
		return false
	}
	l.rules[i] = rule
	return true
}

// Remove deletes the rule at index i, shifting later rules up
func (l *RuleList) Remove(i int) (domain.Rule, bool) {
	if i < 0 || i >= len(l.rules) {
		return domain.Rule{}, false
	}
	removed := l.rules[i]
	l.rules = append(l.rules[:i], l.rules[i+1:]...)
	return removed, true
}

// Move relocates the rule at from so that it ends up at index to
func (l *RuleList) Move(from, to int) bool {
	if from < 0 || from >= len(l.rules) || to < 0 || to >= len(l.rules) {
		return false
	}
	if from == to {
		return true
	}
	rule := l.rules[from]
	if from < to {
		copy(l.rules[from:to], l.rules[from+1:to+1])
	} else {
		copy(l.rules[to+1:from+1], l.rules[to:from])
	}
	l.rules[to] = rule
	return true
}

// Grow pads the list with empty placeholder rules until it holds n rules
func (l *RuleList) Grow(n int) {
	for len(l.rules) < n {
		l.rules = append(l.rules, domain.Rule{})
	}
}

// Clear removes every rule
func (l *RuleList) Clear() {
	l.rules = l.rules[:0]
}

// Match returns the style of the first rule matching line and its index
func (l *RuleList) Match(line string) (domain.Style, int, bool) {
	for i := range l.rules {
		if l.rules[i].Matches(line) {
			return l.rules[i].Style(), i, true
		}
	}
	return domain.Style{}, -1, false
}
