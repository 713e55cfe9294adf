package domain

import (
	"regexp"
	"time"
)

// Style is the rendering style carried by a rule
type Style struct {
	Foreground string `json:"foreground" yaml:"foreground"`
	Background string `json:"background" yaml:"background"`
}

// Origin references the source a working rule was imported from and the
// rule's position inside that source
type Origin struct {
	Source int `json:"source"`
	Offset int `json:"offset"`
}

// Rule represents one line pattern with its rendering style
type Rule struct {
	Pattern    string  `json:"pattern" yaml:"regexp" validate:"max=4096"`
	IgnoreCase bool    `json:"ignore_case" yaml:"ignore_case"`
	Foreground string  `json:"foreground" yaml:"fore_colour" validate:"required,max=64"`
	Background string  `json:"background" yaml:"back_colour" validate:"required,max=64"`
	Enabled    bool    `json:"enabled" yaml:"-"`
	Origin     *Origin `json:"origin,omitempty" yaml:"-"`

	// Compiled lazily; rebuilt when Pattern or IgnoreCase change
	compiled *compiledPattern `json:"-" yaml:"-"`
}

type compiledPattern struct {
	pattern    string
	ignoreCase bool
	re         *regexp.Regexp
	err        error
}

// NewRule returns a rule with the default pattern and colors
func NewRule() Rule {
	return Rule{
		Pattern:    DefaultPattern,
		Foreground: DefaultForeground,
		Background: DefaultBackground,
		Enabled:    true,
	}
}

// NewStyledRule returns an enabled rule with the given pattern and colors
func NewStyledRule(pattern string, ignoreCase bool, foreground, background string) Rule {
	return Rule{
		Pattern:    pattern,
		IgnoreCase: ignoreCase,
		Foreground: foreground,
		Background: background,
		Enabled:    true,
	}
}

// Style returns the rendering style of the rule
func (r *Rule) Style() Style {
	return Style{Foreground: r.Foreground, Background: r.Background}
}

// Compile builds the pattern matcher if the cached one is stale and returns
// the compile error, if any
func (r *Rule) Compile() error {
	if r.compiled == nil || r.compiled.pattern != r.Pattern || r.compiled.ignoreCase != r.IgnoreCase {
		r.compiled = compilePattern(r.Pattern, r.IgnoreCase)
	}
	return r.compiled.err
}

// GetCompiledRegex returns the compiled pattern, or nil for an empty or invalid one
func (r *Rule) GetCompiledRegex() *regexp.Regexp {
	_ = r.Compile()
	return r.compiled.re
}

// Matches reports whether text matches the rule pattern. Empty and invalid
// patterns never match.
func (r *Rule) Matches(text string) bool {
	re := r.GetCompiledRegex()
	return re != nil && re.MatchString(text)
}

// Valid reports whether the pattern compiles
func (r *Rule) Valid() bool {
	return r.Compile() == nil && r.Pattern != ""
}

// SameContent compares pattern and colors only
func (r Rule) SameContent(other Rule) bool {
	return r.Pattern == other.Pattern &&
		r.Foreground == other.Foreground &&
		r.Background == other.Background
}

// HasOrigin reports whether the rule is bound to a source
func (r *Rule) HasOrigin() bool {
	return r.Origin != nil
}

// Clone returns a deep copy of the rule
func (r Rule) Clone() Rule {
	if r.Origin != nil {
		origin := *r.Origin
		r.Origin = &origin
	}
	return r
}

// WithoutOrigin returns a copy of the rule with no origin
func (r Rule) WithoutOrigin() Rule {
	r.Origin = nil
	return r
}

// CopyContent copies pattern and colors from src, leaving origin untouched
func (r *Rule) CopyContent(src Rule) {
	r.Pattern = src.Pattern
	r.Foreground = src.Foreground
	r.Background = src.Background
}

func compilePattern(pattern string, ignoreCase bool) *compiledPattern {
	cp := &compiledPattern{pattern: pattern, ignoreCase: ignoreCase}
	if pattern == "" {
		return cp
	}
	expr := pattern
	if ignoreCase {
		expr = "(?i)" + pattern
	}
	cp.re, cp.err = regexp.Compile(expr)
	return cp
}

// MatchResult represents the result of matching a line against the rule list
type MatchResult struct {
	Matched    bool      `json:"matched"`
	Index      int       `json:"index"`
	Foreground string    `json:"foreground,omitempty"`
	Background string    `json:"background,omitempty"`
	CacheHit   bool      `json:"cache_hit"`
	Timestamp  time.Time `json:"timestamp"`
}

// CacheStats represents cache performance metrics
type CacheStats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	Bytes     int64   `json:"bytes"`
	HitRatio  float64 `json:"hit_ratio"`
}

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Status    string         `json:"status"` // "healthy", "unhealthy", "degraded"
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Health status constants
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusUnhealthy = "unhealthy"
	HealthStatusDegraded  = "degraded"
)

// SystemHealth represents overall system health
type SystemHealth struct {
	Status     string                  `json:"status"`
	Timestamp  time.Time               `json:"timestamp"`
	Components map[string]HealthStatus `json:"components"`
	Metrics    map[string]any          `json:"metrics,omitempty"`
	Uptime     time.Duration           `json:"uptime"`
}
