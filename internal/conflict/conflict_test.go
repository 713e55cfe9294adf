package conflict

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freewebtopdf/logfilters/internal/domain"
)

func rules(patterns ...string) []domain.Rule {
	out := make([]domain.Rule, len(patterns))
	for i, p := range patterns {
		out[i] = domain.NewStyledRule(p, false, "black", "red")
	}
	return out
}

func TestNewExternalChange_Diff(t *testing.T) {
	change := NewExternalChange("team.conf", rules("ERROR", "WARN"), rules("ERROR", "FATAL"))

	assert.Equal(t, "team.conf", change.Filename)
	assert.Contains(t, change.Diff, "--- team.conf (saved)")
	assert.Contains(t, change.Diff, "+++ team.conf (on disk)")
	assert.Contains(t, change.Diff, `-"WARN" black/red`)
	assert.Contains(t, change.Diff, `+"FATAL" black/red`)
}

func TestDiff_Identical(t *testing.T) {
	assert.Empty(t, Diff("a.conf", rules("x"), rules("x")))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(rules("a", "b"), rules("a", "b")))
	assert.True(t, Equal(nil, rules()))
	assert.False(t, Equal(rules("a"), rules("a", "b")))
	assert.False(t, Equal(rules("a", "b"), rules("b", "a")))

	ci := rules("a")
	ci[0].IgnoreCase = true
	assert.False(t, Equal(rules("a"), ci))
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"accept", PolicyAccept, false},
		{" KEEP ", PolicyKeep, false},
		{"ask", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicy_Decide(t *testing.T) {
	change := NewExternalChange("a.conf", rules("a"), rules("b"))
	assert.True(t, PolicyAccept.Decide(change))
	assert.False(t, PolicyKeep.Decide(change))
}

func TestDeciderFunc(t *testing.T) {
	var seen string
	d := DeciderFunc(func(c ExternalChange) bool {
		seen = c.Filename
		return false
	})
	assert.False(t, d.Decide(ExternalChange{Filename: "x.conf"}))
	assert.Equal(t, "x.conf", seen)
}

func TestPrompt_Decide(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes", "y\n", true},
		{"default", "\n", true},
		{"no", "n\n", false},
		{"no word", "No\n", false},
		{"eof", "", true},
		{"no without newline", "n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewPrompt(strings.NewReader(tt.input), &out)

			got := p.Decide(NewExternalChange("team.conf", rules("a"), rules("b")))
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Filter file team.conf has been modified on disk")
			assert.Contains(t, out.String(), `+"b" black/red`)
		})
	}
}
