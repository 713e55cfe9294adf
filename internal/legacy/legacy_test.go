package legacy

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freewebtopdf/logfilters/internal/domain"
)

func TestDecode_KnownLayout(t *testing.T) {
	data := []byte{
		0, 0, 0, 1, // one entry
		0, 0, 0, 4, 0, 'h', 0, 'i', // "hi"
		0xff, 0xff, 0xff, 0xff, // null foreground
		0, 0, 0, 2, 0, 'z', // "z"
	}

	rules, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "hi", rules[0].Pattern)
	assert.Equal(t, "", rules[0].Foreground)
	assert.Equal(t, "z", rules[0].Background)
	assert.False(t, rules[0].IgnoreCase)
	assert.True(t, rules[0].Enabled)
	assert.Nil(t, rules[0].Origin)
}

func TestDecode_Truncated(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"count only", []byte{0, 0, 0, 1}},
		{"short string", []byte{0, 0, 0, 1, 0, 0, 0, 8, 0, 'a', 0, 0, 0, 0, 0, 0, 0, 0}},
		{"odd length", []byte{0, 0, 0, 1, 0, 0, 0, 1, 'a', 0, 0, 0, 0, 0, 0, 0, 0}},
		{"huge count", []byte{0xff, 0xff, 0xff, 0xf0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			assert.ErrorIs(t, err, ErrTruncated)
		})
	}
}

func TestEncode_Empty(t *testing.T) {
	rules, err := Decode(Encode(nil))
	require.NoError(t, err)
	assert.Empty(t, rules)
}

// Feature: logfilters, Property 7: Legacy blobs decode to the encoded tuples
func TestProperty_LegacyRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("Encoding then decoding preserves pattern and colors in order, including non-ASCII text", prop.ForAll(
		func(patterns []string, fg, bg string) bool {
			in := make([]domain.Rule, len(patterns))
			for i, p := range patterns {
				in[i] = domain.NewStyledRule(p, false, fg, bg)
			}
			out, err := Decode(Encode(in))
			if err != nil || len(out) != len(in) {
				return false
			}
			for i := range in {
				if !in[i].SameContent(out[i]) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UnicodeString(gen.UnicodeChar())),
		gen.OneConstOf("black", "crimson", "lightseagreen"),
		gen.OneConstOf("white", "bisque", "naïve ✓"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
