package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		pattern   string
		expectErr bool
	}{
		{name: "sentinel silence", pattern: "silence"},
		{name: "sentinel no_change", pattern: "no_change"},
		{name: "empty is silence", pattern: "  "},
		{name: "simple drum layer", pattern: `s("bd sd bd sd")`},
		{name: "note layer", pattern: `note("c3 e3 g3").s("piano")`},
		{name: "full chain", pattern: `s("bd*2 [sd cp]").bank("RolandTR909").gain(0.8).lpf(400).fast(2)`},
		{name: "stack of layers", pattern: `stack(s("bd sd"), note("<c3 e3>").gain(0.6))`},
		{name: "angle and brace groups", pattern: `s("<bd sd> {hh hh hh}%4")`},
		{name: "unmatched bracket", pattern: `s("bd [sd")`, expectErr: true},
		{name: "mismatched pair", pattern: `s("bd [sd>")`, expectErr: true},
		{name: "crossed nesting", pattern: `s("[<a] b>")`, expectErr: true},
		{name: "unknown source method", pattern: `drum("bd sd")`, expectErr: true},
		{name: "trailing garbage", pattern: `s("bd sd") nonsense`, expectErr: true},
		{name: "unterminated string", pattern: `s("bd sd`, expectErr: true},
		{name: "missing mini-notation arg", pattern: `s(42)`, expectErr: true},
		{name: "bare prose", pattern: `let me lay down a groove`, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.pattern)
			if tt.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParse_LayerExtraction(t *testing.T) {
	ast, err := NewParser(`s("bd sd hh sd").bank("RolandTR909").gain(0.8).lpf(400).rev()`).Parse()
	require.NoError(t, err)
	require.Len(t, ast.Layers, 1)

	layer := ast.Layers[0]
	assert.Equal(t, "s", layer.Source)
	assert.Equal(t, []string{"bd", "sd", "hh", "sd"}, layer.Tokens)
	assert.Equal(t, "RolandTR909", layer.Bank)
	assert.Equal(t, 0.8, layer.Effects["gain"])
	assert.Equal(t, 400.0, layer.Effects["lpf"])
	assert.Equal(t, []string{"rev"}, layer.Modifiers)
}

func TestParse_Stack(t *testing.T) {
	ast, err := NewParser(`stack(s("bd sd"), note("c3 e3 g3").s("sawtooth").gain(0.5))`).Parse()
	require.NoError(t, err)
	require.Len(t, ast.Layers, 2)
	assert.Equal(t, "s", ast.Layers[0].Source)
	assert.Equal(t, "note", ast.Layers[1].Source)
	assert.Equal(t, "sawtooth", ast.Layers[1].Bank)
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		expected string
	}{
		{
			name:     "sentinel yields empty",
			pattern:  "no_change",
			expected: "",
		},
		{
			name:     "single layer",
			pattern:  `s("bd sd hh sd").bank("RolandTR909").gain(0.8)`,
			expected: "s[bd sd hh sd] bank=RolandTR909 gain=0.8",
		},
		{
			name:     "modifiers listed by name",
			pattern:  `note("c3 e3").fastGap(2).rev()`,
			expected: "note[c3 e3] +rev",
		},
		{
			name:     "stack counts layers",
			pattern:  `stack(s("bd"), s("hh*4"))`,
			expected: "2 layers: s[bd] | s[hh*4]",
		},
		{
			name:     "unparseable yields empty",
			pattern:  `s("bd [sd")`,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Summarize(tt.pattern))
		})
	}
}

// Parsing and re-serializing must round-trip everything the summarizer
// reads: source, tokens, bank, effects, modifier names.
func TestSerialize_RoundTrip(t *testing.T) {
	patterns := []string{
		`s("bd sd hh sd").bank("RolandTR909").gain(0.8).lpf(400)`,
		`note("<c3 e3 g3>").s("piano").room(0.4).rev()`,
		`stack(s("bd*2"), s("~ cp").gain(0.7), note("c2 g2").s("bass"))`,
	}

	for _, src := range patterns {
		ast, err := NewParser(src).Parse()
		require.NoError(t, err, src)

		reparsed, err := NewParser(ast.Serialize()).Parse()
		require.NoError(t, err, ast.Serialize())

		require.Len(t, reparsed.Layers, len(ast.Layers))
		for i := range ast.Layers {
			assert.Equal(t, ast.Layers[i].Source, reparsed.Layers[i].Source)
			assert.Equal(t, ast.Layers[i].Tokens, reparsed.Layers[i].Tokens)
			assert.Equal(t, ast.Layers[i].Bank, reparsed.Layers[i].Bank)
			assert.Equal(t, ast.Layers[i].Effects, reparsed.Layers[i].Effects)
			assert.Equal(t, ast.Layers[i].Modifiers, reparsed.Layers[i].Modifiers)
		}
		assert.Equal(t, Summarize(src), Summarize(ast.Serialize()))
	}
}
