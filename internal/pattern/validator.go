package pattern

import (
	"fmt"
	"strings"

	"github.com/Conceptual-Machines/jam-api/internal/models"
)

// summaryEffects are the mix-relevant effects worth surfacing in peer
// band-state lines. Everything else stays in the AST but is omitted from
// the summary.
var summaryEffects = []string{"gain", "lpf", "hpf", "room", "delay", "pan", "shape", "crush", "speed"}

// Validate checks that a candidate pattern is well-formed enough to
// broadcast. The sentinels silence and no_change are always accepted.
// Returns a one-line reason on rejection.
func Validate(candidate string) error {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" || trimmed == models.PatternSilence || trimmed == models.PatternNoChange {
		return nil
	}
	if _, err := NewParser(trimmed).Parse(); err != nil {
		return fmt.Errorf("invalid pattern: %v", err)
	}
	return nil
}

// Summarize produces the compact textual form of a pattern embedded in
// peer-state prompt lines, or "" when the pattern has no summarizable
// structure (sentinels, empty, unparseable).
func Summarize(candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" || trimmed == models.PatternSilence || trimmed == models.PatternNoChange {
		return ""
	}
	ast, err := NewParser(trimmed).Parse()
	if err != nil {
		return ""
	}

	parts := make([]string, 0, len(ast.Layers))
	for _, layer := range ast.Layers {
		parts = append(parts, summarizeLayer(layer))
	}

	summary := strings.Join(parts, " | ")
	if len(ast.Layers) > 1 {
		summary = fmt.Sprintf("%d layers: %s", len(ast.Layers), summary)
	}
	return summary
}

func summarizeLayer(layer Layer) string {
	var sb strings.Builder
	sb.WriteString(layer.Source)
	sb.WriteString("[")
	sb.WriteString(strings.Join(layer.Tokens, " "))
	sb.WriteString("]")

	if layer.Bank != "" {
		sb.WriteString(" bank=" + layer.Bank)
	}
	for _, name := range summaryEffects {
		if value, ok := layer.Effects[name]; ok {
			fmt.Fprintf(&sb, " %s=%.3g", name, value)
		}
	}
	for _, mod := range layer.Modifiers {
		sb.WriteString(" +" + mod)
	}
	return sb.String()
}
