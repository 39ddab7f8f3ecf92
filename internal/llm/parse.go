package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/Conceptual-Machines/jam-api/internal/models"
	"github.com/Conceptual-Machines/jam-api/internal/musictheory"
)

// intentSpellings canonicalizes hyphen/space/case variants of the
// arrangement-intent enum.
var intentSpellings = map[string]models.ArrangementIntent{
	"build":         models.IntentBuild,
	"breakdown":     models.IntentBreakdown,
	"break_down":    models.IntentBreakdown,
	"drop":          models.IntentDrop,
	"strip_back":    models.IntentStripBack,
	"stripback":     models.IntentStripBack,
	"bring_forward": models.IntentBringForward,
	"bringforward":  models.IntentBringForward,
	"hold":          models.IntentHold,
	"no_change":     models.IntentNoChange,
	"nochange":      models.IntentNoChange,
	"transition":    models.IntentTransition,
}

// ParseResponse parses accumulated assistant text into an agent
// response. It first tries the whole text as JSON, then falls back to
// the first {...} substring containing a "pattern" key. Shape validation
// is strict: pattern and thoughts must both be strings.
func ParseResponse(text string) (*models.AgentResponse, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("empty response text")
	}

	raw, err := decodeObject(trimmed)
	if err != nil {
		extracted, ok := extractJSONObject(trimmed)
		if !ok {
			return nil, fmt.Errorf("no JSON object with a pattern field found")
		}
		raw, err = decodeObject(extracted)
		if err != nil {
			return nil, fmt.Errorf("extracted object is not valid JSON: %w", err)
		}
	}

	pattern, ok := raw["pattern"].(string)
	if !ok {
		return nil, fmt.Errorf("response field %q must be a string", "pattern")
	}
	thoughts, ok := raw["thoughts"].(string)
	if !ok {
		return nil, fmt.Errorf("response field %q must be a string", "thoughts")
	}

	response := &models.AgentResponse{
		Pattern:  strings.TrimSpace(pattern),
		Thoughts: thoughts,
	}
	if commentary, ok := raw["commentary"].(string); ok {
		response.Commentary = commentary
	}
	if decisionRaw, ok := raw["decision"].(map[string]any); ok {
		response.Decision = NormalizeDecision(decisionRaw)
	}

	return response, nil
}

// NormalizeDecision validates and clamps a raw decision block. Fields
// that fail validation are dropped; a decision with nothing left is
// absent (nil).
func NormalizeDecision(raw map[string]any) *models.Decision {
	decision := &models.Decision{}

	if value, ok := numberField(raw, "tempo_delta_pct", "tempoDeltaPct"); ok {
		clamped := clampFloat(value, models.TempoDeltaPctMin, models.TempoDeltaPctMax)
		rounded := roundHalfAwayFromZero(clamped)
		decision.TempoDeltaPct = &rounded
	}

	if value, ok := numberField(raw, "energy_delta", "energyDelta"); ok {
		rounded := roundHalfAwayFromZero(value)
		if rounded < models.EnergyDeltaMin {
			rounded = models.EnergyDeltaMin
		}
		if rounded > models.EnergyDeltaMax {
			rounded = models.EnergyDeltaMax
		}
		decision.EnergyDelta = &rounded
	}

	if value := stringField(raw, "arrangement_intent", "arrangementIntent"); value != "" {
		canonical := strings.ToLower(strings.TrimSpace(value))
		canonical = strings.NewReplacer("-", "_", " ", "_").Replace(canonical)
		if intent, ok := intentSpellings[canonical]; ok {
			decision.Intent = intent
		}
	}

	switch models.Confidence(strings.ToLower(stringField(raw, "confidence"))) {
	case models.ConfidenceLow:
		decision.Confidence = models.ConfidenceLow
	case models.ConfidenceMedium:
		decision.Confidence = models.ConfidenceMedium
	case models.ConfidenceHigh:
		decision.Confidence = models.ConfidenceHigh
	}

	if value := stringField(raw, "suggested_key", "suggestedKey"); value != "" {
		if key, err := musictheory.ParseKey(value); err == nil && len(key.Scale()) == 7 {
			decision.SuggestedKey = key.Name()
		}
	}

	if chords := stringList(raw, "suggested_chords", "suggestedChords"); len(chords) > 0 {
		decision.SuggestedChords = chords
	}

	if decision.Empty() {
		return nil
	}
	return decision
}

func decodeObject(text string) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// extractJSONObject finds the first balanced {...} substring containing
// a "pattern" key. String literals are skipped so braces inside
// mini-notation do not confuse the scan.
func extractJSONObject(text string) (string, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(text); i++ {
			c := text[i]
			if escaped {
				escaped = false
				continue
			}
			switch c {
			case '\\':
				if inString {
					escaped = true
				}
			case '"':
				inString = !inString
			case '{':
				if !inString {
					depth++
				}
			case '}':
				if !inString {
					depth--
					if depth == 0 {
						candidate := text[start : i+1]
						if strings.Contains(candidate, `"pattern"`) {
							return candidate, true
						}
						i = len(text) // try next start
					}
				}
			}
		}
	}
	return "", false
}

func stringList(raw map[string]any, keys ...string) []string {
	for _, key := range keys {
		entries, ok := raw[key].([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(entries))
		for _, entry := range entries {
			str, ok := entry.(string)
			if !ok || strings.TrimSpace(str) == "" {
				return nil
			}
			out = append(out, str)
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func roundHalfAwayFromZero(v float64) int {
	if v >= 0 {
		return int(math.Floor(v + 0.5))
	}
	return int(math.Ceil(v - 0.5))
}
