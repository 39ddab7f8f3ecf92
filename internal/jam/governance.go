package jam

import (
	"math"
	"strings"
	"time"

	"github.com/Conceptual-Machines/jam-api/internal/directive"
	"github.com/Conceptual-Machines/jam-api/internal/models"
	"github.com/Conceptual-Machines/jam-api/internal/musictheory"
)

// guaranteedCommentary is the fallback chat line when a targeted
// directive turn produced neither commentary nor thoughts.
const guaranteedCommentary = "Locking in your cue."

// mutedThoughts replaces the response when the boss mutes an agent.
const mutedThoughts = "Muting for the boss."

// silenceCoercionIntents are the arrangement intents that let a
// high-confidence agent actually go silent on an auto-tick.
var silenceCoercionIntents = map[models.ArrangementIntent]bool{
	models.IntentBreakdown:  true,
	models.IntentStripBack:  true,
	models.IntentTransition: true,
}

// applyResponse installs one accepted (or null) agent response under
// the shared governance rules and returns the thought/commentary/status
// events plus whether the pattern string changed.
func (o *Orchestrator) applyResponse(s *sessionState, rt *agentRuntime, resp *models.AgentResponse, source models.TurnSource, targeted bool) (events []models.Event, changed bool) {
	before := rt.currentPattern
	now := o.clock.Now()
	rt.lastUpdated = now

	switch {
	case resp == nil:
		// Timeout, parse failure, or a response rejected twice: the
		// fallback keeps the groove alive.
		if rt.fallbackPattern != "" && rt.fallbackPattern != models.PatternSilence {
			rt.currentPattern = rt.fallbackPattern
			rt.status = models.StatusPlaying
		} else {
			rt.currentPattern = models.PatternSilence
			rt.status = models.StatusTimeout
		}

	case isNoChange(resp, source, rt):
		if rt.currentPattern == "" {
			rt.currentPattern = models.PatternSilence
		}
		rt.thoughts = resp.Thoughts
		if rt.playing() {
			rt.status = models.StatusPlaying
		} else {
			rt.status = models.StatusIdle
		}
		events = append(events, o.thoughtEvent(rt, now))

	default:
		rt.currentPattern = resp.Pattern
		rt.thoughts = resp.Thoughts
		if resp.Pattern != models.PatternSilence {
			rt.fallbackPattern = resp.Pattern
			rt.status = models.StatusPlaying
		} else {
			rt.status = models.StatusIdle
		}
		events = append(events, o.thoughtEvent(rt, now))
	}

	if s.muted[rt.meta.ID] {
		rt.status = models.StatusMuted
	}

	if commentary := o.commentaryEvent(s, rt, resp, source, targeted, now); commentary != nil {
		events = append(events, *commentary)
	}

	events = append(events, models.Event{
		Type:    models.EventAgentStatus,
		Payload: models.AgentStatusPayload{Agent: rt.meta.ID, Status: rt.status},
	})

	return events, rt.currentPattern != before
}

// isNoChange folds auto-tick silence coercion into the no_change path:
// a playing agent proposing silence holds its groove unless it commits
// with high confidence to a breakdown-style intent.
func isNoChange(resp *models.AgentResponse, source models.TurnSource, rt *agentRuntime) bool {
	if resp.Pattern == models.PatternNoChange {
		return true
	}
	if source != models.TurnAutoTick || resp.Pattern != models.PatternSilence || !rt.playing() {
		return false
	}
	d := resp.Decision
	if d != nil && d.Confidence == models.ConfidenceHigh && silenceCoercionIntents[d.Intent] {
		return false
	}
	return true
}

func (o *Orchestrator) thoughtEvent(rt *agentRuntime, now time.Time) models.Event {
	return models.Event{
		Type: models.EventAgentThought,
		Payload: models.AgentThoughtPayload{
			Agent:     rt.meta.ID,
			Emoji:     rt.meta.Emoji,
			Thought:   rt.thoughts,
			Pattern:   rt.currentPattern,
			Timestamp: now.UnixMilli(),
		},
	}
}

// commentaryEvent applies the commentary rules: truncation, signature
// dedupe, auto-tick cooldown, and the guaranteed line for targeted
// directives.
func (o *Orchestrator) commentaryEvent(s *sessionState, rt *agentRuntime, resp *models.AgentResponse, source models.TurnSource, guaranteed bool, now time.Time) *models.Event {
	text := ""
	if resp != nil {
		text = strings.TrimSpace(resp.Commentary)
	}
	if guaranteed && text == "" {
		if resp != nil && strings.TrimSpace(resp.Thoughts) != "" {
			text = strings.TrimSpace(resp.Thoughts)
		} else {
			text = guaranteedCommentary
		}
	}
	if text == "" {
		return nil
	}

	if len(text) > models.CommentaryMaxChars {
		text = strings.TrimRight(text[:models.CommentaryMaxChars], " \t\n")
	}
	sig := commentarySignature(text)

	if !guaranteed {
		if sig == "" {
			return nil
		}
		if resp != nil && sig == commentarySignature(resp.Thoughts) {
			return nil
		}
		for _, seen := range rt.commentarySigs {
			if seen == sig {
				return nil
			}
		}
		if source == models.TurnAutoTick && s.round-rt.lastCommentaryRound < models.CommentaryAutoTickMinRounds {
			return nil
		}
	}

	rt.commentarySigs = append(rt.commentarySigs, sig)
	if len(rt.commentarySigs) > models.CommentaryRecentSignatureWindow {
		rt.commentarySigs = rt.commentarySigs[len(rt.commentarySigs)-models.CommentaryRecentSignatureWindow:]
	}
	rt.lastCommentaryRound = s.round

	return &models.Event{
		Type: models.EventAgentCommentary,
		Payload: models.AgentCommentaryPayload{
			Agent:     rt.meta.ID,
			Emoji:     rt.meta.Emoji,
			Text:      text,
			Timestamp: now.UnixMilli(),
		},
	}
}

// commentarySignature normalizes a line for dedupe: lowercased,
// non-alphanumerics collapsed to single spaces, trimmed.
func commentarySignature(text string) string {
	var sb strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			lastSpace = false
		} else if !lastSpace {
			sb.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(sb.String())
}

// weightedDecision is one decision field contribution to aggregation.
type weightedDecision struct {
	value  float64
	weight float64
}

// weightedAverage is sum(w*v)/sum(w) rounded half away from zero.
// Returns false when nothing contributed.
func weightedAverage(contributions []weightedDecision) (int, bool) {
	var sum, weights float64
	for _, c := range contributions {
		sum += c.value * c.weight
		weights += c.weight
	}
	if weights == 0 {
		return 0, false
	}
	return roundHalf(sum / weights), true
}

// cueMatches reports whether a signed delta agrees with a cue direction.
func cueMatches(cue directive.CueDirection, value int) bool {
	switch cue {
	case directive.CueIncrease:
		return value > 0
	case directive.CueDecrease:
		return value < 0
	default:
		return false
	}
}

// applyDirectiveDrift aggregates model decisions along a cue axis,
// skipping axes already set by a deterministic anchor.
func applyDirectiveDrift(s *sessionState, responses map[models.AgentID]*models.AgentResponse, cues directive.Cues, anchored directive.ContextUpdate) bool {
	changed := false

	if cues.Tempo != "" && cues.Tempo != directive.CueMixed && anchored.BPM == nil {
		var contributions []weightedDecision
		for _, resp := range responses {
			d := decisionOf(resp)
			if d == nil || d.TempoDeltaPct == nil || !cueMatches(cues.Tempo, *d.TempoDeltaPct) {
				continue
			}
			if w := d.Confidence.Multiplier(); w > 0 {
				contributions = append(contributions, weightedDecision{value: float64(*d.TempoDeltaPct), weight: w})
			}
		}
		if pct, ok := weightedAverage(contributions); ok {
			s.ctx.BPM = models.ClampBPM(s.ctx.BPM + roundHalf(float64(s.ctx.BPM)*float64(pct)/100))
			changed = true
		}
	}

	if cues.Energy != "" && cues.Energy != directive.CueMixed && anchored.Energy == nil {
		var contributions []weightedDecision
		for _, resp := range responses {
			d := decisionOf(resp)
			if d == nil || d.EnergyDelta == nil || !cueMatches(cues.Energy, *d.EnergyDelta) {
				continue
			}
			if w := d.Confidence.Multiplier(); w > 0 {
				contributions = append(contributions, weightedDecision{value: float64(*d.EnergyDelta), weight: w})
			}
		}
		if delta, ok := weightedAverage(contributions); ok {
			s.ctx.Energy = models.ClampEnergy(s.ctx.Energy + delta)
			changed = true
		}
	}

	return changed
}

// applyAutoTickDrift averages confidence-weighted deltas across all
// participants, dampened, independent of any cue.
func applyAutoTickDrift(s *sessionState, responses map[models.AgentID]*models.AgentResponse) bool {
	changed := false

	var tempo, energy []weightedDecision
	for _, resp := range responses {
		d := decisionOf(resp)
		if d == nil {
			continue
		}
		w := d.Confidence.Multiplier()
		if w == 0 {
			continue
		}
		if d.TempoDeltaPct != nil {
			tempo = append(tempo, weightedDecision{value: float64(*d.TempoDeltaPct), weight: w})
		}
		if d.EnergyDelta != nil {
			energy = append(energy, weightedDecision{value: float64(*d.EnergyDelta), weight: w})
		}
	}

	if pct, ok := weightedAverage(tempo); ok {
		dampened := roundHalf(float64(pct) * models.AutoTickDampening)
		if dampened != 0 {
			s.ctx.BPM = models.ClampBPM(s.ctx.BPM + roundHalf(float64(s.ctx.BPM)*float64(dampened)/100))
			changed = true
		}
	}
	if delta, ok := weightedAverage(energy); ok {
		dampened := roundHalf(float64(delta) * models.AutoTickDampening)
		if dampened != 0 {
			s.ctx.Energy = models.ClampEnergy(s.ctx.Energy + dampened)
			changed = true
		}
	}

	return changed
}

// applyContextSuggestions handles auto-tick key consensus and chord
// suggestions. A key accepted by consensus installs the scale and a
// minimal diatonic fallback progression; chord suggestions are ignored
// on a turn that changed key.
func applyContextSuggestions(s *sessionState, order []models.AgentID, responses map[models.AgentID]*models.AgentResponse) bool {
	votes := make(map[string]int)
	for _, resp := range responses {
		d := decisionOf(resp)
		if d == nil || d.SuggestedKey == "" || d.Confidence != models.ConfidenceHigh {
			continue
		}
		votes[d.SuggestedKey]++
	}

	// Resolve in dispatch order so a tie between two consensus keys is
	// deterministic.
	for _, id := range order {
		d := decisionOf(responses[id])
		if d == nil || d.SuggestedKey == "" || d.Confidence != models.ConfidenceHigh {
			continue
		}
		if votes[d.SuggestedKey] < models.KeyConsensusMinAgents {
			continue
		}
		key, err := musictheory.ParseKey(d.SuggestedKey)
		if err != nil {
			continue
		}
		s.ctx.Key = key.Name()
		s.ctx.Scale = key.Scale()
		s.ctx.ChordProgression = key.FallbackProgression()
		return true
	}

	// No key change: first high-confidence chord suggestion wins, in
	// dispatch order.
	for _, id := range order {
		d := decisionOf(responses[id])
		if d == nil || d.Confidence != models.ConfidenceHigh || len(d.SuggestedChords) == 0 {
			continue
		}
		s.ctx.ChordProgression = append([]string(nil), d.SuggestedChords...)
		return true
	}

	return false
}

func decisionOf(resp *models.AgentResponse) *models.Decision {
	if resp == nil {
		return nil
	}
	return resp.Decision
}

func roundHalf(v float64) int {
	if v >= 0 {
		return int(math.Floor(v + 0.5))
	}
	return int(math.Ceil(v - 0.5))
}
