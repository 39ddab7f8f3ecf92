// Package jam is the orchestrator: it owns all mutable session state,
// serializes turns through a single-consumer command channel, enforces
// the governance rules on every state transition, and fans events out
// to subscribers.
package jam

import (
	"time"

	"github.com/Conceptual-Machines/jam-api/internal/llm"
	"github.com/Conceptual-Machines/jam-api/internal/models"
	"github.com/Conceptual-Machines/jam-api/internal/pattern"
	"github.com/Conceptual-Machines/jam-api/internal/prompt"
)

// agentRuntime is the orchestrator-owned mutable state of one band
// member. Only the scheduler goroutine touches it.
type agentRuntime struct {
	meta    models.AgentMeta
	persona *prompt.Persona
	session *llm.Session // nil once the agent's process is dropped

	currentPattern  string
	fallbackPattern string
	thoughts        string
	status          models.AgentStatus
	lastUpdated     time.Time

	// Commentary dedupe and cooldown state.
	commentarySigs      []string
	lastCommentaryRound int

	// Auto-tick no_change streak and the deferred compaction flag. The
	// thread drop happens at the start of the next auto-tick.
	noChangeStreak    int
	compactionPending bool
}

// playing reports whether the agent currently contributes sound.
func (rt *agentRuntime) playing() bool {
	return rt.currentPattern != "" && rt.currentPattern != models.PatternSilence
}

// sessionState is one live jam session. Created on start, mutated only
// by the scheduler goroutine, destroyed on stop.
type sessionState struct {
	id     string
	round  int
	ctx    models.MusicalContext
	mode   models.JamStartMode
	preset *models.JamPreset

	agents    map[models.AgentID]*agentRuntime
	activated []models.AgentID
	muted     map[models.AgentID]bool

	audio *models.AudioFeedback
}

// presetConfigured reports whether directives may run: autonomous
// sessions are configured from the start, staged-silent sessions only
// after set_jam_preset.
func (s *sessionState) presetConfigured() bool {
	return s.mode == models.ModeAutonomousOpening || s.preset != nil
}

// isActivated reports whether an agent has taken at least one turn.
func (s *sessionState) isActivated(id models.AgentID) bool {
	for _, a := range s.activated {
		if a == id {
			return true
		}
	}
	return false
}

// activate appends an agent to the activated list, preserving order.
func (s *sessionState) activate(id models.AgentID) {
	if !s.isActivated(id) {
		s.activated = append(s.activated, id)
	}
}

// participants returns activated, unmuted agents with live sessions,
// in activated order.
func (s *sessionState) participants() []models.AgentID {
	var out []models.AgentID
	for _, id := range s.activated {
		if s.muted[id] {
			continue
		}
		rt := s.agents[id]
		if rt == nil || rt.session == nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

// freshAudio returns the audio feedback sample if it is within its TTL.
func (s *sessionState) freshAudio(now time.Time) *models.AudioFeedback {
	if s.audio == nil || now.Sub(s.audio.CapturedAt) > models.AudioFeedbackTTL {
		return nil
	}
	return s.audio
}

// compositeProgram composes the band's patterns: silence when nothing
// plays, the single pattern when one agent plays, else stack(...) in
// activated order.
func (s *sessionState) compositeProgram() string {
	var parts []string
	for _, id := range s.activated {
		if s.muted[id] {
			continue
		}
		rt := s.agents[id]
		if rt == nil || !rt.playing() {
			continue
		}
		parts = append(parts, rt.currentPattern)
	}
	switch len(parts) {
	case 0:
		return models.PatternSilence
	case 1:
		return parts[0]
	default:
		return "stack(" + joinPatterns(parts) + ")"
	}
}

func joinPatterns(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}

// snapshot builds the externally visible session view. All slices and
// maps are copies.
func (s *sessionState) snapshot(running bool) models.JamSnapshot {
	agents := make(map[models.AgentID]models.AgentSnapshot, len(s.agents))
	for id, rt := range s.agents {
		agents[id] = models.AgentSnapshot{
			ID:             id,
			Name:           rt.meta.Name,
			Emoji:          rt.meta.Emoji,
			CurrentPattern: rt.currentPattern,
			Thoughts:       rt.thoughts,
			Status:         rt.status,
			LastUpdated:    rt.lastUpdated,
		}
	}

	var muted []models.AgentID
	for _, id := range s.activated {
		if s.muted[id] {
			muted = append(muted, id)
		}
	}

	presetID := ""
	if s.preset != nil {
		presetID = s.preset.ID
	}

	return models.JamSnapshot{
		SessionID:       s.id,
		RoundNumber:     s.round,
		MusicalContext:  s.ctx.Clone(),
		Agents:          agents,
		ActivatedAgents: append([]models.AgentID(nil), s.activated...),
		MutedAgents:     muted,
		PresetID:        presetID,
		StartMode:       s.mode,
		Running:         running,
	}
}

// peerLinesFor builds the band-state lines shown to one agent: every
// other active agent, muted peers as silence.
func (s *sessionState) peerLinesFor(agent models.AgentID, firstRound bool) []string {
	var lines []string
	for _, meta := range models.BandRoster {
		if meta.ID == agent {
			continue
		}
		rt := s.agents[meta.ID]
		if rt == nil {
			continue
		}
		if firstRound {
			lines = append(lines, prompt.PeerLine(meta, "", "", prompt.FirstRoundLine))
			continue
		}
		p := rt.currentPattern
		if s.muted[meta.ID] || p == "" {
			p = models.PatternSilence
		}
		summary := ""
		if p != models.PatternSilence && p != models.PatternNoChange {
			summary = pattern.Summarize(p)
		}
		lines = append(lines, prompt.PeerLine(meta, s.ctx.Key, summary, p))
	}
	return lines
}
