package models

import "time"

// Governance knobs. Every state transition is clamped and gated by
// these bounds.
const (
	BPMMin = 60
	BPMMax = 300

	EnergyMin = 1
	EnergyMax = 10

	TempoDeltaPctMin = -50
	TempoDeltaPctMax = 50

	EnergyDeltaMin = -3
	EnergyDeltaMax = 3

	AutoTickDampening = 0.5

	AutoTickInterval = 30 * time.Second
	AgentTimeout     = 15 * time.Second

	KeyConsensusMinAgents = 2

	CommentaryMaxChars              = 180
	CommentaryAutoTickMinRounds     = 2
	CommentaryRecentSignatureWindow = 3

	// Consecutive auto-tick no_change responses before the agent's LLM
	// thread is compacted (dropped and restarted on the next tick).
	ThreadCompactionNoChangeStreak = 3

	// AudioFeedbackTTL bounds how long a renderer feedback sample is
	// considered fresh enough to include in prompts.
	AudioFeedbackTTL = 45 * time.Second
)

// ClampBPM bounds a tempo to the playable range.
func ClampBPM(bpm int) int {
	if bpm < BPMMin {
		return BPMMin
	}
	if bpm > BPMMax {
		return BPMMax
	}
	return bpm
}

// ClampEnergy bounds an energy level to 1..10.
func ClampEnergy(energy int) int {
	if energy < EnergyMin {
		return EnergyMin
	}
	if energy > EnergyMax {
		return EnergyMax
	}
	return energy
}
