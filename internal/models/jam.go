package models

import "time"

// AgentID identifies one of the four fixed band members.
type AgentID string

// The band. Agent ids are stable wire identifiers; persona files and
// display metadata hang off AgentMeta.
const (
	AgentDrums  AgentID = "drums"
	AgentBass   AgentID = "bass"
	AgentMelody AgentID = "melody"
	AgentChords AgentID = "chords"
)

// AgentMeta is the static metadata for a band member.
type AgentMeta struct {
	ID          AgentID `json:"id"`
	Name        string  `json:"name"`
	Emoji       string  `json:"emoji"`
	PersonaFile string  `json:"-"`
}

// BandRoster is the fixed agent catalog, in canonical stack order.
var BandRoster = []AgentMeta{
	{ID: AgentDrums, Name: "Drummer", Emoji: "🥁", PersonaFile: "drummer"},
	{ID: AgentBass, Name: "Bassist", Emoji: "🎸", PersonaFile: "bassist"},
	{ID: AgentMelody, Name: "Melody", Emoji: "🎹", PersonaFile: "melody"},
	{ID: AgentChords, Name: "Chords", Emoji: "🎶", PersonaFile: "chords"},
}

// MetaFor returns the static metadata for an agent id.
func MetaFor(id AgentID) (AgentMeta, bool) {
	for _, meta := range BandRoster {
		if meta.ID == id {
			return meta, true
		}
	}
	return AgentMeta{}, false
}

// AgentStatus is the lifecycle state of a band member.
type AgentStatus string

// Agent status values.
const (
	StatusIdle     AgentStatus = "idle"
	StatusThinking AgentStatus = "thinking"
	StatusPlaying  AgentStatus = "playing"
	StatusMuted    AgentStatus = "muted"
	StatusError    AgentStatus = "error"
	StatusTimeout  AgentStatus = "timeout"
)

// Pattern sentinels. PatternSilence means "play nothing"; PatternNoChange
// means "keep my current pattern playing".
const (
	PatternSilence  = "silence"
	PatternNoChange = "no_change"
)

// MusicalContext is the shared musical state of the jam.
type MusicalContext struct {
	Genre            string   `json:"genre"`
	Key              string   `json:"key"`
	Scale            []string `json:"scale"`
	ChordProgression []string `json:"chordProgression"`
	BPM              int      `json:"bpm"`
	TimeSignature    string   `json:"timeSignature"`
	Energy           int      `json:"energy"`
}

// Clone returns a deep copy so broadcast snapshots never alias the
// orchestrator-owned slices.
func (m MusicalContext) Clone() MusicalContext {
	out := m
	out.Scale = append([]string(nil), m.Scale...)
	out.ChordProgression = append([]string(nil), m.ChordProgression...)
	return out
}

// Confidence weights a structured decision.
type Confidence string

// Decision confidence levels.
const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Multiplier returns the aggregation weight for a confidence level.
func (c Confidence) Multiplier() float64 {
	switch c {
	case ConfidenceHigh:
		return 1
	case ConfidenceMedium:
		return 0.5
	default:
		return 0
	}
}

// ArrangementIntent is the closed enum of arrangement moves an agent can
// signal in a decision.
type ArrangementIntent string

// Arrangement intents.
const (
	IntentBuild        ArrangementIntent = "build"
	IntentBreakdown    ArrangementIntent = "breakdown"
	IntentDrop         ArrangementIntent = "drop"
	IntentStripBack    ArrangementIntent = "strip_back"
	IntentBringForward ArrangementIntent = "bring_forward"
	IntentHold         ArrangementIntent = "hold"
	IntentNoChange     ArrangementIntent = "no_change"
	IntentTransition   ArrangementIntent = "transition"
)

// Decision is the optional structured block attached to an agent
// response. Fields that failed validation are absent (nil / zero); a
// decision with nothing left is dropped entirely.
type Decision struct {
	TempoDeltaPct   *int              `json:"tempoDeltaPct,omitempty"`
	EnergyDelta     *int              `json:"energyDelta,omitempty"`
	Intent          ArrangementIntent `json:"arrangementIntent,omitempty"`
	Confidence      Confidence        `json:"confidence,omitempty"`
	SuggestedKey    string            `json:"suggestedKey,omitempty"`
	SuggestedChords []string          `json:"suggestedChords,omitempty"`
}

// Empty reports whether nothing survived validation.
func (d *Decision) Empty() bool {
	return d == nil || (d.TempoDeltaPct == nil && d.EnergyDelta == nil &&
		d.Intent == "" && d.SuggestedKey == "" && len(d.SuggestedChords) == 0)
}

// AgentResponse is one parsed and shape-validated LLM turn result.
type AgentResponse struct {
	Pattern    string    `json:"pattern"`
	Thoughts   string    `json:"thoughts"`
	Commentary string    `json:"commentary,omitempty"`
	Decision   *Decision `json:"decision,omitempty"`
}

// JamStartMode selects how a session opens.
type JamStartMode string

// Session start modes.
const (
	ModeAutonomousOpening JamStartMode = "autonomous_opening"
	ModeStagedSilent      JamStartMode = "staged_silent"
)

// TurnSource labels which kind of turn produced a state transition.
type TurnSource string

// Turn sources.
const (
	TurnJamStart  TurnSource = "jam_start"
	TurnDirective TurnSource = "directive"
	TurnAutoTick  TurnSource = "auto_tick"
	TurnSetPreset TurnSource = "set_preset"
)

// AgentSnapshot is the externally visible view of one band member.
type AgentSnapshot struct {
	ID             AgentID     `json:"id"`
	Name           string      `json:"name"`
	Emoji          string      `json:"emoji"`
	CurrentPattern string      `json:"currentPattern"`
	Thoughts       string      `json:"thoughts"`
	Status         AgentStatus `json:"status"`
	LastUpdated    time.Time   `json:"lastUpdated"`
}

// JamSnapshot is the full session view published with every
// jam_state_update event.
type JamSnapshot struct {
	SessionID       string                    `json:"sessionId"`
	RoundNumber     int                       `json:"roundNumber"`
	MusicalContext  MusicalContext            `json:"musicalContext"`
	Agents          map[AgentID]AgentSnapshot `json:"agents"`
	ActivatedAgents []AgentID                 `json:"activatedAgents"`
	MutedAgents     []AgentID                 `json:"mutedAgents"`
	PresetID        string                    `json:"presetId,omitempty"`
	StartMode       JamStartMode              `json:"startMode"`
	Running         bool                      `json:"running"`
}

// AudioFeedback is an optional freshness-bounded sample of what the
// renderer is actually producing, summarized into prompts.
type AudioFeedback struct {
	Summary    string    `json:"summary"`
	RMS        float64   `json:"rms,omitempty"`
	Centroid   float64   `json:"centroid,omitempty"`
	CapturedAt time.Time `json:"capturedAt"`
}

// JamPreset is a genre starting point for staged-silent sessions and
// random autonomous openings.
type JamPreset struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Genre         string `json:"genre"`
	Key           string `json:"key"`
	BPM           int    `json:"bpm"`
	TimeSignature string `json:"timeSignature"`
	Energy        int    `json:"energy"`
}
