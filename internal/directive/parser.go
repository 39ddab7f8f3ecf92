// Package directive extracts deterministic musical anchors and relative
// cues from free-text boss directives. Parsing is a pure function: equal
// inputs always yield equal outputs, and anything the text does not
// explicitly state is left absent.
package directive

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Conceptual-Machines/jam-api/internal/models"
	"github.com/Conceptual-Machines/jam-api/internal/musictheory"
)

// CueDirection is the aggregate direction of relative phrases on one
// axis. Empty means no cue.
type CueDirection string

// Cue directions.
const (
	CueIncrease CueDirection = "increase"
	CueDecrease CueDirection = "decrease"
	CueMixed    CueDirection = "mixed"
)

// Cues is the relative-cue bitmap for one directive.
type Cues struct {
	Tempo  CueDirection
	Energy CueDirection
}

// ContextUpdate is a partial musical-context update from deterministic
// anchors. Nil fields were not anchored by the text.
type ContextUpdate struct {
	Key    *musictheory.Key
	BPM    *int
	Energy *int
}

// Empty reports whether no anchor was found.
func (u *ContextUpdate) Empty() bool {
	return u == nil || (u.Key == nil && u.BPM == nil && u.Energy == nil)
}

var (
	keyPhraseRe     = regexp.MustCompile(`(?i)\b(?:switch\s+(?:to\s+)?|change\s+(?:to\s+)?|(?:in\s+the\s+)?key\s+of\s+)([a-g][b#]?)(?:\s+(major|minor|maj|min))?\b`)
	keyStandaloneRe = regexp.MustCompile(`(?i)\b([a-g][b#]?)\s+(major|minor)\b`)

	bpmExplicitRe = regexp.MustCompile(`(?i)\b(?:bpm|tempo)\s*(?:to|at|of)?\s*(\d{2,3})\b|\b(\d{2,3})\s*bpm\b`)
	halfTimeRe    = regexp.MustCompile(`(?i)\bhalf[\s-]?time\b`)
	doubleTimeRe  = regexp.MustCompile(`(?i)\bdouble[\s-]?time\b`)

	energyExplicitRe = regexp.MustCompile(`(?i)\benergy\s*(?:to|at|of)?\s*(\d{1,2})\b`)
	energyMaxRe      = regexp.MustCompile(`(?i)\b(?:full|max)\s+energy\b`)
	energyMinRe      = regexp.MustCompile(`(?i)\bminimal\b`)

	tempoUpRe   = regexp.MustCompile(`(?i)\bfaster\b|\bspeed\s+(?:it\s+)?up\b|\bpick\s+up\s+the\s+pace\b|\bquicker\b`)
	tempoDownRe = regexp.MustCompile(`(?i)\bslower\b|\bslow\s+(?:it\s+)?down\b|\bease\s+(?:up|off)\b`)

	energyUpRe   = regexp.MustCompile(`(?i)\bmore\s+energy\b|\blouder\b|\bharder\b|\bhype(?:\s+it)?\b|\bpump\s+it\s+up\b|\bmore\s+intense\b|\bturn\s+(?:it\s+)?up\b`)
	energyDownRe = regexp.MustCompile(`(?i)\bless\s+energy\b|\bquieter\b|\bsofter\b|\bcalmer\b|\bchill(?:er)?\b|\bbring\s+it\s+down\b|\bmellow\b`)

	muteRe   = regexp.MustCompile(`(?i)\bmute\b|\bgo\s+silent\b|\bstop\s+playing\b|\bdrop\s+out\b|\blay\s+out\b|\bsit\s+out\b`)
	unmuteRe = regexp.MustCompile(`(?i)\bunmute\b`)
)

// Parse extracts deterministic anchors and relative cues from a
// directive. currentBPM feeds the half/double-time derivation. The
// returned update is nil when the text anchors nothing.
func Parse(text string, currentBPM int) (*ContextUpdate, Cues) {
	update := &ContextUpdate{}

	if key := parseKeyAnchor(text); key != nil {
		update.Key = key
	}
	if bpm := parseBPMAnchor(text, currentBPM); bpm != nil {
		update.BPM = bpm
	}
	if energy := parseEnergyAnchor(text); energy != nil {
		update.Energy = energy
	}

	cues := Cues{
		Tempo:  cueDirection(tempoUpRe.MatchString(text), tempoDownRe.MatchString(text)),
		Energy: cueDirection(energyUpRe.MatchString(text), energyDownRe.MatchString(text)),
	}

	if update.Empty() {
		return nil, cues
	}
	return update, cues
}

// IsMute reports whether the directive is an explicit mute instruction.
// An unmute mention anywhere disarms the match.
func IsMute(text string) bool {
	return muteRe.MatchString(text) && !unmuteRe.MatchString(text)
}

func parseKeyAnchor(text string) *musictheory.Key {
	if m := keyPhraseRe.FindStringSubmatch(text); m != nil {
		return buildKey(m[1], m[2])
	}
	if m := keyStandaloneRe.FindStringSubmatch(text); m != nil {
		return buildKey(m[1], m[2])
	}
	return nil
}

func buildKey(root, quality string) *musictheory.Key {
	normalized, err := musictheory.NormalizeRoot(root)
	if err != nil {
		return nil
	}
	q := musictheory.QualityMajor
	switch strings.ToLower(quality) {
	case "minor", "min":
		q = musictheory.QualityMinor
	}
	return &musictheory.Key{Root: normalized, Quality: q}
}

func parseBPMAnchor(text string, currentBPM int) *int {
	if m := bpmExplicitRe.FindStringSubmatch(text); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if value, err := strconv.Atoi(raw); err == nil {
			clamped := models.ClampBPM(value)
			return &clamped
		}
	}
	// Half/double-time derive from the current tempo; an explicit BPM
	// above already won.
	if doubleTimeRe.MatchString(text) {
		clamped := models.ClampBPM(currentBPM * 2)
		return &clamped
	}
	if halfTimeRe.MatchString(text) {
		clamped := models.ClampBPM(int(math.Round(float64(currentBPM) / 2)))
		return &clamped
	}
	return nil
}

func parseEnergyAnchor(text string) *int {
	if m := energyExplicitRe.FindStringSubmatch(text); m != nil {
		if value, err := strconv.Atoi(m[1]); err == nil {
			clamped := models.ClampEnergy(value)
			return &clamped
		}
	}
	if energyMaxRe.MatchString(text) {
		max := models.EnergyMax
		return &max
	}
	if energyMinRe.MatchString(text) {
		min := models.EnergyMin
		return &min
	}
	return nil
}

func cueDirection(up, down bool) CueDirection {
	switch {
	case up && down:
		return CueMixed
	case up:
		return CueIncrease
	case down:
		return CueDecrease
	default:
		return ""
	}
}
