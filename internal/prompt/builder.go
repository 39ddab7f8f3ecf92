package prompt

import (
	"fmt"
	"strings"

	"github.com/Conceptual-Machines/jam-api/internal/models"
)

// FirstRoundLine is the band-state placeholder before a peer has played.
const FirstRoundLine = "first round — no pattern yet"

// TurnInput carries everything a turn prompt is built from.
type TurnInput struct {
	Round          int
	Context        models.MusicalContext
	PeerLines      []string
	Audio          *models.AudioFeedback
	CurrentPattern string
	BossText       string
	Targeted       bool
}

// Builder renders the three turn prompt templates.
type Builder struct{}

// NewBuilder creates a prompt builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// PeerLine formats one band-state line for a peer:
// emoji name (key) [summary]: pattern. Muted peers pass "silence".
func PeerLine(meta models.AgentMeta, key, summary, pattern string) string {
	var sb strings.Builder
	sb.WriteString(meta.Emoji)
	sb.WriteString(" ")
	sb.WriteString(meta.Name)
	if key != "" {
		sb.WriteString(" (")
		sb.WriteString(key)
		sb.WriteString(")")
	}
	if summary != "" {
		sb.WriteString(" [")
		sb.WriteString(summary)
		sb.WriteString("]")
	}
	sb.WriteString(": ")
	if pattern == "" {
		pattern = models.PatternSilence
	}
	sb.WriteString(pattern)
	return sb.String()
}

// JamStart renders the opening prompt for an autonomous-opening session.
func (b *Builder) JamStart(in TurnInput) string {
	var sb strings.Builder
	sb.WriteString("JAM START — CONTEXT\n")
	sb.WriteString("This is the first round of the jam.\n\n")
	b.writeContext(&sb, in.Context)
	b.writeAudio(&sb, in.Audio)
	b.writeBandState(&sb, in.PeerLines)
	sb.WriteString("The boss has not said anything yet.\n")
	sb.WriteString("You have no pattern yet. Open the jam for your role.\n\n")
	sb.WriteString(outputContract)
	return sb.String()
}

// Directive renders a boss-directive prompt, broadcast or targeted.
func (b *Builder) Directive(in TurnInput) string {
	var sb strings.Builder
	sb.WriteString("DIRECTIVE from the boss.\n")
	fmt.Fprintf(&sb, "Round %d.\n\n", in.Round)
	if in.Targeted {
		fmt.Fprintf(&sb, "BOSS SAYS TO YOU: %s\n\n", in.BossText)
	} else {
		fmt.Fprintf(&sb, "BOSS SAYS: %s\n\n", in.BossText)
	}
	b.writeContext(&sb, in.Context)
	b.writeCurrentPattern(&sb, in.CurrentPattern)
	b.writeAudio(&sb, in.Audio)
	b.writeBandState(&sb, in.PeerLines)
	sb.WriteString("Respond with your updated pattern.\n\n")
	sb.WriteString(outputContract)
	return sb.String()
}

// AutoTick renders the periodic listen-and-evolve prompt.
func (b *Builder) AutoTick(in TurnInput) string {
	var sb strings.Builder
	sb.WriteString("AUTO-TICK — LISTEN AND EVOLVE\n")
	fmt.Fprintf(&sb, "Round %d.\n\n", in.Round)
	b.writeContext(&sb, in.Context)
	b.writeAudio(&sb, in.Audio)
	b.writeBandState(&sb, in.PeerLines)
	b.writeCurrentPattern(&sb, in.CurrentPattern)
	sb.WriteString("Listen to the band. If your groove still serves the music, hold it\n")
	sb.WriteString("by returning \"no_change\". Do not return \"no_change\" many rounds in\n")
	sb.WriteString("a row while the band evolves; change something small instead. Use\n")
	sb.WriteString("\"silence\" only for a deliberate strip-back.\n\n")
	sb.WriteString(outputContract)
	return sb.String()
}

// Repair appends a rejection note to a prompt for the single retry of a
// response that failed validation or parsing.
func Repair(base, reason string) string {
	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\nNOTE: your previous response was rejected: ")
	sb.WriteString(reason)
	sb.WriteString("\nReturn ONLY the strict JSON object described above, with a valid pattern.\n")
	return sb.String()
}

func (b *Builder) writeContext(sb *strings.Builder, ctx models.MusicalContext) {
	if ctx.Genre != "" {
		fmt.Fprintf(sb, "Genre: %s\n", ctx.Genre)
	}
	if ctx.Key != "" {
		if len(ctx.Scale) > 0 {
			fmt.Fprintf(sb, "Key: %s (%s)\n", ctx.Key, strings.Join(ctx.Scale, " "))
		} else {
			fmt.Fprintf(sb, "Key: %s\n", ctx.Key)
		}
	}
	fmt.Fprintf(sb, "BPM: %d | Time: %s | Energy: %d/10\n", ctx.BPM, ctx.TimeSignature, ctx.Energy)
	if len(ctx.ChordProgression) > 0 {
		fmt.Fprintf(sb, "Chords: %s\n", strings.Join(ctx.ChordProgression, " "))
	}
	sb.WriteString("\n")
}

func (b *Builder) writeAudio(sb *strings.Builder, audio *models.AudioFeedback) {
	if audio == nil || audio.Summary == "" {
		return
	}
	sb.WriteString("WHAT THE ROOM HEARS:\n")
	sb.WriteString(audio.Summary)
	sb.WriteString("\n\n")
}

func (b *Builder) writeBandState(sb *strings.Builder, peerLines []string) {
	if len(peerLines) == 0 {
		return
	}
	sb.WriteString("BAND STATE:\n")
	for _, line := range peerLines {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func (b *Builder) writeCurrentPattern(sb *strings.Builder, pattern string) {
	if pattern == "" {
		pattern = models.PatternSilence
	}
	fmt.Fprintf(sb, "YOUR CURRENT PATTERN:\n%s\n\n", pattern)
}

const outputContract = `Respond with ONLY a JSON object:
{
  "pattern": "<pattern expression | no_change | silence>",
  "thoughts": "<one or two sentences on what you did and why>",
  "commentary": "<optional short line to the band>",
  "decision": {
    "tempo_delta_pct": <integer -50..50>,
    "energy_delta": <integer -3..3>,
    "arrangement_intent": "<build|breakdown|drop|strip_back|bring_forward|hold|no_change|transition>",
    "confidence": "<low|medium|high>",
    "suggested_key": "<key name, e.g. G major>",
    "suggested_chords": ["<chord>", "..."]
  }
}
"pattern" and "thoughts" are required; everything else is optional.`
