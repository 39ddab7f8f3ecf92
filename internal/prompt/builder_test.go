package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conceptual-Machines/jam-api/internal/models"
)

func testContext() models.MusicalContext {
	return models.MusicalContext{
		Genre:            "house",
		Key:              "A minor",
		Scale:            []string{"A", "B", "C", "D", "E", "F", "G"},
		ChordProgression: []string{"Am", "F", "C", "G"},
		BPM:              124,
		TimeSignature:    "4/4",
		Energy:           6,
	}
}

func TestPeerLine(t *testing.T) {
	meta, ok := models.MetaFor(models.AgentBass)
	require.True(t, ok)

	line := PeerLine(meta, "A minor", `note[a1 c2 e2] gain=0.8`, `note("a1 c2 e2").gain(0.8)`)
	assert.Equal(t, `🎸 Bassist (A minor) [note[a1 c2 e2] gain=0.8]: note("a1 c2 e2").gain(0.8)`, line)

	muted := PeerLine(meta, "", "", "")
	assert.Equal(t, "🎸 Bassist: silence", muted)
}

func TestJamStartPrompt(t *testing.T) {
	builder := NewBuilder()
	drums, _ := models.MetaFor(models.AgentDrums)

	out := builder.JamStart(TurnInput{
		Round:     1,
		Context:   testContext(),
		PeerLines: []string{PeerLine(drums, "", "", FirstRoundLine)},
	})

	assert.True(t, strings.HasPrefix(out, "JAM START — CONTEXT\n"))
	assert.Contains(t, out, "Genre: house")
	assert.Contains(t, out, "Key: A minor (A B C D E F G)")
	assert.Contains(t, out, "BPM: 124 | Time: 4/4 | Energy: 6/10")
	assert.Contains(t, out, "Chords: Am F C G")
	assert.Contains(t, out, "🥁 Drummer: first round — no pattern yet")
	assert.Contains(t, out, "The boss has not said anything yet.")
	assert.Contains(t, out, "You have no pattern yet.")
	assert.True(t, strings.HasSuffix(out, outputContract))
}

func TestDirectivePrompt(t *testing.T) {
	builder := NewBuilder()

	broadcast := builder.Directive(TurnInput{
		Round:          3,
		Context:        testContext(),
		CurrentPattern: `s("bd sd")`,
		BossText:       "Faster!",
	})
	assert.True(t, strings.HasPrefix(broadcast, "DIRECTIVE from the boss.\n"))
	assert.Contains(t, broadcast, "Round 3.")
	assert.Contains(t, broadcast, "BOSS SAYS: Faster!")
	assert.NotContains(t, broadcast, "BOSS SAYS TO YOU")
	assert.Contains(t, broadcast, "YOUR CURRENT PATTERN:\ns(\"bd sd\")")
	assert.Contains(t, broadcast, "Respond with your updated pattern.")

	targeted := builder.Directive(TurnInput{
		Round:    4,
		Context:  testContext(),
		BossText: "More cowbell!",
		Targeted: true,
	})
	assert.Contains(t, targeted, "BOSS SAYS TO YOU: More cowbell!")
	// An agent with no pattern yet sees silence.
	assert.Contains(t, targeted, "YOUR CURRENT PATTERN:\nsilence")
}

func TestAutoTickPrompt(t *testing.T) {
	builder := NewBuilder()
	bass, _ := models.MetaFor(models.AgentBass)

	out := builder.AutoTick(TurnInput{
		Round:          7,
		Context:        testContext(),
		PeerLines:      []string{PeerLine(bass, "A minor", "", `note("a1")`)},
		CurrentPattern: `s("bd sd hh hh")`,
		Audio:          &models.AudioFeedback{Summary: "dense low end, sparse highs"},
	})

	assert.True(t, strings.HasPrefix(out, "AUTO-TICK — LISTEN AND EVOLVE\n"))
	assert.Contains(t, out, "Round 7.")
	assert.Contains(t, out, "WHAT THE ROOM HEARS:\ndense low end, sparse highs")
	assert.Contains(t, out, `🎸 Bassist (A minor): note("a1")`)
	assert.Contains(t, out, `"no_change"`)
	assert.Contains(t, out, "deliberate strip-back")
}

func TestPromptsAreDeterministic(t *testing.T) {
	builder := NewBuilder()
	in := TurnInput{Round: 2, Context: testContext(), BossText: "swing it", CurrentPattern: "no_change"}
	assert.Equal(t, builder.Directive(in), builder.Directive(in))
}

func TestRepair(t *testing.T) {
	out := Repair("base prompt", "invalid pattern: unbalanced delimiters")
	assert.True(t, strings.HasPrefix(out, "base prompt"))
	assert.Contains(t, out, "rejected: invalid pattern: unbalanced delimiters")
	assert.Contains(t, out, "ONLY the strict JSON object")
}
