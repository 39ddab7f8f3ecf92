package jam

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conceptual-Machines/jam-api/internal/models"
)

type harness struct {
	orch   *Orchestrator
	runner *fakeRunner
	clock  *fakeClock
	sub    *recordingSubscriber
}

func newHarness(t *testing.T, presets []models.JamPreset) *harness {
	t.Helper()
	runner := newFakeRunner()
	clock := newFakeClock()
	sub := &recordingSubscriber{}

	broadcaster := NewBroadcaster()
	broadcaster.Subscribe("test", sub)

	orch := NewOrchestrator(Config{
		Runner:       runner,
		Broadcaster:  broadcaster,
		Clock:        clock,
		DefaultModel: "gpt-5-mini",
		Presets:      presets,
	})
	t.Cleanup(orch.Close)

	return &harness{orch: orch, runner: runner, clock: clock, sub: sub}
}

// barrier waits until every queued command has been processed.
func (h *harness) barrier() *models.JamSnapshot {
	return h.orch.Snapshot()
}

func TestJamStart_Autonomous(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.queue(models.AgentDrums, respond(`s("bd sd hh hh")`, "laying the foundation"))
	h.runner.queue(models.AgentBass, respond(`note("a1 ~ c2 e2")`, "walking in"))

	require.NoError(t, h.orch.Start([]models.AgentID{models.AgentDrums, models.AgentBass}, models.ModeAutonomousOpening))

	snap := h.barrier()
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.RoundNumber)
	assert.ElementsMatch(t, []models.AgentID{models.AgentDrums, models.AgentBass}, snap.ActivatedAgents)
	assert.Equal(t, `s("bd sd hh hh")`, snap.Agents[models.AgentDrums].CurrentPattern)
	assert.Equal(t, models.StatusPlaying, snap.Agents[models.AgentDrums].Status)

	executes := h.sub.ofType(models.EventExecute)
	require.Len(t, executes, 1)
	payload := executes[0].Payload.(models.ExecutePayload)
	assert.Equal(t, `stack(s("bd sd hh hh"), note("a1 ~ c2 e2"))`, payload.Code)
	assert.True(t, payload.Changed)
}

func TestScenario_DirectiveWaitsForInFlightTick(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.queue(models.AgentDrums, respond(`s("bd sd")`, "opening"))

	require.NoError(t, h.orch.Start([]models.AgentID{models.AgentDrums}, models.ModeAutonomousOpening))

	gate := make(chan struct{})
	h.runner.setGate(gate)

	// The tick fires and its turn blocks inside the runner.
	h.clock.Advance(models.AutoTickInterval)
	// The directive arrives while the tick is still in flight.
	h.orch.Directive("More cowbell!", models.AgentDrums)

	gate <- struct{}{} // release the tick turn
	gate <- struct{}{} // release the directive turn
	h.runner.setGate(nil)
	h.barrier()

	assert.Equal(t, []int{1, 2, 3}, h.sub.rounds())
}

func TestScenario_TwoDirectivesSerialize(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.queue(models.AgentDrums, respond(`s("bd sd")`, "opening"))

	require.NoError(t, h.orch.Start([]models.AgentID{models.AgentDrums}, models.ModeAutonomousOpening))

	h.orch.Directive("Faster!", "")
	h.orch.Directive("Louder!", "")
	h.barrier()

	assert.Equal(t, []int{1, 2, 3}, h.sub.rounds())
}

func TestScenario_KeyConsensus(t *testing.T) {
	h := newHarness(t, nil)
	all := []models.AgentID{models.AgentDrums, models.AgentBass, models.AgentMelody, models.AgentChords}
	for _, id := range all {
		h.runner.queue(id, respond(models.PatternNoChange, "settling in"))
	}
	require.NoError(t, h.orch.Start(all, models.ModeAutonomousOpening))

	vote := &models.Decision{SuggestedKey: "G major", Confidence: models.ConfidenceHigh}
	h.runner.queue(models.AgentDrums, &models.AgentResponse{Pattern: models.PatternNoChange, Thoughts: "hearing G", Decision: vote})
	h.runner.queue(models.AgentBass, &models.AgentResponse{Pattern: models.PatternNoChange, Thoughts: "G feels right", Decision: vote})

	h.clock.Advance(models.AutoTickInterval)
	snap := h.barrier()

	require.NotNil(t, snap)
	assert.Equal(t, "G major", snap.MusicalContext.Key)
	assert.Equal(t, []string{"G", "A", "B", "C", "D", "E", "F#"}, snap.MusicalContext.Scale)
	assert.Equal(t, []string{"G", "Em", "C", "D"}, snap.MusicalContext.ChordProgression)
}

func TestScenario_ExplicitBPMBeatsRelativeTempo(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.queue(models.AgentDrums, respond(`s("bd sd")`, "opening"))
	require.NoError(t, h.orch.Start([]models.AgentID{models.AgentDrums}, models.ModeAutonomousOpening))

	// A model decision that would push tempo further is ignored on an
	// anchored axis.
	h.runner.queue(models.AgentDrums, &models.AgentResponse{
		Pattern:  models.PatternNoChange,
		Thoughts: "pushing",
		Decision: &models.Decision{TempoDeltaPct: intPtr(20), Confidence: models.ConfidenceHigh},
	})

	h.orch.Directive("BPM 140 and faster", "")
	snap := h.barrier()

	require.NotNil(t, snap)
	assert.Equal(t, 140, snap.MusicalContext.BPM)
}

func TestScenario_AutoTickSilenceCoerced(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.queue(models.AgentDrums, respond(`s("bd sd")`, "opening"))
	require.NoError(t, h.orch.Start([]models.AgentID{models.AgentDrums}, models.ModeAutonomousOpening))

	h.runner.queue(models.AgentDrums, &models.AgentResponse{
		Pattern:  models.PatternSilence,
		Thoughts: "thinking about resting",
		Decision: &models.Decision{Intent: models.IntentHold, Confidence: models.ConfidenceMedium},
	})

	h.clock.Advance(models.AutoTickInterval)
	snap := h.barrier()

	require.NotNil(t, snap)
	assert.Equal(t, `s("bd sd")`, snap.Agents[models.AgentDrums].CurrentPattern)
	assert.Equal(t, models.StatusPlaying, snap.Agents[models.AgentDrums].Status)
}

func TestScenario_DirectiveTargetNotInSession(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.queue(models.AgentDrums, respond(`s("bd sd")`, "opening"))
	require.NoError(t, h.orch.Start([]models.AgentID{models.AgentDrums}, models.ModeAutonomousOpening))

	h.orch.Directive("play a bassline", models.AgentBass)
	snap := h.barrier()

	errors := h.sub.ofType(models.EventDirectiveError)
	require.Len(t, errors, 1)
	payload := errors[0].Payload.(models.DirectiveErrorPayload)
	assert.Contains(t, payload.Message, "Bassist")
	assert.Contains(t, payload.Message, "not in this jam session")

	// No new jam_state_update, round unchanged.
	assert.Equal(t, []int{1}, h.sub.rounds())
	assert.Equal(t, 1, snap.RoundNumber)
}

func TestDirective_MuteCoercesToSilence(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.queue(models.AgentDrums, respond(`s("bd sd")`, "opening"))
	h.runner.queue(models.AgentBass, respond(`note("a1")`, "grounding"))
	require.NoError(t, h.orch.Start([]models.AgentID{models.AgentDrums, models.AgentBass}, models.ModeAutonomousOpening))

	h.orch.Directive("drums, drop out for a bit", models.AgentDrums)
	snap := h.barrier()

	require.NotNil(t, snap)
	assert.Equal(t, models.PatternSilence, snap.Agents[models.AgentDrums].CurrentPattern)
	assert.Equal(t, models.StatusMuted, snap.Agents[models.AgentDrums].Status)
	assert.Equal(t, "Muting for the boss.", snap.Agents[models.AgentDrums].Thoughts)
	assert.Equal(t, []models.AgentID{models.AgentDrums}, snap.MutedAgents)

	// The muted agent drops out of the composite.
	executes := h.sub.ofType(models.EventExecute)
	last := executes[len(executes)-1].Payload.(models.ExecutePayload)
	assert.Equal(t, `note("a1")`, last.Code)
}

func TestDirective_RetargetingUnmutes(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.queue(models.AgentDrums, respond(`s("bd sd")`, "opening"))
	require.NoError(t, h.orch.Start([]models.AgentID{models.AgentDrums}, models.ModeAutonomousOpening))

	h.orch.Directive("mute", models.AgentDrums)
	h.runner.queue(models.AgentDrums, respond(`s("bd*4")`, "back in"))
	h.orch.Directive("four on the floor", models.AgentDrums)
	snap := h.barrier()

	require.NotNil(t, snap)
	assert.Empty(t, snap.MutedAgents)
	assert.Equal(t, `s("bd*4")`, snap.Agents[models.AgentDrums].CurrentPattern)
	assert.Equal(t, models.StatusPlaying, snap.Agents[models.AgentDrums].Status)
}

func TestStagedSilent_PresetThenDirective(t *testing.T) {
	presets := []models.JamPreset{{
		ID: "house-classic", Name: "Classic House", Genre: "house",
		Key: "A minor", BPM: 124, TimeSignature: "4/4", Energy: 6,
	}}
	h := newHarness(t, presets)

	require.NoError(t, h.orch.Start([]models.AgentID{models.AgentDrums}, models.ModeStagedSilent))

	snap := h.barrier()
	require.NotNil(t, snap)
	assert.Equal(t, 0, snap.RoundNumber)
	assert.Empty(t, snap.ActivatedAgents)

	// Directives are refused until a preset is chosen.
	h.orch.Directive("go", "")
	h.barrier()
	errors := h.sub.ofType(models.EventDirectiveError)
	require.Len(t, errors, 1)
	assert.Equal(t, "Choose a genre preset and press Play before sending directives.",
		errors[0].Payload.(models.DirectiveErrorPayload).Message)

	require.NoError(t, h.orch.SetPreset("house-classic"))
	h.runner.queue(models.AgentDrums, respond(`s("bd*4 [~ cp]")`, "classic house kick"))
	h.orch.Directive("give me a house beat", models.AgentDrums)
	snap = h.barrier()

	require.NotNil(t, snap)
	assert.Equal(t, "house", snap.MusicalContext.Genre)
	assert.Equal(t, 124, snap.MusicalContext.BPM)
	assert.Equal(t, "A minor", snap.MusicalContext.Key)
	assert.Equal(t, []models.AgentID{models.AgentDrums}, snap.ActivatedAgents)
	assert.Equal(t, `s("bd*4 [~ cp]")`, snap.Agents[models.AgentDrums].CurrentPattern)
}

func TestSetPreset_RejectedAfterActivation(t *testing.T) {
	presets := []models.JamPreset{{ID: "techno-dark", Genre: "techno", Key: "F minor", BPM: 132, Energy: 7}}
	h := newHarness(t, presets)
	h.runner.queue(models.AgentDrums, respond(`s("bd sd")`, "opening"))
	require.NoError(t, h.orch.Start([]models.AgentID{models.AgentDrums}, models.ModeAutonomousOpening))

	err := h.orch.SetPreset("techno-dark")
	assert.Error(t, err)
}

func TestAutoTick_InvalidPatternKeepsPrevious(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.queue(models.AgentDrums, respond(`s("bd sd")`, "opening"))
	require.NoError(t, h.orch.Start([]models.AgentID{models.AgentDrums}, models.ModeAutonomousOpening))

	// Both the original and the repair retry return a malformed pattern.
	h.runner.queue(models.AgentDrums, respond(`s("bd [sd")`, "oops"))
	h.runner.queue(models.AgentDrums, respond(`s("bd [sd")`, "oops again"))

	h.clock.Advance(models.AutoTickInterval)
	snap := h.barrier()

	require.NotNil(t, snap)
	// The fallback keeps the groove alive.
	assert.Equal(t, `s("bd sd")`, snap.Agents[models.AgentDrums].CurrentPattern)
	assert.Equal(t, models.StatusPlaying, snap.Agents[models.AgentDrums].Status)
}

func TestAutoTick_NoChangeStreakTriggersCompaction(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.queue(models.AgentDrums, respond(`s("bd sd")`, "opening"))
	require.NoError(t, h.orch.Start([]models.AgentID{models.AgentDrums}, models.ModeAutonomousOpening))

	for i := 0; i < models.ThreadCompactionNoChangeStreak; i++ {
		h.clock.Advance(models.AutoTickInterval)
		h.barrier()
	}

	rt := h.orch.state.agents[models.AgentDrums]
	assert.True(t, rt.compactionPending)
	assert.Equal(t, 0, rt.noChangeStreak)

	// The next tick performs the deferred thread drop.
	h.clock.Advance(models.AutoTickInterval)
	h.barrier()
	assert.False(t, rt.compactionPending)
}

func TestAutoTick_TimerResetOnDirective(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.queue(models.AgentDrums, respond(`s("bd sd")`, "opening"))
	require.NoError(t, h.orch.Start([]models.AgentID{models.AgentDrums}, models.ModeAutonomousOpening))

	// Advance most of the way to the tick, then send a directive; the
	// tick deadline moves a full interval out.
	h.clock.Advance(models.AutoTickInterval - time.Second)
	h.orch.Directive("keep going", "")
	h.barrier()
	ticksBefore := len(h.sub.ofType(models.EventAutoTickFired))

	h.clock.Advance(2 * time.Second)
	h.barrier()
	assert.Equal(t, ticksBefore, len(h.sub.ofType(models.EventAutoTickFired)))

	h.clock.Advance(models.AutoTickInterval)
	h.barrier()
	assert.Equal(t, ticksBefore+1, len(h.sub.ofType(models.EventAutoTickFired)))
}

func TestStop_NoEventsAfterStop(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.queue(models.AgentDrums, respond(`s("bd sd")`, "opening"))
	require.NoError(t, h.orch.Start([]models.AgentID{models.AgentDrums}, models.ModeAutonomousOpening))

	require.NoError(t, h.orch.Stop())
	countAfterStop := len(h.sub.ofType(models.EventJamStateUpdate))

	// A late timer fire and a late directive are both no-ops.
	h.clock.Advance(models.AutoTickInterval)
	h.orch.Directive("anyone there?", "")
	assert.Nil(t, h.barrier())
	assert.Equal(t, countAfterStop, len(h.sub.ofType(models.EventJamStateUpdate)))
}

func TestTickCoalescing(t *testing.T) {
	h := newHarness(t, nil)
	// Simulate a tick already queued: a second fire is dropped.
	h.orch.tickQueued.Store(true)
	h.orch.fireTick()
	assert.Empty(t, h.orch.commands)
	h.orch.tickQueued.Store(false)
}

func TestGuaranteedCommentaryOnTargetedTimeout(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.queue(models.AgentDrums, respond(`s("bd sd")`, "opening"))
	require.NoError(t, h.orch.Start([]models.AgentID{models.AgentDrums}, models.ModeAutonomousOpening))

	// Both attempts of the targeted turn come back null.
	h.runner.queue(models.AgentDrums, nil)
	h.runner.queue(models.AgentDrums, nil)
	h.orch.Directive("More cowbell!", models.AgentDrums)
	h.barrier()

	commentary := h.sub.ofType(models.EventAgentCommentary)
	require.NotEmpty(t, commentary)
	last := commentary[len(commentary)-1].Payload.(models.AgentCommentaryPayload)
	assert.Equal(t, models.AgentDrums, last.Agent)
	assert.Equal(t, "Locking in your cue.", last.Text)
}
