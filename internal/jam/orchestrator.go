package jam

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Conceptual-Machines/jam-api/internal/directive"
	"github.com/Conceptual-Machines/jam-api/internal/llm"
	"github.com/Conceptual-Machines/jam-api/internal/logger"
	"github.com/Conceptual-Machines/jam-api/internal/models"
	"github.com/Conceptual-Machines/jam-api/internal/musictheory"
	"github.com/Conceptual-Machines/jam-api/internal/pattern"
	"github.com/Conceptual-Machines/jam-api/internal/prompt"
)

// TurnRunner executes one agent turn against an LLM session. Satisfied
// by llm.Runner; tests substitute a scripted fake.
type TurnRunner interface {
	RunTurn(ctx context.Context, session *llm.Session, prompt string) (*models.AgentResponse, llm.TurnStats, error)
}

// TurnObserver receives per-agent-turn usage records. Implementations
// must tolerate being called sequentially on the scheduler goroutine.
type TurnObserver interface {
	ObserveTurn(usage models.TurnUsage)
}

// Config wires an orchestrator.
type Config struct {
	Runner       TurnRunner
	Broadcaster  *Broadcaster
	Clock        Clock
	DefaultModel string
	Presets      []models.JamPreset
	Observers    []TurnObserver
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdDirective
	cmdAutoTick
	cmdSetPreset
	cmdAudio
	cmdSnapshot
)

type command struct {
	kind     commandKind
	agents   []models.AgentID
	mode     models.JamStartMode
	text     string
	target   models.AgentID
	presetID string
	audio    *models.AudioFeedback
	snapshot chan *models.JamSnapshot
	reply    chan error
}

// Orchestrator owns all mutable jam state. All turns run on one
// scheduler goroutine fed by a command channel; per-agent subprocesses
// run in parallel within a turn.
type Orchestrator struct {
	runner      TurnRunner
	loader      *prompt.Loader
	builder     *prompt.Builder
	broadcaster *Broadcaster
	clock       Clock
	observers   []TurnObserver
	presets     map[string]models.JamPreset

	commands chan command
	quit     chan struct{}
	done     chan struct{}

	// Owned by the scheduler goroutine.
	state      *sessionState
	tickTimer  Timer
	nextTickAt time.Time
	tickQueued atomic.Bool
}

// NewOrchestrator creates an orchestrator and starts its scheduler
// goroutine. Close shuts it down.
func NewOrchestrator(cfg Config) *Orchestrator {
	clock := cfg.Clock
	if clock == nil {
		clock = NewClock()
	}
	broadcaster := cfg.Broadcaster
	if broadcaster == nil {
		broadcaster = NewBroadcaster()
	}
	presets := make(map[string]models.JamPreset, len(cfg.Presets))
	for _, p := range cfg.Presets {
		presets[p.ID] = p
	}

	o := &Orchestrator{
		runner:      cfg.Runner,
		loader:      prompt.NewLoader(cfg.DefaultModel),
		builder:     prompt.NewBuilder(),
		broadcaster: broadcaster,
		clock:       clock,
		observers:   cfg.Observers,
		presets:     presets,
		commands:    make(chan command, 64),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go o.loop()
	return o
}

// Broadcaster exposes the fan-out for subscriber registration.
func (o *Orchestrator) Broadcaster() *Broadcaster { return o.broadcaster }

// Start creates a session with the given band members. Blocks until the
// jam-start turn (autonomous mode) or the initial snapshot
// (staged-silent mode) has been processed.
func (o *Orchestrator) Start(agents []models.AgentID, mode models.JamStartMode) error {
	reply := make(chan error, 1)
	o.enqueue(command{kind: cmdStart, agents: agents, mode: mode, reply: reply})
	return <-reply
}

// Stop ends the session: awaits the in-flight turn, terminates agent
// subprocesses, clears all state.
func (o *Orchestrator) Stop() error {
	reply := make(chan error, 1)
	o.enqueue(command{kind: cmdStop, reply: reply})
	return <-reply
}

// Directive enqueues a boss directive. It returns immediately; failures
// surface as directive_error events.
func (o *Orchestrator) Directive(text string, target models.AgentID) {
	o.enqueue(command{kind: cmdDirective, text: text, target: target})
}

// SetPreset configures a staged-silent session with a genre preset.
func (o *Orchestrator) SetPreset(presetID string) error {
	reply := make(chan error, 1)
	o.enqueue(command{kind: cmdSetPreset, presetID: presetID, reply: reply})
	return <-reply
}

// AudioFeedback stores the latest renderer feedback sample.
func (o *Orchestrator) AudioFeedback(snapshot models.AudioFeedback) {
	o.enqueue(command{kind: cmdAudio, audio: &snapshot})
}

// Snapshot returns the current jam state, or nil when no session runs.
func (o *Orchestrator) Snapshot() *models.JamSnapshot {
	reply := make(chan *models.JamSnapshot, 1)
	o.enqueue(command{kind: cmdSnapshot, snapshot: reply})
	return <-reply
}

// Close stops the scheduler goroutine. Any running session is stopped
// first.
func (o *Orchestrator) Close() {
	close(o.quit)
	<-o.done
}

func (o *Orchestrator) enqueue(cmd command) {
	select {
	case o.commands <- cmd:
	case <-o.quit:
		if cmd.reply != nil {
			cmd.reply <- fmt.Errorf("orchestrator closed")
		}
		if cmd.snapshot != nil {
			cmd.snapshot <- nil
		}
	}
}

// loop is the single consumer: one turn at a time, in arrival order.
func (o *Orchestrator) loop() {
	defer close(o.done)
	for {
		select {
		case <-o.quit:
			o.teardown()
			return
		case cmd := <-o.commands:
			o.handle(cmd)
		}
	}
}

func (o *Orchestrator) handle(cmd command) {
	switch cmd.kind {
	case cmdStart:
		err := o.runStart(cmd.agents, cmd.mode)
		cmd.reply <- err
	case cmdStop:
		o.teardown()
		cmd.reply <- nil
	case cmdDirective:
		o.runDirective(cmd.text, cmd.target)
	case cmdAutoTick:
		o.tickQueued.Store(false)
		o.runAutoTick()
	case cmdSetPreset:
		cmd.reply <- o.runSetPreset(cmd.presetID)
	case cmdAudio:
		if o.state != nil {
			if cmd.audio.CapturedAt.IsZero() {
				cmd.audio.CapturedAt = o.clock.Now()
			}
			o.state.audio = cmd.audio
		}
	case cmdSnapshot:
		if o.state == nil {
			cmd.snapshot <- nil
		} else {
			snap := o.state.snapshot(true)
			cmd.snapshot <- &snap
		}
	}
}

// teardown ends the session: stops the timer, terminates subprocesses,
// clears state. No events are emitted after this point.
func (o *Orchestrator) teardown() {
	if o.tickTimer != nil {
		o.tickTimer.Stop()
		o.tickTimer = nil
	}
	if o.state != nil {
		for _, rt := range o.state.agents {
			if rt.session != nil {
				rt.session.Terminate()
			}
		}
		logger.Info("Jam session stopped", logger.Fields{
			"session_id": o.state.id,
			"rounds":     o.state.round,
		})
		o.state = nil
	}
}

// runStart creates session state and either runs the autonomous opening
// turn or publishes a silent initial snapshot.
func (o *Orchestrator) runStart(agents []models.AgentID, mode models.JamStartMode) error {
	if o.state != nil {
		return fmt.Errorf("a jam session is already running")
	}
	if len(agents) == 0 {
		agents = []models.AgentID{models.AgentDrums, models.AgentBass, models.AgentMelody, models.AgentChords}
	}
	if mode == "" {
		mode = models.ModeAutonomousOpening
	}

	s := &sessionState{
		id:     uuid.New().String(),
		mode:   mode,
		agents: make(map[models.AgentID]*agentRuntime, len(agents)),
		muted:  make(map[models.AgentID]bool),
		ctx: models.MusicalContext{
			BPM:           120,
			TimeSignature: "4/4",
			Energy:        5,
		},
	}

	for _, id := range agents {
		meta, ok := models.MetaFor(id)
		if !ok {
			return fmt.Errorf("unknown agent %q", id)
		}
		persona, err := o.loader.LoadPersona(id)
		if err != nil {
			return fmt.Errorf("load persona for %s: %w", id, err)
		}
		s.agents[id] = &agentRuntime{
			meta:    meta,
			persona: persona,
			session: &llm.Session{
				Agent:        id,
				SystemPrompt: persona.SystemPrompt,
				Model:        persona.Model,
			},
			currentPattern: models.PatternSilence,
			status:         models.StatusIdle,
			lastUpdated:    o.clock.Now(),
		}
	}

	if mode == models.ModeAutonomousOpening {
		preset := o.randomPreset()
		if preset != nil {
			applyPreset(s, *preset)
		}
	}

	o.state = s
	logger.Info("Jam session started", logger.Fields{
		"session_id": s.id,
		"mode":       string(mode),
		"agents":     len(agents),
	})

	if mode == models.ModeStagedSilent {
		o.broadcaster.Publish(o.stateUpdateEvent(s, models.TurnJamStart))
		o.resetTick()
		return nil
	}

	o.runJamStart()
	return nil
}

// randomPreset picks a starting preset for autonomous openings. The
// clock seeds the choice so tests with a fixed clock are deterministic.
func (o *Orchestrator) randomPreset() *models.JamPreset {
	if len(o.presets) == 0 {
		return nil
	}
	ids := make([]string, 0, len(o.presets))
	for id := range o.presets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	pick := o.presets[ids[int(o.clock.Now().UnixNano())%len(ids)]]
	return &pick
}

func applyPreset(s *sessionState, preset models.JamPreset) {
	s.preset = &preset
	s.ctx.Genre = preset.Genre
	s.ctx.BPM = models.ClampBPM(preset.BPM)
	s.ctx.Energy = models.ClampEnergy(preset.Energy)
	if preset.TimeSignature != "" {
		s.ctx.TimeSignature = preset.TimeSignature
	}
	if key, err := musictheory.ParseKey(preset.Key); err == nil {
		s.ctx.Key = key.Name()
		s.ctx.Scale = key.Scale()
		s.ctx.ChordProgression = key.FallbackProgression()
	}
}

// runJamStart executes the autonomous opening turn for every agent.
func (o *Orchestrator) runJamStart() {
	s := o.state
	turnID := uuid.New().String()
	s.round++

	var targets []models.AgentID
	for _, meta := range models.BandRoster {
		if _, ok := s.agents[meta.ID]; ok {
			targets = append(targets, meta.ID)
			s.activate(meta.ID)
		}
	}

	prompts := make(map[models.AgentID]string, len(targets))
	for _, id := range targets {
		prompts[id] = o.builder.JamStart(prompt.TurnInput{
			Round:     s.round,
			Context:   s.ctx.Clone(),
			PeerLines: s.peerLinesFor(id, true),
			Audio:     s.freshAudio(o.clock.Now()),
		})
	}

	o.markThinking(targets)
	results := o.dispatch(s, targets, prompts, models.TurnJamStart, turnID, false)

	var events []models.Event
	var changed []models.AgentID
	for _, id := range targets {
		res := results[id]
		if res.err != nil {
			events = append(events, errorStatusEvent(id))
			continue
		}
		agentEvents, didChange := o.applyResponse(s, s.agents[id], res.resp, models.TurnJamStart, false)
		events = append(events, agentEvents...)
		if didChange {
			changed = append(changed, id)
		}
	}

	events = append(events, o.executeEvent(s, models.TurnJamStart, changed))
	events = append(events, o.stateUpdateEvent(s, models.TurnJamStart))
	o.broadcaster.PublishBatch(events)

	o.resetTick()
	logger.LogTurn(turnID, string(models.TurnJamStart), s.round, 0, len(targets), logger.Fields{
		"session_id": s.id,
	})
}

// runDirective executes one boss directive turn per §6.3 semantics.
func (o *Orchestrator) runDirective(text string, target models.AgentID) {
	s := o.state
	if s == nil {
		logger.Warn("Directive ignored: no running session", nil)
		return
	}

	if !s.presetConfigured() {
		o.directiveError("Choose a genre preset and press Play before sending directives.", target)
		o.resetTick()
		return
	}

	if target != "" {
		rt, ok := s.agents[target]
		if !ok {
			name := string(target)
			if meta, known := models.MetaFor(target); known {
				name = meta.Name
			}
			o.directiveError(fmt.Sprintf("%s is not in this jam session", name), target)
			o.resetTick()
			return
		}
		if rt.session == nil {
			o.directiveError(fmt.Sprintf("%s's process is unavailable", rt.meta.Name), target)
			o.resetTick()
			return
		}
	}

	isMute := directive.IsMute(text)
	if target != "" && s.muted[target] && !isMute {
		delete(s.muted, target)
		rt := s.agents[target]
		rt.compactionPending = false
		rt.noChangeStreak = 0
	}

	update, cues := directive.Parse(text, s.ctx.BPM)
	var anchored directive.ContextUpdate
	if update != nil {
		anchored = *update
	}

	var targets []models.AgentID
	if target != "" {
		s.activate(target)
		targets = []models.AgentID{target}
	} else {
		targets = s.participants()
		if len(targets) == 0 {
			o.directiveError("No band members are available for that directive.", "")
			o.resetTick()
			return
		}
	}

	contextChanged := o.applyAnchors(s, anchored)

	turnID := uuid.New().String()
	s.round++

	prompts := make(map[models.AgentID]string, len(targets))
	for _, id := range targets {
		prompts[id] = o.builder.Directive(prompt.TurnInput{
			Round:          s.round,
			Context:        s.ctx.Clone(),
			PeerLines:      s.peerLinesFor(id, false),
			Audio:          s.freshAudio(o.clock.Now()),
			CurrentPattern: s.agents[id].currentPattern,
			BossText:       text,
			Targeted:       target != "",
		})
	}

	o.markThinking(targets)
	for _, id := range targets {
		s.agents[id].compactionPending = false
	}

	results := o.dispatch(s, targets, prompts, models.TurnDirective, turnID, true)

	var events []models.Event
	var changed []models.AgentID
	responses := make(map[models.AgentID]*models.AgentResponse, len(targets))
	for _, id := range targets {
		res := results[id]
		rt := s.agents[id]

		if res.err != nil {
			events = append(events, errorStatusEvent(id))
			continue
		}

		if res.rejection != "" && res.resp == nil {
			events = append(events, models.Event{
				Type: models.EventDirectiveError,
				Payload: models.DirectiveErrorPayload{
					Message:     fmt.Sprintf("%s's pattern was rejected: %s", rt.meta.Name, res.rejection),
					TargetAgent: id,
				},
			})
		}

		if isMute && target == id {
			res.resp = &models.AgentResponse{Pattern: models.PatternSilence, Thoughts: mutedThoughts}
			s.muted[id] = true
		}
		responses[id] = res.resp

		agentEvents, didChange := o.applyResponse(s, rt, res.resp, models.TurnDirective, target == id)
		events = append(events, agentEvents...)
		if didChange {
			changed = append(changed, id)
		}
	}

	if applyDirectiveDrift(s, responses, cues, anchored) {
		contextChanged = true
	}
	if contextChanged {
		events = append(events, models.Event{
			Type:    models.EventMusicalContextUpdate,
			Payload: models.MusicalContextUpdatePayload{MusicalContext: s.ctx.Clone()},
		})
	}

	events = append(events, o.executeEvent(s, models.TurnDirective, changed))
	events = append(events, o.stateUpdateEvent(s, models.TurnDirective))
	o.broadcaster.PublishBatch(events)

	o.resetTick()
	logger.LogTurn(turnID, string(models.TurnDirective), s.round, 0, len(targets), logger.Fields{
		"session_id": s.id,
		"targeted":   target != "",
	})
}

// applyAnchors installs deterministic key/BPM/energy anchors. A key
// anchor installs the derived scale and a diatonic fallback progression.
func (o *Orchestrator) applyAnchors(s *sessionState, anchored directive.ContextUpdate) bool {
	changed := false
	if anchored.Key != nil {
		s.ctx.Key = anchored.Key.Name()
		s.ctx.Scale = anchored.Key.Scale()
		s.ctx.ChordProgression = anchored.Key.FallbackProgression()
		changed = true
	}
	if anchored.BPM != nil {
		s.ctx.BPM = models.ClampBPM(*anchored.BPM)
		changed = true
	}
	if anchored.Energy != nil {
		s.ctx.Energy = models.ClampEnergy(*anchored.Energy)
		changed = true
	}
	return changed
}

// runAutoTick executes one timer-driven listen-and-evolve turn.
func (o *Orchestrator) runAutoTick() {
	s := o.state
	if s == nil {
		return
	}
	if !s.presetConfigured() {
		o.resetTick()
		return
	}

	// Deferred thread compaction from the previous tick.
	for _, rt := range s.agents {
		if rt.compactionPending {
			if rt.session != nil {
				rt.session.DropThread()
			}
			rt.compactionPending = false
			rt.noChangeStreak = 0
			logger.Info("Agent thread compacted", logger.Fields{
				"session_id": s.id,
				"agent":      string(rt.meta.ID),
			})
		}
	}

	targets := s.participants()
	if len(targets) == 0 {
		o.resetTick()
		return
	}

	turnID := uuid.New().String()
	s.round++

	now := o.clock.Now()
	o.broadcaster.Publish(models.Event{
		Type: models.EventAutoTickFired,
		Payload: models.AutoTickFiredPayload{
			SessionID:    s.id,
			Round:        s.round,
			ActiveAgents: targets,
			AutoTick:     o.timing(now),
			FiredAtMs:    now.UnixMilli(),
		},
	})

	hadSound := make(map[models.AgentID]bool, len(targets))
	prompts := make(map[models.AgentID]string, len(targets))
	for _, id := range targets {
		rt := s.agents[id]
		hadSound[id] = rt.playing()
		prompts[id] = o.builder.AutoTick(prompt.TurnInput{
			Round:          s.round,
			Context:        s.ctx.Clone(),
			PeerLines:      s.peerLinesFor(id, false),
			Audio:          s.freshAudio(now),
			CurrentPattern: rt.currentPattern,
		})
	}

	o.markThinking(targets)
	results := o.dispatch(s, targets, prompts, models.TurnAutoTick, turnID, false)

	var events []models.Event
	var changed []models.AgentID
	responses := make(map[models.AgentID]*models.AgentResponse, len(targets))
	for _, id := range targets {
		res := results[id]
		rt := s.agents[id]

		if res.err != nil {
			events = append(events, errorStatusEvent(id))
			rt.noChangeStreak = 0
			continue
		}
		responses[id] = res.resp

		agentEvents, didChange := o.applyResponse(s, rt, res.resp, models.TurnAutoTick, false)
		events = append(events, agentEvents...)
		if didChange {
			changed = append(changed, id)
		}

		// No-change streak drives thread compaction on a later tick.
		if res.resp != nil && !didChange && hadSound[id] &&
			(res.resp.Pattern == models.PatternNoChange || res.resp.Pattern == models.PatternSilence) {
			rt.noChangeStreak++
			if rt.noChangeStreak >= models.ThreadCompactionNoChangeStreak {
				rt.compactionPending = true
				rt.noChangeStreak = 0
			}
		} else {
			rt.noChangeStreak = 0
		}
	}

	contextChanged := applyAutoTickDrift(s, responses)
	if applyContextSuggestions(s, targets, responses) {
		contextChanged = true
	}
	if contextChanged {
		events = append(events, models.Event{
			Type:    models.EventMusicalContextUpdate,
			Payload: models.MusicalContextUpdatePayload{MusicalContext: s.ctx.Clone()},
		})
	}

	events = append(events, o.executeEvent(s, models.TurnAutoTick, changed))
	events = append(events, o.stateUpdateEvent(s, models.TurnAutoTick))
	o.broadcaster.PublishBatch(events)

	o.resetTick()
	logger.LogTurn(turnID, string(models.TurnAutoTick), s.round, 0, len(targets), logger.Fields{
		"session_id": s.id,
	})
}

// runSetPreset configures a staged-silent session before activation.
func (o *Orchestrator) runSetPreset(presetID string) error {
	s := o.state
	if s == nil {
		return fmt.Errorf("no jam session is running")
	}
	if len(s.activated) > 0 {
		return fmt.Errorf("the jam is already underway; presets only apply before the first turn")
	}
	preset, ok := o.presets[presetID]
	if !ok {
		return fmt.Errorf("unknown preset %q", presetID)
	}

	applyPreset(s, preset)
	s.round++

	o.broadcaster.PublishBatch([]models.Event{
		{
			Type:    models.EventMusicalContextUpdate,
			Payload: models.MusicalContextUpdatePayload{MusicalContext: s.ctx.Clone()},
		},
		o.stateUpdateEvent(s, models.TurnSetPreset),
	})
	o.resetTick()
	return nil
}

// agentTurnResult is one agent's outcome within a turn.
type agentTurnResult struct {
	resp      *models.AgentResponse
	stats     llm.TurnStats
	err       error
	rejection string
}

// dispatch runs one turn for each target in parallel and blocks until
// all complete. Validation rejections (and, when repairNull is set,
// null responses) get exactly one repair retry.
func (o *Orchestrator) dispatch(s *sessionState, targets []models.AgentID, prompts map[models.AgentID]string, source models.TurnSource, turnID string, repairNull bool) map[models.AgentID]*agentTurnResult {
	results := make(map[models.AgentID]*agentTurnResult, len(targets))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range targets {
		rt := s.agents[id]
		basePrompt := prompts[id]
		wg.Add(1)
		go func(id models.AgentID, rt *agentRuntime) {
			defer wg.Done()
			res := o.runAgentTurn(rt, basePrompt, repairNull)
			mu.Lock()
			results[id] = res
			mu.Unlock()
		}(id, rt)
	}
	wg.Wait()

	for _, id := range targets {
		res := results[id]
		rt := s.agents[id]
		if res.err != nil {
			// Nonzero exit without transport retry: drop the process.
			logger.Error("Agent subprocess failed", res.err, logger.Fields{
				"session_id": s.id,
				"agent":      string(id),
			})
			rt.session = nil
			rt.status = models.StatusError
		}
		o.observeTurn(s, id, rt, source, turnID, res)
	}

	return results
}

// runAgentTurn executes the turn for one agent, including the single
// repair retry.
func (o *Orchestrator) runAgentTurn(rt *agentRuntime, basePrompt string, repairNull bool) *agentTurnResult {
	res := &agentTurnResult{}

	resp, stats, err := o.runner.RunTurn(context.Background(), rt.session, basePrompt)
	res.stats = stats
	if err != nil {
		res.err = err
		return res
	}

	if resp != nil {
		if vErr := pattern.Validate(resp.Pattern); vErr != nil {
			res.rejection = vErr.Error()
			resp = nil
		}
	}

	needRetry := resp == nil && (res.rejection != "" || repairNull)
	if needRetry {
		reason := res.rejection
		if reason == "" {
			reason = "no valid JSON response was produced"
		}
		retryResp, retryStats, retryErr := o.runner.RunTurn(context.Background(), rt.session, prompt.Repair(basePrompt, reason))
		res.stats.DurationMs += retryStats.DurationMs
		res.stats.CostUSD += retryStats.CostUSD
		res.stats.TimedOut = res.stats.TimedOut || retryStats.TimedOut
		if retryErr != nil {
			res.err = retryErr
			return res
		}
		if retryResp != nil {
			if vErr := pattern.Validate(retryResp.Pattern); vErr != nil {
				res.rejection = vErr.Error()
				retryResp = nil
			} else {
				res.rejection = ""
			}
		}
		resp = retryResp
	}

	res.resp = resp
	return res
}

func (o *Orchestrator) observeTurn(s *sessionState, id models.AgentID, rt *agentRuntime, source models.TurnSource, turnID string, res *agentTurnResult) {
	if len(o.observers) == 0 {
		return
	}
	usage := models.TurnUsage{
		SessionID:  s.id,
		TurnID:     turnID,
		Round:      s.round,
		Agent:      string(id),
		TurnSource: source,
		Model:      rt.persona.Model,
		DurationMs: res.stats.DurationMs,
		CostUSD:    res.stats.CostUSD,
		TimedOut:   res.stats.TimedOut,
		Failed:     res.err != nil,
	}
	for _, observer := range o.observers {
		observer.ObserveTurn(usage)
	}
}

// markThinking flips targets to thinking and announces it immediately,
// before the parallel dispatch.
func (o *Orchestrator) markThinking(targets []models.AgentID) {
	s := o.state
	for _, id := range targets {
		s.agents[id].status = models.StatusThinking
		o.broadcaster.Publish(models.Event{
			Type:    models.EventAgentStatus,
			Payload: models.AgentStatusPayload{Agent: id, Status: models.StatusThinking},
		})
	}
}

func errorStatusEvent(id models.AgentID) models.Event {
	return models.Event{
		Type:    models.EventAgentStatus,
		Payload: models.AgentStatusPayload{Agent: id, Status: models.StatusError},
	}
}

func (o *Orchestrator) directiveError(message string, target models.AgentID) {
	logger.Warn("Directive rejected", logger.Fields{
		"message": message,
		"target":  string(target),
	})
	o.broadcaster.Publish(models.Event{
		Type:    models.EventDirectiveError,
		Payload: models.DirectiveErrorPayload{Message: message, TargetAgent: target},
	})
}

func (o *Orchestrator) executeEvent(s *sessionState, source models.TurnSource, changed []models.AgentID) models.Event {
	return models.Event{
		Type: models.EventExecute,
		Payload: models.ExecutePayload{
			Code:          s.compositeProgram(),
			SessionID:     s.id,
			Round:         s.round,
			TurnSource:    source,
			ChangedAgents: changed,
			Changed:       len(changed) > 0,
			IssuedAtMs:    o.clock.Now().UnixMilli(),
		},
	}
}

func (o *Orchestrator) stateUpdateEvent(s *sessionState, source models.TurnSource) models.Event {
	return models.Event{
		Type: models.EventJamStateUpdate,
		Payload: models.JamStateUpdatePayload{
			JamState:        s.snapshot(true),
			CombinedPattern: s.compositeProgram(),
			TurnSource:      source,
		},
	}
}

// resetTick (re)arms the auto-tick timer and announces the new schedule.
func (o *Orchestrator) resetTick() {
	now := o.clock.Now()
	o.nextTickAt = now.Add(models.AutoTickInterval)
	if o.tickTimer == nil {
		o.tickTimer = o.clock.AfterFunc(models.AutoTickInterval, o.fireTick)
	} else {
		o.tickTimer.Reset(models.AutoTickInterval)
	}
	o.broadcaster.Publish(models.Event{
		Type:    models.EventAutoTickTiming,
		Payload: models.AutoTickTimingPayload{AutoTick: o.timing(now)},
	})
}

func (o *Orchestrator) timing(now time.Time) models.AutoTickTiming {
	return models.AutoTickTiming{
		IntervalMs:   models.AutoTickInterval.Milliseconds(),
		NextTickAtMs: o.nextTickAt.UnixMilli(),
		ServerNowMs:  now.UnixMilli(),
	}
}

// fireTick posts an auto-tick command with coalescing: at most one tick
// queued or in flight at any time.
func (o *Orchestrator) fireTick() {
	if !o.tickQueued.CompareAndSwap(false, true) {
		return
	}
	select {
	case o.commands <- command{kind: cmdAutoTick}:
	default:
		o.tickQueued.Store(false)
	}
}
