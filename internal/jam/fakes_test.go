package jam

import (
	"context"
	"sync"
	"time"

	"github.com/Conceptual-Machines/jam-api/internal/llm"
	"github.com/Conceptual-Machines/jam-api/internal/models"
)

// fakeClock is a manually advanced clock. Timer callbacks run
// synchronously inside Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	f        func()
	stopped  bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.deadline.After(c.now) {
			t.stopped = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped
	t.deadline = t.clock.now.Add(d)
	t.stopped = false
	return active
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped
	t.stopped = true
	return active
}

// fakeRunner serves scripted responses per agent. An optional gate
// blocks every RunTurn call until the test sends a token, which lets a
// test hold a turn in flight.
type fakeRunner struct {
	mu        sync.Mutex
	responses map[models.AgentID][]*models.AgentResponse
	errs      map[models.AgentID]error
	gate      chan struct{}
	calls     []runnerCall
}

type runnerCall struct {
	agent  models.AgentID
	prompt string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		responses: make(map[models.AgentID][]*models.AgentResponse),
		errs:      make(map[models.AgentID]error),
	}
}

// queue appends a scripted response for an agent. A nil response
// simulates a timeout or parse failure.
func (f *fakeRunner) queue(agent models.AgentID, resp *models.AgentResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[agent] = append(f.responses[agent], resp)
}

func (f *fakeRunner) setGate(gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = gate
}

func (f *fakeRunner) callsFor(agent models.AgentID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var prompts []string
	for _, c := range f.calls {
		if c.agent == agent {
			prompts = append(prompts, c.prompt)
		}
	}
	return prompts
}

func (f *fakeRunner) RunTurn(_ context.Context, session *llm.Session, turnPrompt string) (*models.AgentResponse, llm.TurnStats, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, runnerCall{agent: session.Agent, prompt: turnPrompt})

	if err := f.errs[session.Agent]; err != nil {
		return nil, llm.TurnStats{}, err
	}

	queue := f.responses[session.Agent]
	if len(queue) == 0 {
		return &models.AgentResponse{Pattern: models.PatternNoChange, Thoughts: "holding"}, llm.TurnStats{}, nil
	}
	resp := queue[0]
	f.responses[session.Agent] = queue[1:]
	return resp, llm.TurnStats{DurationMs: 40}, nil
}

// recordingSubscriber captures every published event.
type recordingSubscriber struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordingSubscriber) Send(event models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSubscriber) ofType(t models.EventType) []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// rounds extracts the round sequence from jam_state_update events.
func (r *recordingSubscriber) rounds() []int {
	var out []int
	for _, e := range r.ofType(models.EventJamStateUpdate) {
		payload := e.Payload.(models.JamStateUpdatePayload)
		out = append(out, payload.JamState.RoundNumber)
	}
	return out
}

func intPtr(v int) *int { return &v }

func respond(pattern, thoughts string) *models.AgentResponse {
	return &models.AgentResponse{Pattern: pattern, Thoughts: thoughts}
}
