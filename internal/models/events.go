package models

// EventType identifies a push-channel event.
type EventType string

// Push channel event types.
const (
	EventJamStateUpdate       EventType = "jam_state_update"
	EventAgentThought         EventType = "agent_thought"
	EventAgentCommentary      EventType = "agent_commentary"
	EventAgentStatus          EventType = "agent_status"
	EventMusicalContextUpdate EventType = "musical_context_update"
	EventExecute              EventType = "execute"
	EventDirectiveError       EventType = "directive_error"
	EventAutoTickTiming       EventType = "auto_tick_timing_update"
	EventAutoTickFired        EventType = "auto_tick_fired"
)

// Event is one typed message on the push channel.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// JamStateUpdatePayload carries the full snapshot plus the composite
// program after a state transition.
type JamStateUpdatePayload struct {
	JamState        JamSnapshot `json:"jamState"`
	CombinedPattern string      `json:"combinedPattern"`
	TurnSource      TurnSource  `json:"turnSource,omitempty"`
}

// AgentThoughtPayload is one agent's free-text reasoning for the round.
type AgentThoughtPayload struct {
	Agent     AgentID `json:"agent"`
	Emoji     string  `json:"emoji"`
	Thought   string  `json:"thought"`
	Pattern   string  `json:"pattern"`
	Timestamp int64   `json:"timestamp"`
}

// AgentCommentaryPayload is a short chat line from an agent.
type AgentCommentaryPayload struct {
	Agent     AgentID `json:"agent"`
	Emoji     string  `json:"emoji"`
	Text      string  `json:"text"`
	Timestamp int64   `json:"timestamp"`
}

// AgentStatusPayload announces a status transition.
type AgentStatusPayload struct {
	Agent  AgentID     `json:"agent"`
	Status AgentStatus `json:"status"`
}

// MusicalContextUpdatePayload carries the new shared context.
type MusicalContextUpdatePayload struct {
	MusicalContext MusicalContext `json:"musicalContext"`
}

// ExecutePayload hands the composite program to the rendering client.
type ExecutePayload struct {
	Code          string     `json:"code"`
	SessionID     string     `json:"sessionId"`
	Round         int        `json:"round"`
	TurnSource    TurnSource `json:"turnSource"`
	ChangedAgents []AgentID  `json:"changedAgents"`
	Changed       bool       `json:"changed"`
	IssuedAtMs    int64      `json:"issuedAtMs"`
}

// DirectiveErrorPayload reports a rejected or failed directive.
type DirectiveErrorPayload struct {
	Message     string  `json:"message"`
	TargetAgent AgentID `json:"targetAgent,omitempty"`
}

// AutoTickTiming describes the current auto-tick schedule.
type AutoTickTiming struct {
	IntervalMs   int64 `json:"intervalMs"`
	NextTickAtMs int64 `json:"nextTickAtMs"`
	ServerNowMs  int64 `json:"serverNowMs"`
}

// AutoTickTimingPayload is emitted on every timer reset.
type AutoTickTimingPayload struct {
	AutoTick AutoTickTiming `json:"autoTick"`
}

// AutoTickFiredPayload is emitted when the timer fires, before dispatch.
type AutoTickFiredPayload struct {
	SessionID    string         `json:"sessionId"`
	Round        int            `json:"round"`
	ActiveAgents []AgentID      `json:"activeAgents"`
	AutoTick     AutoTickTiming `json:"autoTick"`
	FiredAtMs    int64          `json:"firedAtMs"`
}
