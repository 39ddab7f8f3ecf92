// Package llm runs one LLM CLI subprocess per agent turn and maps its
// NDJSON stream into a small set of runtime events. Session continuity
// lives in the provider-side thread id, not in long-lived pipes.
package llm

import (
	"encoding/json"
	"strings"
)

// EventKind classifies a runtime event mapped from one NDJSON line.
type EventKind string

// Runtime event kinds.
const (
	EventText       EventKind = "text"
	EventToolUse    EventKind = "tool_use"
	EventToolResult EventKind = "tool_result"
	EventStatusDone EventKind = "status_done"
	EventError      EventKind = "error"
)

// RuntimeEvent is one normalized event from the subprocess stream.
type RuntimeEvent struct {
	Kind       EventKind
	Text       string
	ToolName   string
	ToolOutput string
	ErrMessage string
	DurationMs int64
	CostUSD    float64
}

// ParseState carries stream-shape state across lines. It is a value:
// MapEvent returns the next state rather than mutating.
type ParseState struct {
	ThreadID  string
	SawDeltas bool
}

// MapEvent maps one NDJSON line to runtime events. It is pure: the same
// line and state always produce the same events, next state, terminal
// flag, and assistant text fragments. Unrecognized lines are ignored.
func MapEvent(line []byte, state ParseState) (events []RuntimeEvent, next ParseState, done bool, fragments []string) {
	next = state

	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return nil, next, false, nil
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, next, false, nil
	}

	switch normalizeEventType(stringField(raw, "type")) {
	case "thread.started":
		if id := stringField(raw, "thread_id", "threadId", "id"); id != "" {
			next.ThreadID = id
		}

	case "item.agent.message.delta":
		if text := stringField(raw, "delta", "text", "content"); text != "" {
			next.SawDeltas = true
			events = append(events, RuntimeEvent{Kind: EventText, Text: text})
			fragments = append(fragments, text)
		}

	case "item.completed":
		itemEvents, itemFragments := mapCompletedItem(raw, state)
		events = append(events, itemEvents...)
		fragments = append(fragments, itemFragments...)

	case "item.mcp.tool.call.progress":
		name := stringField(raw, "tool", "name", "tool_name")
		events = append(events, RuntimeEvent{Kind: EventToolUse, ToolName: name})
		if output := stringField(raw, "result", "output", "content"); output != "" {
			events = append(events, RuntimeEvent{Kind: EventToolResult, ToolName: name, ToolOutput: output})
		}

	case "turn.completed":
		done = true
		event := RuntimeEvent{Kind: EventStatusDone}
		if ms, ok := numberField(raw, "duration_ms", "durationMs"); ok {
			event.DurationMs = int64(ms)
		}
		if usage, ok := raw["usage"].(map[string]any); ok {
			if cost, ok := numberField(usage, "cost_usd", "costUsd"); ok {
				event.CostUSD = cost
			}
		}
		events = append(events, event)

	case "turn.failed":
		done = true
		events = append(events, RuntimeEvent{Kind: EventError, ErrMessage: errorMessage(raw)})

	case "error":
		events = append(events, RuntimeEvent{Kind: EventError, ErrMessage: errorMessage(raw)})

	case "assistant":
		// Legacy stream format: text blocks inside message.content.
		for _, text := range legacyTextBlocks(raw) {
			next.SawDeltas = true
			events = append(events, RuntimeEvent{Kind: EventText, Text: text})
			fragments = append(fragments, text)
		}

	case "result":
		// Legacy terminal line.
		done = true
		events = append(events, RuntimeEvent{Kind: EventStatusDone})
	}

	return events, next, done, fragments
}

// mapCompletedItem handles item.completed for agent messages and MCP
// tool calls. A completed agent message contributes text only when no
// deltas were streamed first.
func mapCompletedItem(raw map[string]any, state ParseState) (events []RuntimeEvent, fragments []string) {
	item, ok := raw["item"].(map[string]any)
	if !ok {
		return nil, nil
	}

	switch normalizeEventType(stringField(item, "type", "item_type")) {
	case "agent.message":
		if state.SawDeltas {
			return nil, nil
		}
		if text := stringField(item, "text", "content"); text != "" {
			events = append(events, RuntimeEvent{Kind: EventText, Text: text})
			fragments = append(fragments, text)
		}

	case "mcp.tool.call":
		name := stringField(item, "tool", "name", "tool_name")
		events = append(events, RuntimeEvent{Kind: EventToolUse, ToolName: name})
		if output := stringField(item, "result", "output", "content"); output != "" {
			events = append(events, RuntimeEvent{Kind: EventToolResult, ToolName: name, ToolOutput: output})
		}
	}

	return events, fragments
}

// legacyTextBlocks extracts text blocks from a legacy assistant line:
// {type: "assistant", message: {content: [{type: "text", text: ...}]}}
func legacyTextBlocks(raw map[string]any) []string {
	message, ok := raw["message"].(map[string]any)
	if !ok {
		return nil
	}
	content, ok := message["content"].([]any)
	if !ok {
		return nil
	}

	var texts []string
	for _, entry := range content {
		block, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if stringField(block, "type") != "text" {
			continue
		}
		if text := stringField(block, "text"); text != "" {
			texts = append(texts, text)
		}
	}
	return texts
}

// normalizeEventType maps slash/underscore/camelCase type spellings to
// the canonical dotted form: "thread_started", "thread/started" and
// "threadStarted" all become "thread.started".
func normalizeEventType(raw string) string {
	if raw == "" {
		return ""
	}
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '/' || c == '_':
			sb.WriteByte('.')
		case c >= 'A' && c <= 'Z':
			if i > 0 {
				sb.WriteByte('.')
			}
			sb.WriteByte(c + ('a' - 'A'))
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func stringField(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := raw[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func numberField(raw map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if value, ok := raw[key].(float64); ok {
			return value, true
		}
	}
	return 0, false
}

func errorMessage(raw map[string]any) string {
	if msg := stringField(raw, "message", "error", "reason"); msg != "" {
		return msg
	}
	if errObj, ok := raw["error"].(map[string]any); ok {
		if msg := stringField(errObj, "message"); msg != "" {
			return msg
		}
	}
	return "unknown error"
}
