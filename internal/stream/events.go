// Package stream defines the typed event protocol delivered to a session's
// client and the per-session channel that carries it.
package stream

import (
	"encoding/json"
	"fmt"
)

// Type identifies an event variant on the wire.
type Type string

const (
	TypeStreamStart  Type = "stream_start"
	TypeDelta        Type = "delta"
	TypePhase        Type = "phase"
	TypeTool         Type = "tool"
	TypeStreamEnd    Type = "stream_end"
	TypeError        Type = "error"
	TypeFilesUpdated Type = "files_updated"
)

// Phase is a coarse progress phase of a running session.
type Phase string

const (
	PhaseThinking    Phase = "thinking"
	PhaseCodeWriting Phase = "code-writing"
	PhaseBuilding    Phase = "building"
	PhaseCompleted   Phase = "completed"
)

// Event is the closed set of protocol events. Every variant carries the
// identifier of the session it belongs to, and is immutable once built.
type Event interface {
	EventType() Type
	Session() string
}

// StreamStart announces that new turn-loop output begins.
type StreamStart struct {
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId"`
}

// Delta carries incremental token text.
type Delta struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// PhaseChange reports a coarse progress phase transition.
type PhaseChange struct {
	SessionID string `json:"sessionId"`
	Name      Phase  `json:"name"`
}

// ToolBoundary marks the start or end of a tool invocation.
type ToolBoundary struct {
	SessionID string `json:"sessionId"`
	Event     string `json:"event"` // "start" or "end"
	ToolUseID string `json:"toolUseId"`
	ToolName  string `json:"toolName"`
	Outcome   string `json:"outcome,omitempty"` // set on "end"
}

// Usage is the token accounting attached to a successful termination.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// StreamEnd reports successful turn-loop termination.
type StreamEnd struct {
	SessionID string `json:"sessionId"`
	Usage     *Usage `json:"usage,omitempty"`
}

// Error reports turn-loop failure. Message is always human-readable and
// sanitized; raw internal errors never cross this boundary.
type Error struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// FilesUpdated is the side-channel notification of filesystem changes.
type FilesUpdated struct {
	SessionID string   `json:"sessionId"`
	Files     []string `json:"files"`
}

func (StreamStart) EventType() Type  { return TypeStreamStart }
func (Delta) EventType() Type       { return TypeDelta }
func (PhaseChange) EventType() Type { return TypePhase }
func (ToolBoundary) EventType() Type {
	return TypeTool
}
func (StreamEnd) EventType() Type    { return TypeStreamEnd }
func (Error) EventType() Type        { return TypeError }
func (FilesUpdated) EventType() Type { return TypeFilesUpdated }

func (e StreamStart) Session() string  { return e.SessionID }
func (e Delta) Session() string        { return e.SessionID }
func (e PhaseChange) Session() string  { return e.SessionID }
func (e ToolBoundary) Session() string { return e.SessionID }
func (e StreamEnd) Session() string    { return e.SessionID }
func (e Error) Session() string        { return e.SessionID }
func (e FilesUpdated) Session() string { return e.SessionID }

// Marshal encodes an event as one JSON object with its "type" tag inlined.
// The switch is exhaustive over the closed set; adding a variant without
// extending it is a compile-adjacent error caught here.
func Marshal(e Event) ([]byte, error) {
	switch ev := e.(type) {
	case StreamStart:
		return json.Marshal(struct {
			Type Type `json:"type"`
			StreamStart
		}{TypeStreamStart, ev})
	case Delta:
		return json.Marshal(struct {
			Type Type `json:"type"`
			Delta
		}{TypeDelta, ev})
	case PhaseChange:
		return json.Marshal(struct {
			Type Type `json:"type"`
			PhaseChange
		}{TypePhase, ev})
	case ToolBoundary:
		return json.Marshal(struct {
			Type Type `json:"type"`
			ToolBoundary
		}{TypeTool, ev})
	case StreamEnd:
		return json.Marshal(struct {
			Type Type `json:"type"`
			StreamEnd
		}{TypeStreamEnd, ev})
	case Error:
		return json.Marshal(struct {
			Type Type `json:"type"`
			Error
		}{TypeError, ev})
	case FilesUpdated:
		return json.Marshal(struct {
			Type Type `json:"type"`
			FilesUpdated
		}{TypeFilesUpdated, ev})
	default:
		return nil, fmt.Errorf("unknown stream event %T", e)
	}
}
