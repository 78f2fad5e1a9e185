// Package tool provides the guarded tool surface the agent loop can invoke.
package tool

import (
	"context"
	"encoding/json"
)

// Tool defines the interface for all tools.
type Tool interface {
	// ID returns the tool identifier.
	ID() string

	// Description returns the tool description shown to the model.
	Description() string

	// Parameters returns the JSON Schema for tool parameters.
	Parameters() json.RawMessage

	// Execute executes the tool with the given input.
	Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error)
}

// PathResolver is implemented by filesystem-affecting tools so the
// orchestrator can authorize the target paths before execution.
type PathResolver interface {
	ResolvePaths(input json.RawMessage) []string
}

// URLResolver is implemented by network-affecting tools so the orchestrator
// can validate the target URL before execution.
type URLResolver interface {
	ResolveURL(input json.RawMessage) string
}

// Context provides execution context to tools.
type Context struct {
	SessionID string
	MessageID string
	CallID    string
}

// Result represents the output of a tool execution. Output is fed back to
// the model; Metadata travels with the invocation record.
type Result struct {
	Title    string         `json:"title"`
	Output   string         `json:"output"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
