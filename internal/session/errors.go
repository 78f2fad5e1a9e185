package session

import (
	"errors"
	"fmt"
)

// ErrTurnLimitExceeded terminates a session that used up its turn budget.
// It is fatal for the session and never retried.
var ErrTurnLimitExceeded = errors.New("maximum agent turns exceeded")

// PolicyDeniedError is a path or URL rejection by a guard. It is normal
// control flow: the rejection is surfaced to the model as a tool failure so
// it can adapt, never retried by the runtime.
type PolicyDeniedError struct {
	Tool   string
	Target string
	Reason string
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("%s denied for %s: %s", e.Tool, e.Target, e.Reason)
}

// QuotaExceededError is a rate-limit rejection carrying the retry delay in
// whole seconds. The orchestrator never busy-retries it.
type QuotaExceededError struct {
	Tool       string
	RetryAfter int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s rate limited, retry after %ds", e.Tool, e.RetryAfter)
}

// ToolExecutionError wraps a failure from a tool that did run. It is
// recorded in metrics and fed back to the model as tool output.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// TransportError marks a client disconnect. It cancels the session and is
// not retried.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
