package session

import (
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/appforge-ai/appforge/internal/stream"
)

// State is the orchestrator's top-level state machine.
type State string

const (
	StateIdle              State = "idle"
	StateRunning           State = "running"
	StateCompleted         State = "completed"
	StateFailed            State = "failed"
	StateCancelled         State = "cancelled"
	StateTurnLimitExceeded State = "turn-limit-exceeded"
)

// Terminal reports whether the state ends the session.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateTurnLimitExceeded:
		return true
	}
	return false
}

// AgentSession is one user-initiated run. It is owned exclusively by its
// orchestrator for its lifetime; the accessors exist for observers (HTTP
// handlers, tests) and are safe for concurrent reads.
type AgentSession struct {
	ID string

	mu    sync.RWMutex
	turns int
	phase stream.Phase
	state State
}

// NewSession creates an idle session with a fresh ULID.
func NewSession() *AgentSession {
	return &AgentSession{
		ID:    ulid.Make().String(),
		phase: stream.PhaseThinking,
		state: StateIdle,
	}
}

// Turns returns the number of completed turns.
func (s *AgentSession) Turns() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turns
}

// startTurn claims the next turn if the budget allows it. The counter only
// advances for turns that actually start, so it never exceeds max.
func (s *AgentSession) startTurn(max int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turns >= max {
		return s.turns, false
	}
	s.turns++
	return s.turns, true
}

// Phase returns the session's coarse progress phase.
func (s *AgentSession) Phase() stream.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// setPhase records a phase change and reports whether it actually changed.
func (s *AgentSession) setPhase(p stream.Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == p {
		return false
	}
	s.phase = p
	return true
}

// State returns the session's current state.
func (s *AgentSession) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// setState transitions the state machine. Transitions out of a terminal
// state are ignored so the first terminal outcome wins.
func (s *AgentSession) setState(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.state = next
}
