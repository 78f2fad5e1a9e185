package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/appforge-ai/appforge/internal/event"
	"github.com/appforge-ai/appforge/internal/stream"
)

var (
	// ErrSessionNotFound is returned for an unknown session ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionStarted is returned when a session is started twice.
	ErrSessionStarted = errors.New("session already started")
	// ErrSessionAborted is returned when starting a session that was
	// aborted before it ever ran.
	ErrSessionAborted = errors.New("session aborted")
)

// fanoutSendTimeout bounds delivery of a forwarded file-change notification
// to one session stream.
const fanoutSendTimeout = 2 * time.Second

// Service owns the live sessions. It creates them, runs their turn loops,
// hands out their stream channels, and aborts them. Safe for concurrent
// use.
type Service struct {
	orch *Orchestrator
	log  zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*entry

	unsubscribe func()
}

// entry fields are guarded by Service.mu; sess, ch, and done are set once
// at creation and synchronize internally.
type entry struct {
	sess    *AgentSession
	ch      *stream.Channel
	cancel  context.CancelFunc
	started bool
	aborted bool
	done    chan struct{}
}

// NewService creates a service around the given orchestrator. It subscribes
// to workspace file-change events and forwards them to running sessions.
func NewService(orch *Orchestrator, log zerolog.Logger) *Service {
	s := &Service{
		orch:     orch,
		log:      log,
		sessions: make(map[string]*entry),
	}
	s.unsubscribe = orch.bus.Subscribe(event.FileChanged, s.fanFileChanges)
	return s
}

// Create registers a new idle session and its stream channel.
func (s *Service) Create() *AgentSession {
	sess := NewSession()
	s.mu.Lock()
	s.sessions[sess.ID] = &entry{
		sess: sess,
		ch:   stream.NewChannel(sess.ID),
		done: make(chan struct{}),
	}
	s.mu.Unlock()

	s.log.Info().Str("session", sess.ID).Msg("session created")
	return sess
}

// Get returns the session with the given ID.
func (s *Service) Get(id string) (*AgentSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return e.sess, true
}

// Channel returns the session's stream channel for the transport layer to
// subscribe to.
func (s *Service) Channel(id string) (*stream.Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return e.ch, true
}

// Start launches the turn loop for a prompt. Each session runs at most
// once; the loop outlives the caller's request and is stopped by Abort or
// its own terminal state.
func (s *Service) Start(id, prompt string) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if e.aborted {
		s.mu.Unlock()
		return ErrSessionAborted
	}
	if e.started {
		s.mu.Unlock()
		return ErrSessionStarted
	}
	e.started = true
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	s.mu.Unlock()

	go func() {
		defer close(e.done)
		defer cancel()
		s.orch.Run(ctx, e.sess, prompt, e.ch)
		s.log.Info().Str("session", id).Str("state", string(e.sess.State())).Msg("session finished")
	}()
	return nil
}

// Abort cancels a running session. Aborting a session that never started
// closes its channel directly and keeps it from starting later.
func (s *Service) Abort(id string) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	started, cancel := e.started, e.cancel
	if !started {
		e.aborted = true
	}
	s.mu.Unlock()

	if started {
		cancel()
		return nil
	}
	e.sess.setState(StateCancelled)
	e.ch.Close()
	return nil
}

// Wait blocks until the session's turn loop has finished. Sessions that
// never started return immediately.
func (s *Service) Wait(id string) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	started := ok && e.started
	s.mu.RUnlock()
	if !started {
		return
	}
	<-e.done
}

// fanFileChanges forwards a workspace file-change notification to every
// running session's stream. Tool-originated events carry a session ID and
// already reached their own stream, so only external changes fan out.
func (s *Service) fanFileChanges(e event.Event) {
	data, ok := e.Data.(event.FileChangedData)
	if !ok || data.SessionID != "" || len(data.Paths) == 0 {
		return
	}

	s.mu.RLock()
	targets := make([]*entry, 0, len(s.sessions))
	for _, en := range s.sessions {
		if en.started && en.sess.State() == StateRunning {
			targets = append(targets, en)
		}
	}
	s.mu.RUnlock()

	for _, en := range targets {
		ctx, cancel := context.WithTimeout(context.Background(), fanoutSendTimeout)
		_ = en.ch.Send(ctx, stream.FilesUpdated{SessionID: en.sess.ID, Files: data.Paths})
		cancel()
	}
}

// Close aborts every running session and waits for their loops to exit.
func (s *Service) Close() {
	s.unsubscribe()

	s.mu.Lock()
	running := make([]*entry, 0, len(s.sessions))
	idle := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		if e.started {
			running = append(running, e)
		} else {
			e.aborted = true
			idle = append(idle, e)
		}
	}
	s.mu.Unlock()

	for _, e := range running {
		e.cancel()
	}
	for _, e := range idle {
		e.sess.setState(StateCancelled)
		e.ch.Close()
	}
	for _, e := range running {
		<-e.done
	}
}
