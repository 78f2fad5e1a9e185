package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/appforge-ai/appforge/internal/session"
)

// SessionResponse is the wire shape of a session.
type SessionResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Phase string `json:"phase"`
	Turns int    `json:"turns"`
}

func sessionResponse(sess *session.AgentSession) SessionResponse {
	return SessionResponse{
		ID:    sess.ID,
		State: string(sess.State()),
		Phase: string(sess.Phase()),
		Turns: sess.Turns(),
	}
}

// createSession handles POST /session.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	writeJSON(w, http.StatusCreated, sessionResponse(sess))
}

// getSession handles GET /session/{sessionID}.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

// PromptRequest is the body of POST /session/{sessionID}/prompt.
type PromptRequest struct {
	Prompt string `json:"prompt"`
}

// sendPrompt handles POST /session/{sessionID}/prompt. The turn loop runs
// in the background; events arrive on the stream endpoint.
func (s *Server) sendPrompt(w http.ResponseWriter, r *http.Request) {
	var req PromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "prompt is required")
		return
	}

	id := chi.URLParam(r, "sessionID")
	switch err := s.sessions.Start(id, req.Prompt); {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	case errors.Is(err, session.ErrSessionStarted):
		writeError(w, http.StatusConflict, ErrCodeConflict, "session already started")
		return
	case errors.Is(err, session.ErrSessionAborted):
		writeError(w, http.StatusConflict, ErrCodeConflict, "session aborted")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to start session")
		return
	}

	sess, _ := s.sessions.Get(id)
	writeJSON(w, http.StatusAccepted, sessionResponse(sess))
}

// abortSession handles POST /session/{sessionID}/abort.
func (s *Server) abortSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.sessions.Abort(id); err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"aborted": true})
}

// metricsSummary handles GET /metrics/summary.
func (s *Server) metricsSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.collector.Summary())
}

// health handles GET /health.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
