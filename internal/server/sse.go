package server

// The stream endpoint uses a hand-rolled Server-Sent Events writer rather
// than an SSE framework: the per-session channel already provides ordering
// and single-subscriber semantics, so all the transport needs is event
// framing, immediate flushing, and a heartbeat.

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/appforge-ai/appforge/internal/stream"
)

// SSEHeartbeatInterval is the interval for SSE heartbeat comments.
const SSEHeartbeatInterval = 30 * time.Second

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher, rc: http.NewResponseController(w)}, nil
}

// writeEvent writes one SSE frame and flushes it.
func (s *sseWriter) writeEvent(e stream.Event) error {
	data, err := stream.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", e.EventType(), data); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// streamSession handles GET /session/{sessionID}/stream. Each session
// supports exactly one stream consumer; a second connection is rejected.
// A consumer that disconnects aborts the session, since its events have
// nowhere left to go.
func (s *Server) streamSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	ch, ok := s.sessions.Channel(id)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	}

	events, err := ch.Subscribe()
	if err != nil {
		writeError(w, http.StatusConflict, ErrCodeConflict, "session stream already consumed")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	heartbeat := time.NewTicker(SSEHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			_ = s.sessions.Abort(id)
			return

		case e, open := <-events:
			if !open {
				return
			}
			if err := sse.writeEvent(e); err != nil {
				s.log.Debug().Err(err).Str("session", id).Msg("stream write failed")
				_ = s.sessions.Abort(id)
				return
			}

		case <-heartbeat.C:
			sse.writeHeartbeat()
		}
	}
}
