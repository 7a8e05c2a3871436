package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quillworks/quill/internal/logging"
	"github.com/quillworks/quill/pkg/types"
)

// SSEHeartbeatInterval is the interval for SSE heartbeats.
const SSEHeartbeatInterval = 30 * time.Second

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

// newSSEWriter creates a new SSE writer.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	rc := http.NewResponseController(w)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

// writeEvent writes one SSE frame and flushes it.
func (s *sseWriter) writeEvent(ev types.StreamEvent) error {
	jsonData, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, jsonData)
	if err != nil {
		return err
	}

	// ResponseController flushes through middleware wrappers; fall
	// back to the plain Flusher if it cannot.
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}

	return nil
}

// writeHeartbeat writes an SSE heartbeat comment.
func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// sessionEvents handles GET /session/{sessionID}/events.
//
// The stream stays attached across worker restarts: the bus topic
// outlives the actor, so a subscriber keeps its channel while the
// session is paused, resumed, or respawned.
func (s *Server) sessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := s.sessions.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sse, err := newSSEWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Subscribe before writing the init frame so no event published
	// between the two is missed.
	events, unsub, err := s.sessions.Subscribe(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer unsub()

	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	init := types.StreamEvent{
		Type: types.StreamSessionInit,
		Data: types.SessionInitData{
			SessionID: session.ID,
			Status:    session.Status,
			Mode:      session.Mode,
		},
	}
	if err := sse.writeEvent(init); err != nil {
		return
	}

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	log := logging.For("sse").With().Str("session", sessionID).Logger()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sse.writeEvent(ev); err != nil {
				log.Debug().Err(err).Msg("subscriber write failed")
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}
