package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quillworks/quill/internal/apperr"
	"github.com/quillworks/quill/internal/runtime"
	"github.com/quillworks/quill/pkg/types"
)

// InteractBody is the request body for POST /session/{sessionID}/interact.
type InteractBody struct {
	WorkspaceID string          `json:"workspaceID,omitempty"`
	UserID      string          `json:"userID,omitempty"`
	Content     string          `json:"content"`
	Model       *types.ModelRef `json:"model,omitempty"`
}

// ReasonBody is the request body for pause and cancel.
type ReasonBody struct {
	Reason string `json:"reason,omitempty"`
}

// ModeBody is the request body for POST /session/{sessionID}/mode.
type ModeBody struct {
	Mode     string `json:"mode"`
	PlanPath string `json:"planPath,omitempty"`
}

// health handles GET /health
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getSession handles GET /session/{sessionID}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := s.sessions.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// interact handles POST /session/{sessionID}/interact
func (s *Server) interact(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var body InteractBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid JSON body"))
		return
	}

	session, err := s.sessions.Interact(r.Context(), runtime.InteractRequest{
		SessionID:   sessionID,
		WorkspaceID: body.WorkspaceID,
		UserID:      body.UserID,
		Content:     body.Content,
		Model:       body.Model,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// pause handles POST /session/{sessionID}/pause
func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var body ReasonBody
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, apperr.New(apperr.KindValidation, "invalid JSON body"))
			return
		}
	}

	if err := s.sessions.Pause(r.Context(), sessionID, body.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w)
}

// cancel handles POST /session/{sessionID}/cancel
func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var body ReasonBody
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, apperr.New(apperr.KindValidation, "invalid JSON body"))
			return
		}
	}

	if err := s.sessions.Cancel(r.Context(), sessionID, body.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w)
}

// ping handles POST /session/{sessionID}/ping
func (s *Server) ping(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := s.sessions.Ping(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w)
}

// shutdown handles POST /session/{sessionID}/shutdown
func (s *Server) shutdown(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := s.sessions.ShutdownSession(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w)
}

// setMode handles POST /session/{sessionID}/mode
func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var body ModeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid JSON body"))
		return
	}

	if err := s.sessions.SetMode(r.Context(), sessionID, body.Mode, body.PlanPath); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w)
}
