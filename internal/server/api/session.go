package api

import (
	"net/http"

	"github.com/ayusman/squatcoach/internal/app"
	"github.com/ayusman/squatcoach/internal/exercise"
)

// Session is the part of the running app the HTTP API controls.
type Session interface {
	State() app.State
	Reset() app.State
	SetEnabled(enabled bool)
	IsEnabled() bool
	Thresholds() exercise.Thresholds
	SetThresholds(t exercise.Thresholds) error
}

// SessionHandler serves the live counter state and session controls.
type SessionHandler struct {
	session Session
}

// NewSessionHandler creates a SessionHandler for s.
func NewSessionHandler(s Session) *SessionHandler {
	return &SessionHandler{session: s}
}

type enabledResponse struct {
	Enabled bool `json:"enabled"`
}

// State handles GET /api/state.
func (h *SessionHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.State())
}

// Reset handles POST /api/reset. The counter returns to its initial state
// under a new session id.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Reset())
}

// Pause handles POST /api/session/pause.
func (h *SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.session.SetEnabled(false)
	writeJSON(w, http.StatusOK, enabledResponse{Enabled: h.session.IsEnabled()})
}

// Resume handles POST /api/session/resume.
func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.session.SetEnabled(true)
	writeJSON(w, http.StatusOK, enabledResponse{Enabled: h.session.IsEnabled()})
}
