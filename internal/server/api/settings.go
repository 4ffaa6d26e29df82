package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ayusman/squatcoach/internal/exercise"
)

// ThresholdStore persists thresholds across restarts.
type ThresholdStore interface {
	SaveThresholds(t exercise.Thresholds) error
}

// SettingsHandler reads and updates the state machine thresholds.
type SettingsHandler struct {
	session Session
	store   ThresholdStore
	log     *slog.Logger
}

// NewSettingsHandler creates a SettingsHandler. store may be nil, in which
// case updates apply to the running session only.
func NewSettingsHandler(s Session, store ThresholdStore, log *slog.Logger) *SettingsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SettingsHandler{session: s, store: store, log: log}
}

type settingsPayload struct {
	Extension        float64 `json:"extension"`
	Flexion          float64 `json:"flexion"`
	DepthWarning     float64 `json:"depth_warning"`
	MinVisibility    float64 `json:"min_visibility"`
	FlashDurationMs  int64   `json:"flash_duration_ms"`
	GateDepthWarning bool    `json:"gate_depth_warning"`
}

func toPayload(t exercise.Thresholds) settingsPayload {
	return settingsPayload{
		Extension:        t.Extension,
		Flexion:          t.Flexion,
		DepthWarning:     t.DepthWarning,
		MinVisibility:    t.MinVisibility,
		FlashDurationMs:  t.FlashDuration.Milliseconds(),
		GateDepthWarning: t.GateDepthWarning,
	}
}

func (p settingsPayload) thresholds() exercise.Thresholds {
	return exercise.Thresholds{
		Extension:        p.Extension,
		Flexion:          p.Flexion,
		DepthWarning:     p.DepthWarning,
		MinVisibility:    p.MinVisibility,
		FlashDuration:    time.Duration(p.FlashDurationMs) * time.Millisecond,
		GateDepthWarning: p.GateDepthWarning,
	}
}

// Get handles GET /api/settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toPayload(h.session.Thresholds()))
}

// Update handles PUT /api/settings. Fields missing from the body keep their
// current values. Valid thresholds are applied live and then persisted.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	req := toPayload(h.session.Thresholds())
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	t := req.thresholds()
	if err := h.session.SetThresholds(t); err != nil {
		if errors.Is(err, exercise.ErrInvalidThresholds) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to apply settings")
		return
	}

	if h.store != nil {
		if err := h.store.SaveThresholds(t); err != nil {
			h.log.Error("failed to persist settings", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to save settings")
			return
		}
	}

	h.log.Info("settings updated",
		"extension", t.Extension,
		"flexion", t.Flexion,
		"depth_warning", t.DepthWarning,
	)
	writeJSON(w, http.StatusOK, toPayload(t))
}
