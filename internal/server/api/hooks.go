package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/squatcoach/internal/store"
)

// HookStore is the subset of the hook repository the API uses.
type HookStore interface {
	List() ([]*store.Hook, error)
	GetByID(id string) (*store.Hook, error)
	SetEnabled(id string, enabled bool) error
	Delete(id string) error
}

// HookHandler lists and toggles the plugin hooks bound to rep events.
type HookHandler struct {
	hooks HookStore
}

// NewHookHandler creates a HookHandler backed by hooks.
func NewHookHandler(hooks HookStore) *HookHandler {
	return &HookHandler{hooks: hooks}
}

type hookResponse struct {
	ID         string `json:"id"`
	PluginName string `json:"plugin_name"`
	Event      string `json:"event"`
	Enabled    bool   `json:"enabled"`
	CreatedAt  string `json:"created_at"`
}

type listHooksResponse struct {
	Hooks []hookResponse `json:"hooks"`
}

type updateHookRequest struct {
	Enabled *bool `json:"enabled"`
}

func toHookResponse(h *store.Hook) hookResponse {
	return hookResponse{
		ID:         h.ID,
		PluginName: h.PluginName,
		Event:      h.Event,
		Enabled:    h.Enabled,
		CreatedAt:  h.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// List handles GET /api/hooks.
func (h *HookHandler) List(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.hooks.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list hooks")
		return
	}

	resp := listHooksResponse{Hooks: make([]hookResponse, 0, len(hooks))}
	for _, hook := range hooks {
		resp.Hooks = append(resp.Hooks, toHookResponse(hook))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Update handles PUT /api/hooks/{id}. Only the enabled flag can change.
func (h *HookHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateHookRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "Body must be {\"enabled\": bool}")
		return
	}

	if err := h.hooks.SetEnabled(id, *req.Enabled); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Hook not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update hook")
		return
	}

	hook, err := h.hooks.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get hook")
		return
	}
	writeJSON(w, http.StatusOK, toHookResponse(hook))
}

// Delete handles DELETE /api/hooks/{id}.
func (h *HookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.hooks.Delete(chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Hook not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete hook")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
