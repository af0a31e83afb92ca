package handler

import (
	"encoding/json"
	"net/http"

	"github.com/helioshq/assistant-portal/internal/middleware"
	"github.com/helioshq/assistant-portal/internal/profile"
)

// ProfileHandler handles user preference endpoints.
type ProfileHandler struct {
	store *profile.Store
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(store *profile.Store) *ProfileHandler {
	return &ProfileHandler{store: store}
}

// GetPreferences handles GET /api/v1/profile/preferences
func (h *ProfileHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	writeJSON(w, http.StatusOK, h.store.All(userID))
}

// SetPreference handles PUT /api/v1/profile/preferences
func (h *ProfileHandler) SetPreference(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	h.store.Set(middleware.GetUserID(r.Context()), req.Key, req.Value)
	w.WriteHeader(http.StatusNoContent)
}
