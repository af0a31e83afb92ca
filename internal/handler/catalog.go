package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helioshq/assistant-portal/internal/directory"
	"github.com/helioshq/assistant-portal/internal/model"
	"github.com/helioshq/assistant-portal/internal/prompt"
	"github.com/helioshq/assistant-portal/pkg/logger"
)

// CatalogHandler handles the assistant directory and prompt catalog
// endpoints.
type CatalogHandler struct {
	directory directory.Provider
	prompts   *prompt.Client
	logger    *logger.Logger
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(dir directory.Provider, prompts *prompt.Client, log *logger.Logger) *CatalogHandler {
	return &CatalogHandler{
		directory: dir,
		prompts:   prompts,
		logger:    log,
	}
}

// ListAssistants handles GET /api/v1/assistants. Directory failures degrade
// to an empty list inside the provider; this endpoint never fails.
func (h *CatalogHandler) ListAssistants(w http.ResponseWriter, r *http.Request) {
	assistants := h.directory.List(r.Context())
	if assistants == nil {
		assistants = []model.Assistant{}
	}
	writeJSON(w, http.StatusOK, model.ListAssistantsResponse{Assistants: assistants})
}

// ListPrompts handles GET /api/v1/prompts
func (h *CatalogHandler) ListPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := h.prompts.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list prompts")
		writeError(w, http.StatusBadGateway, "prompt catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, model.ListPromptsResponse{Prompts: prompts})
}

// GetPrompt handles GET /api/v1/prompts/:id
func (h *CatalogHandler) GetPrompt(w http.ResponseWriter, r *http.Request) {
	p, err := h.prompts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, prompt.ErrPromptNotFound) {
			writeError(w, http.StatusNotFound, "prompt not found")
			return
		}
		h.logger.Error("failed to get prompt")
		writeError(w, http.StatusBadGateway, "prompt catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
