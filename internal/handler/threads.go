// Package handler provides HTTP handlers for the portal API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helioshq/assistant-portal/internal/middleware"
	"github.com/helioshq/assistant-portal/internal/model"
	"github.com/helioshq/assistant-portal/internal/session"
	"github.com/helioshq/assistant-portal/internal/stream"
	"github.com/helioshq/assistant-portal/internal/thread"
	"github.com/helioshq/assistant-portal/pkg/logger"
)

// ThreadHandler handles thread endpoints.
type ThreadHandler struct {
	store      *thread.Store
	coord      *stream.Coordinator
	controller *session.Controller
	logger     *logger.Logger
}

// NewThreadHandler creates a new thread handler.
func NewThreadHandler(
	store *thread.Store,
	coord *stream.Coordinator,
	ctrl *session.Controller,
	log *logger.Logger,
) *ThreadHandler {
	return &ThreadHandler{
		store:      store,
		coord:      coord,
		controller: ctrl,
		logger:     log,
	}
}

// Create handles POST /api/v1/threads
func (h *ThreadHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.AssistantID == "" || req.AssistantName == "" {
		writeError(w, http.StatusBadRequest, "assistant_id and assistant_name are required")
		return
	}

	t := h.controller.NewConversation(req.AssistantID, req.AssistantName)
	writeJSON(w, http.StatusCreated, t)
}

// List handles GET /api/v1/threads
func (h *ThreadHandler) List(w http.ResponseWriter, r *http.Request) {
	resp := model.ListThreadsResponse{
		Threads: h.store.GetAll(),
	}
	if current := h.store.GetCurrent(); current != nil {
		resp.CurrentThreadID = current.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/threads/:id
func (h *ThreadHandler) Get(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	if err := middleware.ValidateThreadID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.store.Get(threadID)
	if err != nil {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// Delete handles DELETE /api/v1/threads/:id
func (h *ThreadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	if err := middleware.ValidateThreadID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Delete(threadID); err != nil {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetCurrent handles PUT /api/v1/threads/:id/current
func (h *ThreadHandler) SetCurrent(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	if err := middleware.ValidateThreadID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.SetCurrent(threadID); err != nil {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Clear handles POST /api/v1/threads/:id/clear, deleting and recreating the
// thread.
func (h *ThreadHandler) Clear(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	if err := middleware.ValidateThreadID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fresh, err := h.controller.ClearChat(threadID)
	if err != nil {
		if errors.Is(err, thread.ErrThreadNotFound) {
			writeError(w, http.StatusNotFound, "thread not found")
			return
		}
		h.logger.Error("failed to clear thread")
		writeError(w, http.StatusInternalServerError, "failed to clear thread")
		return
	}

	writeJSON(w, http.StatusOK, fresh)
}

// ListMessages handles GET /api/v1/threads/:id/messages
func (h *ThreadHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	if err := middleware.ValidateThreadID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.store.Get(threadID)
	if err != nil {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}

	writeJSON(w, http.StatusOK, model.ListMessagesResponse{
		Messages:  t.Messages,
		Streaming: h.coord.IsStreaming(threadID),
	})
}

// Stop handles POST /api/v1/threads/:id/stop. Idempotent.
func (h *ThreadHandler) Stop(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	if err := middleware.ValidateThreadID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.coord.Stop(threadID)
	w.WriteHeader(http.StatusNoContent)
}
