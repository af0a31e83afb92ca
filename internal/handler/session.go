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

// SessionHandler handles composer and attachment endpoints.
type SessionHandler struct {
	controller *session.Controller
	logger     *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(ctrl *session.Controller, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		controller: ctrl,
		logger:     log,
	}
}

// Send handles POST /api/v1/session/send, the composer submit, including
// @mention routing and staged attachment transfer.
func (h *SessionHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.controller.Submit(r.Context(), &req)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// Edit handles POST /api/v1/session/messages/:messageID/edit, the
// edit-and-resend flow.
func (h *SessionHandler) Edit(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	if err := middleware.ValidateMessageID(messageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateThreadID(req.ThreadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.controller.EditAndResend(r.Context(), req.ThreadID, messageID, req.Text); err != nil {
		h.writeSubmitError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Retry handles POST /api/v1/session/threads/:id/retry
func (h *SessionHandler) Retry(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	if err := middleware.ValidateThreadID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.controller.RetryLast(r.Context(), threadID); err != nil {
		h.writeSubmitError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Prefill handles POST /api/v1/session/prefill, placing a prompt body into
// the composer.
func (h *SessionHandler) Prefill(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.controller.Prefill(req.Text)
	w.WriteHeader(http.StatusNoContent)
}

// StageAttachment handles POST /api/v1/attachments
func (h *SessionHandler) StageAttachment(w http.ResponseWriter, r *http.Request) {
	var req model.StageAttachmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateFileName(req.FileName); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := h.controller.StageAttachment(&req)
	if err != nil {
		var verr *session.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusUnprocessableEntity, verr.Error())
			return
		}
		h.logger.Error("failed to stage attachment")
		writeError(w, http.StatusInternalServerError, "failed to stage attachment")
		return
	}

	writeJSON(w, http.StatusCreated, a)
}

// ListAttachments handles GET /api/v1/attachments
func (h *SessionHandler) ListAttachments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]model.Attachment{
		"attachments": h.controller.StagedAttachments(),
	})
}

// RemoveAttachment handles DELETE /api/v1/attachments/:id
func (h *SessionHandler) RemoveAttachment(w http.ResponseWriter, r *http.Request) {
	if !h.controller.RemoveStaged(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "attachment not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Banner handles GET /api/v1/session/banner
func (h *SessionHandler) Banner(w http.ResponseWriter, r *http.Request) {
	banner := h.controller.Banner()
	if banner == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, banner)
}

// DismissBanner handles DELETE /api/v1/session/banner
func (h *SessionHandler) DismissBanner(w http.ResponseWriter, r *http.Request) {
	h.controller.DismissBanner()
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, thread.ErrThreadNotFound):
		writeError(w, http.StatusNotFound, "thread not found")
	case errors.Is(err, session.ErrMessageNotFound):
		writeError(w, http.StatusNotFound, "message not found")
	case errors.Is(err, stream.ErrStreamActive):
		writeError(w, http.StatusConflict, "thread is already streaming")
	case errors.Is(err, stream.ErrEmptyMessage),
		errors.Is(err, stream.ErrNothingToResend),
		errors.Is(err, session.ErrNotUserMessage),
		errors.Is(err, session.ErrNoCurrentThread):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("session operation failed")
		writeError(w, http.StatusInternalServerError, "operation failed")
	}
}
