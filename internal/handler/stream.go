package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/helioshq/assistant-portal/internal/middleware"
	"github.com/helioshq/assistant-portal/internal/model"
	"github.com/helioshq/assistant-portal/internal/stream"
	"github.com/helioshq/assistant-portal/internal/thread"
	"github.com/helioshq/assistant-portal/pkg/logger"
	"github.com/helioshq/assistant-portal/pkg/metrics"
)

// StreamHandler handles SSE streaming endpoints.
type StreamHandler struct {
	store  *thread.Store
	coord  *stream.Coordinator
	logger *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(store *thread.Store, coord *stream.Coordinator, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		store:  store,
		coord:  coord,
		logger: log,
	}
}

// Stream handles GET /api/v1/threads/:id/stream
//
// The connection replays the thread's committed messages, then delivers
// live updates: snapshot chunks while an exchange is streaming, committed
// messages as the store mutates, and heartbeats to keep the connection
// alive. A client navigating back to an in-flight thread resynchronizes
// from the first chunk event, which carries the full accumulated text.
//
// Store events carry no payload, so the handler reconciles by identity:
// it remembers every message it has emitted and, on each update, finds
// the first position where the committed history no longer matches what
// was sent. Edit-and-resend rewrites history in place; a length check
// alone would miss it when the truncation and the fresh reply land
// within one wakeup.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	threadID := chi.URLParam(r, "id")

	if err := middleware.ValidateThreadID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.store.Get(threadID); err != nil {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"thread_id": threadID,
	})

	// Subscribe before taking the replay snapshot so no mutation can fall
	// between the two. An event describing state the snapshot already
	// contains reconciles to nothing below.
	storeEvents, unsubscribe := h.store.Subscribe()
	defer unsubscribe()

	t, err := h.store.Get(threadID)
	if err != nil {
		sendSSEEvent(w, flusher, "thread_deleted", map[string]string{
			"thread_id": threadID,
		})
		return
	}

	// Replay committed history, remembering what was emitted.
	sent := make([]model.Message, 0, len(t.Messages))
	for _, msg := range t.Messages {
		sendSSEEvent(w, flusher, "message", msg)
		sent = append(sent, msg)
	}
	sendSSEEvent(w, flusher, "replay_complete", map[string]int{
		"message_count": len(sent),
	})

	// Live chunk delivery. The callback must never block the exchange
	// goroutine, so a stale snapshot is dropped in favor of the newest.
	chunks := make(chan model.ChunkEvent, 16)
	chunkIndex := 0
	onChunk := func(snapshot string) {
		ev := model.ChunkEvent{ThreadID: threadID, Text: snapshot, Index: chunkIndex}
		chunkIndex++
		select {
		case chunks <- ev:
		default:
			select {
			case <-chunks:
			default:
			}
			select {
			case chunks <- ev:
			default:
			}
		}
	}

	h.coord.RegisterCallback(threadID, onChunk)
	defer h.coord.UnregisterCallback(threadID)

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("SSE client disconnected", zap.String("thread_id", threadID))
			return

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			})

		case chunk := <-chunks:
			sendSSEEvent(w, flusher, "chunk", chunk)

		case ev, ok := <-storeEvents:
			if !ok {
				return
			}
			if ev.ThreadID != threadID {
				continue
			}

			switch ev.Type {
			case model.ThreadDeleted:
				sendSSEEvent(w, flusher, "thread_deleted", map[string]string{
					"thread_id": threadID,
				})
				return

			case model.ThreadUpdated:
				updated, err := h.store.Get(threadID)
				if err != nil {
					// Thread vanished without a delete event reaching this
					// subscriber (buffer overflow); tell the client to
					// resynchronize.
					sendSSEEvent(w, flusher, "error", &model.ErrorEvent{
						Code:    "thread_gone",
						Message: "thread no longer exists",
					})
					return
				}

				// First position where what was sent no longer matches the
				// committed history: an id mismatch marks truncation, a
				// content mismatch marks an in-place edit.
				diverged := len(sent)
				for i, msg := range sent {
					if i >= len(updated.Messages) ||
						updated.Messages[i].ID != msg.ID ||
						updated.Messages[i].Content != msg.Content {
						diverged = i
						break
					}
				}
				if diverged < len(sent) {
					sendSSEEvent(w, flusher, "history_truncated", map[string]int{
						"from_index": diverged,
					})
					sent = sent[:diverged]
				}

				for i := len(sent); i < len(updated.Messages); i++ {
					msg := updated.Messages[i]
					sendSSEEvent(w, flusher, "message", msg)
					if msg.Role == model.RoleAssistant {
						sendSSEEvent(w, flusher, "message_complete", &model.MessageCompleteEvent{
							ThreadID: threadID,
							Message:  msg,
						})
					}
					sent = append(sent, msg)
				}

				// A new exchange may have started since connect;
				// re-registering an existing callback is harmless.
				h.coord.RegisterCallback(threadID, onChunk)
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
