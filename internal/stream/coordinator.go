// Package stream drives streamed exchanges against the assistant backend and
// fans incremental output out to observers.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helioshq/assistant-portal/internal/backend"
	"github.com/helioshq/assistant-portal/internal/events"
	"github.com/helioshq/assistant-portal/internal/model"
	"github.com/helioshq/assistant-portal/internal/thread"
	"github.com/helioshq/assistant-portal/pkg/logger"
	"github.com/helioshq/assistant-portal/pkg/metrics"
)

var (
	// ErrStreamActive is returned when a thread already has an active
	// streaming session. Starting a second exchange is a caller error; the
	// UI disables send while streaming.
	ErrStreamActive = errors.New("thread already has an active streaming session")

	// ErrEmptyMessage is returned for a message that is empty after
	// trimming.
	ErrEmptyMessage = errors.New("message text must not be empty")

	// ErrNothingToResend is returned when a resend is requested for a
	// thread whose last turn is not a user message.
	ErrNothingToResend = errors.New("thread has no user turn to resend")

	errCancelled = errors.New("stream cancelled")
)

// ChunkFunc receives streaming snapshots. The argument is always the full
// accumulated text so far, never a delta; each invocation supersedes the
// previous one.
type ChunkFunc func(snapshot string)

// session is the transient state of one active streamed exchange.
type session struct {
	threadID string
	cancel   context.CancelFunc

	mu       sync.Mutex
	buf      strings.Builder
	callback ChunkFunc
	stopped  bool
}

func (s *session) appendDelta(delta string) (string, ChunkFunc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return "", nil, false
	}
	s.buf.WriteString(delta)
	return s.buf.String(), s.callback, true
}

func (s *session) snapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (s *session) stop() bool {
	s.mu.Lock()
	already := s.stopped
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
	return !already
}

func (s *session) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Coordinator performs one "send message, receive streamed reply" exchange
// per thread at a time. It owns only transient per-session buffers; the
// thread store remains the single source of truth for committed history.
type Coordinator struct {
	store  *thread.Store
	client backend.Client
	events *events.Publisher
	logger *logger.Logger

	mu         sync.Mutex
	sessions   map[string]*session
	lastActive string
}

// NewCoordinator creates a streaming coordinator. The events publisher may
// be nil when the audit stream is disabled.
func NewCoordinator(store *thread.Store, client backend.Client, pub *events.Publisher, log *logger.Logger) *Coordinator {
	c := &Coordinator{
		store:    store,
		client:   client,
		events:   pub,
		logger:   log,
		sessions: make(map[string]*session),
	}
	// Deleting a thread must also terminate its in-flight exchange.
	store.RegisterCanceler(c.Stop)
	return c
}

// Send appends the user message to the target thread, opens a streamed
// exchange, delivers accumulated-text snapshots to the thread's observer,
// and commits the final assistant message on completion. It blocks until
// the exchange finishes, is cancelled, or fails.
//
// On error no assistant message is committed; the optimistically appended
// user message remains so no input is lost. On cancellation the partial
// text is discarded and Send returns nil.
func (c *Coordinator) Send(ctx context.Context, threadID, text string, attachments []model.Attachment, onChunk ChunkFunc) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	t, err := c.store.Get(threadID)
	if err != nil {
		return err
	}

	// Optimistic append: the user's turn is committed before the backend
	// responds and is never retracted on failure.
	userMsg := model.Message{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Role:        model.RoleUser,
		Content:     text,
		Timestamp:   time.Now(),
		Attachments: attachments,
	}

	history := make([]backend.ChatMessage, 0, len(t.Messages)+1)
	for _, msg := range t.Messages {
		history = append(history, backend.ChatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	history = append(history, backend.ChatMessage{
		Role:    string(model.RoleUser),
		Content: text,
	})

	return c.exchange(ctx, t.AssistantID, threadID, &userMsg, history, attachments, onChunk)
}

// Resend opens a streamed exchange using the thread's existing history,
// without appending a new user turn. The edit-and-resend flow truncates the
// thread so its last message is the edited user turn, then calls Resend to
// generate the fresh assistant reply.
func (c *Coordinator) Resend(ctx context.Context, threadID string, onChunk ChunkFunc) error {
	t, err := c.store.Get(threadID)
	if err != nil {
		return err
	}

	last := t.LastMessage()
	if last == nil || last.Role != model.RoleUser {
		return ErrNothingToResend
	}

	history := make([]backend.ChatMessage, 0, len(t.Messages))
	for _, msg := range t.Messages {
		history = append(history, backend.ChatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	return c.exchange(ctx, t.AssistantID, threadID, nil, history, last.Attachments, onChunk)
}

// exchange runs one streamed exchange. userMsg, when non-nil, is appended
// before the backend call; history is the full context to send.
func (c *Coordinator) exchange(
	ctx context.Context,
	assistantID, threadID string,
	userMsg *model.Message,
	history []backend.ChatMessage,
	attachments []model.Attachment,
	onChunk ChunkFunc,
) error {
	streamCtx, cancel := context.WithCancel(ctx)
	sess := &session{
		threadID: threadID,
		cancel:   cancel,
		callback: onChunk,
	}

	c.mu.Lock()
	if _, active := c.sessions[threadID]; active {
		c.mu.Unlock()
		cancel()
		return ErrStreamActive
	}
	c.sessions[threadID] = sess
	c.lastActive = threadID
	c.mu.Unlock()

	metrics.StreamsActive.Inc()
	defer func() {
		cancel()
		c.mu.Lock()
		delete(c.sessions, threadID)
		if c.lastActive == threadID {
			c.lastActive = ""
		}
		c.mu.Unlock()
		metrics.StreamsActive.Dec()
	}()

	if userMsg != nil {
		if err := c.store.AppendMessage(threadID, *userMsg); err != nil {
			return err
		}
	}

	c.publishStreamEvent(model.StreamStarted, threadID, "")
	start := time.Now()

	reply, err := c.client.StreamReply(streamCtx, &backend.Request{
		AssistantID: assistantID,
		ThreadID:    threadID,
		Messages:    history,
		Attachments: attachments,
	}, func(delta string, index int) error {
		snapshot, cb, ok := sess.appendDelta(delta)
		if !ok {
			return errCancelled
		}
		metrics.StreamChunksTotal.Inc()
		if cb != nil {
			cb(snapshot)
		}
		return nil
	})

	if sess.isStopped() {
		// User-initiated stop is a clean terminal state: the partial text
		// is discarded and no assistant message is committed.
		c.publishStreamEvent(model.StreamCancelled, threadID, "")
		metrics.RecordStream(c.client.Name(), "cancelled", time.Since(start).Seconds())
		c.logger.Info("stream cancelled", zap.String("thread_id", threadID))
		return nil
	}

	if err != nil {
		c.publishStreamEvent(model.StreamFailed, threadID, err.Error())
		metrics.RecordStream(c.client.Name(), "error", time.Since(start).Seconds())
		c.logger.Error("stream failed",
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
		return fmt.Errorf("streamed exchange failed: %w", err)
	}

	assistantMsg := model.Message{
		ID:         uuid.Must(uuid.NewV7()).String(),
		Role:       model.RoleAssistant,
		Content:    reply.Content,
		Timestamp:  time.Now(),
		IsLoading:  false,
		Provider:   c.client.Name(),
		ModelName:  reply.Model,
		StopReason: reply.StopReason,
		LatencyMs:  reply.LatencyMs,
	}
	if err := c.store.AppendMessage(threadID, assistantMsg); err != nil {
		// The thread was deleted mid-exchange; nothing to commit into.
		return err
	}

	c.publishStreamEvent(model.StreamCompleted, threadID, "")
	metrics.RecordStream(c.client.Name(), "success", time.Since(start).Seconds())
	return nil
}

// Stop terminates the active streaming session for a thread. Once stopped,
// no further chunks are delivered and no assistant message is committed.
// Calling Stop when nothing is streaming is a no-op.
func (c *Coordinator) Stop(threadID string) {
	c.mu.Lock()
	sess := c.sessions[threadID]
	c.mu.Unlock()

	if sess == nil {
		return
	}
	if sess.stop() {
		metrics.StreamsCancelled.Inc()
	}
}

// StopActive terminates the most recently started streaming session,
// matching the single-compose-box usage where "the" active stream is
// unambiguous. Idempotent.
func (c *Coordinator) StopActive() {
	c.mu.Lock()
	threadID := c.lastActive
	c.mu.Unlock()

	if threadID != "" {
		c.Stop(threadID)
	}
}

// IsStreaming reports whether a thread has an active streaming session.
func (c *Coordinator) IsStreaming(threadID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, active := c.sessions[threadID]
	return active
}

// RegisterCallback subscribes an observer to a thread's ongoing chunk
// delivery, replacing any previous observer. The current snapshot is
// delivered immediately so a late-registering observer resynchronizes
// without waiting for the next delta. Returns false when the thread has no
// active session.
func (c *Coordinator) RegisterCallback(threadID string, onChunk ChunkFunc) bool {
	c.mu.Lock()
	sess := c.sessions[threadID]
	c.mu.Unlock()

	if sess == nil {
		return false
	}

	sess.mu.Lock()
	sess.callback = onChunk
	snapshot := sess.buf.String()
	stopped := sess.stopped
	sess.mu.Unlock()

	if !stopped && snapshot != "" && onChunk != nil {
		onChunk(snapshot)
	}
	return true
}

// UnregisterCallback removes a thread's observer. Chunks continue to
// accumulate for the session; a future observer resynchronizes from the
// latest snapshot.
func (c *Coordinator) UnregisterCallback(threadID string) {
	c.mu.Lock()
	sess := c.sessions[threadID]
	c.mu.Unlock()

	if sess == nil {
		return
	}
	sess.mu.Lock()
	sess.callback = nil
	sess.mu.Unlock()
}

// Snapshot returns the accumulated partial text for a thread's active
// session, if any.
func (c *Coordinator) Snapshot(threadID string) (string, bool) {
	c.mu.Lock()
	sess := c.sessions[threadID]
	c.mu.Unlock()

	if sess == nil {
		return "", false
	}
	return sess.snapshot(), true
}

func (c *Coordinator) publishStreamEvent(eventType model.StreamEventType, threadID, reason string) {
	if c.events == nil {
		return
	}
	c.events.PublishStreamEvent(context.Background(), &model.StreamEvent{
		Type:      eventType,
		ThreadID:  threadID,
		Provider:  c.client.Name(),
		Reason:    reason,
		Timestamp: time.Now(),
	})
}
