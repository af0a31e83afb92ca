// Package session reconciles the thread store, streaming coordinator, and
// mention router into the state the portal UI renders.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helioshq/assistant-portal/internal/directory"
	"github.com/helioshq/assistant-portal/internal/mention"
	"github.com/helioshq/assistant-portal/internal/model"
	"github.com/helioshq/assistant-portal/internal/stream"
	"github.com/helioshq/assistant-portal/internal/thread"
	"github.com/helioshq/assistant-portal/pkg/logger"
	"github.com/helioshq/assistant-portal/pkg/metrics"
)

var (
	// ErrNoCurrentThread is returned when a literal send has no target:
	// no thread id was given and no thread is current.
	ErrNoCurrentThread = errors.New("no current thread to send to")

	// ErrNotUserMessage is returned when edit-and-resend targets a message
	// that is not a user turn.
	ErrNotUserMessage = errors.New("only user messages can be edited")

	// ErrMessageNotFound is returned when the edited message id is unknown
	// to its thread.
	ErrMessageNotFound = errors.New("message not found in thread")
)

// Banner is a dismissible inline error surfaced near the compose area. It
// never blocks further input attempts.
type Banner struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Controller owns one user session: the current-thread context, composer
// state, staged attachments, and the error banner. It is an explicit object
// rather than module-level state so sessions never collide.
type Controller struct {
	store     *thread.Store
	coord     *stream.Coordinator
	directory directory.Provider
	limits    AttachmentLimits
	logger    *logger.Logger

	mu          sync.Mutex
	composeText string
	cursor      int
	list        *mention.List
	staged      []model.Attachment
	banner      *Banner
}

// NewController creates a session controller.
func NewController(
	store *thread.Store,
	coord *stream.Coordinator,
	dir directory.Provider,
	limits AttachmentLimits,
	log *logger.Logger,
) *Controller {
	return &Controller{
		store:     store,
		coord:     coord,
		directory: dir,
		limits:    limits,
		logger:    log,
		list:      mention.NewList(),
	}
}

// OpenAssistant makes the given assistant's thread current, creating one if
// the assistant has no existing thread.
func (c *Controller) OpenAssistant(assistantID, assistantName string) *model.Thread {
	t := c.store.FindByAssistant(assistantID)
	if t == nil {
		t = c.store.Create(assistantID, assistantName)
	}
	// Thread was just looked up or created; SetCurrent cannot miss.
	_ = c.store.SetCurrent(t.ID)
	return t
}

// NewConversation creates a fresh thread for the assistant and makes it
// current, regardless of existing threads.
func (c *Controller) NewConversation(assistantID, assistantName string) *model.Thread {
	t := c.store.Create(assistantID, assistantName)
	_ = c.store.SetCurrent(t.ID)
	return t
}

// ClearChat deletes a thread and recreates an empty one bound to the same
// assistant. The replacement becomes current when the deleted thread was.
func (c *Controller) ClearChat(threadID string) (*model.Thread, error) {
	old, err := c.store.Get(threadID)
	if err != nil {
		return nil, err
	}

	current := c.store.GetCurrent()
	wasCurrent := current != nil && current.ID == threadID

	if err := c.store.Delete(threadID); err != nil {
		return nil, err
	}

	fresh := c.store.Create(old.AssistantID, old.AssistantName)
	if wasCurrent {
		_ = c.store.SetCurrent(fresh.ID)
	}
	return fresh, nil
}

// UpdateCompose replaces the composer text and cursor, recomputing the
// mention candidate list. Called on every input change.
func (c *Controller) UpdateCompose(ctx context.Context, text string, cursor int) *mention.Active {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.composeText = text
	c.cursor = cursor

	excludeID := ""
	if current := c.store.GetCurrent(); current != nil {
		excludeID = current.AssistantID
	}

	active, ok := mention.Detect(text, cursor, c.directory.List(ctx), excludeID)
	if !ok {
		c.list.Clear()
		return nil
	}
	c.list.SetCandidates(active.Candidates)
	return active
}

// SelectCandidate commits the selected mention candidate into the composer,
// rewriting the anchored span and placing the cursor after the inserted
// name.
func (c *Controller) SelectCandidate(ctx context.Context) (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	selected := c.list.Selected()
	if selected == nil {
		return c.composeText, c.cursor
	}

	excludeID := ""
	if current := c.store.GetCurrent(); current != nil {
		excludeID = current.AssistantID
	}
	active, ok := mention.Detect(c.composeText, c.cursor, c.directory.List(ctx), excludeID)
	if !ok {
		return c.composeText, c.cursor
	}

	c.composeText, c.cursor = mention.Complete(c.composeText, active.Anchor, selected.Name)
	c.list.Clear()
	return c.composeText, c.cursor
}

// CloseMentionList closes the candidate dropdown without altering input.
// Bound to Escape.
func (c *Controller) CloseMentionList() {
	c.mu.Lock()
	c.list.Clear()
	c.mu.Unlock()
}

// MentionList exposes the candidate dropdown state.
func (c *Controller) MentionList() *mention.List {
	return c.list
}

// Submit handles the composer Enter. It resolves the target thread through
// the mention router, dispatches the message through the streaming
// coordinator, and clears the composer on dispatch.
//
// While the mention dropdown is open, Enter is fully suppressed, even for
// text whose "@" matches no candidate. That is the documented contract, not
// an accident.
func (c *Controller) Submit(ctx context.Context, req *model.SendRequest) (*model.SendResponse, error) {
	c.mu.Lock()
	dropdownOpen := c.list.IsOpen()
	c.mu.Unlock()

	if dropdownOpen {
		return &model.SendResponse{Suppressed: true}, nil
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, stream.ErrEmptyMessage
	}

	decision := mention.ParseSubmit(text, c.directory.List(ctx))
	switch decision.Kind {
	case mention.SubmitSuppressed:
		// A bare mention with no body is not a complete message.
		return &model.SendResponse{Suppressed: true}, nil

	case mention.SubmitMention:
		target := c.store.FindByAssistant(decision.Assistant.ID)
		if target == nil {
			target = c.store.Create(decision.Assistant.ID, decision.Assistant.Name)
		}
		metrics.MentionDispatches.Inc()
		return c.dispatch(ctx, target.ID, decision.Body, true)

	default:
		threadID := req.ThreadID
		if threadID == "" {
			current := c.store.GetCurrent()
			if current == nil {
				return nil, ErrNoCurrentThread
			}
			threadID = current.ID
		}
		return c.dispatch(ctx, threadID, text, false)
	}
}

// dispatch starts the streamed exchange in the background and transfers
// staged attachment ownership to the outgoing request.
func (c *Controller) dispatch(ctx context.Context, threadID, text string, routed bool) (*model.SendResponse, error) {
	if c.coord.IsStreaming(threadID) {
		return nil, stream.ErrStreamActive
	}

	attachments := c.takeStaged()

	go func() {
		if err := c.coord.Send(context.WithoutCancel(ctx), threadID, text, attachments, nil); err != nil {
			c.setBanner(err)
		}
	}()

	c.mu.Lock()
	c.composeText = ""
	c.cursor = 0
	c.list.Clear()
	c.mu.Unlock()

	return &model.SendResponse{
		ThreadID:   threadID,
		Dispatched: true,
		Routed:     routed,
	}, nil
}

// EditAndResend overwrites a user message's content in place, discards
// every message after it, persists the truncated thread, and starts a new
// streamed exchange from the edited turn.
//
// A failed resend does not roll back the truncation: the downstream
// messages were invalidated by the edit and are never silently resurrected.
func (c *Controller) EditAndResend(ctx context.Context, threadID, messageID, newText string) error {
	newText = strings.TrimSpace(newText)
	if newText == "" {
		return stream.ErrEmptyMessage
	}

	t, err := c.store.Get(threadID)
	if err != nil {
		return err
	}
	if c.coord.IsStreaming(threadID) {
		return stream.ErrStreamActive
	}

	idx := t.MessageIndex(messageID)
	if idx < 0 {
		return ErrMessageNotFound
	}
	if t.Messages[idx].Role != model.RoleUser {
		return ErrNotUserMessage
	}

	// Same message id, same position, new content; everything causally
	// downstream of the edited turn is discarded.
	t.Messages[idx].Content = newText
	t.Messages = t.Messages[:idx+1]
	c.store.Update(t)

	go func() {
		if err := c.coord.Resend(context.WithoutCancel(ctx), threadID, nil); err != nil {
			c.setBanner(err)
		}
	}()

	return nil
}

// RetryLast re-runs the exchange for a thread whose last turn is a user
// message, typically after a failed stream.
func (c *Controller) RetryLast(ctx context.Context, threadID string) error {
	if c.coord.IsStreaming(threadID) {
		return stream.ErrStreamActive
	}

	go func() {
		if err := c.coord.Resend(context.WithoutCancel(ctx), threadID, nil); err != nil {
			c.setBanner(err)
		}
	}()
	return nil
}

// Prefill sets the composer text from a prompt catalog body, cursor at the
// end.
func (c *Controller) Prefill(text string) {
	c.mu.Lock()
	c.composeText = text
	c.cursor = len(text)
	c.list.Clear()
	c.mu.Unlock()
}

// ComposeText returns the current composer text and cursor.
func (c *Controller) ComposeText() (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.composeText, c.cursor
}

// Banner returns the current error banner, or nil.
func (c *Controller) Banner() *Banner {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.banner
}

// DismissBanner clears the error banner.
func (c *Controller) DismissBanner() {
	c.mu.Lock()
	c.banner = nil
	c.mu.Unlock()
}

func (c *Controller) setBanner(err error) {
	c.logger.Warn("exchange failed", zap.Error(err))
	c.mu.Lock()
	c.banner = &Banner{Message: err.Error(), At: time.Now()}
	c.mu.Unlock()
}
