package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents one turn in a thread.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// IsLoading is true only for a placeholder assistant message awaiting
	// content. A committed message always has IsLoading false.
	IsLoading bool `json:"is_loading,omitempty"`

	// Attachments sent alongside a user message.
	Attachments []Attachment `json:"attachments,omitempty"`

	// Backend metadata, set on committed assistant messages.
	Provider   string `json:"provider,omitempty"`
	ModelName  string `json:"model,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
	LatencyMs  int64  `json:"latency_ms,omitempty"`
}

// SendRequest is the composer submit payload.
type SendRequest struct {
	Text          string   `json:"text"`
	ThreadID      string   `json:"thread_id,omitempty"`
	AttachmentIDs []string `json:"attachment_ids,omitempty"`
}

// SendResponse reports where a composer submit was dispatched.
type SendResponse struct {
	ThreadID   string `json:"thread_id"`
	Dispatched bool   `json:"dispatched"`
	Routed     bool   `json:"routed,omitempty"`
	Suppressed bool   `json:"suppressed,omitempty"`
}

// EditRequest is the edit-and-resend payload.
type EditRequest struct {
	ThreadID string `json:"thread_id"`
	Text     string `json:"text"`
}

// ListMessagesResponse is the response for listing a thread's messages.
type ListMessagesResponse struct {
	Messages  []Message `json:"messages"`
	Streaming bool      `json:"streaming"`
}
