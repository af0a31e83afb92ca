package model

import (
	"time"
)

// ThreadEventType represents the type of a thread store mutation event.
type ThreadEventType string

const (
	ThreadCreated        ThreadEventType = "thread_created"
	ThreadUpdated        ThreadEventType = "thread_updated"
	ThreadDeleted        ThreadEventType = "thread_deleted"
	ThreadCurrentChanged ThreadEventType = "thread_current_changed"
)

// ThreadEvent is published on every thread store mutation. Subscribers use
// it in place of timer polling; delivery is best effort with a bounded
// buffer, so observers lag by at most the buffer depth.
type ThreadEvent struct {
	Type      ThreadEventType `json:"type"`
	ThreadID  string          `json:"thread_id"`
	Timestamp time.Time       `json:"timestamp"`
}

// StreamEventType represents the type of a streaming lifecycle event.
type StreamEventType string

const (
	StreamStarted   StreamEventType = "stream_started"
	StreamCompleted StreamEventType = "stream_completed"
	StreamCancelled StreamEventType = "stream_cancelled"
	StreamFailed    StreamEventType = "stream_failed"
)

// StreamEvent records a streaming exchange lifecycle transition.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	ThreadID  string          `json:"thread_id"`
	Provider  string          `json:"provider,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ChunkEvent is a streaming snapshot delivered over SSE. Text is the full
// accumulated assistant response so far, never a delta.
type ChunkEvent struct {
	ThreadID string `json:"thread_id"`
	Text     string `json:"text"`
	Index    int    `json:"index"`
}

// MessageCompleteEvent signals that a streamed exchange committed its final
// assistant message.
type MessageCompleteEvent struct {
	ThreadID string  `json:"thread_id"`
	Message  Message `json:"message"`
}

// ErrorEvent represents a user-visible error event.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent represents an SSE keep-alive event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
