// Package model defines data structures for the assistant portal.
package model

import (
	"time"
)

// Thread represents one conversation between the user and one assistant.
// The assistant binding is immutable for the life of the thread.
type Thread struct {
	ID            string    `json:"id"`
	AssistantID   string    `json:"assistant_id"`
	AssistantName string    `json:"assistant_name"`
	Messages      []Message `json:"messages"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the thread. The store hands out clones so
// callers can never mutate committed state behind its back.
func (t *Thread) Clone() *Thread {
	cp := *t
	cp.Messages = make([]Message, len(t.Messages))
	copy(cp.Messages, t.Messages)
	return &cp
}

// LastMessage returns the most recent message, or nil if the thread is empty.
func (t *Thread) LastMessage() *Message {
	if len(t.Messages) == 0 {
		return nil
	}
	return &t.Messages[len(t.Messages)-1]
}

// MessageIndex returns the position of the message with the given ID,
// or -1 if the thread does not contain it.
func (t *Thread) MessageIndex(messageID string) int {
	for i := range t.Messages {
		if t.Messages[i].ID == messageID {
			return i
		}
	}
	return -1
}

// CreateThreadRequest is the request to create a new thread.
type CreateThreadRequest struct {
	AssistantID   string `json:"assistant_id"`
	AssistantName string `json:"assistant_name"`
}

// ListThreadsResponse is the response for listing threads.
type ListThreadsResponse struct {
	Threads         []Thread `json:"threads"`
	CurrentThreadID string   `json:"current_thread_id,omitempty"`
}
