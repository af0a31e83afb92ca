// Package backend provides streaming AI backend client interfaces and
// implementations.
package backend

import (
	"context"

	"github.com/helioshq/assistant-portal/internal/model"
)

// DeltaCallback is called for each incremental text delta during streaming.
type DeltaCallback func(delta string, index int) error

// ChatMessage is one turn of history sent to the backend.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request represents one streamed exchange request.
type Request struct {
	AssistantID string
	ThreadID    string
	Model       string
	Messages    []ChatMessage
	Attachments []model.Attachment
	MaxTokens   int
}

// Reply is the completed result of a streamed exchange.
type Reply struct {
	Content    string
	Model      string
	StopReason string
	LatencyMs  int64
}

// Client is the interface for streaming backends. Implementations deliver
// incremental deltas through the callback and return the completed reply.
type Client interface {
	// StreamReply opens a streamed exchange and invokes onDelta for each
	// incremental piece of assistant output, in arrival order.
	StreamReply(ctx context.Context, req *Request, onDelta DeltaCallback) (*Reply, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of streaming backend provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderWebhook   Provider = "webhook"
)

// NewClient creates a new backend client based on provider.
func NewClient(provider Provider, apiKey, webhookURL string) (Client, error) {
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	case ProviderWebhook:
		return NewWebhookClient(webhookURL)
	default:
		return NewAnthropicClient(apiKey)
	}
}
