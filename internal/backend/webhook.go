package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WebhookClient streams replies from an n8n chat workflow webhook. The
// webhook responds with a text/event-stream body of delta events terminated
// by a done event.
type WebhookClient struct {
	url        string
	httpClient *http.Client
}

// NewWebhookClient creates a new chat webhook client.
func NewWebhookClient(url string) (*WebhookClient, error) {
	if url == "" {
		return nil, errors.New("chat webhook URL is required")
	}

	return &WebhookClient{
		url: url,
		// No response timeout: a streamed exchange is open-ended and is
		// bounded by context cancellation instead.
		httpClient: &http.Client{},
	}, nil
}

// Name returns the provider name.
func (c *WebhookClient) Name() string {
	return string(ProviderWebhook)
}

type webhookPayload struct {
	Message     string              `json:"message"`
	ThreadID    string              `json:"thread_id,omitempty"`
	AssistantID string              `json:"assistant_id,omitempty"`
	Attachments []webhookAttachment `json:"attachments,omitempty"`
}

type webhookAttachment struct {
	FileName string `json:"file_name"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

type webhookDelta struct {
	Delta string `json:"delta"`
	Done  bool   `json:"done"`
}

// StreamReply posts the latest user message to the webhook and consumes the
// event-stream response, invoking onDelta per delta event in arrival order.
func (c *WebhookClient) StreamReply(ctx context.Context, req *Request, onDelta DeltaCallback) (*Reply, error) {
	start := time.Now()

	if len(req.Messages) == 0 {
		return nil, errors.New("webhook request requires at least one message")
	}

	payload := webhookPayload{
		Message:     req.Messages[len(req.Messages)-1].Content,
		ThreadID:    req.ThreadID,
		AssistantID: req.AssistantID,
	}
	for _, a := range req.Attachments {
		payload.Attachments = append(payload.Attachments, webhookAttachment{
			FileName: a.FileName,
			MIMEType: a.MIMEType,
			Size:     a.Size,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	var content string
	index := 0

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			if data == "[DONE]" {
				break
			}
			continue
		}

		var event webhookDelta
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return nil, fmt.Errorf("webhook sent malformed event: %w", err)
		}
		if event.Done {
			break
		}
		if event.Delta == "" {
			continue
		}

		content += event.Delta
		if err := onDelta(event.Delta, index); err != nil {
			return nil, err
		}
		index++
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("webhook stream read failed: %w", err)
	}

	return &Reply{
		Content:   content,
		Model:     "webhook",
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}
