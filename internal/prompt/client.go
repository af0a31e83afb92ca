// Package prompt provides the read-only prompt catalog client.
package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/helioshq/assistant-portal/pkg/logger"

	"github.com/helioshq/assistant-portal/internal/model"
)

// ErrPromptNotFound is returned when the catalog has no prompt with the
// requested id.
var ErrPromptNotFound = errors.New("prompt not found")

// Client fetches prompt catalog entries from the configured webhook.
// Content is opaque display data; a prompt's body is routed to the composer
// as a prefill. Like the directory client, exactly one response schema is
// accepted.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new prompt catalog client.
func NewClient(url string, log *logger.Logger) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     log,
	}
}

type listResponse struct {
	Prompts []model.Prompt `json:"prompts"`
}

// List fetches all catalog entries.
func (c *Client) List(ctx context.Context) ([]model.Prompt, error) {
	if c.url == "" {
		return nil, errors.New("prompt webhook URL not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create prompt request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prompt request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prompt webhook returned status %d", resp.StatusCode)
	}

	var parsed listResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("prompt webhook sent malformed response: %w", err)
	}

	return parsed.Prompts, nil
}

// Get fetches one catalog entry by id.
func (c *Client) Get(ctx context.Context, id string) (*model.Prompt, error) {
	prompts, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range prompts {
		if prompts[i].ID == id {
			return &prompts[i], nil
		}
	}
	return nil, ErrPromptNotFound
}
