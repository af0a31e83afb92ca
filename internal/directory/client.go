// Package directory provides the assistant directory client.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helioshq/assistant-portal/internal/model"
	"github.com/helioshq/assistant-portal/pkg/logger"
)

// Provider supplies the assistant directory. Safe to call repeatedly;
// failures degrade to an empty list rather than surfacing to callers.
type Provider interface {
	List(ctx context.Context) []model.Assistant
}

// Client fetches the directory from the configured webhook and caches the
// last good list. The webhook response must match exactly one schema:
// {"assistants":[{"id":...,"name":...}]}; anything else is rejected, not
// guessed at.
type Client struct {
	url        string
	ttl        time.Duration
	httpClient *http.Client
	logger     *logger.Logger

	mu        sync.Mutex
	cached    []model.Assistant
	fetchedAt time.Time
}

// NewClient creates a new directory client.
func NewClient(url string, ttl time.Duration, log *logger.Logger) *Client {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Client{
		url:        url,
		ttl:        ttl,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     log,
	}
}

// List returns the assistant directory. A fetch failure degrades to the
// last good list (possibly empty); mention routing then simply finds no
// matches.
func (c *Client) List(ctx context.Context) []model.Assistant {
	c.mu.Lock()
	fresh := time.Since(c.fetchedAt) < c.ttl
	cached := c.cached
	c.mu.Unlock()

	if fresh {
		return cached
	}

	assistants, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warn("directory fetch failed, serving cached list", zap.Error(err))
		return cached
	}

	c.mu.Lock()
	c.cached = assistants
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	return assistants
}

type listResponse struct {
	Assistants []model.Assistant `json:"assistants"`
}

func (c *Client) fetch(ctx context.Context) ([]model.Assistant, error) {
	if c.url == "" {
		return nil, errors.New("directory webhook URL not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory webhook returned status %d", resp.StatusCode)
	}

	var parsed listResponse
	decoder := json.NewDecoder(resp.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("directory webhook sent malformed response: %w", err)
	}

	for _, a := range parsed.Assistants {
		if a.ID == "" || a.Name == "" {
			return nil, errors.New("directory entry missing id or name")
		}
	}

	return parsed.Assistants, nil
}

// Static is a fixed in-memory directory, used in tests and development.
type Static struct {
	assistants []model.Assistant
}

// NewStatic creates a directory provider backed by a fixed list.
func NewStatic(assistants []model.Assistant) *Static {
	return &Static{assistants: assistants}
}

// List returns the fixed assistant list.
func (s *Static) List(ctx context.Context) []model.Assistant {
	return s.assistants
}
