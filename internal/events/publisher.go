package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/helioshq/assistant-portal/internal/model"
	"github.com/helioshq/assistant-portal/pkg/logger"
)

const (
	// StreamName is the name of the portal events stream.
	StreamName = "PORTAL"

	// SubjectPrefix is the prefix for all portal event subjects.
	SubjectPrefix = "portal"
)

// Publisher records portal events on JetStream. Publish failures are logged
// and never propagated; the audit stream is advisory, not load-bearing.
type Publisher struct {
	client *Client
	logger *logger.Logger
}

// NewPublisher creates a new event publisher.
func NewPublisher(client *Client, log *logger.Logger) *Publisher {
	return &Publisher{client: client, logger: log}
}

// EnsureStream ensures the portal events stream exists.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Thread mutation and stream lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// ThreadSubject returns the subject for a thread mutation event.
func ThreadSubject(threadID string, eventType model.ThreadEventType) string {
	return fmt.Sprintf("%s.thread.%s.%s", SubjectPrefix, threadID, eventType)
}

// StreamSubject returns the subject for a stream lifecycle event.
func StreamSubject(threadID string, eventType model.StreamEventType) string {
	return fmt.Sprintf("%s.stream.%s.%s", SubjectPrefix, threadID, eventType)
}

// PublishThreadEvent records a thread store mutation.
func (p *Publisher) PublishThreadEvent(ctx context.Context, event *model.ThreadEvent) {
	p.publish(ctx, ThreadSubject(event.ThreadID, event.Type), event)
}

// PublishStreamEvent records a stream lifecycle transition.
func (p *Publisher) PublishStreamEvent(ctx context.Context, event *model.StreamEvent) {
	p.publish(ctx, StreamSubject(event.ThreadID, event.Type), event)
}

func (p *Publisher) publish(ctx context.Context, subject string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal event", zap.Error(err))
		return
	}

	if _, err := p.client.JetStream().Publish(ctx, subject, data); err != nil {
		p.logger.Warn("failed to publish event",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}

// Run forwards thread store mutation events to JetStream until the context
// is cancelled or the channel closes.
func (p *Publisher) Run(ctx context.Context, events <-chan model.ThreadEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			p.PublishThreadEvent(ctx, &event)
		}
	}
}
