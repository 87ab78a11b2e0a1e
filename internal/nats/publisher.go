package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/SebastienMelki/tabu/internal/events"
)

// Publisher publishes tabu list lifecycle events to NATS JetStream.
type Publisher struct {
	js         jetstream.JetStream
	streamName string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewPublisher creates a new lifecycle event publisher. A zero timeout
// leaves publish deadlines to the caller's context.
func NewPublisher(js jetstream.JetStream, streamName string, timeout time.Duration, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		js:         js,
		streamName: streamName,
		timeout:    timeout,
		logger:     logger.With("component", "publisher"),
	}
}

// PublishListEvent publishes a single lifecycle event as JSON on the
// subject derived from its type.
func (p *Publisher) PublishListEvent(ctx context.Context, event events.ListEvent) error {
	subject := event.Subject()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	ack, err := p.js.Publish(ctx, subject, data, jetstream.WithExpectStream(p.streamName))
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("list event published",
		"list_id", event.ListID,
		"type", event.Type,
		"subject", subject,
		"stream", ack.Stream,
		"sequence", ack.Sequence,
	)

	return nil
}
