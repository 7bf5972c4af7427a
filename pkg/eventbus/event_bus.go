// Package eventbus publishes execution events on watermill and lets listeners
// follow a single execution.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"github.com/try-flowforge/backend/pkg/events"
)

type Publisher interface {
	Publish(ctx context.Context, event *events.ExecutionEvent) error
}

type Subscriber interface {
	// SubscribeExecution yields the events of one execution until ctx is done.
	SubscribeExecution(ctx context.Context, executionID string) (<-chan *events.ExecutionEvent, error)
}

type EventBus interface {
	Publisher
	Subscriber
	Close() error
}

// WatermillEventBus adapts a watermill publisher and subscriber pair.
type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:  pub,
		subscriber: sub,
		logger:     logger.With("module", "eventbus"),
	}
}

func (eb *WatermillEventBus) Publish(ctx context.Context, event *events.ExecutionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}

	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, event.ExecutionID)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.Type))
	msg.SetContext(ctx)

	err = eb.publisher.Publish(events.Topic, msg)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}

	return nil
}

func (eb *WatermillEventBus) SubscribeExecution(ctx context.Context, executionID string) (<-chan *events.ExecutionEvent, error) {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", events.Topic, err)
	}

	out := make(chan *events.ExecutionEvent, 16)

	go func() {
		defer close(out)

		for {
			var msg *message.Message

			select {
			case <-ctx.Done():
				return
			case received, ok := <-messages:
				if !ok {
					return
				}

				msg = received
			}

			if msg.Metadata.Get(events.EventMetadataKey) != executionID {
				msg.Ack()

				continue
			}

			var event events.ExecutionEvent

			err := json.Unmarshal(msg.Payload, &event)
			msg.Ack()

			if err != nil {
				eb.logger.WarnContext(ctx, "Dropping malformed event", "message_id", msg.UUID, "error", err)

				continue
			}

			select {
			case out <- &event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
