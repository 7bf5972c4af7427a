package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/try-flowforge/backend/pkg/channels/gochannel"
	"github.com/try-flowforge/backend/pkg/channels/kafka"
	"github.com/try-flowforge/backend/pkg/eventbus"
)

// NewEventBus creates the execution event bus for provider. "gochannel" only
// reaches subscribers in the same process; "kafka" fans out across processes.
func NewEventBus(provider string, brokers string, logger *slog.Logger) (*eventbus.WatermillEventBus, error) {
	adapter := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "gochannel":
		pubSub := gochannel.CreateChannel(adapter)

		return eventbus.NewWatermillEventBus(pubSub, pubSub, logger), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(adapter, strings.Split(brokers, ","), "")
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
