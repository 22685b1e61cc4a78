package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/channels/gochannel"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/channels/kafka"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/eventbus"
)

// NewEventBus creates the event bus for the given provider: kafka for
// production deployments, gochannel for single-process setups.
func NewEventBus(provider, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	adapter := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(adapter, serviceName)
		if err != nil {
			return nil, fmt.Errorf("creating kafka channel: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil

	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(adapter)
		if err != nil {
			return nil, fmt.Errorf("creating gochannel: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil

	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
