package eventbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/events"
)

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber

	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(_ context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			eb.mu.RLock()
			handler, exists := eb.subscriptions[eventType]
			eb.mu.RUnlock()

			if !exists {
				msg.Ack()

				continue
			}

			event := newEvent(eventType)
			if event == nil {
				msg.Nack()

				continue
			}

			if err := json.Unmarshal(msg.Payload, event); err != nil {
				msg.Nack()

				continue
			}

			if err := handler(ctx, event); err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Close() error {
	if err := eb.publisher.Close(); err != nil {
		return err
	}

	return eb.subscriber.Close()
}

// newEvent allocates the concrete event struct for a wire event type.
func newEvent(eventType events.EventType) any {
	switch eventType {
	case events.InstanceStartedEvent:
		return &events.InstanceStarted{}
	case events.InstanceCompletedEvent:
		return &events.InstanceCompleted{}
	case events.InstanceFailedEvent:
		return &events.InstanceFailed{}
	case events.InstanceCancelledEvent:
		return &events.InstanceCancelled{}
	case events.InstancePausedEvent:
		return &events.InstancePaused{}
	case events.InstanceResumedEvent:
		return &events.InstanceResumed{}
	case events.NodeDispatchedEvent:
		return &events.NodeDispatched{}
	case events.NodeFailedEvent:
		return &events.NodeFailed{}
	case events.TaskCreatedEvent:
		return &events.TaskCreated{}
	case events.TaskClaimedEvent:
		return &events.TaskClaimed{}
	case events.TaskReleasedEvent:
		return &events.TaskReleased{}
	case events.TaskCompletedEvent:
		return &events.TaskCompleted{}
	case events.TaskDelegatedEvent:
		return &events.TaskDelegated{}
	case events.TaskCancelledEvent:
		return &events.TaskCancelled{}
	case events.SLABreachedEvent:
		return &events.SLABreached{}
	case events.DefinitionPublishedEvent:
		return &events.DefinitionPublished{}
	case events.DefinitionUnpublishedEvent:
		return &events.DefinitionUnpublished{}
	default:
		return nil
	}
}
