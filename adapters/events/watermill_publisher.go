package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/defai/ports"
)

// TopicPrefix namespaces mirrored topics on the shared broker
const TopicPrefix = "defai."

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	prefix    string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		prefix:    TopicPrefix,
	}
}

// PublishEvent marshals payload to JSON and publishes it under the prefixed topic
func (p *WatermillPublisher) PublishEvent(ctx context.Context, topic, id string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(id, body)
	msg.SetContext(ctx)
	msg.Metadata.Set("topic", topic)

	if err := p.publisher.Publish(p.prefix+topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
