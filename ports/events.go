package ports

import "context"

// EventPublisher forwards notifications beyond the local process
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, id string, payload any) error
}
