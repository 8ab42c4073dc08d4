package ports

import "context"

// EventPublisher delivers a security event to the broker. The partition key
// keeps per-account events ordered.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}
