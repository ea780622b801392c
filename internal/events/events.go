// Package events publishes domain events to Kafka.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Publisher sends a JSON-encoded value to a topic. key selects the partition.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

// Envelope wraps every published payload.
type Envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// NewEnvelope stamps data with a fresh id and the current time.
func NewEnvelope(eventType string, data any) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// NopPublisher discards events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, any) error { return nil }
