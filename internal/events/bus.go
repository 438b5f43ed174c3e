package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types published for downstream consumers.
const (
	NotificationCreated   = "notification.created"
	NotificationQueued    = "notification.queued"
	NotificationUpdated   = "notification.updated"
	NotificationCancelled = "notification.cancelled"
	NotificationRetried   = "notification.retried"
	BulkOperationDone     = "bulk_operation.completed"
)

// Envelope wraps a domain event for publication.
type Envelope struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	EntityID   string            `json:"entity_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Bus publishes domain events. Publish failures must never block or fail the
// primary operation; implementations log and move on.
type Bus interface {
	Publish(eventType, entityID string, attributes map[string]string)
}

// LogBus writes events as structured log lines. It stands in for an external
// broker and keeps the publish contract non-blocking.
type LogBus struct {
	log zerolog.Logger
}

func NewLogBus(log zerolog.Logger) *LogBus {
	return &LogBus{log: log.With().Str("component", "events").Logger()}
}

func (b *LogBus) Publish(eventType, entityID string, attributes map[string]string) {
	e := Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		EntityID:   entityID,
		Attributes: attributes,
		OccurredAt: time.Now().UTC(),
	}

	ev := b.log.Info().
		Str("event_id", e.ID).
		Str("event_type", e.Type).
		Str("entity_id", e.EntityID).
		Time("occurred_at", e.OccurredAt)
	for k, v := range e.Attributes {
		ev = ev.Str(k, v)
	}
	ev.Msg("domain event")
}

// Nop discards all events. Used in tests.
type Nop struct{}

func (Nop) Publish(string, string, map[string]string) {}
