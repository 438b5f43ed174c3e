package metrics

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/notifyd/internal/models"
)

// DeliveryEvent is emitted once per routing call, success or failure.
type DeliveryEvent struct {
	Channel  models.Channel
	Success  bool
	Duration time.Duration
}

// BulkEvent is emitted once per completed bulk operation.
type BulkEvent struct {
	Operation    string
	TotalCount   int
	SuccessCount int
	FailureCount int
	Duration     time.Duration
}

// Sink receives engine metrics. Implementations are best-effort: the engine
// never fails an operation because a metric could not be emitted.
type Sink interface {
	RecordDelivery(e DeliveryEvent)
	RecordSent(channel models.Channel)
	RecordFailed(channel models.Channel)
	RecordBulk(e BulkEvent)
}

// LogSink writes metrics as structured log lines.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "metrics").Logger()}
}

func (s *LogSink) RecordDelivery(e DeliveryEvent) {
	s.log.Info().
		Str("metric", "channel_delivery").
		Str("channel", string(e.Channel)).
		Bool("success", e.Success).
		Dur("duration", e.Duration).
		Msg("delivery attempt")
}

func (s *LogSink) RecordSent(channel models.Channel) {
	s.log.Info().
		Str("metric", "notification_sent").
		Str("channel", string(channel)).
		Msg("notification sent")
}

func (s *LogSink) RecordFailed(channel models.Channel) {
	s.log.Info().
		Str("metric", "notification_failed").
		Str("channel", string(channel)).
		Msg("notification failed")
}

func (s *LogSink) RecordBulk(e BulkEvent) {
	s.log.Info().
		Str("metric", "bulk_operation_completed").
		Str("operation", e.Operation).
		Int("total", e.TotalCount).
		Int("success", e.SuccessCount).
		Int("failure", e.FailureCount).
		Dur("duration", e.Duration).
		Msg("bulk operation completed")
}

// Nop discards all metrics. Used in tests.
type Nop struct{}

func (Nop) RecordDelivery(DeliveryEvent)     {}
func (Nop) RecordSent(models.Channel)        {}
func (Nop) RecordFailed(models.Channel)      {}
func (Nop) RecordBulk(BulkEvent)             {}
