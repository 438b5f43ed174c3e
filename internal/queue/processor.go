package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/notifyd/internal/channel"
	"github.com/shohag/notifyd/internal/metrics"
	"github.com/shohag/notifyd/internal/models"
	"github.com/shohag/notifyd/internal/storage"
)

// Processor executes one job attempt: it re-validates the notification
// state, routes to the channel transport and writes the outcome back. Errors
// are returned to the pool so the queue's attempt accounting advances.
type Processor struct {
	store       storage.Storage
	registry    *channel.Registry
	sink        metrics.Sink
	sendTimeout time.Duration
	log         zerolog.Logger
}

func NewProcessor(store storage.Storage, registry *channel.Registry, sink metrics.Sink, sendTimeout time.Duration, log zerolog.Logger) *Processor {
	return &Processor{
		store:       store,
		registry:    registry,
		sink:        sink,
		sendTimeout: sendTimeout,
		log:         log.With().Str("component", "processor").Logger(),
	}
}

func (p *Processor) Process(ctx context.Context, job *models.Job) error {
	if !models.ValidID("ntf", job.NotificationID) {
		return Fatal(fmt.Errorf("malformed job payload: %q is not a notification id", job.NotificationID))
	}

	n, err := p.store.GetNotification(ctx, job.NotificationID)
	if err != nil {
		return fmt.Errorf("failed to fetch notification: %w", err)
	}
	if n == nil {
		return Fatal(fmt.Errorf("notification %s no longer exists", job.NotificationID))
	}

	// Idempotent re-delivery guard: a duplicate job execution for an
	// already-sent notification is a no-op success. Timestamps stay as the
	// first execution wrote them.
	if n.Status == models.StatusSent || n.Status == models.StatusDelivered {
		p.log.Debug().Str("notification_id", n.ID).Str("status", string(n.Status)).
			Msg("already sent, skipping")
		return nil
	}

	// A record already in processing is a re-delivered in-flight attempt:
	// the prior execution died after the processing write. The claim is held,
	// so resume the attempt in place instead of treating it as a lost race.
	if n.Status != models.StatusProcessing {
		if err := n.TransitionTo(models.StatusProcessing); err != nil {
			// Lost the check-then-act race, e.g. cancelled after the job was
			// claimed. The later state wins and the job has nothing left to do.
			return Fatal(fmt.Errorf("notification %s not processable: %w", n.ID, err))
		}
		if err := p.store.UpdateNotification(ctx, n); err != nil {
			return fmt.Errorf("failed to mark processing: %w", err)
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	defer cancel()
	res := p.registry.Route(sendCtx, n)

	if res.Success {
		return p.recordSent(ctx, n, job, res)
	}
	return p.recordFailure(ctx, n, job, res)
}

func (p *Processor) recordSent(ctx context.Context, n *models.Notification, job *models.Job, res *channel.RouteResult) error {
	now := time.Now().UTC()
	if err := n.TransitionTo(models.StatusSent); err != nil {
		return Fatal(err)
	}
	n.SentAt = &now
	n.LastError = ""
	n.MergeMetadata(map[string]string{
		"messageId":  res.MessageID,
		"durationMs": strconv.FormatInt(res.Duration.Milliseconds(), 10),
		"attempt":    strconv.Itoa(job.Attempt),
	})

	// Optional transport-confirmed delivery, outside the retry loop.
	if res.DeliveredAt != nil {
		if err := n.TransitionTo(models.StatusDelivered); err == nil {
			n.DeliveredAt = res.DeliveredAt
		}
	}

	if err := p.store.UpdateNotification(ctx, n); err != nil {
		return fmt.Errorf("failed to record sent: %w", err)
	}

	p.sink.RecordSent(n.Channel)
	p.log.Info().
		Str("notification_id", n.ID).
		Str("channel", string(n.Channel)).
		Str("message_id", res.MessageID).
		Int("attempt", job.Attempt).
		Dur("duration", res.Duration).
		Msg("notification sent")
	return nil
}

func (p *Processor) recordFailure(ctx context.Context, n *models.Notification, job *models.Job, res *channel.RouteResult) error {
	n.LastError = res.Err
	n.RetryCount++

	final := !res.Retryable || job.Attempt >= job.MaxAttempts

	if err := n.TransitionTo(models.StatusFailed); err != nil {
		return Fatal(err)
	}
	if !final {
		// Budget remains: hand the record back to the queue's retry cycle.
		if err := n.TransitionTo(models.StatusQueued); err != nil {
			return Fatal(err)
		}
	}

	if err := p.store.UpdateNotification(ctx, n); err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}

	if final {
		p.sink.RecordFailed(n.Channel)
		p.log.Warn().
			Str("notification_id", n.ID).
			Str("channel", string(n.Channel)).
			Int("attempt", job.Attempt).
			Str("error", res.Err).
			Msg("notification permanently failed")
		if !res.Retryable {
			return Fatal(fmt.Errorf("permanent delivery failure: %s", res.Err))
		}
		return fmt.Errorf("delivery failed: %s", res.Err)
	}

	p.log.Info().
		Str("notification_id", n.ID).
		Int("attempt", job.Attempt).
		Str("error", res.Err).
		Msg("delivery failed, will retry")
	// Re-raise so the queue's backoff accounting advances.
	return fmt.Errorf("delivery failed: %s", res.Err)
}
