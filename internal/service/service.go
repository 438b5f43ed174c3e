package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/notifyd/internal/config"
	"github.com/shohag/notifyd/internal/events"
	"github.com/shohag/notifyd/internal/metrics"
	"github.com/shohag/notifyd/internal/models"
	"github.com/shohag/notifyd/internal/queue"
	"github.com/shohag/notifyd/internal/storage"
)

const (
	failureWindow = time.Hour
	statsCacheTTL = 30 * time.Second
)

// Service wraps the create/update/cancel/retry use cases, pairing every
// persistence mutation with the matching queue mutation so record and queue
// never diverge.
type Service struct {
	store storage.Storage
	queue *queue.Queue
	bus   events.Bus
	sink  metrics.Sink
	bulk  config.BulkConfig
	log   zerolog.Logger

	statsMu sync.Mutex
	stats   *storage.Stats
	statsAt time.Time
}

func New(store storage.Storage, q *queue.Queue, bus events.Bus, sink metrics.Sink, bulk config.BulkConfig, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		queue: q,
		bus:   bus,
		sink:  sink,
		bulk:  bulk,
		log:   log.With().Str("component", "service").Logger(),
	}
}

type CreateRequest struct {
	Channel      models.Channel    `json:"channel"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject,omitempty"`
	Content      string            `json:"content"`
	Priority     models.Priority   `json:"priority,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	ScheduledFor *time.Time        `json:"scheduled_for,omitempty"`
}

// Create validates and persists a new notification, then enqueues its
// delivery job. The record is only marked queued after the enqueue
// succeeded; an enqueue failure after the commit leaves a created record
// with no job, which is surfaced as an operational alert and an error.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Notification, error) {
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	now := time.Now().UTC()
	n := &models.Notification{
		ID:           models.NewID("ntf"),
		Channel:      req.Channel,
		Recipient:    req.Recipient,
		Subject:      req.Subject,
		Content:      req.Content,
		Priority:     priority,
		Status:       models.StatusCreated,
		Metadata:     req.Metadata,
		MaxRetries:   s.queue.PolicyFor(priority).MaxAttempts,
		ScheduledFor: req.ScheduledFor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := n.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Storage) error {
		return tx.CreateNotification(ctx, n)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist notification: %w", err)
	}

	jobID, err := s.queue.Enqueue(ctx, n.ID, priority, req.ScheduledFor, nil)
	if err != nil {
		// Detectable inconsistency: the record exists but carries no job.
		s.log.Error().Err(err).
			Str("alert", "orphaned_notification").
			Str("notification_id", n.ID).
			Msg("notification persisted but enqueue failed")
		return nil, fmt.Errorf("notification %s created but not queued: %w", n.ID, err)
	}

	if err := n.TransitionTo(models.StatusQueued); err != nil {
		return nil, err
	}
	if err := s.store.UpdateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to mark queued: %w", err)
	}

	s.bus.Publish(events.NotificationCreated, n.ID, map[string]string{"channel": string(n.Channel)})
	s.bus.Publish(events.NotificationQueued, n.ID, map[string]string{"job_id": jobID})
	s.invalidateStats()
	return n, nil
}

type UpdateRequest struct {
	Subject      *string           `json:"subject,omitempty"`
	Content      *string           `json:"content,omitempty"`
	Priority     *models.Priority  `json:"priority,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	ScheduledFor *time.Time        `json:"scheduled_for,omitempty"`
}

// Update applies field changes to a not-yet-sent notification. A changed
// scheduled time swaps the pending job for a fresh one and re-queues the
// record.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*models.Notification, error) {
	n, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !n.Mutable() {
		return nil, models.ImmutableError(fmt.Sprintf("notification %s is %s and cannot be updated", id, n.Status))
	}

	if req.Subject != nil {
		n.Subject = *req.Subject
	}
	if req.Content != nil {
		n.Content = *req.Content
	}
	if req.Priority != nil {
		n.Priority = *req.Priority
		n.MaxRetries = s.queue.PolicyFor(n.Priority).MaxAttempts
	}
	n.MergeMetadata(req.Metadata)

	reschedule := req.ScheduledFor != nil && !equalTimePtr(req.ScheduledFor, n.ScheduledFor)
	if reschedule {
		n.ScheduledFor = req.ScheduledFor
	}

	if err := n.Validate(); err != nil {
		return nil, err
	}

	if reschedule && n.Status != models.StatusQueued {
		if err := n.TransitionTo(models.StatusQueued); err != nil {
			return nil, err
		}
	}

	// Persist the record before touching the queue: a failed write must not
	// leave a fresh job pointing at stale record state.
	n.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to update notification: %w", err)
	}

	if reschedule {
		if _, err := s.queue.RemoveJob(ctx, n.ID); err != nil {
			return nil, err
		}
		meta := map[string]string{models.JobMetaRescheduled: "true"}
		if _, err := s.queue.Enqueue(ctx, n.ID, n.Priority, n.ScheduledFor, meta); err != nil {
			s.log.Error().Err(err).
				Str("alert", "orphaned_notification").
				Str("notification_id", n.ID).
				Msg("notification rescheduled but enqueue failed")
			return nil, fmt.Errorf("notification %s updated but not queued: %w", n.ID, err)
		}
	}

	s.bus.Publish(events.NotificationUpdated, n.ID, nil)
	s.invalidateStats()
	return n, nil
}

// Cancel withdraws a notification before dispatch. Removing the queued job
// is best-effort: a job already claimed by a worker runs to completion and
// the cancel is rejected by the state machine instead.
func (s *Service) Cancel(ctx context.Context, id string) (*models.Notification, error) {
	n, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := n.TransitionTo(models.StatusCancelled); err != nil {
		return nil, err
	}
	if err := s.store.UpdateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to cancel notification: %w", err)
	}

	removed, err := s.queue.RemoveJob(ctx, n.ID)
	if err != nil {
		s.log.Error().Err(err).Str("notification_id", n.ID).Msg("failed to remove job on cancel")
	} else if !removed {
		s.log.Debug().Str("notification_id", n.ID).Msg("no pending job to remove")
	}

	s.bus.Publish(events.NotificationCancelled, n.ID, nil)
	s.invalidateStats()
	return n, nil
}

// Retry re-queues a failed notification at high priority. Only legal while
// the retry budget is not exhausted.
func (s *Service) Retry(ctx context.Context, id string) (*models.Notification, error) {
	n, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if n.Status != models.StatusFailed {
		return nil, models.RetryNotAllowedError(fmt.Sprintf("notification %s is %s, only failed notifications can be retried", id, n.Status))
	}
	if n.RetryCount >= n.MaxRetries {
		return nil, models.RetryNotAllowedError(fmt.Sprintf("notification %s exhausted its %d retries", id, n.MaxRetries))
	}

	if err := n.TransitionTo(models.StatusCreated); err != nil {
		return nil, err
	}

	meta := map[string]string{models.JobMetaRetryAttempt: strconv.Itoa(n.RetryCount + 1)}
	if _, err := s.queue.Enqueue(ctx, n.ID, models.PriorityHigh, nil, meta); err != nil {
		return nil, fmt.Errorf("failed to enqueue retry: %w", err)
	}

	if err := n.TransitionTo(models.StatusQueued); err != nil {
		return nil, err
	}
	if err := s.store.UpdateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to update notification: %w", err)
	}

	s.bus.Publish(events.NotificationRetried, n.ID, map[string]string{"retry_count": strconv.Itoa(n.RetryCount)})
	s.invalidateStats()
	return n, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Notification, error) {
	return s.get(ctx, id)
}

func (s *Service) List(ctx context.Context, f storage.ListFilter) ([]models.Notification, error) {
	return s.store.ListNotifications(ctx, f)
}

// Stats aggregates status counts and the recent-failure count, cached
// briefly and invalidated by writes and bulk completions.
func (s *Service) Stats(ctx context.Context) (*storage.Stats, error) {
	s.statsMu.Lock()
	if s.stats != nil && time.Since(s.statsAt) < statsCacheTTL {
		cached := *s.stats
		s.statsMu.Unlock()
		return &cached, nil
	}
	s.statsMu.Unlock()

	byStatus, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}
	failures, err := s.store.RecentFailures(ctx, failureWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to count recent failures: %w", err)
	}

	stats := &storage.Stats{
		ByStatus:       byStatus,
		RecentFailures: failures,
		FailureWindow:  failureWindow,
	}
	for _, c := range byStatus {
		stats.Total += c
	}

	s.statsMu.Lock()
	s.stats = stats
	s.statsAt = time.Now()
	s.statsMu.Unlock()

	cached := *stats
	return &cached, nil
}

func (s *Service) invalidateStats() {
	s.statsMu.Lock()
	s.stats = nil
	s.statsMu.Unlock()
}

func (s *Service) get(ctx context.Context, id string) (*models.Notification, error) {
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	if n == nil {
		return nil, models.NotFoundError(fmt.Sprintf("notification %s not found", id))
	}
	return n, nil
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
