package queue

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/notifyd/internal/config"
	"github.com/shohag/notifyd/internal/models"
	"github.com/shohag/notifyd/internal/storage"
)

// Queue is the durable work-queue producer. Enqueue is synchronous: it
// returns only once the job row is durably written, and any failure surfaces
// to the caller.
type Queue struct {
	store  storage.Storage
	cfg    config.QueueConfig
	log    zerolog.Logger
	paused atomic.Bool
}

func New(cfg config.QueueConfig, store storage.Storage, log zerolog.Logger) *Queue {
	return &Queue{
		store: store,
		cfg:   cfg,
		log:   log.With().Str("component", "queue").Logger(),
	}
}

// PolicyFor returns the retry budget and initial backoff for a priority.
func (q *Queue) PolicyFor(p models.Priority) config.PriorityPolicy {
	return q.cfg.Policy(string(p))
}

// Enqueue creates a durable job for a notification. A future scheduledFor
// holds the job until that time; past or absent means immediately eligible.
func (q *Queue) Enqueue(ctx context.Context, notificationID string, priority models.Priority, scheduledFor *time.Time, metadata map[string]string) (string, error) {
	if !priority.IsValid() {
		priority = models.PriorityNormal
	}
	policy := q.PolicyFor(priority)

	now := time.Now().UTC()
	availableAt := now
	if scheduledFor != nil && scheduledFor.After(now) {
		availableAt = scheduledFor.UTC()
	}

	job := &models.Job{
		ID:             models.NewID("job"),
		NotificationID: notificationID,
		Priority:       priority,
		Status:         models.JobWaiting,
		Attempt:        0,
		MaxAttempts:    policy.MaxAttempts,
		BackoffInitial: policy.InitialBackoff,
		AvailableAt:    availableAt,
		Metadata:       metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := q.store.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	q.log.Debug().
		Str("job_id", job.ID).
		Str("notification_id", notificationID).
		Str("priority", string(priority)).
		Time("available_at", availableAt).
		Msg("job enqueued")
	return job.ID, nil
}

// RemoveJob removes the pending job for a notification, for cancellation and
// reschedule. false means the job already started or is gone; that is the
// normal "past the point of cancellation" outcome, not an error.
func (q *Queue) RemoveJob(ctx context.Context, notificationID string) (bool, error) {
	removed, err := q.store.RemoveWaitingJob(ctx, notificationID)
	if err != nil {
		return false, fmt.Errorf("failed to remove job: %w", err)
	}
	return removed, nil
}

func (q *Queue) Counts(ctx context.Context) (map[models.JobStatus]int64, error) {
	return q.store.JobCounts(ctx)
}

// RequeueStale returns crashed claims to the waiting pool. A job sits in
// active only while a worker holds it; one older than the stale threshold
// belongs to a process that died mid-attempt. Run at startup and from the
// periodic sweep.
func (q *Queue) RequeueStale(ctx context.Context) (int64, error) {
	stale := q.cfg.StaleClaim
	if stale <= 0 {
		stale = 5 * time.Minute
	}
	n, err := q.store.RequeueStaleJobs(ctx, time.Now().UTC().Add(-stale))
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale jobs: %w", err)
	}
	if n > 0 {
		q.log.Warn().Int64("requeued", n).Msg("requeued stale active jobs")
	}
	return n, nil
}

func (q *Queue) Pause()  { q.paused.Store(true) }
func (q *Queue) Resume() { q.paused.Store(false) }

func (q *Queue) Paused() bool { return q.paused.Load() }

func (q *Queue) claimDue(ctx context.Context, limit int) ([]models.Job, error) {
	return q.store.ClaimDueJobs(ctx, time.Now(), limit)
}

// settle applies the attempt outcome to the job: completed on success,
// waiting with backoff when budget remains, failed on a fatal error or an
// exhausted budget.
func (q *Queue) settle(ctx context.Context, job *models.Job, procErr error) {
	if procErr == nil {
		job.Status = models.JobCompleted
		job.LastError = ""
	} else {
		job.LastError = procErr.Error()
		if IsFatal(procErr) || job.Attempt >= job.MaxAttempts {
			job.Status = models.JobFailed
		} else {
			job.Status = models.JobWaiting
			job.AvailableAt = time.Now().UTC().Add(NextBackoff(job.BackoffInitial, job.Attempt))
		}
	}

	if err := q.store.UpdateJob(ctx, job); err != nil {
		q.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to settle job")
	}
}
