package storage

import (
	"context"
	"time"

	"github.com/shohag/notifyd/internal/models"
)

// ListFilter narrows and pages notification listings.
type ListFilter struct {
	Status  models.Status
	Channel models.Channel
	Limit   int
	Offset  int
}

type Stats struct {
	Total          int64                   `json:"total"`
	ByStatus       map[models.Status]int64 `json:"by_status"`
	RecentFailures int64                   `json:"recent_failures"`
	FailureWindow  time.Duration           `json:"failure_window"`
}

type Storage interface {
	// Notifications
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	UpdateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, f ListFilter) ([]models.Notification, error)
	CountByStatus(ctx context.Context) (map[models.Status]int64, error)
	RecentFailures(ctx context.Context, window time.Duration) (int64, error)

	// Jobs (durable queue backing)
	CreateJob(ctx context.Context, j *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]models.Job, error)
	UpdateJob(ctx context.Context, j *models.Job) error
	RemoveWaitingJob(ctx context.Context, notificationID string) (bool, error)
	RequeueStaleJobs(ctx context.Context, olderThan time.Time) (int64, error)
	JobCounts(ctx context.Context) (map[models.JobStatus]int64, error)

	// Retention
	PruneNotifications(ctx context.Context, olderThan time.Time) (int64, error)
	PruneJobs(ctx context.Context, olderThan time.Time) (int64, error)

	// WithTx runs fn against a transactional view of the store. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Storage) error) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
