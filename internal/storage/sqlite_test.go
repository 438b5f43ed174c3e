package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/notifyd/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func sampleNotification(status models.Status) *models.Notification {
	now := time.Now().UTC()
	return &models.Notification{
		ID:         models.NewID("ntf"),
		Channel:    models.ChannelEmail,
		Recipient:  "user@example.com",
		Subject:    "Welcome",
		Content:    "Hi",
		Priority:   models.PriorityNormal,
		Status:     status,
		Metadata:   map[string]string{"source": "test"},
		MaxRetries: 3,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestNotificationRoundtrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	n := sampleNotification(models.StatusCreated)
	require.NoError(t, store.CreateNotification(ctx, n))

	got, err := store.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, n.Channel, got.Channel)
	assert.Equal(t, n.Recipient, got.Recipient)
	assert.Equal(t, map[string]string{"source": "test"}, got.Metadata)
	assert.Nil(t, got.SentAt)

	got.Status = models.StatusQueued
	got.LastError = "x"
	require.NoError(t, store.UpdateNotification(ctx, got))

	got2, err := store.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, got2.Status)
	assert.Equal(t, "x", got2.LastError)
}

func TestGetNotificationMissing(t *testing.T) {
	store := newTestStore(t)
	got, err := store.GetNotification(context.Background(), models.NewID("ntf"))
	require.NoError(t, err)
	assert.Nil(t, got, "missing rows come back as nil, not an error")
}

func TestListNotificationsFilters(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	a := sampleNotification(models.StatusQueued)
	b := sampleNotification(models.StatusFailed)
	c := sampleNotification(models.StatusQueued)
	c.Channel = models.ChannelSMS
	c.Recipient = "+15550001111"
	c.Subject = ""
	for _, n := range []*models.Notification{a, b, c} {
		require.NoError(t, store.CreateNotification(ctx, n))
	}

	queued, err := store.ListNotifications(ctx, ListFilter{Status: models.StatusQueued})
	require.NoError(t, err)
	assert.Len(t, queued, 2)

	sms, err := store.ListNotifications(ctx, ListFilter{Channel: models.ChannelSMS})
	require.NoError(t, err)
	require.Len(t, sms, 1)
	assert.Equal(t, c.ID, sms[0].ID)

	limited, err := store.ListNotifications(ctx, ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestCountByStatusAndRecentFailures(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.CreateNotification(ctx, sampleNotification(models.StatusQueued)))
	require.NoError(t, store.CreateNotification(ctx, sampleNotification(models.StatusQueued)))
	require.NoError(t, store.CreateNotification(ctx, sampleNotification(models.StatusFailed)))

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[models.StatusQueued])
	assert.Equal(t, int64(1), counts[models.StatusFailed])

	failures, err := store.RecentFailures(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failures)
}

func TestWithTxCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	committed := sampleNotification(models.StatusCreated)
	err := store.WithTx(ctx, func(ctx context.Context, tx Storage) error {
		return tx.CreateNotification(ctx, committed)
	})
	require.NoError(t, err)

	got, err := store.GetNotification(ctx, committed.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)

	rolledBack := sampleNotification(models.StatusCreated)
	sentinel := errors.New("abort")
	err = store.WithTx(ctx, func(ctx context.Context, tx Storage) error {
		if err := tx.CreateNotification(ctx, rolledBack); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	got, err = store.GetNotification(ctx, rolledBack.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "the failed transaction must leave nothing behind")
}

func TestWithTxNested(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	n := sampleNotification(models.StatusCreated)
	err := store.WithTx(ctx, func(ctx context.Context, tx Storage) error {
		return tx.WithTx(ctx, func(ctx context.Context, inner Storage) error {
			return inner.CreateNotification(ctx, n)
		})
	})
	require.NoError(t, err)

	got, err := store.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func sampleJob(notificationID string, status models.JobStatus, updatedAt time.Time) *models.Job {
	return &models.Job{
		ID:             models.NewID("job"),
		NotificationID: notificationID,
		Priority:       models.PriorityNormal,
		Status:         status,
		MaxAttempts:    3,
		BackoffInitial: 2 * time.Second,
		AvailableAt:    updatedAt,
		CreatedAt:      updatedAt,
		UpdatedAt:      updatedAt,
	}
}

func TestJobRoundtrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	n := sampleNotification(models.StatusQueued)
	require.NoError(t, store.CreateNotification(ctx, n))

	job := sampleJob(n.ID, models.JobWaiting, time.Now().UTC())
	job.Metadata = map[string]string{"rescheduled": "true"}
	require.NoError(t, store.CreateJob(ctx, job))
	assert.Positive(t, job.Seq, "the store assigns the ordering key")

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.Seq, got.Seq)
	assert.Equal(t, 2*time.Second, got.BackoffInitial)
	assert.Equal(t, "true", got.Metadata["rescheduled"])
}

func TestJobCounts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	n := sampleNotification(models.StatusQueued)
	require.NoError(t, store.CreateNotification(ctx, n))
	now := time.Now().UTC()
	require.NoError(t, store.CreateJob(ctx, sampleJob(n.ID, models.JobWaiting, now)))
	require.NoError(t, store.CreateJob(ctx, sampleJob(n.ID, models.JobCompleted, now)))

	counts, err := store.JobCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.JobWaiting])
	assert.Equal(t, int64(1), counts[models.JobCompleted])
}

func TestRequeueStaleJobs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	n := sampleNotification(models.StatusQueued)
	require.NoError(t, store.CreateNotification(ctx, n))

	now := time.Now().UTC()
	crashed := sampleJob(n.ID, models.JobActive, now.Add(-48*time.Hour))
	require.NoError(t, store.CreateJob(ctx, crashed))
	held := sampleJob(n.ID, models.JobActive, now)
	require.NoError(t, store.CreateJob(ctx, held))
	settled := sampleJob(n.ID, models.JobCompleted, now.Add(-48*time.Hour))
	require.NoError(t, store.CreateJob(ctx, settled))

	requeued, err := store.RequeueStaleJobs(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), requeued)

	got, err := store.GetJob(ctx, crashed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobWaiting, got.Status)
	assert.False(t, got.AvailableAt.After(time.Now().UTC()), "reclaimed jobs are immediately eligible")

	got, err = store.GetJob(ctx, held.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobActive, got.Status, "a live claim must not be stolen")

	got, err = store.GetJob(ctx, settled.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
}

func TestCorruptMetadataSurfacesError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	n := sampleNotification(models.StatusCreated)
	require.NoError(t, store.CreateNotification(ctx, n))
	_, err := store.db.ExecContext(ctx, `UPDATE notifications SET metadata = '{' WHERE id = ?`, n.ID)
	require.NoError(t, err)

	_, err = store.GetNotification(ctx, n.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metadata")

	job := sampleJob(n.ID, models.JobWaiting, time.Now().UTC())
	require.NoError(t, store.CreateJob(ctx, job))
	_, err = store.db.ExecContext(ctx, `UPDATE jobs SET metadata = 'not-json' WHERE id = ?`, job.ID)
	require.NoError(t, err)

	_, err = store.GetJob(ctx, job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metadata")
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	old := time.Now().UTC().Add(-48 * time.Hour)

	stale := sampleNotification(models.StatusDelivered)
	stale.UpdatedAt = old
	require.NoError(t, store.CreateNotification(ctx, stale))

	fresh := sampleNotification(models.StatusDelivered)
	require.NoError(t, store.CreateNotification(ctx, fresh))

	// In-flight records are never pruned regardless of age.
	inflight := sampleNotification(models.StatusQueued)
	inflight.UpdatedAt = old
	require.NoError(t, store.CreateNotification(ctx, inflight))

	staleJob := sampleJob(fresh.ID, models.JobCompleted, old)
	require.NoError(t, store.CreateJob(ctx, staleJob))
	waitingJob := sampleJob(fresh.ID, models.JobWaiting, old)
	require.NoError(t, store.CreateJob(ctx, waitingJob))

	cutoff := time.Now().UTC().Add(-24 * time.Hour)

	pruned, err := store.PruneNotifications(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	got, err := store.GetNotification(ctx, stale.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = store.GetNotification(ctx, inflight.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)

	prunedJobs, err := store.PruneJobs(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), prunedJobs)

	j, err := store.GetJob(ctx, waitingJob.ID)
	require.NoError(t, err)
	assert.NotNil(t, j, "waiting jobs survive the sweep")
}
