package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shohag/notifyd/internal/models"
)

// dbtx is the subset of sql.DB / sql.Tx the queries need, so the same
// methods serve both the plain store and the transactional view.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type SQLiteStorage struct {
	db *sql.DB
	q  dbtx
}

func NewSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStorage{db: db, q: db}, nil
}

func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			channel TEXT NOT NULL,
			recipient TEXT NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			priority TEXT NOT NULL DEFAULT 'normal',
			status TEXT NOT NULL DEFAULT 'created',
			metadata TEXT NOT NULL DEFAULT '{}',
			retry_count INTEGER NOT NULL DEFAULT 0,
			max_retries INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			scheduled_for DATETIME,
			sent_at DATETIME,
			delivered_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			notification_id TEXT NOT NULL REFERENCES notifications(id) ON DELETE CASCADE,
			priority TEXT NOT NULL DEFAULT 'normal',
			weight INTEGER NOT NULL DEFAULT 2,
			status TEXT NOT NULL DEFAULT 'waiting',
			attempt INTEGER NOT NULL DEFAULT 0,
			max_attempts INTEGER NOT NULL DEFAULT 3,
			backoff_initial_ms INTEGER NOT NULL DEFAULT 2000,
			available_at DATETIME NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			last_error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_status_created ON notifications(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_channel_status ON notifications(channel, status)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_due ON jobs(status, available_at) WHERE status = 'waiting'`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_notification ON jobs(notification_id)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) WithTx(ctx context.Context, fn func(ctx context.Context, tx Storage) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		// already inside a transaction; run against the same view
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	txStore := &SQLiteStorage{db: s.db, q: tx}
	if err := fn(ctx, txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// --- Notifications ---

const notificationCols = `id, channel, recipient, subject, content, priority, status, metadata,
	retry_count, max_retries, last_error, scheduled_for, sent_at, delivered_at, created_at, updated_at`

func (s *SQLiteStorage) CreateNotification(ctx context.Context, n *models.Notification) error {
	metadata, _ := json.Marshal(orEmptyMap(n.Metadata))
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO notifications (`+notificationCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Channel, n.Recipient, n.Subject, n.Content, n.Priority, n.Status, string(metadata),
		n.RetryCount, n.MaxRetries, n.LastError, n.ScheduledFor, n.SentAt, n.DeliveredAt, n.CreatedAt, n.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) scanNotification(row interface{ Scan(...interface{}) error }) (*models.Notification, error) {
	var n models.Notification
	var metadata string
	err := row.Scan(&n.ID, &n.Channel, &n.Recipient, &n.Subject, &n.Content, &n.Priority, &n.Status,
		&metadata, &n.RetryCount, &n.MaxRetries, &n.LastError, &n.ScheduledFor, &n.SentAt, &n.DeliveredAt,
		&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metadata), &n.Metadata); err != nil {
		return nil, fmt.Errorf("decode notification metadata: %w", err)
	}
	return &n, nil
}

func (s *SQLiteStorage) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+notificationCols+` FROM notifications WHERE id = ?`, id)
	n, err := s.scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

func (s *SQLiteStorage) UpdateNotification(ctx context.Context, n *models.Notification) error {
	metadata, _ := json.Marshal(orEmptyMap(n.Metadata))
	_, err := s.q.ExecContext(ctx,
		`UPDATE notifications SET channel = ?, recipient = ?, subject = ?, content = ?, priority = ?,
		 status = ?, metadata = ?, retry_count = ?, max_retries = ?, last_error = ?, scheduled_for = ?,
		 sent_at = ?, delivered_at = ?, updated_at = ? WHERE id = ?`,
		n.Channel, n.Recipient, n.Subject, n.Content, n.Priority, n.Status, string(metadata),
		n.RetryCount, n.MaxRetries, n.LastError, n.ScheduledFor, n.SentAt, n.DeliveredAt,
		time.Now().UTC(), n.ID,
	)
	return err
}

func (s *SQLiteStorage) ListNotifications(ctx context.Context, f ListFilter) ([]models.Notification, error) {
	query := `SELECT ` + notificationCols + ` FROM notifications WHERE 1=1`
	args := []interface{}{}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Channel != "" {
		query += ` AND channel = ?`
		args = append(args, f.Channel)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		n, err := s.scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT status, COUNT(*) FROM notifications GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.Status]int64)
	for rows.Next() {
		var status models.Status
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (s *SQLiteStorage) RecentFailures(ctx context.Context, window time.Duration) (int64, error) {
	var count int64
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE status = 'failed' AND updated_at >= ?`,
		time.Now().UTC().Add(-window),
	).Scan(&count)
	return count, err
}

// --- Jobs ---

const jobCols = `seq, id, notification_id, priority, status, attempt, max_attempts,
	backoff_initial_ms, available_at, metadata, last_error, created_at, updated_at`

func (s *SQLiteStorage) CreateJob(ctx context.Context, j *models.Job) error {
	metadata, _ := json.Marshal(orEmptyMap(j.Metadata))
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO jobs (id, notification_id, priority, weight, status, attempt, max_attempts,
		 backoff_initial_ms, available_at, metadata, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.NotificationID, j.Priority, j.Priority.Weight(), j.Status, j.Attempt, j.MaxAttempts,
		j.BackoffInitial.Milliseconds(), j.AvailableAt, string(metadata), j.LastError, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return err
	}
	seq, err := res.LastInsertId()
	if err == nil {
		j.Seq = seq
	}
	return nil
}

func (s *SQLiteStorage) scanJob(row interface{ Scan(...interface{}) error }) (*models.Job, error) {
	var j models.Job
	var metadata string
	var backoffMs int64
	err := row.Scan(&j.Seq, &j.ID, &j.NotificationID, &j.Priority, &j.Status, &j.Attempt,
		&j.MaxAttempts, &backoffMs, &j.AvailableAt, &metadata, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.BackoffInitial = time.Duration(backoffMs) * time.Millisecond
	if err := json.Unmarshal([]byte(metadata), &j.Metadata); err != nil {
		return nil, fmt.Errorf("decode job metadata: %w", err)
	}
	return &j, nil
}

func (s *SQLiteStorage) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE id = ?`, id)
	j, err := s.scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

// ClaimDueJobs selects eligible waiting jobs in priority order and flips them
// to active. High priority dequeues LIFO (latest seq first) to favor the most
// recent urgent submission; other tiers dequeue FIFO. The status-guarded
// UPDATE makes the claim safe against a competing poller.
func (s *SQLiteStorage) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]models.Job, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+jobCols+` FROM jobs
		 WHERE status = 'waiting' AND available_at <= ?
		 ORDER BY weight DESC,
		          CASE WHEN weight = 3 THEN -seq ELSE seq END ASC
		 LIMIT ?`,
		now.UTC(), limit)
	if err != nil {
		return nil, err
	}

	var candidates []models.Job
	for rows.Next() {
		j, err := s.scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, *j)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	claimed := make([]models.Job, 0, len(candidates))
	for _, j := range candidates {
		res, err := s.q.ExecContext(ctx,
			`UPDATE jobs SET status = 'active', updated_at = ? WHERE id = ? AND status = 'waiting'`,
			now.UTC(), j.ID)
		if err != nil {
			return claimed, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			j.Status = models.JobActive
			claimed = append(claimed, j)
		}
	}
	return claimed, nil
}

func (s *SQLiteStorage) UpdateJob(ctx context.Context, j *models.Job) error {
	metadata, _ := json.Marshal(orEmptyMap(j.Metadata))
	_, err := s.q.ExecContext(ctx,
		`UPDATE jobs SET status = ?, attempt = ?, available_at = ?, metadata = ?, last_error = ?, updated_at = ?
		 WHERE id = ?`,
		j.Status, j.Attempt, j.AvailableAt, string(metadata), j.LastError, time.Now().UTC(), j.ID,
	)
	return err
}

// RemoveWaitingJob deletes the not-yet-started job for a notification. A
// false return means the job already started or never existed; that is a
// valid outcome, not an error.
func (s *SQLiteStorage) RemoveWaitingJob(ctx context.Context, notificationID string) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM jobs WHERE notification_id = ? AND status = 'waiting'`, notificationID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RequeueStaleJobs returns active jobs with a stale claim to the waiting
// pool. A job only stays active across a hard crash; clean shutdowns settle
// every claim, so anything older than the threshold belongs to a dead worker.
func (s *SQLiteStorage) RequeueStaleJobs(ctx context.Context, olderThan time.Time) (int64, error) {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`UPDATE jobs SET status = 'waiting', available_at = ?, updated_at = ?
		 WHERE status = 'active' AND updated_at < ?`,
		now, now, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStorage) JobCounts(ctx context.Context) (map[models.JobStatus]int64, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int64)
	for rows.Next() {
		var status models.JobStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// --- Retention ---

func (s *SQLiteStorage) PruneNotifications(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM notifications
		 WHERE status IN ('sent', 'delivered', 'failed', 'cancelled') AND updated_at < ?`,
		olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStorage) PruneJobs(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM jobs WHERE status IN ('completed', 'failed') AND updated_at < ?`,
		olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
