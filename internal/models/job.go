package models

import "time"

type JobStatus string

const (
	JobWaiting   JobStatus = "waiting"
	JobActive    JobStatus = "active"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is a durable queue entry referencing a notification. Seq is assigned by
// the store and drives FIFO/LIFO ordering within a priority tier.
type Job struct {
	ID             string            `json:"id"`
	Seq            int64             `json:"seq"`
	NotificationID string            `json:"notification_id"`
	Priority       Priority          `json:"priority"`
	Status         JobStatus         `json:"status"`
	Attempt        int               `json:"attempt"`
	MaxAttempts    int               `json:"max_attempts"`
	BackoffInitial time.Duration     `json:"backoff_initial"`
	AvailableAt    time.Time         `json:"available_at"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	LastError      string            `json:"last_error,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Metadata keys stamped by the orchestration service on enqueue.
const (
	JobMetaRetryAttempt = "retryAttempt"
	JobMetaRescheduled  = "rescheduled"
)
