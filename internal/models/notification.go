package models

import (
	"fmt"
	"time"
)

type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
	ChannelWebhook Channel = "webhook"
)

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelWebhook:
		return true
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Weight maps a priority to its queue ordering weight. Higher dequeues first.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityLow:
		return 1
	default:
		return 2
	}
}

const MaxContentSize = 64 * 1024

type Notification struct {
	ID           string            `json:"id"`
	Channel      Channel           `json:"channel"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject,omitempty"`
	Content      string            `json:"content"`
	Priority     Priority          `json:"priority"`
	Status       Status            `json:"status"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	RetryCount   int               `json:"retry_count"`
	MaxRetries   int               `json:"max_retries"`
	LastError    string            `json:"last_error,omitempty"`
	ScheduledFor *time.Time        `json:"scheduled_for,omitempty"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	DeliveredAt  *time.Time        `json:"delivered_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Validate checks creation-time rules: channel, recipient format, the
// per-channel subject rules and content size. Violations are permanent
// validation errors and must never reach the queue.
func (n *Notification) Validate() error {
	if !n.Channel.IsValid() {
		return ValidationError(fmt.Sprintf("invalid channel %q", n.Channel))
	}
	if n.Priority != "" && !n.Priority.IsValid() {
		return ValidationError(fmt.Sprintf("invalid priority %q", n.Priority))
	}
	if n.Recipient == "" {
		return ValidationError("recipient is required")
	}
	if rec := ParseRecipient(n.Channel, n.Recipient); !rec.Valid {
		return ValidationError(fmt.Sprintf("invalid recipient for channel %s: %s", n.Channel, rec.Reason))
	}
	if n.Channel == ChannelSMS && n.Subject != "" {
		return ValidationError("subject must be empty for sms notifications")
	}
	if n.Channel == ChannelEmail && n.Subject == "" {
		return ValidationError("subject is required for email notifications")
	}
	if n.Content == "" {
		return ValidationError("content is required")
	}
	if len(n.Content) > MaxContentSize {
		return ValidationError(fmt.Sprintf("content exceeds %d bytes", MaxContentSize))
	}
	return nil
}

// Mutable reports whether the record still accepts field updates. Once the
// transport accepted the message only DeliveredAt and metadata enrichment
// may change.
func (n *Notification) Mutable() bool {
	return n.Status != StatusSent && n.Status != StatusDelivered
}

// MergeMetadata merges kv pairs into the record without dropping existing keys.
func (n *Notification) MergeMetadata(kv map[string]string) {
	if len(kv) == 0 {
		return
	}
	if n.Metadata == nil {
		n.Metadata = make(map[string]string, len(kv))
	}
	for k, v := range kv {
		n.Metadata[k] = v
	}
}
