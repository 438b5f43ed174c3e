package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shohag/notifyd/internal/config"
	"github.com/shohag/notifyd/internal/models"
	"github.com/shohag/notifyd/internal/signing"
)

// webhookPayload is the body POSTed to the recipient URL.
type webhookPayload struct {
	ID       string            `json:"id"`
	Subject  string            `json:"subject,omitempty"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	SentAt   time.Time         `json:"sent_at"`
}

// WebhookTransport delivers a notification by POSTing it to the recipient
// URL, signing the payload when a secret is configured.
type WebhookTransport struct {
	cfg    config.WebhookConfig
	client *http.Client
}

func NewWebhookTransport(cfg config.WebhookConfig, timeout time.Duration) *WebhookTransport {
	return &WebhookTransport{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (t *WebhookTransport) Channel() models.Channel { return models.ChannelWebhook }

func (t *WebhookTransport) IsAvailable() bool { return t.cfg.Enabled }

func (t *WebhookTransport) ValidateRecipient(recipient string) bool {
	return models.ParseRecipient(models.ChannelWebhook, recipient).Valid
}

func (t *WebhookTransport) Send(ctx context.Context, n *models.Notification) (*SendResult, error) {
	body, err := json.Marshal(webhookPayload{
		ID:       n.ID,
		Subject:  n.Subject,
		Content:  n.Content,
		Metadata: n.Metadata,
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Recipient, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "notifyd/1.0")
	req.Header.Set("X-Notifyd-ID", n.ID)
	if t.cfg.SigningSecret != "" {
		sig, ts := signing.Sign(t.cfg.SigningSecret, body)
		req.Header.Set("X-Notifyd-Timestamp", fmt.Sprintf("%d", ts))
		req.Header.Set("X-Notifyd-Signature", sig)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}

	// A synchronous 2xx from the endpoint is both acceptance and delivery.
	now := time.Now().UTC()
	return &SendResult{
		MessageID:   models.NewID("msg"),
		DeliveredAt: &now,
	}, nil
}
