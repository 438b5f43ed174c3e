package channel

import (
	"context"
	"time"

	"github.com/shohag/notifyd/internal/config"
	"github.com/shohag/notifyd/internal/models"
)

type EmailTransport struct {
	cfg      config.EmailConfig
	provider *providerClient
}

func NewEmailTransport(cfg config.EmailConfig, timeout time.Duration) *EmailTransport {
	return &EmailTransport{
		cfg:      cfg,
		provider: newProviderClient(cfg.ProviderURL, cfg.APIKey, timeout),
	}
}

func (t *EmailTransport) Channel() models.Channel { return models.ChannelEmail }

func (t *EmailTransport) IsAvailable() bool {
	return t.cfg.Enabled && t.cfg.ProviderURL != ""
}

func (t *EmailTransport) ValidateRecipient(recipient string) bool {
	return models.ParseRecipient(models.ChannelEmail, recipient).Valid
}

func (t *EmailTransport) Send(ctx context.Context, n *models.Notification) (*SendResult, error) {
	messageID, err := t.provider.post(ctx, map[string]interface{}{
		"from":    t.cfg.From,
		"to":      n.Recipient,
		"subject": n.Subject,
		"body":    n.Content,
	})
	if err != nil {
		return nil, err
	}
	return &SendResult{MessageID: messageID}, nil
}
