package channel

import (
	"context"
	"time"

	"github.com/shohag/notifyd/internal/config"
	"github.com/shohag/notifyd/internal/models"
)

type SMSTransport struct {
	cfg      config.SMSConfig
	provider *providerClient
}

func NewSMSTransport(cfg config.SMSConfig, timeout time.Duration) *SMSTransport {
	return &SMSTransport{
		cfg:      cfg,
		provider: newProviderClient(cfg.ProviderURL, cfg.APIKey, timeout),
	}
}

func (t *SMSTransport) Channel() models.Channel { return models.ChannelSMS }

func (t *SMSTransport) IsAvailable() bool {
	return t.cfg.Enabled && t.cfg.ProviderURL != ""
}

func (t *SMSTransport) ValidateRecipient(recipient string) bool {
	return models.ParseRecipient(models.ChannelSMS, recipient).Valid
}

func (t *SMSTransport) Send(ctx context.Context, n *models.Notification) (*SendResult, error) {
	messageID, err := t.provider.post(ctx, map[string]interface{}{
		"sender": t.cfg.Sender,
		"to":     n.Recipient,
		"text":   n.Content,
	})
	if err != nil {
		return nil, err
	}
	return &SendResult{MessageID: messageID}, nil
}
