package channel

import (
	"context"
	"time"

	"github.com/shohag/notifyd/internal/config"
	"github.com/shohag/notifyd/internal/models"
)

type PushTransport struct {
	cfg      config.PushConfig
	provider *providerClient
}

func NewPushTransport(cfg config.PushConfig, timeout time.Duration) *PushTransport {
	return &PushTransport{
		cfg:      cfg,
		provider: newProviderClient(cfg.ProviderURL, cfg.APIKey, timeout),
	}
}

func (t *PushTransport) Channel() models.Channel { return models.ChannelPush }

func (t *PushTransport) IsAvailable() bool {
	return t.cfg.Enabled && t.cfg.ProviderURL != ""
}

func (t *PushTransport) ValidateRecipient(recipient string) bool {
	return models.ParseRecipient(models.ChannelPush, recipient).Valid
}

func (t *PushTransport) Send(ctx context.Context, n *models.Notification) (*SendResult, error) {
	messageID, err := t.provider.post(ctx, map[string]interface{}{
		"token": n.Recipient,
		"title": n.Subject,
		"body":  n.Content,
		"data":  n.Metadata,
	})
	if err != nil {
		return nil, err
	}
	return &SendResult{MessageID: messageID}, nil
}
