package channel

import (
	"context"
	"time"

	"github.com/shohag/notifyd/internal/models"
)

// SendResult is what a transport reports after the provider accepted a
// message. DeliveredAt is only set when the transport can confirm final
// delivery at accept time (e.g. a synchronous webhook 2xx).
type SendResult struct {
	MessageID   string
	DeliveredAt *time.Time
}

// Transport is a pluggable channel sender. The router depends on nothing
// beyond this contract.
type Transport interface {
	Channel() models.Channel
	Send(ctx context.Context, n *models.Notification) (*SendResult, error)
	IsAvailable() bool
	ValidateRecipient(recipient string) bool
}
