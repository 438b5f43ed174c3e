package channel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/notifyd/internal/config"
	"github.com/shohag/notifyd/internal/models"
	"github.com/shohag/notifyd/internal/signing"
)

func TestWebhookSendSignsAndDelivers(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	transport := NewWebhookTransport(config.WebhookConfig{
		Enabled:       true,
		SigningSecret: "whsec_test",
	}, 5*time.Second)

	n := &models.Notification{
		ID:        models.NewID("ntf"),
		Channel:   models.ChannelWebhook,
		Recipient: srv.URL,
		Content:   "deploy finished",
	}

	res, err := transport.Send(context.Background(), n)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, models.ValidID("msg", res.MessageID))
	require.NotNil(t, res.DeliveredAt, "a synchronous 2xx confirms delivery")

	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, n.ID, gotHeaders.Get("X-Notifyd-ID"))

	ts, err := strconv.ParseInt(gotHeaders.Get("X-Notifyd-Timestamp"), 10, 64)
	require.NoError(t, err)
	assert.True(t, signing.Verify("whsec_test", gotBody, ts, gotHeaders.Get("X-Notifyd-Signature")))

	var payload webhookPayload
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, n.ID, payload.ID)
	assert.Equal(t, "deploy finished", payload.Content)
}

func TestWebhookSendSkipsSignatureWithoutSecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("X-Notifyd-Signature"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	transport := NewWebhookTransport(config.WebhookConfig{Enabled: true}, 5*time.Second)
	_, err := transport.Send(context.Background(), &models.Notification{
		ID:        models.NewID("ntf"),
		Recipient: srv.URL,
		Content:   "x",
	})
	require.NoError(t, err)
}

func TestWebhookSendRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	transport := NewWebhookTransport(config.WebhookConfig{Enabled: true}, 5*time.Second)
	res, err := transport.Send(context.Background(), &models.Notification{
		ID:        models.NewID("ntf"),
		Recipient: srv.URL,
		Content:   "x",
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookValidateRecipient(t *testing.T) {
	transport := NewWebhookTransport(config.WebhookConfig{Enabled: true}, time.Second)
	assert.True(t, transport.ValidateRecipient("https://example.com/hook"))
	assert.False(t, transport.ValidateRecipient("not-a-url"))
}
