package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shohag/notifyd/internal/models"
)

// providerClient posts a JSON request to an HTTP delivery provider and
// extracts the provider-assigned message id. Email, sms and push transports
// all speak this shape.
type providerClient struct {
	url    string
	apiKey string
	client *http.Client
}

func newProviderClient(url, apiKey string, timeout time.Duration) *providerClient {
	return &providerClient{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

type providerResponse struct {
	MessageID string `json:"message_id"`
}

func (c *providerClient) post(ctx context.Context, payload interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "notifyd/1.0")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var pr providerResponse
	if err := json.Unmarshal(raw, &pr); err != nil || pr.MessageID == "" {
		// Provider accepted but did not hand back an id; mint one so the
		// record still carries a stable reference.
		return models.NewID("msg"), nil
	}
	return pr.MessageID, nil
}
