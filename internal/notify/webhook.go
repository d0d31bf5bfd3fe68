package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// WebhookSender posts messages to Discord webhook URLs.
type WebhookSender struct {
	client *retryablehttp.Client
}

// WebhookConfig holds webhook transport settings. RetryMax defaults to zero;
// a retried request the server already accepted posts the message twice.
type WebhookConfig struct {
	Timeout  time.Duration
	RetryMax int
}

// NewWebhookSender creates a new webhook sender
func NewWebhookSender(config WebhookConfig) *WebhookSender {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	client := retryablehttp.NewClient()
	client.RetryMax = config.RetryMax
	client.HTTPClient.Timeout = config.Timeout
	client.Logger = nil

	return &WebhookSender{client: client}
}

type webhookPayload struct {
	Content string `json:"content"`
}

// Send posts text to the webhook URL in target.
func (w *WebhookSender) Send(ctx context.Context, target, text string) error {
	body, err := json.Marshal(webhookPayload{Content: text})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
