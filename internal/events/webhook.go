package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookListener posts each event as JSON to a configured URL
type WebhookListener struct {
	url        string
	httpClient *http.Client
}

// NewWebhookListener creates a new webhook listener
func NewWebhookListener(url string) *WebhookListener {
	return &WebhookListener{
		url: url,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Handle sends the event envelope to the webhook
func (w *WebhookListener) Handle(ctx context.Context, e Event) error {
	jsonData, err := json.Marshal(NewEnvelope(e))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("event rejected with status: %d", resp.StatusCode)
	}

	return nil
}
