// Package notification delivers membership events to external receivers.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gatherhq/api/pkg/domain/notification"
)

// WebhookNotifier posts outbox events as JSON to a configured URL.
type WebhookNotifier struct {
	webhookURL string
	httpClient *http.Client
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(webhookURL string, timeout time.Duration) (*WebhookNotifier, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &WebhookNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// WebhookPayload is the JSON body sent to the webhook.
type WebhookPayload struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	SpaceID   string         `json:"space_id"`
	ActorID   string         `json:"actor_id,omitempty"`
	SubjectID string         `json:"subject_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp string         `json:"timestamp"`
	Source    string         `json:"source"`
}

// Notify sends a single outbox event. A non-2xx response is an error so the
// dispatcher retries the entry.
func (n *WebhookNotifier) Notify(ctx context.Context, event *notification.Outbox) error {
	payload := WebhookPayload{
		EventID:   event.ID().String(),
		EventType: event.EventType(),
		SpaceID:   event.SpaceID().String(),
		Payload:   event.Payload(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Source:    "gather-api",
	}
	if actor := event.ActorID(); actor != nil {
		payload.ActorID = actor.String()
	}
	if subject := event.SubjectID(); subject != nil {
		payload.SubjectID = subject.String()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "gather-api/1.0")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
