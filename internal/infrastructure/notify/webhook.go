// Package notify delivers engagement notifications to parties.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/notification"
)

// WebhookConfig routes notifications by recipient. A recipient without a URL
// falls back to DefaultURL; if both are empty the notification is dropped.
type WebhookConfig struct {
	DefaultURL string
	URLs       map[notification.Recipient]string
	Headers    map[string]string
	Timeout    time.Duration
}

// WebhookDispatcher POSTs notifications as JSON.
type WebhookDispatcher struct {
	cfg    WebhookConfig
	client *http.Client
	logger zerolog.Logger
}

func NewWebhookDispatcher(cfg WebhookConfig, logger zerolog.Logger) *WebhookDispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WebhookDispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("service", "webhook").Logger(),
	}
}

func (d *WebhookDispatcher) url(r notification.Recipient) string {
	if u, ok := d.cfg.URLs[r]; ok && u != "" {
		return u
	}
	return d.cfg.DefaultURL
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, n *notification.Notification) error {
	target := d.url(n.Recipient)
	if target == "" {
		d.logger.Debug().Str("dedupe_key", n.DedupeKey).Msg("no webhook configured for recipient")
		return nil
	}

	body := map[string]interface{}{
		"notification_id": n.NotificationID.String(),
		"engagement_id":   n.EngagementID.String(),
		"sequence":        n.Sequence,
		"dedupe_key":      n.DedupeKey,
		"recipient":       string(n.Recipient),
		"priority":        string(n.Priority),
		"topic":           n.Topic,
		"created_at":      n.CreatedAt.Format(time.RFC3339),
	}
	if n.RecipientID != nil {
		body["recipient_id"] = *n.RecipientID
	}
	if len(n.Payload) > 0 {
		body["payload"] = n.Payload
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: marshal webhook payload: %v", notification.ErrPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: create webhook request: %v", notification.ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Engagement-Lifecycle-Notification/1.0")
	req.Header.Set("X-Notification-ID", n.NotificationID.String())
	req.Header.Set("Idempotency-Key", n.DedupeKey)
	for k, v := range d.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	d.logger.Debug().
		Str("dedupe_key", n.DedupeKey).
		Str("webhook_url", target).
		Int("status_code", resp.StatusCode).
		Msg("webhook delivery attempted")

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return fmt.Errorf("%w: webhook rejected with status %d: %s", notification.ErrPermanent, resp.StatusCode, string(respBody))
	default:
		return fmt.Errorf("webhook failed with status %d: %s", resp.StatusCode, string(respBody))
	}
}
