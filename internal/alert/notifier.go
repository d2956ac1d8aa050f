package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ledgerops/bridgewatch/internal/core/domain"
)

// WebhookNotifier posts alerts to an operator webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookNotifier creates a webhook notifier. Pass nil logger to use the
// default logger.
func NewWebhookNotifier(url string, logger *slog.Logger) *WebhookNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

type webhookPayload struct {
	Target              string `json:"target"`
	Severity            string `json:"severity"`
	State               string `json:"state"`
	Message             string `json:"message"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	EmittedAt           string `json:"emitted_at"`
	AlertID             string `json:"alert_id"`
	Source              string `json:"source"`
}

// Notify posts the alert, retrying briefly on transport errors and 5xx.
func (n *WebhookNotifier) Notify(ctx context.Context, a *domain.Alert) error {
	payload := webhookPayload{
		Target:              a.TargetID,
		Severity:            string(a.Severity),
		State:               string(a.State),
		Message:             a.Message,
		ConsecutiveFailures: a.ConsecutiveFailures,
		EmittedAt:           a.EmittedAt.UTC().Format(time.RFC3339),
		AlertID:             a.ID,
		Source:              "bridgewatch",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("post webhook: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("webhook returned %d", resp.StatusCode))
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned %d", resp.StatusCode)
		}
		return nil
	})
}
