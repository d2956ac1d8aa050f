package remediate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Trigger asks the automation layer to restart a bridge. Implementations
// must be idempotent per request id.
type Trigger interface {
	Fire(ctx context.Context, targetID, reason string) error
}

// TriggerError reports a rejected or failed trigger invocation.
type TriggerError struct {
	Target string
	Status int // HTTP status, 0 on transport errors
	Err    error
}

func (e *TriggerError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("trigger rejected for %s: http %d", e.Target, e.Status)
	}
	return fmt.Sprintf("trigger failed for %s: %v", e.Target, e.Err)
}

func (e *TriggerError) Unwrap() error { return e.Err }

// HTTPTrigger posts restart requests to an automation webhook.
type HTTPTrigger struct {
	url       string
	action    string
	authToken string
	client    *http.Client
}

// NewHTTPTrigger creates an HTTP automation trigger.
func NewHTTPTrigger(url, action, authToken string) *HTTPTrigger {
	if action == "" {
		action = "restart-bridge"
	}
	return &HTTPTrigger{
		url:       url,
		action:    action,
		authToken: authToken,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

type triggerRequest struct {
	Action      string `json:"action"`
	Target      string `json:"target"`
	Reason      string `json:"reason"`
	RequestID   string `json:"request_id"`
	RequestedAt string `json:"requested_at"`
}

// Fire posts the restart request. Any 2xx means the automation accepted it.
func (t *HTTPTrigger) Fire(ctx context.Context, targetID, reason string) error {
	payload := triggerRequest{
		Action:      t.action,
		Target:      targetID,
		Reason:      reason,
		RequestID:   uuid.New().String(),
		RequestedAt: time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return &TriggerError{Target: targetID, Err: fmt.Errorf("marshal trigger request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return &TriggerError{Target: targetID, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if t.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+t.authToken)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return &TriggerError{Target: targetID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TriggerError{Target: targetID, Status: resp.StatusCode}
	}
	return nil
}
