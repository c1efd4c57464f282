// Package notify fans escalations out to humans. Only Slack incoming
// webhooks for now; the Notifier interface keeps the ingest path from
// caring.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Notifier delivers one escalation notice. Implementations must be safe for
// concurrent use.
type Notifier interface {
	NotifyEscalation(ctx context.Context, from, reason string) error
}

// Noop is the disabled notifier.
type Noop struct{}

// NotifyEscalation implements Notifier.
func (Noop) NotifyEscalation(ctx context.Context, from, reason string) error { return nil }

// Slack posts escalation notices to a Slack incoming webhook.
type Slack struct {
	webhookURL string
	client     *http.Client
}

// NewSlack builds a Slack notifier for the given incoming-webhook URL.
func NewSlack(webhookURL string) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
	}
}

// SetHTTPClient overrides the HTTP client, for tests.
func (s *Slack) SetHTTPClient(c *http.Client) { s.client = c }

type slackPayload struct {
	Text string `json:"text"`
}

// NotifyEscalation implements Notifier. Failures are returned, not fatal:
// the request is already routed to review regardless of whether the notice
// lands.
func (s *Slack) NotifyEscalation(ctx context.Context, from, reason string) error {
	payload := slackPayload{
		Text: fmt.Sprintf(":rotating_light: Escalation: request from %s needs human review — %s", from, reason),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting slack notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}

	log.Debug().Str("from", from).Msg("slack_escalation_sent")
	return nil
}
