package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// WebhookNotifier delivers escalation requests as JSON POSTs to an
// on-call provider endpoint.
type WebhookNotifier struct {
	url    string
	token  string
	client *http.Client
	logger logrus.FieldLogger
}

// NewWebhookNotifier creates a webhook-backed notifier. The token is
// optional and sent as a bearer credential when set.
func NewWebhookNotifier(url, token string, logger logrus.FieldLogger) *WebhookNotifier {
	return &WebhookNotifier{
		url:   url,
		token: token,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Notify implements NotifierPort.
func (n *WebhookNotifier) Notify(ctx context.Context, escalation Request) error {
	payload, err := json.Marshal(escalation)
	if err != nil {
		return fmt.Errorf("failed to marshal escalation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send escalation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("on-call transport returned status %d", resp.StatusCode)
	}

	n.logger.WithField("incident_id", escalation.IncidentID).Debug("escalation delivered")
	return nil
}
