package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/freewebtopdf/filesentry/internal/domain"
)

// DefaultWebhookTimeout bounds a single webhook delivery
const DefaultWebhookTimeout = 10 * time.Second

// WebhookPayload is the JSON body posted for every match
type WebhookPayload struct {
	Source string           `json:"source"`
	Match  domain.RuleMatch `json:"match"`
	SentAt int64            `json:"sentAt"`
}

// WebhookNotifier posts matches as JSON to a URL
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

// NewWebhookNotifier creates a webhook notifier. A zero timeout uses DefaultWebhookTimeout.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name returns the notifier name
func (n *WebhookNotifier) Name() string { return "webhook" }

// Notify posts the match. Any non-2xx response is an error.
func (n *WebhookNotifier) Notify(ctx context.Context, match domain.RuleMatch) error {
	body, err := json.Marshal(WebhookPayload{Source: "filesentry", Match: match, SentAt: domain.NowMillis()})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "filesentry")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
