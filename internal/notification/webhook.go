package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"papertrader/internal/model"
)

// WebhookNotifier POSTs alerts as JSON to ALERT_WEBHOOK_URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a notifier for url with a 10s request timeout.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

type webhookPayload struct {
	Service string             `json:"service"`
	Level   AlertLevel         `json:"level"`
	Title   string             `json:"title"`
	Message string             `json:"message"`
	Trade   *model.TradeRecord `json:"trade,omitempty"`
	SentAt  time.Time          `json:"sent_at"`
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookPayload{
		Service: "papertrader",
		Level:   alert.Level,
		Title:   alert.Title,
		Message: alert.Message,
		Trade:   alert.Trade,
		SentAt:  w.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %s: %w", alert.Title, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook: %s: status %d", alert.Title, resp.StatusCode)
	}
	return nil
}
