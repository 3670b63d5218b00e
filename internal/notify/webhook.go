package notify

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/pkg/httputil"
)

// WebhookNotifier posts messages as JSON to an HTTP endpoint
type WebhookNotifier struct {
	client *httputil.Client
	url    string
}

// NewWebhookNotifier creates a webhook notifier
func NewWebhookNotifier(client *httputil.Client, url string) *WebhookNotifier {
	return &WebhookNotifier{client: client, url: url}
}

// Notify implements contracts.Notifier
func (w *WebhookNotifier) Notify(ctx context.Context, userID string, task *contracts.AnalysisTask) error {
	return w.Send(ctx, TaskMessage(userID, task))
}

// Send posts msg; any non-2xx status is an error
func (w *WebhookNotifier) Send(ctx context.Context, msg Message) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}

	resp, err := w.client.PostJSON(ctx, w.url, msg)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook post: %w", &httputil.StatusError{URL: w.url, StatusCode: resp.StatusCode})
	}
	return nil
}
