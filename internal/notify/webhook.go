package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/moven0831/proofqueue/internal/domain"
	"github.com/moven0831/proofqueue/pkg/retry"
)

// WebhookNotifier POSTs summaries to an HTTP endpoint. Delivery is retried a
// few times with backoff; the retries are internal to delivery and never
// touch task state.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a notifier for the given endpoint URL.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookBody struct {
	Kind    string `json:"kind"` // "task" | "batch"
	Summary string `json:"summary"`
	Detail  any    `json:"detail"`
}

func (n *WebhookNotifier) NotifyTask(ctx context.Context, task domain.Task, result domain.Result) error {
	return n.post(ctx, webhookBody{
		Kind:    "task",
		Summary: FormatTask(task, result),
		Detail:  result,
	})
}

func (n *WebhookNotifier) NotifyBatch(ctx context.Context, batch BatchSummary) error {
	return n.post(ctx, webhookBody{
		Kind:    "batch",
		Summary: FormatBatch(batch),
		Detail:  batch,
	})
}

func (n *WebhookNotifier) post(ctx context.Context, body webhookBody) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	return retry.Do(ctx, retry.Config{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
	}, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build notification request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return fmt.Errorf("notify %s: %w", n.url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("notify %s: status %d", n.url, resp.StatusCode)
		}
		return nil
	})
}
