package present

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"laundry-notifier/pkg/notifier"
)

// ErrQueueFull is returned when the webhook queue cannot take another update.
var ErrQueueFull = errors.New("webhook queue full")

const defaultQueueSize = 64

// webhookUpdate is the JSON body posted for every show or dismiss.
type webhookUpdate struct {
	Notification *notifier.Notification `json:"notification,omitempty"`
	Action       string                 `json:"action"`
	ID           string                 `json:"id"`
}

// WebhookDisplay forwards notifications to an operator-configured URL. Show
// and Dismiss only enqueue; Run delivers in order with retries.
type WebhookDisplay struct {
	client *http.Client
	logger *slog.Logger
	queue  chan webhookUpdate
	url    string
}

// NewWebhookDisplay creates a webhook display. Updates are dropped once
// queueSize of them are waiting.
func NewWebhookDisplay(url string, queueSize int, logger *slog.Logger) *WebhookDisplay {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &WebhookDisplay{
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
		queue:  make(chan webhookUpdate, queueSize),
		url:    url,
	}
}

// Show enqueues a show update.
func (w *WebhookDisplay) Show(_ context.Context, n notifier.Notification) error {
	return w.enqueue(webhookUpdate{Action: "show", ID: n.ID, Notification: &n})
}

// Dismiss enqueues a dismiss update.
func (w *WebhookDisplay) Dismiss(_ context.Context, id string) error {
	return w.enqueue(webhookUpdate{Action: "dismiss", ID: id})
}

func (w *WebhookDisplay) enqueue(u webhookUpdate) error {
	select {
	case w.queue <- u:
		return nil
	default:
		w.logger.Warn("Webhook queue full, dropping update", "action", u.Action, "id", u.ID)
		return ErrQueueFull
	}
}

// Run delivers queued updates until ctx is cancelled.
func (w *WebhookDisplay) Run(ctx context.Context) {
	w.logger.Info("Webhook display started", "url", w.url)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Webhook display stopped", "pending", len(w.queue))
			return
		case u := <-w.queue:
			if err := w.post(ctx, u); err != nil {
				w.logger.Error("Webhook delivery failed", "action", u.Action, "id", u.ID, "error", err)
			}
		}
	}
}

func (w *WebhookDisplay) post(ctx context.Context, u webhookUpdate) error {
	body, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}

	return retry.Do(
		func() error {
			start := time.Now()
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := w.client.Do(req)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					w.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return retry.Unrecoverable(fmt.Errorf("HTTP %d", resp.StatusCode))
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			w.logger.Debug("Webhook update delivered",
				"action", u.Action,
				"id", u.ID,
				"duration_ms", time.Since(start).Milliseconds())
			return nil
		},
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.MaxJitter(200*time.Millisecond),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			w.logger.Warn("Webhook delivery failed, will retry", "attempt", n+1, "id", u.ID, "error", err)
		}),
	)
}
