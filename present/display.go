package present

import (
	"context"
	"log/slog"

	"laundry-notifier/pkg/notifier"
)

// Display renders notifications somewhere a user can see them.
type Display interface {
	Show(ctx context.Context, n notifier.Notification) error
	Dismiss(ctx context.Context, id string) error
}

// LogDisplay writes notifications to the log for local development.
type LogDisplay struct {
	logger *slog.Logger
}

// NewLogDisplay creates a display that logs instead of rendering.
func NewLogDisplay(logger *slog.Logger) *LogDisplay {
	return &LogDisplay{
		logger: logger,
	}
}

// Show logs the notification.
func (d *LogDisplay) Show(_ context.Context, n notifier.Notification) error {
	d.logger.Info("NOTIFICATION",
		"id", n.ID,
		"kind", n.Kind,
		"category", n.Category,
		"text", n.Text,
		"sticky", n.Sticky())
	return nil
}

// Dismiss logs the dismissal.
func (d *LogDisplay) Dismiss(_ context.Context, id string) error {
	d.logger.Info("NOTIFICATION DISMISSED", "id", id)
	return nil
}
