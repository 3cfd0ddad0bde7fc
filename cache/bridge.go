package cache

import (
	"log/slog"
	"strings"

	"laundry-notifier/metrics"
	"laundry-notifier/pkg/notifier"
)

// Query names understood by the data-fetching layer.
const (
	QueryOrders       = "orders"
	QueryRecentOrders = "recentOrders"
	QueryFeedback     = "feedback"
	QueryProfile      = "profile"

	orderDetailPrefix    = "order:"
	feedbackDetailPrefix = "feedback:"
)

// OrderDetail names the detail query of one order.
func OrderDetail(id string) string { return orderDetailPrefix + id }

// FeedbackDetail names the detail query of one feedback entry.
func FeedbackDetail(id string) string { return feedbackDetailPrefix + id }

// Bridge translates events into stale markers. It never fetches.
type Bridge struct {
	inv    Invalidator
	logger *slog.Logger
}

// NewBridge creates a bridge that marks queries stale on inv.
func NewBridge(inv Invalidator, logger *slog.Logger) *Bridge {
	return &Bridge{inv: inv, logger: logger}
}

// Queries returns the query names an event invalidates.
func Queries(ev notifier.Event) []string {
	switch e := ev.(type) {
	case notifier.NewOrder:
		return []string{QueryOrders, QueryRecentOrders}
	case notifier.OrderUpdate:
		return []string{QueryOrders, QueryRecentOrders, OrderDetail(e.OrderID)}
	case notifier.NewFeedback:
		return []string{QueryFeedback}
	case notifier.FeedbackUpdate:
		return []string{QueryFeedback, FeedbackDetail(e.FeedbackID)}
	case notifier.ProfileUpdate:
		return []string{QueryProfile}
	}
	return nil
}

// Invalidate marks every query affected by ev as stale.
func (b *Bridge) Invalidate(ev notifier.Event) {
	names := Queries(ev)
	for _, name := range names {
		b.inv.MarkStale(name)
		metrics.Invalidations.WithLabelValues(family(name)).Inc()
	}
	b.logger.Debug("Queries marked stale", "kind", ev.Kind(), "queries", names)
}

// Handle adapts the bridge to a router handler.
func (b *Bridge) Handle(ev notifier.Event) error {
	b.Invalidate(ev)
	return nil
}

// family strips the id from detail query names to keep metric cardinality bounded.
func family(name string) string {
	if prefix, _, ok := strings.Cut(name, ":"); ok {
		return prefix + ":*"
	}
	return name
}
