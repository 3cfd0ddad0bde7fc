// Package metrics holds the prometheus collectors for the notification layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Frames counts inbound frames by decode result (dispatched, malformed, unknown, invalid).
	Frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_frames_total",
			Help: "Frames received on the notification transport, by decode result",
		},
		[]string{"result"},
	)

	// HandlerFailures counts subscription handlers that returned an error or panicked.
	HandlerFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifier_handler_failures_total",
			Help: "Subscription handlers that failed while handling an event",
		},
	)

	// ReconnectAttempts counts scheduled reconnects after a drop.
	ReconnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifier_reconnect_attempts_total",
			Help: "Reconnect attempts scheduled after a dropped or failed connection",
		},
	)

	// GiveUps counts how often the retry ceiling was exhausted.
	GiveUps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifier_giveups_total",
			Help: "Times automatic reconnection gave up after the retry ceiling",
		},
	)

	// ConnectionState is 1 for the current connection state and 0 for the others.
	ConnectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notifier_connection_state",
			Help: "Current state of the shared notification connection",
		},
		[]string{"state"},
	)

	// Invalidations counts stale markers placed, by query name family.
	Invalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_invalidations_total",
			Help: "Stale-query markers placed by the invalidation bridge",
		},
		[]string{"query"},
	)

	// Refetches counts query refetches by outcome.
	Refetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_refetches_total",
			Help: "Query refetches performed on read, by outcome",
		},
		[]string{"outcome"},
	)

	// Notifications counts presented notifications by kind and outcome (shown, suppressed).
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_notifications_total",
			Help: "Notifications handled by the presenter, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		Frames,
		HandlerFailures,
		ReconnectAttempts,
		GiveUps,
		ConnectionState,
		Invalidations,
		Refetches,
		Notifications,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
