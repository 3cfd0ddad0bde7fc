// Package router decodes inbound notification frames and fans them out to subscribers.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"laundry-notifier/metrics"
	"laundry-notifier/pkg/notifier"
)

// Handler consumes one decoded event.
type Handler func(ev notifier.Event) error

// Predicate selects the kinds a subscription is interested in.
type Predicate func(k notifier.Kind) bool

// AnyKind matches every known kind.
func AnyKind(notifier.Kind) bool { return true }

// Kinds matches exactly the given kinds.
func Kinds(kinds ...notifier.Kind) Predicate {
	return func(k notifier.Kind) bool {
		return slices.Contains(kinds, k)
	}
}

type subscription struct {
	id      uint64
	name    string
	match   Predicate
	handler Handler
}

// Router dispatches events to subscriptions in registration order.
type Router struct {
	logger *slog.Logger
	subs   []*subscription
	mu     sync.RWMutex
	nextID uint64
}

// New creates a router with no subscriptions.
func New(logger *slog.Logger) *Router {
	return &Router{logger: logger}
}

// Subscribe registers h for events whose kind satisfies match. The returned
// function removes the subscription; calling it more than once is harmless.
func (r *Router) Subscribe(name string, match Predicate, h Handler) (unsubscribe func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, &subscription{id: id, name: name, match: match, handler: h})
	count := len(r.subs)
	r.mu.Unlock()

	r.logger.Debug("Subscription registered", "subscriber", name, "subscriptions", count)

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.subs = slices.DeleteFunc(r.subs, func(s *subscription) bool { return s.id == id })
			count := len(r.subs)
			r.mu.Unlock()
			r.logger.Debug("Subscription removed", "subscriber", name, "subscriptions", count)
		})
	}
}

// Len returns the number of active subscriptions.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// OnFrame decodes raw and dispatches it. Frames that cannot be decoded are
// logged and dropped; nothing is reported to the caller.
func (r *Router) OnFrame(raw []byte) {
	ev, err := Decode(raw)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownKind):
			metrics.Frames.WithLabelValues("unknown").Inc()
			r.logger.Debug("Ignoring frame with unknown kind", "error", err)
		case errors.Is(err, ErrMalformed):
			metrics.Frames.WithLabelValues("malformed").Inc()
			r.logger.Warn("Dropping malformed frame", "bytes", len(raw), "error", err)
		default:
			metrics.Frames.WithLabelValues("invalid").Inc()
			r.logger.Warn("Dropping frame with invalid payload", "error", err)
		}
		return
	}

	metrics.Frames.WithLabelValues("dispatched").Inc()
	r.Dispatch(ev)
}

// Dispatch runs every matching handler synchronously and returns how many ran.
// A failing handler never prevents the remaining ones from running.
func (r *Router) Dispatch(ev notifier.Event) int {
	r.mu.RLock()
	subs := slices.Clone(r.subs)
	r.mu.RUnlock()

	invoked := 0
	for _, s := range subs {
		if !s.match(ev.Kind()) {
			continue
		}
		invoked++
		if err := r.invoke(s, ev); err != nil {
			metrics.HandlerFailures.Inc()
			r.logger.Warn("Subscription handler failed",
				"subscriber", s.name,
				"kind", ev.Kind(),
				"dedupe_key", ev.DedupeKey(),
				"error", err)
		}
	}

	r.logger.Debug("Event dispatched", "kind", ev.Kind(), "handlers", invoked)
	return invoked
}

func (r *Router) invoke(s *subscription, ev notifier.Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return s.handler(ev)
}
