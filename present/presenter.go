// Package present turns routed events into toasts, audio cues and view badges.
package present

import (
	"cmp"
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"laundry-notifier/metrics"
	"laundry-notifier/pkg/notifier"
)

// DefaultDuration is how long a toast stays visible.
const DefaultDuration = 4 * time.Second

// BadgeOrders is the badge raised on the orders view by NEW_ORDER.
const BadgeOrders = "orders"

const unavailableKey = "connection/unavailable"

// Config holds presenter configuration.
type Config struct {
	Display  Display
	Player   Player      // Defaults to NopPlayer
	Clock    clock.Clock // Defaults to clock.WallClock
	Logger   *slog.Logger
	Duration time.Duration
}

// Presenter shows notifications. It never blocks its caller on output and
// never returns display or audio failures.
type Presenter struct {
	display  Display
	player   Player
	clock    clock.Clock
	logger   *slog.Logger
	duration time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	audio  sync.WaitGroup

	mu     sync.Mutex
	active map[string]notifier.Notification
	timers map[string]clock.Timer
	badges map[string]int
	closed bool
}

// New creates a presenter.
func New(cfg *Config) *Presenter {
	p := &Presenter{
		display:  cfg.Display,
		player:   cfg.Player,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		duration: cfg.Duration,
		active:   make(map[string]notifier.Notification),
		timers:   make(map[string]clock.Timer),
		badges:   make(map[string]int),
	}
	if p.player == nil {
		p.player = NopPlayer{}
	}
	if p.clock == nil {
		p.clock = clock.WallClock
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.duration <= 0 {
		p.duration = DefaultDuration
	}
	if p.display == nil {
		p.display = NewLogDisplay(p.logger)
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p
}

// Handle adapts the presenter to a router handler.
func (p *Presenter) Handle(ev notifier.Event) error {
	p.Present(ev)
	return nil
}

// Present shows the notification for ev. While a notification with the same
// kind and dedupe key is visible, ev is dropped together with its sound and
// badge.
func (p *Presenter) Present(ev notifier.Event) {
	kind := ev.Kind()
	key := ev.DedupeKey()

	text, err := render(ev)
	if err != nil {
		p.logger.Warn("Failed to render notification", "kind", kind, "error", err)
		text = string(kind)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	now := p.clock.Now()
	p.prune(now)
	if p.visibleLocked(kind, key) {
		p.mu.Unlock()
		metrics.Notifications.WithLabelValues(string(kind), "suppressed").Inc()
		p.logger.Debug("Duplicate notification suppressed", "kind", kind, "dedupe_key", key)
		return
	}

	n := notifier.Notification{
		CreatedAt: now,
		ExpiresAt: now.Add(p.duration),
		ID:        uuid.NewString(),
		Kind:      kind,
		Text:      text,
		Category:  categories[kind],
		DedupeKey: key,
		Duration:  p.duration,
	}
	p.active[n.ID] = n
	id := n.ID
	p.timers[id] = p.clock.AfterFunc(p.duration, func() { p.expire(id) })

	cue := ""
	if kind == notifier.KindNewOrder {
		p.badges[BadgeOrders]++
		cue = CueNewOrder
		p.audio.Add(1)
	}
	p.mu.Unlock()

	metrics.Notifications.WithLabelValues(string(kind), "shown").Inc()
	p.show(n)
	if cue != "" {
		go p.play(cue)
	}
}

// Unavailable shows the sticky "real-time updates unavailable" notice. It is
// shown at most once while a previous notice is still visible.
func (p *Presenter) Unavailable() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	now := p.clock.Now()
	p.prune(now)
	if p.visibleLocked("", unavailableKey) {
		p.mu.Unlock()
		return
	}
	n := notifier.Notification{
		CreatedAt: now,
		ID:        uuid.NewString(),
		Text:      UnavailableText,
		Category:  notifier.CategoryError,
		DedupeKey: unavailableKey,
	}
	p.active[n.ID] = n
	p.mu.Unlock()

	metrics.Notifications.WithLabelValues("unavailable", "shown").Inc()
	p.show(n)
}

// Dismiss removes a notification before it expires. It reports whether the
// notification was visible.
func (p *Presenter) Dismiss(id string) bool {
	p.mu.Lock()
	p.prune(p.clock.Now())
	_, ok := p.active[id]
	if ok {
		delete(p.active, id)
		p.stopTimer(id)
	}
	p.mu.Unlock()

	if ok {
		p.hide(id)
	}
	return ok
}

// Visible returns the notifications currently on screen, oldest first.
func (p *Presenter) Visible() []notifier.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prune(p.clock.Now())
	out := slices.Collect(maps.Values(p.active))
	slices.SortFunc(out, func(a, b notifier.Notification) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return out
}

// Badge returns the pending count for a view.
func (p *Presenter) Badge(view string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.badges[view]
}

// Badges returns every non-zero badge.
func (p *Presenter) Badges() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.badges)
}

// ClearBadge resets a view's badge once the user opens it.
func (p *Presenter) ClearBadge(view string) {
	p.mu.Lock()
	n := p.badges[view]
	delete(p.badges, view)
	p.mu.Unlock()
	if n > 0 {
		p.logger.Debug("Badge cleared", "view", view, "count", n)
	}
}

// Close stops pending dismiss timers and waits for audio cues in flight.
func (p *Presenter) Close() {
	p.mu.Lock()
	p.closed = true
	for id := range p.timers {
		p.stopTimer(id)
	}
	p.mu.Unlock()
	p.cancel()
	p.audio.Wait()
}

func (p *Presenter) expire(id string) {
	p.mu.Lock()
	if _, pending := p.timers[id]; !pending {
		// Dismissed or closed already.
		p.mu.Unlock()
		return
	}
	if n, ok := p.active[id]; ok && p.clock.Now().Before(n.ExpiresAt) {
		p.mu.Unlock()
		return
	}
	delete(p.active, id)
	delete(p.timers, id)
	p.mu.Unlock()

	p.hide(id)
}

// prune drops expired notifications. Must be called with p.mu held.
func (p *Presenter) prune(now time.Time) {
	for id, n := range p.active {
		if !n.Sticky() && !now.Before(n.ExpiresAt) {
			delete(p.active, id)
		}
	}
}

func (p *Presenter) visibleLocked(kind notifier.Kind, key string) bool {
	for _, n := range p.active {
		if n.Kind == kind && n.DedupeKey == key {
			return true
		}
	}
	return false
}

// stopTimer must be called with p.mu held.
func (p *Presenter) stopTimer(id string) {
	if t, ok := p.timers[id]; ok {
		t.Stop()
		delete(p.timers, id)
	}
}

func (p *Presenter) show(n notifier.Notification) {
	if err := p.display.Show(p.ctx, n); err != nil {
		p.logger.Warn("Failed to show notification", "id", n.ID, "kind", n.Kind, "error", err)
	}
}

func (p *Presenter) hide(id string) {
	if err := p.display.Dismiss(p.ctx, id); err != nil {
		p.logger.Warn("Failed to dismiss notification", "id", id, "error", err)
	}
}

func (p *Presenter) play(cue string) {
	defer p.audio.Done()
	if err := p.player.Play(p.ctx, cue); err != nil {
		p.logger.Warn("Audio cue failed", "cue", cue, "error", err)
	}
}
