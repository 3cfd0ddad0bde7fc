package present

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"laundry-notifier/pkg/notifier"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingDisplay struct {
	mu        sync.Mutex
	shown     []notifier.Notification
	dismissed []string
	err       error
}

func (d *recordingDisplay) Show(_ context.Context, n notifier.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shown = append(d.shown, n)
	return d.err
}

func (d *recordingDisplay) Dismiss(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dismissed = append(d.dismissed, id)
	return d.err
}

func (d *recordingDisplay) counts() (shown, dismissed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.shown), len(d.dismissed)
}

type countingPlayer struct {
	plays atomic.Int32
	err   error
}

func (p *countingPlayer) Play(_ context.Context, cue string) error {
	if cue != CueNewOrder {
		return errors.New("unexpected cue " + cue)
	}
	p.plays.Add(1)
	return p.err
}

var epoch = time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

func newTestPresenter(t *testing.T) (*Presenter, *recordingDisplay, *countingPlayer, *testclock.Clock) {
	t.Helper()
	display := &recordingDisplay{}
	player := &countingPlayer{}
	clk := testclock.NewClock(epoch)
	p := New(&Config{
		Display:  display,
		Player:   player,
		Clock:    clk,
		Logger:   discardLogger(),
		Duration: 4 * time.Second,
	})
	t.Cleanup(p.Close)
	return p, display, player, clk
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func newOrder(id string) notifier.NewOrder {
	return notifier.NewOrder{Order: notifier.OrderSnapshot{ID: id, Branch: "Main"}}
}

func TestPresentNewOrder(t *testing.T) {
	p, display, player, _ := newTestPresenter(t)

	p.Present(newOrder("O1"))

	visible := p.Visible()
	if len(visible) != 1 {
		t.Fatalf("Visible() = %d notifications, want 1", len(visible))
	}
	n := visible[0]
	if n.Text != "New order O1 at Main" {
		t.Errorf("Text = %q", n.Text)
	}
	if n.Kind != notifier.KindNewOrder || n.DedupeKey != "O1" {
		t.Errorf("Kind/DedupeKey = %s/%s", n.Kind, n.DedupeKey)
	}
	if n.Sticky() {
		t.Error("order toast is sticky")
	}
	if got := n.ExpiresAt.Sub(n.CreatedAt); got != 4*time.Second {
		t.Errorf("toast lifetime = %v, want 4s", got)
	}
	if got := p.Badge(BadgeOrders); got != 1 {
		t.Errorf("Badge(orders) = %d, want 1", got)
	}
	waitFor(t, "audio cue", func() bool { return player.plays.Load() == 1 })
	if shown, _ := display.counts(); shown != 1 {
		t.Errorf("display shows = %d, want 1", shown)
	}
}

func TestDuplicateSuppressed(t *testing.T) {
	p, display, player, clk := newTestPresenter(t)

	p.Present(newOrder("O1"))
	clk.Advance(2 * time.Second)
	p.Present(newOrder("O1"))

	if got := len(p.Visible()); got != 1 {
		t.Errorf("Visible() after duplicate = %d, want 1", got)
	}
	if got := p.Badge(BadgeOrders); got != 1 {
		t.Errorf("Badge(orders) after duplicate = %d, want 1", got)
	}
	// Give a wrongly started second cue a chance to run.
	time.Sleep(20 * time.Millisecond)
	if got := player.plays.Load(); got != 1 {
		t.Errorf("audio cues after duplicate = %d, want 1", got)
	}
	if shown, _ := display.counts(); shown != 1 {
		t.Errorf("display shows after duplicate = %d, want 1", shown)
	}

	// A different order is not a duplicate.
	p.Present(newOrder("O2"))
	if got := len(p.Visible()); got != 2 {
		t.Errorf("Visible() with two orders = %d, want 2", got)
	}

	// Once the first toast is gone the same event shows again.
	clk.Advance(2 * time.Second)
	p.Present(newOrder("O1"))
	if got := p.Badge(BadgeOrders); got != 3 {
		t.Errorf("Badge(orders) = %d, want 3", got)
	}
}

func TestOrderUpdateDedupeIncludesStatus(t *testing.T) {
	p, _, player, _ := newTestPresenter(t)

	p.Present(notifier.OrderUpdate{OrderID: "O1", Status: "washing"})
	p.Present(notifier.OrderUpdate{OrderID: "O1", Status: "washing"})
	p.Present(notifier.OrderUpdate{OrderID: "O1", Status: "ready"})

	visible := p.Visible()
	if len(visible) != 2 {
		t.Fatalf("Visible() = %d, want 2", len(visible))
	}
	if visible[1].Text != "Order O1 status updated to ready" {
		t.Errorf("Text = %q", visible[1].Text)
	}
	if got := p.Badge(BadgeOrders); got != 0 {
		t.Errorf("Badge(orders) = %d, want 0 for updates", got)
	}
	time.Sleep(20 * time.Millisecond)
	if got := player.plays.Load(); got != 0 {
		t.Errorf("audio cues for updates = %d, want 0", got)
	}
}

func TestAutoDismiss(t *testing.T) {
	p, display, _, clk := newTestPresenter(t)

	p.Present(notifier.ProfileUpdate{UserID: "U1"})

	if err := clk.WaitAdvance(4*time.Second-time.Millisecond, time.Second, 1); err != nil {
		t.Fatal(err)
	}
	if got := len(p.Visible()); got != 1 {
		t.Errorf("Visible() before expiry = %d, want 1", got)
	}

	if err := clk.WaitAdvance(time.Millisecond, time.Second, 1); err != nil {
		t.Fatal(err)
	}
	if got := len(p.Visible()); got != 0 {
		t.Errorf("Visible() after expiry = %d, want 0", got)
	}
	waitFor(t, "display dismissal", func() bool {
		_, dismissed := display.counts()
		return dismissed == 1
	})
}

func TestDismissEarly(t *testing.T) {
	p, display, _, clk := newTestPresenter(t)

	p.Present(notifier.FeedbackUpdate{FeedbackID: "F1", Status: "resolved"})
	id := p.Visible()[0].ID

	if !p.Dismiss(id) {
		t.Fatal("Dismiss() = false for a visible notification")
	}
	if p.Dismiss(id) {
		t.Error("second Dismiss() = true")
	}
	if got := len(p.Visible()); got != 0 {
		t.Errorf("Visible() = %d, want 0", got)
	}

	clk.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	if _, dismissed := display.counts(); dismissed != 1 {
		t.Errorf("display dismissals = %d, want 1", dismissed)
	}
}

func TestClearBadge(t *testing.T) {
	p, _, _, _ := newTestPresenter(t)

	p.Present(newOrder("O1"))
	p.Present(newOrder("O2"))
	if got := p.Badges(); got[BadgeOrders] != 2 {
		t.Fatalf("Badges() = %v, want orders:2", got)
	}

	p.ClearBadge(BadgeOrders)
	if got := p.Badge(BadgeOrders); got != 0 {
		t.Errorf("Badge(orders) after clear = %d, want 0", got)
	}
	if got := len(p.Badges()); got != 0 {
		t.Errorf("Badges() after clear = %d entries, want 0", got)
	}
}

func TestBadgeOutlivesToast(t *testing.T) {
	p, _, _, clk := newTestPresenter(t)

	p.Present(newOrder("O1"))
	clk.Advance(time.Hour)

	if got := len(p.Visible()); got != 0 {
		t.Errorf("Visible() = %d, want 0", got)
	}
	if got := p.Badge(BadgeOrders); got != 1 {
		t.Errorf("Badge(orders) = %d, want 1", got)
	}
}

func TestUnavailableShownOnce(t *testing.T) {
	p, display, _, clk := newTestPresenter(t)

	p.Unavailable()
	p.Unavailable()
	clk.Advance(time.Hour)

	visible := p.Visible()
	if len(visible) != 1 {
		t.Fatalf("Visible() = %d, want 1 sticky notice", len(visible))
	}
	n := visible[0]
	if !n.Sticky() || n.Category != notifier.CategoryError || n.Text != UnavailableText {
		t.Errorf("notice = %+v", n)
	}
	if shown, _ := display.counts(); shown != 1 {
		t.Errorf("display shows = %d, want 1", shown)
	}

	p.Dismiss(n.ID)
	p.Unavailable()
	if got := len(p.Visible()); got != 1 {
		t.Errorf("Visible() after dismiss and new give-up = %d, want 1", got)
	}
}

func TestOutputFailuresAreAbsorbed(t *testing.T) {
	display := &recordingDisplay{err: errors.New("display offline")}
	player := &countingPlayer{err: errors.New("no audio device")}
	p := New(&Config{
		Display: display,
		Player:  player,
		Clock:   testclock.NewClock(epoch),
		Logger:  discardLogger(),
	})

	if err := p.Handle(newOrder("O1")); err != nil {
		t.Errorf("Handle() = %v, want nil", err)
	}
	p.Close()

	if got := player.plays.Load(); got != 1 {
		t.Errorf("audio cues = %d, want 1", got)
	}
	if got := len(p.Visible()); got != 1 {
		t.Errorf("Visible() = %d, want 1", got)
	}
}

func TestPresentAfterClose(t *testing.T) {
	p, display, _, _ := newTestPresenter(t)
	p.Close()

	p.Present(newOrder("O1"))
	p.Unavailable()
	if shown, _ := display.counts(); shown != 0 {
		t.Errorf("display shows after Close = %d, want 0", shown)
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		ev   notifier.Event
		want string
	}{
		{
			name: "new order",
			ev:   newOrder("O1"),
			want: "New order O1 at Main",
		},
		{
			name: "new order without branch",
			ev:   notifier.NewOrder{Order: notifier.OrderSnapshot{ID: "O9"}},
			want: "New order O9",
		},
		{
			name: "order update",
			ev:   notifier.OrderUpdate{OrderID: "O1", Status: "ready"},
			want: "Order O1 status updated to ready",
		},
		{
			name: "new feedback with markup",
			ev: notifier.NewFeedback{Feedback: notifier.FeedbackSnapshot{
				ID:       "F1",
				Customer: "Ana",
				Comment:  "<p>Great <b>service</b>!</p><script>alert(1)</script>",
			}},
			want: "New feedback from Ana: Great service!",
		},
		{
			name: "anonymous feedback",
			ev:   notifier.NewFeedback{Feedback: notifier.FeedbackSnapshot{ID: "F2"}},
			want: "New feedback from a customer",
		},
		{
			name: "feedback update",
			ev:   notifier.FeedbackUpdate{FeedbackID: "F1", Status: "resolved"},
			want: "Feedback F1 marked resolved",
		},
		{
			name: "profile update",
			ev:   notifier.ProfileUpdate{UserID: "U1"},
			want: "Profile updated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := render(tt.ev)
			if err != nil {
				t.Fatalf("render() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExcerpt(t *testing.T) {
	long := strings.Repeat("ab ", 60)
	got := excerpt(long, maxCommentRunes)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("excerpt() = %q, want ellipsis", got)
	}
	if n := len([]rune(strings.TrimSuffix(got, "..."))); n > maxCommentRunes {
		t.Errorf("excerpt() kept %d runes, want at most %d", n, maxCommentRunes)
	}
	if got := excerpt("short", maxCommentRunes); got != "short" {
		t.Errorf("excerpt(short) = %q", got)
	}
}
