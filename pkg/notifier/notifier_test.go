package notifier

import (
	"testing"
	"time"
)

func TestKindKnown(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindNewOrder, true},
		{KindOrderUpdate, true},
		{KindNewFeedback, true},
		{KindFeedbackUpdate, true},
		{KindProfileUpdate, true},
		{"UNRECOGNIZED", false},
		{"new_order", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Known(); got != tt.want {
				t.Errorf("Kind(%q).Known() = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}

	for _, k := range Kinds {
		if !k.Known() {
			t.Errorf("Kinds contains unknown kind %q", k)
		}
	}
}

func TestDedupeKey(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		kind  Kind
		want  string
	}{
		{"new order", NewOrder{Order: OrderSnapshot{ID: "O1", Branch: "Main"}}, KindNewOrder, "O1"},
		{"order update", OrderUpdate{OrderID: "O1", Status: "ready"}, KindOrderUpdate, "O1/ready"},
		{"new feedback", NewFeedback{Feedback: FeedbackSnapshot{ID: "F9"}}, KindNewFeedback, "F9"},
		{"feedback update", FeedbackUpdate{FeedbackID: "F9", Status: "resolved"}, KindFeedbackUpdate, "F9/resolved"},
		{"profile update", ProfileUpdate{UserID: "U3"}, KindProfileUpdate, "U3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.Kind(); got != tt.kind {
				t.Errorf("Kind() = %v, want %v", got, tt.kind)
			}
			if got := tt.event.DedupeKey(); got != tt.want {
				t.Errorf("DedupeKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOrderUpdateKeysDifferByStatus(t *testing.T) {
	a := OrderUpdate{OrderID: "O1", Status: "washing"}
	b := OrderUpdate{OrderID: "O1", Status: "ready"}
	if a.DedupeKey() == b.DedupeKey() {
		t.Errorf("status changes share dedupe key %q", a.DedupeKey())
	}
}

func TestNotificationSticky(t *testing.T) {
	n := Notification{Text: "Real-time updates unavailable"}
	if !n.Sticky() {
		t.Error("notification without expiry should be sticky")
	}
	n.ExpiresAt = time.Now().Add(4 * time.Second)
	if n.Sticky() {
		t.Error("notification with expiry should not be sticky")
	}
}
