// Package notifier contains the core domain types for the laundry notification layer.
package notifier

import "time"

// Kind discriminates the meaning of an inbound event.
type Kind string

// Known event kinds pushed by the notification endpoint.
const (
	KindNewOrder       Kind = "NEW_ORDER"
	KindOrderUpdate    Kind = "ORDER_UPDATE"
	KindNewFeedback    Kind = "NEW_FEEDBACK"
	KindFeedbackUpdate Kind = "FEEDBACK_UPDATE"
	KindProfileUpdate  Kind = "PROFILE_UPDATE"
)

// Kinds lists every known kind in a stable order.
var Kinds = []Kind{
	KindNewOrder,
	KindOrderUpdate,
	KindNewFeedback,
	KindFeedbackUpdate,
	KindProfileUpdate,
}

// Known reports whether k is one of the enumerated kinds.
func (k Kind) Known() bool {
	switch k {
	case KindNewOrder, KindOrderUpdate, KindNewFeedback, KindFeedbackUpdate, KindProfileUpdate:
		return true
	}
	return false
}

// Event is a decoded inbound event. The concrete type is one of NewOrder,
// OrderUpdate, NewFeedback, FeedbackUpdate or ProfileUpdate.
type Event interface {
	Kind() Kind
	// DedupeKey identifies semantically identical events of the same kind.
	DedupeKey() string
	event()
}

// OrderSnapshot is the order state carried by a NEW_ORDER event.
type OrderSnapshot struct {
	CreatedAt time.Time `json:"createdAt,omitempty"`
	ID        string    `json:"id"`
	Branch    string    `json:"branch"`
	Customer  string    `json:"customer,omitempty"`
	Status    string    `json:"status,omitempty"`
	Total     float64   `json:"total,omitempty"`
}

// FeedbackSnapshot is the feedback state carried by a NEW_FEEDBACK event.
type FeedbackSnapshot struct {
	ID       string `json:"id"`
	Customer string `json:"customer,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Comment  string `json:"comment,omitempty"` // May contain markup
	Rating   int    `json:"rating,omitempty"`
}

// NewOrder announces an order that was just placed.
type NewOrder struct {
	Order OrderSnapshot
}

// OrderUpdate announces a status change on an existing order.
type OrderUpdate struct {
	OrderID string
	Status  string
}

// NewFeedback announces a customer feedback submission.
type NewFeedback struct {
	Feedback FeedbackSnapshot
}

// FeedbackUpdate announces a status change on existing feedback.
type FeedbackUpdate struct {
	FeedbackID string
	Status     string
}

// ProfileUpdate announces that a user's profile changed.
type ProfileUpdate struct {
	UserID string
}

func (NewOrder) Kind() Kind       { return KindNewOrder }
func (OrderUpdate) Kind() Kind    { return KindOrderUpdate }
func (NewFeedback) Kind() Kind    { return KindNewFeedback }
func (FeedbackUpdate) Kind() Kind { return KindFeedbackUpdate }
func (ProfileUpdate) Kind() Kind  { return KindProfileUpdate }

func (e NewOrder) DedupeKey() string       { return e.Order.ID }
func (e OrderUpdate) DedupeKey() string    { return e.OrderID + "/" + e.Status }
func (e NewFeedback) DedupeKey() string    { return e.Feedback.ID }
func (e FeedbackUpdate) DedupeKey() string { return e.FeedbackID + "/" + e.Status }
func (e ProfileUpdate) DedupeKey() string  { return e.UserID }

func (NewOrder) event()       {}
func (OrderUpdate) event()    {}
func (NewFeedback) event()    {}
func (FeedbackUpdate) event() {}
func (ProfileUpdate) event()  {}
