package notifier

import (
	"encoding/json"
	"time"
)

// Category controls how a notification is styled.
type Category string

// Notification categories.
const (
	CategoryInfo    Category = "info"
	CategorySuccess Category = "success"
	CategoryError   Category = "error"
)

// Notification is an ephemeral user-visible message. It is never persisted.
type Notification struct {
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at,omitzero"` // Zero means it stays until dismissed
	ID        string        `json:"id"`
	Kind      Kind          `json:"kind,omitempty"`
	Text      string        `json:"text"`
	Category  Category      `json:"category"`
	DedupeKey string        `json:"dedupe_key"`
	Duration  time.Duration `json:"duration"`
}

// Sticky reports whether the notification only goes away on explicit dismissal.
func (n Notification) Sticky() bool {
	return n.ExpiresAt.IsZero()
}

// Frame is the wire envelope of one message on the notification transport.
type Frame struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}
