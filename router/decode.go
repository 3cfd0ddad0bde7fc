package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"laundry-notifier/pkg/notifier"
)

// Decode errors. Frames failing with any of these are dropped.
var (
	ErrMalformed      = errors.New("malformed frame")
	ErrUnknownKind    = errors.New("unknown event kind")
	ErrInvalidPayload = errors.New("invalid payload")
)

type statusPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type profilePayload struct {
	UserID string `json:"userId"`
}

// Decode parses one raw frame into a typed event.
func Decode(raw []byte) (notifier.Event, error) {
	var frame notifier.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	kind := notifier.Kind(frame.Kind)
	if !kind.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, frame.Kind)
	}
	if len(frame.Payload) == 0 || string(frame.Payload) == "null" {
		return nil, fmt.Errorf("%w: %s has no payload", ErrInvalidPayload, kind)
	}

	switch kind {
	case notifier.KindNewOrder:
		var order notifier.OrderSnapshot
		if err := unmarshalPayload(frame.Payload, &order); err != nil {
			return nil, err
		}
		if err := require(kind, "id", order.ID); err != nil {
			return nil, err
		}
		return notifier.NewOrder{Order: order}, nil

	case notifier.KindOrderUpdate:
		var p statusPayload
		if err := unmarshalPayload(frame.Payload, &p); err != nil {
			return nil, err
		}
		if err := require(kind, "id", p.ID); err != nil {
			return nil, err
		}
		if err := require(kind, "status", p.Status); err != nil {
			return nil, err
		}
		return notifier.OrderUpdate{OrderID: p.ID, Status: p.Status}, nil

	case notifier.KindNewFeedback:
		var fb notifier.FeedbackSnapshot
		if err := unmarshalPayload(frame.Payload, &fb); err != nil {
			return nil, err
		}
		if err := require(kind, "id", fb.ID); err != nil {
			return nil, err
		}
		return notifier.NewFeedback{Feedback: fb}, nil

	case notifier.KindFeedbackUpdate:
		var p statusPayload
		if err := unmarshalPayload(frame.Payload, &p); err != nil {
			return nil, err
		}
		if err := require(kind, "id", p.ID); err != nil {
			return nil, err
		}
		if err := require(kind, "status", p.Status); err != nil {
			return nil, err
		}
		return notifier.FeedbackUpdate{FeedbackID: p.ID, Status: p.Status}, nil

	default: // notifier.KindProfileUpdate
		var p profilePayload
		if err := unmarshalPayload(frame.Payload, &p); err != nil {
			return nil, err
		}
		if err := require(kind, "userId", p.UserID); err != nil {
			return nil, err
		}
		return notifier.ProfileUpdate{UserID: p.UserID}, nil
	}
}

func unmarshalPayload(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}

func require(kind notifier.Kind, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s missing %s", ErrInvalidPayload, kind, field)
	}
	return nil
}
