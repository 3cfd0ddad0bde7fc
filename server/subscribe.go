package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"laundry-notifier/pkg/notifier"
	"laundry-notifier/router"
)

const streamBuffer = 32

type streamEvent struct {
	Payload   notifier.Event `json:"payload"`
	Kind      notifier.Kind  `json:"kind"`
	DedupeKey string         `json:"dedupe_key"`
}

// handleStream relays routed events to the client as server-sent events. The
// client holds a reference on the shared connection while it listens.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()
	client := uuid.NewString()
	events := make(chan notifier.Event, streamBuffer)

	// Runs on the connection loop; never block it.
	unsubscribe := s.router.Subscribe("stream:"+client, router.AnyKind, func(ev notifier.Event) error {
		select {
		case events <- ev:
			return nil
		default:
			return fmt.Errorf("stream %s buffer full, dropped %s", client, ev.Kind())
		}
	})
	defer unsubscribe()

	release := s.connection.Acquire(ctx)
	defer release()

	s.logger.Info("Stream client connected", "client", client, "ip", clientIP(r))
	defer s.logger.Info("Stream client disconnected", "client", client)

	_, _ = fmt.Fprintf(w, "event: status\ndata: %s\n\n", mustJSON(s.connection.Status()))
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-events:
			data, err := json.Marshal(streamEvent{Payload: ev, Kind: ev.Kind(), DedupeKey: ev.DedupeKey()})
			if err != nil {
				s.logger.Warn("Failed to encode stream event", "kind", ev.Kind(), "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind(), data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
