package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"flashliquidity/core/events"
)

const wsWriteTimeout = 10 * time.Second

type streamMessage struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// handleEvents streams committed events. The optional type query parameter
// restricts the stream to a comma-separated list of event types.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeProblem(w, http.StatusNotImplemented, "stream_disabled", "event stream not configured")
		return
	}
	filter := map[string]struct{}{}
	for _, t := range strings.Split(r.URL.Query().Get("type"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter[t] = struct{}{}
		}
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	updates, cancel := s.events.Subscribe()
	defer cancel()
	s.metrics.AddSubscribers(1)
	defer s.metrics.AddSubscribers(-1)

	ctx := conn.CloseRead(r.Context())
	if err := stream(ctx, conn, updates, filter); err != nil && websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
		_ = conn.Close(websocket.StatusInternalError, "stream error")
	}
}

func stream(ctx context.Context, conn *websocket.Conn, updates <-chan events.Event, filter map[string]struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-updates:
			if !ok {
				return nil
			}
			if len(filter) > 0 {
				if _, wanted := filter[ev.EventType()]; !wanted {
					continue
				}
			}
			data, err := json.Marshal(streamMessage{Type: ev.EventType(), Attributes: events.AttributesOf(ev)})
			if err != nil {
				return err
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
