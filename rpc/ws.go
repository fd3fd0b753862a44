package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"jobboard/core/types"

	"nhooyr.io/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
)

// handleEventsWS streams the event log over a websocket: the full backlog
// first, then live events as they are emitted. An optional ?prefix= query
// restricts the stream to matching event types.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.node == nil {
		http.Error(w, "node unavailable", http.StatusServiceUnavailable)
		return
	}
	prefix := strings.TrimSpace(r.URL.Query().Get("prefix"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	if err := s.streamEvents(r.Context(), conn, prefix); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, prefix string) error {
	updates, cancel, backlog := s.node.SubscribeEvents(ctx)
	defer cancel()

	for _, evt := range backlog {
		if err := writeEvent(ctx, conn, evt, prefix); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeEvent(ctx, conn, evt, prefix); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event, prefix string) error {
	if evt == nil {
		return nil
	}
	if prefix != "" && !strings.HasPrefix(evt.Type, prefix) {
		return nil
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
