package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API binds to localhost or a trusted network; no origin
	// policy beyond that.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const eventWriteTimeout = 10 * time.Second

// handleEvents streams agent events over a WebSocket. Each event is
// one JSON message. The subscription is dropped when the client
// disconnects or falls too far behind.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "event bus not configured")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := s.bus.Subscribe(64)
	defer s.bus.Unsubscribe(ch)

	s.logger.Info("event subscriber connected",
		"remote", r.RemoteAddr,
		"subscribers", s.bus.SubscriberCount(),
	)

	// Reader goroutine: we never expect client messages, but reading
	// is how gorilla surfaces close frames and connection loss.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return
				}
				s.logger.Debug("event write failed", "remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}
