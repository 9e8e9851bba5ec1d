package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tristo-bit/skhoot-terminal/internal/events"
)

const (
	pingInterval  = 30 * time.Second
	writeDeadline = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local desktop shell only
	},
}

// wsEnvelope is the wire form of a bus event: a discriminant plus payload.
type wsEnvelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func envelope(e events.Event) wsEnvelope {
	switch e.(type) {
	case events.Data:
		return wsEnvelope{Event: "terminal-data", Payload: e}
	case events.SessionCreated:
		return wsEnvelope{Event: "terminal-session-created", Payload: e}
	case events.SessionClosed:
		return wsEnvelope{Event: "terminal-session-closed", Payload: e}
	case events.Error:
		return wsEnvelope{Event: "terminal-error", Payload: e}
	case events.AgentTerminalCreated:
		return wsEnvelope{Event: "ai-terminal-created", Payload: e}
	case events.FocusSession:
		return wsEnvelope{Event: "focus-terminal-session", Payload: e}
	default:
		return wsEnvelope{Event: "unknown", Payload: e}
	}
}

// handleWebSocket upgrades the connection and forwards every bus event to
// the client until it disconnects. Each connected view receives the same
// stream, which is what keeps the panel and mini views in lockstep.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	subID, ch := s.svc.Bus().Subscribe()
	defer s.svc.Bus().Unsubscribe(subID)

	// Reader goroutine: drain client frames so pings are answered and
	// disconnects are noticed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case e, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(envelope(e))
			if err != nil {
				s.log.Warn("encode ws event", "err", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
