package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/repolens/repolens/internal/models"
	"go.uber.org/zap"
)

// Close codes for rejected chat connections.
const (
	closeSessionNotReady = 4003
	closeSessionNotFound = 4004
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The API is same-machine or reverse-proxied; origin policy is left to
	// the proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsEvent struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

type wsQuestion struct {
	Message string `json:"message"`
}

// wsConn adapts a websocket connection to the chat transport. Server to
// client traffic is JSON events of the form {"type": "token"|"done"|"error",
// "data": ...}; client to server traffic is {"message": "..."} or a bare
// text frame.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadQuestion() (string, error) {
	for {
		kind, payload, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if kind != websocket.TextMessage {
			continue
		}
		var q wsQuestion
		if err := json.Unmarshal(payload, &q); err == nil && q.Message != "" {
			return q.Message, nil
		}
		return string(payload), nil
	}
}

func (c *wsConn) WriteToken(content string) error {
	return c.conn.WriteJSON(wsEvent{Type: "token", Data: content})
}

func (c *wsConn) WriteDone() error {
	return c.conn.WriteJSON(wsEvent{Type: "done"})
}

func (c *wsConn) WriteError(message string) error {
	return c.conn.WriteJSON(wsEvent{Type: "error", Data: message})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		s.respondError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	session, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		s.closeWith(conn, closeSessionNotFound, "session not found")
		return
	}
	if session.Status != models.StatusReady {
		s.closeWith(conn, closeSessionNotReady, "session is not ready for chat")
		return
	}

	s.logger.Info("chat connected", zap.String("session_id", sessionID))
	s.controller.Run(r.Context(), sessionID, &wsConn{conn: conn})
	s.logger.Info("chat disconnected", zap.String("session_id", sessionID))
}

func (s *Server) closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		s.logger.Debug("failed to write close message", zap.Error(err))
	}
}
