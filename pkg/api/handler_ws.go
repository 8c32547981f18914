package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/encounterlive/encounterd/pkg/models"
)

// ClientMessage is what a WebSocket client sends. Action is one of
// subscribe, unsubscribe, or ping. EventTypes narrows a subscription;
// empty means every event type.
type ClientMessage struct {
	Action     string   `json:"action"`
	Channel    string   `json:"channel,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// wsConn is one WebSocket client. The read loop is the only goroutine
// that mutates subs; delivery goroutines only write to the socket, so
// writes are serialized with writeMu.
type wsConn struct {
	conn         *websocket.Conn
	ctx          context.Context
	userID       string
	dm           bool
	writeTimeout time.Duration

	writeMu sync.Mutex
	subs    map[string]string // channel -> subscription id
}

// wsHandler handles GET /api/v1/ws. One connection serves any number
// of room channel subscriptions for the authenticated user.
func (s *Server) wsHandler(c *echo.Context) error {
	userID := extractUser(c)
	dm := isDM(c)

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// Origin checks are the fronting proxy's job, like authentication.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "websocket upgrade failed")
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	ws := &wsConn{
		conn:         conn,
		ctx:          ctx,
		userID:       userID,
		dm:           dm,
		writeTimeout: s.cfg.WriteTimeout,
		subs:         make(map[string]string),
	}
	defer s.closeConn(ws)

	slog.Info("WebSocket connected", "user_id", userID)
	ws.sendJSON(map[string]string{"type": "connection.established"})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return nil
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message", "user_id", userID, "error", err)
			continue
		}
		s.handleClientMessage(ws, &msg)
	}
}

func (s *Server) handleClientMessage(ws *wsConn, msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if msg.Channel == "" {
			ws.sendJSON(map[string]string{"type": "error", "message": "channel is required for subscribe"})
			return
		}
		if _, ok := ws.subs[msg.Channel]; ok {
			ws.sendJSON(map[string]string{"type": "subscription.confirmed", "channel": msg.Channel})
			return
		}
		subID, err := s.broadcaster.Subscribe(ws.userID, msg.Channel, msg.EventTypes, ws.deliverEvent)
		if err != nil {
			ws.sendJSON(map[string]string{
				"type":    "subscription.error",
				"channel": msg.Channel,
				"message": err.Error(),
			})
			return
		}
		ws.subs[msg.Channel] = subID
		ws.sendJSON(map[string]string{"type": "subscription.confirmed", "channel": msg.Channel})
		s.attachRoomConnection(ws, msg.Channel, subID)

	case "unsubscribe":
		if msg.Channel == "" {
			ws.sendJSON(map[string]string{"type": "error", "message": "channel is required for unsubscribe"})
			return
		}
		if subID, ok := ws.subs[msg.Channel]; ok {
			delete(ws.subs, msg.Channel)
			_ = s.broadcaster.Unsubscribe(subID)
			s.detachRoomConnection(ws, msg.Channel, subID)
		}

	case "ping":
		for _, subID := range ws.subs {
			_ = s.broadcaster.Touch(subID)
		}
		ws.sendJSON(map[string]string{"type": "pong"})
	}
}

// attachRoomConnection binds a fresh room subscription to the user's
// participant record and tells the subscriber where they stand: a
// synthetic PARTICIPANT_JOINED for their own entity goes to this
// connection only. The subscription id doubles as the connection id,
// so a re-subscribe replaces it.
func (s *Server) attachRoomConnection(ws *wsConn, channel, subID string) {
	interactionID, ok := strings.CutPrefix(channel, "room:")
	if !ok {
		return
	}
	r, err := s.rooms.Get(interactionID)
	if err != nil {
		return
	}
	if err := r.BindConnection(ws.userID, subID); err != nil {
		return
	}
	p, err := r.Participant(ws.userID)
	if err != nil {
		return
	}
	ws.sendJSON(models.GameEvent{
		Type:          models.EventParticipantJoined,
		InteractionID: interactionID,
		EntityID:      p.EntityID,
		UserID:        ws.userID,
		Timestamp:     time.Now(),
	})
}

// detachRoomConnection releases the connection id a subscription was
// bound to. A newer binding by a fresher connection is left alone.
func (s *Server) detachRoomConnection(ws *wsConn, channel, subID string) {
	interactionID, ok := strings.CutPrefix(channel, "room:")
	if !ok {
		return
	}
	r, err := s.rooms.Get(interactionID)
	if err != nil {
		return
	}
	r.ReleaseConnection(ws.userID, subID)
}

// closeConn drops every subscription this connection holds and closes
// the socket.
func (s *Server) closeConn(ws *wsConn) {
	for channel, subID := range ws.subs {
		_ = s.broadcaster.Unsubscribe(subID)
		s.detachRoomConnection(ws, channel, subID)
	}
	_ = ws.conn.Close(websocket.StatusNormalClosure, "")
	slog.Info("WebSocket disconnected", "user_id", ws.userID)
}

// deliverEvent is the broadcaster handler for this connection. Chat
// messages are visibility-checked per recipient before the send; an
// event the user may not see is silently skipped.
func (ws *wsConn) deliverEvent(event models.GameEvent) error {
	if event.Type == models.EventChatMessage {
		if msg, ok := event.Payload["message"].(models.ChatMessage); ok {
			if !msg.VisibleTo(ws.userID, ws.dm) {
				return nil
			}
		}
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return ws.sendRaw(data)
}

func (ws *wsConn) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket message", "user_id", ws.userID, "error", err)
		return
	}
	if err := ws.sendRaw(data); err != nil {
		slog.Warn("Failed to send WebSocket message", "user_id", ws.userID, "error", err)
	}
}

// sendRaw writes one text frame with a write timeout. Serialized
// because delivery goroutines and the read loop both send.
func (ws *wsConn) sendRaw(data []byte) error {
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	writeCtx, cancel := context.WithTimeout(ws.ctx, ws.writeTimeout)
	defer cancel()
	return ws.conn.Write(writeCtx, websocket.MessageText, data)
}
