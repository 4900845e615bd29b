package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/thereceipt/printcounter/internal/command"
	"github.com/thereceipt/printcounter/internal/controller"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12
)

// WebSocket message types, besides the controller event types
const (
	EventCommand  = "command"
	EventResponse = "response"
	EventError    = "error"
)

// WSMessage is the envelope for everything sent over the socket. Controller
// events are sent as-is.
type WSMessage struct {
	Type    string          `json:"type"`
	Command string          `json:"command,omitempty"`
	Data    interface{}     `json:"data,omitempty"`
	Result  *command.Result `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// handleWebSocket streams controller events to the client. The first message
// is always the current state. Clients may send {"type":"command"} messages,
// answered with a response message.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Errorw("ws upgrade failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	events, unsubscribe := s.ctrl.Subscribe(0)
	defer unsubscribe()

	replies := make(chan WSMessage, 8)
	done := make(chan struct{})
	go s.readPump(conn, replies, done)

	s.log.Infow("ws client connected", "remote", c.Request.RemoteAddr)
	defer s.log.Infow("ws client disconnected", "remote", c.Request.RemoteAddr)

	write := func(v interface{}) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}

	if err := write(controller.Event{Type: controller.EventState, Data: s.ctrl.Snapshot()}); err != nil {
		s.log.Infow("ws initial write failed", "err", err)
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				// Controller closed
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			if err := write(ev); err != nil {
				s.log.Infow("ws write failed", "err", err)
				return
			}
		case msg := <-replies:
			if err := write(msg); err != nil {
				s.log.Infow("ws write failed", "err", err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Infow("ws ping failed", "err", err)
				return
			}
		}
	}
}

// readPump handles client messages until the connection drops
func (s *Server) readPump(conn *websocket.Conn, replies chan<- WSMessage, done chan<- struct{}) {
	defer close(done)

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Infow("ws read closed", "err", err)
			}
			return
		}

		var reply WSMessage
		switch msg.Type {
		case EventCommand:
			reply = WSMessage{
				Type:    EventResponse,
				Command: msg.Command,
				Result:  s.executor.Execute(context.Background(), msg.Command),
			}
		default:
			reply = WSMessage{Type: EventError, Error: "unknown message type: " + msg.Type}
		}

		select {
		case replies <- reply:
		default:
			s.log.Warnw("ws reply dropped, client too slow", "type", msg.Type)
		}
	}
}
