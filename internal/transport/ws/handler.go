// Package ws adapts gorilla/websocket connections to broadcast.Channel.
// The upgrade handshake, per-client send buffer and read/write pump
// split, and ping/pong keepalive are carried over from the teacher's
// websocket handler almost verbatim — only the message routing target
// (a broadcast.Hub instead of a per-user Hub) changed.
package ws

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dimasergei/streampulse/internal/broadcast"
)

var errSendBufferFull = errors.New("websocket send buffer full")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Handler upgrades HTTP requests to WebSocket connections and wires
// each one into a broadcast.Hub.
type Handler struct {
	hub      *broadcast.Hub
	logger   *logrus.Logger
	upgrader websocket.Upgrader
}

// NewHandler constructs a Handler backed by hub.
func NewHandler(hub *broadcast.Hub, logger *logrus.Logger) *Handler {
	return &Handler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handle upgrades the request and starts the client's read/write pumps.
func (h *Handler) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("failed to upgrade websocket connection")
		return
	}

	client := &wsChannel{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: h.logger,
	}

	clientID := c.Query("client_id")
	h.hub.Connect(client, clientID)

	go client.writePump()
	go client.readPump(h.hub)
}

// wsChannel implements broadcast.Channel over a single websocket
// connection.
type wsChannel struct {
	conn   *websocket.Conn
	send   chan []byte
	logger *logrus.Logger
}

var _ broadcast.Channel = (*wsChannel)(nil)

// Send enqueues message for the write pump. A full buffer (a slow or
// stalled client) is treated as a send failure.
func (w *wsChannel) Send(message []byte) error {
	select {
	case w.send <- message:
		return nil
	default:
		return errSendBufferFull
	}
}

func (w *wsChannel) Close() error {
	return w.conn.Close()
}

func (w *wsChannel) readPump(hub *broadcast.Hub) {
	defer func() {
		hub.Disconnect(w)
		w.conn.Close()
	}()

	w.conn.SetReadLimit(maxMessageSize)
	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				w.logger.WithError(err).Warn("unexpected websocket close")
			}
			return
		}
		hub.HandleMessage(w, message)
	}
}

func (w *wsChannel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		w.conn.Close()
	}()

	for {
		select {
		case message, ok := <-w.send:
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				w.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := w.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
