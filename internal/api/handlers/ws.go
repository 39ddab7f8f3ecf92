package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Conceptual-Machines/jam-api/internal/jam"
	"github.com/Conceptual-Machines/jam-api/internal/logger"
	"github.com/Conceptual-Machines/jam-api/internal/models"
)

const (
	wsWriteTimeout   = 10 * time.Second
	wsPongTimeout    = 60 * time.Second
	wsPingInterval   = 30 * time.Second
	wsSendBufferSize = 128
)

// WSHandler upgrades push-channel connections and registers each one as
// a broadcast subscriber.
type WSHandler struct {
	broadcaster *jam.Broadcaster
	upgrader    websocket.Upgrader
}

// NewWSHandler creates the push-channel handler
func NewWSHandler(broadcaster *jam.Broadcaster, allowedOrigins []string) *WSHandler {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
			continue
		}
		allowed[strings.TrimRight(origin, "/")] = true
	}

	return &WSHandler{
		broadcaster: broadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if allowAll {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[strings.TrimRight(origin, "/")]
			},
		},
	}
}

// Serve upgrades the connection and pumps events until the client goes
// away.
func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", logger.Fields{
			"error":     err.Error(),
			"client_ip": c.ClientIP(),
		})
		return
	}

	client := &wsClient{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan models.Event, wsSendBufferSize),
		done: make(chan struct{}),
	}

	h.broadcaster.Subscribe(client.id, client)
	logger.Info("Push channel connected", logger.Fields{
		"subscriber": client.id,
		"client_ip":  c.ClientIP(),
	})

	go client.writePump()
	client.readPump()

	h.broadcaster.Unsubscribe(client.id)
	client.close()
	logger.Info("Push channel disconnected", logger.Fields{
		"subscriber": client.id,
	})
}

// wsClient is one connected push-channel consumer. Send enqueues onto
// a bounded buffer; a full buffer means the client is too slow and the
// event is dropped.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan models.Event
	done chan struct{}
}

// Send implements jam.Subscriber
func (c *wsClient) Send(event models.Event) error {
	select {
	case c.send <- event:
		return nil
	case <-c.done:
		return fmt.Errorf("subscriber closed")
	default:
		return fmt.Errorf("send buffer full, dropping %s", event.Type)
	}
}

func (c *wsClient) close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// readPump discards inbound frames; the push channel is one-way. It
// returns when the client disconnects.
func (c *wsClient) readPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
