package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"compliancehub/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Client is one connected audit stream subscriber
type Client struct {
	hub            *Hub
	conn           *websocket.Conn
	send           chan []byte
	organizationID uuid.UUID
}

type message struct {
	organizationID uuid.UUID
	payload        []byte
}

// Hub fans audit entries out to the subscribers of the entry's organization
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	upgrader   websocket.Upgrader
	log        *logrus.Logger
}

// NewHub accepts upgrades only from allowedOrigins; an empty list accepts any origin
func NewHub(allowedOrigins []string, log *logrus.Logger) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 1024),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 || set["*"] {
			return true
		}
		if set[origin] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

// Run is the dispatch loop; it returns when ctx is done and disconnects everyone
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			h.log.WithField("organization_id", client.organizationID.String()).Debug("audit stream client connected")
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.log.WithField("organization_id", client.organizationID.String()).Debug("audit stream client disconnected")
			}
		case msg := <-h.broadcast:
			for client := range h.clients {
				if client.organizationID != msg.organizationID {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					// slow consumer
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// Publish queues entry for its organization's subscribers. Entries without an
// organization are never streamed. It does not block: when the queue is full the
// entry is dropped from the stream (it is already stored).
func (h *Hub) Publish(entry model.AuditLog) {
	if entry.OrganizationID == nil {
		return
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		h.log.WithError(err).Warn("failed to encode audit entry for stream")
		return
	}
	select {
	case h.broadcast <- message{organizationID: *entry.OrganizationID, payload: payload}:
	default:
		h.log.Warn("audit stream queue full, dropping entry")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only watches for close and pong frames; clients do not send anything
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).Debug("audit stream read error")
			}
			return
		}
	}
}

// ServeWs upgrades an already authenticated and authorized request and subscribes it
// to organizationID's entries
func ServeWs(hub *Hub, c *gin.Context, organizationID uuid.UUID) {
	conn, err := hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	client := &Client{hub: hub, conn: conn, send: make(chan []byte, sendBuffer), organizationID: organizationID}
	select {
	case hub.register <- client:
	case <-hub.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
