package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pathfinderhq/syncagent/internal/events"
	"github.com/pathfinderhq/syncagent/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Only the local UI may connect.
		return strings.HasPrefix(r.Host, "localhost") || strings.HasPrefix(r.Host, "127.0.0.1")
	},
}

// wsEnvelope wraps every message sent to UI clients.
type wsEnvelope struct {
	Type      string       `json:"type"`
	Data      events.Event `json:"data"`
	Timestamp int64        `json:"timestamp"`
}

// wsClient represents one connected UI client.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub relays sync outcome events to connected UI clients. Delivery is
// best-effort: a slow client is disconnected rather than allowed to back up
// the fan-out, and losing a client never loses the underlying state
// transition.
type Hub struct {
	bus        *events.Bus
	clients    map[string]*wsClient
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.RWMutex
}

// NewHub creates a hub fanning out from the given event bus.
func NewHub(bus *events.Bus) *Hub {
	return &Hub{
		bus:        bus,
		clients:    make(map[string]*wsClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

// Run consumes bus events and manages client connections until the bus
// subscription is closed via stop.
func (h *Hub) Run() (stop func()) {
	ch, unsubscribe := h.bus.Subscribe(256)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				h.relay(event)

			case client := <-h.register:
				h.mu.Lock()
				h.clients[client.id] = client
				h.mu.Unlock()
				logging.Debug("ws client connected", zap.String("client", client.id))

			case client := <-h.unregister:
				h.mu.Lock()
				if _, ok := h.clients[client.id]; ok {
					delete(h.clients, client.id)
					close(client.send)
				}
				h.mu.Unlock()
				logging.Debug("ws client disconnected", zap.String("client", client.id))

			case message := <-h.broadcast:
				h.mu.Lock()
				for id, client := range h.clients {
					select {
					case client.send <- message:
					default:
						// Client send buffer is full, drop the connection.
						close(client.send)
						delete(h.clients, id)
					}
				}
				h.mu.Unlock()
			}
		}
	}()

	return func() {
		unsubscribe()
		<-done
	}
}

func (h *Hub) relay(event events.Event) {
	envelope := wsEnvelope{
		Type:      string(event.Type),
		Data:      event,
		Timestamp: time.Now().Unix(),
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		logging.Error("failed to marshal ws envelope", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		// Broadcast backlog full; drop rather than stall the bus consumer.
	}
}

// Handler upgrades HTTP connections and attaches them to the hub.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Error("ws upgrade failed", err)
			return
		}

		client := &wsClient{
			id:   time.Now().Format("20060102150405.000") + "-" + r.RemoteAddr,
			conn: conn,
			send: make(chan []byte, 256),
			hub:  h,
		}
		h.register <- client

		go client.writePump()
		go client.readPump()
	}
}

// readPump drains client messages; the UI sends nothing the agent acts on
// beyond keeping the connection alive.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Debug("ws read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump pumps hub messages to the connection with periodic pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
