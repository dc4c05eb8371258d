package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"papertrader/internal/bot"
	"papertrader/internal/bus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Envelope is the WebSocket frame payload.
type Envelope struct {
	Type    string               `json:"type"` // "log"
	Data    bot.DecisionLogEntry `json:"data"`
	Initial bool                 `json:"initial,omitempty"`
}

// Hub pushes decision log entries to connected WebSocket clients. Slow
// clients drop messages rather than block the feed.
type Hub struct {
	events  *bus.FanOut[bot.DecisionLogEntry]
	backlog func() []bot.DecisionLogEntry
	log     *slog.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}

	// Optional hook (metrics).
	OnClients func(n int)
}

// NewHub creates a hub fed by events. backlog, if set, is replayed to every
// new client.
func NewHub(events *bus.FanOut[bot.DecisionLogEntry], backlog func() []bot.DecisionLogEntry, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		events:  events,
		backlog: backlog,
		log:     logger.With(slog.String("component", "ws")),
		clients: make(map[*wsClient]struct{}),
	}
}

// Run forwards events to clients until ctx is cancelled, then disconnects
// everyone.
func (h *Hub) Run(ctx context.Context) {
	sub := h.events.Subscribe()
	defer h.events.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case e, ok := <-sub:
			if !ok {
				h.closeAll()
				return
			}
			msg, err := json.Marshal(Envelope{Type: "log", Data: e})
			if err != nil {
				continue
			}
			h.broadcast(msg)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", slog.Any("err", err))
		return
	}
	c := &wsClient{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}

	if h.backlog != nil {
		for _, e := range h.backlog() {
			msg, err := json.Marshal(Envelope{Type: "log", Data: e, Initial: true})
			if err != nil {
				continue
			}
			select {
			case c.send <- msg:
			default:
			}
		}
	}

	h.add(c)
	go c.writePump()
	go c.readPump()
}

func (h *Hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("ws client connected", slog.Int("clients", n))
	if h.OnClients != nil {
		h.OnClients(n)
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("ws client disconnected", slog.Int("clients", n))
	if h.OnClients != nil {
		h.OnClients(n)
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.remove(c)
	}
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services control frames; clients do not send commands.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
