// Package status broadcasts live session events to websocket subscribers.
// The hub is a fire-and-forget fan-out: a slow or dead subscriber never
// blocks the warmup engine.
package status

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anvita/facebook-warmup/logger"
	"github.com/anvita/facebook-warmup/warmup"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is operated on a trusted network; origin checks are left to
	// the fronting proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientBufSize  = 32
)

// Hub fans session events out to websocket clients and keeps the latest
// event per session for status queries.
type Hub struct {
	logger *logger.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	latest  map[string]warmup.Event
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a status hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		logger:  log.WithModule("status"),
		clients: make(map[*client]struct{}),
		latest:  make(map[string]warmup.Event),
	}
}

// Publish implements the engine's status sink. It never blocks: clients
// with a full send buffer are dropped.
func (h *Hub) Publish(sessionID string, ev warmup.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.latest[sessionID] = ev
	var stale []*client
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			stale = append(stale, c)
		}
	}
	for _, c := range stale {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	if len(stale) > 0 {
		h.logger.Warnf("Dropped %d slow websocket client(s)", len(stale))
	}
}

// Latest returns the most recent event for a session, if any.
func (h *Hub) Latest(sessionID string) (warmup.Event, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ev, ok := h.latest[sessionID]
	return ev, ok
}

// Forget drops the cached event of a finished session.
func (h *Hub) Forget(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.latest, sessionID)
}

// ServeWS upgrades an HTTP request to a websocket subscription.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBufSize)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.WithField("clients", count).Debug("Websocket client connected")

	go h.writePump(c)
	go h.readPump(c)
}

// writePump pushes events and pings to one client.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// readPump discards inbound messages and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)

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

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}
