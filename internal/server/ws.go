package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"docquery/internal/logging"
)

// wsConnection is one live websocket client. Writes are serialized through
// writeMu; gorilla connections do not allow concurrent writers.
type wsConnection struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConnection) send(payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(payload)
}

// hub tracks websocket connections and fans events out to all of them.
// Dead connections are dropped on first write failure.
type hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	conns    map[string]*wsConnection
	logger   logging.Logger
}

func newHub() *hub {
	return &hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns:  make(map[string]*wsConnection),
		logger: logging.NewComponentLogger("ws"),
	}
}

// handle upgrades the request and services the connection until it closes.
// Inbound traffic is limited to ping messages answered with pong.
func (h *hub) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed: %v", err)
		return
	}

	c := &wsConnection{id: uuid.NewString(), conn: conn}
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	h.logger.Debug("websocket %s connected", c.id)

	defer func() {
		h.remove(c.id)
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			_ = c.send(map[string]string{"type": "pong"})
		}
	}
}

// broadcast sends payload to every connection, pruning the ones that fail.
func (h *hub) broadcast(payload any) {
	h.mu.RLock()
	conns := make([]*wsConnection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.send(payload); err != nil {
			h.logger.Debug("dropping websocket %s: %v", c.id, err)
			h.remove(c.id)
			_ = c.conn.Close()
		}
	}
}

func (h *hub) remove(id string) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}
