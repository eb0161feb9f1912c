package transport

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vaultwatch/vaultwatch-backend/internal/service/engine"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub fans engine snapshots out to connected dashboard clients. It is the
// engine's render sink: the engine publishes, browsers subscribe.
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
	last    []byte
}

// NewHub constructs an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger.Named("ws"),
		clients: make(map[*websocket.Conn]bool),
	}
}

// Publish implements engine.Notifier: it broadcasts the snapshot to every
// connected client and retains it for late joiners.
func (h *Hub) Publish(snapshot engine.Snapshot) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		h.logger.Error("marshal snapshot", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.last = payload
	for c := range h.clients {
		if writeErr := c.WriteMessage(websocket.TextMessage, payload); writeErr != nil {
			delete(h.clients, c)
			_ = c.Close()
		}
	}
	h.mu.Unlock()
}

// register adds the client and sends it the retained snapshot. The
// catch-up write happens under h.mu: all writes to a connection go through
// this lock, gorilla connections do not allow concurrent writers.
func (h *Hub) register(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = true
	if h.last == nil {
		return
	}
	if err := c.WriteMessage(websocket.TextMessage, h.last); err != nil {
		delete(h.clients, c)
		_ = c.Close()
	}
}

func (h *Hub) unregister(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// serve upgrades the request and keeps the connection registered until the
// client goes away. Incoming messages are drained and ignored.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request) error {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	h.register(ws)
	defer func() {
		h.unregister(ws)
		_ = ws.Close()
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return nil
		}
	}
}
