package feed

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans out Events to every connected websocket subscriber.
type Hub struct {
	mu      sync.RWMutex
	conns   map[*websocket.Conn]chan Event
	log     *slog.Logger
}

// NewHub returns an empty broadcast hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{conns: make(map[*websocket.Conn]chan Event), log: log}
}

// ServeHTTP upgrades the request to a websocket and registers it as a
// subscriber until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("feed: upgrade failed", "err", err)
		return
	}
	ch := make(chan Event, 64)

	h.mu.Lock()
	h.conns[conn] = ch
	h.mu.Unlock()

	go h.writePump(conn, ch)
	go h.readPump(conn)
}

func (h *Hub) writePump(conn *websocket.Conn, ch chan Event) {
	defer h.unregister(conn)
	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// readPump drains and discards inbound frames so the connection's
// read deadline/pong handling stays alive; subscribers don't send us
// anything meaningful.
func (h *Hub) readPump(conn *websocket.Conn) {
	defer h.unregister(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.conns[conn]; ok {
		close(ch)
		delete(h.conns, conn)
	}
	h.mu.Unlock()
	conn.Close()
}

// Broadcast fans ev out to every connected subscriber, dropping it for
// any subscriber whose outbound buffer is full rather than blocking.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn, ch := range h.conns {
		select {
		case ch <- ev:
		default:
			h.log.Warn("feed: dropping event for slow subscriber", "remote", conn.RemoteAddr())
		}
	}
}

// Subscribers reports the current connection count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
