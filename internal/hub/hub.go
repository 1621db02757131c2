// Package hub holds live bidirectional client connections and fans
// server-originated events out to all of them. Delivery is best-effort:
// a send failure evicts the connection, it never surfaces to the caller.
package hub

import (
	"log"
	"sync"

	"github.com/BYTEDz/PCLink-sub000/internal/models"
)

// Role tags a connection by who is on the other end.
type Role string

const (
	RoleMobile   Role = "mobile"
	RoleOperator Role = "operator"
)

// Conn is the slice of a websocket connection the hub needs. Writes on the
// same Conn are serialized by the hub.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

type client struct {
	conn Conn
	role Role
	mu   sync.Mutex // one writer per connection
}

type Hub struct {
	mu      sync.RWMutex
	clients map[Conn]*client
}

func New() *Hub {
	return &Hub{clients: make(map[Conn]*client)}
}

func (h *Hub) Register(conn Conn, role Role) {
	h.mu.Lock()
	h.clients[conn] = &client{conn: conn, role: role}
	h.mu.Unlock()
	log.Printf("Hub: %s connection registered (%d total)", role, h.Count())
}

func (h *Hub) Unregister(conn Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if ok {
		log.Printf("Hub: connection removed (%d total)", h.Count())
	}
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast attempts to deliver ev to every current connection exactly
// once. It iterates a snapshot, so connections that come or go mid-send
// cannot corrupt the walk; failed sends evict the connection.
func (h *Hub) Broadcast(ev models.Event) {
	h.mu.RLock()
	snapshot := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		c.mu.Lock()
		err := c.conn.WriteJSON(ev)
		c.mu.Unlock()
		if err != nil {
			h.Unregister(c.conn)
			c.conn.Close()
		}
	}
}
