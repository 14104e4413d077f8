package delivery

import "sync"

// Hub tracks the connections held by this process, indexed by user.
//
// It is a routing convenience only: the shared registry remains the source
// of truth for who is online. The hub answers "which of this user's sockets
// live here", never "is this user online".
type Hub struct {
	mu     sync.RWMutex
	byUser map[string]map[string]Conn // userID -> connID -> conn
	byConn map[string]Conn
}

func NewHub() *Hub {
	return &Hub{
		byUser: make(map[string]map[string]Conn),
		byConn: make(map[string]Conn),
	}
}

func (h *Hub) Add(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byUser[c.UserID()] == nil {
		h.byUser[c.UserID()] = make(map[string]Conn)
	}
	h.byUser[c.UserID()][c.ID()] = c
	h.byConn[c.ID()] = c
}

func (h *Hub) Remove(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.byConn[connID]
	if !ok {
		return
	}
	delete(h.byConn, connID)
	if m := h.byUser[c.UserID()]; m != nil {
		delete(m, connID)
		if len(m) == 0 {
			delete(h.byUser, c.UserID())
		}
	}
}

// ConnectionsFor returns this process's live connections for userID.
func (h *Hub) ConnectionsFor(userID string) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m := h.byUser[userID]
	out := make([]Conn, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byConn)
}
