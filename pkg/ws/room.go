package ws

import (
	"sync"
)

// Room groups connections for a single match's broadcasts.
type Room struct {
	ID string

	mu      sync.Mutex
	members map[string]*Connection
}

// NewRoom constructs an empty room.
func NewRoom(id string) *Room {
	return &Room{
		ID:      id,
		members: make(map[string]*Connection),
	}
}

// Add joins a connection to the room.
func (r *Room) Add(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[c.ID] = c
}

// Remove drops a connection from the room, if present.
func (r *Room) Remove(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, connectionID)
}

// Broadcast fans a frame out to every member, dropping it for anyone
// whose send buffer is full rather than blocking the broadcaster.
func (r *Room) Broadcast(payload []byte) {
	r.mu.Lock()
	members := make([]*Connection, 0, len(r.members))
	for _, c := range r.members {
		members = append(members, c)
	}
	r.mu.Unlock()

	for _, c := range members {
		c.TrySend(payload)
	}
}

// Members returns the current member ids.
func (r *Room) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}

// Len reports the current member count.
func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}
