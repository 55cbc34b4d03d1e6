package realtime

import "sync"

// Registry tracks live connections and their room membership. It is the
// single source of truth for fan-out targets; the gateway never walks
// connections directly.
//
// All membership state, including each client's rooms set, is guarded by the
// registry mutex. Clients do not mutate their own rooms.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[RoomID]map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		rooms:   make(map[RoomID]map[string]*Client),
	}
}

// Register adds a connection and places it in the global room. A connection
// is never registered without an authenticated identity.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.id] = c
	r.join(c, GlobalRoom)
}

// Unregister removes the connection from every room it joined. Safe to call
// for a connection that was never registered.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.id]; !ok {
		return
	}
	for room := range c.rooms {
		r.leave(c, room)
	}
	delete(r.clients, c.id)
}

// JoinRoom is idempotent; joining a room twice is a no-op.
func (r *Registry) JoinRoom(c *Client, room RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.id]; !ok {
		return
	}
	r.join(c, room)
}

// LeaveRoom is idempotent; leaving a room the client is not in is a no-op.
func (r *Registry) LeaveRoom(c *Client, room RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leave(c, room)
}

// MembersOf returns a snapshot of the room's members. The slice is safe to
// iterate without holding any lock.
func (r *Registry) MembersOf(room RoomID) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	out := make([]*Client, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// InRoom reports whether the connection is currently a member of the room.
func (r *Registry) InRoom(c *Client, room RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *Registry) join(c *Client, room RoomID) {
	if _, ok := c.rooms[room]; ok {
		return
	}
	c.rooms[room] = struct{}{}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		r.rooms[room] = members
	}
	members[c.id] = c
}

func (r *Registry) leave(c *Client, room RoomID) {
	if _, ok := c.rooms[room]; !ok {
		return
	}
	delete(c.rooms, room)
	members := r.rooms[room]
	delete(members, c.id)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}
