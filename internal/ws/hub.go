package ws

import (
	"sync"
)

// Hub is the in-process registry of live connections. It tracks which
// connections belong to which user (the personal channel) and which
// connections are joined to which conversation room. All state is runtime
// only and rebuilt from nothing on restart.
type Hub struct {
	mu        sync.RWMutex
	users     map[int]map[*Connection]bool // userID -> connections
	rooms     map[int]map[*Connection]bool // conversationID -> connections
	connRooms map[*Connection]map[int]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		users:     make(map[int]map[*Connection]bool),
		rooms:     make(map[int]map[*Connection]bool),
		connRooms: make(map[*Connection]map[int]struct{}),
	}
}

// Register adds a connection under its user id.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.users[conn.UserID]; !ok {
		h.users[conn.UserID] = make(map[*Connection]bool)
	}
	h.users[conn.UserID][conn] = true
	h.connRooms[conn] = make(map[int]struct{})
}

// Unregister removes a connection from the user registry and every room it
// joined. It returns the number of connections the user still holds and the
// conversation ids where no other connection of the user remains joined, so
// the caller can mark those rooms offline even when another device stays
// connected.
func (h *Hub) Unregister(conn *Connection) (int, []int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var vacated []int
	for conversationID := range h.connRooms[conn] {
		h.leaveLocked(conversationID, conn)
		if !h.userInRoomLocked(conversationID, conn.UserID) {
			vacated = append(vacated, conversationID)
		}
	}
	delete(h.connRooms, conn)

	remaining := 0
	if conns, ok := h.users[conn.UserID]; ok {
		delete(conns, conn)
		remaining = len(conns)
		if remaining == 0 {
			delete(h.users, conn.UserID)
		}
	}
	return remaining, vacated
}

// JoinRoom subscribes a connection to a conversation room. Authorization is
// the caller's responsibility.
func (h *Hub) JoinRoom(conversationID int, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[*Connection]bool)
		h.rooms[conversationID] = room
	}
	room[conn] = true

	memberships := h.connRooms[conn]
	if memberships == nil {
		memberships = make(map[int]struct{})
		h.connRooms[conn] = memberships
	}
	memberships[conversationID] = struct{}{}
}

// LeaveRoom removes a connection from a conversation room.
func (h *Hub) LeaveRoom(conversationID int, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conversationID, conn)
	if memberships, ok := h.connRooms[conn]; ok {
		delete(memberships, conversationID)
	}
}

func (h *Hub) leaveLocked(conversationID int, conn *Connection) {
	if room, ok := h.rooms[conversationID]; ok {
		delete(room, conn)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// BroadcastToRoom writes payload to every connection joined to the
// conversation. excludeUserID, when non-zero, skips that user's connections.
// Delivery is best effort relative to the caller; a slow consumer only hurts
// itself.
func (h *Hub) BroadcastToRoom(conversationID int, payload []byte, excludeUserID int) int {
	h.mu.RLock()
	room := h.rooms[conversationID]
	conns := make([]*Connection, 0, len(room))
	for conn := range room {
		if excludeUserID != 0 && conn.UserID == excludeUserID {
			continue
		}
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, conn := range conns {
		if err := conn.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// SendToUser delivers payload to every active connection of the user, the
// personal channel addressable independently of any room (call invites,
// cross-device pushes). Reports whether at least one connection accepted it.
func (h *Hub) SendToUser(userID int, payload []byte) bool {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.users[userID]))
	for conn := range h.users[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	ok := false
	for _, conn := range conns {
		if err := conn.Send(payload); err == nil {
			ok = true
		}
	}
	return ok
}

// IsUserInRoom reports whether any of the user's connections is currently
// joined to the conversation room.
func (h *Hub) IsUserInRoom(conversationID int, userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.userInRoomLocked(conversationID, userID)
}

func (h *Hub) userInRoomLocked(conversationID int, userID int) bool {
	for conn := range h.rooms[conversationID] {
		if conn.UserID == userID {
			return true
		}
	}
	return false
}

// UserOnline reports whether the user holds any live connection.
func (h *Hub) UserOnline(userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}
