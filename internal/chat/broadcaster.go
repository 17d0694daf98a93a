package chat

// Broadcaster is the live fan-out surface the chat services need from the
// connection hub. Implemented by ws.Hub; tests substitute a recorder.
type Broadcaster interface {
	// BroadcastToRoom delivers payload to every connection joined to the
	// conversation, skipping excludeUserID when non-zero. Returns the number
	// of connections that accepted the payload.
	BroadcastToRoom(conversationID int, payload []byte, excludeUserID int) int

	// SendToUser delivers payload to all of the user's connections via the
	// personal channel, independent of room membership.
	SendToUser(userID int, payload []byte) bool

	// IsUserInRoom reports whether the user is currently joined to the
	// conversation room on any connection.
	IsUserInRoom(conversationID int, userID int) bool
}
