package models

import "time"

// ParticipantRole is the role a user holds inside one conversation.
type ParticipantRole string

const (
	RoleMember ParticipantRole = "member"
	RoleMentor ParticipantRole = "mentor"
	RoleAdmin  ParticipantRole = "admin"
)

// ParticipantStatus tracks membership state. Only active participants may
// join rooms, send messages or react.
type ParticipantStatus string

const (
	ParticipantActive  ParticipantStatus = "active"
	ParticipantMuted   ParticipantStatus = "muted"
	ParticipantLeft    ParticipantStatus = "left"
	ParticipantRemoved ParticipantStatus = "removed"
)

// Participant is the per (conversation, user) membership row. Exactly one row
// exists per pair; uniqueness is enforced at creation. Typing state is
// runtime-only and deliberately absent here.
type Participant struct {
	ID                   int               `db:"id" json:"id"`
	ConversationID       int               `db:"conversation_id" json:"conversation_id"`
	UserID               int               `db:"user_id" json:"user_id"`
	Role                 ParticipantRole   `db:"role" json:"role"`
	Status               ParticipantStatus `db:"status" json:"status"`
	Online               bool              `db:"online" json:"online"`
	LastSeenAt           *time.Time        `db:"last_seen_at" json:"last_seen_at,omitempty"`
	LastReadMessageID    *int              `db:"last_read_message_id" json:"last_read_message_id,omitempty"`
	LastReadAt           *time.Time        `db:"last_read_at" json:"last_read_at,omitempty"`
	NotificationsEnabled bool              `db:"notifications_enabled" json:"notifications_enabled"`
	JoinedAt             time.Time         `db:"joined_at" json:"joined_at"`
}

// CanParticipate reports whether the membership allows live chat operations.
// Muted participants still receive and send; left/removed do not.
func (p Participant) CanParticipate() bool {
	return p.Status == ParticipantActive || p.Status == ParticipantMuted
}
