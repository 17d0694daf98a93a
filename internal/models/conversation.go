package models

import "time"

// ConversationType distinguishes direct mentor/mentee chats from group and
// support conversations.
type ConversationType string

const (
	ConversationDirect  ConversationType = "direct"
	ConversationGroup   ConversationType = "group"
	ConversationSupport ConversationType = "support"
)

// ConversationStatus is the lifecycle state of a conversation. Archived and
// deleted are terminal but do not destroy message history.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
	ConversationDeleted  ConversationStatus = "deleted"
)

// Conversation represents a chat between two or more participants.
type Conversation struct {
	ID                 int                `db:"id" json:"id"`
	Type               ConversationType   `db:"type" json:"type"`
	Status             ConversationStatus `db:"status" json:"status"`
	LastMessageID      *int               `db:"last_message_id" json:"last_message_id,omitempty"`
	LastMessagePreview *string            `db:"last_message_preview" json:"last_message_preview,omitempty"`
	LastMessageAt      *time.Time         `db:"last_message_at" json:"last_message_at,omitempty"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
}

// ConversationSummary is the API view of a conversation for one user.
type ConversationSummary struct {
	ConversationID     int              `db:"id" json:"conversation_id"`
	Type               ConversationType `db:"type" json:"type"`
	LastMessagePreview *string          `db:"last_message_preview" json:"last_message_preview,omitempty"`
	LastMessageAt      *time.Time       `db:"last_message_at" json:"last_message_at,omitempty"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
}
