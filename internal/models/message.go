package models

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// MessageType classifies message content.
type MessageType string

const (
	MessageText    MessageType = "text"
	MessageImage   MessageType = "image"
	MessageAudio   MessageType = "audio"
	MessageFile    MessageType = "file"
	MessageSystem  MessageType = "system"
	MessageCallLog MessageType = "call_log"
)

// MessageStatus is the delivery state. Transitions are monotonic:
// sent -> delivered -> read, with failed terminal and reachable only from sent.
type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
)

// Message is a persisted chat message. Reactions is a JSON map of reacting
// user id to a single emoji (last write wins).
type Message struct {
	ID             int            `db:"id" json:"id"`
	ConversationID int            `db:"conversation_id" json:"conversation_id"`
	SenderID       int            `db:"sender_id" json:"sender_id"`
	Type           MessageType    `db:"type" json:"type"`
	Content        string         `db:"content" json:"content"`
	Status         MessageStatus  `db:"status" json:"status"`
	Reactions      types.JSONText `db:"reactions" json:"reactions,omitempty"`
	Pinned         bool           `db:"pinned" json:"pinned"`
	PinnedAt       *time.Time     `db:"pinned_at" json:"pinned_at,omitempty"`
	ReplyToID      *int           `db:"reply_to_id" json:"reply_to_id,omitempty"`
	DeletedForAll  bool           `db:"deleted_for_all" json:"deleted_for_all"`
	SentAt         time.Time      `db:"sent_at" json:"sent_at"`
	DeliveredAt    *time.Time     `db:"delivered_at" json:"delivered_at,omitempty"`
	ReadAt         *time.Time     `db:"read_at" json:"read_at,omitempty"`
	EditedAt       *time.Time     `db:"edited_at" json:"edited_at,omitempty"`
	DeletedAt      *time.Time     `db:"deleted_at" json:"deleted_at,omitempty"`
}

// ReactionMap decodes the stored reactions into userID -> emoji form.
func (m Message) ReactionMap() map[string]string {
	out := map[string]string{}
	if len(m.Reactions) == 0 {
		return out
	}
	_ = json.Unmarshal(m.Reactions, &out)
	return out
}
