package models

import (
	"encoding/json"
	"time"
)

// EventName identifies a live-transport event. Client and server events share
// one namespace so the dispatch loop can stay a single switch.
type EventName string

// Client -> server events.
const (
	EventJoinConversation     EventName = "join-conversation"
	EventLeaveConversation    EventName = "leave-conversation"
	EventSendMessage          EventName = "send-message"
	EventTypingStart          EventName = "typing-start"
	EventTypingStop           EventName = "typing-stop"
	EventMarkMessageRead      EventName = "mark-message-read"
	EventMarkConversationRead EventName = "mark-conversation-read"
	EventAddReaction          EventName = "add-reaction"
	EventRemoveReaction       EventName = "remove-reaction"
	EventEditMessage          EventName = "edit-message"
	EventDeleteMessage        EventName = "delete-message"
)

// Server -> client events.
const (
	EventMessageSent       EventName = "message-sent"
	EventNewMessage        EventName = "new-message"
	EventMessageDelivered  EventName = "message-delivered"
	EventMessageRead       EventName = "message-read"
	EventMessagesRead      EventName = "messages-read"
	EventMessageEdited     EventName = "message-edited"
	EventMessageDeleted    EventName = "message-deleted"
	EventUserTyping        EventName = "user-typing"
	EventUserStatusChanged EventName = "user-status-changed"
	EventReactionAdded     EventName = "reaction-added"
	EventReactionRemoved   EventName = "reaction-removed"
	EventError             EventName = "error"
)

// Call signaling events are relayed verbatim in both directions.
const (
	EventCallInvite EventName = "call-invite"
	EventCallAccept EventName = "call-accept"
	EventCallReject EventName = "call-reject"
	EventCallEnd    EventName = "call-end"
)

// Envelope is the wire frame for every event in either direction.
type Envelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into a ready-to-send frame.
func NewEnvelope(event EventName, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// SendMessagePayload is the client request to create a message.
type SendMessagePayload struct {
	ConversationID int         `json:"conversation_id"`
	Content        string      `json:"content"`
	Type           MessageType `json:"type"`
	ReplyToID      *int        `json:"reply_to_id,omitempty"`
}

// ConversationRef addresses a single conversation (join/leave/typing/bulk read).
type ConversationRef struct {
	ConversationID int `json:"conversation_id"`
}

// MessageRef addresses a single message inside a conversation.
type MessageRef struct {
	ConversationID int `json:"conversation_id"`
	MessageID      int `json:"message_id"`
}

// ReactionPayload carries a reaction mutation.
type ReactionPayload struct {
	ConversationID int    `json:"conversation_id"`
	MessageID      int    `json:"message_id"`
	Emoji          string `json:"emoji,omitempty"`
}

// EditMessagePayload carries an edit request.
type EditMessagePayload struct {
	ConversationID int    `json:"conversation_id"`
	MessageID      int    `json:"message_id"`
	Content        string `json:"content"`
}

// DeleteMessagePayload carries a delete request with its scope.
type DeleteMessagePayload struct {
	ConversationID int    `json:"conversation_id"`
	MessageID      int    `json:"message_id"`
	Scope          string `json:"scope"` // "me" or "everyone"
}

// DeletionEvent is broadcast when a message is deleted for everyone, or sent
// back to the deleter for a delete-for-me.
type DeletionEvent struct {
	ConversationID int    `json:"conversation_id"`
	MessageID      int    `json:"message_id"`
	Scope          string `json:"scope"`
}

// ReceiptEvent reports a delivery or single-message read transition.
type ReceiptEvent struct {
	ConversationID int           `json:"conversation_id"`
	MessageID      int           `json:"message_id"`
	UserID         int           `json:"user_id"`
	Status         MessageStatus `json:"status"`
	At             time.Time     `json:"at"`
}

// BulkReadEvent reports a conversation-level read mark.
type BulkReadEvent struct {
	ConversationID    int       `json:"conversation_id"`
	UserID            int       `json:"user_id"`
	LastReadMessageID int       `json:"last_read_message_id"`
	At                time.Time `json:"at"`
}

// TypingEvent reports another participant's typing state.
type TypingEvent struct {
	ConversationID int  `json:"conversation_id"`
	UserID         int  `json:"user_id"`
	Typing         bool `json:"typing"`
}

// PresenceEvent reports an online/offline transition inside a conversation.
type PresenceEvent struct {
	ConversationID int        `json:"conversation_id"`
	UserID         int        `json:"user_id"`
	Online         bool       `json:"online"`
	LastSeenAt     *time.Time `json:"last_seen_at,omitempty"`
}

// ReactionEvent is broadcast after a persisted reaction mutation.
type ReactionEvent struct {
	ConversationID int    `json:"conversation_id"`
	MessageID      int    `json:"message_id"`
	UserID         int    `json:"user_id"`
	Emoji          string `json:"emoji,omitempty"`
}

// CallSignal is relayed between caller and target without persistence.
type CallSignal struct {
	TargetID  int             `json:"target_id"`
	CallerID  int             `json:"caller_id"`
	SessionID string          `json:"session_id"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
}

// ErrorEvent is sent to the offending connection for rejected operations.
type ErrorEvent struct {
	Message string `json:"message"`
}
