package chat

import "errors"

var (
	// ErrForbidden rejects operations from users who are not active
	// participants of the target conversation. Surfaced silently to the
	// offending connection and logged server-side.
	ErrForbidden = errors.New("not a conversation participant")

	// ErrValidation rejects malformed payloads; the connection stays open.
	ErrValidation = errors.New("invalid payload")

	ErrNotSender        = errors.New("only the sender may do this")
	ErrMessageDeleted   = errors.New("message deleted")
	ErrEditWindowClosed = errors.New("edit window closed")
	ErrConversationGone = errors.New("conversation not active")
)
