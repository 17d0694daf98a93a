package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"

	"mentorship-chat-service/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	// ErrStaleTransition is returned when a status update would regress the
	// sent -> delivered -> read order.
	ErrStaleTransition = errors.New("stale status transition")
)

// MessageRepository defines interactions for messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, conversationID int, senderID int, msgType models.MessageType, content string, replyToID *int) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	ListSince(ctx context.Context, conversationID int, userID int, afterID int, limit int) ([]models.Message, error)
	MarkDelivered(ctx context.Context, messageID int) error
	MarkRead(ctx context.Context, messageID int) error
	MarkConversationRead(ctx context.Context, conversationID int, readerID int, upToID int) (int, error)
	UpdateContent(ctx context.Context, messageID int, content string) error
	HideForUser(ctx context.Context, messageID int, userID int) error
	DeleteForAll(ctx context.Context, messageID int, senderID int) error
	SetReactions(ctx context.Context, messageID int, reactions map[string]string) error
	SetPinned(ctx context.Context, messageID int, pinned bool) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, conversation_id, sender_id, type, content, status, reactions, pinned, pinned_at, reply_to_id, deleted_for_all, sent_at, delivered_at, read_at, edited_at, deleted_at`

// CreateMessage persists a message with status sent and a server-side
// timestamp; the database clock is authoritative for ordering.
func (r *MessageRepo) CreateMessage(ctx context.Context, conversationID int, senderID int, msgType models.MessageType, content string, replyToID *int) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (conversation_id, sender_id, type, content, reply_to_id)
        VALUES ($1, $2, $3, $4, $5) RETURNING `+messageColumns, conversationID, senderID, msgType, content, replyToID).
		StructScan(&msg)
	return msg, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListSince returns up to limit messages after afterID, oldest first,
// filtered by per-user visibility and delete-for-all tombstoning.
func (r *MessageRepo) ListSince(ctx context.Context, conversationID int, userID int, afterID int, limit int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages m
        WHERE m.conversation_id=$1 AND m.id > $3
        AND m.deleted_for_all = FALSE
        AND NOT EXISTS (SELECT 1 FROM message_visibility v WHERE v.message_id = m.id AND v.user_id = $2 AND v.hidden)
        ORDER BY m.id ASC
        LIMIT $4`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, conversationID, userID, afterID, limit)
	return msgs, err
}

// MarkDelivered moves sent -> delivered. A message already delivered or read
// is left untouched so the transition never regresses.
func (r *MessageRepo) MarkDelivered(ctx context.Context, messageID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET status='delivered', delivered_at=NOW() WHERE id=$1 AND status='sent'`, messageID)
	if err != nil {
		return err
	}
	return staleIfNoRows(res)
}

// MarkRead moves sent/delivered -> read.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET status='read', read_at=NOW(),
        delivered_at=COALESCE(delivered_at, NOW()) WHERE id=$1 AND status IN ('sent', 'delivered')`, messageID)
	if err != nil {
		return err
	}
	return staleIfNoRows(res)
}

// MarkConversationRead marks every unread message up to upToID that the
// reader did not send, returning how many rows advanced.
func (r *MessageRepo) MarkConversationRead(ctx context.Context, conversationID int, readerID int, upToID int) (int, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET status='read', read_at=NOW(),
        delivered_at=COALESCE(delivered_at, NOW())
        WHERE conversation_id=$1 AND sender_id<>$2 AND id<=$3 AND status IN ('sent', 'delivered')`, conversationID, readerID, upToID)
	if err != nil {
		return 0, err
	}
	count, err := res.RowsAffected()
	return int(count), err
}

// UpdateContent replaces the body and stamps the edit time. Window and
// ownership checks belong to the pipeline.
func (r *MessageRepo) UpdateContent(ctx context.Context, messageID int, content string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET content=$2, edited_at=NOW() WHERE id=$1 AND deleted_for_all = FALSE`, messageID, content)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// HideForUser performs a delete-for-me soft mark.
func (r *MessageRepo) HideForUser(ctx context.Context, messageID int, userID int) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO message_visibility (message_id, user_id, hidden) VALUES ($1, $2, TRUE)
        ON CONFLICT (message_id, user_id) DO UPDATE SET hidden = TRUE`, messageID, userID)
	return err
}

// DeleteForAll tombstones a message: content cleared, deletion timestamped.
func (r *MessageRepo) DeleteForAll(ctx context.Context, messageID int, senderID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET deleted_for_all = TRUE, content = '', deleted_at = NOW()
        WHERE id=$1 AND sender_id=$2 AND deleted_for_all = FALSE`, messageID, senderID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// SetReactions replaces the reaction map of a message.
func (r *MessageRepo) SetReactions(ctx context.Context, messageID int, reactions map[string]string) error {
	body, err := json.Marshal(reactions)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET reactions=$2 WHERE id=$1 AND deleted_for_all = FALSE`, messageID, body)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// SetPinned flips the pin flag.
func (r *MessageRepo) SetPinned(ctx context.Context, messageID int, pinned bool) error {
	var err error
	if pinned {
		_, err = r.db.ExecContext(ctx, `UPDATE messages SET pinned=TRUE, pinned_at=NOW() WHERE id=$1`, messageID)
	} else {
		_, err = r.db.ExecContext(ctx, `UPDATE messages SET pinned=FALSE, pinned_at=NULL WHERE id=$1`, messageID)
	}
	return err
}

func staleIfNoRows(res sql.Result) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrStaleTransition
	}
	return nil
}
