package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"

	"mentorship-chat-service/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	CreateOrGetDirect(ctx context.Context, userID int, otherID int) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID int) (models.Conversation, error)
	ListForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error)
	SetLastMessage(ctx context.Context, conversationID int, messageID int, preview string) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateOrGetDirect returns the direct conversation between two users,
// creating it together with both participant rows when absent. The
// participant rows carry the (conversation, user) uniqueness constraint.
func (r *ConversationRepo) CreateOrGetDirect(ctx context.Context, userID int, otherID int) (models.Conversation, error) {
	if userID == otherID {
		return models.Conversation{}, errors.New("cannot create conversation with self")
	}
	pair := []int{userID, otherID}
	sort.Ints(pair)

	var conv models.Conversation
	query := `SELECT c.id, c.type, c.status, c.last_message_id, c.last_message_preview, c.last_message_at, c.created_at
        FROM conversations c
        INNER JOIN participants p1 ON p1.conversation_id = c.id AND p1.user_id = $1
        INNER JOIN participants p2 ON p2.conversation_id = c.id AND p2.user_id = $2
        WHERE c.type = 'direct'`
	err := r.db.GetContext(ctx, &conv, query, pair[0], pair[1])
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = tx.QueryRowxContext(ctx, `INSERT INTO conversations (type) VALUES ('direct') RETURNING id, type, status, last_message_id, last_message_preview, last_message_at, created_at`).
		StructScan(&conv); err != nil {
		return models.Conversation{}, err
	}
	for _, id := range pair {
		if _, err = tx.ExecContext(ctx, `INSERT INTO participants (conversation_id, user_id) VALUES ($1, $2)`, conv.ID, id); err != nil {
			return models.Conversation{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID int) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT id, type, status, last_message_id, last_message_preview, last_message_at, created_at FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// ListForUser returns the non-deleted conversations the user belongs to,
// most recently active first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	query := `SELECT c.id, c.type, c.last_message_preview, c.last_message_at, c.created_at
        FROM conversations c
        INNER JOIN participants p ON p.conversation_id = c.id
        WHERE p.user_id = $1 AND p.status IN ('active', 'muted') AND c.status <> 'deleted'
        ORDER BY COALESCE(c.last_message_at, c.created_at) DESC`
	var result []models.ConversationSummary
	err := r.db.SelectContext(ctx, &result, query, userID)
	return result, err
}

// SetLastMessage advances the conversation's last-message pointer.
func (r *ConversationRepo) SetLastMessage(ctx context.Context, conversationID int, messageID int, preview string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE conversations SET last_message_id=$2, last_message_preview=$3, last_message_at=NOW() WHERE id=$1`, conversationID, messageID, preview)
	return err
}
