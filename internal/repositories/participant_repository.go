package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"mentorship-chat-service/internal/models"
)

var ErrParticipantNotFound = errors.New("participant not found")

// ParticipantRepository abstracts participant persistence.
type ParticipantRepository interface {
	GetParticipant(ctx context.Context, conversationID int, userID int) (models.Participant, error)
	ListByConversation(ctx context.Context, conversationID int) ([]models.Participant, error)
	ConversationIDsForUser(ctx context.Context, userID int) ([]int, error)
	SetOnline(ctx context.Context, conversationID int, userID int, online bool) error
	SetOnlineEverywhere(ctx context.Context, userID int, online bool) error
	AdvanceReadPointer(ctx context.Context, conversationID int, userID int, messageID int) error
}

// ParticipantRepo is a sqlx implementation of ParticipantRepository.
type ParticipantRepo struct {
	db *sqlx.DB
}

// NewParticipantRepo constructs a ParticipantRepo.
func NewParticipantRepo(db *sqlx.DB) *ParticipantRepo {
	return &ParticipantRepo{db: db}
}

const participantColumns = `id, conversation_id, user_id, role, status, online, last_seen_at, last_read_message_id, last_read_at, notifications_enabled, joined_at`

// GetParticipant fetches the membership row for one user in one conversation.
func (r *ParticipantRepo) GetParticipant(ctx context.Context, conversationID int, userID int) (models.Participant, error) {
	var p models.Participant
	err := r.db.GetContext(ctx, &p, `SELECT `+participantColumns+` FROM participants WHERE conversation_id=$1 AND user_id=$2`, conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Participant{}, ErrParticipantNotFound
	}
	return p, err
}

// ListByConversation returns every membership row of a conversation.
func (r *ParticipantRepo) ListByConversation(ctx context.Context, conversationID int) ([]models.Participant, error) {
	var parts []models.Participant
	err := r.db.SelectContext(ctx, &parts, `SELECT `+participantColumns+` FROM participants WHERE conversation_id=$1`, conversationID)
	return parts, err
}

// ConversationIDsForUser returns the ids of every conversation the user is an
// active or muted member of. Used by the presence tracker on disconnect.
func (r *ParticipantRepo) ConversationIDsForUser(ctx context.Context, userID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT conversation_id FROM participants WHERE user_id=$1 AND status IN ('active', 'muted')`, userID)
	return ids, err
}

// SetOnline flips the online flag and stamps last-seen for one membership.
func (r *ParticipantRepo) SetOnline(ctx context.Context, conversationID int, userID int, online bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE participants SET online=$3, last_seen_at=NOW() WHERE conversation_id=$1 AND user_id=$2`, conversationID, userID, online)
	return err
}

// SetOnlineEverywhere flips the online flag in every conversation of the user,
// used on connection teardown.
func (r *ParticipantRepo) SetOnlineEverywhere(ctx context.Context, userID int, online bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE participants SET online=$2, last_seen_at=NOW() WHERE user_id=$1`, userID, online)
	return err
}

// AdvanceReadPointer moves the last-read pointer forward only; an older
// message id never regresses it.
func (r *ParticipantRepo) AdvanceReadPointer(ctx context.Context, conversationID int, userID int, messageID int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE participants SET last_read_message_id=$3, last_read_at=NOW()
        WHERE conversation_id=$1 AND user_id=$2 AND (last_read_message_id IS NULL OR last_read_message_id < $3)`, conversationID, userID, messageID)
	return err
}
