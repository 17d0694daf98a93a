package chat

import (
	"context"
	"fmt"

	"mentorship-chat-service/internal/models"
	"mentorship-chat-service/internal/repositories"
)

// ReactionManager maintains the per-message reaction map. One reaction per
// user per message; a second Add from the same user replaces the first.
type ReactionManager struct {
	participants repositories.ParticipantRepository
	messages     repositories.MessageRepository
	broadcaster  Broadcaster
	locks        *conversationLocks
}

// NewReactionManager wires the manager onto the pipeline's collaborators.
// Sharing the pipeline's conversation locks makes reaction edits serialize
// with message mutations in the same conversation.
func NewReactionManager(pipeline *Pipeline) *ReactionManager {
	return &ReactionManager{
		participants: pipeline.participants,
		messages:     pipeline.messages,
		broadcaster:  pipeline.broadcaster,
		locks:        pipeline.locks,
	}
}

// Add sets the caller's reaction on a message, replacing any previous one.
func (r *ReactionManager) Add(ctx context.Context, conversationID int, messageID int, userID int, reaction string) error {
	if reaction == "" {
		return fmt.Errorf("%w: empty reaction", ErrValidation)
	}
	if err := r.authorize(ctx, conversationID, userID); err != nil {
		return err
	}

	// The snapshot is read under the lock; a concurrent edit never writes
	// back a map that predates another user's reaction.
	unlock := r.locks.acquire(conversationID)
	defer unlock()

	msg, err := r.getMessage(ctx, conversationID, messageID)
	if err != nil {
		return err
	}
	reactions := msg.ReactionMap()
	reactions[reactionKey(userID)] = reaction
	if err := r.messages.SetReactions(ctx, messageID, reactions); err != nil {
		return fmt.Errorf("persist reactions: %w", err)
	}

	r.broadcast(models.EventReactionAdded, conversationID, messageID, userID, reaction)
	return nil
}

// Remove clears the caller's reaction. Removing a reaction that was never
// set is a no-op and produces no broadcast.
func (r *ReactionManager) Remove(ctx context.Context, conversationID int, messageID int, userID int) error {
	if err := r.authorize(ctx, conversationID, userID); err != nil {
		return err
	}

	unlock := r.locks.acquire(conversationID)
	defer unlock()

	msg, err := r.getMessage(ctx, conversationID, messageID)
	if err != nil {
		return err
	}
	reactions := msg.ReactionMap()
	key := reactionKey(userID)
	removed, ok := reactions[key]
	if !ok {
		return nil
	}
	delete(reactions, key)
	if err := r.messages.SetReactions(ctx, messageID, reactions); err != nil {
		return fmt.Errorf("persist reactions: %w", err)
	}

	r.broadcast(models.EventReactionRemoved, conversationID, messageID, userID, removed)
	return nil
}

func (r *ReactionManager) authorize(ctx context.Context, conversationID int, userID int) error {
	part, err := r.participants.GetParticipant(ctx, conversationID, userID)
	if err != nil || !part.CanParticipate() {
		return ErrForbidden
	}
	return nil
}

func (r *ReactionManager) getMessage(ctx context.Context, conversationID int, messageID int) (models.Message, error) {
	msg, err := r.messages.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.ConversationID != conversationID {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	if msg.DeletedForAll {
		return models.Message{}, ErrMessageDeleted
	}
	return msg, nil
}

func (r *ReactionManager) broadcast(event models.EventName, conversationID int, messageID int, userID int, emoji string) {
	payload, err := models.NewEnvelope(event, models.ReactionEvent{
		ConversationID: conversationID,
		MessageID:      messageID,
		UserID:         userID,
		Emoji:          emoji,
	})
	if err != nil {
		return
	}
	r.broadcaster.BroadcastToRoom(conversationID, payload, 0)
}
