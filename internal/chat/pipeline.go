package chat

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"mentorship-chat-service/internal/models"
	"mentorship-chat-service/internal/observability"
	"mentorship-chat-service/internal/repositories"
)

const (
	// editWindow bounds how long after sending the sender may edit.
	editWindow = 15 * time.Minute

	// previewLimit bounds last-message previews and push bodies.
	previewLimit = 96

	// Delete scopes carried on the wire.
	DeleteScopeMe       = "me"
	DeleteScopeEveryone = "everyone"
)

// FallbackDispatcher is invoked for every recipient who is not room-joined at
// fan-out time. Implemented by push.Dispatcher; failures are never propagated
// back into the pipeline.
type FallbackDispatcher interface {
	Dispatch(ctx context.Context, recipient models.Participant, senderName string, preview string, messageID int)
}

// Pipeline drives the message delivery state machine: validate, persist, fan
// out, and advance sent -> delivered -> read. All mutations of one
// conversation are serialized; different conversations proceed in parallel.
type Pipeline struct {
	conversations repositories.ConversationRepository
	participants  repositories.ParticipantRepository
	messages      repositories.MessageRepository
	broadcaster   Broadcaster
	typing        *TypingTracker
	dispatcher    FallbackDispatcher
	locks         *conversationLocks
	now           func() time.Time
}

// NewPipeline constructs a Pipeline.
func NewPipeline(
	conversations repositories.ConversationRepository,
	participants repositories.ParticipantRepository,
	messages repositories.MessageRepository,
	broadcaster Broadcaster,
	typing *TypingTracker,
	dispatcher FallbackDispatcher,
) *Pipeline {
	return &Pipeline{
		conversations: conversations,
		participants:  participants,
		messages:      messages,
		broadcaster:   broadcaster,
		typing:        typing,
		dispatcher:    dispatcher,
		locks:         newConversationLocks(),
		now:           time.Now,
	}
}

// Send validates, persists and fans out a new message. ack is invoked with
// the stored message (status sent) before any fan-out work, so the sender's
// acknowledgment never waits on other participants' delivery. The returned
// message carries the final status after synchronous delivery marking.
func (p *Pipeline) Send(ctx context.Context, senderID int, senderName string, in models.SendMessagePayload, ack func(models.Message)) (models.Message, error) {
	if strings.TrimSpace(in.Content) == "" {
		return models.Message{}, fmt.Errorf("%w: empty content", ErrValidation)
	}
	msgType := in.Type
	if msgType == "" {
		msgType = models.MessageText
	}
	switch msgType {
	case models.MessageText, models.MessageImage, models.MessageAudio, models.MessageFile, models.MessageSystem, models.MessageCallLog:
	default:
		return models.Message{}, fmt.Errorf("%w: unknown message type %q", ErrValidation, msgType)
	}

	conv, err := p.conversations.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return models.Message{}, ErrForbidden
	}
	if conv.Status != models.ConversationActive {
		return models.Message{}, ErrConversationGone
	}
	sender, err := p.participants.GetParticipant(ctx, in.ConversationID, senderID)
	if err != nil || !sender.CanParticipate() {
		return models.Message{}, ErrForbidden
	}

	unlock := p.locks.acquire(in.ConversationID)
	defer unlock()

	msg, err := p.messages.CreateMessage(ctx, in.ConversationID, senderID, msgType, in.Content, in.ReplyToID)
	if err != nil {
		// No partial broadcast: a message that failed to persist is never
		// fanned out.
		return models.Message{}, fmt.Errorf("persist message: %w", err)
	}

	observability.IncMessage(string(msgType))
	if err := observability.PublishEvent(ctx, "chat.message.created", observability.EventEnvelope{
		EventType: "message",
		EventName: "created",
		Payload:   msg,
	}, nil); err != nil {
		log.Printf("publish message event failed: message=%d err=%v", msg.ID, err)
	}

	if ack != nil {
		ack(msg)
	}

	if err := p.conversations.SetLastMessage(ctx, in.ConversationID, msg.ID, trimPreview(msg.Content)); err != nil {
		log.Printf("update last message pointer failed: conversation=%d message=%d err=%v", in.ConversationID, msg.ID, err)
	}
	if p.typing != nil {
		p.typing.clearOnMessage(ctx, in.ConversationID, senderID)
	}

	return p.fanOut(ctx, msg, senderName), nil
}

// fanOut pushes the stored message to the room and resolves delivery per
// recipient: room-joined participants produce an immediate delivered
// transition (presence proves receipt capability), everyone else falls back
// to the push dispatcher.
func (p *Pipeline) fanOut(ctx context.Context, msg models.Message, senderName string) models.Message {
	payload, err := models.NewEnvelope(models.EventNewMessage, msg)
	if err != nil {
		return msg
	}
	p.broadcaster.BroadcastToRoom(msg.ConversationID, payload, msg.SenderID)

	parts, err := p.participants.ListByConversation(ctx, msg.ConversationID)
	if err != nil {
		log.Printf("list participants failed: conversation=%d err=%v", msg.ConversationID, err)
		return msg
	}

	var online []int
	for _, part := range parts {
		if part.UserID == msg.SenderID || !part.CanParticipate() {
			continue
		}
		if p.broadcaster.IsUserInRoom(msg.ConversationID, part.UserID) {
			online = append(online, part.UserID)
		} else if p.dispatcher != nil {
			p.dispatcher.Dispatch(ctx, part, senderName, trimPreview(msg.Content), msg.ID)
		}
	}

	if len(online) == 0 {
		return msg
	}

	if err := p.messages.MarkDelivered(ctx, msg.ID); err != nil {
		log.Printf("mark delivered failed: message=%d err=%v", msg.ID, err)
		return msg
	}
	observability.IncStatusTransition(string(models.MessageDelivered))
	at := p.now()
	msg.Status = models.MessageDelivered
	msg.DeliveredAt = &at
	for _, userID := range online {
		p.broadcastReceipt(models.EventMessageDelivered, models.ReceiptEvent{
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
			UserID:         userID,
			Status:         models.MessageDelivered,
			At:             at,
		})
	}
	return msg
}

// MarkMessageRead advances one message to read on behalf of an explicit
// client action and moves the reader's last-read pointer.
func (p *Pipeline) MarkMessageRead(ctx context.Context, conversationID int, messageID int, readerID int) error {
	if _, err := p.authorizeParticipant(ctx, conversationID, readerID); err != nil {
		return err
	}
	unlock := p.locks.acquire(conversationID)
	defer unlock()

	msg, err := p.getConversationMessage(ctx, conversationID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID == readerID {
		// Reading your own message is meaningless; ignore.
		return nil
	}

	if err := p.messages.MarkRead(ctx, messageID); err != nil {
		if err == repositories.ErrStaleTransition {
			// Already read; status never regresses.
			return nil
		}
		return fmt.Errorf("mark read: %w", err)
	}
	observability.IncStatusTransition(string(models.MessageRead))
	if err := p.participants.AdvanceReadPointer(ctx, conversationID, readerID, messageID); err != nil {
		log.Printf("advance read pointer failed: conversation=%d user=%d err=%v", conversationID, readerID, err)
	}

	p.broadcastReceipt(models.EventMessageRead, models.ReceiptEvent{
		ConversationID: conversationID,
		MessageID:      messageID,
		UserID:         readerID,
		Status:         models.MessageRead,
		At:             p.now(),
	})
	return nil
}

// MarkConversationRead bulk-reads everything up to the conversation's last
// message and broadcasts a single messages-read event.
func (p *Pipeline) MarkConversationRead(ctx context.Context, conversationID int, readerID int) error {
	if _, err := p.authorizeParticipant(ctx, conversationID, readerID); err != nil {
		return err
	}
	conv, err := p.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return ErrForbidden
	}
	if conv.LastMessageID == nil {
		return nil
	}
	upTo := *conv.LastMessageID

	unlock := p.locks.acquire(conversationID)
	defer unlock()

	if _, err := p.messages.MarkConversationRead(ctx, conversationID, readerID, upTo); err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	if err := p.participants.AdvanceReadPointer(ctx, conversationID, readerID, upTo); err != nil {
		log.Printf("advance read pointer failed: conversation=%d user=%d err=%v", conversationID, readerID, err)
	}

	payload, err := models.NewEnvelope(models.EventMessagesRead, models.BulkReadEvent{
		ConversationID:    conversationID,
		UserID:            readerID,
		LastReadMessageID: upTo,
		At:                p.now(),
	})
	if err != nil {
		return nil
	}
	p.broadcaster.BroadcastToRoom(conversationID, payload, 0)
	return nil
}

// Edit replaces a message body. Permitted only to the original sender, only
// within the edit window, and never on a tombstoned message.
func (p *Pipeline) Edit(ctx context.Context, conversationID int, messageID int, editorID int, content string) (models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return models.Message{}, fmt.Errorf("%w: empty content", ErrValidation)
	}
	if _, err := p.authorizeParticipant(ctx, conversationID, editorID); err != nil {
		return models.Message{}, err
	}
	// The fetch happens under the lock so the snapshot the checks run
	// against cannot be outdated by a concurrent delete or edit.
	unlock := p.locks.acquire(conversationID)
	defer unlock()

	msg, err := p.getConversationMessage(ctx, conversationID, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.SenderID != editorID {
		return models.Message{}, ErrNotSender
	}
	if p.now().Sub(msg.SentAt) > editWindow {
		return models.Message{}, ErrEditWindowClosed
	}

	if err := p.messages.UpdateContent(ctx, messageID, content); err != nil {
		return models.Message{}, fmt.Errorf("update content: %w", err)
	}
	at := p.now()
	msg.Content = content
	msg.EditedAt = &at

	payload, envErr := models.NewEnvelope(models.EventMessageEdited, msg)
	if envErr == nil {
		p.broadcaster.BroadcastToRoom(conversationID, payload, 0)
	}
	return msg, nil
}

// Delete removes a message either for the requester only (soft mark) or, for
// the sender, for everyone (tombstone plus broadcast carrying the scope).
func (p *Pipeline) Delete(ctx context.Context, conversationID int, messageID int, userID int, scope string) error {
	if _, err := p.authorizeParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	unlock := p.locks.acquire(conversationID)
	defer unlock()

	msg, err := p.getConversationMessage(ctx, conversationID, messageID)
	if err != nil {
		return err
	}

	switch scope {
	case DeleteScopeMe:
		if err := p.messages.HideForUser(ctx, messageID, userID); err != nil {
			return fmt.Errorf("hide message: %w", err)
		}
		p.notifyDeletion(conversationID, messageID, userID, DeleteScopeMe)
		return nil
	case DeleteScopeEveryone:
		if msg.SenderID != userID {
			return ErrNotSender
		}
		if err := p.messages.DeleteForAll(ctx, messageID, userID); err != nil {
			return fmt.Errorf("delete for all: %w", err)
		}
		payload, envErr := models.NewEnvelope(models.EventMessageDeleted, models.DeletionEvent{
			ConversationID: conversationID,
			MessageID:      messageID,
			Scope:          DeleteScopeEveryone,
		})
		if envErr == nil {
			p.broadcaster.BroadcastToRoom(conversationID, payload, 0)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown delete scope %q", ErrValidation, scope)
	}
}

// Pin flips the pin flag on a message for any active participant.
func (p *Pipeline) Pin(ctx context.Context, conversationID int, messageID int, userID int, pinned bool) error {
	if _, err := p.authorizeParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	unlock := p.locks.acquire(conversationID)
	defer unlock()

	if _, err := p.getConversationMessage(ctx, conversationID, messageID); err != nil {
		return err
	}
	return p.messages.SetPinned(ctx, messageID, pinned)
}

func (p *Pipeline) authorizeParticipant(ctx context.Context, conversationID int, userID int) (models.Participant, error) {
	part, err := p.participants.GetParticipant(ctx, conversationID, userID)
	if err != nil || !part.CanParticipate() {
		return models.Participant{}, ErrForbidden
	}
	return part, nil
}

// getConversationMessage loads a message and rejects tombstoned or misrouted
// ids; state-changing operations on such messages fail instead of silently
// succeeding.
func (p *Pipeline) getConversationMessage(ctx context.Context, conversationID int, messageID int) (models.Message, error) {
	msg, err := p.messages.GetMessage(ctx, messageID)
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

func (p *Pipeline) broadcastReceipt(event models.EventName, receipt models.ReceiptEvent) {
	payload, err := models.NewEnvelope(event, receipt)
	if err != nil {
		return
	}
	p.broadcaster.BroadcastToRoom(receipt.ConversationID, payload, 0)
}

func (p *Pipeline) notifyDeletion(conversationID int, messageID int, userID int, scope string) {
	payload, err := models.NewEnvelope(models.EventMessageDeleted, models.DeletionEvent{
		ConversationID: conversationID,
		MessageID:      messageID,
		Scope:          scope,
	})
	if err != nil {
		return
	}
	p.broadcaster.SendToUser(userID, payload)
}

// trimPreview bounds preview text to previewLimit runes.
func trimPreview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewLimit {
		return s
	}
	return string(runes[:previewLimit]) + "…"
}

// reactionKey formats a user id for the reaction map.
func reactionKey(userID int) string {
	return strconv.Itoa(userID)
}
