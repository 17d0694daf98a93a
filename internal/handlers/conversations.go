package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mentorship-chat-service/internal/chat"
	"mentorship-chat-service/internal/middleware"
	"mentorship-chat-service/internal/repositories"
	"mentorship-chat-service/internal/telemetry"
)

// backlogLimit caps one backlog page; clients page by repeating the call
// with after_id set to the last message they received.
const backlogLimit = 100

// ConversationHandler manages the REST surface over conversations.
type ConversationHandler struct {
	conversations repositories.ConversationRepository
	participants  repositories.ParticipantRepository
	messages      repositories.MessageRepository
	users         repositories.UserRepository
	pipeline      *chat.Pipeline
	emitter       *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(
	conversations repositories.ConversationRepository,
	participants repositories.ParticipantRepository,
	messages repositories.MessageRepository,
	users repositories.UserRepository,
	pipeline *chat.Pipeline,
	emitter *telemetry.AuditEmitter,
) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		participants:  participants,
		messages:      messages,
		users:         users,
		pipeline:      pipeline,
		emitter:       emitter,
	}
}

// ListConversations returns the conversations visible to the caller, most
// recently active first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	summaries, err := h.conversations.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// StartConversation creates or returns the direct conversation between the
// caller and a peer.
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	var req struct {
		PeerID int `json:"peer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, _ := middleware.UserID(c)
	if userID == req.PeerID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start a conversation with yourself"})
		return
	}

	conv, err := h.conversations.CreateOrGetDirect(c.Request.Context(), userID, req.PeerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create conversation"})
		return
	}

	h.emitter.Emit(c.Request.Context(), "INFO", "conversation started", requestIDFromContext(c), userIDFromContext(c))
	c.JSON(http.StatusOK, gin.H{"conversation_id": conv.ID})
}

// GetConversationMessages returns the caller's unread backlog: messages after
// their last-read pointer, oldest first, capped at one page. An explicit
// after_id query param overrides the pointer for paging.
func (h *ConversationHandler) GetConversationMessages(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	userID, _ := middleware.UserID(c)

	part, err := h.participants.GetParticipant(c.Request.Context(), conversationID, userID)
	if err != nil || !part.CanParticipate() {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return
	}

	afterID := 0
	if part.LastReadMessageID != nil {
		afterID = *part.LastReadMessageID
	}
	if raw := c.Query("after_id"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after_id"})
			return
		}
		afterID = parsed
	}

	msgs, err := h.messages.ListSince(c.Request.Context(), conversationID, userID, afterID, backlogLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// GetConversationParticipants returns the roster with display names resolved.
func (h *ConversationHandler) GetConversationParticipants(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	userID, _ := middleware.UserID(c)

	caller, err := h.participants.GetParticipant(c.Request.Context(), conversationID, userID)
	if err != nil || !caller.CanParticipate() {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return
	}

	parts, err := h.participants.ListByConversation(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load participants"})
		return
	}

	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		ids = append(ids, p.UserID)
	}
	users, err := h.users.BulkUsers(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user info"})
		return
	}
	nameByID := make(map[int]string, len(users))
	for _, u := range users {
		nameByID[u.ID] = u.DisplayName
	}

	type participantResponse struct {
		UserID      int        `json:"user_id"`
		DisplayName string     `json:"display_name"`
		Role        string     `json:"role"`
		Status      string     `json:"status"`
		Online      bool       `json:"online"`
		LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
	}

	responses := make([]participantResponse, 0, len(parts))
	for _, p := range parts {
		responses = append(responses, participantResponse{
			UserID:      p.UserID,
			DisplayName: nameByID[p.UserID],
			Role:        string(p.Role),
			Status:      string(p.Status),
			Online:      p.Online,
			LastSeenAt:  p.LastSeenAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"participants": responses})
}

// PinMessage pins a message for the whole conversation.
func (h *ConversationHandler) PinMessage(c *gin.Context) {
	h.setPinned(c, true)
}

// UnpinMessage removes a pin.
func (h *ConversationHandler) UnpinMessage(c *gin.Context) {
	h.setPinned(c, false)
}

func (h *ConversationHandler) setPinned(c *gin.Context, pinned bool) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	userID, _ := middleware.UserID(c)
	if err := h.pipeline.Pin(c.Request.Context(), conversationID, messageID, userID, pinned); err != nil {
		status, msg := pipelineErrorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message_id": messageID, "pinned": pinned})
}

func pipelineErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrForbidden):
		return http.StatusForbidden, "not a conversation member"
	case errors.Is(err, chat.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, repositories.ErrMessageNotFound):
		return http.StatusNotFound, "message not found"
	case errors.Is(err, chat.ErrMessageDeleted):
		return http.StatusGone, "message was deleted"
	default:
		return http.StatusInternalServerError, "operation failed"
	}
}
