package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"mentorship-chat-service/internal/models"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) CreateOrGetDirect(ctx context.Context, userID int, otherID int) (models.Conversation, error) {
	args := m.Called(ctx, userID, otherID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, conversationID int) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) SetLastMessage(ctx context.Context, conversationID int, messageID int, preview string) error {
	args := m.Called(ctx, conversationID, messageID, preview)
	return args.Error(0)
}

type ParticipantRepositoryMock struct {
	mock.Mock
}

func (m *ParticipantRepositoryMock) GetParticipant(ctx context.Context, conversationID int, userID int) (models.Participant, error) {
	args := m.Called(ctx, conversationID, userID)
	var part models.Participant
	if val := args.Get(0); val != nil {
		part = val.(models.Participant)
	}
	return part, args.Error(1)
}

func (m *ParticipantRepositoryMock) ListByConversation(ctx context.Context, conversationID int) ([]models.Participant, error) {
	args := m.Called(ctx, conversationID)
	var parts []models.Participant
	if val := args.Get(0); val != nil {
		parts = val.([]models.Participant)
	}
	return parts, args.Error(1)
}

func (m *ParticipantRepositoryMock) ConversationIDsForUser(ctx context.Context, userID int) ([]int, error) {
	args := m.Called(ctx, userID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *ParticipantRepositoryMock) SetOnline(ctx context.Context, conversationID int, userID int, online bool) error {
	args := m.Called(ctx, conversationID, userID, online)
	return args.Error(0)
}

func (m *ParticipantRepositoryMock) SetOnlineEverywhere(ctx context.Context, userID int, online bool) error {
	args := m.Called(ctx, userID, online)
	return args.Error(0)
}

func (m *ParticipantRepositoryMock) AdvanceReadPointer(ctx context.Context, conversationID int, userID int, messageID int) error {
	args := m.Called(ctx, conversationID, userID, messageID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, conversationID int, senderID int, msgType models.MessageType, content string, replyToID *int) (models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, msgType, content, replyToID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListSince(ctx context.Context, conversationID int, userID int, afterID int, limit int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, userID, afterID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) MarkDelivered(ctx context.Context, messageID int) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, messageID int) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) MarkConversationRead(ctx context.Context, conversationID int, readerID int, upToID int) (int, error) {
	args := m.Called(ctx, conversationID, readerID, upToID)
	return args.Int(0), args.Error(1)
}

func (m *MessageRepositoryMock) UpdateContent(ctx context.Context, messageID int, content string) error {
	args := m.Called(ctx, messageID, content)
	return args.Error(0)
}

func (m *MessageRepositoryMock) HideForUser(ctx context.Context, messageID int, userID int) error {
	args := m.Called(ctx, messageID, userID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) DeleteForAll(ctx context.Context, messageID int, senderID int) error {
	args := m.Called(ctx, messageID, senderID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) SetReactions(ctx context.Context, messageID int, reactions map[string]string) error {
	args := m.Called(ctx, messageID, reactions)
	return args.Error(0)
}

func (m *MessageRepositoryMock) SetPinned(ctx context.Context, messageID int, pinned bool) error {
	args := m.Called(ctx, messageID, pinned)
	return args.Error(0)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) BulkUsers(ctx context.Context, ids []int) ([]models.User, error) {
	args := m.Called(ctx, ids)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type PusherMock struct {
	mock.Mock
}

func (m *PusherMock) Push(ctx context.Context, token, title, body string, data map[string]string) error {
	args := m.Called(ctx, token, title, body, data)
	return args.Error(0)
}
