package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mentorship-chat-service/internal/mocks"
	"mentorship-chat-service/internal/models"
	"mentorship-chat-service/internal/repositories"
)

type presenceFixture struct {
	conversations *mocks.ConversationRepositoryMock
	participants  *mocks.ParticipantRepositoryMock
	broadcaster   *broadcastRecorder
	tracker       *PresenceTracker
}

func newPresenceFixture() *presenceFixture {
	f := &presenceFixture{
		conversations: new(mocks.ConversationRepositoryMock),
		participants:  new(mocks.ParticipantRepositoryMock),
		broadcaster:   newBroadcastRecorder(),
	}
	f.tracker = NewPresenceTracker(f.conversations, f.participants, f.broadcaster, NewLastSeenCache(nil))
	return f
}

func TestJoinMarksOnlineAndBroadcasts(t *testing.T) {
	f := newPresenceFixture()

	f.conversations.On("GetConversation", mock.Anything, 1).Return(activeConversation(1), nil).Once()
	f.participants.On("GetParticipant", mock.Anything, 1, 2).Return(activeParticipant(1, 2), nil).Once()
	f.participants.On("SetOnline", mock.Anything, 1, 2, true).Return(nil).Once()

	part, err := f.tracker.Join(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, part.UserID)

	events := f.broadcaster.roomEvents(t, 1)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventUserStatusChanged, events[0].Event)

	var payload models.PresenceEvent
	require.NoError(t, decodeData(events[0], &payload))
	assert.True(t, payload.Online)
	f.participants.AssertExpectations(t)
}

func TestJoinRejectsDeletedConversation(t *testing.T) {
	f := newPresenceFixture()
	conv := activeConversation(1)
	conv.Status = models.ConversationDeleted

	f.conversations.On("GetConversation", mock.Anything, 1).Return(conv, nil).Once()

	_, err := f.tracker.Join(context.Background(), 1, 2)
	require.ErrorIs(t, err, ErrConversationGone)
}

func TestJoinRejectsLeftParticipant(t *testing.T) {
	f := newPresenceFixture()
	part := activeParticipant(1, 2)
	part.Status = models.ParticipantLeft

	f.conversations.On("GetConversation", mock.Anything, 1).Return(activeConversation(1), nil).Once()
	f.participants.On("GetParticipant", mock.Anything, 1, 2).Return(part, nil).Once()

	_, err := f.tracker.Join(context.Background(), 1, 2)
	require.ErrorIs(t, err, ErrForbidden)
	f.participants.AssertNotCalled(t, "SetOnline", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestJoinRejectsUnknownConversation(t *testing.T) {
	f := newPresenceFixture()

	f.conversations.On("GetConversation", mock.Anything, 7).
		Return(models.Conversation{}, repositories.ErrConversationNotFound).Once()

	_, err := f.tracker.Join(context.Background(), 7, 2)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestLeaveBroadcastsOffline(t *testing.T) {
	f := newPresenceFixture()

	f.participants.On("SetOnline", mock.Anything, 1, 2, false).Return(nil).Once()

	f.tracker.Leave(context.Background(), 1, 2)

	events := f.broadcaster.roomEvents(t, 1)
	require.Len(t, events, 1)

	var payload models.PresenceEvent
	require.NoError(t, decodeData(events[0], &payload))
	assert.False(t, payload.Online)
	require.NotNil(t, payload.LastSeenAt)
}

func TestDisconnectBroadcastsToEveryConversation(t *testing.T) {
	f := newPresenceFixture()

	f.participants.On("ConversationIDsForUser", mock.Anything, 2).Return([]int{1, 3, 8}, nil).Once()
	f.participants.On("SetOnlineEverywhere", mock.Anything, 2, false).Return(nil).Once()

	f.tracker.Disconnect(context.Background(), 2)

	for _, conversationID := range []int{1, 3, 8} {
		events := f.broadcaster.roomEvents(t, conversationID)
		require.Len(t, events, 1, "conversation %d", conversationID)
		assert.Equal(t, models.EventUserStatusChanged, events[0].Event)
	}
	f.participants.AssertExpectations(t)
}
