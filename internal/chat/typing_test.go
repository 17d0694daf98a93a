package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mentorship-chat-service/internal/mocks"
	"mentorship-chat-service/internal/models"
	"mentorship-chat-service/internal/repositories"
)

func TestMemoryTypingStoreExpiresAfterWindow(t *testing.T) {
	store := NewMemoryTypingStore()
	current := testNow
	store.now = func() time.Time { return current }

	require.NoError(t, store.Start(context.Background(), 1, 2))

	active, err := store.Active(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.True(t, active)

	current = current.Add(typingWindow - time.Second)
	active, err = store.Active(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.True(t, active)

	current = current.Add(2 * time.Second)
	active, err = store.Active(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestMemoryTypingStoreStopClearsFlag(t *testing.T) {
	store := NewMemoryTypingStore()

	require.NoError(t, store.Start(context.Background(), 1, 2))
	require.NoError(t, store.Stop(context.Background(), 1, 2))

	active, err := store.Active(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestTypingStartBroadcastsToRoom(t *testing.T) {
	participants := new(mocks.ParticipantRepositoryMock)
	rec := newBroadcastRecorder()
	tracker := NewTypingTracker(NewMemoryTypingStore(), participants, rec)

	participants.On("GetParticipant", mock.Anything, 1, 2).Return(activeParticipant(1, 2), nil).Once()

	require.NoError(t, tracker.Start(context.Background(), 1, 2))

	events := rec.roomEvents(t, 1)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventUserTyping, events[0].Event)

	var payload models.TypingEvent
	require.NoError(t, decodeData(events[0], &payload))
	assert.True(t, payload.Typing)
	assert.Equal(t, 2, payload.UserID)
}

func TestTypingStopBroadcastsFalse(t *testing.T) {
	participants := new(mocks.ParticipantRepositoryMock)
	rec := newBroadcastRecorder()
	tracker := NewTypingTracker(NewMemoryTypingStore(), participants, rec)

	participants.On("GetParticipant", mock.Anything, 1, 2).Return(activeParticipant(1, 2), nil)

	require.NoError(t, tracker.Start(context.Background(), 1, 2))
	require.NoError(t, tracker.Stop(context.Background(), 1, 2))

	events := rec.roomEvents(t, 1)
	require.Len(t, events, 2)

	var payload models.TypingEvent
	require.NoError(t, decodeData(events[1], &payload))
	assert.False(t, payload.Typing)
}

func TestTypingRejectsNonParticipant(t *testing.T) {
	participants := new(mocks.ParticipantRepositoryMock)
	rec := newBroadcastRecorder()
	tracker := NewTypingTracker(NewMemoryTypingStore(), participants, rec)

	participants.On("GetParticipant", mock.Anything, 1, 9).
		Return(models.Participant{}, repositories.ErrParticipantNotFound).Once()

	err := tracker.Start(context.Background(), 1, 9)
	require.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, rec.roomEvents(t, 1))
}
