package push

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mentorship-chat-service/internal/mocks"
	"mentorship-chat-service/internal/models"
)

type enqueuerStub struct {
	tasks []*asynq.Task
	err   error
}

func (e *enqueuerStub) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func pushableUser(id int, token string) models.User {
	return models.User{
		ID:                   id,
		DisplayName:          "Bea",
		Status:               models.UserActive,
		PushToken:            &token,
		NotificationsEnabled: true,
	}
}

func recipient(conversationID, userID int) models.Participant {
	return models.Participant{
		ConversationID:       conversationID,
		UserID:               userID,
		Status:               models.ParticipantActive,
		NotificationsEnabled: true,
	}
}

func TestDispatchEnqueuesTask(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	pusher := new(mocks.PusherMock)
	queue := &enqueuerStub{}
	d := NewDispatcher(users, pusher, queue)

	users.On("GetUser", mock.Anything, 2).Return(pushableUser(2, "ExponentPushToken[x]"), nil).Once()

	d.Dispatch(context.Background(), recipient(1, 2), "Ada", "hello", 10)

	require.Len(t, queue.tasks, 1)
	assert.Equal(t, TypeDeliver, queue.tasks[0].Type())

	var payload DeliverPayload
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &payload))
	assert.Equal(t, "ExponentPushToken[x]", payload.Token)
	assert.Equal(t, "Ada", payload.Title)
	assert.Equal(t, "hello", payload.Body)
	assert.Equal(t, 10, payload.MessageID)

	pusher.AssertNotCalled(t, "Push", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchSendsInlineWithoutQueue(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	pusher := new(mocks.PusherMock)
	d := NewDispatcher(users, pusher, nil)

	users.On("GetUser", mock.Anything, 2).Return(pushableUser(2, "tok"), nil).Once()
	pusher.On("Push", mock.Anything, "tok", "Ada", "hello", mock.Anything).Return(nil).Once()

	d.Dispatch(context.Background(), recipient(1, 2), "Ada", "hello", 10)

	pusher.AssertExpectations(t)
}

func TestDispatchFallsBackInlineWhenEnqueueFails(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	pusher := new(mocks.PusherMock)
	queue := &enqueuerStub{err: assert.AnError}
	d := NewDispatcher(users, pusher, queue)

	users.On("GetUser", mock.Anything, 2).Return(pushableUser(2, "tok"), nil).Once()
	pusher.On("Push", mock.Anything, "tok", "Ada", "hello", mock.Anything).Return(nil).Once()

	d.Dispatch(context.Background(), recipient(1, 2), "Ada", "hello", 10)

	pusher.AssertExpectations(t)
}

func TestDispatchSkipsMutedParticipant(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	pusher := new(mocks.PusherMock)
	d := NewDispatcher(users, pusher, nil)

	muted := recipient(1, 2)
	muted.Status = models.ParticipantMuted

	d.Dispatch(context.Background(), muted, "Ada", "hello", 10)

	users.AssertNotCalled(t, "GetUser", mock.Anything, mock.Anything)
	pusher.AssertNotCalled(t, "Push", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchSkipsDisabledNotifications(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	pusher := new(mocks.PusherMock)
	d := NewDispatcher(users, pusher, nil)

	silenced := recipient(1, 2)
	silenced.NotificationsEnabled = false

	d.Dispatch(context.Background(), silenced, "Ada", "hello", 10)

	pusher.AssertNotCalled(t, "Push", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchSkipsTokenlessUser(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	pusher := new(mocks.PusherMock)
	d := NewDispatcher(users, pusher, nil)

	user := pushableUser(2, "")
	user.PushToken = nil
	users.On("GetUser", mock.Anything, 2).Return(user, nil).Once()

	d.Dispatch(context.Background(), recipient(1, 2), "Ada", "hello", 10)

	pusher.AssertNotCalled(t, "Push", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliverHandlerPushes(t *testing.T) {
	pusher := new(mocks.PusherMock)
	handler := NewDeliverHandler(pusher)

	task, err := NewDeliverTask(DeliverPayload{Token: "tok", Title: "Ada", Body: "hi", MessageID: 3})
	require.NoError(t, err)

	pusher.On("Push", mock.Anything, "tok", "Ada", "hi", mock.Anything).Return(nil).Once()

	require.NoError(t, handler.ProcessTask(context.Background(), task))
	pusher.AssertExpectations(t)
}
