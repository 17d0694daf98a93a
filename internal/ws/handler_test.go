package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mentorship-chat-service/internal/auth"
	"mentorship-chat-service/internal/chat"
	"mentorship-chat-service/internal/mocks"
	"mentorship-chat-service/internal/models"
)

const handlerTestSecret = "handler-test-secret"

func handlerTestToken(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(handlerTestSecret))
	require.NoError(t, err)
	return token
}

// A user with two devices closes the one holding a room membership; the room
// must see the user go offline even though the other device stays connected.
func TestTeardownMarksVacatedRoomsOffline(t *testing.T) {
	gin.SetMode(gin.TestMode)

	users := new(mocks.UserRepositoryMock)
	users.On("GetUser", mock.Anything, 1).
		Return(models.User{ID: 1, DisplayName: "Ada", Status: models.UserActive}, nil)

	conversations := new(mocks.ConversationRepositoryMock)
	conversations.On("GetConversation", mock.Anything, 7).
		Return(models.Conversation{ID: 7, Status: models.ConversationActive}, nil)

	joined := make(chan struct{}, 1)
	left := make(chan struct{}, 1)
	participants := new(mocks.ParticipantRepositoryMock)
	participants.On("GetParticipant", mock.Anything, 7, 1).
		Return(models.Participant{ConversationID: 7, UserID: 1, Status: models.ParticipantActive}, nil)
	participants.On("SetOnline", mock.Anything, 7, 1, true).
		Run(func(mock.Arguments) { joined <- struct{}{} }).Return(nil).Once()
	participants.On("SetOnline", mock.Anything, 7, 1, false).
		Run(func(mock.Arguments) { left <- struct{}{} }).Return(nil).Once()
	participants.On("ConversationIDsForUser", mock.Anything, 1).Return([]int{}, nil).Maybe()
	participants.On("SetOnlineEverywhere", mock.Anything, 1, false).Return(nil).Maybe()

	hub := NewHub()
	presence := chat.NewPresenceTracker(conversations, participants, hub, chat.NewLastSeenCache(nil))
	handler := NewHandler(hub, auth.NewVerifier(handlerTestSecret, users), Services{Presence: presence})

	router := gin.New()
	router.GET("/ws", handler.Handle)
	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + handlerTestToken(t, "1")
	phone, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	laptop, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer laptop.Close()

	require.NoError(t, phone.WriteMessage(websocket.TextMessage,
		[]byte(`{"event":"join-conversation","data":{"conversation_id":7}}`)))
	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("join never reached the participant store")
	}

	require.NoError(t, phone.Close())

	select {
	case <-left:
	case <-time.After(time.Second):
		t.Fatal("vacated room never marked offline")
	}
	// The laptop is still connected, so this was a room-level update, not a
	// full offline sweep.
	participants.AssertNotCalled(t, "ConversationIDsForUser", mock.Anything, 1)
}
