package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"mentorship-chat-service/internal/models"
)

// broadcastRecorder stands in for the hub, capturing everything the chat
// services emit.
type broadcastRecorder struct {
	mu sync.Mutex

	roomFrames  map[int][][]byte
	userFrames  map[int][][]byte
	roomMembers map[int]map[int]bool
	online      map[int]bool
}

func newBroadcastRecorder() *broadcastRecorder {
	return &broadcastRecorder{
		roomFrames:  make(map[int][][]byte),
		userFrames:  make(map[int][][]byte),
		roomMembers: make(map[int]map[int]bool),
		online:      make(map[int]bool),
	}
}

func (r *broadcastRecorder) joinRoom(conversationID, userID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.roomMembers[conversationID] == nil {
		r.roomMembers[conversationID] = make(map[int]bool)
	}
	r.roomMembers[conversationID][userID] = true
	r.online[userID] = true
}

func (r *broadcastRecorder) setOnline(userID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online[userID] = true
}

func (r *broadcastRecorder) BroadcastToRoom(conversationID int, payload []byte, excludeUserID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roomFrames[conversationID] = append(r.roomFrames[conversationID], payload)
	return len(r.roomMembers[conversationID])
}

func (r *broadcastRecorder) SendToUser(userID int, payload []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online[userID] {
		return false
	}
	r.userFrames[userID] = append(r.userFrames[userID], payload)
	return true
}

func (r *broadcastRecorder) IsUserInRoom(conversationID int, userID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomMembers[conversationID][userID]
}

func (r *broadcastRecorder) roomEvents(t *testing.T, conversationID int) []models.Envelope {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var events []models.Envelope
	for _, frame := range r.roomFrames[conversationID] {
		var env models.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		events = append(events, env)
	}
	return events
}

func (r *broadcastRecorder) userEvents(t *testing.T, userID int) []models.Envelope {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var events []models.Envelope
	for _, frame := range r.userFrames[userID] {
		var env models.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		events = append(events, env)
	}
	return events
}

func decodeData(env models.Envelope, v any) error {
	return json.Unmarshal(env.Data, v)
}

func eventNames(events []models.Envelope) []models.EventName {
	names := make([]models.EventName, 0, len(events))
	for _, e := range events {
		names = append(names, e.Event)
	}
	return names
}

// dispatchRecorder captures push fallback decisions.
type dispatchRecorder struct {
	mu    sync.Mutex
	calls []dispatchCall
}

type dispatchCall struct {
	userID    int
	sender    string
	preview   string
	messageID int
}

func (d *dispatchRecorder) Dispatch(_ context.Context, recipient models.Participant, senderName string, preview string, messageID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{
		userID:    recipient.UserID,
		sender:    senderName,
		preview:   preview,
		messageID: messageID,
	})
}
