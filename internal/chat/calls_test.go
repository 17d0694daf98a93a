package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentorship-chat-service/internal/models"
)

func TestRelayStampsCallerID(t *testing.T) {
	rec := newBroadcastRecorder()
	rec.setOnline(2)
	relay := NewCallRelay(rec)

	relay.Relay(models.EventCallInvite, 1, models.CallSignal{
		TargetID:  2,
		CallerID:  99, // spoofed by the client, must be overwritten
		SessionID: "s-1",
	})

	events := rec.userEvents(t, 2)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventCallInvite, events[0].Event)

	var sig models.CallSignal
	require.NoError(t, decodeData(events[0], &sig))
	assert.Equal(t, 1, sig.CallerID)
	assert.Equal(t, "s-1", sig.SessionID)
}

func TestRelayIgnoresNonCallEvents(t *testing.T) {
	rec := newBroadcastRecorder()
	rec.setOnline(2)
	relay := NewCallRelay(rec)

	relay.Relay(models.EventSendMessage, 1, models.CallSignal{TargetID: 2})

	assert.Empty(t, rec.userEvents(t, 2))
}

func TestRelayToOfflineTargetIsSilent(t *testing.T) {
	rec := newBroadcastRecorder()
	relay := NewCallRelay(rec)

	// Target has no connections; the frame is dropped without error.
	relay.Relay(models.EventCallEnd, 1, models.CallSignal{TargetID: 5})

	assert.Empty(t, rec.userEvents(t, 5))
}
